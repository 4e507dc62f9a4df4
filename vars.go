package zmailbox

import "time"

// Verbose logs every request, response context and applied notification
var Verbose = false

// SkipResponses skips dumping response bodies in verbose mode
var SkipResponses = false

// RetryCount is the number of times connection establishment gets retried.
// Requests that reached the server are never retried.
var RetryCount = 3

// DialTimeout defines how long to wait when establishing a new connection.
// Zero means no timeout.
var DialTimeout time.Duration

// RequestTimeout defines how long to wait for a request to complete,
// including reading the response. Zero means no timeout.
var RequestTimeout time.Duration

// TLSSkipVerify disables certificate verification on the default transport.
// Use with caution; skipping verification exposes the session to
// man-in-the-middle attacks.
var TLSSkipVerify bool

// Cache defaults, used when Options leaves the corresponding size at zero.
const (
	DefaultSearchCacheSize     = 5
	DefaultConvSearchCacheSize = 5
	DefaultMessageCacheSize    = 1
	DefaultContactCacheSize    = 25
)
