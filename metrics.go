package zmailbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zmailbox_cache_lookups_total",
			Help: "Cache lookups by cache and result.",
		},
		[]string{
			"cache",  // search, convsearch, appt, minical, message, contact
			"result", // hit, miss
		},
	)
	invokeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zmailbox_invoke_duration_seconds",
			Help:    "Request duration and result in seconds.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.100, 0.5, 1, 5, 10, 30},
		},
		[]string{
			"request", // see requestLabel
			"result",  // ok, ioerror, fault, error
		},
	)
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zmailbox_notifications_total",
			Help: "Applied notification events by kind.",
		},
		[]string{
			"kind", // refresh, create, modify, delete
		},
	)
)

func observeLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(cache, result).Inc()
}

// knownRequests bounds the request label; Invoke accepts any name.
var knownRequests = map[string]struct{}{
	"NoOpRequest":          {},
	"GetFolderRequest":     {},
	"GetTagRequest":        {},
	"SearchRequest":        {},
	"SearchConvRequest":    {},
	"GetMsgRequest":        {},
	"MsgActionRequest":     {},
	"ConvActionRequest":    {},
	"ItemActionRequest":    {},
	"FolderActionRequest":  {},
	"CreateFolderRequest":  {},
	"ContactActionRequest": {},
	"GetContactsRequest":   {},
	"GetMiniCalRequest":    {},
	"SendMsgRequest":       {},
	"GetInfoRequest":       {},
}

func requestLabel(name string) string {
	if _, ok := knownRequests[name]; ok {
		return name
	}
	return "other"
}

func invokeResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsIOError(err):
		return "ioerror"
	case IsFault(err, ""):
		return "fault"
	default:
		return "error"
	}
}
