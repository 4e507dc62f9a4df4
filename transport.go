package zmailbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	retry "github.com/StirlingMarketingGroup/go-retry"
	"github.com/google/uuid"
	"github.com/rs/xid"
	"golang.org/x/net/html/charset"
	"golang.org/x/net/publicsuffix"
)

const defaultUserAgent = "zmailbox"

// HTTPTransport is the default Invoker. It posts JSON envelopes to the
// server's SOAP endpoint.
type HTTPTransport struct {
	URL string
	// ClientID identifies this transport instance across requests.
	ClientID  string
	UserAgent string
	Client    *http.Client

	auth authenticator
	log  Logger
}

// NewHTTPTransport builds a transport for opts.URL using opts' credentials.
func NewHTTPTransport(opts Options) (*HTTPTransport, error) {
	opts = opts.withDefaults()
	if opts.URL == "" {
		return nil, newClientError(ClientInvalidRequest, "server url required")
	}
	u, err := url.Parse(opts.URL)
	if err != nil || u.Host == "" {
		return nil, newClientError(ClientInvalidRequest, "invalid server url %q", opts.URL)
	}

	auth, err := newAuthenticator(opts)
	if err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = RequestTimeout
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = (&net.Dialer{Timeout: DialTimeout}).DialContext
	if TLSSkipVerify {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	return &HTTPTransport{
		URL:       opts.URL,
		ClientID:  uuid.NewString(),
		UserAgent: ua,
		Client:    &http.Client{Transport: tr, Jar: jar, Timeout: timeout},
		auth:      auth,
		log:       sessionLogger("", opts.Account),
	}, nil
}

type envelope struct {
	Header *envelopeHeader            `json:"Header,omitempty"`
	Body   map[string]json.RawMessage `json:"Body"`
}

type envelopeHeader struct {
	Context json.RawMessage `json:"context,omitempty"`
}

type faultData struct {
	Reason struct {
		Text string `json:"Text"`
	} `json:"Reason"`
	Detail struct {
		Error struct {
			Code string `json:"Code"`
		} `json:"Error"`
	} `json:"Detail"`
}

// requestContext builds the header context for req.
func (t *HTTPTransport) requestContext(req *Request) (map[string]any, error) {
	c := map[string]any{
		"_jsns":     NamespaceContext,
		"userAgent": map[string]any{"name": t.UserAgent},
		"format":    map[string]any{"type": "js"},
	}
	switch {
	case req.NoSession:
		c["nosession"] = map[string]any{}
	case req.SessionID != "":
		c["session"] = map[string]any{"id": req.SessionID, "seq": req.NotifySeq}
		c["notify"] = map[string]any{"seq": req.NotifySeq}
	default:
		c["session"] = map[string]any{}
	}
	if req.TargetAccount != "" {
		c["account"] = map[string]any{"by": "id", "_content": req.TargetAccount}
	}
	if t.auth != nil {
		if err := t.auth.context(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (t *HTTPTransport) encode(req *Request) ([]byte, error) {
	c, err := t.requestContext(req)
	if err != nil {
		return nil, err
	}
	body := make(map[string]any, len(req.Attrs)+1)
	for k, v := range req.Attrs {
		body[k] = v
	}
	ns := req.Namespace
	if ns == "" {
		ns = NamespaceMail
	}
	body["_jsns"] = ns

	return json.Marshal(map[string]any{
		"Header": map[string]any{"context": c},
		"Body":   map[string]any{req.Name: body},
	})
}

// Invoke posts req and decodes the reply. Connection failures are retried
// up to RetryCount times; once a response has been read nothing is retried.
func (t *HTTPTransport) Invoke(ctx context.Context, req *Request) (*Response, error) {
	payload, err := t.encode(req)
	if err != nil {
		return nil, fmt.Errorf("zmailbox encoding %s: %w", req.Name, err)
	}

	var data []byte
	var final error
	err = retry.Retry(func() error {
		reqID := xid.New().String()
		hr, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(payload))
		if err != nil {
			final = err
			return nil
		}
		hr.Header.Set("Content-Type", "application/json; charset=utf-8")
		hr.Header.Set("User-Agent", t.UserAgent)
		hr.Header.Set("X-Request-Id", reqID)
		hr.Header.Set("X-Client-Id", t.ClientID)
		if t.auth != nil {
			t.auth.header(hr)
		}

		debugLog(t.log, "sending request", "request", req.Name, "requestId", reqID, "session", req.SessionID)

		resp, err := t.Client.Do(hr)
		if err != nil {
			if ctx.Err() == nil && isDialError(err) {
				return err
			}
			final = &IOError{Op: req.Name, URL: t.URL, Err: err}
			return nil
		}
		defer func() { _ = resp.Body.Close() }()

		r, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
		if err != nil {
			r = resp.Body
		}
		data, err = io.ReadAll(r)
		if err != nil {
			final = &IOError{Op: req.Name, URL: t.URL, Err: err}
			return nil
		}
		final = nil
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusInternalServerError {
			// Faults come back as 500; anything else never reached the service.
			final = &IOError{Op: req.Name, URL: t.URL, Err: fmt.Errorf("unexpected status %s", resp.Status)}
		}
		return nil
	}, RetryCount, func(err error) error {
		t.log.Warn("request failed, retrying", "request", req.Name, "error", err)
		return nil
	}, func() error {
		t.Client.CloseIdleConnections()
		return nil
	})
	if err != nil {
		t.log.Error("request retries exhausted", "request", req.Name, "error", err)
		return nil, &IOError{Op: req.Name, URL: t.URL, Err: err}
	}
	if final != nil {
		return nil, final
	}
	return t.decode(req, data)
}

func (t *HTTPTransport) decode(req *Request, data []byte) (*Response, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("zmailbox decoding %s response: %w", req.Name, err)
	}

	// The context is decoded first: fault responses carry notifications too.
	resp := &Response{}
	if env.Header != nil && len(env.Header.Context) > 0 {
		var c Context
		if err := json.Unmarshal(env.Header.Context, &c); err != nil {
			return nil, fmt.Errorf("zmailbox decoding %s context: %w", req.Name, err)
		}
		resp.Context = &c
	}

	if raw, ok := env.Body["Fault"]; ok {
		var f faultData
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("zmailbox decoding %s fault: %w", req.Name, err)
		}
		resp.Name = "Fault"
		dumpLog(t.log, "fault", resp)
		return resp, &Fault{Code: f.Detail.Error.Code, Reason: f.Reason.Text, Request: req.Name}
	}

	for name, raw := range env.Body {
		if name == "_jsns" {
			continue
		}
		resp.Name, resp.Body = name, raw
		break
	}
	if resp.Name == "" {
		return nil, fmt.Errorf("zmailbox decoding %s response: empty body", req.Name)
	}
	if !strings.HasSuffix(resp.Name, "Response") {
		t.log.Warn("unexpected response element", "request", req.Name, "element", resp.Name)
	}
	dumpLog(t.log, "response", resp)
	return resp, nil
}

// isDialError reports whether err happened before the request could have
// reached the server.
func isDialError(err error) bool {
	var oe *net.OpError
	if errors.As(err, &oe) && oe.Op == "dial" {
		return true
	}
	var de *net.DNSError
	return errors.As(err, &de)
}
