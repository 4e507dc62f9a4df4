package zmailbox

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sqs/go-xoauth2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	header http.Header
	body   map[string]any
}

type recorder struct {
	mu   sync.Mutex
	reqs []capturedRequest
}

func (r *recorder) all() []capturedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capturedRequest(nil), r.reqs...)
}

// soapServer replies to every request with reply and status, capturing
// what was sent.
func soapServer(t *testing.T, status int, contentType string, reply string) (*httptest.Server, *recorder) {
	t.Helper()
	got := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("reading request: %v", err)
		}
		var body map[string]any
		if err := json.Unmarshal(data, &body); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		got.mu.Lock()
		got.reqs = append(got.reqs, capturedRequest{header: r.Header.Clone(), body: body})
		got.mu.Unlock()
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func path(m map[string]any, keys ...string) any {
	var v any = m
	for _, k := range keys {
		mm, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = mm[k]
	}
	return v
}

func TestHTTPTransportEnvelope(t *testing.T) {
	srv, got := soapServer(t, http.StatusOK, "application/json", `{
		"Header": {"context": {"session": {"id": "sess-9", "_content": "sess-9"}, "notify": [{"seq": 4, "deleted": {"id": "12"}}]}},
		"Body": {"GetFolderResponse": {"folder": [{"id": "1"}], "_jsns": "urn:zimbraMail"}, "_jsns": "urn:zimbraSoap"}
	}`)

	tr, err := NewHTTPTransport(Options{URL: srv.URL, AuthToken: "tok-1", UserAgent: "zmailbox-test"})
	require.NoError(t, err)

	req := NewRequest("GetFolderRequest", map[string]any{"visible": true})
	req.SessionID = "sess-9"
	req.NotifySeq = 3
	req.TargetAccount = "acct-shared"
	resp, err := tr.Invoke(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "GetFolderResponse", resp.Name)
	var body struct {
		Folders []ItemData `json:"folder"`
	}
	require.NoError(t, resp.Decode(&body))
	require.Len(t, body.Folders, 1)
	require.NotNil(t, resp.Context)
	assert.Equal(t, "sess-9", resp.Context.Session.ID)
	require.Len(t, resp.Context.Notify, 1)
	assert.Equal(t, []string{"12"}, resp.Context.Notify[0].Deleted.List())

	require.Len(t, got.all(), 1)
	sent := got.all()[0]
	assert.NotEmpty(t, sent.header.Get("X-Request-Id"))
	assert.Equal(t, tr.ClientID, sent.header.Get("X-Client-Id"))
	assert.Equal(t, "zmailbox-test", sent.header.Get("User-Agent"))
	assert.Equal(t, "tok-1", path(sent.body, "Header", "context", "authToken"))
	assert.Equal(t, "sess-9", path(sent.body, "Header", "context", "session", "id"))
	assert.EqualValues(t, 3, path(sent.body, "Header", "context", "notify", "seq"))
	assert.Equal(t, "acct-shared", path(sent.body, "Header", "context", "account", "_content"))
	assert.Equal(t, NamespaceMail, path(sent.body, "Body", "GetFolderRequest", "_jsns"))
	assert.Equal(t, true, path(sent.body, "Body", "GetFolderRequest", "visible"))
}

func TestHTTPTransportSessionModes(t *testing.T) {
	srv, got := soapServer(t, http.StatusOK, "application/json", `{"Body": {"NoOpResponse": {}}}`)
	tr, err := NewHTTPTransport(Options{URL: srv.URL})
	require.NoError(t, err)

	_, err = tr.Invoke(context.Background(), NewRequest("NoOpRequest", nil))
	require.NoError(t, err)
	req := NewRequest("NoOpRequest", nil)
	req.NoSession = true
	_, err = tr.Invoke(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, got.all(), 2)
	assert.Equal(t, map[string]any{}, path(got.all()[0].body, "Header", "context", "session"))
	assert.Nil(t, path(got.all()[0].body, "Header", "context", "authToken"))
	assert.NotNil(t, path(got.all()[1].body, "Header", "context", "nosession"))
	assert.Nil(t, path(got.all()[1].body, "Header", "context", "session"))
}

func TestHTTPTransportFault(t *testing.T) {
	srv, _ := soapServer(t, http.StatusInternalServerError, "application/json", `{"Body": {"Fault": {
		"Code": {"Value": "soap:Sender"},
		"Reason": {"Text": "no such folder id: 999"},
		"Detail": {"Error": {"Code": "mail.NO_SUCH_FOLDER", "_jsns": "urn:zimbra"}}
	}}}`)
	tr, err := NewHTTPTransport(Options{URL: srv.URL})
	require.NoError(t, err)

	_, err = tr.Invoke(context.Background(), NewRequest("GetFolderRequest", nil))
	require.Error(t, err)
	assert.True(t, IsFault(err, FaultNoSuchFolder))
	assert.False(t, IsIOError(err))
	var f *Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, "no such folder id: 999", f.Reason)
	assert.Equal(t, "GetFolderRequest", f.Request)
	assert.Equal(t, "fault", invokeResult(err))
}

func TestHTTPTransportBadStatus(t *testing.T) {
	srv, _ := soapServer(t, http.StatusBadGateway, "text/html", `<html>bad gateway</html>`)
	tr, err := NewHTTPTransport(Options{URL: srv.URL})
	require.NoError(t, err)

	_, err = tr.Invoke(context.Background(), NewRequest("NoOpRequest", nil))
	require.Error(t, err)
	assert.True(t, IsIOError(err))
	assert.Equal(t, "ioerror", invokeResult(err))
}

func TestHTTPTransportConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	old := RetryCount
	RetryCount = 0
	t.Cleanup(func() { RetryCount = old })

	tr, err := NewHTTPTransport(Options{URL: url})
	require.NoError(t, err)
	_, err = tr.Invoke(context.Background(), NewRequest("NoOpRequest", nil))
	require.Error(t, err)
	assert.True(t, IsIOError(err))
}

func TestHTTPTransportCharset(t *testing.T) {
	srv, _ := soapServer(t, http.StatusOK, "application/json; charset=iso-8859-1",
		"{\"Body\": {\"GetFolderResponse\": {\"folder\": [{\"id\": \"1\", \"name\": \"Caf\xe9\"}]}}}")
	tr, err := NewHTTPTransport(Options{URL: srv.URL})
	require.NoError(t, err)

	resp, err := tr.Invoke(context.Background(), NewRequest("GetFolderRequest", nil))
	require.NoError(t, err)
	var body struct {
		Folders []ItemData `json:"folder"`
	}
	require.NoError(t, resp.Decode(&body))
	require.Len(t, body.Folders, 1)
	assert.Equal(t, "Café", *body.Folders[0].Name)
}

func TestHTTPTransportInvalidURL(t *testing.T) {
	_, err := NewHTTPTransport(Options{})
	assert.True(t, IsClientError(err))
	_, err = NewHTTPTransport(Options{URL: "not a url"})
	assert.True(t, IsClientError(err))
}

func signedJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice", "exp": exp.Unix()})
	s, err := tok.SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

func TestHTTPTransportJWT(t *testing.T) {
	srv, got := soapServer(t, http.StatusOK, "application/json", `{"Body": {"NoOpResponse": {}}}`)

	token := signedJWT(t, time.Now().Add(time.Hour))
	tr, err := NewHTTPTransport(Options{URL: srv.URL, AuthToken: token, AuthMode: AuthJWT})
	require.NoError(t, err)
	_, err = tr.Invoke(context.Background(), NewRequest("NoOpRequest", nil))
	require.NoError(t, err)
	require.Len(t, got.all(), 1)
	assert.Equal(t, "Bearer "+token, got.all()[0].header.Get("Authorization"))
	assert.Equal(t, token, path(got.all()[0].body, "Header", "context", "jwtToken"))

	expired := signedJWT(t, time.Now().Add(-time.Hour))
	tr, err = NewHTTPTransport(Options{URL: srv.URL, AuthToken: expired, AuthMode: AuthJWT})
	require.NoError(t, err)
	_, err = tr.Invoke(context.Background(), NewRequest("NoOpRequest", nil))
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Len(t, got.all(), 1, "expired token never sent")

	_, err = NewHTTPTransport(Options{URL: srv.URL, AuthToken: "garbage", AuthMode: AuthJWT})
	assert.True(t, IsClientError(err))
}

func TestHTTPTransportXOAuth2(t *testing.T) {
	srv, got := soapServer(t, http.StatusOK, "application/json", `{"Body": {"NoOpResponse": {}}}`)

	tr, err := NewHTTPTransport(Options{URL: srv.URL, Account: "alice@example.com", AuthToken: "ya29.token", AuthMode: AuthXOAuth2})
	require.NoError(t, err)
	_, err = tr.Invoke(context.Background(), NewRequest("NoOpRequest", nil))
	require.NoError(t, err)
	require.Len(t, got.all(), 1)
	assert.Equal(t, "XOAUTH2 "+xoauth2.XOAuth2String("alice@example.com", "ya29.token"), got.all()[0].header.Get("Authorization"))

	_, err = NewHTTPTransport(Options{URL: srv.URL, AuthToken: "ya29.token", AuthMode: AuthXOAuth2})
	assert.True(t, IsClientError(err))
}

func TestMailboxOverHTTP(t *testing.T) {
	refresh := mustContext(t, testRefresh)
	ctxJSON, err := json.Marshal(refresh)
	require.NoError(t, err)
	srv, got := soapServer(t, http.StatusOK, "application/json",
		`{"Header": {"context": `+string(ctxJSON)+`}, "Body": {"NoOpResponse": {}}}`)

	mb, err := New(Options{URL: srv.URL, AccountID: testAccountID, AuthToken: "tok"})
	require.NoError(t, err)

	work, err := mb.GetFolderByPath(context.Background(), "/Inbox/Work")
	require.NoError(t, err)
	require.NotNil(t, work)
	assert.Equal(t, "sess-1", mb.SessionID())
	assert.Len(t, got.all(), 1)
}

func TestHTTPTransportFaultKeepsContext(t *testing.T) {
	srv, _ := soapServer(t, http.StatusInternalServerError, "application/json", `{
		"Header": {"context": {"notify": [{"seq": 1, "created": {"tag": [{"id": "66", "name": "fresh"}]}}]}},
		"Body": {"Fault": {"Reason": {"Text": "no such item"}, "Detail": {"Error": {"Code": "mail.NO_SUCH_ITEM"}}}}
	}`)

	mb, err := New(Options{URL: srv.URL, AccountID: testAccountID, Notify: NotifyNoSession})
	require.NoError(t, err)

	_, err = mb.Invoke(context.Background(), NewRequest("ItemActionRequest", nil))
	require.Error(t, err)
	assert.True(t, IsFault(err, "mail.NO_SUCH_ITEM"))

	mb.mu.Lock()
	seq := mb.proc.maxSeq
	fresh := mb.mirror.tagsByName["fresh"]
	mb.mu.Unlock()
	assert.Equal(t, 1, seq)
	require.NotNil(t, fresh)
	assert.Equal(t, "66", fresh.ID())
}
