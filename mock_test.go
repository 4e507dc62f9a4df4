package zmailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
)

type fakeReply struct {
	body any
	ctx  *Context
	err  error
}

// fakeInvoker answers requests by name. Queued replies are used once, in
// order; after that the name's default reply, if any, answers every call.
type fakeInvoker struct {
	mu       sync.Mutex
	queued   map[string][]fakeReply
	defaults map[string]fakeReply
	calls    []*Request
}

func newFakeInvoker() *fakeInvoker {
	f := &fakeInvoker{
		queued:   make(map[string][]fakeReply),
		defaults: make(map[string]fakeReply),
	}
	f.always("NoOpRequest", nil, nil)
	return f
}

func (f *fakeInvoker) on(name string, body any, c *Context) *fakeInvoker {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued[name] = append(f.queued[name], fakeReply{body: body, ctx: c})
	return f
}

func (f *fakeInvoker) fail(name string, err error) *fakeInvoker {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued[name] = append(f.queued[name], fakeReply{err: err})
	return f
}

// failWith queues a failure whose reply still carries c.
func (f *fakeInvoker) failWith(name string, err error, c *Context) *fakeInvoker {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued[name] = append(f.queued[name], fakeReply{err: err, ctx: c})
	return f
}

func (f *fakeInvoker) always(name string, body any, c *Context) *fakeInvoker {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaults[name] = fakeReply{body: body, ctx: c}
	return f
}

func (f *fakeInvoker) Invoke(_ context.Context, req *Request) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *req
	f.calls = append(f.calls, &cp)

	r, ok := f.defaults[req.Name]
	if q := f.queued[req.Name]; len(q) > 0 {
		r, ok = q[0], true
		f.queued[req.Name] = q[1:]
	}
	if !ok {
		return nil, fmt.Errorf("no reply scripted for %s", req.Name)
	}
	if r.err != nil {
		if r.ctx != nil {
			return &Response{Name: "Fault", Context: r.ctx}, r.err
		}
		return nil, r.err
	}

	body := []byte("{}")
	if r.body != nil {
		var err error
		if s, isString := r.body.(string); isString {
			body = []byte(s)
		} else if body, err = json.Marshal(r.body); err != nil {
			return nil, err
		}
	}
	return &Response{Name: req.Name[:len(req.Name)-len("Request")] + "Response", Body: body, Context: r.ctx}, nil
}

func (f *fakeInvoker) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Name == name {
			n++
		}
	}
	return n
}

func (f *fakeInvoker) last(name string) *Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Name == name {
			return f.calls[i]
		}
	}
	return nil
}

func mustContext(t *testing.T, js string) *Context {
	t.Helper()
	var c Context
	if err := json.Unmarshal([]byte(js), &c); err != nil {
		t.Fatalf("decoding context: %v", err)
	}
	return &c
}

const testAccountID = "acct-a"

// testRefresh is a full snapshot: Inbox with a Work subfolder, Trash,
// Calendar, an Unread search folder and a calendar mounted from acct-b.
const testRefresh = `{
	"session": {"id": "sess-1"},
	"refresh": {
		"mbx": [{"s": 2048}],
		"folder": [{
			"id": "1", "name": "USER_ROOT",
			"folder": [
				{"id": "2", "name": "Inbox", "l": "1", "u": 3, "n": 10, "view": "message",
					"folder": [{"id": "300", "name": "Work", "l": "2"}]},
				{"id": "3", "name": "Trash", "l": "1"},
				{"id": "10", "name": "Calendar", "l": "1", "view": "appointment"}
			],
			"search": [{"id": "500", "name": "Unread", "l": "1", "query": "is:unread", "types": "message"}],
			"link": [{"id": "400", "name": "Shared Cal", "l": "1", "zid": "acct-b", "rid": "257", "owner": "bob@example.com", "view": "appointment"}]
		}],
		"tags": {"tag": [{"id": "64", "name": "urgent", "color": 5}, {"id": "65", "name": "later"}]}
	}
}`

// newTestMailbox returns a mailbox already populated from testRefresh by
// its first NoOp.
func newTestMailbox(t *testing.T, inv *fakeInvoker) *Mailbox {
	t.Helper()
	inv.on("NoOpRequest", nil, mustContext(t, testRefresh))
	mb := NewWithInvoker(inv, Options{Account: "alice@example.com", AccountID: testAccountID})
	if _, err := mb.GetUserRoot(context.Background()); err != nil {
		t.Fatalf("populating mailbox: %v", err)
	}
	return mb
}

// notifyOnNextNoOp queues a NoOp reply carrying the given context and
// sends the NoOp.
func notifyOnNextNoOp(t *testing.T, mb *Mailbox, inv *fakeInvoker, js string) error {
	t.Helper()
	inv.on("NoOpRequest", nil, mustContext(t, js))
	return mb.NoOp(context.Background())
}

func sp(s string) *string { return &s }

func i64p(i int64) *int64 { return &i }

func bp(b bool) *bool { return &b }
