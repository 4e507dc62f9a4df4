package zmailbox

import "context"

// Invoker sends a request to the server and returns its response.
//
// Implementations return an *IOError when the server could not be reached,
// a *Fault when the server answered with an error, and any other error for
// everything else. A *Fault may come with a non-nil Response whose only
// content is the Context of the fault reply. Implementations must not apply
// the Context; the Mailbox does that while holding its lock.
type Invoker interface {
	Invoke(ctx context.Context, req *Request) (*Response, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, req *Request) (*Response, error)

func (f InvokerFunc) Invoke(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// NewRequest builds a request in the mail namespace.
func NewRequest(name string, attrs map[string]any) *Request {
	if attrs == nil {
		attrs = map[string]any{}
	}
	return &Request{Name: name, Namespace: NamespaceMail, Attrs: attrs}
}
