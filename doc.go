// Package zmailbox keeps a client-side mirror of a remote mailbox's folders
// and tags, plus the caches a mail client needs on top of it.
//
// It focuses on the handful of things every client ends up rebuilding:
//
//   - A folder tree and tag index, populated lazily and then kept current
//     from the change notifications piggybacked on every response
//   - Paged search results that stay patched as items change
//   - Expanded calendar/task instances and mini-calendar dates per window
//   - Small caches for individually fetched messages and contacts
//
// All network traffic goes through an Invoker. HTTPTransport speaks the
// server's JSON envelope; tests and embedders can supply their own.
// A Mailbox serializes every call under one lock, so notifications are
// always applied in order and never interleaved.
package zmailbox
