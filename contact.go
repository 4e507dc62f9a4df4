package zmailbox

import (
	"context"
	"fmt"
	"maps"
)

// Contact is a fetched contact.
type Contact struct {
	ID       string
	FolderID string
	Flags    Flags
	Tags     string
	FileAs   string
	ModSeq   int
	Attrs    map[string]string

	// dirty is set when a notification changed attributes we do not have.
	dirty bool
}

// Attr returns the named contact attribute.
func (c *Contact) Attr(name string) string { return c.Attrs[name] }

// IsDirty reports whether the cached contact must be refetched.
func (c *Contact) IsDirty() bool { return c.dirty }

func newContact(d *HitData) *Contact {
	c := &Contact{ID: d.ID, Attrs: map[string]string{}}
	c.patch(d)
	c.dirty = false
	return c
}

// patched returns a copy of c with a modify notification applied.
func (c *Contact) patched(d *HitData) *Contact {
	cp := *c
	cp.Attrs = maps.Clone(c.Attrs)
	cp.patch(d)
	return &cp
}

func (c *Contact) patch(d *HitData) {
	if d.FolderID != nil {
		c.FolderID = *d.FolderID
	}
	if d.Flags != nil {
		c.Flags = Flags(*d.Flags)
	}
	if d.Tags != nil {
		c.Tags = *d.Tags
	}
	if d.FileAs != nil {
		c.FileAs = *d.FileAs
	}
	if d.ModSeq != nil {
		c.ModSeq = *d.ModSeq
	}
	if d.Attrs != nil {
		// Notifications carry only changed attributes.
		maps.Copy(c.Attrs, d.Attrs)
		c.dirty = true
	}
}

// contactCache is the object cache for fetched contacts. Contacts are
// always fetched the same way, so the parameter slot is unused.
type contactCache struct {
	*objectCache[struct{}, *Contact]
}

func newContactCache(size int) *contactCache {
	if size <= 0 {
		size = DefaultContactCacheSize
	}
	return &contactCache{newObjectCache[struct{}, *Contact]("contact", size)}
}

func (c *contactCache) HandleRefresh(*RefreshEvent) error {
	c.purge()
	return nil
}

func (c *contactCache) HandleCreate(*CreateEvent) error { return nil }

func (c *contactCache) HandleModify(ev *ModifyEvent) error {
	if ev.Type != TypeContact || ev.Hit == nil {
		return nil
	}
	c.replace(ev.Hit.ID, func(cn *Contact) *Contact { return cn.patched(ev.Hit) })
	return nil
}

func (c *contactCache) HandleDelete(ev *DeleteEvent) error {
	for _, id := range ev.IDs {
		c.remove(id)
	}
	return nil
}

// GetContact fetches a contact, serving it from cache unless a notification
// has changed it since.
func (m *Mailbox) GetContact(ctx context.Context, id string) (*Contact, error) {
	if id == "" {
		return nil, newClientError(ClientInvalidRequest, "contact id required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cn, ok := m.contacts.get(id, struct{}{}); ok && !cn.dirty {
		return cn, nil
	}

	resp, err := m.invokeLocked(ctx, NewRequest("GetContactsRequest", map[string]any{
		"sync":  true,
		"deref": true,
		"cn":    []map[string]any{{"id": id}},
	}))
	if err != nil {
		return nil, err
	}
	var r struct {
		Contacts []HitData `json:"cn"`
	}
	if err := resp.Decode(&r); err != nil {
		return nil, fmt.Errorf("zmailbox GetContacts: %w", err)
	}
	if len(r.Contacts) == 0 || r.Contacts[0].ID == "" {
		return nil, &Fault{Code: FaultNoSuchContact, Reason: "no such contact: " + id, Request: "GetContactsRequest"}
	}
	cn := newContact(&r.Contacts[0])
	m.contacts.put(id, struct{}{}, cn)
	return cn, nil
}

// GetContactFromCache returns the cached contact for id, or nil.
func (m *Mailbox) GetContactFromCache(id string) *Contact {
	m.mu.Lock()
	defer m.mu.Unlock()
	cn, _ := m.contacts.peek(id)
	return cn
}

// ClearContactCache drops every cached contact.
func (m *Mailbox) ClearContactCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts.purge()
}
