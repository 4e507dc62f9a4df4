package zmailbox

import (
	"context"
	"sync"
	"time"
)

// Mailbox is a client session for one account. It mirrors the account's
// folders and tags and caches searches, calendar instances, messages and
// contacts, keeping all of them current from the notifications that come
// back with every response.
//
// A Mailbox is safe for concurrent use. Every call that talks to the
// server holds the session lock from sending the request until the
// response's notifications have been applied.
//
// Objects handed out may be read without the lock. Folders and tags
// publish each change as a new state, so a reader sees either the old
// values or the new ones. Search results, hits, messages and contacts are
// snapshots: a notification replaces the cached copy and never changes
// one already returned.
type Mailbox struct {
	mu sync.Mutex

	opts      Options
	inv       Invoker
	sessionID string
	log       Logger

	mirror     *Mirror
	proc       *processor
	search     *searchCache
	convSearch *searchCache
	appts      *apptCache
	messages   *messageCache
	contacts   *contactCache
}

// New returns a Mailbox talking to opts.URL over HTTP.
func New(opts Options) (*Mailbox, error) {
	t, err := NewHTTPTransport(opts)
	if err != nil {
		return nil, err
	}
	return NewWithInvoker(t, opts), nil
}

// NewWithInvoker returns a Mailbox sending its requests through inv.
func NewWithInvoker(inv Invoker, opts Options) *Mailbox {
	opts = opts.withDefaults()
	log := sessionLogger("", opts.Account)

	m := &Mailbox{
		opts:       opts,
		inv:        inv,
		log:        log,
		mirror:     newMirror(opts.AccountID, log),
		search:     newSearchCache("search", false, opts.SearchCacheSize),
		convSearch: newSearchCache("convsearch", true, opts.ConvSearchCacheSize),
		appts:      newApptCache(),
		messages:   newMessageCache(opts.MessageCacheSize),
		contacts:   newContactCache(opts.ContactCacheSize),
	}
	m.proc = newProcessor(m.mirror, log)
	m.proc.addHandler(m.search)
	m.proc.addHandler(m.convSearch)
	m.proc.addHandler(m.appts)
	m.proc.addHandler(m.messages)
	m.proc.addHandler(m.contacts)
	return m
}

// AddHandler registers h to receive every applied change after the
// built-in caches.
func (m *Mailbox) AddHandler(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proc.addHandler(h)
}

// SessionID returns the server session id, empty until the first response.
func (m *Mailbox) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Invoke sends req and applies the notifications of its response. It lets
// callers issue any request while keeping the mirror and caches coherent.
func (m *Mailbox) Invoke(ctx context.Context, req *Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invokeLocked(ctx, req)
}

func (m *Mailbox) invokeLocked(ctx context.Context, req *Request) (*Response, error) {
	req.SessionID = m.sessionID
	req.NoSession = m.opts.Notify == NotifyNoSession
	req.NotifySeq = m.proc.maxSeq
	if req.TargetAccount == "" {
		req.TargetAccount = m.opts.TargetAccount
	}
	if req.Namespace == "" {
		req.Namespace = NamespaceMail
	}

	debugLog(m.log, "invoking", "request", req.Name, "notifySeq", req.NotifySeq)
	start := time.Now()
	resp, err := m.inv.Invoke(ctx, req)
	invokeDuration.WithLabelValues(requestLabel(req.Name), invokeResult(err)).Observe(time.Since(start).Seconds())

	// Notifications are applied whatever the outcome; a fault reply may
	// carry them too.
	if resp != nil && resp.Context != nil {
		c := resp.Context
		if c.Session != nil && c.Session.ID != "" && c.Session.ID != m.sessionID {
			m.setSession(c.Session.ID)
		}
		if applyErr := m.proc.apply(c); applyErr != nil {
			m.log.Error("applying notifications failed", "request", req.Name, "error", applyErr)
			if err == nil {
				return nil, applyErr
			}
		}
	}
	if err != nil {
		debugLog(m.log, "request failed", "request", req.Name, "error", err)
		return nil, err
	}
	return resp, nil
}

func (m *Mailbox) setSession(id string) {
	m.sessionID = id
	m.log = sessionLogger(id, m.opts.Account)
	m.mirror.log = m.log
	m.proc.log = m.log
}

// GetFolderByID returns the folder with the given local or mountpoint
// canonical id, or nil.
func (m *Mailbox) GetFolderByID(ctx context.Context, id string) (*Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureFolders(ctx); err != nil {
		return nil, err
	}
	return m.mirror.folderByID(id), nil
}

// GetFolderByPath resolves an absolute path such as "/Inbox/Archive".
// Names match case insensitively. It returns nil when nothing matches or the
// match is a placeholder.
func (m *Mailbox) GetFolderByPath(ctx context.Context, path string) (*Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureFolders(ctx); err != nil {
		return nil, err
	}
	return m.mirror.folderByPath(path), nil
}

// GetAllFolders lists every visible folder below the user root.
func (m *Mailbox) GetAllFolders(ctx context.Context) ([]*Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureFolders(ctx); err != nil {
		return nil, err
	}
	return m.mirror.allFolders(), nil
}

// GetUserRoot returns the root of the folder tree.
func (m *Mailbox) GetUserRoot(ctx context.Context) (*Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureFolders(ctx); err != nil {
		return nil, err
	}
	return m.mirror.root, nil
}

func (m *Mailbox) GetInbox(ctx context.Context) (*Folder, error) {
	return m.GetFolderByID(ctx, IDInbox)
}

func (m *Mailbox) GetTrash(ctx context.Context) (*Folder, error) {
	return m.GetFolderByID(ctx, IDTrash)
}

func (m *Mailbox) GetSpam(ctx context.Context) (*Folder, error) {
	return m.GetFolderByID(ctx, IDSpam)
}

func (m *Mailbox) GetSent(ctx context.Context) (*Folder, error) {
	return m.GetFolderByID(ctx, IDSent)
}

func (m *Mailbox) GetDrafts(ctx context.Context) (*Folder, error) {
	return m.GetFolderByID(ctx, IDDrafts)
}

func (m *Mailbox) GetContacts(ctx context.Context) (*Folder, error) {
	return m.GetFolderByID(ctx, IDContacts)
}

func (m *Mailbox) GetCalendar(ctx context.Context) (*Folder, error) {
	return m.GetFolderByID(ctx, IDCalendar)
}

func (m *Mailbox) GetTasks(ctx context.Context) (*Folder, error) {
	return m.GetFolderByID(ctx, IDTasks)
}

func (m *Mailbox) GetBriefcase(ctx context.Context) (*Folder, error) {
	return m.GetFolderByID(ctx, IDBriefcase)
}

// GetSize returns the mailbox size in bytes as last reported by the server.
func (m *Mailbox) GetSize(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.mirror.sizeKnown {
		if err := m.noOpLocked(ctx); err != nil {
			return 0, err
		}
	}
	return m.mirror.size, nil
}

// GetTagByName returns the tag with exactly that name, or nil.
func (m *Mailbox) GetTagByName(ctx context.Context, name string) (*Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureTags(ctx); err != nil {
		return nil, err
	}
	return m.mirror.tagsByName[name], nil
}

// GetTagByID returns the tag with the given id, or nil.
func (m *Mailbox) GetTagByID(ctx context.Context, id string) (*Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureTags(ctx); err != nil {
		return nil, err
	}
	return m.mirror.tagByID(id), nil
}

// GetTag resolves nameOrID as a tag name first, then as an id. Unknown tags
// are a client error.
func (m *Mailbox) GetTag(ctx context.Context, nameOrID string) (*Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureTags(ctx); err != nil {
		return nil, err
	}
	if t := m.mirror.tagsByName[nameOrID]; t != nil {
		return t, nil
	}
	if t := m.mirror.tagByID(nameOrID); t != nil {
		return t, nil
	}
	return nil, newClientError(ClientNoSuchTag, "no such tag: %s", nameOrID)
}

// GetAllTags lists the tags sorted by name.
func (m *Mailbox) GetAllTags(ctx context.Context) ([]*Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureTags(ctx); err != nil {
		return nil, err
	}
	return m.mirror.allTags(), nil
}

// GetAllTagNames lists the tag names sorted.
func (m *Mailbox) GetAllTagNames(ctx context.Context) ([]string, error) {
	tags, err := m.GetAllTags(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name()
	}
	return names, nil
}

// HasTags reports whether the mailbox has any tags.
func (m *Mailbox) HasTags(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureTags(ctx); err != nil {
		return false, err
	}
	return len(m.mirror.tagsByName) > 0, nil
}
