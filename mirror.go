package zmailbox

import (
	"sort"
	"strings"

	humanize "github.com/dustin/go-humanize"
)

// Mirror is the in-memory replica of a mailbox's folder tree and tags. It
// is the first Handler of every Mailbox and is only touched with the
// mailbox lock held.
type Mirror struct {
	ownAccountID string

	root       *Folder
	byID       map[string]Item
	tagsByName map[string]*Tag
	tagsLoaded bool

	size      int64
	sizeKnown bool

	// pending holds folders created before their parent in the current
	// fragment.
	pending []*Folder

	log Logger
}

func newMirror(ownAccountID string, log Logger) *Mirror {
	return &Mirror{
		ownAccountID: ownAccountID,
		byID:         make(map[string]Item),
		tagsByName:   make(map[string]*Tag),
		log:          log,
	}
}

// foldersLoaded reports whether a folder snapshot has been applied.
func (m *Mirror) foldersLoaded() bool { return m.root != nil }

func (m *Mirror) HandleRefresh(ev *RefreshEvent) error {
	if ev.SizeKnown {
		m.setSize(ev.Size)
	}
	if ev.Folders != nil {
		for id, it := range m.byID {
			if _, ok := it.(*Folder); ok {
				delete(m.byID, id)
			}
		}
		m.root = nil
		m.pending = nil
		root, err := m.buildTree(KindFolder, ev.Folders, nil)
		if err != nil {
			return err
		}
		root.placeholder = false
		m.root = root
	}
	if ev.HasTags {
		for id, it := range m.byID {
			if _, ok := it.(*Tag); ok {
				delete(m.byID, id)
			}
		}
		m.tagsByName = make(map[string]*Tag)
		for i := range ev.Tags {
			t, err := newTag(&ev.Tags[i])
			if err != nil {
				return err
			}
			m.addTag(t)
		}
		m.tagsLoaded = true
	}
	return nil
}

func (m *Mirror) HandleCreate(ev *CreateEvent) error {
	switch ev.Type {
	case TypeFolder:
		return m.createFolder(KindFolder, ev.Item)
	case TypeSearchFolder:
		return m.createFolder(KindSearch, ev.Item)
	case TypeMountpoint:
		return m.createFolder(KindMountpoint, ev.Item)
	case TypeTag:
		t, err := newTag(ev.Item)
		if err != nil {
			return err
		}
		if old, ok := m.byID[t.id].(*Tag); ok {
			m.removeTag(old)
		}
		m.addTag(t)
		return nil
	default:
		return nil
	}
}

func (m *Mirror) HandleModify(ev *ModifyEvent) error {
	switch ev.Type {
	case TypeFolder, TypeSearchFolder, TypeMountpoint:
		return m.modifyFolder(ev.Item)
	case TypeTag:
		return m.modifyTag(ev.Item)
	case TypeMailbox:
		if ev.Mailbox != nil && (ev.Mailbox.AccountID == "" || ev.Mailbox.AccountID == m.ownAccountID) {
			m.setSize(ev.Mailbox.Size)
		}
		return nil
	default:
		return nil
	}
}

func (m *Mirror) HandleDelete(ev *DeleteEvent) error {
	for _, id := range ev.IDs {
		switch it := m.byID[id].(type) {
		case *Folder:
			m.removeFolder(it)
		case *Tag:
			m.removeTag(it)
		}
	}
	return nil
}

// buildTree instantiates d and its nested children below parent.
func (m *Mirror) buildTree(kind FolderKind, d *ItemData, parent *Folder) (*Folder, error) {
	f, err := newFolder(kind, d)
	if err != nil {
		return nil, err
	}
	if parent != nil {
		f.parent.Store(parent)
		if f.ParentID() == "" {
			f.setParentID(parent.id)
		}
		parent.addChild(f)
	}
	m.indexFolder(f)
	if err := m.buildChildren(d, f); err != nil {
		return f, err
	}
	return f, nil
}

func (m *Mirror) buildChildren(d *ItemData, f *Folder) error {
	for i := range d.Folders {
		if _, err := m.buildTree(KindFolder, &d.Folders[i], f); err != nil {
			return err
		}
	}
	for i := range d.Searches {
		if _, err := m.buildTree(KindSearch, &d.Searches[i], f); err != nil {
			return err
		}
	}
	for i := range d.Links {
		if _, err := m.buildTree(KindMountpoint, &d.Links[i], f); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mirror) createFolder(kind FolderKind, d *ItemData) error {
	if d == nil {
		return malformed("empty %s record", kindType(kind))
	}
	f, err := newFolder(kind, d)
	if err != nil {
		return err
	}
	if old, ok := m.byID[f.id].(*Folder); ok {
		m.removeFolder(old)
	}
	if parent := m.folder(f.ParentID()); parent != nil && f.ParentID() != "" {
		f.parent.Store(parent)
		parent.addChild(f)
	} else if f.ParentID() != "" {
		m.pending = append(m.pending, f)
	}
	m.indexFolder(f)
	return m.buildChildren(d, f)
}

// resolvePending attaches folders whose parent was created later in the
// same fragment.
func (m *Mirror) resolvePending() {
	for _, f := range m.pending {
		if m.byID[f.id] != Item(f) {
			continue
		}
		parent := m.folder(f.ParentID())
		if parent == nil {
			m.log.Warn("folder parent unknown after fixup", "id", f.id, "parent", f.ParentID())
			continue
		}
		f.parent.Store(parent)
		parent.addChild(f)
	}
	m.pending = nil
}

func (m *Mirror) modifyFolder(d *ItemData) error {
	if d == nil || d.ID == "" {
		return malformed("folder modification without id")
	}
	f := m.folder(d.ID)
	if f == nil {
		debugLog(m.log, "modification for unknown folder", "id", d.ID)
		return nil
	}
	oldParent := f.ParentID()
	oldCanonical := f.CanonicalRemoteID()
	f.patch(d)
	if canonical := f.CanonicalRemoteID(); canonical != oldCanonical {
		delete(m.byID, oldCanonical)
		m.byID[canonical] = f
	}
	if d.ParentID != nil && *d.ParentID != oldParent {
		m.reparent(f)
	}
	return nil
}

// reparent moves f below the folder named by its parent id.
func (m *Mirror) reparent(f *Folder) {
	if old := f.Parent(); old != nil {
		old.removeChild(f)
		f.parent.Store(nil)
	}
	parent := m.folder(f.ParentID())
	if parent == nil {
		m.log.Warn("folder moved to unknown parent", "id", f.id, "parent", f.ParentID())
		return
	}
	f.parent.Store(parent)
	parent.addChild(f)
}

func (m *Mirror) modifyTag(d *ItemData) error {
	if d == nil || d.ID == "" {
		return malformed("tag modification without id")
	}
	t, ok := m.byID[d.ID].(*Tag)
	if !ok {
		debugLog(m.log, "modification for unknown tag", "id", d.ID)
		return nil
	}
	oldName := t.Name()
	t.patch(d)
	if name := t.Name(); name != oldName {
		if m.tagsByName[oldName] == t {
			delete(m.tagsByName, oldName)
		}
		m.tagsByName[name] = t
	}
	return nil
}

func (m *Mirror) indexFolder(f *Folder) {
	m.byID[f.id] = f
	if canonical := f.CanonicalRemoteID(); canonical != "" {
		m.byID[canonical] = f
	}
}

// removeFolder detaches f from its parent and drops it and its subtree
// from the index.
func (m *Mirror) removeFolder(f *Folder) {
	if parent := f.Parent(); parent != nil {
		parent.removeChild(f)
	}
	f.walk(func(c *Folder) {
		if m.byID[c.id] == Item(c) {
			delete(m.byID, c.id)
		}
		if canonical := c.CanonicalRemoteID(); canonical != "" && m.byID[canonical] == Item(c) {
			delete(m.byID, canonical)
		}
	})
	if f == m.root {
		m.root = nil
	}
}

func (m *Mirror) addTag(t *Tag) {
	m.byID[t.id] = t
	m.tagsByName[t.Name()] = t
}

func (m *Mirror) removeTag(t *Tag) {
	delete(m.byID, t.id)
	if name := t.Name(); m.tagsByName[name] == t {
		delete(m.tagsByName, name)
	}
}

func (m *Mirror) setSize(size int64) {
	if size != m.size {
		debugLog(m.log, "mailbox size", "size", humanize.Bytes(uint64(max(size, 0))))
	}
	m.size = size
	m.sizeKnown = true
}

// folder looks up a folder by local id or mountpoint canonical id.
func (m *Mirror) folder(id string) *Folder {
	f, _ := m.byID[id].(*Folder)
	return f
}

// folderByID resolves id, falling back to a re-index and to the
// account-qualified and unqualified forms of the id. Placeholders other
// than the root are never returned.
func (m *Mirror) folderByID(id string) *Folder {
	f := m.lookupFolder(id)
	if f == nil || (f.placeholder && f != m.root) {
		return nil
	}
	return f
}

func (m *Mirror) lookupFolder(id string) *Folder {
	if f := m.folder(id); f != nil {
		return f
	}
	if m.root == nil {
		return nil
	}
	m.reindex()
	if f := m.folder(id); f != nil {
		return f
	}
	if m.ownAccountID == "" {
		return nil
	}
	if rest, ok := strings.CutPrefix(id, m.ownAccountID+":"); ok {
		return m.folder(rest)
	}
	if !strings.Contains(id, ":") {
		return m.folder(m.ownAccountID + ":" + id)
	}
	return nil
}

// reindex adds id entries for every folder in the tree. Entries are only
// added: folders waiting for a parent stay indexed.
func (m *Mirror) reindex() {
	m.root.walk(m.indexFolder)
}

func (m *Mirror) folderByPath(path string) *Folder {
	if m.root == nil {
		return nil
	}
	f := m.root.SubFolderByPath(path)
	if f == nil || (f.placeholder && f != m.root) {
		return nil
	}
	return f
}

// allFolders lists every visible folder below the root, parents first.
func (m *Mirror) allFolders() []*Folder {
	if m.root == nil {
		return nil
	}
	var out []*Folder
	m.root.walk(func(f *Folder) {
		if f != m.root && !f.placeholder {
			out = append(out, f)
		}
	})
	return out
}

func (m *Mirror) tagByID(id string) *Tag {
	t, _ := m.byID[id].(*Tag)
	return t
}

func (m *Mirror) allTags() []*Tag {
	tags := make([]*Tag, 0, len(m.tagsByName))
	for _, t := range m.tagsByName {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name() < tags[j].Name() })
	return tags
}
