package zmailbox

import (
	"strings"
	"sync/atomic"
)

// Well-known folder ids.
const (
	IDUserRoot  = "1"
	IDInbox     = "2"
	IDTrash     = "3"
	IDSpam      = "4"
	IDSent      = "5"
	IDDrafts    = "6"
	IDContacts  = "7"
	IDTags      = "8"
	IDCalendar  = "10"
	IDRoot      = "11"
	IDChats     = "14"
	IDTasks     = "15"
	IDBriefcase = "16"

	// FirstUserID is the lowest id assigned to user-created items.
	FirstUserID = 256
)

// PathSeparator separates folder names in a path.
const PathSeparator = "/"

// FolderKind distinguishes the folder variants.
type FolderKind int

const (
	KindFolder FolderKind = iota
	KindSearch
	KindMountpoint
)

// View is the default item type a folder holds.
type View string

const (
	ViewUnknown      View = ""
	ViewMessage      View = "message"
	ViewConversation View = "conversation"
	ViewContact      View = "contact"
	ViewAppointment  View = "appointment"
	ViewTask         View = "task"
	ViewDocument     View = "document"
	ViewWiki         View = "wiki"
	ViewVoice        View = "voice"
	ViewChat         View = "chat"
	ViewSearch       View = "search"
)

// SearchFolderInfo is the saved query of a search folder.
type SearchFolderInfo struct {
	Query  string
	Types  string
	SortBy string
}

// MountpointInfo identifies the remote folder a mountpoint links to.
type MountpointInfo struct {
	OwnerID   string
	OwnerName string
	RemoteID  string
}

// Folder is a node of the mirrored folder tree. Notifications never modify
// a published state in place: each change swaps in a new one, so a Folder
// can be read without the mailbox lock. Children returns a snapshot that
// later changes never touch.
type Folder struct {
	id          string
	kind        FolderKind
	placeholder bool

	parent   atomic.Pointer[Folder]
	children atomic.Pointer[[]*Folder]
	state    atomic.Pointer[folderState]
}

type folderState struct {
	name     string
	parentID string

	unread int
	count  int
	size   int64
	view   View
	flags  Flags
	color  int
	rgb    string
	url    string
	modSeq int

	search *SearchFolderInfo
	mount  *MountpointInfo
}

func (f *Folder) st() *folderState { return f.state.Load() }

func (f *Folder) ID() string { return f.id }

// Type reports TypeFolder, TypeSearchFolder or TypeMountpoint.
func (f *Folder) Type() ItemType {
	switch f.kind {
	case KindSearch:
		return TypeSearchFolder
	case KindMountpoint:
		return TypeMountpoint
	default:
		return TypeFolder
	}
}

func (f *Folder) Name() string          { return f.st().name }
func (f *Folder) ParentID() string      { return f.st().parentID }
func (f *Folder) Parent() *Folder       { return f.parent.Load() }
func (f *Folder) IsPlaceholder() bool   { return f.placeholder }
func (f *Folder) UnreadCount() int      { return f.st().unread }
func (f *Folder) MessageCount() int     { return f.st().count }
func (f *Folder) Size() int64           { return f.st().size }
func (f *Folder) DefaultView() View     { return f.st().view }
func (f *Folder) Flags() Flags          { return f.st().flags }
func (f *Folder) Color() int            { return f.st().color }
func (f *Folder) RGB() string           { return f.st().rgb }
func (f *Folder) RemoteURL() string     { return f.st().url }
func (f *Folder) ModifiedSequence() int { return f.st().modSeq }
func (f *Folder) Kind() FolderKind      { return f.kind }

// SearchInfo returns a copy of the saved query for search folders, nil
// otherwise.
func (f *Folder) SearchInfo() *SearchFolderInfo {
	if s := f.st().search; s != nil {
		c := *s
		return &c
	}
	return nil
}

// MountpointInfo returns a copy of the link target for mountpoints, nil
// otherwise.
func (f *Folder) MountpointInfo() *MountpointInfo {
	if mp := f.st().mount; mp != nil {
		c := *mp
		return &c
	}
	return nil
}

// CanonicalRemoteID returns "ownerId:remoteId" for mountpoints and "" for
// every other folder.
func (f *Folder) CanonicalRemoteID() string {
	mp := f.st().mount
	if mp == nil {
		return ""
	}
	return mp.OwnerID + ":" + mp.RemoteID
}

// Children returns the current child list. The returned slice is never
// modified; later additions and removals replace it.
func (f *Folder) Children() []*Folder {
	if c := f.children.Load(); c != nil {
		return *c
	}
	return nil
}

// Path returns the absolute path of the folder, "/" for the root.
func (f *Folder) Path() string {
	parent := f.Parent()
	if parent == nil {
		return PathSeparator
	}
	if parent.Parent() == nil {
		return PathSeparator + f.Name()
	}
	return parent.Path() + PathSeparator + f.Name()
}

// SubFolderByPath resolves a relative path below f. Names match case
// insensitively. Placeholders can be walked through but are never
// returned.
func (f *Folder) SubFolderByPath(path string) *Folder {
	path = strings.Trim(path, PathSeparator)
	if path == "" {
		return f
	}
	name, rest, _ := strings.Cut(path, PathSeparator)
	for _, c := range f.Children() {
		if !equalFold(c.Name(), name) {
			continue
		}
		if rest == "" {
			if c.placeholder {
				return nil
			}
			return c
		}
		if sub := c.SubFolderByPath(rest); sub != nil {
			return sub
		}
	}
	return nil
}

// ParentPath returns the path of the parent of path, "/" for top-level
// folders.
func ParentPath(path string) string {
	path = strings.TrimRight(path, PathSeparator)
	i := strings.LastIndex(path, PathSeparator)
	if i <= 0 {
		return PathSeparator
	}
	return path[:i]
}

// BasePath returns the last element of path.
func BasePath(path string) string {
	path = strings.TrimRight(path, PathSeparator)
	if i := strings.LastIndex(path, PathSeparator); i >= 0 {
		return path[i+1:]
	}
	return path
}

func (f *Folder) addChild(c *Folder) {
	old := f.Children()
	for _, existing := range old {
		if existing == c {
			return
		}
	}
	next := make([]*Folder, len(old), len(old)+1)
	copy(next, old)
	next = append(next, c)
	f.children.Store(&next)
}

func (f *Folder) removeChild(c *Folder) bool {
	old := f.Children()
	for i, existing := range old {
		if existing != c {
			continue
		}
		next := make([]*Folder, 0, len(old)-1)
		next = append(next, old[:i]...)
		next = append(next, old[i+1:]...)
		f.children.Store(&next)
		return true
	}
	return false
}

// walk visits f and all its descendants, parents first.
func (f *Folder) walk(fn func(*Folder)) {
	fn(f)
	for _, c := range f.Children() {
		c.walk(fn)
	}
}

// newFolder builds a folder of the given kind from a full record. The
// record's nested children are not attached.
func newFolder(kind FolderKind, d *ItemData) (*Folder, error) {
	if d.ID == "" {
		return nil, malformed("%s record without id", kindType(kind))
	}
	f := &Folder{id: d.ID, kind: kind, placeholder: d.ParentID == nil}
	st := &folderState{}
	switch kind {
	case KindSearch:
		st.search = &SearchFolderInfo{}
		st.view = ViewSearch
	case KindMountpoint:
		if strVal(d.OwnerID) == "" || strVal(d.RemoteID) == "" {
			return nil, malformed("mountpoint %s without owner or remote id", d.ID)
		}
		st.mount = &MountpointInfo{}
	}
	f.state.Store(st)
	f.patch(d)
	return f, nil
}

// patch publishes a new state with the fields present in d. Parent changes
// are handled by the mirror, which owns the tree.
func (f *Folder) patch(d *ItemData) {
	st := *f.st()
	if d.Name != nil {
		st.name = *d.Name
	}
	if d.ParentID != nil {
		st.parentID = *d.ParentID
	}
	if d.Flags != nil {
		st.flags = Flags(*d.Flags)
	}
	if d.Color != nil {
		st.color = *d.Color
	}
	if d.RGB != nil {
		st.rgb = *d.RGB
	}
	if d.Unread != nil {
		st.unread = *d.Unread
	}
	if d.Count != nil {
		st.count = *d.Count
	}
	if d.Size != nil {
		st.size = *d.Size
	}
	if d.View != nil {
		st.view = View(*d.View)
	}
	if d.URL != nil {
		st.url = *d.URL
	}
	if d.ModSeq != nil {
		st.modSeq = *d.ModSeq
	}
	switch f.kind {
	case KindSearch:
		search := *st.search
		if d.Query != nil {
			search.Query = *d.Query
		}
		if d.Types != nil {
			search.Types = *d.Types
		}
		if d.SortBy != nil {
			search.SortBy = *d.SortBy
		}
		st.search = &search
	case KindMountpoint:
		mount := *st.mount
		if d.OwnerID != nil {
			mount.OwnerID = *d.OwnerID
		}
		if d.OwnerName != nil {
			mount.OwnerName = *d.OwnerName
		}
		if d.RemoteID != nil {
			mount.RemoteID = *d.RemoteID
		}
		st.mount = &mount
	}
	f.state.Store(&st)
}

// setParentID records the parent id of a folder built as a nested child.
func (f *Folder) setParentID(id string) {
	st := *f.st()
	st.parentID = id
	f.state.Store(&st)
}

func kindType(k FolderKind) ItemType {
	return (&Folder{kind: k}).Type()
}
