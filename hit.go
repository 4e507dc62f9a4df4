package zmailbox

import (
	"time"
)

// Hit is one search result: a message, conversation, contact, appointment
// or task. Only the fields needed for display and cache coherence are kept.
type Hit struct {
	ID        string
	Type      ItemType
	FolderID  string
	ConvID    string
	Flags     Flags
	Tags      string
	Subject   string
	Fragment  string
	Name      string
	Date      time.Time
	Size      int64
	SortField string
	ModSeq    int

	// Conversation counters.
	MessageCount int
	UnreadCount  int
}

func newHit(t ItemType, d *HitData) *Hit {
	h := &Hit{ID: d.ID, Type: t}
	h.patch(d)
	return h
}

// patch copies the mutable fields present in d.
func (h *Hit) patch(d *HitData) {
	if d.FolderID != nil {
		h.FolderID = *d.FolderID
	}
	if d.ConvID != nil {
		h.ConvID = *d.ConvID
	}
	if d.Flags != nil {
		h.Flags = Flags(*d.Flags)
	}
	if d.Tags != nil {
		h.Tags = *d.Tags
	}
	if d.Subject != nil {
		h.Subject = *d.Subject
	}
	if d.Fragment != nil {
		h.Fragment = *d.Fragment
	}
	if d.Name != nil {
		h.Name = *d.Name
	} else if d.FileAs != nil {
		h.Name = *d.FileAs
	}
	if d.Date != nil {
		h.Date = time.UnixMilli(*d.Date)
	}
	if d.Size != nil {
		h.Size = *d.Size
	}
	if d.SortField != nil {
		h.SortField = *d.SortField
	}
	if d.ModSeq != nil {
		h.ModSeq = *d.ModSeq
	}
	if d.Count != nil {
		h.MessageCount = *d.Count
	}
	if d.Unread != nil {
		h.UnreadCount = *d.Unread
	}
}

// IsUnread reports whether the hit carries the unread flag, or for
// conversations whether any message is unread.
func (h *Hit) IsUnread() bool {
	return h.Flags.Has(FlagUnread) || h.UnreadCount > 0
}

// TagIDs splits the hit's tag list.
func (h *Hit) TagIDs() []string {
	return splitIDs(h.Tags)
}
