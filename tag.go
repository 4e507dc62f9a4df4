package zmailbox

import "sync/atomic"

// Tag is a mirrored tag. Like Folder, changes publish a new state, so a
// Tag can be read without the mailbox lock.
type Tag struct {
	id    string
	state atomic.Pointer[tagState]
}

type tagState struct {
	name   string
	color  int
	rgb    string
	unread int
}

func (t *Tag) ID() string       { return t.id }
func (t *Tag) Type() ItemType   { return TypeTag }
func (t *Tag) Name() string     { return t.state.Load().name }
func (t *Tag) Color() int       { return t.state.Load().color }
func (t *Tag) RGB() string      { return t.state.Load().rgb }
func (t *Tag) UnreadCount() int { return t.state.Load().unread }

func newTag(d *ItemData) (*Tag, error) {
	if d.ID == "" {
		return nil, malformed("tag record without id")
	}
	t := &Tag{id: d.ID}
	t.state.Store(&tagState{})
	t.patch(d)
	return t, nil
}

// patch publishes a new state with the fields present in d. Renames are
// re-keyed by the mirror.
func (t *Tag) patch(d *ItemData) {
	st := *t.state.Load()
	if d.Name != nil {
		st.name = *d.Name
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
	t.state.Store(&st)
}
