package zmailbox

// ItemType identifies the kind of record an event refers to.
type ItemType int

const (
	TypeUnknown ItemType = iota
	TypeFolder
	TypeSearchFolder
	TypeMountpoint
	TypeTag
	TypeMessage
	TypeConversation
	TypeContact
	TypeAppointment
	TypeTask
	TypeMailbox
)

var itemTypeNames = [...]string{
	TypeUnknown:      "unknown",
	TypeFolder:       "folder",
	TypeSearchFolder: "search",
	TypeMountpoint:   "link",
	TypeTag:          "tag",
	TypeMessage:      "message",
	TypeConversation: "conversation",
	TypeContact:      "contact",
	TypeAppointment:  "appointment",
	TypeTask:         "task",
	TypeMailbox:      "mailbox",
}

func (t ItemType) String() string {
	if t < 0 || int(t) >= len(itemTypeNames) {
		return "unknown"
	}
	return itemTypeNames[t]
}

// isFolderType reports whether records of type t live in the folder tree.
func (t ItemType) isFolderType() bool {
	return t == TypeFolder || t == TypeSearchFolder || t == TypeMountpoint
}

// isCalendarType reports whether t is an appointment or task.
func (t ItemType) isCalendarType() bool {
	return t == TypeAppointment || t == TypeTask
}

// RefreshEvent announces a full resynchronization. Folders is nil when only
// the tag list was reloaded. HasTags is false when only folders were; when
// set, Tags is the complete list and may be empty.
type RefreshEvent struct {
	Size      int64
	SizeKnown bool
	Folders   *ItemData
	Tags      []ItemData
	HasTags   bool
}

// CreateEvent announces a newly created item. Exactly one of Item and Hit
// is set, depending on Type.
type CreateEvent struct {
	Type ItemType
	Item *ItemData
	Hit  *HitData
}

// ID returns the id of the created item.
func (e *CreateEvent) ID() string {
	if e.Item != nil {
		return e.Item.ID
	}
	if e.Hit != nil {
		return e.Hit.ID
	}
	return ""
}

// ModifyEvent carries a partial record for an existing item. Item, Hit or
// Mailbox is set depending on Type.
type ModifyEvent struct {
	Type    ItemType
	Item    *ItemData
	Hit     *HitData
	Mailbox *MailboxData
}

// ID returns the id of the modified item, or "" for mailbox records.
func (e *ModifyEvent) ID() string {
	if e.Item != nil {
		return e.Item.ID
	}
	if e.Hit != nil {
		return e.Hit.ID
	}
	return ""
}

// DeleteEvent lists the ids deleted by one notification fragment.
type DeleteEvent struct {
	IDs []string
}

// Handler receives every change applied to a Mailbox, in order. Handlers
// run with the mailbox lock held and must not call back into the Mailbox.
type Handler interface {
	HandleRefresh(ev *RefreshEvent) error
	HandleCreate(ev *CreateEvent) error
	HandleModify(ev *ModifyEvent) error
	HandleDelete(ev *DeleteEvent) error
}

// HandlerFuncs implements Handler with optional callbacks. Nil callbacks
// ignore their event.
type HandlerFuncs struct {
	OnRefresh func(ev *RefreshEvent) error
	OnCreate  func(ev *CreateEvent) error
	OnModify  func(ev *ModifyEvent) error
	OnDelete  func(ev *DeleteEvent) error
}

func (h HandlerFuncs) HandleRefresh(ev *RefreshEvent) error {
	if h.OnRefresh == nil {
		return nil
	}
	return h.OnRefresh(ev)
}

func (h HandlerFuncs) HandleCreate(ev *CreateEvent) error {
	if h.OnCreate == nil {
		return nil
	}
	return h.OnCreate(ev)
}

func (h HandlerFuncs) HandleModify(ev *ModifyEvent) error {
	if h.OnModify == nil {
		return nil
	}
	return h.OnModify(ev)
}

func (h HandlerFuncs) HandleDelete(ev *DeleteEvent) error {
	if h.OnDelete == nil {
		return nil
	}
	return h.OnDelete(ev)
}
