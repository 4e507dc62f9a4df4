package zmailbox

import "encoding/json"

// Namespaces used in request bodies.
const (
	NamespaceMail    = "urn:zimbraMail"
	NamespaceAccount = "urn:zimbraAccount"
	NamespaceContext = "urn:zimbra"
)

// Request is one operation sent through an Invoker.
type Request struct {
	// Name is the element name, e.g. "GetFolderRequest".
	Name string
	// Namespace defaults to NamespaceMail.
	Namespace string
	// Attrs is marshaled as the request element's body.
	Attrs map[string]any

	// Session state, filled in by the Mailbox before invoking.
	SessionID string
	NoSession bool
	NotifySeq int
	// TargetAccount routes the request to another account when non-empty.
	TargetAccount string
}

// Response is the decoded reply to a Request.
type Response struct {
	Name string
	Body json.RawMessage
	// Context is the notification block from the response header, if any.
	Context *Context
}

// Decode unmarshals the response element into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// Context is the header block carried by every response.
type Context struct {
	Session *SessionInfo `json:"session,omitempty"`
	Change  *ChangeInfo  `json:"change,omitempty"`
	Refresh *Refresh     `json:"refresh,omitempty"`
	Notify  []Notify     `json:"notify,omitempty"`
}

// SessionInfo identifies the server-side notification session.
type SessionInfo struct {
	ID string `json:"id"`
}

// ChangeInfo carries the mailbox change token.
type ChangeInfo struct {
	Token int `json:"token"`
}

// Refresh is a complete snapshot of the mailbox's folders and tags.
type Refresh struct {
	Mailbox []MailboxData `json:"mbx,omitempty"`
	Folders []ItemData    `json:"folder,omitempty"`
	Tags    *TagList      `json:"tags,omitempty"`
}

// TagList wraps the tag records of a Refresh.
type TagList struct {
	Tags []ItemData `json:"tag,omitempty"`
}

// Notify is one incremental change fragment.
type Notify struct {
	Seq      int         `json:"seq"`
	Deleted  *DeletedSet `json:"deleted,omitempty"`
	Created  *ItemSet    `json:"created,omitempty"`
	Modified *ItemSet    `json:"modified,omitempty"`
}

// DeletedSet lists deleted item ids as a comma separated string.
type DeletedSet struct {
	IDs string `json:"id"`
}

// List splits the deleted ids.
func (d *DeletedSet) List() []string {
	if d == nil {
		return nil
	}
	return splitIDs(d.IDs)
}

// ItemSet groups changed records by item type.
type ItemSet struct {
	Folders       []ItemData    `json:"folder,omitempty"`
	Searches      []ItemData    `json:"search,omitempty"`
	Links         []ItemData    `json:"link,omitempty"`
	Tags          []ItemData    `json:"tag,omitempty"`
	Messages      []HitData     `json:"m,omitempty"`
	Conversations []HitData     `json:"c,omitempty"`
	Contacts      []HitData     `json:"cn,omitempty"`
	Appointments  []HitData     `json:"appt,omitempty"`
	Tasks         []HitData     `json:"task,omitempty"`
	Mailbox       []MailboxData `json:"mbx,omitempty"`
}

// MailboxData carries mailbox-wide attributes.
type MailboxData struct {
	Size int64 `json:"s"`
	// AccountID is set when the record describes another account's mailbox.
	AccountID string `json:"acct,omitempty"`
}

// ItemData is the wire record for folders, search folders, mountpoints and
// tags. Pointer fields are absent from partial (modify) records.
type ItemData struct {
	ID        string  `json:"id"`
	Name      *string `json:"name,omitempty"`
	ParentID  *string `json:"l,omitempty"`
	Flags     *string `json:"f,omitempty"`
	Color     *int    `json:"color,omitempty"`
	RGB       *string `json:"rgb,omitempty"`
	Unread    *int    `json:"u,omitempty"`
	Count     *int    `json:"n,omitempty"`
	Size      *int64  `json:"s,omitempty"`
	View      *string `json:"view,omitempty"`
	URL       *string `json:"url,omitempty"`
	ModSeq    *int    `json:"ms,omitempty"`
	Query     *string `json:"query,omitempty"`
	Types     *string `json:"types,omitempty"`
	SortBy    *string `json:"sortBy,omitempty"`
	OwnerID   *string `json:"zid,omitempty"`
	OwnerName *string `json:"owner,omitempty"`
	RemoteID  *string `json:"rid,omitempty"`

	Folders  []ItemData `json:"folder,omitempty"`
	Searches []ItemData `json:"search,omitempty"`
	Links    []ItemData `json:"link,omitempty"`
}

// HitData is the wire record for messages, conversations, contacts,
// appointments and tasks, as found both in search results and in
// notifications.
type HitData struct {
	ID        string  `json:"id"`
	FolderID  *string `json:"l,omitempty"`
	ConvID    *string `json:"cid,omitempty"`
	Flags     *string `json:"f,omitempty"`
	Tags      *string `json:"t,omitempty"`
	Subject   *string `json:"su,omitempty"`
	Fragment  *string `json:"fr,omitempty"`
	Date      *int64  `json:"d,omitempty"`
	Size      *int64  `json:"s,omitempty"`
	ModSeq    *int    `json:"ms,omitempty"`
	SortField *string `json:"sf,omitempty"`
	Count     *int    `json:"n,omitempty"`
	Unread    *int    `json:"u,omitempty"`
	Name      *string `json:"name,omitempty"`
	FileAs    *string `json:"fileAsStr,omitempty"`

	Attrs map[string]string `json:"_attrs,omitempty"`

	InviteID  *string        `json:"invId,omitempty"`
	Location  *string        `json:"loc,omitempty"`
	Status    *string        `json:"status,omitempty"`
	AllDay    *bool          `json:"allDay,omitempty"`
	Duration  *int64         `json:"dur,omitempty"`
	TZOffset  *int64         `json:"tzo,omitempty"`
	Instances []InstanceData `json:"inst,omitempty"`
}

// InstanceData is one expanded occurrence of a calendar item.
type InstanceData struct {
	Start        *int64  `json:"s,omitempty"`
	RecurrenceID *string `json:"ridZ,omitempty"`
	TZOffset     *int64  `json:"tzo,omitempty"`
	Duration     *int64  `json:"dur,omitempty"`
	AllDay       *bool   `json:"allDay,omitempty"`
	Exception    *bool   `json:"ex,omitempty"`
	InviteID     *string `json:"invId,omitempty"`
	Name         *string `json:"name,omitempty"`
	Fragment     *string `json:"fr,omitempty"`
	Location     *string `json:"loc,omitempty"`
	Status       *string `json:"status,omitempty"`
}

// content wraps a text value the way the server expects element content.
type content struct {
	Content string `json:"_content"`
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func intVal(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func int64Val(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func boolVal(p *bool) bool {
	return p != nil && *p
}
