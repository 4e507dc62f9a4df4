package zmailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/jhillyerd/enmime/v2"
)

// EmailAddresses maps lower-cased addresses to display names
type EmailAddresses map[string]string

// Message is a fetched message.
type Message struct {
	ID        string
	FolderID  string
	ConvID    string
	Flags     Flags
	Tags      string
	Subject   string
	Fragment  string
	MessageID string
	Received  time.Time
	Sent      time.Time
	Size      uint64
	ModSeq    int

	From    EmailAddresses
	To      EmailAddresses
	ReplyTo EmailAddresses
	CC      EmailAddresses
	BCC     EmailAddresses

	Headers     map[string]string
	Text        string
	HTML        string
	Attachments []Attachment
	// Raw holds the message source when it was fetched with Raw set.
	Raw string
}

// Attachment is a non-body MIME part of a message
type Attachment struct {
	Name     string
	MimeType string
	Part     string
	Size     int64
	// Content is only populated for raw fetches.
	Content []byte
}

// GetMessageParams selects how a message is fetched. Two fetches share a
// cache entry only when every field but MarkRead matches.
type GetMessageParams struct {
	ID           string
	Raw          bool
	WantHTML     bool
	NeuterImages bool
	MarkRead     bool
	// Max truncates inlined body content; zero means no limit.
	Max  int
	Part string
	// ReqHeaders is a comma separated list of extra headers to return.
	ReqHeaders string
}

func (p GetMessageParams) cacheKey() GetMessageParams {
	p.MarkRead = false
	return p
}

func (p GetMessageParams) attrs() map[string]any {
	m := map[string]any{
		"id":     p.ID,
		"read":   p.MarkRead,
		"html":   p.WantHTML,
		"neuter": p.NeuterImages,
		"raw":    p.Raw,
		"ms":     true,
	}
	if p.Part != "" {
		m["part"] = p.Part
	}
	if p.Max > 0 {
		m["max"] = p.Max
	}
	if hdrs := splitIDs(p.ReqHeaders); len(hdrs) > 0 {
		list := make([]map[string]any, len(hdrs))
		for i, h := range hdrs {
			list[i] = map[string]any{"n": h}
		}
		m["header"] = list
	}
	return map[string]any{"m": m}
}

// String returns a formatted string representation of EmailAddresses
func (e EmailAddresses) String() string {
	emails := strings.Builder{}
	i := 0
	for e, n := range e {
		if i != 0 {
			emails.WriteString(", ")
		}
		if len(n) != 0 {
			if strings.ContainsRune(n, ',') {
				emails.WriteString(fmt.Sprintf(`"%s" <%s>`, strings.ReplaceAll(n, `"`, `\"`), e))
			} else {
				emails.WriteString(fmt.Sprintf(`%s <%s>`, n, e))
			}
		} else {
			emails.WriteString(e)
		}
		i++
	}
	return emails.String()
}

// String returns a formatted string representation of a Message
func (m *Message) String() string {
	email := strings.Builder{}

	email.WriteString(fmt.Sprintf("Subject: %s\n", m.Subject))

	if len(m.To) != 0 {
		email.WriteString(fmt.Sprintf("To: %s\n", m.To))
	}
	if len(m.From) != 0 {
		email.WriteString(fmt.Sprintf("From: %s\n", m.From))
	}
	if len(m.CC) != 0 {
		email.WriteString(fmt.Sprintf("CC: %s\n", m.CC))
	}
	if len(m.Text) != 0 {
		if len(m.Text) > 20 {
			email.WriteString(fmt.Sprintf("Text: %s...", m.Text[:20]))
		} else {
			email.WriteString(fmt.Sprintf("Text: %s", m.Text))
		}
		email.WriteString(fmt.Sprintf("(%s)\n", humanize.Bytes(uint64(len(m.Text)))))
	}
	if len(m.HTML) != 0 {
		email.WriteString(fmt.Sprintf("HTML: (%s)\n", humanize.Bytes(uint64(len(m.HTML)))))
	}
	if len(m.Attachments) != 0 {
		email.WriteString(fmt.Sprintf("%d Attachment(s): %s\n", len(m.Attachments), m.Attachments))
	}
	email.WriteString(fmt.Sprintf("Size: %s\n", humanize.Bytes(m.Size)))

	return email.String()
}

// String returns a formatted string representation of an Attachment
func (a Attachment) String() string {
	size := uint64(a.Size)
	if len(a.Content) != 0 {
		size = uint64(len(a.Content))
	}
	return fmt.Sprintf("%s (%s %s)", a.Name, a.MimeType, humanize.Bytes(size))
}

// IsUnread reports whether the message carries the unread flag.
func (m *Message) IsUnread() bool { return m.Flags.Has(FlagUnread) }

// patched returns a copy of m with a modify notification applied.
func (m *Message) patched(d *HitData) *Message {
	cp := *m
	cp.patch(d)
	return &cp
}

// patch applies a modify notification.
func (m *Message) patch(d *HitData) {
	if d.FolderID != nil {
		m.FolderID = *d.FolderID
	}
	if d.ConvID != nil {
		m.ConvID = *d.ConvID
	}
	if d.Flags != nil {
		m.Flags = Flags(*d.Flags)
	}
	if d.Tags != nil {
		m.Tags = *d.Tags
	}
	if d.ModSeq != nil {
		m.ModSeq = *d.ModSeq
	}
}

type addressData struct {
	Address string `json:"a"`
	Display string `json:"p"`
	Type    string `json:"t"`
}

type headerData struct {
	Name  string `json:"n"`
	Value string `json:"_content"`
}

type mimePart struct {
	Part        string     `json:"part"`
	ContentType string     `json:"ct"`
	Size        int64      `json:"s"`
	Disposition string     `json:"cd"`
	Filename    string     `json:"filename"`
	Body        bool       `json:"body"`
	Content     string     `json:"content"`
	Parts       []mimePart `json:"mp"`
}

type messageData struct {
	HitData
	SentDate  *int64          `json:"sd,omitempty"`
	MessageID string          `json:"mid,omitempty"`
	Addresses []addressData   `json:"e,omitempty"`
	Headers   []headerData    `json:"header,omitempty"`
	Parts     []mimePart      `json:"mp,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

// rawContent accepts the raw source either as a string or as an element
// with text content.
func (d *messageData) rawContent() string {
	if len(d.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(d.Content, &s); err == nil {
		return s
	}
	var c content
	if err := json.Unmarshal(d.Content, &c); err == nil {
		return c.Content
	}
	return ""
}

func newMessage(d *messageData, log Logger) (*Message, error) {
	if d.ID == "" {
		return nil, fmt.Errorf("zmailbox GetMsg: message without id")
	}
	m := &Message{
		ID:        d.ID,
		FolderID:  strVal(d.FolderID),
		ConvID:    strVal(d.ConvID),
		Flags:     Flags(strVal(d.Flags)),
		Tags:      strVal(d.Tags),
		Subject:   strVal(d.Subject),
		Fragment:  strVal(d.Fragment),
		MessageID: d.MessageID,
		Size:      uint64(max(int64Val(d.Size), 0)),
		ModSeq:    intVal(d.ModSeq),
	}
	if d.Date != nil {
		m.Received = time.UnixMilli(*d.Date)
	}
	if d.SentDate != nil {
		m.Sent = time.UnixMilli(*d.SentDate)
	}
	if len(d.Headers) > 0 {
		m.Headers = make(map[string]string, len(d.Headers))
		for _, h := range d.Headers {
			m.Headers[h.Name] = h.Value
		}
	}
	for _, a := range d.Addresses {
		var dest *EmailAddresses
		switch a.Type {
		case "f":
			dest = &m.From
		case "t":
			dest = &m.To
		case "c":
			dest = &m.CC
		case "b":
			dest = &m.BCC
		case "r":
			dest = &m.ReplyTo
		default:
			continue
		}
		if *dest == nil {
			*dest = make(EmailAddresses)
		}
		(*dest)[strings.ToLower(a.Address)] = a.Display
	}
	m.addParts(d.Parts)

	if raw := d.rawContent(); raw != "" {
		m.Raw = raw
		if err := m.decodeRaw(raw); err != nil {
			debugLog(log, "message source could not be parsed", "id", m.ID, "error", err)
			dumpLog(log, "unparsed message source", raw)
		}
	}
	return m, nil
}

// addParts collects body text and attachments from the server's part tree.
func (m *Message) addParts(parts []mimePart) {
	for _, p := range parts {
		if len(p.Parts) > 0 {
			m.addParts(p.Parts)
			continue
		}
		switch {
		case p.Body && strings.HasPrefix(p.ContentType, "text/html"):
			m.HTML += p.Content
		case p.Body:
			m.Text += p.Content
		case p.Disposition == "attachment" || p.Filename != "":
			m.Attachments = append(m.Attachments, Attachment{
				Name:     p.Filename,
				MimeType: p.ContentType,
				Part:     p.Part,
				Size:     p.Size,
			})
		}
	}
}

// decodeRaw fills the message from its MIME source.
func (m *Message) decodeRaw(raw string) error {
	env, err := enmime.ReadEnvelope(strings.NewReader(raw))
	if err != nil {
		return err
	}
	if m.Subject == "" {
		m.Subject = env.GetHeader("Subject")
	}
	if m.MessageID == "" {
		m.MessageID = strings.Trim(env.GetHeader("Message-Id"), "<>")
	}
	m.Text = env.Text
	m.HTML = env.HTML

	m.Attachments = m.Attachments[:0]
	for _, parts := range [][]*enmime.Part{env.Attachments, env.Inlines} {
		for _, a := range parts {
			m.Attachments = append(m.Attachments, Attachment{
				Name:     a.FileName,
				MimeType: a.ContentType,
				Part:     a.PartID,
				Size:     int64(len(a.Content)),
				Content:  a.Content,
			})
		}
	}

	for _, a := range []struct {
		dest   *EmailAddresses
		header string
	}{
		{&m.From, "From"},
		{&m.ReplyTo, "Reply-To"},
		{&m.To, "To"},
		{&m.CC, "cc"},
		{&m.BCC, "bcc"},
	} {
		alist, _ := env.AddressList(a.header)
		if len(alist) == 0 {
			continue
		}
		(*a.dest) = make(map[string]string, len(alist))
		for _, addr := range alist {
			(*a.dest)[strings.ToLower(addr.Address)] = addr.Name
		}
	}
	return nil
}

// messageCache is the object cache for fetched messages.
type messageCache struct {
	*objectCache[GetMessageParams, *Message]
}

func newMessageCache(size int) *messageCache {
	if size <= 0 {
		size = DefaultMessageCacheSize
	}
	return &messageCache{newObjectCache[GetMessageParams, *Message]("message", size)}
}

func (c *messageCache) HandleRefresh(*RefreshEvent) error {
	c.purge()
	return nil
}

func (c *messageCache) HandleCreate(*CreateEvent) error { return nil }

func (c *messageCache) HandleModify(ev *ModifyEvent) error {
	if ev.Type != TypeMessage || ev.Hit == nil {
		return nil
	}
	c.replace(ev.Hit.ID, func(m *Message) *Message { return m.patched(ev.Hit) })
	return nil
}

func (c *messageCache) HandleDelete(ev *DeleteEvent) error {
	for _, id := range ev.IDs {
		c.remove(id)
	}
	return nil
}

// GetMessage fetches a message, serving it from cache when it was last
// fetched with the same parameters. A cached unread message requested with
// MarkRead is marked read on the server.
func (m *Mailbox) GetMessage(ctx context.Context, params GetMessageParams) (*Message, error) {
	if params.ID == "" {
		return nil, newClientError(ClientInvalidRequest, "message id required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if msg, ok := m.messages.get(params.ID, params.cacheKey()); ok {
		if params.MarkRead && msg.IsUnread() {
			return m.markReadLocked(ctx, msg.ID)
		}
		return msg, nil
	}

	resp, err := m.invokeLocked(ctx, NewRequest("GetMsgRequest", params.attrs()))
	if err != nil {
		return nil, err
	}
	var r struct {
		Messages []messageData `json:"m"`
	}
	if err := resp.Decode(&r); err != nil {
		return nil, fmt.Errorf("zmailbox GetMsg: %w", err)
	}
	if len(r.Messages) == 0 {
		return nil, &Fault{Code: FaultNoSuchMessage, Reason: "no such message: " + params.ID, Request: "GetMsgRequest"}
	}
	msg, err := newMessage(&r.Messages[0], m.log)
	if err != nil {
		return nil, err
	}
	m.messages.put(params.ID, params.cacheKey(), msg)
	return msg, nil
}

// GetMessageFromCache returns the cached message for id, or nil.
func (m *Mailbox) GetMessageFromCache(id string) *Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, _ := m.messages.peek(id)
	return msg
}

// ClearMessageCache drops every cached message.
func (m *Mailbox) ClearMessageCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages.purge()
}

// markReadLocked marks a cached message read and returns the cached copy
// that reflects it.
func (m *Mailbox) markReadLocked(ctx context.Context, id string) (*Message, error) {
	_, err := m.invokeLocked(ctx, NewRequest("MsgActionRequest", map[string]any{
		"action": map[string]any{"id": id, "op": "read"},
	}))
	if err != nil {
		return nil, err
	}
	// Without a notification session no modify event will follow.
	m.messages.replace(id, func(msg *Message) *Message {
		if !msg.IsUnread() {
			return msg
		}
		cp := *msg
		cp.Flags = cp.Flags.Without(FlagUnread)
		return &cp
	})
	msg, ok := m.messages.peek(id)
	if !ok {
		return nil, &Fault{Code: FaultNoSuchMessage, Reason: "no such message: " + id, Request: "MsgActionRequest"}
	}
	return msg, nil
}
