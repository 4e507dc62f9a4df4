package zmailbox

import (
	"fmt"
	"sort"
)

// processor applies notification blocks to the mirror and then to every
// other registered handler, in registration order.
type processor struct {
	mirror   *Mirror
	handlers []Handler
	maxSeq   int
	log      Logger
}

func newProcessor(mirror *Mirror, log Logger) *processor {
	return &processor{mirror: mirror, handlers: []Handler{mirror}, log: log}
}

func (p *processor) addHandler(h Handler) {
	p.handlers = append(p.handlers, h)
}

// apply processes one response context. A refresh supersedes any notify
// fragments in the same block. Work done before an error is kept.
func (p *processor) apply(c *Context) error {
	if c == nil {
		return nil
	}
	if c.Refresh == nil && len(c.Notify) == 0 {
		return nil
	}
	dumpLog(p.log, "applying notifications", c)

	if c.Refresh != nil {
		return p.refresh(c.Refresh)
	}

	fragments := append([]Notify(nil), c.Notify...)
	sort.SliceStable(fragments, func(i, j int) bool { return fragments[i].Seq < fragments[j].Seq })
	for i := range fragments {
		n := &fragments[i]
		if n.Seq != 0 && n.Seq <= p.maxSeq {
			debugLog(p.log, "skipping redelivered notification", "seq", n.Seq, "max", p.maxSeq)
			continue
		}
		if n.Seq > p.maxSeq {
			p.maxSeq = n.Seq
		}
		if err := p.notify(n); err != nil {
			return fmt.Errorf("zmailbox notify seq %d: %w", n.Seq, err)
		}
	}
	return nil
}

func (p *processor) refresh(r *Refresh) error {
	// A refresh always replaces the tag list, even when it carries none.
	ev := &RefreshEvent{HasTags: true}
	for _, mbx := range r.Mailbox {
		if mbx.AccountID == "" || mbx.AccountID == p.mirror.ownAccountID {
			ev.Size, ev.SizeKnown = mbx.Size, true
			break
		}
	}
	if len(r.Folders) > 0 {
		ev.Folders = &r.Folders[0]
	}
	if r.Tags != nil {
		ev.Tags = r.Tags.Tags
	}
	p.maxSeq = 0
	notificationsTotal.WithLabelValues("refresh").Inc()
	return p.dispatchRefresh(ev)
}

func (p *processor) dispatchRefresh(ev *RefreshEvent) error {
	for _, h := range p.handlers {
		if err := h.HandleRefresh(ev); err != nil {
			return err
		}
	}
	return nil
}

func (p *processor) notify(n *Notify) error {
	if ids := n.Deleted.List(); len(ids) > 0 {
		notificationsTotal.WithLabelValues("delete").Add(float64(len(ids)))
		ev := &DeleteEvent{IDs: ids}
		for _, h := range p.handlers {
			if err := h.HandleDelete(ev); err != nil {
				return err
			}
		}
	}

	if n.Created != nil {
		err := p.created(n.Created)
		p.mirror.resolvePending()
		if err != nil {
			return err
		}
	}

	if n.Modified != nil {
		if err := p.modified(n.Modified); err != nil {
			return err
		}
	}
	return nil
}

func (p *processor) created(set *ItemSet) error {
	var events []*CreateEvent
	for _, g := range itemGroups(set) {
		for i := range g.items {
			events = append(events, &CreateEvent{Type: g.typ, Item: &g.items[i]})
		}
	}
	for _, g := range hitGroups(set) {
		for i := range g.hits {
			if g.hits[i].ID == "" {
				return malformed("created %s without id", g.typ)
			}
			events = append(events, &CreateEvent{Type: g.typ, Hit: &g.hits[i]})
		}
	}
	for _, ev := range events {
		notificationsTotal.WithLabelValues("create").Inc()
		for _, h := range p.handlers {
			if err := h.HandleCreate(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *processor) modified(set *ItemSet) error {
	var events []*ModifyEvent
	for _, g := range itemGroups(set) {
		for i := range g.items {
			events = append(events, &ModifyEvent{Type: g.typ, Item: &g.items[i]})
		}
	}
	for _, g := range hitGroups(set) {
		for i := range g.hits {
			if g.hits[i].ID == "" {
				return malformed("modified %s without id", g.typ)
			}
			events = append(events, &ModifyEvent{Type: g.typ, Hit: &g.hits[i]})
		}
	}
	for i := range set.Mailbox {
		events = append(events, &ModifyEvent{Type: TypeMailbox, Mailbox: &set.Mailbox[i]})
	}
	for _, ev := range events {
		notificationsTotal.WithLabelValues("modify").Inc()
		for _, h := range p.handlers {
			if err := h.HandleModify(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

type itemGroup struct {
	typ   ItemType
	items []ItemData
}

type hitGroup struct {
	typ  ItemType
	hits []HitData
}

// itemGroups orders folder-tree records so that folders come before the
// search folders and mountpoints that may live inside them.
func itemGroups(set *ItemSet) []itemGroup {
	return []itemGroup{
		{TypeFolder, set.Folders},
		{TypeSearchFolder, set.Searches},
		{TypeMountpoint, set.Links},
		{TypeTag, set.Tags},
	}
}

func hitGroups(set *ItemSet) []hitGroup {
	return []hitGroup{
		{TypeMessage, set.Messages},
		{TypeConversation, set.Conversations},
		{TypeContact, set.Contacts},
		{TypeAppointment, set.Appointments},
		{TypeTask, set.Tasks},
	}
}
