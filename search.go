package zmailbox

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mitchellh/hashstructure/v2"
)

// Search result types.
const (
	SearchConversation = "conversation"
	SearchMessage      = "message"
	SearchContact      = "contact"
	SearchAppointment  = "appointment"
	SearchTask         = "task"
	SearchDocument     = "document"
)

// Sort orders understood by the server.
const (
	SortDateDesc    = "dateDesc"
	SortDateAsc     = "dateAsc"
	SortSubjectAsc  = "subjAsc"
	SortSubjectDesc = "subjDesc"
	SortNameAsc     = "nameAsc"
	SortNone        = "none"
)

// DefaultSearchLimit is the page size used when SearchParams.Limit is zero.
const DefaultSearchLimit = 25

// SearchParams describes a search.
type SearchParams struct {
	Query string
	// Types defaults to conversations, or to messages when searching
	// within a conversation.
	Types  []string
	SortBy string
	Limit  int
	// Offset is used by uncached searches; paged searches compute it.
	Offset int
	Cursor *Cursor

	TimeZone string
	// CalExpandStart and CalExpandEnd expand recurring calendar items
	// into instances within the window when both are set.
	CalExpandStart time.Time
	CalExpandEnd   time.Time
}

// Cursor continues a search after the given hit.
type Cursor struct {
	ID        string
	SortValue string
}

// SearchResult is one page of hits.
type SearchResult struct {
	Hits   []*Hit
	More   bool
	Offset int
	SortBy string
	// Page is set for results returned by the paged search methods.
	Page int

	// cal keeps the raw calendar records for instance expansion.
	cal []calHit
}

type calHit struct {
	typ  ItemType
	data *HitData
}

type searchResponse struct {
	SortBy        string    `json:"sortBy"`
	Offset        int       `json:"offset"`
	More          bool      `json:"more"`
	Messages      []HitData `json:"m"`
	Conversations []HitData `json:"c"`
	Contacts      []HitData `json:"cn"`
	Appointments  []HitData `json:"appt"`
	Tasks         []HitData `json:"task"`
}

func (r *searchResponse) result() *SearchResult {
	res := &SearchResult{More: r.More, Offset: r.Offset, SortBy: r.SortBy}
	kinds := 0
	add := func(t ItemType, hits []HitData) {
		if len(hits) > 0 {
			kinds++
		}
		for i := range hits {
			res.Hits = append(res.Hits, newHit(t, &hits[i]))
		}
	}
	add(TypeConversation, r.Conversations)
	add(TypeMessage, r.Messages)
	add(TypeContact, r.Contacts)
	add(TypeAppointment, r.Appointments)
	add(TypeTask, r.Tasks)
	if kinds > 1 {
		sortHits(res.Hits, r.SortBy)
	}
	for i := range r.Appointments {
		res.cal = append(res.cal, calHit{TypeAppointment, &r.Appointments[i]})
	}
	for i := range r.Tasks {
		res.cal = append(res.cal, calHit{TypeTask, &r.Tasks[i]})
	}
	return res
}

// sortHits restores the server order of a page holding several item
// types, which the response lists per type. Every hit must carry a sort
// value; otherwise the grouped order is kept.
func sortHits(hits []*Hit, sortBy string) {
	if sortBy == "" || sortBy == SortNone {
		return
	}
	for _, h := range hits {
		if h.SortField == "" {
			return
		}
	}
	desc := strings.HasSuffix(sortBy, "Desc")
	slices.SortStableFunc(hits, func(a, b *Hit) int {
		c := compareSortValues(a.SortField, b.SortField)
		if desc {
			return -c
		}
		return c
	})
}

// compareSortValues orders numeric sort values (dates, sizes) by value
// and everything else case-insensitively.
func compareSortValues(a, b string) int {
	x, errA := strconv.ParseInt(a, 10, 64)
	y, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return cmp.Compare(x, y)
	}
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

// normalize fills in defaults so equivalent searches share a signature.
func (p SearchParams) normalize(conv bool) SearchParams {
	if p.Limit <= 0 {
		p.Limit = DefaultSearchLimit
	}
	if len(p.Types) == 0 {
		if conv {
			p.Types = []string{SearchMessage}
		} else {
			p.Types = []string{SearchConversation}
		}
	}
	types := make([]string, len(p.Types))
	for i, t := range p.Types {
		types[i] = strings.ToLower(strings.TrimSpace(t))
	}
	slices.Sort(types)
	p.Types = slices.Compact(types)
	return p
}

func (p SearchParams) attrs() map[string]any {
	a := map[string]any{
		"query": p.Query,
		"types": strings.Join(p.Types, ","),
		"limit": p.Limit,
	}
	if p.SortBy != "" {
		a["sortBy"] = p.SortBy
	}
	if p.Offset > 0 {
		a["offset"] = p.Offset
	}
	if p.Cursor != nil {
		a["cursor"] = map[string]any{"id": p.Cursor.ID, "sortVal": p.Cursor.SortValue}
	}
	if p.TimeZone != "" {
		a["tz"] = map[string]any{"id": p.TimeZone}
	}
	if !p.CalExpandStart.IsZero() && !p.CalExpandEnd.IsZero() {
		a["calExpandInstStart"] = p.CalExpandStart.UnixMilli()
		a["calExpandInstEnd"] = p.CalExpandEnd.UnixMilli()
	}
	return a
}

type searchKey struct {
	Query    string
	Types    []string
	SortBy   string
	Limit    int
	ConvID   string
	TimeZone string
	Start    int64
	End      int64
}

// signature hashes the parameters that select a result set. Offset and
// cursor only select a page and are left out.
func signature(p SearchParams, convID string) (string, error) {
	key := searchKey{
		Query:    p.Query,
		Types:    p.Types,
		SortBy:   p.SortBy,
		Limit:    p.Limit,
		ConvID:   convID,
		TimeZone: p.TimeZone,
	}
	if !p.CalExpandStart.IsZero() {
		key.Start = p.CalExpandStart.UnixMilli()
	}
	if !p.CalExpandEnd.IsZero() {
		key.End = p.CalExpandEnd.UnixMilli()
	}
	h, err := hashstructure.Hash(key, hashstructure.FormatV2, nil)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(h, 16), nil
}

// pagerEntry holds the fetched pages of one search.
type pagerEntry struct {
	params SearchParams
	pages  map[int]*SearchResult
	// refs counts the occurrences of each hit id across pages.
	refs map[string]int
}

func newPagerEntry(p SearchParams) *pagerEntry {
	return &pagerEntry{params: p, pages: make(map[int]*SearchResult), refs: make(map[string]int)}
}

func (e *pagerEntry) store(page int, r *SearchResult) {
	if old, ok := e.pages[page]; ok {
		for _, h := range old.Hits {
			e.unref(h.ID)
		}
	}
	r.Page = page
	e.pages[page] = r
	for _, h := range r.Hits {
		e.refs[h.ID]++
	}
}

// snapshot copies r so callers never share the page's hit slice.
func (r *SearchResult) snapshot() *SearchResult {
	cp := *r
	cp.Hits = slices.Clone(r.Hits)
	return &cp
}

func (e *pagerEntry) unref(id string) {
	if e.refs[id] <= 1 {
		delete(e.refs, id)
		return
	}
	e.refs[id]--
}

func (e *pagerEntry) reset() {
	e.pages = make(map[int]*SearchResult)
	e.refs = make(map[string]int)
}

func (e *pagerEntry) patch(d *HitData) {
	if e.refs[d.ID] == 0 {
		return
	}
	for _, r := range e.pages {
		for i, h := range r.Hits {
			if h.ID == d.ID {
				nh := *h
				nh.patch(d)
				r.Hits[i] = &nh
			}
		}
	}
}

func (e *pagerEntry) remove(id string) {
	if e.refs[id] == 0 {
		return
	}
	for _, r := range e.pages {
		r.Hits = slices.DeleteFunc(slices.Clone(r.Hits), func(h *Hit) bool { return h.ID == id })
	}
	delete(e.refs, id)
}

type searchFetcher func(ctx context.Context, p SearchParams) (*SearchResult, error)

// searchCache is a bounded set of paged searches. It is a Handler: hits
// are patched on modify, dropped on delete and everything is discarded on
// refresh.
type searchCache struct {
	name    string
	conv    bool
	entries *lru.Cache[string, *pagerEntry]
}

func newSearchCache(name string, conv bool, size int) *searchCache {
	if size <= 0 {
		size = DefaultSearchCacheSize
	}
	entries, err := lru.New[string, *pagerEntry](size)
	if err != nil {
		panic(err)
	}
	return &searchCache{name: name, conv: conv, entries: entries}
}

// search returns page of the search described by params, fetching it if
// it is not cached or useCache is false.
func (c *searchCache) search(ctx context.Context, convID string, params SearchParams, page int, useCache, useCursor bool, fetch searchFetcher) (*SearchResult, error) {
	if page < 0 {
		return nil, newClientError(ClientInvalidRequest, "negative page %d", page)
	}
	params = params.normalize(c.conv)
	params.Offset, params.Cursor = 0, nil
	sig, err := signature(params, convID)
	if err != nil {
		return nil, err
	}

	// A new entry joins the cache only once a page has been stored, so a
	// failed fetch evicts nothing.
	e, cached := c.entries.Get(sig)
	if !cached {
		e = newPagerEntry(params)
	}
	keep := func(n int, r *SearchResult) {
		e.store(n, r)
		if !cached {
			c.entries.Add(sig, e)
			cached = true
		}
	}
	if !useCache {
		e.reset()
	}
	if r, ok := e.pages[page]; ok {
		observeLookup(c.name, true)
		return r.snapshot(), nil
	}
	observeLookup(c.name, false)

	if !useCursor || page == 0 {
		p := params
		p.Offset = page * p.Limit
		r, err := fetch(ctx, p)
		if err != nil {
			return nil, err
		}
		keep(page, r)
		return r.snapshot(), nil
	}

	// Walk forward from the last cached page before the one requested.
	k := page - 1
	for k >= 0 && e.pages[k] == nil {
		k--
	}
	if k < 0 {
		r, err := fetch(ctx, params)
		if err != nil {
			return nil, err
		}
		keep(0, r)
		k = 0
	}
	for next := k + 1; next <= page; next++ {
		prev := e.pages[next-1]
		if !prev.More || len(prev.Hits) == 0 {
			return &SearchResult{Page: page, SortBy: prev.SortBy}, nil
		}
		last := prev.Hits[len(prev.Hits)-1]
		p := params
		p.Cursor = &Cursor{ID: last.ID, SortValue: last.SortField}
		r, err := fetch(ctx, p)
		if err != nil {
			return nil, err
		}
		keep(next, r)
	}
	return e.pages[page].snapshot(), nil
}

// clear drops every entry, or only those whose types include typ.
func (c *searchCache) clear(typ string) {
	if typ == "" {
		c.entries.Purge()
		return
	}
	typ = strings.ToLower(typ)
	for _, k := range c.entries.Keys() {
		if e, ok := c.entries.Peek(k); ok && slices.Contains(e.params.Types, typ) {
			c.entries.Remove(k)
		}
	}
}

func (c *searchCache) each(fn func(*pagerEntry)) {
	for _, k := range c.entries.Keys() {
		if e, ok := c.entries.Peek(k); ok {
			fn(e)
		}
	}
}

func (c *searchCache) HandleRefresh(*RefreshEvent) error {
	c.entries.Purge()
	return nil
}

func (c *searchCache) HandleCreate(*CreateEvent) error { return nil }

func (c *searchCache) HandleModify(ev *ModifyEvent) error {
	if ev.Hit == nil {
		return nil
	}
	c.each(func(e *pagerEntry) { e.patch(ev.Hit) })
	return nil
}

func (c *searchCache) HandleDelete(ev *DeleteEvent) error {
	c.each(func(e *pagerEntry) {
		for _, id := range ev.IDs {
			e.remove(id)
		}
	})
	return nil
}

// searchLocked runs one uncached search. A non-empty convID searches
// within that conversation.
func (m *Mailbox) searchLocked(ctx context.Context, convID string, p SearchParams) (*SearchResult, error) {
	p = p.normalize(convID != "")
	name := "SearchRequest"
	a := p.attrs()
	if convID != "" {
		name = "SearchConvRequest"
		a["cid"] = convID
	}
	resp, err := m.invokeLocked(ctx, NewRequest(name, a))
	if err != nil {
		return nil, err
	}
	var sr searchResponse
	if err := resp.Decode(&sr); err != nil {
		return nil, fmt.Errorf("zmailbox %s: %w", name, err)
	}
	return sr.result(), nil
}

// Search runs p without caching, honoring p.Offset and p.Cursor.
func (m *Mailbox) Search(ctx context.Context, p SearchParams) (*SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.searchLocked(ctx, "", p)
}

// SearchPage returns page of p's result set. Pages are cached per search
// and kept current by notifications; useCache false drops what is cached
// for p first. With useCursor pages after the first are fetched by cursor
// from the last hit of the previous page.
func (m *Mailbox) SearchPage(ctx context.Context, p SearchParams, page int, useCache, useCursor bool) (*SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.search.search(ctx, "", p, page, useCache, useCursor, func(ctx context.Context, p SearchParams) (*SearchResult, error) {
		return m.searchLocked(ctx, "", p)
	})
}

// SearchConversation searches the messages of one conversation without
// caching.
func (m *Mailbox) SearchConversation(ctx context.Context, convID string, p SearchParams) (*SearchResult, error) {
	if convID == "" {
		return nil, newClientError(ClientInvalidRequest, "conversation id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.searchLocked(ctx, convID, p)
}

// SearchConversationPage is SearchPage within one conversation.
func (m *Mailbox) SearchConversationPage(ctx context.Context, convID string, p SearchParams, page int, useCache, useCursor bool) (*SearchResult, error) {
	if convID == "" {
		return nil, newClientError(ClientInvalidRequest, "conversation id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.convSearch.search(ctx, convID, p, page, useCache, useCursor, func(ctx context.Context, p SearchParams) (*SearchResult, error) {
		return m.searchLocked(ctx, convID, p)
	})
}

// ClearSearchCache drops cached searches whose types include typ, or all of
// them when typ is empty.
func (m *Mailbox) ClearSearchCache(typ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.search.clear(typ)
	m.convSearch.clear(typ)
}
