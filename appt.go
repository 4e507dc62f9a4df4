package zmailbox

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	apptSearchLimit    = 2000
	apptSearchMaxPages = 100
)

type apptKey struct {
	folderID string
	start    int64
	end      int64
	tz       string
	query    string
}

// apptCache holds expanded calendar instances per folder and window, and
// mini-calendar dates per window and folder set. Any change to a calendar
// item clears all of it: recurrence expansion cannot be patched locally.
type apptCache struct {
	summaries map[apptKey]*ApptSummaryResult
	miniCal   map[string][]string

	// ids and folders referenced by cached results, checked on delete.
	ids     map[string]struct{}
	folders map[string]struct{}
}

func newApptCache() *apptCache {
	c := &apptCache{}
	c.clear()
	return c
}

func (c *apptCache) clear() {
	c.summaries = make(map[apptKey]*ApptSummaryResult)
	c.miniCal = make(map[string][]string)
	c.ids = make(map[string]struct{})
	c.folders = make(map[string]struct{})
}

func (c *apptCache) get(k apptKey) (*ApptSummaryResult, bool) {
	r, ok := c.summaries[k]
	observeLookup("appt", ok)
	return r, ok
}

func (c *apptCache) add(k apptKey, r *ApptSummaryResult) {
	c.summaries[k] = r
	c.folders[k.folderID] = struct{}{}
	for _, a := range r.Appointments {
		c.ids[a.ID] = struct{}{}
		if a.FolderID != "" {
			c.folders[a.FolderID] = struct{}{}
		}
	}
}

func miniCalKey(start, end time.Time, folderIDs []string) string {
	return fmt.Sprintf("%d-%d-%s", start.UnixMilli(), end.UnixMilli(), strings.Join(sortedCopy(folderIDs), ","))
}

func (c *apptCache) getMiniCal(key string) ([]string, bool) {
	dates, ok := c.miniCal[key]
	observeLookup("minical", ok)
	return dates, ok
}

func (c *apptCache) putMiniCal(key string, folderIDs []string, dates []string) {
	c.miniCal[key] = dates
	for _, id := range folderIDs {
		c.folders[id] = struct{}{}
	}
}

func (c *apptCache) empty() bool {
	return len(c.summaries) == 0 && len(c.miniCal) == 0
}

func (c *apptCache) HandleRefresh(*RefreshEvent) error {
	c.clear()
	return nil
}

func (c *apptCache) HandleCreate(ev *CreateEvent) error {
	if ev.Type.isCalendarType() && !c.empty() {
		c.clear()
	}
	return nil
}

func (c *apptCache) HandleModify(ev *ModifyEvent) error {
	if ev.Type.isCalendarType() && !c.empty() {
		c.clear()
	}
	return nil
}

func (c *apptCache) HandleDelete(ev *DeleteEvent) error {
	for _, id := range ev.IDs {
		_, isItem := c.ids[id]
		_, isFolder := c.folders[id]
		if isItem || isFolder {
			c.clear()
			return nil
		}
	}
	return nil
}

// ApptQuery selects calendar instances for GetApptSummaries.
type ApptQuery struct {
	// Query further restricts the items, e.g. "is:invite".
	Query string
	Start time.Time
	End   time.Time
	// FolderIDs defaults to the calendar folder.
	FolderIDs []string
	// Location corrects all-day instances; defaults to time.Local.
	Location *time.Location
	// Types defaults to appointments; may also name tasks.
	Types []string
}

func (q ApptQuery) normalize() ApptQuery {
	if len(q.FolderIDs) == 0 {
		q.FolderIDs = []string{IDCalendar}
	}
	if len(q.Types) == 0 {
		q.Types = []string{SearchAppointment}
	}
	if q.Location == nil {
		q.Location = time.Local
	}
	return q
}

func tzName(loc *time.Location) string {
	if loc == nil || loc == time.Local {
		return ""
	}
	return loc.String()
}

// GetApptSummaries returns the expanded appointment (or task) instances of
// each requested folder within [Start, End). Windows already fetched for a
// folder are served from cache; the rest are fetched in one search.
func (m *Mailbox) GetApptSummaries(ctx context.Context, q ApptQuery) ([]*ApptSummaryResult, error) {
	q = q.normalize()
	tz := tzName(q.Location)

	m.mu.Lock()
	defer m.mu.Unlock()

	var summaries []*ApptSummaryResult
	var toFetch []string
	for _, fid := range q.FolderIDs {
		if fid == "" {
			fid = IDCalendar
		}
		k := apptKey{folderID: fid, start: q.Start.UnixMilli(), end: q.End.UnixMilli(), tz: tz, query: q.Query}
		if r, ok := m.appts.get(k); ok {
			summaries = append(summaries, r)
			continue
		}
		toFetch = append(toFetch, fid)
	}
	if len(toFetch) == 0 {
		return summaries, nil
	}

	if m.opts.TargetAccount == "" {
		if err := m.ensureFolders(ctx); err != nil {
			return nil, err
		}
	}

	byFolder := make(map[string]*ApptSummaryResult)
	mapper := make(map[string]string)
	var order []string
	newResult := func(fid string) *ApptSummaryResult {
		r := &ApptSummaryResult{FolderID: fid, Start: q.Start, End: q.End, TimeZone: tz, Query: q.Query}
		byFolder[fid] = r
		order = append(order, fid)
		return r
	}

	var sb strings.Builder
	sb.WriteString("(")
	for i, fid := range toFetch {
		if i > 0 {
			sb.WriteString(" or ")
		}
		sb.WriteString("inid:" + quoteQuery(fid))
		newResult(fid)

		mapper[fid] = fid
		if m.opts.TargetAccount != "" {
			mapper[m.opts.TargetAccount+":"+fid] = fid
		} else if f := m.mirror.folderByID(fid); f != nil && f.kind == KindMountpoint {
			mapper[f.CanonicalRemoteID()] = fid
		}
	}
	sb.WriteString(")")
	if q.Query != "" {
		sb.WriteString("AND (" + q.Query + ")")
	}

	params := SearchParams{
		Query:          sb.String(),
		Types:          q.Types,
		SortBy:         SortNone,
		Limit:          apptSearchLimit,
		TimeZone:       tz,
		CalExpandStart: q.Start,
		CalExpandEnd:   q.End,
	}
	seen := make(map[string]map[string]struct{})
	offset := 0
	for n := 0; n < apptSearchMaxPages; n++ {
		params.Offset = offset
		res, err := m.searchLocked(ctx, "", params)
		if err != nil {
			return nil, err
		}
		offset += len(res.Hits)
		for _, c := range res.cal {
			for _, a := range expandInstances(c.typ, c.data, q.Location) {
				fid, ok := mapper[a.FolderID]
				if !ok {
					fid = a.FolderID
				}
				r := byFolder[fid]
				if r == nil {
					r = newResult(fid)
				}
				if seen[fid] == nil {
					seen[fid] = make(map[string]struct{})
				}
				if _, dup := seen[fid][a.instanceKey()]; dup {
					continue
				}
				seen[fid][a.instanceKey()] = struct{}{}
				r.Appointments = append(r.Appointments, a)
			}
		}
		if !res.More || len(res.Hits) == 0 {
			break
		}
	}

	for _, fid := range order {
		r := byFolder[fid]
		summaries = append(summaries, r)
		m.appts.add(apptKey{folderID: fid, start: q.Start.UnixMilli(), end: q.End.UnixMilli(), tz: tz, query: q.Query}, r)
	}
	return summaries, nil
}

// ClearApptSummaryCache discards all cached calendar results. Shared
// calendars send no notifications, so callers showing them need this.
func (m *Mailbox) ClearApptSummaryCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appts.clear()
}

// GetMiniCal returns the days within [start, end) that have calendar items
// in any of folderIDs.
func (m *Mailbox) GetMiniCal(ctx context.Context, start, end time.Time, folderIDs []string) (*MiniCalResult, error) {
	if len(folderIDs) == 0 {
		folderIDs = []string{IDCalendar}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := miniCalKey(start, end, folderIDs)
	if dates, ok := m.appts.getMiniCal(key); ok {
		return &MiniCalResult{Dates: dates}, nil
	}

	folders := make([]map[string]any, len(folderIDs))
	for i, id := range folderIDs {
		folders[i] = map[string]any{"id": id}
	}
	resp, err := m.invokeLocked(ctx, NewRequest("GetMiniCalRequest", map[string]any{
		"s":      start.UnixMilli(),
		"e":      end.UnixMilli(),
		"folder": folders,
	}))
	if err != nil {
		return nil, err
	}
	var mr miniCalResponse
	if err := resp.Decode(&mr); err != nil {
		return nil, fmt.Errorf("zmailbox GetMiniCal: %w", err)
	}

	dates := make([]string, 0, len(mr.Dates))
	for _, d := range mr.Dates {
		dates = append(dates, strings.TrimSpace(d.Content))
	}
	slices.Sort(dates)
	dates = slices.Compact(dates)
	m.appts.putMiniCal(key, folderIDs, dates)
	return &MiniCalResult{Dates: dates, Errors: mr.Errors}, nil
}
