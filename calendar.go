package zmailbox

import (
	"time"
)

// ApptHit is one expanded occurrence of an appointment or task.
type ApptHit struct {
	ID           string
	Type         ItemType
	FolderID     string
	InviteID     string
	RecurrenceID string
	Name         string
	Fragment     string
	Location     string
	Status       string
	Flags        Flags
	Tags         string
	AllDay       bool
	Exception    bool
	Start        time.Time
	End          time.Time
	Duration     time.Duration
	// TZOffset is the server's UTC offset for all-day instances.
	TZOffset time.Duration
	ModSeq   int
}

// instanceKey identifies an occurrence across overlapping result pages.
func (a *ApptHit) instanceKey() string {
	inv := a.InviteID
	if inv == "" {
		inv = a.ID
	}
	return inv + "/" + a.RecurrenceID
}

// expandInstances turns a calendar search hit into one ApptHit per
// instance. A hit without instances is its own single instance; in that
// case its "s" attribute holds the start time.
func expandInstances(t ItemType, d *HitData, loc *time.Location) []*ApptHit {
	instances := d.Instances
	if len(instances) == 0 {
		instances = []InstanceData{{Start: d.Size, TZOffset: d.TZOffset, Duration: d.Duration, AllDay: d.AllDay}}
	}

	out := make([]*ApptHit, 0, len(instances))
	for i := range instances {
		inst := &instances[i]
		a := &ApptHit{
			ID:       d.ID,
			Type:     t,
			FolderID: strVal(d.FolderID),
			InviteID: strVal(d.InviteID),
			Name:     strVal(d.Name),
			Fragment: strVal(d.Fragment),
			Location: strVal(d.Location),
			Status:   strVal(d.Status),
			Flags:    Flags(strVal(d.Flags)),
			Tags:     strVal(d.Tags),
			AllDay:   boolVal(d.AllDay),
			TZOffset: time.Duration(int64Val(d.TZOffset)) * time.Millisecond,
			Duration: time.Duration(int64Val(d.Duration)) * time.Millisecond,
			ModSeq:   intVal(d.ModSeq),
		}
		if inst.AllDay != nil {
			a.AllDay = *inst.AllDay
		}
		if inst.TZOffset != nil {
			a.TZOffset = time.Duration(*inst.TZOffset) * time.Millisecond
		}
		if inst.Duration != nil {
			a.Duration = time.Duration(*inst.Duration) * time.Millisecond
		}
		if inst.InviteID != nil {
			a.InviteID = *inst.InviteID
		}
		if inst.Name != nil {
			a.Name = *inst.Name
		}
		if inst.Fragment != nil {
			a.Fragment = *inst.Fragment
		}
		if inst.Location != nil {
			a.Location = *inst.Location
		}
		if inst.Status != nil {
			a.Status = *inst.Status
		}
		a.RecurrenceID = strVal(inst.RecurrenceID)
		a.Exception = boolVal(inst.Exception)

		start := time.UnixMilli(int64Val(inst.Start))
		if a.AllDay {
			start = allDayStart(start, a.TZOffset, loc)
		}
		a.Start = start
		a.End = start.Add(a.Duration)
		out = append(out, a)
	}
	return out
}

// allDayStart shifts an all-day instance from the server's offset to the
// caller's offset at that instant.
func allDayStart(start time.Time, serverOffset time.Duration, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	_, callerOffset := start.In(loc).Zone()
	return start.Add(serverOffset - time.Duration(callerOffset)*time.Second).In(loc)
}

// ApptSummaryResult holds the instances of one folder within one window.
type ApptSummaryResult struct {
	FolderID     string
	Start        time.Time
	End          time.Time
	TimeZone     string
	Query        string
	Appointments []*ApptHit
}

// MiniCalResult lists the days with at least one calendar item.
type MiniCalResult struct {
	// Dates are formatted as yyyyMMdd and sorted.
	Dates  []string
	Errors []MiniCalError
}

// MiniCalError reports a folder the server could not read.
type MiniCalError struct {
	FolderID string `json:"id"`
	Code     string `json:"code"`
	Message  string `json:"_content"`
}

type miniCalResponse struct {
	Dates  []content      `json:"date"`
	Errors []MiniCalError `json:"error"`
}
