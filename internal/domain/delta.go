package domain

import "time"

// Field names one editable field of a TimeEntry.
type Field string

const (
	FieldDescription Field = "description"
	FieldStart       Field = "start"
	FieldStop        Field = "stop"
	FieldProject     Field = "project"
	FieldTags        Field = "tags"
	FieldBillable    Field = "billable"
)

// EditableFields lists every field an EntryDelta can touch, in a stable order.
var EditableFields = []Field{
	FieldDescription, FieldStart, FieldStop, FieldProject, FieldTags, FieldBillable,
}

// EntryDelta is a sparse change to the editable fields of one entry.
//
// A nil pointer means "untouched" for description, start and billable. Stop
// and project can legitimately be set to nil (a nil stop means the entry is
// running), so those carry explicit set markers.
type EntryDelta struct {
	Description *string
	Start       *time.Time

	SetStop bool
	Stop    *time.Time

	SetProject bool
	ProjectID  *int64

	SetTags bool
	Tags    []string

	Billable *bool
}

// SetDescription returns a delta changing only the description.
func SetDescription(s string) EntryDelta {
	return EntryDelta{Description: &s}
}

// SetStart returns a delta changing only the start time.
func SetStart(t time.Time) EntryDelta {
	return EntryDelta{Start: &t}
}

// SetStop returns a delta changing only the stop time. A nil stop makes the
// entry running.
func SetStop(t *time.Time) EntryDelta {
	d := EntryDelta{SetStop: true}
	if t != nil {
		stop := *t
		d.Stop = &stop
	}
	return d
}

// SetProject returns a delta changing only the project assignment.
func SetProject(id *int64) EntryDelta {
	d := EntryDelta{SetProject: true}
	if id != nil {
		p := *id
		d.ProjectID = &p
	}
	return d
}

// SetTags returns a delta changing only the tag set.
func SetTags(tags []string) EntryDelta {
	return EntryDelta{SetTags: true, Tags: append([]string(nil), tags...)}
}

// SetBillable returns a delta changing only the billable flag.
func SetBillable(b bool) EntryDelta {
	return EntryDelta{Billable: &b}
}

// IsZero reports whether the delta touches nothing.
func (d EntryDelta) IsZero() bool {
	return d.Description == nil && d.Start == nil && !d.SetStop &&
		!d.SetProject && !d.SetTags && d.Billable == nil
}

// Touches reports whether the delta changes the given field.
func (d EntryDelta) Touches(f Field) bool {
	switch f {
	case FieldDescription:
		return d.Description != nil
	case FieldStart:
		return d.Start != nil
	case FieldStop:
		return d.SetStop
	case FieldProject:
		return d.SetProject
	case FieldTags:
		return d.SetTags
	case FieldBillable:
		return d.Billable != nil
	}
	return false
}

// Fields returns the fields the delta touches.
func (d EntryDelta) Fields() []Field {
	out := make([]Field, 0, len(EditableFields))
	for _, f := range EditableFields {
		if d.Touches(f) {
			out = append(out, f)
		}
	}
	return out
}

// Merge combines two deltas; for a field both touch, the later one wins.
func (d EntryDelta) Merge(later EntryDelta) EntryDelta {
	out := d
	if later.Description != nil {
		out.Description = later.Description
	}
	if later.Start != nil {
		out.Start = later.Start
	}
	if later.SetStop {
		out.SetStop = true
		out.Stop = later.Stop
	}
	if later.SetProject {
		out.SetProject = true
		out.ProjectID = later.ProjectID
	}
	if later.SetTags {
		out.SetTags = true
		out.Tags = later.Tags
	}
	if later.Billable != nil {
		out.Billable = later.Billable
	}
	return out
}

// Mask returns a copy of the delta restricted to the fields keep accepts.
func (d EntryDelta) Mask(keep func(Field) bool) EntryDelta {
	var out EntryDelta
	if d.Description != nil && keep(FieldDescription) {
		out.Description = d.Description
	}
	if d.Start != nil && keep(FieldStart) {
		out.Start = d.Start
	}
	if d.SetStop && keep(FieldStop) {
		out.SetStop = true
		out.Stop = d.Stop
	}
	if d.SetProject && keep(FieldProject) {
		out.SetProject = true
		out.ProjectID = d.ProjectID
	}
	if d.SetTags && keep(FieldTags) {
		out.SetTags = true
		out.Tags = d.Tags
	}
	if d.Billable != nil && keep(FieldBillable) {
		out.Billable = d.Billable
	}
	return out
}

// Apply writes the delta into the entry, keeping start <= stop and the
// duration consistent with the time bounds.
func (d EntryDelta) Apply(e *TimeEntry) {
	if d.Description != nil {
		e.Description = *d.Description
	}
	if d.Start != nil {
		e.Start = *d.Start
	}
	if d.SetStop {
		if d.Stop != nil {
			stop := *d.Stop
			e.Stop = &stop
		} else {
			e.Stop = nil
		}
	}
	if d.SetProject {
		if d.ProjectID != nil {
			p := *d.ProjectID
			e.ProjectID = &p
		} else {
			e.ProjectID = nil
		}
	}
	if d.SetTags {
		e.Tags = append([]string(nil), d.Tags...)
	}
	if d.Billable != nil {
		e.Billable = *d.Billable
	}
	if e.Stop != nil && e.Stop.Before(e.Start) {
		stop := e.Start
		e.Stop = &stop
	}
	if e.Stop == nil {
		e.DurationSec = -1
	} else {
		e.DurationSec = int64(e.Stop.Sub(e.Start) / time.Second)
	}
}

// SnapshotOf captures the entry's current values for the given fields, so the
// resulting delta reverses a change touching exactly those fields.
func SnapshotOf(e *TimeEntry, fields []Field) EntryDelta {
	var out EntryDelta
	for _, f := range fields {
		switch f {
		case FieldDescription:
			desc := e.Description
			out.Description = &desc
		case FieldStart:
			start := e.Start
			out.Start = &start
		case FieldStop:
			out.SetStop = true
			if e.Stop != nil {
				stop := *e.Stop
				out.Stop = &stop
			}
		case FieldProject:
			out.SetProject = true
			if e.ProjectID != nil {
				p := *e.ProjectID
				out.ProjectID = &p
			}
		case FieldTags:
			out.SetTags = true
			out.Tags = append([]string(nil), e.Tags...)
		case FieldBillable:
			b := e.Billable
			out.Billable = &b
		}
	}
	return out
}
