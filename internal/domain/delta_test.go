package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntry() TimeEntry {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	stop := start.Add(45 * time.Minute)
	project := int64(7)
	return TimeEntry{
		ID:          1,
		LocalID:     NewLocalID(),
		Description: "standup",
		ProjectID:   &project,
		WorkspaceID: 42,
		Tags:        []string{"meeting"},
		Start:       start,
		Stop:        &stop,
		DurationSec: 2700,
	}
}

func TestMergeLaterFieldWins(t *testing.T) {
	merged := SetDescription("a").Merge(SetDescription("b"))
	require.NotNil(t, merged.Description)
	assert.Equal(t, "b", *merged.Description)

	// Untouched fields from the earlier delta survive.
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	merged = SetStart(start).Merge(SetDescription("b"))
	require.NotNil(t, merged.Start)
	assert.True(t, merged.Start.Equal(start))
	assert.Equal(t, "b", *merged.Description)
}

func TestMergeExplicitNilStopWins(t *testing.T) {
	stop := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	merged := SetStop(&stop).Merge(SetStop(nil))
	assert.True(t, merged.SetStop)
	assert.Nil(t, merged.Stop, "the later delta cleared the stop")
}

func TestApplyClampsStopBeforeStart(t *testing.T) {
	e := sampleEntry()
	early := e.Start.Add(-time.Hour)
	SetStop(&early).Apply(&e)
	require.NotNil(t, e.Stop)
	assert.True(t, e.Stop.Equal(e.Start))
	assert.Equal(t, int64(0), e.DurationSec)
}

func TestApplyKeepsDurationConsistent(t *testing.T) {
	e := sampleEntry()
	SetStart(e.Start.Add(-15 * time.Minute)).Apply(&e)
	assert.Equal(t, int64(3600), e.DurationSec)

	SetStop(nil).Apply(&e)
	assert.Nil(t, e.Stop)
	assert.Equal(t, int64(-1), e.DurationSec)
	assert.True(t, e.Running())
}

func TestFieldsAndIsZero(t *testing.T) {
	var zero EntryDelta
	assert.True(t, zero.IsZero())
	assert.Empty(t, zero.Fields())

	d := SetDescription("x").Merge(SetTags([]string{"a"}))
	assert.False(t, d.IsZero())
	assert.Equal(t, []Field{FieldDescription, FieldTags}, d.Fields())
	assert.True(t, d.Touches(FieldTags))
	assert.False(t, d.Touches(FieldStop))
}

func TestSnapshotOfReversesApply(t *testing.T) {
	e := sampleEntry()
	original := e.Clone()

	change := SetDescription("renamed").
		Merge(SetProject(nil)).
		Merge(SetTags([]string{"x", "y"}))
	undo := SnapshotOf(&e, change.Fields())
	change.Apply(&e)
	assert.Equal(t, "renamed", e.Description)
	assert.Nil(t, e.ProjectID)

	undo.Apply(&e)
	assert.Equal(t, original.Description, e.Description)
	require.NotNil(t, e.ProjectID)
	assert.Equal(t, *original.ProjectID, *e.ProjectID)
	assert.Equal(t, original.Tags, e.Tags)
}

func TestMaskRestrictsFields(t *testing.T) {
	d := SetDescription("x").Merge(SetBillable(true))
	masked := d.Mask(func(f Field) bool { return f == FieldBillable })
	assert.Nil(t, masked.Description)
	require.NotNil(t, masked.Billable)
	assert.True(t, *masked.Billable)
}

func TestCloneIsDeep(t *testing.T) {
	e := sampleEntry()
	c := e.Clone()
	*c.Stop = c.Stop.Add(time.Hour)
	c.Tags[0] = "changed"
	*c.ProjectID = 99

	assert.NotEqual(t, *e.Stop, *c.Stop)
	assert.Equal(t, "meeting", e.Tags[0])
	assert.Equal(t, int64(7), *e.ProjectID)
}

func TestDuration(t *testing.T) {
	e := sampleEntry()
	now := e.Start.Add(2 * time.Hour)
	assert.Equal(t, 45*time.Minute, e.Duration(now))

	e.Stop = nil
	assert.Equal(t, 2*time.Hour, e.Duration(now))
}
