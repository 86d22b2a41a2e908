package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlapsSymmetry(t *testing.T) {
	cases := []struct {
		aStart, aEnd, bStart, bEnd TimeOfDay
		want                       bool
	}{
		{1000, 1100, 1030, 1130, true},
		{1000, 1100, 1100, 1200, false},
		{900, 930, 1400, 1500, false},
		{1000, 1200, 1030, 1100, true},
		{1000, 1100, 1000, 1100, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Overlaps(tc.aStart, tc.aEnd, tc.bStart, tc.bEnd))
		assert.Equal(t, Overlaps(tc.aStart, tc.aEnd, tc.bStart, tc.bEnd), Overlaps(tc.bStart, tc.bEnd, tc.aStart, tc.aEnd))
	}
}

func TestBackToBackDoesNotOverlap(t *testing.T) {
	assert.False(t, Overlaps(1000, 1100, 1100, 1200))
	assert.False(t, Overlaps(1100, 1200, 1000, 1100))
}

func TestSlotOverlapsDifferentDates(t *testing.T) {
	a := ScheduleSlot{Date: "2024-06-03", StartTime: 1400, EndTime: 1500}
	b := ScheduleSlot{Date: "2024-06-04", StartTime: 1400, EndTime: 1500}
	assert.False(t, a.Overlaps(b))
	b.Date = a.Date
	assert.True(t, a.Overlaps(b))
}

func TestTimeOfDayComponents(t *testing.T) {
	assert.Equal(t, 9, TimeOfDay(930).Hour())
	assert.Equal(t, 30, TimeOfDay(930).Minute())
	assert.Equal(t, TimeOfDay(1000), TimeOfDay(930).AddHalfHour())
	assert.Equal(t, TimeOfDay(1030), TimeOfDay(1000).AddHalfHour())
	assert.Equal(t, "09:30", TimeOfDay(930).String())

	assert.True(t, TimeOfDay(0).Valid())
	assert.True(t, TimeOfDay(2330).Valid())
	assert.False(t, TimeOfDay(945).Valid())
	assert.False(t, TimeOfDay(2400).Valid())
	assert.False(t, TimeOfDay(-30).Valid())
}

func TestExpandToSlotLength(t *testing.T) {
	marks := ExpandToSlotLength(1000, 1, 600, 2200)
	require.Equal(t, []TimeOfDay{1000, 1030}, marks)
	assert.Equal(t, TimeOfDay(1100), EndTimeFromMarks(marks))

	marks = ExpandToSlotLength(900, 2, 600, 2200)
	require.Equal(t, []TimeOfDay{900, 930, 1000, 1030}, marks)
	assert.Equal(t, TimeOfDay(1100), EndTimeFromMarks(marks))
}

func TestExpandToSlotLengthTruncatesAtClose(t *testing.T) {
	// A one-hour session starting at 21:30 cannot fit before a 22:00 close.
	marks := ExpandToSlotLength(2130, 1, 600, 2200)
	assert.Len(t, marks, 1)

	// Starting at the close boundary yields nothing at all.
	assert.Empty(t, ExpandToSlotLength(2200, 1, 600, 2200))
}

func TestExpandToSlotLengthBeforeOpen(t *testing.T) {
	assert.Empty(t, ExpandToSlotLength(530, 1, 600, 2200))
	assert.Empty(t, ExpandToSlotLength(1015, 1, 600, 2200))
	assert.Empty(t, ExpandToSlotLength(1000, 0, 600, 2200))
}

func TestEndTimeFromMarksEmpty(t *testing.T) {
	assert.Equal(t, TimeOfDay(0), EndTimeFromMarks(nil))
}

func TestScheduleSlotValid(t *testing.T) {
	assert.True(t, ScheduleSlot{Date: "2024-06-03", StartTime: 1400, EndTime: 1500}.Valid())
	assert.False(t, ScheduleSlot{Date: "2024-06-03", StartTime: 1500, EndTime: 1400}.Valid())
	assert.False(t, ScheduleSlot{Date: "2024-06-03", StartTime: 1400, EndTime: 1400}.Valid())
	assert.False(t, ScheduleSlot{Date: "not-a-date", StartTime: 1400, EndTime: 1500}.Valid())
	assert.False(t, ScheduleSlot{Date: "2024-06-03", StartTime: 1415, EndTime: 1500}.Valid())
}

func TestDayScheduleSortedDates(t *testing.T) {
	ds := DaySchedule{
		"2024-06-10": {1000},
		"2024-06-03": {1400},
		"2024-06-05": {900},
	}
	assert.Equal(t, []string{"2024-06-03", "2024-06-05", "2024-06-10"}, ds.SortedDates())
}

func TestChangeRequestEffectiveStatus(t *testing.T) {
	req := &ScheduleChangeRequest{Status: ChangeRequestPending}
	req.ExpiresAt = mustParse(t, "2024-06-10", 1200)
	assert.Equal(t, ChangeRequestPending, req.EffectiveStatus(mustParse(t, "2024-06-10", 1100)))
	assert.Equal(t, ChangeRequestExpired, req.EffectiveStatus(mustParse(t, "2024-06-10", 1230)))

	req.Status = ChangeRequestApproved
	assert.Equal(t, ChangeRequestApproved, req.EffectiveStatus(mustParse(t, "2024-06-10", 1230)))
}

func mustParse(t *testing.T, date string, tod TimeOfDay) time.Time {
	t.Helper()
	instant, err := ScheduleSlot{Date: date, StartTime: tod, EndTime: tod.AddHalfHour()}.StartInstant()
	require.NoError(t, err)
	return instant
}
