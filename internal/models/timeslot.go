package models

import (
	"fmt"
	"sort"
	"time"
)

// TimeOfDay encodes a wall-clock time as an HHMM integer: 930 is 09:30,
// 1430 is 14:30. All generated values sit on a half-hour boundary and
// ordering is plain integer comparison.
type TimeOfDay int

// Hour returns the hour component.
func (t TimeOfDay) Hour() int {
	return int(t) / 100
}

// Minute returns the minute component.
func (t TimeOfDay) Minute() int {
	return int(t) % 100
}

// Valid reports whether the value is a real half-hour clock time.
func (t TimeOfDay) Valid() bool {
	if t < 0 || t.Hour() > 23 {
		return false
	}
	return t.Minute() == 0 || t.Minute() == 30
}

// AddHalfHour returns the mark thirty minutes later.
func (t TimeOfDay) AddHalfHour() TimeOfDay {
	if t.Minute() == 0 {
		return t + 30
	}
	return TimeOfDay((t.Hour()+1)*100)
}

// String renders the time as HH:MM.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// DateLayout is the calendar-day key format used across the gym domain.
// Dates and times of day are stored split so overlap math never depends on
// timezone-shifted date arithmetic.
const DateLayout = "2006-01-02"

// ScheduleSlot is one bookable or booked session interval on a single day.
type ScheduleSlot struct {
	Date      string    `db:"date" json:"date"`
	StartTime TimeOfDay `db:"start_time" json:"start_time"`
	EndTime   TimeOfDay `db:"end_time" json:"end_time"`
}

// Valid reports whether the slot is well formed: a parseable date and a
// half-hour-aligned, non-empty interval.
func (s ScheduleSlot) Valid() bool {
	if _, err := time.ParseInLocation(DateLayout, s.Date, time.Local); err != nil {
		return false
	}
	return s.StartTime.Valid() && s.EndTime.Valid() && s.StartTime < s.EndTime
}

// Overlaps reports whether two slots intersect. Slots on different days
// never overlap; back-to-back intervals on the same day do not either.
func (s ScheduleSlot) Overlaps(o ScheduleSlot) bool {
	if s.Date != o.Date {
		return false
	}
	return Overlaps(s.StartTime, s.EndTime, o.StartTime, o.EndTime)
}

// StartInstant combines the slot's date and start time into a single local
// instant.
func (s ScheduleSlot) StartInstant() (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, s.Date, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse slot date %q: %w", s.Date, err)
	}
	return day.Add(time.Duration(s.StartTime.Hour())*time.Hour + time.Duration(s.StartTime.Minute())*time.Minute), nil
}

// Overlaps reports whether the half-open intervals [aStart,aEnd) and
// [bStart,bEnd) intersect. Equal boundaries count as non-overlapping so
// back-to-back bookings stay legal.
func Overlaps(aStart, aEnd, bStart, bEnd TimeOfDay) bool {
	return aStart < bEnd && bStart < aEnd
}

// ExpandToSlotLength generates the half-hour start marks a session occupies,
// beginning at start and covering durationHours. The walk stops as soon as a
// mark would fall before open or its half hour would run past close, so the
// result may be shorter than durationHours*2: callers must treat a short or
// empty result as "this start time cannot host this duration".
func ExpandToSlotLength(start TimeOfDay, durationHours int, open, close TimeOfDay) []TimeOfDay {
	if durationHours <= 0 || !start.Valid() {
		return nil
	}
	steps := durationHours * 2
	marks := make([]TimeOfDay, 0, steps)
	mark := start
	for i := 0; i < steps; i++ {
		if mark < open || mark.AddHalfHour() > close {
			break
		}
		marks = append(marks, mark)
		mark = mark.AddHalfHour()
	}
	return marks
}

// EndTimeFromMarks returns the session end: one half hour past the last
// occupied mark. Marks are assumed ordered.
func EndTimeFromMarks(marks []TimeOfDay) TimeOfDay {
	if len(marks) == 0 {
		return 0
	}
	return marks[len(marks)-1].AddHalfHour()
}

// DaySchedule maps a calendar date key to the ordered half-hour start marks
// chosen for that day. It serves both as "what the member picked" and "what
// the trainer already has booked".
type DaySchedule map[string][]TimeOfDay

// SortedDates returns the schedule's date keys in ascending order.
func (d DaySchedule) SortedDates() []string {
	dates := make([]string, 0, len(d))
	for date := range d {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates
}

// WeekTime is a weekly recurrence pattern entry: a weekday plus the time
// range a regular session occupies.
type WeekTime struct {
	ID         string       `db:"id" json:"id"`
	ContractID string       `db:"contract_id" json:"-"`
	Weekday    time.Weekday `db:"weekday" json:"weekday"`
	StartTime  TimeOfDay    `db:"start_time" json:"start_time"`
	EndTime    TimeOfDay    `db:"end_time" json:"end_time"`
}
