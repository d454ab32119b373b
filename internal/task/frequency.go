package task

import (
	"fmt"
	"math"
	"strings"
	"time"
)

type (
	Mode     int
	Unit     int
	Weekdays uint8
)

const (
	IntervalBased Mode = iota
	TimeOfDay
)

const (
	UnitUndefined Unit = iota
	Second
	Minute
	Hour
	Day
	Week
	Month
	Year
)

const AllDays Weekdays = 1<<7 - 1

func (m Mode) String() string {
	if m == TimeOfDay {
		return "TimeOfDay"
	}
	return "Interval"
}

var unitNames = map[Unit]string{
	Second: "second",
	Minute: "minute",
	Hour:   "hour",
	Day:    "day",
	Week:   "week",
	Month:  "month",
	Year:   "year",
}

func (u Unit) String() string {
	if name, ok := unitNames[u]; ok {
		return name
	}
	return "undefined"
}

// ParseUnit matches by substring so "hours", "Hourly" and "daily" all resolve.
func ParseUnit(s string) (Unit, bool) {
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "second"):
		return Second, true
	case strings.Contains(lower, "minute"):
		return Minute, true
	case strings.Contains(lower, "hour"):
		return Hour, true
	case strings.Contains(lower, "daily"), strings.Contains(lower, "day"):
		return Day, true
	case strings.Contains(lower, "week"):
		return Week, true
	case strings.Contains(lower, "month"):
		return Month, true
	case strings.Contains(lower, "year"):
		return Year, true
	default:
		return UnitUndefined, false
	}
}

// Interval is a count of calendar units. Month and year are calendar
// periods, the rest are fixed durations.
type Interval struct {
	Count int
	Unit  Unit
}

// maxCount keeps fixed-duration intervals inside time.Duration and calendar
// intervals within ten thousand years.
var maxCount = map[Unit]int64{
	Second: math.MaxInt64 / int64(time.Second),
	Minute: math.MaxInt64 / int64(time.Minute),
	Hour:   math.MaxInt64 / int64(time.Hour),
	Day:    10_000 * 366,
	Week:   10_000 * 53,
	Month:  10_000 * 12,
	Year:   10_000,
}

func (i Interval) Valid() bool {
	limit, ok := maxCount[i.Unit]
	return ok && i.Count > 0 && int64(i.Count) <= limit
}

func (i Interval) AddTo(t time.Time) time.Time {
	return i.shift(t, i.Count)
}

func (i Interval) SubtractFrom(t time.Time) time.Time {
	return i.shift(t, -i.Count)
}

func (i Interval) shift(t time.Time, n int) time.Time {
	switch i.Unit {
	case Second:
		return t.Add(time.Duration(n) * time.Second)
	case Minute:
		return t.Add(time.Duration(n) * time.Minute)
	case Hour:
		return t.Add(time.Duration(n) * time.Hour)
	case Day:
		return t.AddDate(0, 0, n)
	case Week:
		return t.AddDate(0, 0, 7*n)
	case Month:
		return t.AddDate(0, n, 0)
	case Year:
		return t.AddDate(n, 0, 0)
	default:
		return t
	}
}

func (i Interval) String() string {
	if i.Count == 1 {
		return "1 " + i.Unit.String()
	}
	return fmt.Sprintf("%d %ss", i.Count, i.Unit.String())
}

type Clock struct {
	Hour   int
	Minute int
	Second int
}

var clockLayouts = []string{
	"3:04 pm",
	"3:04pm",
	"3:04:05 pm",
	"3:04:05pm",
	"3 pm",
	"3pm",
	"15:04",
	"15:04:05",
}

// ParseClock accepts "7:00 am", "3:00PM", "13:00", "13:00:30" and "7 am".
func ParseClock(s string) (Clock, error) {
	value := strings.ToLower(strings.Join(strings.Fields(s), " "))
	for _, layout := range clockLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return Clock{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}
	return Clock{}, fmt.Errorf("invalid time of day %q; should be a time like '7:00 am' or '13:00'", s)
}

func (c Clock) Valid() bool {
	return c.Hour >= 0 && c.Hour < 24 && c.Minute >= 0 && c.Minute < 60 && c.Second >= 0 && c.Second < 60
}

// On returns the occurrence of c on the calendar date of day, in day's location.
func (c Clock) On(day time.Time) time.Time {
	return c.DaysAfter(day, 0)
}

// DaysAfter returns the occurrence of c n calendar days after day's date.
// The date is stepped before the clock is applied, so a clock that falls in
// a DST gap on one day keeps its wall time on the following days.
func (c Clock) DaysAfter(day time.Time, n int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day()+n, c.Hour, c.Minute, c.Second, 0, day.Location())
}

func (c Clock) String() string {
	t := time.Date(2000, 1, 1, c.Hour, c.Minute, c.Second, 0, time.UTC)
	if c.Second != 0 {
		return t.Format("3:04:05 PM")
	}
	return t.Format("3:04 PM")
}

func NewWeekdays(days ...time.Weekday) Weekdays {
	var w Weekdays
	for _, d := range days {
		if d >= time.Sunday && d <= time.Saturday {
			w |= 1 << uint(d)
		}
	}
	return w
}

// ParseWeekday looks only at the first three letters, so "Tues" and
// "wednesday" both work.
func ParseWeekday(s string) (time.Weekday, bool) {
	name := strings.ToLower(strings.TrimSpace(s))
	if len(name) < 3 {
		return time.Sunday, false
	}
	switch name[:3] {
	case "sun":
		return time.Sunday, true
	case "mon":
		return time.Monday, true
	case "tue":
		return time.Tuesday, true
	case "wed":
		return time.Wednesday, true
	case "thu":
		return time.Thursday, true
	case "fri":
		return time.Friday, true
	case "sat":
		return time.Saturday, true
	default:
		return time.Sunday, false
	}
}

func (w Weekdays) Contains(d time.Weekday) bool {
	return w&(1<<uint(d)) != 0
}

// Allows reports whether d passes the filter. An empty or full set allows every day.
func (w Weekdays) Allows(d time.Weekday) bool {
	if w == 0 || w&AllDays == AllDays {
		return true
	}
	return w.Contains(d)
}

func (w Weekdays) EveryDay() bool {
	return w == 0 || w&AllDays == AllDays
}

func (w Weekdays) Days() []time.Weekday {
	var days []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if w.Contains(d) {
			days = append(days, d)
		}
	}
	return days
}

func (w Weekdays) String() string {
	if w.EveryDay() {
		return "every day"
	}
	names := make([]string, 0, 7)
	for _, d := range w.Days() {
		names = append(names, d.String())
	}
	return strings.Join(names, ", ")
}

// Frequency selects between the two scheduling policies. Only the fields for
// Mode are meaningful.
type Frequency struct {
	Mode     Mode
	Interval Interval
	At       Clock
	Days     Weekdays
}

func Every(count int, unit Unit) Frequency {
	return Frequency{Mode: IntervalBased, Interval: Interval{Count: count, Unit: unit}}
}

func DailyAt(at Clock) Frequency {
	return Frequency{Mode: TimeOfDay, At: at}
}

func OnDaysAt(at Clock, days ...time.Weekday) Frequency {
	return Frequency{Mode: TimeOfDay, At: at, Days: NewWeekdays(days...)}
}

func (f Frequency) String() string {
	if f.Mode == IntervalBased {
		return "every " + f.Interval.String()
	}
	if f.Days.EveryDay() {
		return "every day at " + f.At.String()
	}
	return fmt.Sprintf("at %s on %s", f.At, f.Days)
}
