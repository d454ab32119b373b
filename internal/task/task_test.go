package task

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	results *Results
	err     error
	panics  bool
	calls   int
	kind    SourceType
	text    string
}

func (s *stubSource) GetData(context.Context) (*Results, error) {
	s.calls++
	if s.panics {
		panic("driver exploded")
	}
	return s.results, s.err
}

func (s *stubSource) Type() SourceType {
	if s.kind == "" {
		return SourceQuery
	}
	return s.kind
}

func (s *stubSource) Definition() string {
	if s.text == "" {
		return "SELECT 1"
	}
	return s.text
}

func fixedClock(t time.Time) Option {
	return WithClock(func() time.Time { return t })
}

var testEmail = NewEmailSettings([]string{"ops@example.com"}, "Status", "Status Report", true)

func TestIntervalScenario(t *testing.T) {
	lastRun := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 1, 6, 0, 1, 0, time.UTC)
	src := &stubSource{results: NewResults("hourly")}

	tsk, err := NewInterval("hourly", src, testEmail, lastRun, 6, Hour, fixedClock(now))
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC), tsk.NextRun())
	assert.True(t, tsk.IsDue(now))

	out := tsk.Execute(context.Background(), now)

	assert.Equal(t, StatusRan, out.Status)
	assert.Equal(t, now, tsk.LastRun())
	assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 1, 0, time.UTC), tsk.NextRun())
	assert.Equal(t, 1, tsk.ExecutionCount())
	assert.Equal(t, 1, src.calls)
	assert.False(t, tsk.IsDue(now))
}

func TestIntervalNeverRunIsDueImmediately(t *testing.T) {
	now := time.Date(2024, 5, 10, 8, 30, 0, 0, time.UTC)

	tsk, err := NewInterval("new", &stubSource{}, testEmail, time.Time{}, 2, Day, fixedClock(now))
	require.NoError(t, err)

	assert.Equal(t, now, tsk.NextRun())
	assert.Equal(t, now.AddDate(0, 0, -2), tsk.LastRun())
	assert.True(t, tsk.IsDue(now))
}

func TestIntervalCatchUpFiresOnce(t *testing.T) {
	now := time.Date(2024, 5, 10, 8, 30, 0, 0, time.UTC)
	lastRun := now.Add(-72 * time.Hour)

	tsk, err := NewInterval("catchup", &stubSource{}, testEmail, lastRun, 1, Hour, fixedClock(now))
	require.NoError(t, err)

	assert.Equal(t, lastRun.Add(time.Hour), tsk.NextRun())
	assert.True(t, tsk.IsDue(now))

	tsk.Execute(context.Background(), now)

	assert.Equal(t, now.Add(time.Hour), tsk.NextRun())
	assert.False(t, tsk.IsDue(now.Add(59*time.Minute)))
}

func TestIntervalInvalidDefaultsToOneDay(t *testing.T) {
	now := time.Date(2024, 5, 10, 8, 30, 0, 0, time.UTC)
	tests := []struct {
		name  string
		count int
		unit  Unit
	}{
		{name: "zero count", count: 0, unit: Hour},
		{name: "negative count", count: -3, unit: Minute},
		{name: "undefined unit", count: 4, unit: UnitUndefined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lastRun := now.Add(-time.Hour)
			tsk, err := NewInterval("bad", &stubSource{}, testEmail, lastRun, tt.count, tt.unit, fixedClock(now))
			require.NoError(t, err)

			assert.Equal(t, Interval{Count: 1, Unit: Day}, tsk.Frequency().Interval)
			assert.Equal(t, lastRun.AddDate(0, 0, 1), tsk.NextRun())

			tsk.Execute(context.Background(), now)
			assert.Equal(t, now.AddDate(0, 0, 1), tsk.NextRun())
		})
	}
}

func TestIntervalTooLargeDefaultsToOneDay(t *testing.T) {
	now := time.Date(2024, 1, 1, 6, 0, 1, 0, time.UTC)
	tests := []struct {
		name  string
		count int
		unit  Unit
	}{
		{name: "hours past time.Duration", count: 3_000_000, unit: Hour},
		{name: "minutes past time.Duration", count: 200_000_000, unit: Minute},
		{name: "seconds past time.Duration", count: 10_000_000_000, unit: Second},
		{name: "years past the calendar limit", count: 50_000, unit: Year},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lastRun := now.Add(-time.Hour)
			tsk, err := NewInterval("huge", &stubSource{}, testEmail, lastRun, tt.count, tt.unit, fixedClock(now))
			require.NoError(t, err)

			assert.Equal(t, Interval{Count: 1, Unit: Day}, tsk.Frequency().Interval)
			assert.Equal(t, lastRun.AddDate(0, 0, 1), tsk.NextRun())

			tsk.RunNow(context.Background(), now)
			assert.Equal(t, now.AddDate(0, 0, 1), tsk.NextRun())
			assert.False(t, tsk.IsDue(now))
		})
	}
}

func TestIntervalLargestValidCountStaysInFuture(t *testing.T) {
	now := time.Date(2024, 1, 1, 6, 0, 1, 0, time.UTC)
	count := int(math.MaxInt64 / int64(time.Hour))

	tsk, err := NewInterval("max", &stubSource{}, testEmail, now.Add(-time.Hour), count, Hour, fixedClock(now))
	require.NoError(t, err)
	require.Equal(t, count, tsk.Frequency().Interval.Count)

	tsk.Execute(context.Background(), now)
	assert.True(t, tsk.NextRun().After(now))
}

func TestIntervalMonthIsCalendarPeriod(t *testing.T) {
	lastRun := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 20, 9, 0, 0, 0, time.UTC)

	tsk, err := NewInterval("monthly", &stubSource{}, testEmail, lastRun, 1, Month, fixedClock(now))
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 2, 15, 9, 0, 0, 0, time.UTC), tsk.NextRun())
	assert.False(t, tsk.IsDue(now))
}

func TestTimeOfDayAnchoring(t *testing.T) {
	loc := time.FixedZone("PDT", -7*60*60)
	at := Clock{Hour: 7}
	nows := []time.Time{
		time.Date(2024, 6, 3, 5, 0, 0, 0, loc),
		time.Date(2024, 6, 3, 7, 0, 0, 0, loc),
		time.Date(2024, 6, 3, 23, 59, 0, 0, loc),
	}

	for _, now := range nows {
		t.Run(now.Format(time.Kitchen), func(t *testing.T) {
			tsk, err := NewTimeOfDay("daily", &stubSource{}, testEmail, time.Time{}, at, fixedClock(now), WithLocation(loc))
			require.NoError(t, err)

			next := tsk.NextRun().In(loc)
			assert.Equal(t, 7, next.Hour())
			assert.Equal(t, 0, next.Minute())
			assert.Equal(t, 0, next.Second())

			today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
			assert.False(t, next.Before(today))
			assert.Equal(t, time.UTC, tsk.NextRun().Location())
		})
	}
}

func TestTimeOfDayRespectsDowntimeWindow(t *testing.T) {
	loc := time.FixedZone("EST", -5*60*60)
	lastRun := time.Date(2024, 3, 1, 7, 0, 0, 0, loc)
	now := time.Date(2024, 3, 11, 12, 0, 0, 0, loc)

	tsk, err := NewTimeOfDay("daily", &stubSource{}, testEmail, lastRun, Clock{Hour: 7}, fixedClock(now), WithLocation(loc))
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 3, 11, 7, 0, 0, 0, loc).UTC(), tsk.NextRun())
	assert.True(t, tsk.IsDue(now))

	tsk.Execute(context.Background(), now)
	assert.Equal(t, time.Date(2024, 3, 12, 7, 0, 0, 0, loc).UTC(), tsk.NextRun())
}

func TestTimeOfDayChangedReanchorsLastRun(t *testing.T) {
	loc := time.FixedZone("CET", 60*60)
	lastRun := time.Date(2024, 3, 10, 9, 30, 0, 0, loc)
	now := time.Date(2024, 3, 11, 6, 0, 0, 0, loc)

	tsk, err := NewTimeOfDay("moved", &stubSource{}, testEmail, lastRun, Clock{Hour: 7}, fixedClock(now), WithLocation(loc))
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 3, 10, 7, 0, 0, 0, loc).UTC(), tsk.LastRun())
	assert.Equal(t, time.Date(2024, 3, 11, 7, 0, 0, 0, loc).UTC(), tsk.NextRun())
	assert.False(t, tsk.IsDue(now))
}

func TestTimeOfDayKeepsWallTimeAcrossDSTGap(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	at := Clock{Hour: 2, Minute: 30}

	t.Run("execute on the gap day", func(t *testing.T) {
		lastRun := time.Date(2024, 3, 9, 2, 30, 0, 0, loc)
		now := time.Date(2024, 3, 10, 4, 0, 0, 0, loc)

		tsk, err := NewTimeOfDay("early", &stubSource{}, testEmail, lastRun, at, fixedClock(now), WithLocation(loc))
		require.NoError(t, err)
		require.True(t, tsk.IsDue(now))

		tsk.Execute(context.Background(), now)

		assert.Equal(t, time.Date(2024, 3, 11, 2, 30, 0, 0, loc).UTC(), tsk.NextRun())
	})

	t.Run("restart after a run in the gap", func(t *testing.T) {
		lastRun := time.Date(2024, 3, 10, 3, 30, 0, 0, loc)
		now := time.Date(2024, 3, 10, 5, 0, 0, 0, loc)

		tsk, err := NewTimeOfDay("early", &stubSource{}, testEmail, lastRun, at, fixedClock(now), WithLocation(loc))
		require.NoError(t, err)

		assert.Equal(t, time.Date(2024, 3, 11, 2, 30, 0, 0, loc).UTC(), tsk.NextRun())
		assert.False(t, tsk.IsDue(now))
	})
}

func TestDayOfWeekSkipScenario(t *testing.T) {
	loc := time.FixedZone("EST", -5*60*60)
	monday := time.Date(2024, 1, 1, 15, 0, 0, 0, loc)
	tuesday := time.Date(2024, 1, 2, 15, 0, 5, 0, loc)
	src := &stubSource{}

	def := Definition{
		ID:        "mwf",
		Source:    src,
		Email:     testEmail,
		Frequency: OnDaysAt(Clock{Hour: 15}, time.Monday, time.Wednesday, time.Friday),
	}
	tsk, err := New(def, monday, 3, fixedClock(tuesday), WithLocation(loc))
	require.NoError(t, err)
	require.True(t, tsk.IsDue(tuesday))

	prevNext := tsk.NextRun()
	out := tsk.Execute(context.Background(), tuesday)

	assert.Equal(t, StatusSkipped, out.Status)
	assert.Nil(t, out.Report)
	assert.Equal(t, 0, src.calls)
	assert.Equal(t, 3, tsk.ExecutionCount())
	assert.Equal(t, tuesday.UTC(), tsk.LastRun())
	assert.Equal(t, time.Date(2024, 1, 3, 15, 0, 0, 0, loc).UTC(), tsk.NextRun())
	assert.True(t, tsk.NextRun().After(prevNext))
	assert.False(t, tsk.IsDue(tuesday))
}

func TestExecuteAdvancesNextRun(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2024, 8, 20, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		def  Definition
		last time.Time
	}{
		{
			name: "interval seconds",
			def:  Definition{ID: "s", Frequency: Every(30, Second)},
			last: now.Add(-time.Minute),
		},
		{
			name: "interval week",
			def:  Definition{ID: "w", Frequency: Every(1, Week)},
			last: now.AddDate(0, 0, -8),
		},
		{
			name: "time of day every day",
			def:  Definition{ID: "d", Frequency: DailyAt(Clock{Hour: 9})},
			last: now.AddDate(0, 0, -2),
		},
		{
			name: "time of day excluded weekday",
			def:  Definition{ID: "x", Frequency: OnDaysAt(Clock{Hour: 9}, time.Sunday)},
			last: now.AddDate(0, 0, -2),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.def.Source = &stubSource{}
			tsk, err := New(tt.def, tt.last, 0, fixedClock(now), WithLocation(loc))
			require.NoError(t, err)
			require.True(t, tsk.IsDue(now))

			prevNext := tsk.NextRun()
			tsk.Execute(context.Background(), now)

			assert.True(t, tsk.NextRun().After(prevNext))
			assert.True(t, tsk.NextRun().After(now))
		})
	}
}

func TestExecuteFaultIsolation(t *testing.T) {
	now := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		src  *stubSource
	}{
		{name: "error", src: &stubSource{err: errors.New("connection refused")}},
		{name: "panic", src: &stubSource{panics: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tsk, err := NewInterval("fragile", tt.src, testEmail, time.Time{}, 1, Hour, fixedClock(now))
			require.NoError(t, err)

			var out Outcome
			assert.NotPanics(t, func() {
				out = tsk.Execute(context.Background(), now)
			})

			assert.Equal(t, StatusRan, out.Status)
			assert.Error(t, out.Err)
			assert.Equal(t, 1, tsk.ExecutionCount())
			require.NotNil(t, out.Report)
			assert.Equal(t, []string{"Error"}, out.Report.Results.Columns)
			require.Len(t, out.Report.Results.Rows, 1)
			assert.Contains(t, out.Report.Results.Rows[0][0], "fragile")
			assert.Equal(t, "fragile", out.Report.Results.ReportName)
		})
	}
}

func TestExecuteKeepsSourceErrorTable(t *testing.T) {
	now := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)
	src := &stubSource{
		results: ErrorResults("sales", "Error retrieving results from database Sales using a query for report sales"),
		err:     errors.New("login failed"),
	}

	tsk, err := NewInterval("sales", src, testEmail, time.Time{}, 1, Hour, fixedClock(now))
	require.NoError(t, err)

	out := tsk.Execute(context.Background(), now)

	assert.Equal(t, StatusRan, out.Status)
	assert.EqualError(t, out.Err, "login failed")
	assert.Equal(t, src.results, out.Report.Results)
}

func TestExecuteCarriesEmailAndHook(t *testing.T) {
	now := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)
	results := NewResults("")
	results.DefineColumns([]string{"ID"})
	results.AddRow([]string{"42"})
	hook := &stubHook{}

	def := Definition{
		ID:        "alerts",
		Source:    &stubSource{results: results},
		Email:     testEmail,
		Frequency: Every(12, Hour),
		Hook:      hook,
	}
	tsk, err := New(def, time.Time{}, 0, fixedClock(now))
	require.NoError(t, err)

	out := tsk.Execute(context.Background(), now)

	require.NotNil(t, out.Report)
	assert.NoError(t, out.Err)
	assert.Equal(t, "alerts", out.Report.Results.ReportName)
	assert.Equal(t, testEmail, out.Report.Email)
	assert.Same(t, hook, out.Report.Hook)
}

func TestRunNowIgnoresNextRun(t *testing.T) {
	now := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)
	src := &stubSource{}

	tsk, err := NewInterval("weekly", src, testEmail, now.Add(-time.Hour), 1, Week, fixedClock(now))
	require.NoError(t, err)
	require.False(t, tsk.IsDue(now))

	out := tsk.RunNow(context.Background(), now)

	assert.Equal(t, StatusRan, out.Status)
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, now.AddDate(0, 0, 7), tsk.NextRun())
}

func TestScheduledToday(t *testing.T) {
	loc := time.UTC
	wednesday := time.Date(2024, 1, 3, 12, 0, 0, 0, loc)

	interval, err := NewInterval("i", &stubSource{}, testEmail, time.Time{}, 1, Hour, fixedClock(wednesday))
	require.NoError(t, err)
	assert.True(t, interval.ScheduledToday(wednesday))

	weekend, err := NewTimeOfDayOnDays("w", &stubSource{}, testEmail, time.Time{}, Clock{Hour: 8},
		NewWeekdays(time.Saturday, time.Sunday), fixedClock(wednesday), WithLocation(loc))
	require.NoError(t, err)
	assert.False(t, weekend.ScheduledToday(wednesday))
	assert.True(t, weekend.ScheduledToday(wednesday.AddDate(0, 0, 3)))
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
	}{
		{name: "missing id", def: Definition{ID: " ", Source: &stubSource{}, Frequency: Every(1, Hour)}},
		{name: "missing source", def: Definition{ID: "x", Frequency: Every(1, Hour)}},
		{name: "bad clock", def: Definition{ID: "x", Source: &stubSource{}, Frequency: DailyAt(Clock{Hour: 25})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.def, time.Time{}, 0)
			assert.Error(t, err)
		})
	}
}

func TestRuntimeInfoAndSnapshot(t *testing.T) {
	now := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)
	src := &stubSource{kind: SourceStoredProcedure, text: "GetOverdueBackups"}

	def := Definition{ID: "backups", Source: src, Email: testEmail, Frequency: Every(6, Hour)}
	tsk, err := New(def, now.Add(-7*time.Hour), 5, fixedClock(now))
	require.NoError(t, err)

	info := tsk.RuntimeInfo()
	assert.Equal(t, now.Add(-7*time.Hour), info.LastRun)
	assert.Equal(t, now.Add(-time.Hour), info.NextRun)
	assert.Equal(t, 5, info.ExecutionCount)
	assert.Equal(t, SourceStoredProcedure, info.SourceType)
	assert.Equal(t, "GetOverdueBackups", info.SourceDefinition)

	snap := tsk.Snapshot()
	assert.Equal(t, "backups", snap.ID)
	assert.Equal(t, "Interval", snap.Mode)
	assert.Equal(t, "every 6 hours", snap.Schedule)
	require.NotNil(t, snap.LastRun)
	assert.Equal(t, []string{"ops@example.com"}, snap.Recipients)
}

type stubHook struct{}

func (*stubHook) Run(context.Context, *Results) error { return nil }
func (*stubHook) Describe() string                    { return "stub" }
