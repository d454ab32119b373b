package reportdef

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/nadmax/reportd/internal/datasource"
	"github.com/nadmax/reportd/internal/task"
)

// DefaultTimeOfDay is used when a time-of-day frequency leaves the time out.
const DefaultTimeOfDay = "7:00 am"

// Build validates a parsed document. Reports that fail validation are
// dropped with a warning; the first report with a given name wins.
func Build(doc *Document, factory *datasource.Factory) ([]task.Definition, []string) {
	if factory == nil {
		factory = datasource.NewFactory(false, nil)
	}

	var (
		defs     []task.Definition
		warnings []string
		seen     = make(map[string]struct{})
	)
	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	for _, r := range doc.Reports {
		if r.Name == nil {
			warn("Ignoring report definition without a 'name' attribute")
			continue
		}
		name := strings.TrimSpace(*r.Name)
		if name == "" {
			warn("Ignoring report definition with an empty string 'name' attribute")
			continue
		}
		if _, dup := seen[name]; dup {
			warn("Duplicate report named '%s' in the report definition file; only using the first instance", name)
			continue
		}
		seen[name] = struct{}{}

		def, problems, ok := buildReport(name, r, factory)
		warnings = append(warnings, problems...)
		if ok {
			defs = append(defs, def)
		}
	}
	return defs, warnings
}

func buildReport(name string, r ReportDef, factory *datasource.Factory) (task.Definition, []string, bool) {
	var warnings []string
	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	for _, missing := range []struct {
		absent  bool
		element string
	}{
		{r.Data == nil, "data"},
		{r.Mail == nil, "mail"},
		{r.Frequency == nil, "frequency"},
	} {
		if missing.absent {
			warn("Ignoring report definition '%s'; missing the %s element", name, missing.element)
			return task.Definition{}, warnings, false
		}
	}

	spec, problem := sourceSpec(name, r.Data, r.ValueDivisor)
	if problem != "" {
		warn("Ignoring report definition '%s'; %s", name, problem)
		return task.Definition{}, warnings, false
	}
	source, err := factory.Build(spec)
	if err != nil {
		warn("Ignoring report definition '%s'; %v", name, err)
		return task.Definition{}, warnings, false
	}

	freq, freqWarnings, ok := buildFrequency(name, r.Frequency)
	warnings = append(warnings, freqWarnings...)
	if !ok {
		return task.Definition{}, warnings, false
	}

	mailIfEmpty := true
	if v := strings.TrimSpace(r.Mail.MailIfEmpty); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			warn("Invalid mailIfEmpty value %s for report '%s'; will assume true", v, name)
		} else {
			mailIfEmpty = b
		}
	}

	def := task.Definition{
		ID:        name,
		Source:    source,
		Email:     task.NewEmailSettings(SplitList(r.Mail.To...), r.Mail.Subject, r.Mail.Title, mailIfEmpty),
		Frequency: freq,
	}

	if r.PostMailHook != nil {
		hook, err := buildHook(name, r.PostMailHook, spec.Dialect, factory)
		if err != nil {
			warn("Error in report definition '%s'; %v", name, err)
		} else {
			def.Hook = hook
		}
	}

	return def, warnings, true
}

func sourceSpec(name string, d *DataDef, divisor *DivisorDef) (datasource.Spec, string) {
	kind, ok := ParseDataType(d.Type)
	if !ok {
		return datasource.Spec{}, fmt.Sprintf("invalid type %s in the data element; should be query, procedure, or wmi", d.Type)
	}
	if strings.TrimSpace(d.Text) == "" {
		return datasource.Spec{}, "query (or procedure name) not defined in the data element"
	}

	spec := datasource.Spec{
		Report:   name,
		Type:     kind,
		Server:   strings.TrimSpace(d.Server),
		Database: strings.TrimSpace(d.Database),
		User:     strings.TrimSpace(d.User),
		DSN:      strings.TrimSpace(d.DSN),
		Host:     strings.TrimSpace(d.Host),
		Text:     strings.TrimSpace(d.Text),
	}

	if kind == task.SourceWMI {
		if spec.Host == "" && spec.Server == "" {
			return datasource.Spec{}, "server or host not defined in the data element"
		}
		if divisor != nil {
			spec.Divisor = parseDivisor(divisor)
		}
		return spec, ""
	}

	dialect, err := datasource.ParseDialect(d.ServerType)
	if err != nil {
		return datasource.Spec{}, fmt.Sprintf("%v in the data element", err)
	}
	spec.Dialect = dialect

	if spec.DSN == "" && dialect == datasource.SQLite {
		spec.DSN = spec.Database
	}
	if spec.DSN == "" {
		if spec.Server == "" {
			return datasource.Spec{}, "server not defined in the data element"
		}
		if spec.Database == "" {
			return datasource.Spec{}, "database not defined in the data element"
		}
	}
	return spec, ""
}

// ParseDataType maps the data element's type attribute to a source type.
func ParseDataType(s string) (task.SourceType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "query", "table", "view":
		return task.SourceQuery, true
	case "procedure", "storedprocedure", "sp", "sproc":
		return task.SourceStoredProcedure, true
	case "wmi":
		return task.SourceWMI, true
	default:
		return "", false
	}
}

func parseDivisor(d *DivisorDef) datasource.ValueDivisor {
	var div datasource.ValueDivisor
	if v, err := strconv.ParseFloat(strings.TrimSpace(d.Value), 64); err == nil {
		div.Value = v
	}
	if n, err := strconv.Atoi(strings.TrimSpace(d.Round)); err == nil && n >= 0 && n <= 255 {
		div.RoundDigits = n
	}
	div.Units = strings.TrimSpace(d.Units)
	return div
}

func buildFrequency(name string, f *FrequencyDef) (task.Frequency, []string, bool) {
	var warnings []string
	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	kind := strings.ToLower(strings.TrimSpace(f.Type))
	switch {
	case kind == "":
		warn("Type attribute not found for the frequency element for report '%s'; will assume type=\"TimeOfDay\" and timeOfDay=\"%s\"", name, DefaultTimeOfDay)
		at, _ := task.ParseClock(DefaultTimeOfDay)
		return task.DailyAt(at), warnings, true

	case strings.Contains(kind, "time"):
		value := strings.TrimSpace(f.TimeOfDay)
		if value == "" {
			warn("timeOfDay attribute not found for the frequency element for report '%s'; will assume %s", name, DefaultTimeOfDay)
			value = DefaultTimeOfDay
		}
		at, err := task.ParseClock(value)
		if err != nil {
			warn("Ignoring report definition '%s'; invalid timeOfDay %s; should be a time like '7:00 am' or '13:00'", name, value)
			return task.Frequency{}, warnings, false
		}
		return task.Frequency{Mode: task.TimeOfDay, At: at, Days: parseDays(f)}, warnings, true

	case strings.Contains(kind, "interval"):
		count, err := strconv.Atoi(strings.TrimSpace(f.Interval))
		if err != nil {
			warn("Ignoring report definition '%s'; invalid interval %s; should be an integer", name, f.Interval)
			return task.Frequency{}, warnings, false
		}
		unit, ok := task.ParseUnit(f.Units)
		if !ok {
			warn("Ignoring report definition '%s'; invalid interval units %s; should be seconds, minutes, hours, days, weeks, months, or years", name, f.Units)
			return task.Frequency{}, warnings, false
		}
		return task.Every(count, unit), warnings, true

	default:
		warn("Invalid frequency type %s for report '%s'; should be TimeOfDay or Interval", f.Type, name)
		return task.Frequency{}, warnings, false
	}
}

// parseDays returns the weekday filter; an empty result means every day.
func parseDays(f *FrequencyDef) task.Weekdays {
	if daily, err := strconv.ParseBool(strings.TrimSpace(f.Daily)); err == nil && daily {
		return task.AllDays
	}
	days := lo.FilterMap(SplitList(f.DayOfWeekList), func(s string, _ int) (time.Weekday, bool) {
		return task.ParseWeekday(s)
	})
	return task.NewWeekdays(lo.Uniq(days)...)
}

func buildHook(name string, h *HookDef, dialect datasource.Dialect, factory *datasource.Factory) (*datasource.ProcedureHook, error) {
	if dialect == "" {
		dialect = datasource.SQLServer
	}
	if v := strings.TrimSpace(h.ServerType); v != "" {
		d, err := datasource.ParseDialect(v)
		if err != nil {
			return nil, fmt.Errorf("%w in the postMailIdListHook element", err)
		}
		dialect = d
	}

	length := 0
	if v := strings.TrimSpace(h.VarcharLength); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid varcharlength %s in the postMailIdListHook element", v)
		}
		length = n
	}

	return factory.BuildHook(datasource.HookSpec{
		Report:        name,
		Dialect:       dialect,
		Server:        strings.TrimSpace(h.Server),
		Database:      strings.TrimSpace(h.Database),
		Procedure:     strings.TrimSpace(h.Procedure),
		Parameter:     strings.TrimSpace(h.Parameter),
		VarcharLength: length,
	})
}

// SplitList splits each value on commas and semicolons, trims the parts
// and drops blanks.
func SplitList(values ...string) []string {
	parts := lo.FlatMap(values, func(v string, _ int) []string {
		return strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ';' })
	})
	return lo.Compact(lo.Map(parts, func(p string, _ int) string {
		return strings.TrimSpace(p)
	}))
}
