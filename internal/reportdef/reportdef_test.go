package reportdef

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadmax/reportd/internal/datasource"
	"github.com/nadmax/reportd/internal/task"
)

func simulateFactory() *datasource.Factory {
	return datasource.NewFactory(true, nil)
}

func byID(defs []task.Definition) map[string]task.Definition {
	out := make(map[string]task.Definition, len(defs))
	for _, d := range defs {
		out[d.ID] = d
	}
	return out
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{"reports.yaml", FormatYAML, false},
		{"Reports.YML", FormatYAML, false},
		{"/etc/reportd/ReportDefinitions.xml", FormatXML, false},
		{"reports.json", "", true},
		{"reports", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatOf(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseExampleYAML(t *testing.T) {
	doc, err := Example(FormatYAML, true)
	require.NoError(t, err)

	result, err := Parse([]byte(doc), FormatYAML, simulateFactory())
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
	require.Len(t, result.Definitions, 4)

	assert.Equal(t, []string{
		"Processor Status Warnings",
		"Email Alerts",
		"MTS Overdue Database Backups",
		"Gigasax Disk Space Report",
	}, []string{
		result.Definitions[0].ID,
		result.Definitions[1].ID,
		result.Definitions[2].ID,
		result.Definitions[3].ID,
	})

	require.NotNil(t, result.Email)
	assert.Equal(t, "emailgw.pnl.gov", result.Email.Server)
	assert.Equal(t, 20, result.Email.FontSizeHeader)
	assert.Equal(t, 12, result.Email.FontSizeBody)

	defs := byID(result.Definitions)

	warnings := defs["Processor Status Warnings"]
	assert.Equal(t, task.TimeOfDay, warnings.Frequency.Mode)
	assert.Equal(t, task.Clock{Hour: 15}, warnings.Frequency.At)
	assert.Equal(t, task.NewWeekdays(time.Monday, time.Wednesday, time.Friday), warnings.Frequency.Days)
	assert.Equal(t, []string{"dms@pnnl.gov", "proteomics@pnnl.gov"}, warnings.Email.Recipients)
	assert.True(t, warnings.Email.MailIfEmpty)
	assert.Equal(t, task.SourceQuery, warnings.Source.Type())
	assert.Nil(t, warnings.Hook)

	alerts := defs["Email Alerts"]
	assert.Equal(t, task.Every(12, task.Hour), alerts.Frequency)
	assert.False(t, alerts.Email.MailIfEmpty)
	require.NotNil(t, alerts.Hook)
	assert.Equal(t, "procedure AckEmailAlerts in database DMS5 on server gigasax", alerts.Hook.Describe())

	backups := defs["MTS Overdue Database Backups"]
	assert.Equal(t, task.SourceStoredProcedure, backups.Source.Type())
	assert.Equal(t, "GetOverdueDatabaseBackups", backups.Source.Definition())

	disk := defs["Gigasax Disk Space Report"]
	assert.Equal(t, task.SourceWMI, disk.Source.Type())
	assert.Equal(t, task.Clock{Hour: 9, Minute: 15}, disk.Frequency.At)
}

func TestXMLAndYAMLExamplesAgree(t *testing.T) {
	yamlDoc, err := Example(FormatYAML, true)
	require.NoError(t, err)
	xmlDoc, err := Example(FormatXML, true)
	require.NoError(t, err)

	fromYAML, err := Parse([]byte(yamlDoc), FormatYAML, simulateFactory())
	require.NoError(t, err)
	fromXML, err := Parse([]byte(xmlDoc), FormatXML, simulateFactory())
	require.NoError(t, err)

	assert.Empty(t, fromXML.Warnings)
	assert.Equal(t, fromYAML.Email, fromXML.Email)
	require.Len(t, fromXML.Definitions, len(fromYAML.Definitions))
	for i, want := range fromYAML.Definitions {
		got := fromXML.Definitions[i]
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Frequency, got.Frequency, want.ID)
		assert.Equal(t, want.Email, got.Email, want.ID)
		assert.Equal(t, want.Source.Type(), got.Source.Type(), want.ID)
		assert.Equal(t, want.Source.Definition(), got.Source.Definition(), want.ID)
		assert.Equal(t, want.Hook == nil, got.Hook == nil, want.ID)
	}
}

func TestBuildWarnings(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		wantDefs int
		wantWarn string
	}{
		{
			name:     "missing name",
			yaml:     "reports:\n  - data: {type: query, server: s, database: d, query: q}\n",
			wantWarn: "Ignoring report definition without a 'name' attribute",
		},
		{
			name:     "blank name",
			yaml:     "reports:\n  - name: '  '\n",
			wantWarn: "Ignoring report definition with an empty string 'name' attribute",
		},
		{
			name:     "missing mail",
			yaml:     "reports:\n  - name: r\n    data: {type: query, server: s, database: d, query: q}\n    frequency: {type: Interval, interval: 1, units: days}\n",
			wantWarn: "Ignoring report definition 'r'; missing the mail element",
		},
		{
			name:     "bad data type",
			yaml:     "reports:\n  - name: r\n    data: {type: csv, server: s, database: d, query: q}\n    mail: {to: a@b.c}\n    frequency: {type: Interval, interval: 1, units: days}\n",
			wantWarn: "invalid type csv in the data element; should be query, procedure, or wmi",
		},
		{
			name:     "empty query",
			yaml:     "reports:\n  - name: r\n    data: {type: query, server: s, database: d}\n    mail: {to: a@b.c}\n    frequency: {type: Interval, interval: 1, units: days}\n",
			wantWarn: "query (or procedure name) not defined in the data element",
		},
		{
			name:     "missing server",
			yaml:     "reports:\n  - name: r\n    data: {type: query, database: d, query: q}\n    mail: {to: a@b.c}\n    frequency: {type: Interval, interval: 1, units: days}\n",
			wantWarn: "Ignoring report definition 'r'; server not defined in the data element",
		},
		{
			name:     "missing database",
			yaml:     "reports:\n  - name: r\n    data: {type: query, server: s, query: q}\n    mail: {to: a@b.c}\n    frequency: {type: Interval, interval: 1, units: days}\n",
			wantWarn: "database not defined in the data element",
		},
		{
			name:     "wmi without host",
			yaml:     "reports:\n  - name: r\n    data: {type: wmi, query: q}\n    mail: {to: a@b.c}\n    frequency: {type: Interval, interval: 1, units: days}\n",
			wantWarn: "server or host not defined in the data element",
		},
		{
			name:     "bad interval",
			yaml:     "reports:\n  - name: r\n    data: {type: query, server: s, database: d, query: q}\n    mail: {to: a@b.c}\n    frequency: {type: Interval, interval: twelve, units: hours}\n",
			wantWarn: "invalid interval twelve; should be an integer",
		},
		{
			name:     "bad units",
			yaml:     "reports:\n  - name: r\n    data: {type: query, server: s, database: d, query: q}\n    mail: {to: a@b.c}\n    frequency: {type: Interval, interval: 2, units: fortnights}\n",
			wantWarn: "invalid interval units fortnights",
		},
		{
			name:     "bad frequency type",
			yaml:     "reports:\n  - name: r\n    data: {type: query, server: s, database: d, query: q}\n    mail: {to: a@b.c}\n    frequency: {type: Hourly}\n",
			wantWarn: "Invalid frequency type Hourly for report 'r'; should be TimeOfDay or Interval",
		},
		{
			name:     "bad time of day",
			yaml:     "reports:\n  - name: r\n    data: {type: query, server: s, database: d, query: q}\n    mail: {to: a@b.c}\n    frequency: {type: TimeOfDay, timeOfDay: noonish}\n",
			wantWarn: "invalid timeOfDay noonish",
		},
		{
			name:     "missing frequency type defaults",
			yaml:     "reports:\n  - name: r\n    data: {type: query, server: s, database: d, query: q}\n    mail: {to: a@b.c}\n    frequency: {}\n",
			wantDefs: 1,
			wantWarn: "Type attribute not found for the frequency element for report 'r'",
		},
		{
			name:     "missing time of day defaults",
			yaml:     "reports:\n  - name: r\n    data: {type: query, server: s, database: d, query: q}\n    mail: {to: a@b.c}\n    frequency: {type: TimeOfDay}\n",
			wantDefs: 1,
			wantWarn: "timeOfDay attribute not found for the frequency element for report 'r'; will assume 7:00 am",
		},
		{
			name:     "incomplete hook keeps report",
			yaml:     "reports:\n  - name: r\n    data: {type: query, server: s, database: d, query: q}\n    mail: {to: a@b.c}\n    frequency: {type: Interval, interval: 1, units: days}\n    postMailIdListHook: {server: s, database: d, parameter: ids}\n",
			wantDefs: 1,
			wantWarn: "Error in report definition 'r'; procedure not defined in the postMailIdListHook element",
		},
		{
			name:     "invalid procedure name",
			yaml:     "reports:\n  - name: r\n    data: {type: procedure, server: s, database: d, procedure: 'x; drop table y'}\n    mail: {to: a@b.c}\n    frequency: {type: Interval, interval: 1, units: days}\n",
			wantWarn: "Ignoring report definition 'r'; invalid procedure name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Parse([]byte(tt.yaml), FormatYAML, simulateFactory())
			require.NoError(t, err)
			assert.Len(t, result.Definitions, tt.wantDefs)
			require.NotEmpty(t, result.Warnings)
			assert.Contains(t, strings.Join(result.Warnings, "\n"), tt.wantWarn)
		})
	}
}

func TestBuildDuplicateNameFirstWins(t *testing.T) {
	doc := `reports:
  - name: Dup
    data: {type: query, server: s, database: d, query: SELECT 1}
    mail: {to: a@b.c}
    frequency: {type: Interval, interval: 1, units: days}
  - name: Dup
    data: {type: query, server: s, database: d, query: SELECT 2}
    mail: {to: a@b.c}
    frequency: {type: Interval, interval: 1, units: days}
`
	result, err := Parse([]byte(doc), FormatYAML, simulateFactory())
	require.NoError(t, err)
	require.Len(t, result.Definitions, 1)
	assert.Equal(t, "SELECT 1", result.Definitions[0].Source.Definition())
	assert.Equal(t, []string{
		"Duplicate report named 'Dup' in the report definition file; only using the first instance",
	}, result.Warnings)
}

func TestBuildLegacyAliasesAndDays(t *testing.T) {
	doc := `<reports>
  <report name="legacy">
    <data type="Table" source="gigasax" catalog="DMS5">T_Users</data>
    <mail to=" b@x.org;a@x.org, ,b@x.org " subject="Users" title="Users" mailIfEmpty="False" />
    <frequency type="TimeOfDay" timeOfDay="7am" dayofweeklist="tues;THURSDAY;funday;Tue" />
  </report>
  <report name="daily">
    <data type="query" server="gigasax" database="DMS5">SELECT 1</data>
    <mail to="a@x.org" />
    <frequency type="TimeOfDay" timeOfDay="13:00:30" daily="true" />
  </report>
</reports>`
	result, err := Parse([]byte(doc), FormatXML, simulateFactory())
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
	assert.Nil(t, result.Email)
	require.Len(t, result.Definitions, 2)

	legacy := result.Definitions[0]
	assert.Equal(t, task.SourceQuery, legacy.Source.Type())
	assert.Equal(t, []string{"a@x.org", "b@x.org"}, legacy.Email.Recipients)
	assert.False(t, legacy.Email.MailIfEmpty)
	assert.Equal(t, task.Clock{Hour: 7}, legacy.Frequency.At)
	assert.Equal(t, task.NewWeekdays(time.Tuesday, time.Thursday), legacy.Frequency.Days)

	daily := result.Definitions[1]
	assert.Equal(t, task.Clock{Hour: 13, Second: 30}, daily.Frequency.At)
	assert.True(t, daily.Frequency.Days.EveryDay())
}

func TestSQLiteDataSourceNeedsNoServer(t *testing.T) {
	doc := `reports:
  - name: local
    data: {type: query, serverType: sqlite, database: /var/lib/reportd/local.db, query: SELECT 1}
    mail: {to: []}
    frequency: {type: Interval, interval: 30, units: minutes}
`
	result, err := Parse([]byte(doc), FormatYAML, simulateFactory())
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
	require.Len(t, result.Definitions, 1)
	assert.Empty(t, result.Definitions[0].Email.Recipients)
	assert.Equal(t, task.Every(30, task.Minute), result.Definitions[0].Frequency)
}

func TestParseDataType(t *testing.T) {
	tests := []struct {
		in   string
		want task.SourceType
		ok   bool
	}{
		{"query", task.SourceQuery, true},
		{" View ", task.SourceQuery, true},
		{"table", task.SourceQuery, true},
		{"StoredProcedure", task.SourceStoredProcedure, true},
		{"sproc", task.SourceStoredProcedure, true},
		{"SP", task.SourceStoredProcedure, true},
		{"WMI", task.SourceWMI, true},
		{"csv", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDataType(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitList("a, b;c"))
	assert.Equal(t, []string{"a", "b"}, SplitList(" a ;; ", "b"))
	assert.Empty(t, SplitList("", " , "))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml file", func(t *testing.T) {
		doc, err := Example(FormatYAML, false)
		require.NoError(t, err)
		path := filepath.Join(dir, "reports.yaml")
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

		result, err := Load(path, simulateFactory())
		require.NoError(t, err)
		assert.Len(t, result.Definitions, 2)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "missing.xml"), simulateFactory())
		assert.ErrorContains(t, err, "failed to read report definitions")
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "reports.ini"), simulateFactory())
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("reports: [\n"), 0o644))

		_, err := Load(path, simulateFactory())
		assert.ErrorContains(t, err, "failed to parse report definitions")
	})

	t.Run("malformed xml", func(t *testing.T) {
		path := filepath.Join(dir, "bad.xml")
		require.NoError(t, os.WriteFile(path, []byte("<reports><report name='x'>"), 0o644))

		_, err := Load(path, simulateFactory())
		assert.ErrorContains(t, err, "failed to parse report definitions")
	})
}

func TestExampleUnknownFormat(t *testing.T) {
	_, err := Example("toml", false)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
