package datasource

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/nadmax/reportd/internal/logger/tag"
	"github.com/nadmax/reportd/internal/task"
)

type wmiProperty struct {
	Name  string
	Value any
}

// wmiObject is one returned management object, properties in order.
type wmiObject []wmiProperty

// WMISource runs a WQL query against the root\cimv2 namespace of a host.
type WMISource struct {
	report   string
	host     string
	query    string
	divisor  ValueDivisor
	simulate bool

	// query function, replaced in tests
	exec func(ctx context.Context, host, query string) ([]wmiObject, error)
}

func (w *WMISource) Type() task.SourceType {
	return task.SourceWMI
}

func (w *WMISource) Definition() string {
	return w.query
}

func (w *WMISource) path() string {
	return `\\` + w.host + `\root\cimv2`
}

func (w *WMISource) GetData(ctx context.Context) (*task.Results, error) {
	results := task.NewResults(w.report)
	if w.simulate {
		results.DefineColumns([]string{"WMIPath"})
		results.AddRow([]string{w.path()})
		return results, nil
	}

	exec := w.exec
	if exec == nil {
		exec = queryWMI
	}

	slog.Debug("Running WMI query", tag.Report(w.report), slog.String("path", w.path()), slog.String("query", w.query))

	objects, err := exec(ctx, w.host, w.query)
	if err != nil {
		msg := fmt.Sprintf("Error retrieving results from WMI on host %s for report %s", w.host, w.report)
		return task.ErrorResults(w.report, msg+": "+err.Error()), err
	}

	for i, obj := range objects {
		columns := make([]string, len(obj))
		row := make([]string, len(obj))
		for j, prop := range obj {
			columns[j] = prop.Name
			row[j] = w.format(prop.Value)
		}
		if i == 0 {
			results.DefineColumns(columns)
		} else {
			results.MergeColumns(columns)
		}
		results.AddRow(row)
	}
	return results, nil
}

// format divides numeric values by the divisor when one is set.
func (w *WMISource) format(v any) string {
	text := formatValue(v)
	if v == nil || w.divisor.Value == 0 {
		return text
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return text
	}

	scale := math.Pow(10, float64(w.divisor.RoundDigits))
	rounded := math.Round(value/w.divisor.Value*scale) / scale
	formatted := strconv.FormatFloat(rounded, 'f', -1, 64)
	if strings.TrimSpace(w.divisor.Units) == "" {
		return formatted
	}
	return formatted + " " + w.divisor.Units
}
