package task

import "fmt"

// Results is the tabular output of one data retrieval.
type Results struct {
	ReportName string     `json:"report_name"`
	Columns    []string   `json:"columns"`
	Rows       [][]string `json:"rows"`
}

func NewResults(reportName string) *Results {
	return &Results{
		ReportName: reportName,
		Columns:    []string{},
		Rows:       [][]string{},
	}
}

// ErrorResults is the single-column result used when retrieval fails.
func ErrorResults(reportName, message string) *Results {
	r := NewResults(reportName)
	r.DefineColumns([]string{"Error"})
	r.AddRow([]string{message})
	return r
}

func (r *Results) DefineColumns(columns []string) {
	r.Columns = append(r.Columns[:0], columns...)
}

// AddRow appends a row, naming any columns the row has beyond the known
// ones "Column<N>".
func (r *Results) AddRow(row []string) {
	r.Rows = append(r.Rows, row)
	for i := len(r.Columns); i < len(row); i++ {
		r.Columns = append(r.Columns, fmt.Sprintf("Column%d", i+1))
	}
}

// MergeColumns handles an additional result set: only columns past the
// current count are appended.
func (r *Results) MergeColumns(columns []string) {
	for i := len(r.Columns); i < len(columns); i++ {
		r.Columns = append(r.Columns, columns[i])
	}
}

func (r *Results) RowCount() int {
	return len(r.Rows)
}

// Empty is true when there is nothing to render as a table.
func (r *Results) Empty() bool {
	return len(r.Columns) == 0 || len(r.Rows) == 0
}
