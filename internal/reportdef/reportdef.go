// Package reportdef reads the report definitions file. YAML is the native
// format; the legacy XML layout is still accepted.
package reportdef

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nadmax/reportd/internal/datasource"
	"github.com/nadmax/reportd/internal/task"
)

var ErrUnsupportedFormat = errors.New("unsupported report definitions format")

type Format string

const (
	FormatYAML Format = "yaml"
	FormatXML  Format = "xml"
)

// FormatOf picks the format from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".xml":
		return FormatXML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Document is the parsed file before validation. Scalar values are kept as
// text so both formats share one set of validation rules.
type Document struct {
	Email   *EmailInfo
	Reports []ReportDef
}

type ReportDef struct {
	// Name is nil when the attribute is absent.
	Name         *string
	Data         *DataDef
	Mail         *MailDef
	Frequency    *FrequencyDef
	ValueDivisor *DivisorDef
	PostMailHook *HookDef
}

type DataDef struct {
	Type       string
	Server     string
	Database   string
	Host       string
	ServerType string
	User       string
	DSN        string
	Text       string
}

type MailDef struct {
	To          []string
	Subject     string
	Title       string
	MailIfEmpty string
}

type FrequencyDef struct {
	Type          string
	TimeOfDay     string
	DayOfWeekList string
	Daily         string
	Interval      string
	Units         string
}

type DivisorDef struct {
	Value string
	Round string
	Units string
}

type HookDef struct {
	Server        string
	Database      string
	Procedure     string
	Parameter     string
	VarcharLength string
	ServerType    string
}

// Result is a loaded definitions file. Reports with problems are left out
// of Definitions and described in Warnings.
type Result struct {
	Email       *EmailInfo
	Definitions []task.Definition
	Warnings    []string
}

// Load reads and validates the definitions file. Only an unreadable or
// unparsable file is an error.
func Load(path string, factory *datasource.Factory) (*Result, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report definitions: %w", err)
	}

	return Parse(data, format, factory)
}

func Parse(data []byte, format Format, factory *datasource.Factory) (*Result, error) {
	var (
		doc *Document
		err error
	)
	switch format {
	case FormatYAML:
		doc, err = decodeYAML(data)
	case FormatXML:
		doc, err = decodeXML(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}

	defs, warnings := Build(doc, factory)
	return &Result{Email: doc.Email, Definitions: defs, Warnings: warnings}, nil
}
