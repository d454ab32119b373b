package task

import (
	"context"
	"slices"
	"strings"
)

type SourceType string

const (
	SourceQuery           SourceType = "Query"
	SourceStoredProcedure SourceType = "StoredProcedure"
	SourceWMI             SourceType = "WMI"
)

// ParseSourceType is case-insensitive and accepts only the canonical names.
func ParseSourceType(s string) (SourceType, bool) {
	for _, st := range []SourceType{SourceQuery, SourceStoredProcedure, SourceWMI} {
		if strings.EqualFold(strings.TrimSpace(s), string(st)) {
			return st, true
		}
	}
	return "", false
}

// DataSource retrieves a report's data. On failure an implementation may
// return its own error table together with the error; with nil results the
// task substitutes ErrorResults.
type DataSource interface {
	GetData(ctx context.Context) (*Results, error)
	Type() SourceType
	// Definition is the query, procedure name or WMI query text.
	Definition() string
}

// Hook is a follow-up action run by the output side after results are
// delivered.
type Hook interface {
	Run(ctx context.Context, results *Results) error
	Describe() string
}

type EmailSettings struct {
	Recipients  []string `json:"recipients"`
	Subject     string   `json:"subject"`
	Title       string   `json:"title"`
	MailIfEmpty bool     `json:"mail_if_empty"`
}

// NewEmailSettings trims, de-duplicates and sorts the recipients.
func NewEmailSettings(recipients []string, subject, title string, mailIfEmpty bool) EmailSettings {
	list := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			list = append(list, r)
		}
	}
	slices.Sort(list)

	return EmailSettings{
		Recipients:  slices.Compact(list),
		Subject:     subject,
		Title:       title,
		MailIfEmpty: mailIfEmpty,
	}
}

func (e EmailSettings) RecipientList(sep string) string {
	return strings.Join(e.Recipients, sep)
}

// Report is what a run hands to the output side.
type Report struct {
	Results *Results
	Email   EmailSettings
	Hook    Hook
}

// Definition is one configured report, as produced by the definitions loader.
type Definition struct {
	ID        string
	Source    DataSource
	Email     EmailSettings
	Frequency Frequency
	Hook      Hook
}
