package reportdef

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

const (
	DefaultEmailServer    = "emailgw.pnl.gov"
	DefaultEmailFrom      = "proteomics@pnnl.gov"
	DefaultFontSizeHeader = 20
	DefaultFontSizeBody   = 12
)

// EmailInfo holds the mail server settings that the definitions file may
// override. Zero values mean "not set".
type EmailInfo struct {
	Server         string
	From           string
	FontSizeHeader int
	FontSizeBody   int
}

func DefaultEmailInfo() EmailInfo {
	return EmailInfo{
		Server:         DefaultEmailServer,
		From:           DefaultEmailFrom,
		FontSizeHeader: DefaultFontSizeHeader,
		FontSizeBody:   DefaultFontSizeBody,
	}
}

// WithDefaults fills every unset field from DefaultEmailInfo.
func (e EmailInfo) WithDefaults() EmailInfo {
	d := DefaultEmailInfo()
	if strings.TrimSpace(e.Server) == "" {
		e.Server = d.Server
	}
	if strings.TrimSpace(e.From) == "" {
		e.From = d.From
	}
	if e.FontSizeHeader <= 0 {
		e.FontSizeHeader = d.FontSizeHeader
	}
	if e.FontSizeBody <= 0 {
		e.FontSizeBody = d.FontSizeBody
	}
	return e
}

// ResolveEmail merges the file's EmailInfo section over the current settings.
// A value set in the file wins; on the first load, replacing a different
// command-line value is logged.
func ResolveEmail(current EmailInfo, file *EmailInfo, firstLoad bool) EmailInfo {
	if file == nil {
		return current.WithDefaults()
	}

	resolved := current
	if v := strings.TrimSpace(file.Server); v != "" {
		warnIfOverride(firstLoad, current.Server, v, "email server name")
		resolved.Server = v
	}
	if v := strings.TrimSpace(file.From); v != "" {
		warnIfOverride(firstLoad, current.From, v, "email sender name")
		resolved.From = v
	}
	if v := file.FontSizeHeader; v > 0 {
		warnIfOverride(firstLoad, itoaOrEmpty(current.FontSizeHeader), strconv.Itoa(v), "header font size")
		resolved.FontSizeHeader = v
	}
	if v := file.FontSizeBody; v > 0 {
		warnIfOverride(firstLoad, itoaOrEmpty(current.FontSizeBody), strconv.Itoa(v), "body font size")
		resolved.FontSizeBody = v
	}
	return resolved.WithDefaults()
}

func warnIfOverride(firstLoad bool, current, value, what string) {
	if !firstLoad {
		return
	}
	current = strings.TrimSpace(current)
	if current == "" || current == "0" || current == value {
		return
	}
	slog.Warn(fmt.Sprintf("Overriding %s using value in the report definitions file: %s", what, value))
}

func itoaOrEmpty(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
