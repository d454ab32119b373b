package reportdef

import (
	"encoding/xml"
	"fmt"
)

type xmlDocument struct {
	XMLName   xml.Name `xml:"reports"`
	EmailInfo *struct {
		Server         string `xml:"Server,attr"`
		From           string `xml:"From,attr"`
		FontSizeHeader string `xml:"FontSizeHeader,attr"`
		FontSizeBody   string `xml:"FontSizeBody,attr"`
	} `xml:"EmailInfo"`
	Reports []xmlReport `xml:"report"`
}

type xmlReport struct {
	Name *string `xml:"name,attr"`
	Data *struct {
		Type       string `xml:"type,attr"`
		Server     string `xml:"server,attr"`
		Source     string `xml:"source,attr"`
		Database   string `xml:"database,attr"`
		Catalog    string `xml:"catalog,attr"`
		Host       string `xml:"host,attr"`
		ServerType string `xml:"serverType,attr"`
		User       string `xml:"user,attr"`
		DSN        string `xml:"dsn,attr"`
		Text       string `xml:",chardata"`
	} `xml:"data"`
	Mail *struct {
		To          string `xml:"to,attr"`
		Subject     string `xml:"subject,attr"`
		Title       string `xml:"title,attr"`
		MailIfEmpty string `xml:"mailIfEmpty,attr"`
	} `xml:"mail"`
	Frequency *struct {
		Type          string `xml:"type,attr"`
		TimeOfDay     string `xml:"timeOfDay,attr"`
		DayOfWeekList string `xml:"dayofweeklist,attr"`
		Daily         string `xml:"daily,attr"`
		Interval      string `xml:"interval,attr"`
		Units         string `xml:"units,attr"`
	} `xml:"frequency"`
	ValueDivisor *struct {
		Value string `xml:"value,attr"`
		Round string `xml:"round,attr"`
		Units string `xml:"units,attr"`
	} `xml:"valuedivisor"`
	PostMailIDListHook *struct {
		Server        string `xml:"server,attr"`
		Database      string `xml:"database,attr"`
		Procedure     string `xml:"procedure,attr"`
		Parameter     string `xml:"parameter,attr"`
		VarcharLength string `xml:"varcharlength,attr"`
		ServerType    string `xml:"serverType,attr"`
	} `xml:"postMailIdListHook"`
}

func decodeXML(data []byte) (*Document, error) {
	var raw xmlDocument
	if err := xml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse report definitions: %w", err)
	}

	doc := &Document{Reports: make([]ReportDef, 0, len(raw.Reports))}
	if e := raw.EmailInfo; e != nil {
		doc.Email = &EmailInfo{
			Server:         e.Server,
			From:           e.From,
			FontSizeHeader: atoiOrZero(e.FontSizeHeader),
			FontSizeBody:   atoiOrZero(e.FontSizeBody),
		}
	}

	for _, r := range raw.Reports {
		def := ReportDef{Name: r.Name}
		if d := r.Data; d != nil {
			def.Data = &DataDef{
				Type:       d.Type,
				Server:     firstNonEmpty(d.Server, d.Source),
				Database:   firstNonEmpty(d.Database, d.Catalog),
				Host:       d.Host,
				ServerType: d.ServerType,
				User:       d.User,
				DSN:        d.DSN,
				Text:       d.Text,
			}
		}
		if m := r.Mail; m != nil {
			def.Mail = &MailDef{To: []string{m.To}, Subject: m.Subject, Title: m.Title, MailIfEmpty: m.MailIfEmpty}
		}
		if f := r.Frequency; f != nil {
			def.Frequency = &FrequencyDef{
				Type:          f.Type,
				TimeOfDay:     f.TimeOfDay,
				DayOfWeekList: f.DayOfWeekList,
				Daily:         f.Daily,
				Interval:      f.Interval,
				Units:         f.Units,
			}
		}
		if v := r.ValueDivisor; v != nil {
			def.ValueDivisor = &DivisorDef{Value: v.Value, Round: v.Round, Units: v.Units}
		}
		if h := r.PostMailIDListHook; h != nil {
			def.PostMailHook = &HookDef{
				Server:        h.Server,
				Database:      h.Database,
				Procedure:     h.Procedure,
				Parameter:     h.Parameter,
				VarcharLength: h.VarcharLength,
				ServerType:    h.ServerType,
			}
		}
		doc.Reports = append(doc.Reports, def)
	}
	return doc, nil
}
