package reportdef

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// stringList accepts either a scalar or a sequence.
type stringList []string

func (s *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = stringList{node.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*s = items
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", node.Line)
	}
}

type yamlDocument struct {
	EmailInfo *struct {
		Server         string `yaml:"server"`
		From           string `yaml:"from"`
		FontSizeHeader string `yaml:"fontSizeHeader"`
		FontSizeBody   string `yaml:"fontSizeBody"`
	} `yaml:"emailInfo"`
	Reports []yamlReport `yaml:"reports"`
}

type yamlReport struct {
	Name *string `yaml:"name"`
	Data *struct {
		Type       string `yaml:"type"`
		Server     string `yaml:"server"`
		Source     string `yaml:"source"`
		Database   string `yaml:"database"`
		Catalog    string `yaml:"catalog"`
		Host       string `yaml:"host"`
		ServerType string `yaml:"serverType"`
		User       string `yaml:"user"`
		DSN        string `yaml:"dsn"`
		Query      string `yaml:"query"`
		Procedure  string `yaml:"procedure"`
	} `yaml:"data"`
	Mail *struct {
		To          stringList `yaml:"to"`
		Subject     string     `yaml:"subject"`
		Title       string     `yaml:"title"`
		MailIfEmpty string     `yaml:"mailIfEmpty"`
	} `yaml:"mail"`
	Frequency *struct {
		Type          string `yaml:"type"`
		TimeOfDay     string `yaml:"timeOfDay"`
		DayOfWeekList string `yaml:"dayofweeklist"`
		Daily         string `yaml:"daily"`
		Interval      string `yaml:"interval"`
		Units         string `yaml:"units"`
	} `yaml:"frequency"`
	ValueDivisor *struct {
		Value string `yaml:"value"`
		Round string `yaml:"round"`
		Units string `yaml:"units"`
	} `yaml:"valuedivisor"`
	PostMailIDListHook *struct {
		Server        string `yaml:"server"`
		Database      string `yaml:"database"`
		Procedure     string `yaml:"procedure"`
		Parameter     string `yaml:"parameter"`
		VarcharLength string `yaml:"varcharlength"`
		ServerType    string `yaml:"serverType"`
	} `yaml:"postMailIdListHook"`
}

func decodeYAML(data []byte) (*Document, error) {
	var raw yamlDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
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
			text := d.Query
			if text == "" {
				text = d.Procedure
			}
			def.Data = &DataDef{
				Type:       d.Type,
				Server:     firstNonEmpty(d.Server, d.Source),
				Database:   firstNonEmpty(d.Database, d.Catalog),
				Host:       d.Host,
				ServerType: d.ServerType,
				User:       d.User,
				DSN:        d.DSN,
				Text:       text,
			}
		}
		if m := r.Mail; m != nil {
			def.Mail = &MailDef{To: m.To, Subject: m.Subject, Title: m.Title, MailIfEmpty: m.MailIfEmpty}
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
