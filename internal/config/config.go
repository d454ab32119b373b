// Package config resolves the daemon options from flags, REPORTD_*
// environment variables and an optional reportd.yaml, in that order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "REPORTD"
	ConfigName = "reportd"

	DefaultStatePath = "ReportStatus.json"
	DefaultSMTPPort  = 25
)

const (
	MailerSMTP     = "smtp"
	MailerSendGrid = "sendgrid"
)

type Options struct {
	DefinitionsFile string `mapstructure:"definitions"`

	EmailServer    string `mapstructure:"email-server"`
	EmailFrom      string `mapstructure:"email-from"`
	FontSizeHeader int    `mapstructure:"font-size-header"`
	FontSizeBody   int    `mapstructure:"font-size-body"`
	Mailer         string `mapstructure:"mailer"`
	SMTPPort       int    `mapstructure:"smtp-port"`
	SMTPUsername   string `mapstructure:"smtp-username"`
	SMTPPassword   string `mapstructure:"smtp-password"`
	SendGridAPIKey string `mapstructure:"sendgrid-api-key"`

	Log       bool   `mapstructure:"log"`
	LogDir    string `mapstructure:"log-dir"`
	LogFormat string `mapstructure:"log-format"`
	Debug     bool   `mapstructure:"debug"`

	MaxRuntime      time.Duration `mapstructure:"max-runtime"`
	MaxRuntimeHours int           `mapstructure:"max-runtime-hours"`
	Preview         bool          `mapstructure:"preview"`
	RunOnce         bool          `mapstructure:"run-once"`
	Simulate        bool          `mapstructure:"simulate"`

	StateDriver string `mapstructure:"state-driver"`
	StatePath   string `mapstructure:"state-path"`
	StateDSN    string `mapstructure:"state-dsn"`
	RedisAddr   string `mapstructure:"redis-addr"`

	HTTPAddr string `mapstructure:"http-addr"`

	TickInterval    time.Duration `mapstructure:"tick-interval"`
	SweepInterval   time.Duration `mapstructure:"sweep-interval"`
	PersistInterval time.Duration `mapstructure:"persist-interval"`

	Example         bool   `mapstructure:"example"`
	ExtendedExample bool   `mapstructure:"extended-example"`
	ExampleFormat   string `mapstructure:"example-format"`
}

// RegisterFlags defines every option on fs. Font sizes and the mail server
// default to unset so the definitions file can supply them.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("definitions", "", "report definitions file (.yaml, .yml or .xml)")

	fs.String("email-server", "", "SMTP server used to send reports")
	fs.String("email-from", "", "sender address for report e-mails")
	fs.Int("font-size-header", 0, "report title font size, 6 to 48 (default 20)")
	fs.Int("font-size-body", 0, "report body font size, 6 to 24 (default 12)")
	fs.String("mailer", MailerSMTP, "mail transport: smtp or sendgrid")
	fs.Int("smtp-port", DefaultSMTPPort, "SMTP server port")
	fs.String("smtp-username", "", "SMTP username; enables PLAIN authentication")
	fs.String("smtp-password", "", "SMTP password")
	fs.String("sendgrid-api-key", "", "SendGrid API key")

	fs.Bool("log", false, "also log to a date-stamped file")
	fs.String("log-dir", "", "directory for the log file (default: working directory)")
	fs.String("log-format", "text", "log format: text or json")
	fs.Bool("debug", false, "enable debug logging")

	fs.Duration("max-runtime", 0, "exit after this long; 0 runs indefinitely")
	fs.Int("max-runtime-hours", 0, "exit after this many hours; alias of --max-runtime")
	fs.Bool("preview", false, "print reports instead of e-mailing them")
	fs.Bool("run-once", false, "run every report scheduled for today once, then exit")
	fs.Bool("simulate", false, "do not contact data sources; report what would be run")

	fs.String("state-driver", "file", "runtime state store: file, postgres, redis or sqlite")
	fs.String("state-path", DefaultStatePath, "runtime state file (file and sqlite drivers)")
	fs.String("state-dsn", "", "connection string for the postgres or sqlite state store")
	fs.String("redis-addr", "localhost:6379", "Redis address for the redis state store")

	fs.String("http-addr", "", "listen address for the status server; empty disables it")

	fs.Duration("tick-interval", time.Second, "scheduler polling interval")
	fs.Duration("sweep-interval", 15*time.Second, "how often due reports are checked")
	fs.Duration("persist-interval", 15*time.Minute, "how often runtime state is saved when unchanged")

	fs.Bool("example", false, "print an example report definitions file and exit")
	fs.Bool("extended-example", false, "print an extended example report definitions file and exit")
	fs.String("example-format", "yaml", "format of the example file: yaml or xml")
}

// Load binds fs to v and reads the config file. configFile may be empty, in
// which case reportd.yaml is looked up in the working directory and in
// $HOME/.config/reportd; a missing file is not an error.
func Load(v *viper.Viper, fs *pflag.FlagSet, configFile string) (*Options, error) {
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", ConfigName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if opts.MaxRuntime == 0 && opts.MaxRuntimeHours > 0 {
		opts.MaxRuntime = time.Duration(opts.MaxRuntimeHours) * time.Hour
	}
	return &opts, nil
}

// PrintingExample is true when the daemon should only print an example file.
func (o *Options) PrintingExample() bool {
	return o.Example || o.ExtendedExample
}

func (o *Options) Validate() error {
	var errs []error

	if o.PrintingExample() {
		if f := strings.ToLower(o.ExampleFormat); f != "yaml" && f != "xml" {
			errs = append(errs, fmt.Errorf("invalid example format %q; should be yaml or xml", o.ExampleFormat))
		}
		return errors.Join(errs...)
	}

	if strings.TrimSpace(o.DefinitionsFile) == "" {
		errs = append(errs, errors.New("a report definitions file is required"))
	} else if _, err := os.Stat(o.DefinitionsFile); err != nil {
		errs = append(errs, fmt.Errorf("report definitions file not found: %s", o.DefinitionsFile))
	}

	if o.FontSizeHeader != 0 && (o.FontSizeHeader < 6 || o.FontSizeHeader > 48) {
		errs = append(errs, fmt.Errorf("header font size must be between 6 and 48, got %d", o.FontSizeHeader))
	}
	if o.FontSizeBody != 0 && (o.FontSizeBody < 6 || o.FontSizeBody > 24) {
		errs = append(errs, fmt.Errorf("body font size must be between 6 and 24, got %d", o.FontSizeBody))
	}

	switch o.Mailer {
	case MailerSMTP:
		if o.SMTPPort <= 0 || o.SMTPPort > 65535 {
			errs = append(errs, fmt.Errorf("invalid SMTP port %d", o.SMTPPort))
		}
	case MailerSendGrid:
		if o.SendGridAPIKey == "" && !o.Preview {
			errs = append(errs, errors.New("the sendgrid mailer requires --sendgrid-api-key"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown mailer %q; should be smtp or sendgrid", o.Mailer))
	}

	switch o.StateDriver {
	case "", "file", "sqlite":
	case "postgres":
		if o.StateDSN == "" {
			errs = append(errs, errors.New("the postgres state driver requires --state-dsn"))
		}
	case "redis":
		if o.RedisAddr == "" {
			errs = append(errs, errors.New("the redis state driver requires --redis-addr"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown state driver %q; should be file, postgres, redis or sqlite", o.StateDriver))
	}

	if o.LogFormat != "text" && o.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("invalid log format %q; should be text or json", o.LogFormat))
	}

	for name, d := range map[string]time.Duration{
		"max-runtime":      o.MaxRuntime,
		"tick-interval":    o.TickInterval,
		"sweep-interval":   o.SweepInterval,
		"persist-interval": o.PersistInterval,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if o.MaxRuntimeHours < 0 {
		errs = append(errs, errors.New("max-runtime-hours must not be negative"))
	}

	return errors.Join(errs...)
}

// LogValue renders the options for the startup log with secrets masked.
func (o *Options) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("definitions", o.DefinitionsFile),
		slog.String("email_server", o.EmailServer),
		slog.String("email_from", o.EmailFrom),
		slog.Int("font_size_header", o.FontSizeHeader),
		slog.Int("font_size_body", o.FontSizeBody),
		slog.String("mailer", o.Mailer),
		slog.Int("smtp_port", o.SMTPPort),
		slog.String("smtp_username", o.SMTPUsername),
		slog.String("smtp_password", mask(o.SMTPPassword)),
		slog.String("sendgrid_api_key", mask(o.SendGridAPIKey)),
		slog.Bool("preview", o.Preview),
		slog.Bool("run_once", o.RunOnce),
		slog.Bool("simulate", o.Simulate),
		slog.Duration("max_runtime", o.MaxRuntime),
		slog.String("state_driver", o.StateDriver),
		slog.String("state_path", o.StatePath),
		slog.String("state_dsn", mask(o.StateDSN)),
		slog.String("http_addr", o.HTTPAddr),
	)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
