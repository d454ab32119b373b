package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nadmax/reportd/internal/api"
	"github.com/nadmax/reportd/internal/config"
	"github.com/nadmax/reportd/internal/datasource"
	"github.com/nadmax/reportd/internal/logger"
	"github.com/nadmax/reportd/internal/logger/tag"
	"github.com/nadmax/reportd/internal/notify"
	"github.com/nadmax/reportd/internal/registry"
	"github.com/nadmax/reportd/internal/reportdef"
	"github.com/nadmax/reportd/internal/repository"
	"github.com/nadmax/reportd/internal/scheduler"
	"github.com/nadmax/reportd/internal/task"
	"github.com/nadmax/reportd/internal/watcher"
)

const sendGridFromName = "Report Daemon"

func run(ctx context.Context, opts *config.Options) error {
	log, err := logger.New(loggerOptions(opts)...)
	if err != nil {
		return err
	}
	defer func() {
		if err := log.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
		}
	}()
	slog.SetDefault(log.Logger)

	slog.Info("Using options", slog.Any("options", opts))
	if path := log.FilePath(); path != "" {
		slog.Info("Logging to file", tag.File(path))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := repository.Open(ctx, repository.Config{
		Driver:    opts.StateDriver,
		Path:      opts.StatePath,
		DSN:       opts.StateDSN,
		RedisAddr: opts.RedisAddr,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			slog.Warn("Failed to close state store", tag.Error(err))
		}
	}()

	connector := datasource.NewConnector()
	defer func() {
		if err := connector.Close(); err != nil {
			slog.Warn("Failed to close data source connections", tag.Error(err))
		}
	}()
	factory := datasource.NewFactory(opts.Simulate, connector)

	cli := reportdef.EmailInfo{
		Server:         opts.EmailServer,
		From:           opts.EmailFrom,
		FontSizeHeader: opts.FontSizeHeader,
		FontSizeBody:   opts.FontSizeBody,
	}
	notifier := notify.New(newMailer(opts), mailSettings(cli.WithDefaults()), notify.WithPreview(opts.Preview))

	schedOpts := []scheduler.Option{}
	if !opts.RunOnce {
		w, err := watcher.New(opts.DefinitionsFile)
		if err != nil {
			slog.Warn("Unable to watch the report definitions file; changes will not be picked up",
				tag.File(opts.DefinitionsFile), tag.Error(err))
		} else {
			defer func() { _ = w.Close() }()
			w.Start(ctx)
			schedOpts = append(schedOpts, scheduler.WithChangeSignal(w))
		}
	}

	sched := scheduler.New(scheduler.Config{
		TickInterval:    opts.TickInterval,
		SweepInterval:   opts.SweepInterval,
		PersistInterval: opts.PersistInterval,
		MaxRuntime:      opts.MaxRuntime,
		RunOnce:         opts.RunOnce,
	}, registry.New(), repo, definitionsLoader(opts.DefinitionsFile, factory, cli, notifier), notifier, schedOpts...)

	if opts.HTTPAddr != "" && !opts.RunOnce {
		srv := &http.Server{
			Addr:              opts.HTTPAddr,
			Handler:           api.NewAPI(sched, repo),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("Status server starting", tag.Addr(opts.HTTPAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Status server failed", tag.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("Failed to stop status server", tag.Error(err))
			}
		}()
	}

	if err := sched.Start(ctx); err != nil {
		slog.Error("Exiting due to a fatal error", tag.Error(err))
		return err
	}
	slog.Info("Exiting")
	return nil
}

func loggerOptions(opts *config.Options) []logger.Option {
	lo := []logger.Option{logger.WithFormat(opts.LogFormat)}
	if opts.Debug {
		lo = append(lo, logger.WithDebug())
	}
	if opts.Log {
		lo = append(lo, logger.WithLogDir(opts.LogDir))
	}
	return lo
}

func newMailer(opts *config.Options) notify.Mailer {
	if opts.Mailer == config.MailerSendGrid {
		return notify.NewSendGridMailer(opts.SendGridAPIKey, sendGridFromName)
	}
	return notify.NewSMTPMailer(opts.SMTPPort, opts.SMTPUsername, opts.SMTPPassword)
}

func mailSettings(e reportdef.EmailInfo) notify.Settings {
	return notify.Settings{
		Server:         e.Server,
		From:           e.From,
		FontSizeHeader: e.FontSizeHeader,
		FontSizeBody:   e.FontSizeBody,
	}
}

// definitionsLoader reads the definitions file on every call. Report
// problems are logged and the remaining reports are returned; the mail
// settings the file carries are applied to the notifier.
func definitionsLoader(path string, factory *datasource.Factory, cli reportdef.EmailInfo, notifier *notify.Notifier) scheduler.Loader {
	return func(_ context.Context, firstLoad bool) ([]task.Definition, error) {
		res, err := reportdef.Load(path, factory)
		if err != nil {
			return nil, err
		}
		for _, w := range res.Warnings {
			slog.Warn(w, tag.File(path))
		}

		notifier.SetSettings(mailSettings(reportdef.ResolveEmail(cli, res.Email, firstLoad)))
		slog.Info("Loaded report definitions", tag.File(path), tag.Count(len(res.Definitions)))
		return res.Definitions, nil
	}
}
