package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"tasktime/aggregate"
	"tasktime/cache"
	"tasktime/config"
	"tasktime/internal/timeutil"
	"tasktime/notify"
	"tasktime/storage"
	"tasktime/tasks"
	"tasktime/timer"
)

// app bundles the services shared by serve and the one-shot commands.
type app struct {
	store      *storage.SQLiteStore
	cache      *cache.TTLCache
	reports    *aggregate.Engine
	timers     *timer.Registry
	tasks      *tasks.Service
	dispatcher *notify.Dispatcher
	logger     *slog.Logger
	clock      timeutil.Clock
}

func resolveDBPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	return viper.GetString(config.KeyServerDBPath)
}

func newApp(cfg *config.Config, dbPath string, logOutput io.Writer) (*app, error) {
	logger, err := newLogger(cfg.Log, logOutput)
	if err != nil {
		return nil, err
	}

	store, err := storage.OpenSQLite(dbPath)
	if err != nil {
		return nil, err
	}

	clock := timeutil.SystemClock{}
	resultCache, err := cache.NewTTLCache(cfg.Aggregate.CacheSize, clock)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	reports, err := aggregate.NewEngine(store, resultCache, aggregate.Options{
		WindowDays: cfg.Aggregate.WindowDays,
		Limit:      cfg.Aggregate.Limit,
		CacheTTL:   cfg.Aggregate.CacheTTL,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	sender, err := newSender(cfg.Notify, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	dispatcher := notify.NewDispatcher(store, sender, logger)

	return &app{
		store:      store,
		cache:      resultCache,
		reports:    reports,
		timers:     timer.NewRegistry(store, timer.WithClock(clock), timer.WithStaleCheck(isStaleWrite)),
		tasks:      tasks.NewService(store, dispatcher),
		dispatcher: dispatcher,
		logger:     logger,
		clock:      clock,
	}, nil
}

// Close drains pending notifications before releasing the database.
func (a *app) Close() error {
	a.dispatcher.Close()
	a.cache.Purge()
	return a.store.Close()
}

func isStaleWrite(err error) bool {
	return errors.Is(err, storage.ErrStaleEntry) || errors.Is(err, storage.ErrDuplicate)
}

func newSender(cfg config.NotifyConfig, logger *slog.Logger) (notify.Sender, error) {
	if !cfg.Enabled {
		return notify.LogSender{Logger: logger}, nil
	}
	sender, err := notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.From,
	})
	if err != nil {
		return nil, fmt.Errorf("configure smtp sender: %w", err)
	}
	return sender, nil
}

func newLogger(cfg config.LogConfig, out io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(out, opts)), nil
	case "", "text":
		return slog.New(slog.NewTextHandler(out, opts)), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}
}

// withApp runs fn against freshly wired services and closes them afterwards.
func withApp(dbPath string, fn func(a *app) error) (err error) {
	cfg, err := config.LoadAndValidate()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, resolveDBPath(dbPath), os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return fn(a)
}
