// Package app wires configuration, storage and services into the HTTP API.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/confreg/backend/config"
	"github.com/confreg/backend/internal/emaillogs"
	"github.com/confreg/backend/internal/lookups"
	"github.com/confreg/backend/internal/notify"
	"github.com/confreg/backend/internal/ratelimit"
	"github.com/confreg/backend/internal/registrations"
	"github.com/confreg/backend/internal/rsvp"
	"github.com/confreg/backend/internal/session"
	"github.com/confreg/backend/pkg/database"
	"github.com/confreg/backend/pkg/mailer"
	"github.com/confreg/backend/pkg/redis"
	"github.com/confreg/backend/pkg/storage"
)

const sessionSweepInterval = time.Minute

// App holds the long-lived dependencies shared by the server and regctl.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *database.DB
	Redis  *redis.Client

	Sessions *session.Manager
	Limiter  ratelimit.Limiter
	Notifier *notify.Notifier
	Photos   storage.ObjectStore

	RegistrationRepo *registrations.Repository
	Registrations    *registrations.Service
	RSVP             *rsvp.Service
	Lookups          *lookups.Repository
	EmailLogs        *emaillogs.Repository

	closers []io.Closer
}

// New opens the database, applies migrations, connects Redis when configured and builds every service.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	db, err := database.Open(ctx, cfg.Database.Driver, cfg.Database.DSN(), logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, db)
	if err := database.Migrate(ctx, db); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	policy := ratelimit.Policy{
		Window:      time.Duration(cfg.RateLimit.WindowMin) * time.Minute,
		MaxAttempts: cfg.RateLimit.MaxAttempts,
		Lockout:     time.Duration(cfg.RateLimit.LockoutMin) * time.Minute,
	}
	var store session.Store
	if rdb != nil {
		a.Redis = rdb
		a.closers = append(a.closers, rdb)
		store = session.NewRedisStore(rdb.Client)
		a.Limiter = ratelimit.NewRedisLimiter(rdb.Client, policy)
	} else {
		mem := session.NewMemoryStore(sessionSweepInterval)
		lim := ratelimit.NewMemoryLimiter(policy)
		a.closers = append(a.closers, mem, lim)
		store = mem
		a.Limiter = lim
	}
	a.Sessions = session.NewManager(store, cfg.Session.TTL())

	sender, err := newSender(cfg.Email, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.EmailLogs = emaillogs.NewRepository(db)
	a.Notifier = notify.New(notify.Config{
		Send:        cfg.Email.Send,
		SMTPServer:  cfg.Email.SMTPServer,
		RSVPURL:     cfg.Email.RSVPURL,
		TemplateDir: cfg.Email.TemplateDir,
	}, sender, a.EmailLogs, logger)

	a.RegistrationRepo = registrations.NewRepository(db)
	a.Registrations = registrations.NewService(a.RegistrationRepo, a.Notifier, logger)
	a.RSVP = rsvp.NewService(a.Registrations, a.Notifier, logger)
	a.Lookups = lookups.NewRepository(db)

	photos, err := newPhotoStore(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Photos = photos
	return a, nil
}

// newSender returns an SMTP sender when sending is enabled and configured, otherwise a log-only sender.
// Missing SMTP settings with sending enabled are reported per request by notify.CheckConfig.
func newSender(cfg config.EmailConfig, logger *zap.Logger) (mailer.Sender, error) {
	if !cfg.Send || cfg.SMTPServer == "" {
		return mailer.NewLogSender(logger), nil
	}
	s, err := mailer.NewSMTPSender(mailer.SMTPConfig{
		Server:   cfg.SMTPServer,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.From,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("mailer: %w", err)
	}
	return s, nil
}

func newPhotoStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.ObjectStore, error) {
	if cfg.AWS.PhotosBucket != "" {
		s3, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			PhotosBucket:    cfg.AWS.PhotosBucket,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("s3: %w", err)
		}
		return s3, nil
	}
	local, err := storage.NewLocal(cfg.Presenter.PhotoDir)
	if err != nil {
		return nil, fmt.Errorf("photo dir: %w", err)
	}
	logger.Info("storing presenter photos on disk", zap.String("dir", cfg.Presenter.PhotoDir))
	return local, nil
}

// Close releases the database, Redis and in-memory stores in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.Logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}
