package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"letters/api/internal/compose"
	"letters/api/internal/config"
	"letters/api/internal/email"
	"letters/api/internal/intake"
	"letters/api/internal/letters"
	"letters/api/internal/lifecycle"
	"letters/api/internal/lock"
	"letters/api/internal/store"
	"letters/api/internal/token"
)

// Runtime is the assembled service together with the connections it owns.
type Runtime struct {
	Service   *Service
	Lifecycle *lifecycle.Service
	closers   []func() error
}

// Build opens the store, applies migrations and wires every collaborator
// selected by cfg. Optional backends (SMTP, Redis, MinIO) are used only when
// configured.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Runtime, error) {
	rt := &Runtime{}

	db, dialect, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	rt.closers = append(rt.closers, db.Close)

	if err := store.ApplyMigrations(ctx, db, dialect); err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}
	dataStore := store.New(db, dialect)
	checks := map[string]Pinger{"database": dataStore}

	codec, err := token.NewCodec(cfg.TokenKey)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	tokens := token.NewService(dataStore, codec)

	var sender email.Sender
	smtpService := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if smtpService.IsConfigured() {
		sender = email.NewRetryingSender(smtpService, email.RetryPolicy{
			MaxTries:        cfg.EmailMaxTries,
			InitialInterval: cfg.EmailRetryInitial,
			MaxInterval:     cfg.EmailRetryMaxWait,
		}, logger)
	} else {
		logger.Warn("SMTP is not configured, outgoing email will only be logged")
		sender = email.NewLogSender(logger)
	}

	var locker lifecycle.Locker = lock.Local{}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Info("Using Redis for the sweep lock")
		redisLocker, err := lock.NewRedisLocker(cfg.RedisURL)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		rt.closers = append(rt.closers, redisLocker.Close)
		locker = redisLocker
		checks["redis"] = redisLocker
	}

	var objects letters.Backend
	minioCfg := letters.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	}
	if minioCfg.IsConfigured() {
		logger.Info("Using MinIO for letter storage", zap.String("bucket", minioCfg.Bucket))
		minioStore, err := letters.NewMinioStore(ctx, minioCfg)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("letter storage failed: %w", err)
		}
		objects = minioStore
	}
	router := letters.NewRouter(dataStore, objects)

	rt.Lifecycle = lifecycle.NewService(lifecycle.Config{
		TokenGrace:   cfg.TokenGrace,
		SweepBatch:   cfg.SweepBatch,
		SweepLockTTL: cfg.SweepLockTTL,
	}, lifecycle.Deps{
		Store:    dataStore,
		Tokens:   tokens,
		Composer: compose.New(cfg.AppName, cfg.BaseURL, nil),
		Sender:   sender,
		Locker:   locker,
		Logger:   logger,
	})

	rt.Service = New(cfg, Deps{
		Lifecycle:  rt.Lifecycle,
		Intake:     intake.NewService(tokens, rt.Lifecycle, router, logger),
		Deliveries: dataStore,
		Letters:    router,
		Checks:     checks,
		Logger:     logger,
	})
	return rt, nil
}

// Close releases connections in reverse order of opening.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
