package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-monitor/internal/auth"
	"github.com/spec-kit/sla-monitor/internal/config"
	"github.com/spec-kit/sla-monitor/internal/credentials"
	"github.com/spec-kit/sla-monitor/internal/domain"
	"github.com/spec-kit/sla-monitor/internal/events"
	"github.com/spec-kit/sla-monitor/internal/mailbox"
	"github.com/spec-kit/sla-monitor/internal/notify"
	"github.com/spec-kit/sla-monitor/internal/observability"
	"github.com/spec-kit/sla-monitor/internal/persistence"
	"github.com/spec-kit/sla-monitor/internal/repository"
	"github.com/spec-kit/sla-monitor/internal/repository/memory"
	"github.com/spec-kit/sla-monitor/internal/service"
	apperrors "github.com/spec-kit/sla-monitor/pkg/util/errorutil"
)

// application holds every wired component of one process.
type application struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics

	postgres *persistence.Postgres
	redis    *persistence.Redis

	users    repository.UserRepository
	queue    notify.Queue
	breaker  *notify.BreakingTransport
	notifier *notify.Worker

	tokens    *auth.TokenManager
	auth      *service.AuthService
	lifecycle *service.LifecycleService
	sla       *service.SLAService
	ingestion *service.IngestionService
}

type repositories struct {
	tickets  repository.TicketRepository
	users    repository.UserRepository
	history  repository.TicketHistoryRepository
	policies repository.SLAPolicyRepository
	settings repository.MailSettingsRepository
	problems repository.ProblemTypeRepository
}

func newApplication(ctx context.Context) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	a := &application{cfg: cfg, logger: logger, metrics: observability.NewMetrics()}

	a.postgres, err = persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}
	if a.postgres.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, a.postgres.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	repos := a.repositories()
	a.users = repos.users

	cipher, err := credentials.NewFernetCipher(cfg.Credentials.EncryptionKey)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("invalid HELPDESK_ENCRYPTION_KEY: %w", err)
	}

	switch cfg.Notification.Queue {
	case "redis":
		a.redis = persistence.NewRedis(ctx, cfg.Redis, logger)
		a.queue = notify.NewRedisQueue(a.redis.Client, cfg.Notification.QueueKey, cfg.Notification.QueueSize)
	default:
		a.queue = notify.NewMemoryQueue(cfg.Notification.QueueSize)
	}

	renderer, err := notify.NewRenderer(cfg.Notification.BrandName)
	if err != nil {
		a.Close()
		return nil, err
	}

	dispatcher := events.NewInMemoryDispatcher()
	service.NewNotificationService(dispatcher, repos.users, a.queue, renderer, logger, a.metrics).RegisterHandlers()

	smtpTransport := notify.NewSMTPTransport(repos.settings, cipher, cfg.Notification.EmailFrom, cfg.Notification.BrandName)
	a.breaker = notify.NewBreakingTransport(smtpTransport, notify.BreakerSettings{
		MinRequests: cfg.Notification.BreakerMinFails,
		Timeout:     cfg.Notification.BreakerTimeout(),
	}, logger)
	a.notifier = notify.NewWorker(a.queue, a.breaker, cfg.Notification.SendRatePerSecond, cfg.Notification.SendBurst, logger, a.metrics)

	a.lifecycle = service.NewLifecycleService(service.LifecycleDependencies{
		TicketRepo:  repos.tickets,
		UserRepo:    repos.users,
		HistoryRepo: repos.history,
		ProblemRepo: repos.problems,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	a.sla = service.NewSLAService(service.SLADependencies{
		TicketRepo: repos.tickets,
		PolicyRepo: repos.policies,
		Dispatcher: dispatcher,
		Thresholds: cfg.SLA.WarningThresholds,
		Workers:    cfg.SLA.Workers,
		Logger:     logger.Named("sla"),
		Metrics:    a.metrics,
	})
	a.ingestion = service.NewIngestionService(service.IngestionDependencies{
		SettingsRepo:    repos.settings,
		UserRepo:        repos.users,
		Tickets:         a.lifecycle,
		Decrypter:       cipher,
		Transport:       mailbox.NewIMAPTransport(cfg.Mail.Mailbox, cfg.Mail.DialTimeout(), logger),
		ConnectRetries:  cfg.Mail.ConnectRetries,
		RetryDelay:      cfg.Mail.RetryDelay(),
		SubjectKeywords: cfg.Mail.SubjectKeywords,
		PollInterval:    cfg.Mail.PollInterval(),
		BcryptCost:      cfg.Auth.BcryptCost,
		Logger:          logger.Named("mail"),
		Metrics:         a.metrics,
	})

	a.tokens = auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	a.auth = service.NewAuthService(repos.users, a.tokens)
	return a, nil
}

func (a *application) repositories() repositories {
	if a.postgres.Enabled() {
		pool := a.postgres.PoolHandle()
		return repositories{
			tickets:  repository.NewTicketRepository(pool),
			users:    repository.NewUserRepository(pool),
			history:  repository.NewTicketHistoryRepository(pool),
			policies: repository.NewSLAPolicyRepository(pool),
			settings: repository.NewMailSettingsRepository(pool),
			problems: repository.NewProblemTypeRepository(pool),
		}
	}
	return repositories{
		tickets:  memory.NewTickets(),
		users:    memory.NewUsers(),
		history:  memory.NewHistory(),
		policies: memory.NewPolicies(memory.DefaultPolicies()...),
		settings: memory.NewMailSettings(nil),
		problems: memory.NewProblemTypes(memory.DefaultProblemTypes()...),
	}
}

// bootstrapAdmin creates the configured administrator when nobody holds its address.
func (a *application) bootstrapAdmin(ctx context.Context) error {
	email := a.cfg.Auth.BootstrapEmail
	if email == "" || a.cfg.Auth.BootstrapPassword == "" {
		return nil
	}
	if _, err := a.users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !apperrors.IsNotFound(err) {
		return err
	}
	hash, err := auth.HashPassword(a.cfg.Auth.BootstrapPassword, a.cfg.Auth.BcryptCost)
	if err != nil {
		return err
	}
	admin := &domain.User{
		Username:     "admin",
		FullName:     "Administrator",
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleAdministrator,
		Active:       true,
	}
	if err := a.users.Create(ctx, admin); err != nil {
		return err
	}
	a.logger.Info("bootstrap administrator created", zap.String("email", email))
	return nil
}

// Close releases backends. Safe on a partially built application.
func (a *application) Close() {
	if a.queue != nil {
		_ = a.queue.Close()
	}
	a.redis.Close()
	a.postgres.Close()
	_ = a.logger.Sync()
}
