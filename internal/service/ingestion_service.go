package service

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-monitor/internal/auth"
	"github.com/spec-kit/sla-monitor/internal/credentials"
	"github.com/spec-kit/sla-monitor/internal/domain"
	"github.com/spec-kit/sla-monitor/internal/events"
	"github.com/spec-kit/sla-monitor/internal/mailbox"
	"github.com/spec-kit/sla-monitor/internal/observability"
	"github.com/spec-kit/sla-monitor/internal/repository"
	"github.com/spec-kit/sla-monitor/internal/worker"
	apperrors "github.com/spec-kit/sla-monitor/pkg/util/errorutil"
)

const (
	generatedPasswordLength = 16
	defaultRequesterName    = "Created from email"
)

// Per-message outcomes, also used as metric labels.
const (
	MessageCreated   = "created"
	MessageIgnored   = "ignored"
	MessageMalformed = "malformed"
	MessageEmpty     = "empty"
	MessageDeferred  = "deferred"
)

// TicketCreator is the part of the lifecycle service ingestion depends on.
type TicketCreator interface {
	CreateTicket(ctx context.Context, input CreateTicketInput) (*domain.Ticket, error)
}

// IngestionService polls the support mailbox and turns matching messages into tickets.
type IngestionService struct {
	settings  repository.MailSettingsRepository
	users     repository.UserRepository
	tickets   TicketCreator
	decrypter credentials.Decrypter
	transport mailbox.Transport
	retry     worker.RetryPolicy
	keywords  []string
	interval  time.Duration
	bcrypt    int
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// IngestionDependencies bundles collaborators for the ingestion service.
type IngestionDependencies struct {
	SettingsRepo    repository.MailSettingsRepository
	UserRepo        repository.UserRepository
	Tickets         TicketCreator
	Decrypter       credentials.Decrypter
	Transport       mailbox.Transport
	ConnectRetries  int
	RetryDelay      time.Duration
	Sleep           worker.Sleeper
	SubjectKeywords []string
	PollInterval    time.Duration
	BcryptCost      int
	Logger          *zap.Logger
	Metrics         *observability.Metrics
}

// IngestionResult summarizes one polling cycle.
type IngestionResult struct {
	Skipped   bool `json:"skipped"`
	Unread    int  `json:"unread"`
	Created   int  `json:"created"`
	Ignored   int  `json:"ignored"`
	Malformed int  `json:"malformed"`
	Empty     int  `json:"empty"`
	Deferred  int  `json:"deferred"`
}

// NewIngestionService constructs the service.
func NewIngestionService(deps IngestionDependencies) *IngestionService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &IngestionService{
		settings:  deps.SettingsRepo,
		users:     deps.UserRepo,
		tickets:   deps.Tickets,
		decrypter: deps.Decrypter,
		transport: deps.Transport,
		keywords:  deps.SubjectKeywords,
		interval:  deps.PollInterval,
		bcrypt:    deps.BcryptCost,
		logger:    logger,
		metrics:   deps.Metrics,
	}
	s.retry = worker.RetryPolicy{
		Attempts: deps.ConnectRetries,
		Delay:    deps.RetryDelay,
		Sleep:    deps.Sleep,
		OnFailure: func(attempt int, err error) {
			s.logger.Warn("mailbox connection attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", deps.ConnectRetries),
				zap.Error(err))
		},
	}
	return s
}

// Run adapts RunMailIngestion to the periodic task signature.
func (s *IngestionService) Run(ctx context.Context) error {
	_, err := s.RunMailIngestion(ctx)
	return err
}

// PollInterval prefers the interval stored with the mail settings and falls back to
// the configured default.
func (s *IngestionService) PollInterval(ctx context.Context) time.Duration {
	settings, err := s.settings.Get(ctx)
	if err == nil && settings.CheckIntervalMinutes > 0 {
		return time.Duration(settings.CheckIntervalMinutes) * time.Minute
	}
	return s.interval
}

// RunMailIngestion runs one polling cycle. A cycle that cannot connect returns an error
// wrapping ErrTransientConnection and touches no message.
func (s *IngestionService) RunMailIngestion(ctx context.Context) (IngestionResult, error) {
	result, err := s.ingest(ctx)
	s.metrics.RecordIngestion(err)
	return result, err
}

func (s *IngestionService) ingest(ctx context.Context) (IngestionResult, error) {
	var result IngestionResult

	settings, err := s.settings.Get(ctx)
	if err != nil {
		if apperrors.IsNotFound(err) {
			s.logger.Debug("mail ingestion not configured")
			result.Skipped = true
			return result, nil
		}
		return result, apperrors.Classify(apperrors.ErrPersistence, "load mail settings", err)
	}
	if !settings.Active {
		s.logger.Debug("mail ingestion disabled")
		result.Skipped = true
		return result, nil
	}

	password, err := s.decrypter.Decrypt(settings.EncryptedPassword)
	if err != nil {
		return result, err
	}

	session, err := worker.Retry(ctx, s.retry, func(ctx context.Context, attempt int) (mailbox.Session, error) {
		return s.transport.Connect(ctx, *settings, password)
	})
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		s.logger.Error("mailbox unreachable; cycle abandoned",
			zap.String("server", settings.Server), zap.Error(err))
		return result, apperrors.Classify(apperrors.ErrTransientConnection, "connect mailbox", err)
	}
	defer func() {
		if err := session.Logout(); err != nil {
			s.logger.Debug("mailbox logout", zap.Error(err))
		}
	}()

	uids, err := session.SearchUnseen(ctx)
	if err != nil {
		return result, apperrors.Classify(apperrors.ErrTransientConnection, "search unseen", err)
	}
	result.Unread = len(uids)

	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		outcome := s.processMessage(ctx, session, uid)
		s.metrics.RecordMessage(outcome)
		switch outcome {
		case MessageCreated:
			result.Created++
		case MessageIgnored:
			result.Ignored++
		case MessageMalformed:
			result.Malformed++
		case MessageEmpty:
			result.Empty++
		case MessageDeferred:
			result.Deferred++
		}
	}

	s.logger.Info("mail ingestion finished",
		zap.Int("unread", result.Unread),
		zap.Int("created", result.Created),
		zap.Int("ignored", result.Ignored),
		zap.Int("malformed", result.Malformed),
		zap.Int("empty", result.Empty),
		zap.Int("deferred", result.Deferred))
	return result, nil
}

// processMessage handles one unread message. Deferred messages stay unread so the next
// cycle picks them up again; every other outcome marks the message read. A panic is
// confined to its message.
func (s *IngestionService) processMessage(ctx context.Context, session mailbox.Session, uid uint32) (outcome string) {
	var sender string
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("message processing panicked; leaving message unread",
				zap.Uint32("uid", uid),
				zap.String("from", sender),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			outcome = MessageDeferred
		}
	}()
	return s.handleMessage(ctx, session, uid, &sender)
}

func (s *IngestionService) handleMessage(ctx context.Context, session mailbox.Session, uid uint32, sender *string) string {
	log := s.logger.With(zap.Uint32("uid", uid))

	raw, err := session.Fetch(ctx, uid)
	if err != nil {
		log.Warn("fetch message", zap.Error(err))
		return MessageDeferred
	}

	parsed, err := mailbox.Parse(raw)
	if err != nil {
		log.Warn("discarding malformed message",
			zap.Error(apperrors.Classify(apperrors.ErrMalformedMessage, "parse", err)))
		s.markSeen(ctx, session, uid, log)
		return MessageMalformed
	}
	*sender = parsed.FromAddress
	log = log.With(zap.String("from", parsed.FromAddress), zap.String("subject", parsed.Subject))

	if !mailbox.MatchesKeyword(parsed.Subject, s.keywords) {
		log.Debug("subject has no accepted keyword")
		s.markSeen(ctx, session, uid, log)
		return MessageIgnored
	}

	requester, err := s.resolveSender(ctx, parsed)
	if err != nil {
		log.Error("resolve sender; leaving message unread",
			zap.Error(apperrors.Classify(apperrors.ErrIdentityCreation, "resolve sender", err)))
		return MessageDeferred
	}

	body := strings.TrimSpace(parsed.PlainBody)
	if body == "" {
		log.Info("message has no plain text body")
		s.markSeen(ctx, session, uid, log)
		return MessageEmpty
	}

	ticket, err := s.tickets.CreateTicket(ctx, CreateTicketInput{
		Title:       parsed.Subject,
		Description: body,
		RequesterID: requester.ID,
		CreatorID:   requester.ID,
		Source:      events.SourceMail,
	})
	if err != nil {
		log.Error("create ticket from mail; leaving message unread",
			zap.Error(apperrors.Classify(apperrors.ErrPersistence, "create ticket", err)))
		return MessageDeferred
	}

	s.markSeen(ctx, session, uid, log)
	log.Info("ticket created from mail", zap.String("ticket_id", ticket.ID))
	return MessageCreated
}

func (s *IngestionService) markSeen(ctx context.Context, session mailbox.Session, uid uint32, log *zap.Logger) {
	if err := session.MarkSeen(ctx, uid); err != nil {
		log.Warn("mark message read", zap.Error(err))
	}
}

// resolveSender finds the user behind the sender address or creates a self-service
// account for it. Creation is attempted once.
func (s *IngestionService) resolveSender(ctx context.Context, parsed *mailbox.Parsed) (*domain.User, error) {
	address := strings.ToLower(strings.TrimSpace(parsed.FromAddress))
	if address == "" {
		return nil, errors.New("sender has no address")
	}
	user, err := s.users.GetByEmail(ctx, address)
	if err == nil {
		return user, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, err
	}

	password, err := auth.GeneratePassword(generatedPasswordLength)
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password, s.bcrypt)
	if err != nil {
		return nil, err
	}
	fullName := strings.TrimSpace(parsed.FromName)
	if fullName == "" {
		fullName = defaultRequesterName
	}
	user = &domain.User{
		Username:     address,
		FullName:     fullName,
		Email:        address,
		PasswordHash: hash,
		Role:         domain.RoleSelfService,
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("self-service user created", zap.String("user_id", user.ID), zap.String("email", address))
	return user, nil
}
