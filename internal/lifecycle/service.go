// Package lifecycle owns every status change of a recommendation request.
// No other package writes request state.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"letters/api/internal/compose"
	"letters/api/internal/email"
	"letters/api/internal/lock"
	"letters/api/internal/policy"
	"letters/api/internal/recommendation"
	"letters/api/internal/schedule"
	"letters/api/internal/token"
)

// Store is the persistence the lifecycle needs. Mark* and AdvanceReminder
// report false when the row was not in the expected state.
type Store interface {
	CreateRequest(ctx context.Context, req recommendation.Request) error
	DiscardPending(ctx context.Context, id string) (bool, error)
	GetRequest(ctx context.Context, id string) (recommendation.Request, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time, next *time.Time) (bool, error)
	AdvanceReminder(ctx context.Context, id string, expected, firedAt time.Time, next *time.Time) (bool, error)
	MarkExpired(ctx context.Context, id string, at time.Time) (bool, error)
	MarkReceived(ctx context.Context, id string, at time.Time, letterRef string) (bool, error)
	ListDueReminders(ctx context.Context, now time.Time, limit int) ([]recommendation.Request, error)
	ListClosing(ctx context.Context, cutoff time.Time, limit int) ([]recommendation.Request, error)
	RecordDelivery(ctx context.Context, d recommendation.Delivery) error
}

type Tokens interface {
	Issue(ctx context.Context, requestID string, ttl time.Duration) (token.Issued, error)
	Reveal(sealed []byte) (string, error)
}

type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (lock.Unlock, bool, error)
}

type Config struct {
	// TokenGrace keeps links valid for a while past the deadline so late
	// visitors see "deadline passed" rather than "link expired".
	TokenGrace   time.Duration
	SweepBatch   int
	SweepLockTTL time.Duration
}

type Deps struct {
	Store    Store
	Tokens   Tokens
	Composer *compose.Composer
	Sender   email.Sender
	Locker   Locker
	Logger   *zap.Logger
}

type Service struct {
	store    Store
	tokens   Tokens
	composer *compose.Composer
	sender   email.Sender
	locker   Locker
	logger   *zap.Logger
	tracer   trace.Tracer
	cfg      Config
	clock    func() time.Time
	newID    func() string
}

func NewService(cfg Config, deps Deps) *Service {
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 200
	}
	if cfg.SweepLockTTL <= 0 {
		cfg.SweepLockTTL = 5 * time.Minute
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	locker := deps.Locker
	if locker == nil {
		locker = lock.Local{}
	}
	return &Service{
		store:    deps.Store,
		tokens:   deps.Tokens,
		composer: deps.Composer,
		sender:   deps.Sender,
		locker:   locker,
		logger:   logger,
		tracer:   otel.Tracer("letters/api/internal/lifecycle"),
		cfg:      cfg,
		clock:    time.Now,
		newID:    uuid.NewString,
	}
}

func (s *Service) Get(ctx context.Context, id string) (recommendation.Request, error) {
	return s.store.GetRequest(ctx, id)
}

// Create validates a draft, persists it as pending and issues its token.
func (s *Service) Create(ctx context.Context, d recommendation.Draft) (recommendation.Request, error) {
	now := s.clock().UTC()
	req, err := recommendation.NewRequest(d, now)
	if err != nil {
		return recommendation.Request{}, err
	}
	if schedule.WindowClosed(req.Deadline, now) {
		return recommendation.Request{}, &recommendation.ValidationError{Field: "deadline", Reason: "must be more than an hour away"}
	}
	if _, err := policy.For(req.Route); err != nil {
		return recommendation.Request{}, err
	}

	req.ID = s.newID()
	req.Status = recommendation.StatusPending
	if err := s.store.CreateRequest(ctx, req); err != nil {
		return recommendation.Request{}, fmt.Errorf("create request: %w", err)
	}

	issued, err := s.tokens.Issue(ctx, req.ID, req.Deadline.Sub(now)+s.cfg.TokenGrace)
	if err != nil {
		if _, discardErr := s.store.DiscardPending(context.WithoutCancel(ctx), req.ID); discardErr != nil {
			s.logger.Error("discard request without token",
				zap.String("request_id", req.ID),
				zap.Error(discardErr),
			)
		}
		return recommendation.Request{}, err
	}
	req.SecureToken = issued.Token
	req.SealedToken = issued.Sealed
	req.TokenExpiresAt = &issued.ExpiresAt

	s.logger.Info("recommendation request created",
		zap.String("request_id", req.ID),
		zap.String("route", req.Route.String()),
		zap.Time("deadline", req.Deadline),
	)
	return req, nil
}

// Start creates a request and dispatches it.
func (s *Service) Start(ctx context.Context, d recommendation.Draft) (recommendation.Request, error) {
	created, err := s.Create(ctx, d)
	if err != nil {
		return recommendation.Request{}, err
	}
	sent, err := s.Dispatch(ctx, created.ID)
	if sent.ID == "" {
		return created, err
	}
	sent.SecureToken = created.SecureToken
	return sent, err
}

// Dispatch moves a pending request to sent and emails the recommender. The
// transition is committed first; a send failure comes back as a
// *DeliveryError alongside the updated request.
func (s *Service) Dispatch(ctx context.Context, id string) (recommendation.Request, error) {
	ctx, span := s.tracer.Start(ctx, "lifecycle.Dispatch", trace.WithAttributes(attribute.String("request.id", id)))
	defer span.End()

	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return recommendation.Request{}, err
	}
	if req.Status != recommendation.StatusPending {
		return req, &recommendation.TransitionError{From: req.Status, To: recommendation.StatusSent}
	}

	delivery, err := policy.For(req.Route)
	if err != nil {
		return req, err
	}
	link, err := s.portalToken(req, delivery)
	if err != nil {
		return req, err
	}
	msg, err := s.composer.Initial(req, link)
	if err != nil {
		return req, fmt.Errorf("compose initial: %w", err)
	}

	now := s.clock().UTC()
	next := schedule.NextReminder(req, now)
	ok, err := s.store.MarkSent(ctx, id, now, next)
	if err != nil {
		return req, err
	}
	if !ok {
		return req, s.lostTransition(ctx, id, recommendation.StatusSent)
	}
	req.Status = recommendation.StatusSent
	req.SentAt = &now
	req.NextReminderAt = next
	req.UpdatedAt = now

	to, cc := delivery.Addresses(req)
	err = s.deliver(ctx, req, recommendation.DeliveryInitial, email.Message{To: to, Cc: cc, Subject: msg.Subject, HTML: msg.HTML})
	recordSpanError(span, err)
	return req, err
}

// FireReminder sends the due reminder for a request and advances its cursor.
func (s *Service) FireReminder(ctx context.Context, id string) (recommendation.Request, error) {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return recommendation.Request{}, err
	}
	return s.fireReminder(ctx, req, s.clock().UTC())
}

func (s *Service) fireReminder(ctx context.Context, req recommendation.Request, now time.Time) (recommendation.Request, error) {
	ctx, span := s.tracer.Start(ctx, "lifecycle.FireReminder", trace.WithAttributes(attribute.String("request.id", req.ID)))
	defer span.End()

	if req.Status != recommendation.StatusSent {
		return req, &recommendation.TransitionError{From: req.Status, To: recommendation.StatusSent}
	}
	if !schedule.IsDue(req, now) {
		return req, ErrNotDue
	}
	if schedule.WindowClosed(req.Deadline, now) {
		return req, fmt.Errorf("deadline window closed: %w", ErrNotDue)
	}

	delivery, err := policy.For(req.Route)
	if err != nil {
		return req, err
	}
	link, err := s.portalToken(req, delivery)
	if err != nil {
		return req, err
	}
	days := schedule.DaysUntilDeadline(req.Deadline, now)
	urgency := schedule.UrgencyOf(days)
	msg, err := s.composer.Reminder(req, link, days, urgency)
	if err != nil {
		return req, fmt.Errorf("compose reminder: %w", err)
	}

	expected := *req.NextReminderAt
	fired := req
	fired.LastReminderAt = &now
	next := schedule.NextReminder(fired, now)
	ok, err := s.store.AdvanceReminder(ctx, req.ID, expected, now, next)
	if err != nil {
		return req, err
	}
	if !ok {
		return req, s.lostReminder(ctx, req.ID)
	}
	req.LastReminderAt = &now
	req.NextReminderAt = next
	req.ReminderCount++
	req.UpdatedAt = now

	span.SetAttributes(attribute.String("reminder.urgency", urgency.String()), attribute.Int("reminder.days_left", days))
	err = s.deliver(ctx, req, recommendation.DeliveryReminder, email.Message{
		To:      []string{req.Recommender.Email},
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})
	recordSpanError(span, err)
	return req, err
}

// Expire closes a sent request once it is within the closing lead of its
// deadline.
func (s *Service) Expire(ctx context.Context, id string) (recommendation.Request, error) {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return recommendation.Request{}, err
	}
	return s.expire(ctx, req, s.clock().UTC())
}

func (s *Service) expire(ctx context.Context, req recommendation.Request, now time.Time) (recommendation.Request, error) {
	if req.Status != recommendation.StatusSent {
		return req, &recommendation.TransitionError{From: req.Status, To: recommendation.StatusExpired}
	}
	if !schedule.WindowClosed(req.Deadline, now) {
		return req, ErrNotDue
	}
	ok, err := s.store.MarkExpired(ctx, req.ID, now)
	if err != nil {
		return req, err
	}
	if !ok {
		return req, s.lostTransition(ctx, req.ID, recommendation.StatusExpired)
	}
	req.Status = recommendation.StatusExpired
	req.NextReminderAt = nil
	req.ExpiredAt = &now
	req.UpdatedAt = now

	s.logger.Info("recommendation request expired", zap.String("request_id", req.ID), zap.Time("deadline", req.Deadline))
	return req, nil
}

// MarkReceived records a submitted letter. Only submission intake calls it.
func (s *Service) MarkReceived(ctx context.Context, id, letterRef string) (recommendation.Request, error) {
	now := s.clock().UTC()
	ok, err := s.store.MarkReceived(ctx, id, now, letterRef)
	if err != nil {
		return recommendation.Request{}, err
	}
	if !ok {
		return recommendation.Request{}, s.lostTransition(ctx, id, recommendation.StatusReceived)
	}
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return recommendation.Request{}, err
	}
	s.logger.Info("recommendation letter received", zap.String("request_id", id))
	return req, nil
}

// NotifyCompletion tells the requester that their letter arrived.
func (s *Service) NotifyCompletion(ctx context.Context, req recommendation.Request) error {
	msg, err := s.composer.Completion(req)
	if err != nil {
		return fmt.Errorf("compose completion: %w", err)
	}
	return s.deliver(ctx, req, recommendation.DeliveryCompletion, email.Message{
		To:      []string{req.Requester.Email},
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})
}

func (s *Service) portalToken(req recommendation.Request, delivery policy.Delivery) (string, error) {
	if !delivery.IncludePortalLink {
		return "", nil
	}
	if req.SecureToken != "" {
		return req.SecureToken, nil
	}
	if len(req.SealedToken) == 0 {
		return "", fmt.Errorf("portal link for %s: %w", req.ID, ErrMissingToken)
	}
	raw, err := s.tokens.Reveal(req.SealedToken)
	if err != nil {
		return "", fmt.Errorf("portal link for %s: %w", req.ID, err)
	}
	return raw, nil
}

// deliver hands msg to the transport and records the outcome.
func (s *Service) deliver(ctx context.Context, req recommendation.Request, kind recommendation.DeliveryKind, msg email.Message) error {
	sendErr := s.sender.Send(ctx, msg)

	record := recommendation.Delivery{
		ID:         s.newID(),
		RequestID:  req.ID,
		Kind:       kind,
		Recipients: append(append([]string(nil), msg.To...), msg.Cc...),
		Subject:    msg.Subject,
		Status:     recommendation.DeliverySent,
		CreatedAt:  s.clock().UTC(),
	}
	if sendErr != nil {
		record.Status = recommendation.DeliveryFailed
		record.LastError = sendErr.Error()
	}
	if err := s.store.RecordDelivery(ctx, record); err != nil {
		s.logger.Error("record delivery failed", zap.String("request_id", req.ID), zap.Error(err))
	}

	if sendErr != nil {
		s.logger.Warn("email delivery failed",
			zap.String("request_id", req.ID),
			zap.String("kind", string(kind)),
			zap.Error(sendErr),
		)
		return &DeliveryError{RequestID: req.ID, Kind: kind, Err: sendErr}
	}
	return nil
}

func (s *Service) lostTransition(ctx context.Context, id string, to recommendation.Status) error {
	current, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	return &recommendation.TransitionError{From: current.Status, To: to}
}

func (s *Service) lostReminder(ctx context.Context, id string) error {
	current, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	if current.Status != recommendation.StatusSent {
		return &recommendation.TransitionError{From: current.Status, To: recommendation.StatusSent}
	}
	return fmt.Errorf("reminder for %s already advanced: %w", id, recommendation.ErrConflict)
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) {
		span.SetAttributes(attribute.Bool("delivery.failed", true))
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
