// Package intake accepts letters submitted through the recommender portal.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"letters/api/internal/policy"
	"letters/api/internal/recommendation"
	"letters/api/internal/schedule"
)

// MaxLetterLength bounds a submitted letter in characters.
const MaxLetterLength = 50000

type Resolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

type Lifecycle interface {
	Get(ctx context.Context, id string) (recommendation.Request, error)
	MarkReceived(ctx context.Context, id, letterRef string) (recommendation.Request, error)
	NotifyCompletion(ctx context.Context, req recommendation.Request) error
}

type Letters interface {
	PutLetter(ctx context.Context, requestID, key, content string) (string, error)
	DeleteLetter(ctx context.Context, ref string) error
}

// View is what the portal shows a recommender before they submit.
type View struct {
	RequestID         string    `json:"requestId"`
	Title             string    `json:"title"`
	Description       string    `json:"description,omitempty"`
	RequesterName     string    `json:"requesterName"`
	RecommenderName   string    `json:"recommenderName"`
	InstitutionName   string    `json:"institutionName,omitempty"`
	Deadline          time.Time `json:"deadline"`
	DaysUntilDeadline int       `json:"daysUntilDeadline"`
	DraftContent      string    `json:"draftContent,omitempty"`
}

type Receipt struct {
	RequestID  string    `json:"requestId"`
	ReceivedAt time.Time `json:"receivedAt"`
}

type Service struct {
	resolver  Resolver
	lifecycle Lifecycle
	letters   Letters
	logger    *zap.Logger
	tracer    trace.Tracer
	clock     func() time.Time
	newID     func() string
}

func NewService(resolver Resolver, lifecycle Lifecycle, letters Letters, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		resolver:  resolver,
		lifecycle: lifecycle,
		letters:   letters,
		logger:    logger,
		tracer:    otel.Tracer("letters/api/internal/intake"),
		clock:     time.Now,
		newID:     uuid.NewString,
	}
}

// Inspect returns the portal view for a token without changing anything.
func (s *Service) Inspect(ctx context.Context, token string) (View, error) {
	req, err := s.open(ctx, token)
	if err != nil {
		return View{}, err
	}
	view := View{
		RequestID:         req.ID,
		Title:             req.Title,
		Description:       req.Description,
		RequesterName:     req.Requester.Name,
		RecommenderName:   req.Recommender.Name,
		InstitutionName:   req.InstitutionName,
		Deadline:          req.Deadline,
		DaysUntilDeadline: schedule.DaysUntilDeadline(req.Deadline, s.clock()),
	}
	if req.HasDraft() {
		view.DraftContent = req.DraftContent
	}
	return view, nil
}

// Submit stores a letter and marks its request received. Of two concurrent
// submissions exactly one succeeds; the other gets ErrAlreadyCompleted.
func (s *Service) Submit(ctx context.Context, token, content string) (Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "intake.Submit")
	defer span.End()

	receipt, err := s.submit(ctx, token, content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return receipt, err
}

func (s *Service) submit(ctx context.Context, token, content string) (Receipt, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Receipt{}, &recommendation.ValidationError{Field: "content", Reason: "is required"}
	}
	if utf8.RuneCountInString(content) > MaxLetterLength {
		return Receipt{}, &recommendation.ValidationError{Field: "content", Reason: fmt.Sprintf("must be at most %d characters", MaxLetterLength)}
	}

	req, err := s.open(ctx, token)
	if err != nil {
		return Receipt{}, err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("request.id", req.ID))

	key := fmt.Sprintf("letters/%s/%s.txt", req.ID, s.newID())
	ref, err := s.letters.PutLetter(ctx, req.ID, key, content)
	if err != nil {
		return Receipt{}, fmt.Errorf("store letter: %w", err)
	}

	received, err := s.lifecycle.MarkReceived(ctx, req.ID, ref)
	if err != nil {
		if delErr := s.letters.DeleteLetter(context.WithoutCancel(ctx), ref); delErr != nil {
			s.logger.Warn("remove orphaned letter", zap.String("ref", ref), zap.Error(delErr))
		}
		return Receipt{}, terminalError(err)
	}

	if err := s.lifecycle.NotifyCompletion(ctx, received); err != nil {
		s.logger.Warn("completion notice not delivered", zap.String("request_id", req.ID), zap.Error(err))
	}

	receipt := Receipt{RequestID: received.ID}
	if received.ReceivedAt != nil {
		receipt.ReceivedAt = *received.ReceivedAt
	}
	s.logger.Info("letter submitted", zap.String("request_id", req.ID))
	return receipt, nil
}

// open resolves a token to a request that can still accept a letter.
func (s *Service) open(ctx context.Context, token string) (recommendation.Request, error) {
	id, err := s.resolver.Resolve(ctx, token)
	if err != nil {
		return recommendation.Request{}, err
	}
	req, err := s.lifecycle.Get(ctx, id)
	if err != nil {
		return recommendation.Request{}, err
	}

	switch req.Status {
	case recommendation.StatusReceived:
		return req, recommendation.ErrAlreadyCompleted
	case recommendation.StatusExpired:
		return req, recommendation.ErrDeadlinePassed
	case recommendation.StatusSent:
	default:
		// The link has not been sent yet.
		return req, recommendation.ErrNotFound
	}
	if s.clock().After(req.Deadline) {
		return req, recommendation.ErrDeadlinePassed
	}

	delivery, err := policy.For(req.Route)
	if err != nil {
		return req, err
	}
	if !delivery.IncludePortalLink {
		return req, fmt.Errorf("letters for this request go to the school directly: %w", recommendation.ErrInvalidPolicy)
	}
	return req, nil
}

func terminalError(err error) error {
	var transition *recommendation.TransitionError
	if !errors.As(err, &transition) {
		return err
	}
	switch transition.From {
	case recommendation.StatusReceived:
		return recommendation.ErrAlreadyCompleted
	case recommendation.StatusExpired:
		return recommendation.ErrDeadlinePassed
	}
	return err
}
