package app

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"letters/api/internal/config"
	"letters/api/internal/intake"
	"letters/api/internal/lifecycle"
	"letters/api/internal/recommendation"
)

type Lifecycle interface {
	Start(ctx context.Context, d recommendation.Draft) (recommendation.Request, error)
	Dispatch(ctx context.Context, id string) (recommendation.Request, error)
	Get(ctx context.Context, id string) (recommendation.Request, error)
	Sweep(ctx context.Context) (lifecycle.SweepReport, error)
}

type Intake interface {
	Inspect(ctx context.Context, token string) (intake.View, error)
	Submit(ctx context.Context, token, content string) (intake.Receipt, error)
}

type DeliveryLog interface {
	ListDeliveries(ctx context.Context, requestID string) ([]recommendation.Delivery, error)
}

type LetterReader interface {
	GetLetter(ctx context.Context, ref string) (string, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators behind the HTTP surface. Checks are the
// dependencies probed by /api/ready, keyed by name.
type Deps struct {
	Lifecycle  Lifecycle
	Intake     Intake
	Deliveries DeliveryLog
	Letters    LetterReader
	Checks     map[string]Pinger
	Logger     *zap.Logger
}

type Service struct {
	cfg        config.Config
	lifecycle  Lifecycle
	intake     Intake
	deliveries DeliveryLog
	letters    LetterReader
	checks     map[string]Pinger
	logger     *zap.Logger
}

func New(cfg config.Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:        cfg,
		lifecycle:  deps.Lifecycle,
		intake:     deps.Intake,
		deliveries: deps.Deliveries,
		letters:    deps.Letters,
		checks:     deps.Checks,
		logger:     logger,
	}
}

func (s *Service) APIKey() string {
	return s.cfg.APIKey
}

// Created is the result of creating a request. DeliveryError is set when the
// request was sent but the email did not go out.
type Created struct {
	Request       recommendation.Request
	DeliveryError string
}

func (s *Service) CreateRequest(ctx context.Context, d recommendation.Draft) (Created, error) {
	req, err := s.lifecycle.Start(ctx, d)
	var deliveryErr *lifecycle.DeliveryError
	if errors.As(err, &deliveryErr) {
		return Created{Request: req, DeliveryError: deliveryErr.Err.Error()}, nil
	}
	if err != nil {
		return Created{}, err
	}
	return Created{Request: req}, nil
}

// DispatchRequest sends a request that was created but never dispatched.
func (s *Service) DispatchRequest(ctx context.Context, id string) (Created, error) {
	req, err := s.lifecycle.Dispatch(ctx, id)
	var deliveryErr *lifecycle.DeliveryError
	if errors.As(err, &deliveryErr) {
		return Created{Request: req, DeliveryError: deliveryErr.Err.Error()}, nil
	}
	if err != nil {
		return Created{}, err
	}
	return Created{Request: req}, nil
}

func (s *Service) GetRequest(ctx context.Context, id string) (recommendation.Request, []recommendation.Delivery, error) {
	req, err := s.lifecycle.Get(ctx, id)
	if err != nil {
		return recommendation.Request{}, nil, err
	}
	if s.deliveries == nil {
		return req, nil, nil
	}
	deliveries, err := s.deliveries.ListDeliveries(ctx, id)
	if err != nil {
		return recommendation.Request{}, nil, err
	}
	return req, deliveries, nil
}

// Letter returns the submitted letter for a received request.
func (s *Service) Letter(ctx context.Context, id string) (string, error) {
	req, err := s.lifecycle.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if req.Status != recommendation.StatusReceived || req.LetterRef == "" {
		return "", domainError(http.StatusConflict, "LETTER_NOT_AVAILABLE", "No letter has been submitted for this request", map[string]any{"status": req.Status})
	}
	return s.letters.GetLetter(ctx, req.LetterRef)
}

func (s *Service) Sweep(ctx context.Context) (lifecycle.SweepReport, error) {
	return s.lifecycle.Sweep(ctx)
}

func (s *Service) Inspect(ctx context.Context, token string) (intake.View, error) {
	return s.intake.Inspect(ctx, token)
}

func (s *Service) Submit(ctx context.Context, token, content string) (intake.Receipt, error) {
	return s.intake.Submit(ctx, token, content)
}

// Ready pings every registered check and reports per-check errors.
func (s *Service) Ready(ctx context.Context) map[string]error {
	results := make(map[string]error, len(s.checks))
	for name, check := range s.checks {
		results[name] = check.Ping(ctx)
	}
	return results
}
