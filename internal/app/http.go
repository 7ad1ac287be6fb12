package app

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"letters/api/internal/recommendation"
	"letters/api/internal/util"
)

const (
	apiKeyHeader    = "x-letters-api-key"
	maxLetterBody   = 1 << 20
	readyTimeout    = 5 * time.Second
	portalPathStart = "recommendation"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *zap.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	parts := splitPath(r.URL.Path)

	// Recommender portal, addressed by token.
	if r.Method == http.MethodGet && len(parts) == 2 && parts[0] == portalPathStart {
		view, err := s.service.Inspect(r.Context(), parts[1])
		if err != nil {
			s.writeTokenError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/submissions" {
		s.handleSubmit(w, r)
		return
	}

	// Everything below is for trusted callers only.
	if len(parts) >= 2 && parts[0] == "api" && (parts[1] == "requests" || parts[1] == "internal") {
		if !s.authorized(r) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/internal/sweep" {
		report, err := s.service.Sweep(r.Context())
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/requests" {
		var draft recommendation.Draft
		if err := decodeBody(r, &draft); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.CreateRequest(r.Context(), draft)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, createdResponse(created, true))
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "requests" {
		s.handleRequest(w, r, parts[2], parts[3:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleRequest(w http.ResponseWriter, r *http.Request, id string, rest []string) {
	switch {
	case r.Method == http.MethodGet && len(rest) == 0:
		req, deliveries, err := s.service.GetRequest(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		if deliveries == nil {
			deliveries = []recommendation.Delivery{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"request":    newRequestResponse(req),
			"deliveries": deliveries,
		})
	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "dispatch":
		created, err := s.service.DispatchRequest(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, createdResponse(created, false))
	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "letter":
		content, err := s.service.Letter(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"requestId": id, "content": content})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxLetterBody)
	var body struct {
		Token   string `json:"token"`
		Content string `json:"content"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	receipt, err := s.service.Submit(r.Context(), body.Token, body.Content)
	if err != nil {
		s.writeTokenError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{}
	for name, err := range s.service.Ready(ctx) {
		if err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) authorized(r *http.Request) bool {
	key := strings.TrimSpace(r.Header.Get(apiKeyHeader))
	expected := s.service.APIKey()
	if key == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(expected)) == 1
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) writeTokenError(w http.ResponseWriter, err error) {
	status, code, message, details := mapTokenError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("portal request failed", zap.Error(err))
	}
	writeError(w, status, code, message, details)
}

type requestResponse struct {
	ID               string                          `json:"id"`
	Status           recommendation.Status           `json:"status"`
	Title            string                          `json:"title"`
	StudentID        string                          `json:"studentId"`
	Requester        recommendation.Contact          `json:"requester"`
	Recommender      recommendation.Contact          `json:"recommender"`
	RequestType      recommendation.RequestType      `json:"requestType"`
	SubmissionMethod recommendation.SubmissionMethod `json:"submissionMethod"`
	Priority         recommendation.Priority         `json:"priority"`
	Deadline         time.Time                       `json:"deadline"`
	SentAt           *time.Time                      `json:"sentAt,omitempty"`
	NextReminderAt   *time.Time                      `json:"nextReminderAt,omitempty"`
	LastReminderAt   *time.Time                      `json:"lastReminderAt,omitempty"`
	ReminderCount    int                             `json:"reminderCount"`
	TokenExpiresAt   *time.Time                      `json:"tokenExpiresAt,omitempty"`
	ReceivedAt       *time.Time                      `json:"receivedAt,omitempty"`
	ExpiredAt        *time.Time                      `json:"expiredAt,omitempty"`
	CreatedAt        time.Time                       `json:"createdAt"`
	UpdatedAt        time.Time                       `json:"updatedAt"`
}

func newRequestResponse(req recommendation.Request) requestResponse {
	return requestResponse{
		ID:               req.ID,
		Status:           req.Status,
		Title:            req.Title,
		StudentID:        req.StudentID,
		Requester:        req.Requester,
		Recommender:      req.Recommender,
		RequestType:      req.Route.RequestType(),
		SubmissionMethod: req.Route.SubmissionMethod(),
		Priority:         req.Priority,
		Deadline:         req.Deadline,
		SentAt:           req.SentAt,
		NextReminderAt:   req.NextReminderAt,
		LastReminderAt:   req.LastReminderAt,
		ReminderCount:    req.ReminderCount,
		TokenExpiresAt:   req.TokenExpiresAt,
		ReceivedAt:       req.ReceivedAt,
		ExpiredAt:        req.ExpiredAt,
		CreatedAt:        req.CreatedAt,
		UpdatedAt:        req.UpdatedAt,
	}
}

// createdResponse includes the raw token only when it was just minted.
func createdResponse(created Created, withToken bool) map[string]any {
	response := map[string]any{
		"request":   newRequestResponse(created.Request),
		"delivered": created.DeliveryError == "",
	}
	if created.DeliveryError != "" {
		response["deliveryError"] = created.DeliveryError
	}
	if withToken && created.Request.SecureToken != "" {
		response["secureToken"] = created.Request.SecureToken
	}
	return response
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = util.NewID("req")
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", id)

		next.ServeHTTP(writer, r)

		s.logger.Info("http request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", logPath(r.URL.Path)),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// logPath keeps recommender tokens out of access logs.
func logPath(path string) string {
	parts := splitPath(path)
	if len(parts) == 2 && parts[0] == portalPathStart {
		return "/" + portalPathStart + "/:token"
	}
	return path
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, X-Letters-Api-Key")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("body exceeds %d bytes", tooLarge.Limit)
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
