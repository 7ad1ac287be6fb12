package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"letters/api/internal/recommendation"
	"letters/api/internal/token"
)

// Store persists recommendation requests. Every status change is a
// conditional UPDATE so concurrent writers cannot both win.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect, now: time.Now}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) CreateRequest(ctx context.Context, req recommendation.Request) error {
	intervals := req.ReminderIntervals
	if intervals == nil {
		intervals = []int{}
	}
	encoded, err := json.Marshal(intervals)
	if err != nil {
		return fmt.Errorf("encode intervals: %w", err)
	}

	_, err = s.exec(ctx, `
		INSERT INTO recommendation_requests (
			id, student_id, recipient_id, requester_name, requester_email,
			recommender_name, recommender_email, title, description, additional_context,
			relationship_context, communication_style, request_type, submission_method,
			institution_name, school_email, school_instructions, include_draft, draft_content,
			deadline_at, reminder_intervals, status, priority, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		req.ID, req.StudentID, req.RecipientID, req.Requester.Name, req.Requester.Email,
		req.Recommender.Name, req.Recommender.Email, req.Title, req.Description, req.AdditionalContext,
		req.RelationshipContext, string(req.Style), string(req.Route.RequestType()), string(req.Route.SubmissionMethod()),
		req.InstitutionName, req.SchoolEmail, req.SchoolInstructions, req.IncludeDraft, req.DraftContent,
		toMillis(req.Deadline), string(encoded), string(req.Status), string(req.Priority),
		toMillis(req.CreatedAt), toMillis(req.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (recommendation.Request, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+requestColumns+` FROM recommendation_requests WHERE id = ?`), id)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return recommendation.Request{}, recommendation.ErrNotFound
	}
	if err != nil {
		return recommendation.Request{}, fmt.Errorf("get request: %w", err)
	}
	return req, nil
}

// AttachToken binds a token digest to a request that has none yet.
func (s *Store) AttachToken(ctx context.Context, requestID string, digest, sealed []byte, expiresAt time.Time) error {
	result, err := s.exec(ctx, `
		UPDATE recommendation_requests
		SET token_digest = ?, token_sealed = ?, token_expires_at = ?, updated_at = ?
		WHERE id = ? AND token_digest IS NULL
	`, digest, sealed, toMillis(expiresAt), toMillis(s.now()), requestID)
	if err != nil {
		return fmt.Errorf("attach token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach token rows: %w", err)
	}
	if affected > 0 {
		return nil
	}
	if _, err := s.GetRequest(ctx, requestID); err != nil {
		return err
	}
	return fmt.Errorf("token already issued for %s: %w", requestID, recommendation.ErrConflict)
}

// DiscardPending deletes a pending request that never received a token.
func (s *Store) DiscardPending(ctx context.Context, id string) (bool, error) {
	return s.transition(ctx, "discard pending", `
		DELETE FROM recommendation_requests
		WHERE id = ? AND status = 'pending' AND token_digest IS NULL
	`, id)
}

func (s *Store) LookupToken(ctx context.Context, digest []byte) (token.Record, error) {
	var (
		record    token.Record
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, token_expires_at FROM recommendation_requests WHERE token_digest = ?
	`), digest).Scan(&record.RequestID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return token.Record{}, recommendation.ErrNotFound
	}
	if err != nil {
		return token.Record{}, fmt.Errorf("lookup token: %w", err)
	}
	record.ExpiresAt = fromMillis(expiresAt)
	return record, nil
}

// MarkSent moves a pending request to sent and sets its first reminder.
func (s *Store) MarkSent(ctx context.Context, id string, sentAt time.Time, next *time.Time) (bool, error) {
	return s.transition(ctx, "mark sent", `
		UPDATE recommendation_requests
		SET status = 'sent', sent_at = ?, next_reminder_at = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`, toMillis(sentAt), nullMillis(next), toMillis(sentAt), id)
}

// AdvanceReminder moves the reminder cursor only if it still equals expected.
func (s *Store) AdvanceReminder(ctx context.Context, id string, expected, firedAt time.Time, next *time.Time) (bool, error) {
	return s.transition(ctx, "advance reminder", `
		UPDATE recommendation_requests
		SET next_reminder_at = ?, last_reminder_at = ?, reminder_count = reminder_count + 1, updated_at = ?
		WHERE id = ? AND status = 'sent' AND next_reminder_at = ?
	`, nullMillis(next), toMillis(firedAt), toMillis(firedAt), id, toMillis(expected))
}

func (s *Store) MarkExpired(ctx context.Context, id string, at time.Time) (bool, error) {
	return s.transition(ctx, "mark expired", `
		UPDATE recommendation_requests
		SET status = 'expired', next_reminder_at = NULL, expired_at = ?, updated_at = ?
		WHERE id = ? AND status = 'sent'
	`, toMillis(at), toMillis(at), id)
}

func (s *Store) MarkReceived(ctx context.Context, id string, at time.Time, letterRef string) (bool, error) {
	return s.transition(ctx, "mark received", `
		UPDATE recommendation_requests
		SET status = 'received', next_reminder_at = NULL, received_at = ?, letter_ref = ?, updated_at = ?
		WHERE id = ? AND status = 'sent'
	`, toMillis(at), letterRef, toMillis(at), id)
}

func (s *Store) transition(ctx context.Context, op, query string, args ...any) (bool, error) {
	result, err := s.exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows: %w", op, err)
	}
	return affected > 0, nil
}

// ListDueReminders returns sent requests whose reminder cursor is at or before now.
func (s *Store) ListDueReminders(ctx context.Context, now time.Time, limit int) ([]recommendation.Request, error) {
	return s.list(ctx, "list due reminders", `
		SELECT `+requestColumns+` FROM recommendation_requests
		WHERE status = 'sent' AND next_reminder_at IS NOT NULL AND next_reminder_at <= ?
		ORDER BY next_reminder_at, id
		LIMIT ?
	`, toMillis(now), limit)
}

// ListClosing returns sent requests whose deadline is at or before cutoff.
func (s *Store) ListClosing(ctx context.Context, cutoff time.Time, limit int) ([]recommendation.Request, error) {
	return s.list(ctx, "list closing", `
		SELECT `+requestColumns+` FROM recommendation_requests
		WHERE status = 'sent' AND deadline_at <= ?
		ORDER BY deadline_at, id
		LIMIT ?
	`, toMillis(cutoff), limit)
}

func (s *Store) list(ctx context.Context, op, query string, args ...any) ([]recommendation.Request, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []recommendation.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("%s scan: %w", op, err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s rows: %w", op, err)
	}
	return out, nil
}

func (s *Store) RecordDelivery(ctx context.Context, d recommendation.Delivery) error {
	recipients, err := json.Marshal(d.Recipients)
	if err != nil {
		return fmt.Errorf("encode recipients: %w", err)
	}
	_, err = s.exec(ctx, `
		INSERT INTO deliveries (id, request_id, kind, recipients, subject, status, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.RequestID, string(d.Kind), string(recipients), d.Subject, string(d.Status), d.LastError, toMillis(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

func (s *Store) ListDeliveries(ctx context.Context, requestID string) ([]recommendation.Delivery, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, request_id, kind, recipients, subject, status, last_error, created_at
		FROM deliveries WHERE request_id = ?
		ORDER BY created_at, id
	`), requestID)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []recommendation.Delivery
	for rows.Next() {
		var (
			d          recommendation.Delivery
			kind       string
			status     string
			recipients string
			createdAt  int64
		)
		if err := rows.Scan(&d.ID, &d.RequestID, &kind, &recipients, &d.Subject, &status, &d.LastError, &createdAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		if err := json.Unmarshal([]byte(recipients), &d.Recipients); err != nil {
			return nil, fmt.Errorf("decode recipients: %w", err)
		}
		d.Kind = recommendation.DeliveryKind(kind)
		d.Status = recommendation.DeliveryStatus(status)
		d.CreatedAt = fromMillis(createdAt)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list deliveries rows: %w", err)
	}
	return out, nil
}
