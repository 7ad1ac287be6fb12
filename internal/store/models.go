package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"letters/api/internal/recommendation"
)

const requestColumns = `id, student_id, recipient_id, requester_name, requester_email,
	recommender_name, recommender_email, title, description, additional_context,
	relationship_context, communication_style, request_type, submission_method,
	institution_name, school_email, school_instructions, include_draft, draft_content,
	deadline_at, reminder_intervals, next_reminder_at, last_reminder_at, reminder_count,
	sent_at, token_sealed, token_expires_at, status, priority, letter_ref,
	received_at, expired_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (recommendation.Request, error) {
	var (
		req              recommendation.Request
		requestType      string
		submissionMethod string
		style            string
		status           string
		priority         string
		intervals        string
		deadline         int64
		nextReminder     sql.NullInt64
		lastReminder     sql.NullInt64
		sentAt           sql.NullInt64
		tokenExpiresAt   sql.NullInt64
		receivedAt       sql.NullInt64
		expiredAt        sql.NullInt64
		createdAt        int64
		updatedAt        int64
	)
	err := row.Scan(
		&req.ID, &req.StudentID, &req.RecipientID, &req.Requester.Name, &req.Requester.Email,
		&req.Recommender.Name, &req.Recommender.Email, &req.Title, &req.Description, &req.AdditionalContext,
		&req.RelationshipContext, &style, &requestType, &submissionMethod,
		&req.InstitutionName, &req.SchoolEmail, &req.SchoolInstructions, &req.IncludeDraft, &req.DraftContent,
		&deadline, &intervals, &nextReminder, &lastReminder, &req.ReminderCount,
		&sentAt, &req.SealedToken, &tokenExpiresAt, &status, &priority, &req.LetterRef,
		&receivedAt, &expiredAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return recommendation.Request{}, err
	}

	route, err := recommendation.ParseRoute(recommendation.RequestType(requestType), recommendation.SubmissionMethod(submissionMethod))
	if err != nil {
		return recommendation.Request{}, fmt.Errorf("request %s: %w", req.ID, err)
	}
	if err := json.Unmarshal([]byte(intervals), &req.ReminderIntervals); err != nil {
		return recommendation.Request{}, fmt.Errorf("request %s intervals: %w", req.ID, err)
	}

	req.Route = route
	req.Style = recommendation.CommunicationStyle(style)
	req.Status = recommendation.Status(status)
	req.Priority = recommendation.Priority(priority)
	req.Deadline = fromMillis(deadline)
	req.NextReminderAt = timePtr(nextReminder)
	req.LastReminderAt = timePtr(lastReminder)
	req.SentAt = timePtr(sentAt)
	req.TokenExpiresAt = timePtr(tokenExpiresAt)
	req.ReceivedAt = timePtr(receivedAt)
	req.ExpiredAt = timePtr(expiredAt)
	req.CreatedAt = fromMillis(createdAt)
	req.UpdatedAt = fromMillis(updatedAt)
	return req, nil
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func nullMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

func timePtr(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}
