package intake

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"letters/api/internal/compose"
	"letters/api/internal/email"
	"letters/api/internal/lifecycle"
	"letters/api/internal/recommendation"
	"letters/api/internal/store"
	"letters/api/internal/token"
)

type captureSender struct {
	mu   sync.Mutex
	sent []email.Message
	fail error
}

func (c *captureSender) Send(_ context.Context, msg email.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *captureSender) last() email.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent[len(c.sent)-1]
}

// countingLetters tracks objects so tests can spot orphans.
type countingLetters struct {
	*store.Store
	mu   sync.Mutex
	live map[string]bool
}

func (c *countingLetters) PutLetter(ctx context.Context, requestID, key, content string) (string, error) {
	ref, err := c.Store.PutLetter(ctx, requestID, key, content)
	if err == nil {
		c.mu.Lock()
		c.live[ref] = true
		c.mu.Unlock()
	}
	return ref, err
}

func (c *countingLetters) DeleteLetter(ctx context.Context, ref string) error {
	err := c.Store.DeleteLetter(ctx, ref)
	if err == nil {
		c.mu.Lock()
		delete(c.live, ref)
		c.mu.Unlock()
	}
	return err
}

func (c *countingLetters) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

type fixture struct {
	intake    *Service
	lifecycle *lifecycle.Service
	store     *store.Store
	letters   *countingLetters
	sender    *captureSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, dialect, err := store.Open(ctx, "sqlite:"+filepath.Join(t.TempDir(), "letters.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.ApplyMigrations(ctx, db, dialect))
	st := store.New(db, dialect)

	codec, err := token.NewCodec(bytes.Repeat([]byte{3}, token.KeySize))
	require.NoError(t, err)
	tokens := token.NewService(st, codec)

	sender := &captureSender{}
	logger := zaptest.NewLogger(t)
	lc := lifecycle.NewService(lifecycle.Config{TokenGrace: 7 * 24 * time.Hour}, lifecycle.Deps{
		Store:    st,
		Tokens:   tokens,
		Composer: compose.New("Letters", "https://letters.example.com", nil),
		Sender:   sender,
		Logger:   logger,
	})
	letters := &countingLetters{Store: st, live: map[string]bool{}}

	return &fixture{
		intake:    NewService(tokens, lc, letters, logger),
		lifecycle: lc,
		store:     st,
		letters:   letters,
		sender:    sender,
	}
}

func (f *fixture) start(t *testing.T, rt recommendation.RequestType, sm recommendation.SubmissionMethod) recommendation.Request {
	t.Helper()
	req, err := f.lifecycle.Start(context.Background(), recommendation.Draft{
		StudentID:         "student-1",
		Requester:         recommendation.Contact{Name: "Ada Lovelace", Email: "ada@example.com"},
		Recommender:       recommendation.Contact{Name: "Grace Hopper", Email: "grace@example.edu"},
		Title:             "PhD application",
		Description:       "Doctoral programme in computing",
		RequestType:       rt,
		SubmissionMethod:  sm,
		SchoolEmail:       "admissions@example.edu",
		IncludeDraft:      true,
		DraftContent:      "Ada was my best student.",
		Deadline:          time.Now().Add(10 * 24 * time.Hour),
		ReminderIntervals: []int{7, 3, 1},
	})
	require.NoError(t, err)
	require.NotEmpty(t, req.SecureToken)
	return req
}

func (f *fixture) startPlatform(t *testing.T) recommendation.Request {
	return f.start(t, recommendation.RequestTypeDirectPlatform, recommendation.SubmissionPlatformOnly)
}

func TestInspect(t *testing.T) {
	f := newFixture(t)
	req := f.startPlatform(t)

	view, err := f.intake.Inspect(context.Background(), req.SecureToken)
	require.NoError(t, err)
	assert.Equal(t, req.ID, view.RequestID)
	assert.Equal(t, "PhD application", view.Title)
	assert.Equal(t, "Ada Lovelace", view.RequesterName)
	assert.Equal(t, "Ada was my best student.", view.DraftContent)
	assert.Equal(t, 9, view.DaysUntilDeadline)
}

func TestSubmitMarksReceivedAndNotifiesRequester(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.startPlatform(t)

	receipt, err := f.intake.Submit(ctx, req.SecureToken, "  To whom it may concern.  ")
	require.NoError(t, err)
	assert.Equal(t, req.ID, receipt.RequestID)
	assert.False(t, receipt.ReceivedAt.IsZero())

	stored, err := f.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, recommendation.StatusReceived, stored.Status)
	assert.Nil(t, stored.NextReminderAt)

	content, err := f.store.GetLetter(ctx, stored.LetterRef)
	require.NoError(t, err)
	assert.Equal(t, "To whom it may concern.", content)

	assert.Equal(t, []string{"ada@example.com"}, f.sender.last().To)

	_, err = f.intake.Submit(ctx, req.SecureToken, "again")
	assert.ErrorIs(t, err, recommendation.ErrAlreadyCompleted)
	_, err = f.intake.Inspect(ctx, req.SecureToken)
	assert.ErrorIs(t, err, recommendation.ErrAlreadyCompleted)
	assert.Equal(t, 1, f.letters.count())
}

func TestConcurrentSubmissionsAcceptOne(t *testing.T) {
	f := newFixture(t)
	req := f.startPlatform(t)

	const workers = 4
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.intake.Submit(context.Background(), req.SecureToken, "letter body")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, recommendation.ErrAlreadyCompleted)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, f.letters.count())
}

func TestSubmitUnknownToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.intake.Submit(context.Background(), "not-a-token", "letter")
	assert.ErrorIs(t, err, recommendation.ErrNotFound)
	_, err = f.intake.Inspect(context.Background(), "")
	assert.ErrorIs(t, err, recommendation.ErrNotFound)
}

type expiredResolver struct{}

func (expiredResolver) Resolve(context.Context, string) (string, error) {
	return "", recommendation.ErrExpired
}

func TestSubmitExpiredToken(t *testing.T) {
	f := newFixture(t)
	f.intake.resolver = expiredResolver{}

	_, err := f.intake.Submit(context.Background(), "tok", "letter")
	assert.ErrorIs(t, err, recommendation.ErrExpired)
	assert.Zero(t, f.letters.count())
}

func TestSubmitAfterExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.startPlatform(t)

	ok, err := f.store.MarkExpired(ctx, req.ID, time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.intake.Submit(ctx, req.SecureToken, "late letter")
	assert.ErrorIs(t, err, recommendation.ErrDeadlinePassed)
	_, err = f.intake.Inspect(ctx, req.SecureToken)
	assert.ErrorIs(t, err, recommendation.ErrDeadlinePassed)
	assert.Zero(t, f.letters.count())
}

func TestSubmitPastDeadlineBeforeSweep(t *testing.T) {
	f := newFixture(t)
	req := f.startPlatform(t)
	f.intake.clock = func() time.Time { return req.Deadline.Add(time.Minute) }

	_, err := f.intake.Submit(context.Background(), req.SecureToken, "late letter")
	assert.ErrorIs(t, err, recommendation.ErrDeadlinePassed)
}

func TestSubmitValidatesContent(t *testing.T) {
	f := newFixture(t)
	req := f.startPlatform(t)

	_, err := f.intake.Submit(context.Background(), req.SecureToken, "   ")
	assert.ErrorIs(t, err, recommendation.ErrValidation)

	long := bytes.Repeat([]byte("a"), MaxLetterLength+1)
	_, err = f.intake.Submit(context.Background(), req.SecureToken, string(long))
	assert.ErrorIs(t, err, recommendation.ErrValidation)
}

func TestSchoolOnlyRequestsRejectPortalSubmissions(t *testing.T) {
	f := newFixture(t)
	req := f.start(t, recommendation.RequestTypeSchoolDirect, recommendation.SubmissionSchoolOnly)

	_, err := f.intake.Submit(context.Background(), req.SecureToken, "letter")
	assert.ErrorIs(t, err, recommendation.ErrInvalidPolicy)
}

func TestCompletionFailureDoesNotFailSubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.startPlatform(t)
	f.sender.fail = errors.New("smtp unavailable")

	_, err := f.intake.Submit(ctx, req.SecureToken, "letter")
	require.NoError(t, err)

	deliveries, err := f.store.ListDeliveries(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, deliveries, 2)
	var completion *recommendation.Delivery
	for i := range deliveries {
		if deliveries[i].Kind == recommendation.DeliveryCompletion {
			completion = &deliveries[i]
		}
	}
	require.NotNil(t, completion)
	assert.Equal(t, recommendation.DeliveryFailed, completion.Status)
}

func TestSubmitOnFinalDay(t *testing.T) {
	f := newFixture(t)
	req := f.startPlatform(t)
	f.intake.clock = func() time.Time { return req.Deadline.Add(-12 * time.Hour) }

	receipt, err := f.intake.Submit(context.Background(), req.SecureToken, "Grace is exceptional.")
	require.NoError(t, err)
	assert.Equal(t, req.ID, receipt.RequestID)
	assert.Equal(t, 1, f.letters.count())
}
