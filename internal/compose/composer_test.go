package compose

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/message"

	"letters/api/internal/recommendation"
	"letters/api/internal/schedule"
)

const testToken = "tok_abc123"

func newTestComposer() *Composer {
	return New("Letters", "https://letters.example.com/", nil)
}

func platformRequest() recommendation.Request {
	expires := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	return recommendation.Request{
		ID:             "req-1",
		Requester:      recommendation.Contact{Name: "Ada Lovelace", Email: "ada@example.com"},
		Recommender:    recommendation.Contact{Name: "Dr. Hopper", Email: "hopper@example.edu"},
		Title:          "MSc Computer Science",
		Style:          recommendation.StyleFormal,
		Route:          recommendation.RoutePlatform,
		Deadline:       time.Date(2026, 6, 15, 17, 0, 0, 0, time.UTC),
		Status:         recommendation.StatusSent,
		TokenExpiresAt: &expires,
	}
}

func TestPortalURL(t *testing.T) {
	assert.Equal(t, "https://letters.example.com/recommendation/"+testToken, newTestComposer().PortalURL(testToken))
}

func TestInitialPlatform(t *testing.T) {
	msg, err := newTestComposer().Initial(platformRequest(), testToken)
	require.NoError(t, err)

	assert.Equal(t, "Recommendation letter request: MSc Computer Science", msg.Subject)
	assert.Contains(t, msg.HTML, "Dear Dr. Hopper,")
	assert.Contains(t, msg.HTML, "Respectfully,")
	assert.Contains(t, msg.HTML, "Submit Recommendation Letter")
	assert.Contains(t, msg.HTML, "https://letters.example.com/recommendation/"+testToken)
	assert.Contains(t, msg.HTML, "Monday, June 15, 2026")
	assert.Contains(t, msg.HTML, "Wednesday, July 1, 2026")
	assert.NotContains(t, msg.HTML, "Institution details")
}

func TestInitialSchoolOnlyHasNoSubmitButton(t *testing.T) {
	req := platformRequest()
	req.Route = recommendation.RouteSchoolOnly
	req.InstitutionName = "Example University"
	req.SchoolEmail = "admissions@example.edu"

	msg, err := newTestComposer().Initial(req, testToken)
	require.NoError(t, err)

	assert.NotContains(t, msg.HTML, "Submit Recommendation Letter")
	assert.NotContains(t, msg.HTML, testToken)
	assert.Contains(t, msg.HTML, "directly to Example University")
	assert.Contains(t, msg.HTML, "Institution details")
	assert.Contains(t, msg.HTML, "admissions@example.edu")
}

func TestInitialHybridIncludesLinkAndSchool(t *testing.T) {
	req := platformRequest()
	req.Route = recommendation.RouteHybrid
	req.SchoolInstructions = "Use the referee form"

	msg, err := newTestComposer().Initial(req, testToken)
	require.NoError(t, err)

	assert.Contains(t, msg.HTML, "Submit Recommendation Letter")
	assert.Contains(t, msg.HTML, "also send it to the institution")
	assert.Contains(t, msg.HTML, "Use the referee form")
}

func TestInitialGreetingAndClosingByStyle(t *testing.T) {
	tests := []struct {
		style    recommendation.CommunicationStyle
		greeting string
		closing  string
	}{
		{recommendation.StyleFormal, "Dear Dr. Hopper,", "Respectfully,"},
		{recommendation.StylePolite, "Hello Dr. Hopper,", "Thank you for your time and consideration,"},
		{recommendation.StyleFriendly, "Hi Dr. Hopper!", "Thanks so much!"},
		{"", "Hello Dr. Hopper,", "Thank you for your time and consideration,"},
	}

	for _, tt := range tests {
		t.Run(string(tt.style), func(t *testing.T) {
			req := platformRequest()
			req.Style = tt.style
			msg, err := newTestComposer().Initial(req, testToken)
			require.NoError(t, err)
			assert.Contains(t, msg.HTML, tt.greeting)
			assert.Contains(t, msg.HTML, tt.closing)
		})
	}
}

func TestInitialOptionalBlocks(t *testing.T) {
	req := platformRequest()
	req.RelationshipContext = "Thesis supervisor"
	req.AdditionalContext = "Focus on research"
	req.IncludeDraft = true
	req.DraftContent = "<b>Ada is brilliant</b>"

	msg, err := newTestComposer().Initial(req, testToken)
	require.NoError(t, err)

	assert.Contains(t, msg.HTML, "About your relationship: Thesis supervisor")
	assert.Contains(t, msg.HTML, "Additional context: Focus on research")
	assert.Contains(t, msg.HTML, "A draft has been provided")
	assert.Contains(t, msg.HTML, "&lt;b&gt;Ada is brilliant&lt;/b&gt;")

	req.IncludeDraft = false
	msg, err = newTestComposer().Initial(req, testToken)
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "A draft has been provided")
}

func TestComposeIsTotalOverMissingOptionalFields(t *testing.T) {
	req := recommendation.Request{
		Route:    recommendation.RouteHybrid,
		Deadline: time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
	}
	c := newTestComposer()

	msg, err := c.Initial(req, "")
	require.NoError(t, err)
	assert.Contains(t, msg.HTML, "Hello,")
	assert.Contains(t, msg.HTML, "A student has asked you")
	assert.NotContains(t, msg.HTML, "Submit Recommendation Letter")

	_, err = c.Reminder(req, "", 0, schedule.UrgencyCritical)
	require.NoError(t, err)

	msg, err = c.Completion(req)
	require.NoError(t, err)
	assert.Contains(t, msg.HTML, "Your recommender has submitted")
}

func TestInitialRejectsUnroutableRequest(t *testing.T) {
	req := platformRequest()
	req.Route = recommendation.Route{}

	_, err := newTestComposer().Initial(req, testToken)
	assert.ErrorIs(t, err, recommendation.ErrInvalidPolicy)
}

func TestReminderSubjectsAndBanner(t *testing.T) {
	tests := []struct {
		days      int
		prefix    string
		banner    string
		hasBanner bool
	}{
		{1, "🚨 URGENT: ", "Urgent: the letter is due tomorrow.", true},
		{3, "⚠️ Reminder: ", "The deadline is approaching: the letter is due in 3 days.", true},
		{7, "📅 Reminder: ", "Heads-up: the letter is due in 7 days.", true},
		{14, "Reminder: ", "", false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d days", tt.days), func(t *testing.T) {
			msg, err := newTestComposer().Reminder(platformRequest(), testToken, tt.days, schedule.UrgencyOf(tt.days))
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(msg.Subject, tt.prefix), "subject %q", msg.Subject)
			if tt.hasBanner {
				assert.Contains(t, msg.HTML, tt.banner)
			} else {
				assert.NotContains(t, msg.HTML, `class="banner`)
			}
			assert.Contains(t, msg.HTML, "Submit Recommendation Letter")
		})
	}
}

func TestReminderSchoolOnlyOmitsLink(t *testing.T) {
	req := platformRequest()
	req.Route = recommendation.RouteSchoolOnly

	msg, err := newTestComposer().Reminder(req, testToken, 3, schedule.UrgencyHigh)
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "Submit Recommendation Letter")
}

func TestCompletion(t *testing.T) {
	req := platformRequest()
	received := time.Date(2026, 6, 10, 8, 0, 0, 0, time.UTC)
	req.ReceivedAt = &received

	msg, err := newTestComposer().Completion(req)
	require.NoError(t, err)

	assert.Equal(t, "Your recommendation letter for MSc Computer Science has been submitted", msg.Subject)
	assert.Contains(t, msg.HTML, "Hello Ada Lovelace,")
	assert.Contains(t, msg.HTML, "Dr. Hopper has submitted")
	assert.Contains(t, msg.HTML, "Received on Wednesday, June 10, 2026.")
	assert.NotContains(t, msg.HTML, "Submit Recommendation Letter")
	assert.NotContains(t, msg.HTML, `class="banner`)
}

type fakeLocalizer struct {
	values map[string]string
}

func (f fakeLocalizer) Sprintf(key message.Reference, args ...any) string {
	k, _ := key.(string)
	if value, ok := f.values[k]; ok {
		return fmt.Sprintf(value, args...)
	}
	return k
}

func TestLocalizerOverridesAndFallsBack(t *testing.T) {
	c := New("Letters", "https://letters.example.com", fakeLocalizer{values: map[string]string{
		"button.submit":   "Enviar carta",
		"greeting.formal": "Prezado(a) %s,",
	}})

	msg, err := c.Initial(platformRequest(), testToken)
	require.NoError(t, err)

	assert.Contains(t, msg.HTML, "Enviar carta")
	assert.Contains(t, msg.HTML, "Prezado(a) Dr. Hopper,")
	assert.Contains(t, msg.HTML, "Respectfully,")
}
