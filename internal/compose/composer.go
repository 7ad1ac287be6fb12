// Package compose renders the emails of a recommendation request. Every
// function here is pure: no I/O, no clock.
package compose

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"letters/api/internal/policy"
	"letters/api/internal/recommendation"
	"letters/api/internal/schedule"
)

const dateLayout = "Monday, January 2, 2006"

// Message is the rendered subject and HTML body of one email.
type Message struct {
	Subject string
	HTML    string
}

// Localizer is the minimal message-printer contract required by the composer.
type Localizer interface {
	Sprintf(key message.Reference, args ...any) string
}

type Composer struct {
	appName string
	baseURL string
	loc     Localizer
}

// New returns a composer. A nil localizer uses the English catalog.
func New(appName, baseURL string, loc Localizer) *Composer {
	if loc == nil {
		loc = message.NewPrinter(language.English)
	}
	return &Composer{
		appName: appName,
		baseURL: strings.TrimRight(baseURL, "/"),
		loc:     loc,
	}
}

// PortalURL is the only externally visible address of a request.
func (c *Composer) PortalURL(token string) string {
	return c.baseURL + "/recommendation/" + token
}

// Initial renders the first message to the recommender.
func (c *Composer) Initial(req recommendation.Request, token string) (Message, error) {
	delivery, err := policy.For(req.Route)
	if err != nil {
		return Message{}, err
	}

	v := c.base(req, delivery, token)
	v.Greeting = c.greeting(req.Style, req.Recommender.Name)
	v.Paragraphs = append(v.Paragraphs, c.text("context.request", c.requesterName(req), req.Title))
	if req.RelationshipContext != "" {
		v.Paragraphs = append(v.Paragraphs, c.text("context.relationship", req.RelationshipContext))
	}
	if req.Description != "" {
		v.Paragraphs = append(v.Paragraphs, c.text("context.description", req.Description))
	}
	if req.AdditionalContext != "" {
		v.Paragraphs = append(v.Paragraphs, c.text("context.additional", req.AdditionalContext))
	}
	v.Paragraphs = append(v.Paragraphs, c.text("context.deadline", formatDate(req.Deadline)))
	if req.HasDraft() {
		v.Draft = &draftView{
			Heading: c.text("draft.heading"),
			Content: req.DraftContent,
		}
	}

	return c.render(c.text("subject.initial", req.Title), v)
}

// Reminder renders a reminder framed by urgency.
func (c *Composer) Reminder(req recommendation.Request, token string, daysUntilDeadline int, urgency schedule.Urgency) (Message, error) {
	delivery, err := policy.For(req.Route)
	if err != nil {
		return Message{}, err
	}

	when := c.when(daysUntilDeadline)
	v := c.base(req, delivery, token)
	v.Greeting = c.greeting(req.Style, req.Recommender.Name)
	if urgency != schedule.UrgencyLow {
		v.Banner = c.text("banner."+urgency.String(), when)
		v.BannerClass = urgency.String()
	}
	v.Paragraphs = append(v.Paragraphs,
		c.text("reminder.body", c.requesterName(req), req.Title),
		c.text("context.deadline", formatDate(req.Deadline)),
	)

	subject := c.text("subject.reminder", c.text("prefix."+urgency.String()), req.Title, when)
	return c.render(subject, v)
}

// Completion renders the notice to the requester once a letter arrives.
func (c *Composer) Completion(req recommendation.Request) (Message, error) {
	v := view{AppName: c.appName, Title: req.Title}
	if req.Requester.Name != "" {
		v.Greeting = c.text("completion.greeting", req.Requester.Name)
	} else {
		v.Greeting = c.text("completion.anonymous")
	}

	recommender := req.Recommender.Name
	if recommender == "" {
		recommender = c.text("completion.recommender_anonymous")
	}
	v.Paragraphs = append(v.Paragraphs, c.text("completion.body", recommender, req.Title))
	if req.ReceivedAt != nil {
		v.Paragraphs = append(v.Paragraphs, c.text("completion.received", formatDate(*req.ReceivedAt)))
	}
	v.Closing = c.text("completion.closing", c.appName)

	return c.render(c.text("subject.completion", req.Title), v)
}

func (c *Composer) base(req recommendation.Request, delivery policy.Delivery, token string) view {
	v := view{
		AppName:   c.appName,
		Title:     req.Title,
		Closing:   c.closing(req.Style),
		Signature: req.Requester.Name,
		Footer:    c.text("footer.sent_by", c.appName, c.requesterName(req)),
	}

	institution := req.InstitutionName
	if institution == "" {
		institution = c.text("instructions.institution")
	}
	switch delivery.Variant {
	case policy.VariantSchoolOnly:
		v.Instructions = c.text("instructions.school_only", institution, c.appName)
	case policy.VariantHybrid:
		v.Instructions = c.text("instructions.hybrid", institution)
	default:
		v.Instructions = c.text("instructions.platform")
	}

	if delivery.IncludePortalLink && token != "" {
		v.ButtonLabel = c.text("button.submit")
		v.PortalURL = c.PortalURL(token)
		v.LinkHint = c.text("instructions.link_hint")
		if req.TokenExpiresAt != nil {
			v.LinkExpiry = c.text("instructions.link_expiry", formatDate(*req.TokenExpiresAt))
		}
	}

	if req.HasSchoolDetails() {
		v.Institution = &institutionView{
			Heading:           c.text("institution.heading"),
			NameLabel:         c.text("institution.name"),
			Name:              req.InstitutionName,
			EmailLabel:        c.text("institution.email"),
			Email:             req.SchoolEmail,
			InstructionsLabel: c.text("institution.instructions"),
			Instructions:      req.SchoolInstructions,
		}
	}
	return v
}

func (c *Composer) greeting(style recommendation.CommunicationStyle, name string) string {
	key := "greeting." + string(normalizeStyle(style))
	if strings.TrimSpace(name) == "" {
		return c.text(key + ".anonymous")
	}
	return c.text(key, name)
}

func (c *Composer) closing(style recommendation.CommunicationStyle) string {
	return c.text("closing." + string(normalizeStyle(style)))
}

func (c *Composer) requesterName(req recommendation.Request) string {
	if req.Requester.Name != "" {
		return req.Requester.Name
	}
	return c.text("requester.anonymous")
}

func (c *Composer) when(days int) string {
	switch {
	case days <= 0:
		return c.text("when.today")
	case days == 1:
		return c.text("when.tomorrow")
	default:
		return c.text("when.days", days)
	}
}

// text looks key up in the localizer and falls back to English when the
// localizer does not know it.
func (c *Composer) text(key string, args ...any) string {
	value := c.loc.Sprintf(key, args...)
	if strings.TrimSpace(value) == "" || strings.HasPrefix(value, key) {
		if fallback, ok := english[key]; ok {
			return fmt.Sprintf(fallback, args...)
		}
		return key
	}
	return value
}

func (c *Composer) render(subject string, v view) (Message, error) {
	var buf bytes.Buffer
	if err := layout.Execute(&buf, v); err != nil {
		return Message{}, fmt.Errorf("render %q: %w", subject, err)
	}
	return Message{Subject: subject, HTML: buf.String()}, nil
}

func normalizeStyle(style recommendation.CommunicationStyle) recommendation.CommunicationStyle {
	switch style {
	case recommendation.StyleFormal, recommendation.StyleFriendly:
		return style
	default:
		return recommendation.StylePolite
	}
}

func formatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}
