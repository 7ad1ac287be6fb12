package compose

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// english doubles as the fallback when a localizer lacks a key.
var english = map[string]string{
	"subject.initial":    "Recommendation letter request: %s",
	"subject.reminder":   "%sRecommendation letter for %s due %s",
	"subject.completion": "Your recommendation letter for %s has been submitted",

	"prefix.critical": "🚨 URGENT: ",
	"prefix.high":     "⚠️ Reminder: ",
	"prefix.medium":   "📅 Reminder: ",
	"prefix.low":      "Reminder: ",

	"when.today":    "today",
	"when.tomorrow": "tomorrow",
	"when.days":     "in %d days",

	"greeting.formal":             "Dear %s,",
	"greeting.polite":             "Hello %s,",
	"greeting.friendly":           "Hi %s!",
	"greeting.formal.anonymous":   "Dear Sir or Madam,",
	"greeting.polite.anonymous":   "Hello,",
	"greeting.friendly.anonymous": "Hi there!",

	"closing.formal":   "Respectfully,",
	"closing.polite":   "Thank you for your time and consideration,",
	"closing.friendly": "Thanks so much!",

	"requester.anonymous":  "A student",
	"context.request":      "%s has asked you to write a letter of recommendation for %s.",
	"context.relationship": "About your relationship: %s",
	"context.description":  "About the opportunity: %s",
	"context.additional":   "Additional context: %s",
	"context.deadline":     "The letter is due by %s.",

	"instructions.platform":    "Please submit your letter through our secure portal using the button below. No account is needed.",
	"instructions.school_only": "Please send your letter directly to %s using the details below. Nothing needs to be uploaded to %s.",
	"instructions.hybrid":      "Please submit your letter through our secure portal using the button below, and also send it to %s using the details below.",
	"instructions.link_expiry": "Your personal link stays active until %s.",
	"instructions.institution": "the institution",
	"instructions.link_hint":   "Or copy and paste this link into your browser:",

	"button.submit":            "Submit Recommendation Letter",
	"institution.heading":      "Institution details",
	"institution.name":         "Institution",
	"institution.email":        "Submission email",
	"institution.instructions": "Instructions",
	"draft.heading":            "A draft has been provided to help you get started:",

	"reminder.body":   "This is a reminder that %s is still waiting on your letter of recommendation for %s.",
	"banner.critical": "Urgent: the letter is due %s.",
	"banner.high":     "The deadline is approaching: the letter is due %s.",
	"banner.medium":   "Heads-up: the letter is due %s.",

	"completion.greeting":              "Hello %s,",
	"completion.anonymous":             "Hello,",
	"completion.body":                  "%s has submitted a letter of recommendation for %s.",
	"completion.recommender_anonymous": "Your recommender",
	"completion.received":              "Received on %s.",
	"completion.closing":               "The %s team",

	"footer.sent_by": "This message was sent by %s on behalf of %s.",
}

func init() {
	lang := language.English
	for key, value := range english {
		_ = message.SetString(lang, key, value)
	}
}
