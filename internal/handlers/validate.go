package handlers

import (
	"unicode/utf8"

	"postforge/internal/workflow"
)

// Validation limits for operator input.
const (
	maxTopicLen    = 2_000
	maxOptionLen   = 200
	maxPostTextLen = 10_000
)

// validateBrief checks brief field lengths and returns the first error found.
// An empty topic is not rejected here: the workflow reports it.
func validateBrief(b workflow.Brief) string {
	if utf8.RuneCountInString(b.Topic) > maxTopicLen {
		return "Topic is too long (max 2,000 characters)."
	}
	for _, opt := range []struct{ name, value string }{
		{"Tone", b.Tone},
		{"Audience", b.Audience},
		{"Length", b.Length},
		{"CTA preference", b.CTA},
	} {
		if utf8.RuneCountInString(opt.value) > maxOptionLen {
			return opt.name + " is too long (max 200 characters)."
		}
	}
	return ""
}

// validatePostText checks the operator-edited post body.
func validatePostText(text string) string {
	if utf8.RuneCountInString(text) > maxPostTextLen {
		return "Post text is too long (max 10,000 characters)."
	}
	return ""
}
