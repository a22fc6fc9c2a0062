package workflow

import (
	"fmt"
	"strings"
)

// Defaults applied to brief fields the operator leaves blank.
const (
	DefaultTone     = "Professional"
	DefaultAudience = "General LinkedIn audience"
	DefaultLength   = "Medium"
	DefaultCTA      = "Question"
)

// Brief is the operator's request for a new post.
type Brief struct {
	Topic    string `json:"topic"`
	Tone     string `json:"tone"`
	Audience string `json:"audience"`
	Length   string `json:"length"`
	CTA      string `json:"cta_preference"`
}

// Prompt renders the brief as the labeled-lines message sent to the
// orchestrator agent.
func (b Brief) Prompt() string {
	return fmt.Sprintf("Topic: %s\nTone: %s\nAudience: %s\nLength: %s\nCTA Preference: %s",
		b.Topic,
		orDefault(b.Tone, DefaultTone),
		orDefault(b.Audience, DefaultAudience),
		orDefault(b.Length, DefaultLength),
		orDefault(b.CTA, DefaultCTA),
	)
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func (b Brief) hasTopic() bool {
	return strings.TrimSpace(b.Topic) != ""
}
