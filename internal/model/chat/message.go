package chat

import (
	"strings"
	"time"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// AudioPlaceholder is shown for a voice turn that produced no transcript.
const AudioPlaceholder = "🎤 [Audio Message]"

// Message is one rendered conversation turn. Messages are never mutated after
// they are appended to a conversation.
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Text      string         `json:"text"`
	HTML      string         `json:"html,omitempty"`
	Analytics *AnalyticsData `json:"analytics,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Origin tells whether a turn was typed or spoken.
type Origin string

const (
	OriginText  Origin = "text"
	OriginVoice Origin = "voice"
)

// TurnInput carries one user send. At least Text or AudioBase64 must be set.
type TurnInput struct {
	Text        string `json:"text"`
	AudioBase64 string `json:"audioBase64,omitempty"`
	MIMEType    string `json:"mimeType,omitempty"`
	Transcript  string `json:"transcript,omitempty"`
}

// Empty reports whether the input has neither text nor audio. Whitespace-only
// text counts as empty.
func (in TurnInput) Empty() bool {
	return strings.TrimSpace(in.Text) == "" && in.AudioBase64 == ""
}

// Origin reports voice for any turn that carries audio.
func (in TurnInput) Origin() Origin {
	if in.AudioBase64 != "" {
		return OriginVoice
	}
	return OriginText
}

// DisplayText picks what the user bubble shows: the live transcript when it has
// content, then the typed text, then the audio placeholder.
func (in TurnInput) DisplayText() string {
	if transcript := strings.TrimSpace(in.Transcript); transcript != "" {
		return transcript
	}
	if in.Text != "" {
		return in.Text
	}
	return AudioPlaceholder
}
