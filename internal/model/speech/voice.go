package speech

// Voice is a speech-synthesis voice reported by the client runtime.
type Voice struct {
	Name    string `json:"name"`
	Lang    string `json:"lang,omitempty"`
	Default bool   `json:"default,omitempty"`
}

// Utterance instructs the client to read Text aloud.
type Utterance struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Voice string  `json:"voice,omitempty"`
	Lang  string  `json:"lang,omitempty"`
	Rate  float32 `json:"rate"`
	Pitch float32 `json:"pitch"`
}

// PlaybackConfig holds the fixed delivery parameters for synthesized speech.
type PlaybackConfig struct {
	Rate          float32
	Pitch         float32
	Lang          string
	PreferredName string
	PlatformLabel string
}
