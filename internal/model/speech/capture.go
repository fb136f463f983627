package speech

// Capabilities describes what the client runtime can do for a session.
type Capabilities struct {
	Recognition bool     `json:"recognition"`
	Synthesis   bool     `json:"synthesis"`
	MIMETypes   []string `json:"mimeTypes,omitempty"`
}

// Supports reports whether the runtime can record mimeType.
func (c Capabilities) Supports(mimeType string) bool {
	for _, t := range c.MIMETypes {
		if t == mimeType {
			return true
		}
	}
	return false
}

// RecognitionResult is a single recognizer hypothesis.
type RecognitionResult struct {
	Transcript string `json:"transcript"`
	IsFinal    bool   `json:"isFinal"`
}

// RecognitionEvent mirrors one speech-to-text result callback. Results before
// ResultIndex were already delivered in earlier events.
type RecognitionEvent struct {
	ResultIndex int                 `json:"resultIndex"`
	Results     []RecognitionResult `json:"results"`
}

// CaptureResult is what a finished recording hands to the conversation.
type CaptureResult struct {
	AudioBase64 string `json:"audioBase64"`
	MIMEType    string `json:"mimeType"`
	Transcript  string `json:"transcript"`
}
