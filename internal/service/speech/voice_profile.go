package speech

import (
	"strings"

	"github.com/zhouzirui/euonia-ta/backend/internal/model/speech"
)

// VoicePreference names the voices playback prefers, in priority order.
type VoicePreference struct {
	// Exact voice name, matched case-sensitively.
	Name string
	// Substring of a platform voice name.
	PlatformLabel string
}

// DefaultVoicePreference favours Samantha, then Google's US English voice.
var DefaultVoicePreference = VoicePreference{
	Name:          "Samantha",
	PlatformLabel: "Google US English",
}

// SelectVoice picks a voice: exact name match, then platform label, then any
// voice whose name contains "female" in any case, then the first voice. It
// reports false when voices is empty.
func SelectVoice(voices []speech.Voice, pref VoicePreference) (speech.Voice, bool) {
	if len(voices) == 0 {
		return speech.Voice{}, false
	}

	if pref.Name != "" {
		for _, v := range voices {
			if v.Name == pref.Name {
				return v, true
			}
		}
	}

	if pref.PlatformLabel != "" {
		for _, v := range voices {
			if strings.Contains(v.Name, pref.PlatformLabel) {
				return v, true
			}
		}
	}

	for _, v := range voices {
		if strings.Contains(strings.ToLower(v.Name), "female") {
			return v, true
		}
	}

	return voices[0], true
}
