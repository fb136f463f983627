package voice

import "github.com/zhouzirui/euonia-ta/backend/internal/model/speech"

// DefaultMIMEType is used when neither the recorder nor negotiation produced a type.
const DefaultMIMEType = "audio/webm"

// PreferredMIMETypes lists recording formats in priority order.
var PreferredMIMETypes = []string{
	"audio/webm;codecs=opus",
	"audio/webm",
	"audio/mp4",
	"audio/ogg",
	"audio/aac",
}

// NegotiateMIMEType returns the first preferred type the runtime supports, or
// "" to let the recorder pick its own default.
func NegotiateMIMEType(caps speech.Capabilities) string {
	for _, t := range PreferredMIMETypes {
		if caps.Supports(t) {
			return t
		}
	}
	return ""
}

// ResolveMIMEType picks the type attached to a finished recording.
func ResolveMIMEType(recorder, negotiated string) string {
	switch {
	case recorder != "":
		return recorder
	case negotiated != "":
		return negotiated
	default:
		return DefaultMIMEType
	}
}
