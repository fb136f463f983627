package speech

import (
	"regexp"
	"strings"
)

var bracketTag = regexp.MustCompile(`\[\[.*?\]\]`)

// CleanForSpeech removes markdown emphasis markers and any [[...]] tag so they
// are not read aloud.
func CleanForSpeech(text string) string {
	text = strings.ReplaceAll(text, "**", "")
	text = strings.ReplaceAll(text, "*", "")
	return bracketTag.ReplaceAllString(text, "")
}
