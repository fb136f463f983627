// Package analytics separates the visible answer from the analytics record the
// model appends as [[ANALYTICS: {...}]].
package analytics

import (
	"encoding/json"
	"regexp"

	"go.uber.org/zap"

	"github.com/zhouzirui/euonia-ta/backend/internal/logging"
	"github.com/zhouzirui/euonia-ta/backend/internal/model/chat"
)

var tagPattern = regexp.MustCompile(`\[\[ANALYTICS:\s*(\{.*?\})\]\]`)

// Result is a parsed model response.
type Result struct {
	Text      string
	Analytics *chat.AnalyticsData
}

// Parser extracts analytics tags. The zero value is usable and logs nothing.
type Parser struct {
	logger *zap.Logger
}

// NewParser returns a Parser that reports malformed tags to logger.
func NewParser(logger *zap.Logger) *Parser {
	return &Parser{logger: logging.OrNop(logger).Named("analytics")}
}

// Parse finds the first analytics tag in raw. When the tag holds a valid JSON
// object the record is returned and exactly the tag substring is removed from
// the text; otherwise raw is returned untouched.
func (p *Parser) Parse(raw string) Result {
	loc := tagPattern.FindStringSubmatchIndex(raw)
	if loc == nil {
		return Result{Text: raw}
	}

	payload := raw[loc[2]:loc[3]]
	var data chat.AnalyticsData
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		p.log().Warn("failed to parse analytics JSON", zap.Error(err), zap.String("payload", payload))
		return Result{Text: raw}
	}

	return Result{
		Text:      raw[:loc[0]] + raw[loc[1]:],
		Analytics: &data,
	}
}

// Log writes the per-turn analytics line.
func (p *Parser) Log(conversationID string, data *chat.AnalyticsData) {
	if data == nil {
		return
	}
	fields := []zap.Field{
		zap.String("conversation", conversationID),
		zap.String("concept", data.Concept),
		zap.String("level", data.Level),
		zap.String("use_case", data.UseCase),
		zap.String("outcome", data.Outcome),
	}
	if !data.KnownLevel() || !data.KnownOutcome() {
		p.log().Warn("analytics record outside documented values", fields...)
		return
	}
	p.log().Info("analytics", fields...)
}

func (p *Parser) log() *zap.Logger {
	if p == nil || p.logger == nil {
		return zap.NewNop()
	}
	return p.logger
}
