package analytics

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zhouzirui/euonia-ta/backend/internal/model/chat"
)

func TestParseExtractsWellFormedTag(t *testing.T) {
	answer := "AIDA stands for **Attention, Interest, Desire, Action**.\n\n"
	tag := `[[ANALYTICS: {"concept": "AIDA", "level": "intro", "useCase": "concept clarification", "outcome": "resolved"}]]`
	raw := answer + tag

	got := (&Parser{}).Parse(raw)

	assert.Equal(t, answer, got.Text)
	want := &chat.AnalyticsData{
		Concept: "AIDA",
		Level:   chat.LevelIntro,
		UseCase: "concept clarification",
		Outcome: chat.OutcomeResolved,
	}
	if diff := cmp.Diff(want, got.Analytics); diff != "" {
		t.Fatalf("analytics mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRemovesOnlyTheTagSubstring(t *testing.T) {
	raw := `Before [[ANALYTICS: {"concept":"DAGMAR","level":"advanced","useCase":"exam prep","outcome":"partially resolved"}]] after`

	got := NewParser(zap.NewNop()).Parse(raw)

	assert.Equal(t, "Before  after", got.Text)
	require.NotNil(t, got.Analytics)
	assert.Equal(t, "DAGMAR", got.Analytics.Concept)
	assert.Equal(t, chat.OutcomePartiallyResolved, got.Analytics.Outcome)
}

func TestParseWithoutTagReturnsRawText(t *testing.T) {
	raw := "The FCB grid has four quadrants."

	got := (&Parser{}).Parse(raw)

	assert.Equal(t, raw, got.Text)
	assert.Nil(t, got.Analytics)
}

func TestParseMalformedTagKeepsRawText(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	raw := `Answer. [[ANALYTICS: {"concept": "AIDA", level: intro}]]`

	got := NewParser(zap.New(core)).Parse(raw)

	assert.Equal(t, raw, got.Text)
	assert.Nil(t, got.Analytics)
	assert.Equal(t, 1, logs.FilterMessage("failed to parse analytics JSON").Len())
}

func TestParseTagMustHoldAnObject(t *testing.T) {
	raw := `Answer. [[ANALYTICS: ["AIDA"]]]`

	got := (&Parser{}).Parse(raw)

	assert.Equal(t, raw, got.Text)
	assert.Nil(t, got.Analytics)
}

func TestLogFlagsUndocumentedValues(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewParser(zap.New(core))

	p.Log("c1", &chat.AnalyticsData{Concept: "ELM", Level: "intro", Outcome: "resolved"})
	p.Log("c1", &chat.AnalyticsData{Concept: "ELM", Level: "expert", Outcome: "resolved"})
	p.Log("c1", nil)

	assert.Equal(t, 1, logs.FilterMessage("analytics").Len())
	assert.Equal(t, 1, logs.FilterMessage("analytics record outside documented values").Len())
}
