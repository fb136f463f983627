package chat

// Proficiency levels the model is asked to report.
const (
	LevelIntro        = "intro"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
)

// Resolution outcomes the model is asked to report.
const (
	OutcomeResolved          = "resolved"
	OutcomePartiallyResolved = "partially resolved"
	OutcomeUnresolved        = "unresolved"
)

// AnalyticsData is the structured record the model appends to each answer.
type AnalyticsData struct {
	Concept string `json:"concept"`
	Level   string `json:"level"`
	UseCase string `json:"useCase"`
	Outcome string `json:"outcome"`
}

// KnownLevel reports whether Level is one of the documented values.
func (a AnalyticsData) KnownLevel() bool {
	switch a.Level {
	case LevelIntro, LevelIntermediate, LevelAdvanced:
		return true
	}
	return false
}

// KnownOutcome reports whether Outcome is one of the documented values.
func (a AnalyticsData) KnownOutcome() bool {
	switch a.Outcome {
	case OutcomeResolved, OutcomePartiallyResolved, OutcomeUnresolved:
		return true
	}
	return false
}
