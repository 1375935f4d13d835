package constants

// RunStatus is the terminal status of one orchestration run.
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "SUCCEEDED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusCanceled  RunStatus = "CANCELED"
)

// AttemptOutcome is the recorded outcome of a single provider attempt.
type AttemptOutcome string

const (
	OutcomeSuccess        AttemptOutcome = "SUCCESS"
	OutcomeBelowThreshold AttemptOutcome = "BELOW_THRESHOLD"
	OutcomeFailed         AttemptOutcome = "FAILED"
)

// MatchStatus tracks a pattern-based suggestion through review.
type MatchStatus string

const (
	MatchStatusSuggested MatchStatus = "SUGGESTED"
	MatchStatusConfirmed MatchStatus = "CONFIRMED"
	MatchStatusCorrected MatchStatus = "CORRECTED"
)

// RecordKind marks a correction-history row; all kinds are replayed on rebuild.
type RecordKind string

const (
	RecordKindCorrection      RecordKind = "CORRECTION"
	RecordKindMapping         RecordKind = "MAPPING"
	RecordKindConfirmation    RecordKind = "CONFIRMATION"
	RecordKindMatchCorrection RecordKind = "MATCH_CORRECTION"
)

// LearnStatus is returned with every learning call.
type LearnStatus string

const (
	LearnStatusLearned   LearnStatus = "LEARNED"
	LearnStatusConfirmed LearnStatus = "CONFIRMED"
	LearnStatusCorrected LearnStatus = "CORRECTED"
	LearnStatusIngested  LearnStatus = "INGESTED"
	LearnStatusRebuilt   LearnStatus = "REBUILT"
)
