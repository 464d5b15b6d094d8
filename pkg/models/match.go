package models

import (
	"encoding/json"
	"time"
)

// MatchCandidate represents a potential duplicate pair found by a detection
// run. Candidates are created fresh per run and consumed exactly once by the
// merge engine; a resolved candidate is never re-evaluated automatically.
type MatchCandidate struct {
	ID              string          `json:"id" db:"id"`
	EntityKind      EntityKind      `json:"entity_kind" db:"entity_kind"`
	EntityAID       string          `json:"entity_a_id" db:"entity_a_id"`
	EntityBID       string          `json:"entity_b_id" db:"entity_b_id"`
	MatchType       MatchType       `json:"match_type" db:"match_type"`
	Score           float64         `json:"score" db:"score"`
	Confidence      ConfidenceTier  `json:"confidence" db:"confidence"`
	Evidence        json.RawMessage `json:"evidence,omitempty" db:"evidence"`
	SuggestedAction string          `json:"suggested_action" db:"suggested_action"`
	Status          string          `json:"status" db:"status"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy      *string         `json:"resolved_by,omitempty" db:"resolved_by"`
}

// MatchCandidateStatus constants
const (
	MatchCandidateStatusPending    = "pending"
	MatchCandidateStatusApproved   = "approved"
	MatchCandidateStatusRejected   = "rejected"
	MatchCandidateStatusAutoMerged = "auto_merged"
	MatchCandidateStatusDeferred   = "deferred"
)

// MatchEvidence captures the compared field values for a candidate
type MatchEvidence struct {
	TitleA          string   `json:"title_a,omitempty"`
	TitleB          string   `json:"title_b,omitempty"`
	NormalizedA     string   `json:"normalized_a,omitempty"`
	NormalizedB     string   `json:"normalized_b,omitempty"`
	BaseTitleA      string   `json:"base_title_a,omitempty"`
	BaseTitleB      string   `json:"base_title_b,omitempty"`
	VariantMarkers  []string `json:"variant_markers,omitempty"`
	FeaturingA      []string `json:"featuring_a,omitempty"`
	FeaturingB      []string `json:"featuring_b,omitempty"`
	CreditType      string   `json:"credit_type,omitempty"`
	PersonA         string   `json:"person_a,omitempty"`
	PersonB         string   `json:"person_b,omitempty"`
	TitleSimilarity float64  `json:"title_similarity"`
}

// MergeOutcome is the recorded result of a merge decision
type MergeOutcome string

const (
	MergeOutcomeApplied  MergeOutcome = "applied"
	MergeOutcomeQueued   MergeOutcome = "queued"
	MergeOutcomeDeferred MergeOutcome = "deferred"
	MergeOutcomeRejected MergeOutcome = "rejected"
	MergeOutcomeFailed   MergeOutcome = "failed"
)

// MergeDecision records what the merge engine did with one candidate
type MergeDecision struct {
	ID          string       `json:"id" db:"id"`
	CandidateID string       `json:"candidate_id" db:"candidate_id"`
	Outcome     MergeOutcome `json:"outcome" db:"outcome"`
	WinnerID    *string      `json:"winner_id,omitempty" db:"winner_id"`
	LoserID     *string      `json:"loser_id,omitempty" db:"loser_id"`
	DryRun      bool         `json:"dry_run" db:"dry_run"`
	Reason      string       `json:"reason" db:"reason"`
	DecidedAt   time.Time    `json:"decided_at" db:"decided_at"`
}

// SkippedItem reports a per-item failure inside a batch. Batch operations
// return results plus skips, never a bare boolean.
type SkippedItem struct {
	EntityID string `json:"entity_id,omitempty"`
	Reason   string `json:"reason"`
}

// DetectionResult is the output of one duplicate detection run
type DetectionResult struct {
	Candidates []MatchCandidate `json:"candidates"`
	Skipped    []SkippedItem    `json:"skipped"`
}

// MergeResult is the output of one applyMerges call
type MergeResult struct {
	Decisions []MergeDecision `json:"decisions"`
	Skipped   []SkippedItem   `json:"skipped"`
}

// ResolutionResult is the output of one album resolution run
type ResolutionResult struct {
	Albums     []Album       `json:"albums"`
	Created    int           `json:"created"`
	CreatedIDs []string      `json:"created_ids,omitempty"`
	Skipped    []SkippedItem `json:"skipped"`
}

// ConsolidationResult is the output of one credit consolidation
type ConsolidationResult struct {
	Credits []Credit      `json:"credits"`
	Skipped []SkippedItem `json:"skipped"`
}
