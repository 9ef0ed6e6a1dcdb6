package models

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisKind selects the prompt template and data sources for a request.
type AnalysisKind string

const (
	KindNutrition       AnalysisKind = "nutrition"
	KindLabwork         AnalysisKind = "labwork"
	KindCorrelation     AnalysisKind = "correlation"
	KindItemLookup      AnalysisKind = "item-lookup"
	KindItemBulkLookup  AnalysisKind = "item-bulk-lookup"
	KindSubstanceLookup AnalysisKind = "substance-lookup"
)

// Valid reports whether k is one of the known analysis kinds.
func (k AnalysisKind) Valid() bool {
	switch k {
	case KindNutrition, KindLabwork, KindCorrelation,
		KindItemLookup, KindItemBulkLookup, KindSubstanceLookup:
		return true
	}
	return false
}

// RequiresRecords reports whether k needs at least one logged record to be
// analyzable. Lookup kinds describe an item rather than the user's history.
func (k AnalysisKind) RequiresRecords() bool {
	switch k {
	case KindNutrition, KindLabwork, KindCorrelation:
		return true
	}
	return false
}

// DomainRecord is one logged entry (food, supplement, or lab value) in the
// form the analysis pipeline consumes. Source identifies the originating
// collection; Metrics holds every numeric figure attached to the entry.
type DomainRecord struct {
	ID         uuid.UUID          `json:"id"`
	Source     string             `json:"source"`
	Label      string             `json:"label"`
	RecordedAt time.Time          `json:"recorded_at"`
	Metrics    map[string]float64 `json:"metrics"`
}

// InputBundle is the immutable, self-contained input to one analysis run.
// It is persisted verbatim next to the result so the run can be replayed
// (second opinions re-use the stored bundle, never a fresh snapshot).
type InputBundle struct {
	UserID           uuid.UUID          `json:"user_id"`
	Kind             AnalysisKind       `json:"kind"`
	Profile          Profile            `json:"profile"`
	Records          []DomainRecord     `json:"records"`
	DerivedTotals    map[string]float64 `json:"derived_totals"`
	DistinctDayCount int                `json:"distinct_day_count"`
	WindowStart      time.Time          `json:"window_start"`
	WindowEnd        time.Time          `json:"window_end"`
	Query            string             `json:"query,omitempty"`
}

// ResultListLen is the exact number of insights and recommendations every
// StructuredResult carries. Short backend responses are padded, long ones
// truncated.
const ResultListLen = 5

// StructuredResult is the strict output contract every analysis kind must
// satisfy, whether produced by a backend or by the fallback policy.
type StructuredResult struct {
	Insights         []string `json:"insights"`
	Recommendations  []string `json:"recommendations"`
	Confidence       float64  `json:"confidence"`
	Summary          string   `json:"summary"`
	DetailedAnalysis string   `json:"detailed_analysis"`
	ModelID          string   `json:"model_id"`
}

// SecondOpinion is an independently generated reconciliation narrative from
// an alternate backend, attached to an existing record at most once per
// model id.
type SecondOpinion struct {
	Text      string    `json:"text"`
	ModelID   string    `json:"model_id"`
	CreatedAt time.Time `json:"created_at"`
}

// AnalysisRecord is the persisted unit: one validated (or fallback) result
// together with the exact input bundle that produced it.
type AnalysisRecord struct {
	ID             uuid.UUID        `json:"id"`
	UserID         uuid.UUID        `json:"user_id"`
	Kind           AnalysisKind     `json:"kind"`
	InputBundle    InputBundle      `json:"input_bundle"`
	Result         StructuredResult `json:"result"`
	SecondOpinions []SecondOpinion  `json:"second_opinions,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// SecondOpinionFor returns the stored opinion for the given model id, or nil.
func (r *AnalysisRecord) SecondOpinionFor(modelID string) *SecondOpinion {
	for i := range r.SecondOpinions {
		if r.SecondOpinions[i].ModelID == modelID {
			return &r.SecondOpinions[i]
		}
	}
	return nil
}
