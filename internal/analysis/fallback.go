package analysis

import "github.com/thalloran/vitalog/pkg/models"

// FallbackConfidence marks a degraded result. Low enough that no UI should
// present it as a real finding.
const FallbackConfidence = 0.1

// FallbackModelID is recorded when the gateway was never reached.
const FallbackModelID = "unavailable"

var fallbackSummaries = map[models.AnalysisKind]string{
	models.KindNutrition:       "Your nutrition analysis could not be completed automatically.",
	models.KindLabwork:         "Your lab result analysis could not be completed automatically.",
	models.KindCorrelation:     "The correlation analysis could not be completed automatically.",
	models.KindItemLookup:      "The item lookup could not be completed automatically.",
	models.KindItemBulkLookup:  "The bulk item lookup could not be completed automatically.",
	models.KindSubstanceLookup: "The substance lookup could not be completed automatically.",
}

var fallbackInsights = []string{
	"The analysis service was unable to produce a result for this request.",
	"Your logged data was received and stored; nothing was lost.",
	"This placeholder carries deliberately low confidence.",
	"No conclusions should be drawn from this result.",
	"A fresh attempt may succeed once the analysis service recovers.",
}

var fallbackRecommendations = []string{
	"Try running the analysis again later.",
	"Keep logging your data as usual in the meantime.",
	"If the problem persists, check the service status page.",
	"Consider requesting the analysis against a different backend.",
	"Consult a professional for anything time-sensitive; do not wait on this tool.",
}

// Fallback produces the deterministic, clearly-low-confidence result
// substituted when composition, invocation, or validation fails. It performs
// no I/O and no parsing, so it cannot itself fail.
func Fallback(kind models.AnalysisKind, modelID string) models.StructuredResult {
	if modelID == "" {
		modelID = FallbackModelID
	}
	summary, ok := fallbackSummaries[kind]
	if !ok {
		summary = "The analysis could not be completed automatically."
	}
	return models.StructuredResult{
		Insights:         append([]string(nil), fallbackInsights...),
		Recommendations:  append([]string(nil), fallbackRecommendations...),
		Confidence:       FallbackConfidence,
		Summary:          summary,
		DetailedAnalysis: summary + " A deterministic placeholder was stored instead so the request still completes. The underlying data remains available for a retry or a second opinion.",
		ModelID:          modelID,
	}
}
