package analysis

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/thalloran/vitalog/pkg/models"
)

// Token and temperature budgets per invocation. The reconciliation pass is
// narrative, so it gets a little more creative freedom and fewer tokens.
const (
	analysisMaxTokens    = 1400
	analysisTemperature  = 0.4
	reconcileMaxTokens   = 1000
	reconcileTemperature = 0.5
	maxRecordsInPrompt   = 120
	maxRecordLabelLen    = 80
)

// Prompt is an opaque request payload ready for the inference gateway.
type Prompt struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float32
}

// Request converts the prompt into a gateway completion request.
func (p Prompt) Request() models.CompletionRequest {
	return models.CompletionRequest{
		System:      p.System,
		Prompt:      p.User,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
	}
}

const systemPrompt = `You are a careful health-data analyst. You must produce one valid JSON object only (no markdown, no commentary, no code fences) that follows the schema below exactly. You are given every aggregate figure you need; never recompute or second-guess a figure you were given. Never invent specific measurements that are not in the data.

Schema (field for field, no extras):
{
  "summary": "<string, one or two sentences>",
  "detailed_analysis": "<string, a few short paragraphs>",
  "insights": ["<string>", "<string>", "<string>", "<string>", "<string>"],
  "recommendations": ["<string>", "<string>", "<string>", "<string>", "<string>"],
  "confidence": <number between 0 and 1>
}`

// kindInstructions is the per-kind opening paragraph of the user prompt.
var kindInstructions = map[models.AnalysisKind]string{
	models.KindNutrition:       "Analyze the user's food log below. Focus on macronutrient balance, calorie trends, and obvious gaps.",
	models.KindLabwork:         "Analyze the user's lab results below. Flag values that commonly warrant attention and describe trends across samples.",
	models.KindCorrelation:     "Analyze the combined food, supplement, and lab data below for plausible correlations between intake and lab markers. Be conservative: correlation is not causation.",
	models.KindItemLookup:      "Describe the nutritional properties, typical serving, and health considerations of the item named below.",
	models.KindItemBulkLookup:  "Describe the nutritional properties and health considerations of each item in the comma-separated list below, then summarize them as a group.",
	models.KindSubstanceLookup: "Describe the supplement or substance named below: typical dosing ranges found in the literature, claimed benefits with their evidence level, and known interactions or cautions.",
}

// ComposePrompt converts an input bundle into a request payload for its
// analysis kind. The bundle's aggregates are restated verbatim; the backend
// is never asked to recompute them. No network or storage side effects.
func ComposePrompt(bundle *models.InputBundle) (Prompt, error) {
	intro, ok := kindInstructions[bundle.Kind]
	if !ok {
		return Prompt{}, fmt.Errorf("no prompt template for analysis kind %q", bundle.Kind)
	}

	var b strings.Builder
	b.WriteString(intro)
	b.WriteString("\n\n")

	writeProfile(&b, bundle.Profile)

	if bundle.Query != "" {
		fmt.Fprintf(&b, "Item under inspection: %s\n\n", bundle.Query)
	}

	if len(bundle.Records) > 0 {
		fmt.Fprintf(&b, "Logged records (%d total, window %s to %s):\n",
			len(bundle.Records),
			bundle.WindowStart.Format(dayLayout),
			bundle.WindowEnd.Format(dayLayout))
		writeRecords(&b, bundle.Records)
		b.WriteString("\n")

		b.WriteString("Precomputed totals across the window (use as given):\n")
		writeTotals(&b, bundle.DerivedTotals)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "The data spans %d distinct day(s).\n", bundle.DistinctDayCount)
	fmt.Fprintf(&b, "Calibrate your suggested confidence accordingly: %s. The final confidence is validated downstream, so report honestly.\n",
		confidenceBand(bundle.DistinctDayCount))

	return Prompt{
		System:      systemPrompt,
		User:        b.String(),
		MaxTokens:   analysisMaxTokens,
		Temperature: analysisTemperature,
	}, nil
}

// ComposeReconciliationPrompt builds the second-opinion reconciliation
// request. It embeds both structured results verbatim and asks for a
// free-form comparative narrative; the reply is not schema-validated.
func ComposeReconciliationPrompt(bundle *models.InputBundle, original, independent models.StructuredResult) Prompt {
	origJSON, _ := json.MarshalIndent(original, "", "  ")
	indepJSON, _ := json.MarshalIndent(independent, "", "  ")

	var b strings.Builder
	fmt.Fprintf(&b, "Two independent analyses of the same %s data are given below.\n\n", bundle.Kind)
	fmt.Fprintf(&b, "Analysis A (model %s):\n%s\n\n", original.ModelID, origJSON)
	fmt.Fprintf(&b, "Analysis B (model %s):\n%s\n\n", independent.ModelID, indepJSON)
	b.WriteString("Write a reconciliation report in plain prose that:\n")
	b.WriteString("1. States the overall level of agreement or disagreement between the two analyses.\n")
	b.WriteString("2. Summarizes the key findings of each side.\n")
	b.WriteString("3. Highlights what each analysis contributes that the other missed.\n")
	b.WriteString("Do not merge them into a new analysis; compare them.")

	return Prompt{
		System:      "You are a careful health-data analyst comparing two prior analyses. Reply in plain prose, no JSON.",
		User:        b.String(),
		MaxTokens:   reconcileMaxTokens,
		Temperature: reconcileTemperature,
	}
}

// confidenceBand is advisory text for the backend; the validator remains the
// sole authority on the final emitted confidence.
func confidenceBand(distinctDays int) string {
	switch {
	case distinctDays <= 1:
		return "low (a single day of data supports at most 0.4)"
	case distinctDays <= 7:
		return "medium (under a week of data supports 0.4 to 0.7)"
	default:
		return "high (a week or more of data supports up to 0.9)"
	}
}

func writeProfile(b *strings.Builder, p models.Profile) {
	var parts []string
	if p.Age != nil {
		parts = append(parts, fmt.Sprintf("age %d", *p.Age))
	}
	if p.Sex != nil {
		parts = append(parts, "sex "+*p.Sex)
	}
	if p.HeightCm != nil {
		parts = append(parts, fmt.Sprintf("height %.0f cm", *p.HeightCm))
	}
	if p.WeightKg != nil {
		parts = append(parts, fmt.Sprintf("weight %.1f kg", *p.WeightKg))
	}
	if p.Goal != nil {
		parts = append(parts, "goal: "+*p.Goal)
	}
	if len(parts) == 0 {
		return
	}
	fmt.Fprintf(b, "User profile: %s.\n\n", strings.Join(parts, ", "))
}

func writeRecords(b *strings.Builder, records []models.DomainRecord) {
	shown := records
	if len(shown) > maxRecordsInPrompt {
		shown = shown[len(shown)-maxRecordsInPrompt:]
		fmt.Fprintf(b, "(showing the most recent %d)\n", maxRecordsInPrompt)
	}
	for _, rec := range shown {
		label := rec.Label
		if len(label) > maxRecordLabelLen {
			label = label[:maxRecordLabelLen]
		}
		fmt.Fprintf(b, "- %s [%s] %s:", rec.RecordedAt.UTC().Format("2006-01-02 15:04"), rec.Source, label)
		for _, name := range sortedKeys(rec.Metrics) {
			fmt.Fprintf(b, " %s=%.6g", name, rec.Metrics[name])
		}
		b.WriteString("\n")
	}
}

func writeTotals(b *strings.Builder, totals map[string]float64) {
	for _, name := range sortedKeys(totals) {
		fmt.Fprintf(b, "- %s: %.6g\n", name, totals[name])
	}
}

// sortedKeys keeps prompt output deterministic across runs.
func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
