package analyses

import (
	"fmt"
	"math"
	"strings"

	"conformity-backend/internal/conformity"
	"conformity-backend/internal/textnorm"
)

// Confidence classes.
const (
	ConfidenceHigh   = "confianca_alta"
	ConfidenceMedium = "confianca_media"
	ConfidenceLow    = "confianca_baixa"
)

// ConfidenceInput are the raw signals gathered during one analysis.
type ConfidenceInput struct {
	ParseOK           bool
	ApplicableNorms   []string
	Evidence          []conformity.EvidenceSnippet
	ModelGaps         int
	GroundedGaps      int
	FallbackTriggered bool
}

// ConfidenceSignals are the intermediate measurements behind the score.
type ConfidenceSignals struct {
	ParseOK           bool    `json:"parseOk"`
	NormAgreement     float64 `json:"nrConcordancia"`
	EvidenceCoverage  float64 `json:"evidenceCoverage"`
	KBCoverage        float64 `json:"kbCoverage"`
	ProviderStability int     `json:"providerStability"`
}

// Confidence is a 0-100 estimate of how much the result can be trusted.
type Confidence struct {
	Score   int               `json:"score"`
	Class   string            `json:"classe"`
	Signals ConfidenceSignals `json:"sinais"`
	Alerts  []string          `json:"alertas"`
}

// ComputeConfidence scores parse health, norm agreement, evidence coverage,
// knowledge-base coverage and provider stability.
func ComputeConfidence(in ConfidenceInput) Confidence {
	agreement := normAgreement(in.ApplicableNorms, in.Evidence)
	missing := missingNorms(in.ApplicableNorms, in.Evidence)

	score := 0
	if in.ParseOK {
		score += 15
	}
	switch {
	case agreement >= 0.7:
		score += 20
	case agreement >= 0.4:
		score += 10
	}

	coverage := 1.0
	if in.ModelGaps > 0 {
		coverage = float64(in.GroundedGaps) / float64(in.ModelGaps)
	}
	switch {
	case in.ModelGaps == 0 || coverage >= 1:
		score += 35
	case coverage >= 0.8:
		score += 20
	}

	totalNorms := len(uniqueFolded(in.ApplicableNorms))
	kbCoverage := 0.0
	if totalNorms > 0 {
		kbCoverage = float64(totalNorms-len(missing)) / float64(totalNorms)
		switch {
		case len(missing) == 0:
			score += 15
		case len(missing) < totalNorms:
			score += 5
		}
	}

	stability := 15
	if in.FallbackTriggered {
		stability = 8
	}
	score += stability

	return Confidence{
		Score: score,
		Class: confidenceClass(score),
		Signals: ConfidenceSignals{
			ParseOK:           in.ParseOK,
			NormAgreement:     round4(agreement),
			EvidenceCoverage:  round4(coverage),
			KBCoverage:        round4(kbCoverage),
			ProviderStability: stability,
		},
		Alerts: confidenceAlerts(in, agreement, missing),
	}
}

func confidenceClass(score int) string {
	switch {
	case score >= 80:
		return ConfidenceHigh
	case score >= 60:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func confidenceAlerts(in ConfidenceInput, agreement float64, missing []string) []string {
	alerts := []string{}
	if !in.ParseOK {
		alerts = append(alerts, "Falha de parse detectada em uma etapa da análise automatizada.")
	}
	if agreement < 0.4 {
		alerts = append(alerts, "Baixa concordância entre as normas aplicáveis e as evidências recuperadas.")
	}
	if in.ModelGaps > 0 && in.GroundedGaps < in.ModelGaps {
		alerts = append(alerts, "Nem todos os gaps mantiveram evidência normativa válida.")
	}
	if len(missing) > 0 {
		alerts = append(alerts, fmt.Sprintf("Base normativa local incompleta para: %s.", strings.Join(missing, ", ")))
	}
	if in.FallbackTriggered {
		alerts = append(alerts, "Análise executada com fallback de provider IA; revisar consistência do resultado.")
	}
	return alerts
}

// normAgreement is the Jaccard index between applicable norms and the norm
// codes present in the evidence.
func normAgreement(norms []string, evidence []conformity.EvidenceSnippet) float64 {
	a := uniqueFolded(norms)
	b := uniqueFolded(evidenceNorms(evidence))
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// missingNorms lists applicable norms with no supporting snippet, in input
// order.
func missingNorms(norms []string, evidence []conformity.EvidenceSnippet) []string {
	have := uniqueFolded(evidenceNorms(evidence))
	seen := map[string]struct{}{}
	var missing []string
	for _, n := range norms {
		key := normKey(n)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if _, ok := have[key]; !ok {
			missing = append(missing, strings.TrimSpace(n))
		}
	}
	return missing
}

func evidenceNorms(evidence []conformity.EvidenceSnippet) []string {
	out := make([]string, 0, len(evidence))
	for _, e := range evidence {
		out = append(out, e.NormCode)
	}
	return out
}

func uniqueFolded(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, it := range items {
		if k := normKey(it); k != "" {
			out[k] = struct{}{}
		}
	}
	return out
}

// normKey folds "NR-6", "nr 6" and "NR6" onto the same key.
func normKey(s string) string {
	return strings.ReplaceAll(textnorm.FoldKey(s), "_", "")
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
