package conformity

import "conformity-backend/internal/textnorm"

// Severity of a gap.
type Severity string

const (
	SeverityLow      Severity = "baixa"
	SeverityMedium   Severity = "media"
	SeverityHigh     Severity = "alta"
	SeverityCritical Severity = "critica"
)

// RiskLevel of a whole result.
type RiskLevel string

const (
	RiskLow      RiskLevel = "baixo"
	RiskMedium   RiskLevel = "medio"
	RiskHigh     RiskLevel = "alto"
	RiskCritical RiskLevel = "critico"
)

var severitySynonyms = map[string]Severity{
	"baixa":      SeverityLow,
	"baixo":      SeverityLow,
	"low":        SeverityLow,
	"leve":       SeverityLow,
	"media":      SeverityMedium,
	"medio":      SeverityMedium,
	"medium":     SeverityMedium,
	"moderada":   SeverityMedium,
	"moderado":   SeverityMedium,
	"alta":       SeverityHigh,
	"alto":       SeverityHigh,
	"high":       SeverityHigh,
	"grave":      SeverityHigh,
	"critica":    SeverityCritical,
	"critico":    SeverityCritical,
	"critical":   SeverityCritical,
	"gravissima": SeverityCritical,
}

var riskSynonyms = map[string]RiskLevel{
	"baixo":    RiskLow,
	"baixa":    RiskLow,
	"low":      RiskLow,
	"medio":    RiskMedium,
	"media":    RiskMedium,
	"medium":   RiskMedium,
	"moderado": RiskMedium,
	"moderada": RiskMedium,
	"alto":     RiskHigh,
	"alta":     RiskHigh,
	"high":     RiskHigh,
	"critico":  RiskCritical,
	"critica":  RiskCritical,
	"critical": RiskCritical,
}

// ParseSeverity maps free model text onto a Severity. Unknown values become
// SeverityLow; ok reports whether the value was recognized.
func ParseSeverity(raw string) (sev Severity, ok bool) {
	if s, found := severitySynonyms[textnorm.FoldKey(raw)]; found {
		return s, true
	}
	return SeverityLow, false
}

// ParseRiskLevel maps free model text onto a RiskLevel, defaulting to RiskLow.
func ParseRiskLevel(raw string) (level RiskLevel, ok bool) {
	if r, found := riskSynonyms[textnorm.FoldKey(raw)]; found {
		return r, true
	}
	return RiskLow, false
}

// Deduction is the fixed score penalty for one gap of the given severity.
func (s Severity) Deduction() int {
	switch s {
	case SeverityCritical:
		return 20
	case SeverityHigh:
		return 15
	case SeverityMedium:
		return 10
	case SeverityLow:
		return 5
	default:
		return 0
	}
}

// DefaultDeadline is the suggested remediation window for a severity.
func (s Severity) DefaultDeadline() string {
	switch s {
	case SeverityCritical:
		return "imediato"
	case SeverityHigh:
		return "30 dias"
	case SeverityMedium:
		return "90 dias"
	default:
		return "180 dias"
	}
}
