package analyses

import "conformity-backend/internal/conformity"

// Score recomputes the conformity score from gap severities and derives the
// risk level from it.
func Score(gaps []conformity.Gap) (int, conformity.RiskLevel) {
	score := 100
	for _, g := range gaps {
		score -= g.Severity.Deduction()
	}
	if score < 0 {
		score = 0
	}
	return score, RiskFor(score)
}

// RiskFor maps a score onto a risk level: >=80 baixo, >=60 medio, >=40 alto,
// otherwise critico.
func RiskFor(score int) conformity.RiskLevel {
	switch {
	case score >= 80:
		return conformity.RiskLow
	case score >= 60:
		return conformity.RiskMedium
	case score >= 40:
		return conformity.RiskHigh
	default:
		return conformity.RiskCritical
	}
}
