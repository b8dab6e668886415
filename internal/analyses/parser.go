package analyses

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"conformity-backend/internal/conformity"
	"conformity-backend/internal/llm"
)

const (
	// DefaultCategory is used when the model omits a gap category.
	DefaultCategory = "Geral"
	// DefaultDescription is used when the model omits a gap description.
	DefaultDescription = "Não conformidade sem descrição"
)

var (
	errNoJSONObject = errors.New("no JSON object in provider output")
	validate        = validator.New(validator.WithRequiredStructEnabled())
)

// Parsed is the provider output after coercion, before grounding and scoring.
type Parsed struct {
	Result         conformity.AnalysisResult
	ModelScore     int
	ModelRiskLevel string
	ModelGapCount  int
}

// envelope is the structural shape checked before coercion.
type envelope struct {
	Gaps []map[string]any `validate:"dive,required"`
}

// Parse extracts and normalizes an AnalysisResult from raw provider text.
func Parse(raw string) (conformity.AnalysisResult, error) {
	p, err := ParseDetailed(raw)
	if err != nil {
		return conformity.AnalysisResult{}, err
	}
	return p.Result, nil
}

// ParseDetailed is Parse plus the model's own claims, kept for metadata.
// Errors carry the invalid_json or schema_validation class.
func ParseDetailed(raw string) (Parsed, error) {
	obj, ok := extractJSONObject(raw)
	if !ok {
		return Parsed{}, llm.NewClassifiedError(llm.ClassInvalidJSON, errNoJSONObject)
	}

	dec := json.NewDecoder(strings.NewReader(obj))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return Parsed{}, llm.NewClassifiedError(llm.ClassInvalidJSON, fmt.Errorf("decode provider output: %w", err))
	}

	env, err := buildEnvelope(doc)
	if err != nil {
		return Parsed{}, llm.NewClassifiedError(llm.ClassSchemaValidation, err)
	}
	if err := validate.Struct(env); err != nil {
		return Parsed{}, llm.NewClassifiedError(llm.ClassSchemaValidation, fmt.Errorf("validate provider output: %w", err))
	}

	modelScore := clampScore(coerceScore(pick(doc, "score", "pontuacao")))
	riskRaw := coerceString(pick(doc, "nivelRisco", "riskLevel", "nivel_risco"))
	risk, _ := conformity.ParseRiskLevel(riskRaw)

	gaps := make([]conformity.Gap, 0, len(env.Gaps))
	for i, g := range env.Gaps {
		gaps = append(gaps, coerceGap(g, i))
	}

	return Parsed{
		Result: conformity.AnalysisResult{
			Score:           modelScore,
			RiskLevel:       risk,
			Gaps:            gaps,
			Summary:         coerceString(pick(doc, "resumo", "summary")),
			Strengths:       coerceStrings(pick(doc, "pontosPositivos", "strengths")),
			AttentionPoints: coerceStrings(pick(doc, "pontosAtencao", "attentionPoints")),
			NextSteps:       coerceStrings(pick(doc, "proximosPassos", "nextSteps")),
		},
		ModelScore:     modelScore,
		ModelRiskLevel: strings.TrimSpace(riskRaw),
		ModelGapCount:  len(env.Gaps),
	}, nil
}

func buildEnvelope(doc map[string]any) (envelope, error) {
	rawGaps := pick(doc, "gaps", "lacunas")
	if rawGaps == nil {
		return envelope{}, nil
	}
	list, ok := rawGaps.([]any)
	if !ok {
		return envelope{}, fmt.Errorf("gaps must be an array, got %T", rawGaps)
	}
	gaps := make([]map[string]any, 0, len(list))
	for i, item := range list {
		if item == nil {
			gaps = append(gaps, nil)
			continue
		}
		m, ok := item.(map[string]any)
		if !ok {
			return envelope{}, fmt.Errorf("gaps[%d] must be an object, got %T", i, item)
		}
		gaps = append(gaps, m)
	}
	return envelope{Gaps: gaps}, nil
}

func coerceGap(g map[string]any, index int) conformity.Gap {
	severity, _ := conformity.ParseSeverity(coerceString(pick(g, "severidade", "severity")))

	gap := conformity.Gap{
		ID:             coerceString(pick(g, "id")),
		Description:    coerceString(pick(g, "descricao", "description")),
		Severity:       severity,
		Category:       coerceString(pick(g, "categoria", "category")),
		Recommendation: coerceString(pick(g, "recomendacao", "recommendation")),
		Deadline:       coerceString(pick(g, "prazo", "deadline")),
		RelatedNorms:   coerceStrings(pick(g, "normasRelacionadas", "relatedNorms")),
		Evidences:      coerceEvidences(pick(g, "evidencias", "evidences")),
	}
	if gap.ID == "" {
		gap.ID = fmt.Sprintf("gap_%03d", index+1)
	}
	if gap.Description == "" {
		gap.Description = DefaultDescription
	}
	if gap.Category == "" {
		gap.Category = DefaultCategory
	}
	if gap.Deadline == "" {
		gap.Deadline = severity.DefaultDeadline()
	}
	return gap
}

// coerceEvidences accepts objects with a chunkId or bare chunkId strings.
func coerceEvidences(v any) []conformity.EvidenceSnippet {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]conformity.EvidenceSnippet, 0, len(list))
	for _, item := range list {
		switch e := item.(type) {
		case string:
			if id := strings.TrimSpace(e); id != "" {
				out = append(out, conformity.EvidenceSnippet{ChunkID: id})
			}
		case map[string]any:
			id := coerceString(pick(e, "chunkId", "chunk_id", "id"))
			if id == "" {
				continue
			}
			out = append(out, conformity.EvidenceSnippet{
				ChunkID:  id,
				NormCode: coerceString(pick(e, "normCode", "normaCodigo")),
				Section:  coerceString(pick(e, "section", "secao")),
				Content:  coerceString(pick(e, "content", "conteudo")),
			})
		}
	}
	return out
}

func pick(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func coerceString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func coerceStrings(v any) []string {
	out := []string{}
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			out = append(out, s)
		}
	case []any:
		for _, item := range t {
			if s := coerceString(item); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// coerceScore reads a number or numeric string; anything else is 0.
func coerceScore(v any) float64 {
	var raw string
	switch t := v.(type) {
	case json.Number:
		raw = t.String()
	case string:
		raw = strings.TrimSuffix(strings.TrimSpace(t), "%")
		raw = strings.ReplaceAll(raw, ",", ".")
	default:
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) {
		return 0
	}
	return f
}

func clampScore(f float64) int {
	if f <= 0 {
		return 0
	}
	if f >= 100 {
		return 100
	}
	return int(math.Round(f))
}

// extractJSONObject returns the first balanced {...} in s. Braces inside JSON
// strings are ignored.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
