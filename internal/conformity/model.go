// Package conformity holds the request and verdict types shared by the
// analysis pipeline.
package conformity

// EvidenceSnippet is a ranked excerpt from the regulatory knowledge base. It is
// the only legitimate citation source for a gap.
type EvidenceSnippet struct {
	ChunkID  string  `json:"chunkId" validate:"required"`
	NormCode string  `json:"normCode"`
	Section  string  `json:"section,omitempty"`
	Content  string  `json:"content"`
	Score    float64 `json:"score" validate:"gte=0"`
	Source   string  `json:"source,omitempty"`
}

// AnalysisRequest is the immutable input of one analysis.
type AnalysisRequest struct {
	Document             string            `json:"documento" validate:"required"`
	DocumentType         string            `json:"tipoDocumento" validate:"required"`
	ApplicableNorms      []string          `json:"normasAplicaveis,omitempty"`
	Evidence             []EvidenceSnippet `json:"evidenciasNormativas" validate:"unique=ChunkID,dive"`
	KnowledgeBaseVersion string            `json:"versaoBase,omitempty"`
}

// EvidenceIDs returns the chunk identifiers of the request evidence in order.
func (r AnalysisRequest) EvidenceIDs() []string {
	ids := make([]string, 0, len(r.Evidence))
	for _, e := range r.Evidence {
		ids = append(ids, e.ChunkID)
	}
	return ids
}

// Gap is a single non-conformity between the document and a requirement.
type Gap struct {
	ID             string            `json:"id"`
	Description    string            `json:"descricao"`
	Severity       Severity          `json:"severidade"`
	Category       string            `json:"categoria"`
	Recommendation string            `json:"recomendacao"`
	Deadline       string            `json:"prazo"`
	RelatedNorms   []string          `json:"normasRelacionadas"`
	Evidences      []EvidenceSnippet `json:"evidencias"`
}

// AnalysisResult is the scored verdict for one request.
type AnalysisResult struct {
	Score           int       `json:"score"`
	RiskLevel       RiskLevel `json:"nivelRisco"`
	Gaps            []Gap     `json:"gaps"`
	Summary         string    `json:"resumo"`
	Strengths       []string  `json:"pontosPositivos"`
	AttentionPoints []string  `json:"pontosAtencao"`
	NextSteps       []string  `json:"proximosPassos"`
}
