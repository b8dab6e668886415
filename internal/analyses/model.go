package analyses

import (
	"time"

	"conformity-backend/internal/conformity"
)

// ReviewStatus is the human sign-off state of a result.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pre_laudo_pendente"
	ReviewApproved ReviewStatus = "laudo_aprovado"
	ReviewRejected ReviewStatus = "laudo_rejeitado"
)

// Strategy names how a document was analysed.
const (
	StrategySinglePass  = "single_pass"
	StrategyIncremental = "incremental"
)

// Metadata describes how a result was produced.
type Metadata struct {
	ProviderUsed         string `json:"providerUsed"`
	FallbackTriggered    bool   `json:"fallbackTriggered"`
	FallbackFrom         string `json:"fallbackFrom,omitempty"`
	FallbackClass        string `json:"fallbackClass,omitempty"`
	ModelRiskLevel       string `json:"modelRiskLevel,omitempty"`
	Profile              string `json:"perfil"`
	Strategy             string `json:"estrategia"`
	Chunks               int    `json:"chunks,omitempty"`
	Attempts             int    `json:"tentativas"`
	ProcessingMs         int64  `json:"processingMs"`
	KnowledgeBaseVersion string `json:"versaoBase,omitempty"`
	InputFingerprint     string `json:"inputFingerprint"`
	ResultHash           string `json:"resultHash"`
}

// Review is one human decision on a result.
type Review struct {
	Decision      string    `json:"decisao"`
	Reviewer      string    `json:"revisor"`
	Justification string    `json:"justificativa"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Result is the persisted record of a completed analysis.
type Result struct {
	ID    string `json:"id"`
	JobID string `json:"jobId"`
	conformity.AnalysisResult
	Metadata     Metadata     `json:"metadados"`
	Confidence   Confidence   `json:"confianca"`
	ReviewStatus ReviewStatus `json:"statusRevisao"`
	Reviews      []Review     `json:"revisoes"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// Analysis is the in-memory output of the Analyzer before persistence.
type Analysis struct {
	Result     conformity.AnalysisResult
	Metadata   Metadata
	Confidence Confidence
	RawOutputs []string
}
