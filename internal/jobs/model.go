// Package jobs tracks asynchronous analysis jobs through a forward-only state
// machine.
package jobs

import (
	"encoding/json"
	"errors"
	"time"
)

// Status is a job lifecycle state.
type Status string

const (
	StatusPending       Status = "pending"
	StatusExtracting    Status = "extracting"
	StatusAnalyzing     Status = "analyzing"
	StatusConsolidating Status = "consolidating"
	StatusCompleted     Status = "completed"
	StatusError         Status = "error"
)

var (
	ErrNotFound          = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job transition")
)

// Job is a snapshot of one analysis job.
type Job struct {
	ID          string          `json:"id"`
	Status      Status          `json:"status"`
	Progress    int             `json:"progresso"`
	ErrorClass  string          `json:"-"`
	ErrorDetail string          `json:"erroDetalhes,omitempty"`
	ResultID    string          `json:"resultadoId,omitempty"`
	Payload     json.RawMessage `json:"-"`
	CreatedAt   time.Time       `json:"createdAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	UpdatedAt   time.Time       `json:"-"`
}

// Terminal reports whether no further transitions are accepted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// rank orders the forward path. error has no rank; it is reachable from any
// non-terminal state.
func (s Status) rank() (int, bool) {
	switch s {
	case StatusPending:
		return 0, true
	case StatusExtracting:
		return 1, true
	case StatusAnalyzing:
		return 2, true
	case StatusConsolidating:
		return 3, true
	case StatusCompleted:
		return 4, true
	default:
		return 0, false
	}
}

// ParseStatus validates a stored status string.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if st == StatusError {
		return st, nil
	}
	if _, ok := st.rank(); !ok {
		return "", ErrInvalidTransition
	}
	return st, nil
}

// ErrorDetail returns the user-facing Portuguese message for a failure class.
// It never includes provider text.
func ErrorDetail(class string) string {
	if msg, ok := errorDetails[class]; ok {
		return msg
	}
	return errorDetails["unknown"]
}

var errorDetails = map[string]string{
	"rate_limit":         "Limite de requisições do provedor de IA excedido. Tente novamente em alguns minutos.",
	"timeout":            "O provedor de IA não respondeu dentro do tempo limite.",
	"network":            "Falha de comunicação com o provedor de IA.",
	"provider_5xx":       "O provedor de IA está temporariamente indisponível.",
	"auth":               "Falha de autenticação com o provedor de IA.",
	"provider_4xx":       "A requisição foi rejeitada pelo provedor de IA.",
	"invalid_json":       "A resposta da IA não pôde ser interpretada.",
	"schema_validation":  "A resposta da IA não segue o formato esperado.",
	"forced_fallback":    "Provedor secundário indisponível durante o fallback forçado.",
	"document_too_large": "O documento excede o limite de processamento incremental.",
	"storage":            "Falha ao salvar o resultado da análise.",
	"unknown":            "Erro inesperado durante a análise.",
}
