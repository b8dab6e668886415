package analyses

import (
	"context"
	"sync"

	"conformity-backend/internal/conformity"
	"conformity-backend/internal/llm"
)

// fakeCompleter answers prompts with a scripted function and records them.
type fakeCompleter struct {
	mu      sync.Mutex
	prompts []llm.Prompt
	respond func(p llm.Prompt) (llm.Completion, error)
}

func (f *fakeCompleter) Complete(ctx context.Context, p llm.Prompt) (llm.Completion, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, p)
	f.mu.Unlock()
	return f.respond(p)
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func staticCompleter(text string) *fakeCompleter {
	return &fakeCompleter{respond: func(llm.Prompt) (llm.Completion, error) {
		return llm.Completion{
			Text:         text,
			ProviderUsed: "primary",
			Attempts:     []llm.Attempt{{Provider: "primary", Number: 1}},
		}, nil
	}}
}

func failingCompleter(err error) *fakeCompleter {
	return &fakeCompleter{respond: func(llm.Prompt) (llm.Completion, error) {
		return llm.Completion{}, err
	}}
}

func sampleRequest() conformity.AnalysisRequest {
	return conformity.AnalysisRequest{
		Document:        "Programa de EPI\nOs trabalhadores recebem luvas sem registro de entrega.",
		DocumentType:    "PGR",
		ApplicableNorms: []string{"NR-6"},
		Evidence: []conformity.EvidenceSnippet{
			{ChunkID: "e1", NormCode: "NR-6", Section: "6.6.1", Content: "Cabe ao empregador registrar o fornecimento de EPI.", Score: 0.92, Source: "local"},
		},
		KnowledgeBaseVersion: "kb-2026-01",
	}
}

const oneHighGapCitingE1 = `Segue a análise:
{
  "score": 40,
  "nivelRisco": "critico",
  "gaps": [
    {
      "descricao": "Entrega de EPI sem registro [L2]",
      "severidade": "alta",
      "categoria": "EPI",
      "recomendacao": "Implantar ficha de entrega",
      "normasRelacionadas": ["NR-6"],
      "evidencias": [{"chunkId": "e1", "content": "texto inventado"}]
    }
  ],
  "resumo": "Documento parcialmente conforme",
  "pontosPositivos": ["Programa existe"],
  "pontosAtencao": [],
  "proximosPassos": ["Registrar entregas"]
}`

const fabricatedGap = `{"score": 70, "gaps": [{"descricao": "Falta treinamento", "severidade": "critica", "evidencias": [{"chunkId": "e99"}]}]}`
