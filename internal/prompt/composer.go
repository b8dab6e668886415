// Package prompt builds the system and user prompts for a conformity
// analysis from a request and a specialist profile.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"conformity-backend/internal/conformity"
	"conformity-backend/internal/llm"
)

// Composer builds prompts from requests. The zero value uses the embedded
// profile catalogue.
type Composer struct {
	Catalogue *Catalogue
}

// Composed is the output of Compose.
type Composed struct {
	Prompt  llm.Prompt
	Profile Profile
}

// NewComposer returns a composer bound to the embedded catalogue.
func NewComposer() *Composer {
	c := DefaultCatalogue()
	return &Composer{Catalogue: &c}
}

// Compose selects a profile and renders both prompts. The request document is
// expected to be sanitized already.
func (c *Composer) Compose(req conformity.AnalysisRequest) (Composed, error) {
	catalogue := c.catalogue()
	profile := catalogue.Select(req.DocumentType, req.Document, req.ApplicableNorms)

	evidenceJSON, err := marshalEvidence(req.Evidence)
	if err != nil {
		return Composed{}, err
	}

	return Composed{
		Prompt: llm.Prompt{
			System: SystemPrompt(profile),
			User:   userPrompt(req, evidenceJSON),
		},
		Profile: profile,
	}, nil
}

func (c *Composer) catalogue() Catalogue {
	if c == nil || c.Catalogue == nil {
		return DefaultCatalogue()
	}
	return *c.Catalogue
}

// SystemPrompt renders the profile identity and its numbered rules.
func SystemPrompt(p Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Você é %s. Foco: %s\n", p.Name, p.Focus)
	b.WriteString("Sua missão é gerar um RELATÓRIO TÉCNICO DE CONFORMIDADE objetivo e auditável.\n")
	b.WriteString("Regras obrigatórias:\n")
	for i, rule := range p.Rules {
		fmt.Fprintf(&b, "%d. %s\n", i+1, rule)
	}
	b.WriteString("Responda estritamente via JSON.")
	return b.String()
}

// NumberLines prefixes every line with an [L<n>] marker, starting at 1.
func NumberLines(text string) string {
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	var b strings.Builder
	b.Grow(len(text) + len(lines)*8)
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[L%d] %s", i+1, line)
	}
	return b.String()
}

func marshalEvidence(evidence []conformity.EvidenceSnippet) (string, error) {
	if evidence == nil {
		evidence = []conformity.EvidenceSnippet{}
	}
	data, err := json.MarshalIndent(evidence, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal evidence: %w", err)
	}
	return string(data), nil
}

func userPrompt(req conformity.AnalysisRequest, evidenceJSON string) string {
	norms := "não informadas"
	if len(req.ApplicableNorms) > 0 {
		norms = strings.Join(req.ApplicableNorms, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "ANÁLISE ESPECÍFICA: %s\n", req.DocumentType)
	fmt.Fprintf(&b, "NORMAS APLICÁVEIS: %s\n\n", norms)
	b.WriteString("DOCUMENTO PARA ANÁLISE (cada linha marcada com [L<n>]):\n")
	b.WriteString(NumberLines(req.Document))
	b.WriteString("\n\nEVIDÊNCIAS NORMATIVAS (JSON):\n")
	b.WriteString(evidenceJSON)
	b.WriteString("\n\n")
	b.WriteString(contractBlock)
	b.WriteString("\n\n")
	b.WriteString(responseShape)
	return b.String()
}

const contractBlock = `REGRAS DO CONTRATO (obrigatórias):
1. Só reporte um gap se ele citar em "evidencias" ao menos um "chunkId" presente literalmente no JSON de evidências acima. Nunca invente chunkId.
2. Se a lista de evidências estiver vazia, retorne "gaps": [] e "score": 100.
3. Calcule o score como 100 menos a soma das deduções por gap: critica 20, alta 15, media 10, baixa 5 (mínimo 0). Não invente outro critério.
4. Cite as linhas do documento pelos marcadores [L<n>] na descrição do gap.`

const responseShape = `FORMATO DE RESPOSTA (apenas JSON):
{
  "score": 0-100,
  "nivelRisco": "baixo|medio|alto|critico",
  "gaps": [
    {
      "id": "gap_001",
      "descricao": "Descrição do gap com referência às linhas [L<n>]",
      "severidade": "baixa|media|alta|critica",
      "categoria": "EPI|Treinamento|Documentacao|Procedimento",
      "recomendacao": "Recomendação específica e acionável",
      "prazo": "Prazo sugerido",
      "normasRelacionadas": ["NR-6"],
      "evidencias": [{"chunkId": "id exato da evidência"}]
    }
  ],
  "resumo": "Resumo executivo",
  "pontosPositivos": [],
  "pontosAtencao": [],
  "proximosPassos": []
}`
