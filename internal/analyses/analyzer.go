package analyses

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"conformity-backend/internal/conformity"
	"conformity-backend/internal/llm"
	"conformity-backend/internal/prompt"
	"conformity-backend/internal/sanitize"
	"conformity-backend/internal/shared/telemetry"
)

const (
	DefaultIncrementalAt = 60_000
	DefaultChunkRunes    = 12_000
	MaxChunks            = 40

	defaultConcurrency = 3
	maxTypeRunes       = 200
	maxNormRunes       = 64
)

var tracer = otel.Tracer("conformity-backend/internal/analyses")

// Stage is a pipeline phase reported through a ProgressFunc. Values match the
// job statuses they drive.
type Stage string

const (
	StageAnalyzing     Stage = "analyzing"
	StageConsolidating Stage = "consolidating"
)

// ProgressFunc receives stage and progress updates. It may be called from
// several goroutines.
type ProgressFunc func(ctx context.Context, stage Stage, progress int)

// Completer is the provider orchestrator as seen by the analyzer.
type Completer interface {
	Complete(ctx context.Context, p llm.Prompt) (llm.Completion, error)
}

// Analyzer turns a request into a grounded, scored verdict.
type Analyzer struct {
	Composer      *prompt.Composer
	LLM           Completer
	MaxLength     int
	IncrementalAt int
	ChunkRunes    int
	Concurrency   int
	Now           func() time.Time
}

type passOutcome struct {
	parsed     Parsed
	completion llm.Completion
	profile    string
}

// Analyze runs sanitize, compose, orchestrate, parse, ground and score.
func (a *Analyzer) Analyze(ctx context.Context, req conformity.AnalysisRequest) (Analysis, error) {
	return a.AnalyzeWithProgress(ctx, req, nil)
}

// AnalyzeWithProgress is Analyze with stage callbacks. Long documents switch
// to the incremental strategy.
func (a *Analyzer) AnalyzeWithProgress(ctx context.Context, req conformity.AnalysisRequest, progress ProgressFunc) (Analysis, error) {
	if a == nil || a.LLM == nil {
		return Analysis{}, ErrMissingPipeline
	}
	ctx, span := tracer.Start(ctx, "analyses.Analyze", trace.WithAttributes(
		attribute.String("document.type", req.DocumentType),
		attribute.Int("evidence.count", len(req.Evidence)),
	))
	defer span.End()

	started := a.now()
	clean := a.sanitizeRequest(req)

	strategy := StrategySinglePass
	var (
		outcomes []passOutcome
		err      error
	)
	if utf8.RuneCountInString(clean.Document) > a.incrementalAt() {
		strategy = StrategyIncremental
		outcomes, err = a.incremental(ctx, clean, progress)
	} else {
		var o passOutcome
		o, err = a.singlePass(ctx, clean)
		outcomes = []passOutcome{o}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(llm.Classify(err)))
		return Analysis{}, err
	}
	span.SetAttributes(attribute.String("analysis.strategy", strategy))

	merged := mergeOutcomes(outcomes, strategy == StrategyIncremental)
	grounded := EnforceGrounding(merged.result.Gaps, clean.Evidence)
	score, risk := Score(grounded)

	if merged.modelRisk != "" {
		if modelRisk, _ := conformity.ParseRiskLevel(merged.modelRisk); modelRisk != risk {
			telemetry.Info("analysis.model_risk_discarded", map[string]any{
				"request_id":       requestIDFromContext(ctx),
				"model_risk_level": merged.modelRisk,
				"risk_level":       string(risk),
				"score":            score,
			})
		}
	}

	result := merged.result
	result.Gaps = grounded
	result.Score = score
	result.RiskLevel = risk

	resultHash, err := ResultHash(result)
	if err != nil {
		return Analysis{}, fmt.Errorf("hash result: %w", err)
	}

	meta := merged.meta
	meta.Strategy = strategy
	meta.ModelRiskLevel = merged.modelRisk
	meta.KnowledgeBaseVersion = req.KnowledgeBaseVersion
	meta.InputFingerprint = InputFingerprint(clean)
	meta.ResultHash = resultHash
	meta.ProcessingMs = a.now().Sub(started).Milliseconds()
	if strategy == StrategyIncremental {
		meta.Chunks = len(outcomes)
	}

	confidence := ComputeConfidence(ConfidenceInput{
		ParseOK:           true,
		ApplicableNorms:   clean.ApplicableNorms,
		Evidence:          clean.Evidence,
		ModelGaps:         len(merged.result.Gaps),
		GroundedGaps:      len(grounded),
		FallbackTriggered: meta.FallbackTriggered,
	})

	raws := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		raws = append(raws, o.completion.Text)
	}

	span.SetAttributes(
		attribute.Int("analysis.score", score),
		attribute.Int("analysis.gaps", len(grounded)),
		attribute.String("llm.provider_used", meta.ProviderUsed),
	)
	return Analysis{Result: result, Metadata: meta, Confidence: confidence, RawOutputs: raws}, nil
}

func (a *Analyzer) singlePass(ctx context.Context, req conformity.AnalysisRequest) (passOutcome, error) {
	composed, err := a.composer().Compose(req)
	if err != nil {
		return passOutcome{}, err
	}
	completion, err := a.LLM.Complete(ctx, composed.Prompt)
	if err != nil {
		return passOutcome{}, err
	}
	parsed, err := ParseDetailed(completion.Text)
	if err != nil {
		return passOutcome{}, err
	}
	return passOutcome{parsed: parsed, completion: completion, profile: composed.Profile.ID}, nil
}

// sanitizeRequest cleans every free-text field that reaches the prompt.
func (a *Analyzer) sanitizeRequest(req conformity.AnalysisRequest) conformity.AnalysisRequest {
	out := req
	out.Document = sanitize.Sanitize(req.Document, a.MaxLength)
	out.DocumentType = sanitize.Sanitize(req.DocumentType, maxTypeRunes)
	norms := make([]string, 0, len(req.ApplicableNorms))
	for _, n := range req.ApplicableNorms {
		if s := sanitize.Sanitize(n, maxNormRunes); s != "" {
			norms = append(norms, s)
		}
	}
	out.ApplicableNorms = norms
	return out
}

func (a *Analyzer) composer() *prompt.Composer {
	if a.Composer != nil {
		return a.Composer
	}
	return &prompt.Composer{}
}

func (a *Analyzer) incrementalAt() int {
	if a.IncrementalAt > 0 {
		return a.IncrementalAt
	}
	return DefaultIncrementalAt
}

func (a *Analyzer) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

type mergedOutcome struct {
	result    conformity.AnalysisResult
	meta      Metadata
	modelRisk string
}

// mergeOutcomes folds per-chunk results into one. Gaps repeated across chunks
// are merged and renumbered only when incremental is set; a single pass keeps
// every gap the parser produced.
func mergeOutcomes(outcomes []passOutcome, incremental bool) mergedOutcome {
	var m mergedOutcome
	providers := make([]string, 0, 2)
	seenProvider := map[string]struct{}{}
	var summaries []string

	gapIndex := map[string]int{}
	for _, o := range outcomes {
		c := o.completion
		if _, ok := seenProvider[c.ProviderUsed]; !ok && c.ProviderUsed != "" {
			seenProvider[c.ProviderUsed] = struct{}{}
			providers = append(providers, c.ProviderUsed)
		}
		if c.FallbackTriggered {
			m.meta.FallbackTriggered = true
			if m.meta.FallbackFrom == "" {
				m.meta.FallbackFrom = c.FallbackFrom
				m.meta.FallbackClass = string(c.FallbackClass)
			}
		}
		m.meta.Attempts += len(c.Attempts)
		if m.meta.Profile == "" {
			m.meta.Profile = o.profile
		}
		if m.modelRisk == "" {
			m.modelRisk = o.parsed.ModelRiskLevel
		}

		r := o.parsed.Result
		for _, gap := range r.Gaps {
			if !incremental {
				m.result.Gaps = append(m.result.Gaps, gap)
				continue
			}
			key := gapKey(gap)
			if idx, dup := gapIndex[key]; dup {
				existing := &m.result.Gaps[idx]
				existing.Evidences = appendEvidence(existing.Evidences, gap.Evidences)
				existing.RelatedNorms = unionStrings(existing.RelatedNorms, gap.RelatedNorms)
				continue
			}
			gapIndex[key] = len(m.result.Gaps)
			m.result.Gaps = append(m.result.Gaps, gap)
		}
		if r.Summary != "" {
			summaries = unionStrings(summaries, []string{r.Summary})
		}
		m.result.Strengths = unionStrings(m.result.Strengths, r.Strengths)
		m.result.AttentionPoints = unionStrings(m.result.AttentionPoints, r.AttentionPoints)
		m.result.NextSteps = unionStrings(m.result.NextSteps, r.NextSteps)
	}

	if incremental {
		for i := range m.result.Gaps {
			m.result.Gaps[i].ID = fmt.Sprintf("gap_%03d", i+1)
		}
	}
	if m.result.Gaps == nil {
		m.result.Gaps = []conformity.Gap{}
	}
	m.result.Summary = strings.Join(summaries, " ")
	m.meta.ProviderUsed = strings.Join(providers, ",")
	return m
}

func gapKey(g conformity.Gap) string {
	return strings.Join(strings.Fields(strings.ToLower(g.Description)), " ") + "|" + string(g.Severity)
}

func appendEvidence(dst, src []conformity.EvidenceSnippet) []conformity.EvidenceSnippet {
	seen := make(map[string]struct{}, len(dst))
	for _, e := range dst {
		seen[e.ChunkID] = struct{}{}
	}
	for _, e := range src {
		if _, ok := seen[e.ChunkID]; ok {
			continue
		}
		seen[e.ChunkID] = struct{}{}
		dst = append(dst, e)
	}
	return dst
}

func unionStrings(dst, src []string) []string {
	if dst == nil {
		dst = []string{}
	}
	seen := make(map[string]struct{}, len(dst))
	for _, s := range dst {
		seen[s] = struct{}{}
	}
	for _, s := range src {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		dst = append(dst, s)
	}
	return dst
}
