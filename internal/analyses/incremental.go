package analyses

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"conformity-backend/internal/conformity"
	"conformity-backend/internal/shared/telemetry"
)

const (
	chunkProgressStart = 30
	chunkProgressSpan  = 55
	consolidateAt      = 90
)

// incremental analyses a long document chunk by chunk. Any failed chunk fails
// the whole analysis.
func (a *Analyzer) incremental(ctx context.Context, req conformity.AnalysisRequest, progress ProgressFunc) ([]passOutcome, error) {
	chunks := SplitChunks(req.Document, a.chunkRunes())
	if len(chunks) > MaxChunks {
		return nil, fmt.Errorf("%w: %d chunks, limit %d", ErrTooManyChunks, len(chunks), MaxChunks)
	}
	telemetry.Info("analysis.incremental", map[string]any{
		"request_id": requestIDFromContext(ctx),
		"chunks":     len(chunks),
	})

	outcomes := make([]passOutcome, len(chunks))
	var done atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency())
	for i, chunk := range chunks {
		g.Go(func() error {
			sub := req
			sub.Document = chunk
			o, err := a.singlePass(gctx, sub)
			if err != nil {
				return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
			}
			outcomes[i] = o
			n := int(done.Add(1))
			if progress != nil {
				progress(ctx, StageAnalyzing, chunkProgressStart+chunkProgressSpan*n/len(chunks))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if progress != nil {
		progress(ctx, StageConsolidating, consolidateAt)
	}
	return outcomes, nil
}

// SplitChunks cuts text on line boundaries into pieces of at most size runes.
// A single line longer than size is cut mid-line.
func SplitChunks(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkRunes
	}

	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf8.RuneCountInString(line)
		if curLen+n > size {
			flush()
		}
		for n > size {
			head := cutRunes(line, size)
			chunks = append(chunks, head)
			line = line[len(head):]
			n -= size
		}
		cur.WriteString(line)
		curLen += n
	}
	flush()
	return chunks
}

func cutRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func (a *Analyzer) chunkRunes() int {
	if a.ChunkRunes > 0 {
		return a.ChunkRunes
	}
	return DefaultChunkRunes
}

func (a *Analyzer) concurrency() int {
	if a.Concurrency > 0 {
		return a.Concurrency
	}
	return defaultConcurrency
}
