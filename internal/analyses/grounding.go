package analyses

import "conformity-backend/internal/conformity"

// EnforceGrounding keeps only evidence entries whose chunkId appears verbatim
// in the request evidence, replacing each with the canonical snippet. Gaps
// left without evidence are dropped. The input slice is not modified.
func EnforceGrounding(gaps []conformity.Gap, evidence []conformity.EvidenceSnippet) []conformity.Gap {
	index := make(map[string]conformity.EvidenceSnippet, len(evidence))
	for _, e := range evidence {
		if _, dup := index[e.ChunkID]; !dup {
			index[e.ChunkID] = e
		}
	}

	out := make([]conformity.Gap, 0, len(gaps))
	for _, gap := range gaps {
		seen := make(map[string]struct{}, len(gap.Evidences))
		kept := make([]conformity.EvidenceSnippet, 0, len(gap.Evidences))
		for _, ev := range gap.Evidences {
			canonical, ok := index[ev.ChunkID]
			if !ok {
				continue
			}
			if _, dup := seen[ev.ChunkID]; dup {
				continue
			}
			seen[ev.ChunkID] = struct{}{}
			kept = append(kept, canonical)
		}
		if len(kept) == 0 {
			continue
		}
		g := gap
		g.Evidences = kept
		g.RelatedNorms = append([]string(nil), gap.RelatedNorms...)
		out = append(out, g)
	}
	return out
}
