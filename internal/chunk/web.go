package chunk

import (
	"strings"

	"lodestar/internal/config"
	"lodestar/internal/core"
	"lodestar/internal/cost"
)

// Web splits a structured document into chunks that respect heading
// and code-block boundaries, merging small adjacent sections and
// splitting oversized ones at sentence breaks (web hybrid).
// Character offsets are computed against the document's linearized
// text.
func Web(doc core.StructuredDocument, cfg config.WebChunker) []core.Chunk {
	if len(doc.Sections) == 0 {
		return nil
	}

	type unit struct {
		text string
		isBoundary bool // heading or code block: always starts a new chunk
	}

	units := make([]unit, 0, len(doc.Sections))
	for _, s := range doc.Sections {
		isBoundary := s.Kind == core.SectionHeading || s.Kind == core.SectionCode
		units = append(units, unit{text: s.Text, isBoundary: isBoundary})
	}

	var chunks []core.Chunk
	var buf strings.Builder
	ordinal := 0
	charOffset := 0

	flush := func() {
		text := strings.TrimSpace(buf.String())
		if text == "" {
			return
		}
		chunks = append(chunks, core.Chunk{
			Ordinal: ordinal,
			Text: text,
			StartChar: charOffset,
			EndChar: charOffset + len(text),
		})
		ordinal++
		charOffset += len(text) + 2 // account for the "\n\n" separators re-inserted by the fetcher
		buf.Reset()
	}

	for _, u := range units {
		if u.isBoundary && buf.Len() > 0 {
			flush()
		}

		if cost.EstimateTokenCount(u.text) > cfg.HardCapTokens {
			// oversized unit: split at sentence breaks before appending
			flush()
			for _, part := range splitOversized(u.text, cfg.HardCapTokens) {
				buf.WriteString(part)
				buf.WriteString(" ")
				if cost.EstimateTokenCount(buf.String()) >= cfg.TargetTokens {
					flush()
				}
			}
			continue
		}

		buf.WriteString(u.text)
		buf.WriteString(" ")

		if cost.EstimateTokenCount(buf.String()) >= cfg.TargetTokens {
			flush()
		}
	}
	flush()

	return chunks
}

// splitOversized breaks an oversized paragraph into sentence-bounded
// pieces, as a last resort when a single logical unit exceeds the hard
// cap on its own. Pieces stay under maxTokens only where ". " breaks
// allow it: a single sentence longer than maxTokens (e.g. a giant code
// block with no ". ") is returned as one piece, over the cap.
func splitOversized(text string, maxTokens int) []string {
	sentences := strings.Split(text, ". ")
	var parts []string
	var cur strings.Builder

	for _, s := range sentences {
		if cost.EstimateTokenCount(cur.String()+s) > maxTokens && cur.Len() > 0 {
			parts = append(parts, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
		cur.WriteString(s)
		cur.WriteString(". ")
	}
	if cur.Len() > 0 {
		parts = append(parts, strings.TrimSpace(cur.String()))
	}
	return parts
}
