// Package chunk implements the two chunking strategies selected by
// content kind: a time+token hybrid for YouTube transcripts, and a
// structure-aware hybrid for web articles.
package chunk

import (
	"strings"

	"lodestar/internal/config"
	"lodestar/internal/core"
	"lodestar/internal/cost"
)

// Transcript splits a flat sequence of transcript segments into chunks,
// flushing the accumulation buffer when its token budget exceeds the
// target band or the pause between consecutive segments exceeds the
// configured threshold.
func Transcript(segments []core.TranscriptSegment, cfg config.TranscriptChunker) []core.Chunk {
	if len(segments) == 0 {
		return nil
	}

	var chunks []core.Chunk
	var buf []core.TranscriptSegment
	charOffset := 0
	ordinal := 0

	flush := func() {
		if len(buf) == 0 {
			return
		}
		text := joinSegments(buf)
		start := buf[0].Start
		end := buf[len(buf)-1].Start + buf[len(buf)-1].Duration

		chunks = append(chunks, core.Chunk{
			Ordinal: ordinal,
			Text: text,
			StartChar: charOffset,
			EndChar: charOffset + len(text),
			StartTime: &start,
			EndTime: &end,
		})
		ordinal++

		// overlap: carry the last N segments into the next buffer.
		// Only the non-overlapping prefix was newly consumed from the
		// transcript, so charOffset advances by its length plus the one
		// space joining it to the next segment, keeping start_char/end_char
		// aligned with the space-joined transcript.
		overlap := cfg.OverlapSegments
		if overlap > len(buf) {
			overlap = len(buf)
		}
		if overlap == 0 {
			charOffset += len(text) + 1 // +1 for the joining space after the chunk
			buf = nil
		} else if overlap < len(buf) {
			overlapText := joinSegments(buf[len(buf)-overlap:])
			charOffset += len(text) - len(overlapText) // prefix plus its joining space
			buf = append([]core.TranscriptSegment{}, buf[len(buf)-overlap:]...)
		} else {
			// entire buffer carries over; nothing new was consumed
			buf = append([]core.TranscriptSegment{}, buf[len(buf)-overlap:]...)
		}
	}

	for i, seg := range segments {
		buf = append(buf, seg)

		tokens := cost.EstimateTokenCount(joinSegments(buf))
		pauseExceeded := false
		if i+1 < len(segments) {
			gap := segments[i+1].Start - (seg.Start + seg.Duration)
			pauseExceeded = gap > float64(cfg.PauseSeconds)
		}

		if tokens >= cfg.TargetTokens || pauseExceeded || tokens >= cfg.HardCapTokens {
			flush()
		}
	}
	flush()

	return chunks
}

func joinSegments(segments []core.TranscriptSegment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		parts = append(parts, strings.TrimSpace(s.Text))
	}
	return strings.Join(parts, " ")
}
