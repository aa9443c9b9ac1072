package fetch

import (
	"context"

	"lodestar/internal/core"
)

// FetchedContent is the uniform output of fetching one content item.
// Exactly one of Segments/Document is populated, matching Kind.
type FetchedContent struct {
	Kind     core.ContentKind
	Segments []core.TranscriptSegment // populated for KindYouTubeVideo
	Video    core.VideoInfo           // populated for KindYouTubeVideo
	Document core.StructuredDocument  // populated for KindWebArticle
}

// Fetch dispatches to FetchYouTube or FetchWeb based on the URL shape,
// returning whichever payload the Chunker needs for that content kind.
func (c *Client) Fetch(ctx context.Context, externalURL string) (FetchedContent, error) {
	if DetectYouTubeURL(externalURL) {
		segments, info, err := c.FetchYouTube(ctx, externalURL)
		if err != nil {
			return FetchedContent{}, err
		}
		return FetchedContent{Kind: core.KindYouTubeVideo, Segments: segments, Video: info}, nil
	}

	doc, err := c.FetchWeb(ctx, externalURL)
	if err != nil {
		return FetchedContent{}, err
	}
	return FetchedContent{Kind: core.KindWebArticle, Document: doc}, nil
}
