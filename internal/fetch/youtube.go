package fetch

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"lodestar/internal/core"
)

var youtubeIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/)([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtube\.com/watch\?.*v=([a-zA-Z0-9_-]{11})`),
}

// ExtractYouTubeVideoID parses the 11-character video ID out of any of
// the common YouTube URL shapes.
func ExtractYouTubeVideoID(videoURL string) (string, error) {
	for _, re := range youtubeIDPatterns {
		if m := re.FindStringSubmatch(videoURL); len(m) > 1 {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("%w: could not extract video id from %s", ErrNotFound, videoURL)
}

// FetchYouTube retrieves the transcript and video metadata for a
// YouTube URL.
func (c *Client) FetchYouTube(ctx context.Context, videoURL string) ([]core.TranscriptSegment, core.VideoInfo, error) {
	videoID, err := ExtractYouTubeVideoID(videoURL)
	if err != nil {
		return nil, core.VideoInfo{}, err
	}

	info, err := c.fetchVideoInfo(ctx, videoID)
	if err != nil {
		return nil, core.VideoInfo{}, fmt.Errorf("fetch video info: %w", err)
	}

	captionURL, err := c.findCaptionTrackURL(ctx, videoID)
	if err != nil {
		return nil, core.VideoInfo{}, err
	}

	segments, err := c.fetchCaptionTrack(ctx, captionURL)
	if err != nil {
		return nil, core.VideoInfo{}, err
	}
	if len(segments) == 0 {
		return nil, core.VideoInfo{}, ErrTranscriptUnavailable
	}

	return segments, info, nil
}

// fetchVideoInfo uses YouTube's oEmbed endpoint, which requires no API
// key, for title/channel metadata.
func (c *Client) fetchVideoInfo(ctx context.Context, videoID string) (core.VideoInfo, error) {
	oembedURL := fmt.Sprintf("https://www.youtube.com/oembed?url=https://www.youtube.com/watch?v=%s&format=json", videoID)
	req, err := http.NewRequest(http.MethodGet, oembedURL, nil)
	if err != nil {
		return core.VideoInfo{}, fmt.Errorf("build oembed request: %w", err)
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return core.VideoInfo{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.VideoInfo{}, fmt.Errorf("%w: read oembed body: %v", ErrNetworkError, err)
	}

	var oembed struct {
		Title string `json:"title"`
		AuthorName string `json:"author_name"`
	}
	if err := json.Unmarshal(body, &oembed); err != nil {
		return core.VideoInfo{}, fmt.Errorf("parse oembed response: %w", err)
	}

	return core.VideoInfo{Title: oembed.Title, Channel: oembed.AuthorName}, nil
}

// findCaptionTrackURL fetches the watch page and pulls a caption track
// URL (English preferred, else the first track) out of the embedded
// player response JSON.
func (c *Client) findCaptionTrackURL(ctx context.Context, videoID string) (string, error) {
	watchURL := fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
	req, err := http.NewRequest(http.MethodGet, watchURL, nil)
	if err != nil {
		return "", fmt.Errorf("build watch page request: %w", err)
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read watch page: %v", ErrNetworkError, err)
	}

	trackURL, ok := extractCaptionTrackURL(string(body))
	if !ok {
		return "", ErrTranscriptUnavailable
	}
	return trackURL, nil
}

var captionTracksRegex = regexp.MustCompile(`"captionTracks":(\[.*?\])`)

// extractCaptionTrackURL locates the "captionTracks" array embedded in
// the watch page's ytInitialPlayerResponse and returns the first
// track's base URL (preferring an English track when present).
func extractCaptionTrackURL(watchPageHTML string) (string, bool) {
	m := captionTracksRegex.FindStringSubmatch(watchPageHTML)
	if len(m) < 2 {
		return "", false
	}

	var tracks []struct {
		BaseURL string `json:"baseUrl"`
		LanguageCode string `json:"languageCode"`
	}
	if err := json.Unmarshal([]byte(m[1]), &tracks); err != nil || len(tracks) == 0 {
		return "", false
	}

	for _, t := range tracks {
		if strings.HasPrefix(t.LanguageCode, "en") {
			return html.UnescapeString(t.BaseURL), true
		}
	}
	return html.UnescapeString(tracks[0].BaseURL), true
}

type timedTextDoc struct {
	XMLName xml.Name `xml:"transcript"`
	Texts []struct {
		Start string `xml:"start,attr"`
		Duration string `xml:"dur,attr"`
		Text string `xml:",chardata"`
	} `xml:"text"`
}

// fetchCaptionTrack downloads and parses the timedtext XML caption
// track into flat segments.
func (c *Client) fetchCaptionTrack(ctx context.Context, trackURL string) ([]core.TranscriptSegment, error) {
	req, err := http.NewRequest(http.MethodGet, trackURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build caption request: %w", err)
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read caption track: %v", ErrNetworkError, err)
	}

	var doc timedTextDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse caption xml: %w", err)
	}

	segments := make([]core.TranscriptSegment, 0, len(doc.Texts))
	for _, t := range doc.Texts {
		start, _ := strconv.ParseFloat(t.Start, 64)
		duration, _ := strconv.ParseFloat(t.Duration, 64)
		segments = append(segments, core.TranscriptSegment{
			Start: start,
			Duration: duration,
			Text: html.UnescapeString(strings.TrimSpace(t.Text)),
		})
	}
	return segments, nil
}

// DetectYouTubeURL reports whether urlStr refers to a YouTube video,
// used by ingestion to pick fetch_youtube over fetch_web.
func DetectYouTubeURL(urlStr string) bool {
	patterns := []string{
		`youtube\.com/watch\?.*v=`,
		`youtu\.be/`,
		`youtube\.com/embed/`,
		`m\.youtube\.com/watch\?.*v=`,
	}
	for _, p := range patterns {
		if matched, _ := regexp.MatchString(p, urlStr); matched {
			return true
		}
	}
	return false
}
