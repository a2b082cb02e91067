// Package extractor turns a course page into structured content. The
// parse step is a pure function of the page HTML: running it twice on
// the same page yields identical results.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/tutorlink/backend/internal/browser"
	"github.com/tutorlink/backend/internal/logging"
	"github.com/tutorlink/backend/internal/models"
)

const (
	// MaxSections caps the number of headings kept per page.
	MaxSections = 20
	// MaxTextChars caps the raw text length in characters.
	MaxTextChars = 10000
	// MaxLinks caps the video and file link lists, each.
	MaxLinks = 50
)

// ErrExtraction is returned when the page cannot be turned into
// structured content.
var ErrExtraction = errors.New("content extraction failed")

// contentSelectors is the fallback chain for locating the content root.
// The first selector with a match wins; body is the last resort.
var contentSelectors = []string{"main", "article", ".content", ".course-content", "#content"}

// fileExtensions are the downloadable resource types worth collecting.
var fileExtensions = []string{".pdf", ".doc", ".docx", ".ppt", ".pptx"}

// videoHosts are the iframe embed hosts treated as video.
var videoHosts = []string{"youtube", "vimeo"}

// Extractor extracts structured content from course pages.
type Extractor struct {
	log zerolog.Logger
}

// New creates a new extractor
func New() *Extractor {
	return &Extractor{
		log: logging.NewLogger("extractor"),
	}
}

// Extract pulls the page state out of a live browser handle and parses
// it. A failed screenshot degrades to an empty string; a page that
// cannot be parsed fails with ErrExtraction.
func (e *Extractor) Extract(ctx context.Context, h browser.Handle, courseURL string) (*models.ExtractedContent, error) {
	html, err := h.Content(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	content, err := e.Parse(html, courseURL)
	if err != nil {
		return nil, err
	}

	if title, err := h.Title(ctx); err == nil && strings.TrimSpace(title) != "" {
		content.Title = strings.TrimSpace(title)
	}

	screenshot, err := h.Screenshot(ctx)
	if err != nil {
		e.log.Warn().Err(err).Str("course_url", courseURL).Msg("Screenshot failed, continuing without")
	} else {
		content.Screenshot = screenshot
	}

	return content, nil
}

// Parse extracts structured content from raw page HTML.
func (e *Extractor) Parse(html string, pageURL string) (*models.ExtractedContent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}

	root, rootSelector := findContentRoot(doc)

	content := &models.ExtractedContent{
		Title:       strings.TrimSpace(doc.Find("title").First().Text()),
		URL:         pageURL,
		Sections:    extractSections(doc),
		RawText:     truncateChars(normalizeText(root.Text()), MaxTextChars),
		VideoLinks:  extractVideoLinks(doc, base),
		FileLinks:   extractFileLinks(doc, base),
		ContentRoot: rootSelector,
	}

	return content, nil
}

// findContentRoot walks the selector fallback chain and returns the
// first matching element, defaulting to body.
func findContentRoot(doc *goquery.Document) (*goquery.Selection, string) {
	for _, selector := range contentSelectors {
		if sel := doc.Find(selector); sel.Length() > 0 {
			return sel.First(), selector
		}
	}
	return doc.Find("body").First(), "body"
}

// extractSections collects h1-h3 headings in document order, trimmed,
// empty dropped, capped at MaxSections.
func extractSections(doc *goquery.Document) []models.Section {
	sections := make([]models.Section, 0, MaxSections)
	doc.Find("h1, h2, h3").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		title := strings.TrimSpace(s.Text())
		if title == "" {
			return true
		}
		sections = append(sections, models.Section{
			Level: headingLevel(goquery.NodeName(s)),
			Title: title,
		})
		return len(sections) < MaxSections
	})
	return sections
}

func headingLevel(nodeName string) int {
	switch nodeName {
	case "h1":
		return 1
	case "h2":
		return 2
	default:
		return 3
	}
}

// extractVideoLinks collects video element sources and youtube/vimeo
// iframe embeds, capped at MaxLinks.
func extractVideoLinks(doc *goquery.Document, base *url.URL) []models.VideoLink {
	var links []models.VideoLink
	seen := make(map[string]bool)

	doc.Find("video").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, ok := s.Attr("src")
		if !ok {
			src, ok = s.Find("source").First().Attr("src")
		}
		if !ok || src == "" {
			return true
		}
		u := resolveURL(base, src)
		if u != "" && !seen[u] {
			seen[u] = true
			links = append(links, models.VideoLink{Kind: "video", URL: u})
		}
		return len(links) < MaxLinks
	})
	if len(links) >= MaxLinks {
		return links
	}

	doc.Find("iframe").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, ok := s.Attr("src")
		if !ok || src == "" {
			return true
		}
		lower := strings.ToLower(src)
		matched := false
		for _, host := range videoHosts {
			if strings.Contains(lower, host) {
				matched = true
				break
			}
		}
		if !matched {
			return true
		}
		u := resolveURL(base, src)
		if u != "" && !seen[u] {
			seen[u] = true
			links = append(links, models.VideoLink{Kind: "iframe", URL: u})
		}
		return len(links) < MaxLinks
	})

	return links
}

// extractFileLinks collects anchors pointing at downloadable documents,
// capped at MaxLinks.
func extractFileLinks(doc *goquery.Document, base *url.URL) []models.FileLink {
	var links []models.FileLink
	seen := make(map[string]bool)

	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		lower := strings.ToLower(href)
		matched := false
		for _, ext := range fileExtensions {
			if strings.HasSuffix(lower, ext) {
				matched = true
				break
			}
		}
		if !matched {
			return true
		}
		u := resolveURL(base, href)
		if u == "" || seen[u] {
			return true
		}
		seen[u] = true
		links = append(links, models.FileLink{
			Text: strings.TrimSpace(s.Text()),
			URL:  u,
		})
		return len(links) < MaxLinks
	})

	return links
}

// resolveURL makes a possibly-relative URL absolute against the page URL.
func resolveURL(base *url.URL, ref string) string {
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	if base == nil || parsed.IsAbs() {
		return parsed.String()
	}
	return base.ResolveReference(parsed).String()
}

// normalizeText collapses runs of whitespace, keeping single newlines
// between blocks readable.
func normalizeText(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// truncateChars truncates to at most n characters, not bytes.
func truncateChars(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
