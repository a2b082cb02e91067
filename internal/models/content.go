package models

// Section is a heading found in the course page.
type Section struct {
	Level int    `json:"level"`
	Title string `json:"title"`
}

// VideoLink is an embedded video found in the course page.
type VideoLink struct {
	Kind string `json:"kind"` // "video" or "iframe"
	URL  string `json:"url"`
}

// FileLink is a downloadable resource linked from the course page.
type FileLink struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// ExtractedContent is the structured result of extracting a course page.
// It is a pure function of the page state: the same page always yields
// the same content (screenshot aside).
type ExtractedContent struct {
	Title       string      `json:"title"`
	URL         string      `json:"url"`
	Sections    []Section   `json:"sections"`
	RawText     string      `json:"raw_text"`
	VideoLinks  []VideoLink `json:"video_links"`
	FileLinks   []FileLink  `json:"file_links"`
	Screenshot  string      `json:"screenshot,omitempty"` // base64 PNG
	ContentRoot string      `json:"content_root"`         // selector that matched
}
