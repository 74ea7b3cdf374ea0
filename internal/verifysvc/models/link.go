package models

import (
	"regexp"
	"strings"
	"time"
)

var (
	linkURLRegex  = regexp.MustCompile(`(?i)(?:链接|link)[：:]+\s*(https?://\S+)`)
	linkCodeRegex = regexp.MustCompile(`(?i)(?:提取码|code)[：:]+\s*([A-Za-z0-9]+)`)
)

// DownloadLink is one distributable resource from the catalog. Links
// are immutable once observed.
type DownloadLink struct {
	ID             int64     `json:"id"` // Primary key
	URL            string    `json:"url"`
	ExtractionCode string    `json:"extraction_code"`
	CreatedAt      time.Time `json:"created_at"`
}

// LinkRecord is the audit view of a catalog row, keeping the raw pasted
// share text alongside whatever could be parsed out of it.
type LinkRecord struct {
	ID             int64     `json:"id"`
	URL            string    `json:"url"`
	ExtractionCode string    `json:"extraction_code"`
	RawContent     string    `json:"raw_content"`
	CreatedAt      time.Time `json:"created_at"`
}

// ParseLinkContent extracts the share URL and extraction code from a
// raw catalog row. Rows missing either marker yield nil.
func ParseLinkContent(content string) (url, code string, ok bool) {
	if strings.TrimSpace(content) == "" {
		return "", "", false
	}

	urlMatch := linkURLRegex.FindStringSubmatch(content)
	codeMatch := linkCodeRegex.FindStringSubmatch(content)
	if urlMatch == nil || codeMatch == nil {
		return "", "", false
	}

	url = strings.TrimSpace(urlMatch[1])
	code = strings.TrimSpace(codeMatch[1])
	if url == "" || code == "" {
		return "", "", false
	}

	return url, code, true
}
