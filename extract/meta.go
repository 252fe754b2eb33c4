package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

var (
	metaSel  = cascadia.MustCompile("meta[content]")
	titleSel = cascadia.MustCompile("head > title")
)

// MetaData holds the page's meta tags keyed by property or name. The first
// tag for a key wins.
type MetaData struct {
	Props map[string]string
	Title string
}

// ReadMeta parses the rendered HTML's meta tags. Unparseable HTML yields
// an empty MetaData.
func ReadMeta(rawHTML string) *MetaData {
	md := &MetaData{Props: map[string]string{}}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return md
	}

	doc.FindMatcher(metaSel).Each(func(_ int, s *goquery.Selection) {
		content := strings.TrimSpace(s.AttrOr("content", ""))
		if content == "" {
			return
		}
		for _, attr := range []string{"property", "name", "itemprop"} {
			key, ok := s.Attr(attr)
			if !ok || key == "" {
				continue
			}
			key = strings.ToLower(strings.TrimSpace(key))
			if _, seen := md.Props[key]; !seen {
				md.Props[key] = content
			}
		}
	})
	md.Title = strings.TrimSpace(doc.FindMatcher(titleSel).First().Text())
	return md
}

// Get returns the content of the first key that is present.
func (m *MetaData) Get(keys ...string) string {
	for _, k := range keys {
		if v := m.Props[k]; v != "" {
			return v
		}
	}
	return ""
}

// OGTitle is the primary page-title meta tag.
func (m *MetaData) OGTitle() string { return m.Get("og:title") }

// TwitterTitle is the secondary title meta tag.
func (m *MetaData) TwitterTitle() string { return m.Get("twitter:title") }

// Description prefers og:description over the plain description tag.
func (m *MetaData) Description() string { return m.Get("og:description", "description") }

// IsVideo reports an explicit video content-type flag.
func (m *MetaData) IsVideo() bool {
	if strings.HasPrefix(strings.ToLower(m.Get("og:type")), "video") {
		return true
	}
	return m.Get("og:video", "og:video:url", "og:video:secure_url") != ""
}
