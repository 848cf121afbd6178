package gallery

import (
	"fmt"
	"iter"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// styleURL matches the first url("...") or url('...') token of a style value.
var styleURL = regexp.MustCompile(`url\(\s*(?:"([^"]+)"|'([^']+)')\s*\)`)

// Extractor finds gallery items in rendered markup and recovers the image url
// carried by their inline background-image style.
type Extractor struct {
	itemSelector string
}

// NewExtractor returns an Extractor for the item selector of sel.
func NewExtractor(sel Selectors) *Extractor {
	item := sel.Item
	if item == "" {
		item = DefaultSelectors().Item
	}

	return &Extractor{itemSelector: item}
}

// Extract returns the image urls of markup in document order. Items without a
// style attribute or without a url token are skipped. Duplicates are kept.
func (e *Extractor) Extract(markup string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse gallery markup: %w", err)
	}

	var urls []string

	doc.Find(e.itemSelector).Each(func(_ int, s *goquery.Selection) {
		if u, ok := urlFromSelection(s); ok {
			urls = append(urls, u)
		}
	})

	return urls, nil
}

// All is the lazy form of Extract. Every range over the returned sequence
// parses markup again, so it can be consumed more than once.
func (e *Extractor) All(markup string) iter.Seq[string] {
	return func(yield func(string) bool) {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
		if err != nil {
			return
		}

		doc.Find(e.itemSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			u, ok := urlFromSelection(s)
			if !ok {
				return true
			}

			return yield(u)
		})
	}
}

func urlFromSelection(s *goquery.Selection) (string, bool) {
	style, ok := s.Attr("style")
	if !ok || style == "" {
		return "", false
	}

	return URLFromStyle(style)
}

// URLFromStyle returns the url of the first url(...) token found in an inline
// style value.
func URLFromStyle(style string) (string, bool) {
	start := strings.Index(style, "url(")
	if start == -1 {
		return "", false
	}

	// serialized markup may keep the quotes as entities
	rest := strings.ReplaceAll(style[start:], "&quot;", `"`)

	m := styleURL.FindStringSubmatch(rest)
	if m == nil {
		return "", false
	}

	for _, group := range m[1:] {
		if group != "" {
			return group, true
		}
	}

	return "", false
}
