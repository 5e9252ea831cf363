package crawler

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HrefExtractor turns a page body into the raw href values of its anchor
// elements, in document order. No resolution or filtering happens here.
type HrefExtractor interface {
	Hrefs(body string) ([]string, error)
}

// HrefExtractorFunc adapts a function to the HrefExtractor interface.
type HrefExtractorFunc func(body string) ([]string, error)

// Hrefs calls f.
func (f HrefExtractorFunc) Hrefs(body string) ([]string, error) {
	return f(body)
}

// HTMLParser extracts anchor hrefs with golang.org/x/net/html.
//
// Design decision: We use golang.org/x/net/html for parsing rather than
// regex because:
//  1. It correctly handles malformed HTML common on the web
//  2. Attribute quoting and entity decoding are handled for us
//  3. The same parser is used by browsers' HTML5 algorithm
type HTMLParser struct{}

// NewHTMLParser creates an HTMLParser.
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{}
}

// Hrefs returns the href attribute of every <a> element that has one.
// An empty href="" is returned as an empty string; anchors without an href
// attribute are ignored.
func (p *HTMLParser) Hrefs(body string) ([]string, error) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, err
	}

	hrefs := make([]string, 0)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			if href, ok := getAttr(n, "href"); ok {
				hrefs = append(hrefs, href)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)

	return hrefs, nil
}

// getAttr retrieves an attribute value from an HTML node and reports
// whether the attribute was present.
func getAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Namespace == "" && attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}

// ExtractTitle returns the trimmed text of the first <title> element, or an
// empty string if there is none. It tokenizes rather than building a tree
// and stops as soon as the title is complete.
func ExtractTitle(body string) string {
	z := html.NewTokenizer(strings.NewReader(body))
	inTitle := false
	var title strings.Builder

	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(title.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			if atom.Lookup(name) == atom.Title {
				inTitle = true
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if inTitle && atom.Lookup(name) == atom.Title {
				return strings.TrimSpace(title.String())
			}
		case html.TextToken:
			if inTitle {
				title.Write(z.Text())
			}
		}
	}
}
