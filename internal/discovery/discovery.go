// internal/discovery/discovery.go
package discovery

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultMaxLinks is how many anchors are followed from a main page.
const DefaultMaxLinks = 5

// Scope decides whether a discovered link may be followed.
type Scope interface {
	IsInScope(u *url.URL) bool
}

// ExtractLinks returns up to limit absolute http(s) URLs from the anchors of
// document, in document order. Relative hrefs resolve against a <base href>
// when the document has one, otherwise against pageURL. A nil scope accepts
// everything. A limit of zero or less yields no links.
func ExtractLinks(document string, pageURL *url.URL, scope Scope, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	if pageURL == nil {
		return nil, fmt.Errorf("page URL is required to resolve links")
	}

	root, err := html.Parse(strings.NewReader(document))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page markup: %w", err)
	}

	base := pageURL
	baseSeen := false
	links := make([]string, 0, limit)

	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Base:
				// Only the first <base href> counts.
				if href, ok := attr(n, "href"); ok && !baseSeen {
					baseSeen = true
					if b, err := pageURL.Parse(strings.TrimSpace(href)); err == nil {
						base = b
					}
				}
			case atom.A:
				if href, ok := attr(n, "href"); ok {
					if u, ok := resolve(base, href); ok && (scope == nil || scope.IsInScope(u)) {
						links = append(links, u.String())
						if len(links) == limit {
							return false
						}
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	walk(root)

	return links, nil
}

// resolve mirrors what HTMLAnchorElement.href reports, then drops anything
// the browser cannot navigate to as a page.
func resolve(base *url.URL, href string) (*url.URL, bool) {
	u, err := base.Parse(strings.TrimSpace(href))
	if err != nil {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	return u, true
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}
