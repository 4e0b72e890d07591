package extract

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// ErrNoTitle is returned when a detail page has no title heading.
var ErrNoTitle = errors.New("detail page has no title")

var (
	titlePathPattern = regexp.MustCompile(`^/title/(tt\d+)/?$`)
	yearPattern      = regexp.MustCompile(`\b(1[89]\d{2}|20\d{2})\b`)
)

// Link is an absolute URL discovered on a page plus the name it represents.
type Link struct {
	URL  string
	Name string
}

// Listing is the content of one paginated genre page.
type Listing struct {
	Movies  []Link
	HasNext bool
}

// Movie holds the fields extracted from a detail page.
type Movie struct {
	Title  string
	Year   int
	Rating float64
}

// Parser extracts crawl data from HTML documents. The zero value is ready to use.
type Parser struct{}

// New returns a Parser.
func New() *Parser {
	return &Parser{}
}

// Genres returns every genre search link on the root page, in document order,
// without duplicates.
func (p *Parser) Genres(pageURL string, body []byte) ([]Link, error) {
	root, base, err := parse(pageURL, body)
	if err != nil {
		return nil, err
	}
	var links []Link
	seen := make(map[string]struct{})
	walk(root, func(n *html.Node) {
		if n.DataAtom != atom.A {
			return
		}
		target, ok := resolve(base, attr(n, "href"))
		if !ok || !strings.HasSuffix(target.Path, "/search/title") {
			return
		}
		genre := target.Query().Get("genres")
		if genre == "" {
			return
		}
		normalized := canonicalGenreURL(target, genre)
		if _, dup := seen[normalized]; dup {
			return
		}
		seen[normalized] = struct{}{}
		links = append(links, Link{URL: normalized, Name: GenreName(genre)})
	})
	return links, nil
}

// Listing returns the movie detail links on a genre page and whether a
// "Next" pagination link is present.
func (p *Parser) Listing(pageURL string, body []byte) (Listing, error) {
	root, base, err := parse(pageURL, body)
	if err != nil {
		return Listing{}, err
	}
	var listing Listing
	seen := make(map[string]struct{})
	walk(root, func(n *html.Node) {
		if n.DataAtom != atom.A {
			return
		}
		if isNextMarker(n) {
			listing.HasNext = true
			return
		}
		target, ok := resolve(base, attr(n, "href"))
		if !ok {
			return
		}
		match := titlePathPattern.FindStringSubmatch(target.Path)
		if match == nil {
			return
		}
		detail := url.URL{Scheme: target.Scheme, Host: target.Host, Path: "/title/" + match[1] + "/"}
		key := detail.String()
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		listing.Movies = append(listing.Movies, Link{URL: key, Name: Text(n)})
	})
	return listing, nil
}

// Movie extracts the title, release year, and rating from a detail page.
func (p *Parser) Movie(pageURL string, body []byte) (Movie, error) {
	root, _, err := parse(pageURL, body)
	if err != nil {
		return Movie{}, err
	}
	var (
		movie   Movie
		heading *html.Node
	)
	walk(root, func(n *html.Node) {
		switch {
		case n.DataAtom == atom.H1:
			if heading == nil || attr(n, "itemprop") == "name" && attr(heading, "itemprop") != "name" {
				heading = n
			}
		case attr(n, "id") == "titleYear" || attr(n, "itemprop") == "datePublished":
			if movie.Year == 0 {
				if m := yearPattern.FindString(Text(n)); m != "" {
					movie.Year, _ = strconv.Atoi(m)
				}
			}
		case attr(n, "itemprop") == "ratingValue":
			if movie.Rating == 0 {
				movie.Rating, _ = strconv.ParseFloat(Text(n), 64)
			}
		}
	})
	if heading == nil {
		return Movie{}, ErrNoTitle
	}
	movie.Title = headingTitle(heading)
	if movie.Title == "" {
		return Movie{}, ErrNoTitle
	}
	return movie, nil
}

// GenreName converts a genre slug such as "sci-fi" into a display name.
func GenreName(slug string) string {
	cleaned := strings.TrimSpace(strings.ReplaceAll(slug, "_", " "))
	return cases.Title(language.English).String(cleaned)
}

// Text returns the collapsed, NFC-normalized text content of n.
func Text(n *html.Node) string {
	var buf strings.Builder
	walk(n, func(child *html.Node) {
		if child.Type == html.TextNode {
			buf.WriteString(child.Data)
			buf.WriteByte(' ')
		}
	})
	return collapse(buf.String())
}

func headingTitle(h *html.Node) string {
	var buf strings.Builder
	for c := h.FirstChild; c != nil; c = c.NextSibling {
		// The year is often nested inside the heading.
		if c.Type == html.ElementNode && attr(c, "id") == "titleYear" {
			continue
		}
		if c.Type == html.TextNode {
			buf.WriteString(c.Data)
		} else {
			buf.WriteString(Text(c))
		}
		buf.WriteByte(' ')
	}
	return collapse(buf.String())
}

func parse(pageURL string, body []byte) (*html.Node, *url.URL, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse page url: %w", err)
	}
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("parse html: %w", err)
	}
	return root, base, nil
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func resolve(base *url.URL, href string) (*url.URL, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil, false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil, false
	}
	target := base.ResolveReference(ref)
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, false
	}
	return target, true
}

func canonicalGenreURL(target *url.URL, genre string) string {
	canonical := url.URL{Scheme: target.Scheme, Host: target.Host, Path: target.Path}
	canonical.RawQuery = url.Values{"genres": []string{genre}}.Encode()
	return canonical.String()
}

func isNextMarker(n *html.Node) bool {
	text := strings.TrimSpace(strings.TrimRight(Text(n), "»› "))
	return strings.EqualFold(text, "next") || strings.Contains(attr(n, "class"), "lister-page-next")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
