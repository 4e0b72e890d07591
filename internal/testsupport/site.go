package testsupport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// SiteRoot is the crawl root served by Site.
const SiteRoot = "https://crawl.test/feature/genre/"

const siteHost = "https://crawl.test"

// ErrSiteUnavailable is returned by Site for injected failures.
var ErrSiteUnavailable = errors.New("site unavailable")

// Site is an in-memory crawl target with a fixed number of genres, pages per
// genre, and movies per page. It implements command.Fetcher.
type Site struct {
	Genres        int
	PagesPerGenre int
	MoviesPerPage int

	mu       sync.Mutex
	fetches  map[string]int
	failures map[string]int
}

// NewSite builds a site of genres x pages x movies.
func NewSite(genres, pages, movies int) *Site {
	return &Site{
		Genres:        genres,
		PagesPerGenre: pages,
		MoviesPerPage: movies,
		fetches:       make(map[string]int),
		failures:      make(map[string]int),
	}
}

// FailNext makes the next n fetches of target fail.
func (s *Site) FailNext(target string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[target] += n
}

// Fetches returns how many times target was requested, failures included.
func (s *Site) Fetches(target string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[target]
}

// TotalFetches returns the number of requests served, failures included.
func (s *Site) TotalFetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.fetches {
		total += n
	}
	return total
}

// ExpectedCommands is the number of commands a full crawl of the site
// completes: the root, every listing page, and every movie.
func (s *Site) ExpectedCommands() int {
	pages := s.Genres * s.PagesPerGenre
	return 1 + pages + pages*s.MoviesPerPage
}

// GenreURL returns the listing URL for genre g (1-based), without page.
func (s *Site) GenreURL(g int) string {
	return fmt.Sprintf("%s/search/title?genres=genre%d", siteHost, g)
}

// PageURL returns the URL a GenrePage command fetches for genre g, page p.
func (s *Site) PageURL(g, p int) string {
	return fmt.Sprintf("%s&page=%d", s.GenreURL(g), p)
}

// MovieURL returns the detail URL of movie m on page p of genre g.
func (s *Site) MovieURL(g, p, m int) string {
	return fmt.Sprintf("%s/title/tt%02d%02d%02d/", siteHost, g, p, m)
}

// MovieTitle returns the title served for a movie.
func (s *Site) MovieTitle(g, p, m int) string {
	return fmt.Sprintf("Movie %d-%d-%d", g, p, m)
}

// Fetch serves the page for target.
func (s *Site) Fetch(ctx context.Context, target string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.fetches[target]++
	if s.failures[target] > 0 {
		s.failures[target]--
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSiteUnavailable, target)
	}
	s.mu.Unlock()

	if body, ok := s.render(target); ok {
		return []byte(body), nil
	}
	return nil, fmt.Errorf("not found: %s", target)
}

// ServeHTTP serves the site over HTTP. Request paths map onto the site's
// URLs, so an httptest server can stand in for the crawl host.
func (s *Site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := s.Fetch(r.Context(), siteHost+r.URL.RequestURI())
	switch {
	case errors.Is(err, ErrSiteUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case err != nil:
		http.NotFound(w, r)
	default:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(body)
	}
}

func (s *Site) render(target string) (string, bool) {
	if target == SiteRoot {
		var b strings.Builder
		b.WriteString("<html><body><ul>")
		for g := 1; g <= s.Genres; g++ {
			fmt.Fprintf(&b, `<li><a href="/search/title?genres=genre%d">Genre %d</a></li>`, g, g)
		}
		b.WriteString("</ul></body></html>")
		return b.String(), true
	}
	for g := 1; g <= s.Genres; g++ {
		for p := 1; p <= s.PagesPerGenre; p++ {
			if target == s.PageURL(g, p) {
				return s.renderPage(g, p), true
			}
			for m := 1; m <= s.MoviesPerPage; m++ {
				if target == s.MovieURL(g, p, m) {
					return fmt.Sprintf(`<html><body><h1 itemprop="name">%s <span id="titleYear">(%d)</span></h1>`+
						`<span itemprop="ratingValue">7.%d</span></body></html>`,
						s.MovieTitle(g, p, m), 1990+g*10+p, m), true
				}
			}
		}
	}
	return "", false
}

func (s *Site) renderPage(g, p int) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="lister-list">`)
	for m := 1; m <= s.MoviesPerPage; m++ {
		fmt.Fprintf(&b, `<h3><a href="/title/tt%02d%02d%02d/?ref_=adv_li_tt">%s</a></h3>`, g, p, m, s.MovieTitle(g, p, m))
	}
	b.WriteString(`</div>`)
	if p < s.PagesPerGenre {
		fmt.Fprintf(&b, `<a href="/search/title?genres=genre%d&amp;page=%d" class="lister-page-next">Next &#187;</a>`, g, p+1)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}
