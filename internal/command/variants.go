package command

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// GenreList enumerates the genres on the crawl root and emits page one of
// each genre listing.
type GenreList struct {
	Identity `json:"-"`
	URL      string `json:"url" validate:"required,http_url"`
}

// NewGenreList returns the root command for url.
func NewGenreList(url string) *GenreList {
	return &GenreList{URL: url}
}

func (c *GenreList) Kind() Kind     { return KindGenreList }
func (c *GenreList) Target() string { return c.URL }

func (c *GenreList) Execute(ctx context.Context, env Env) (Outcome, error) {
	body, err := fetch(ctx, env, c.Target())
	if err != nil {
		return Outcome{}, err
	}
	return c.Interpret(env, body)
}

// Interpret emits one GenrePage per discovered genre.
func (c *GenreList) Interpret(env Env, body []byte) (Outcome, error) {
	genres, err := env.parser().Genres(c.Target(), body)
	if err != nil {
		return Outcome{}, fmt.Errorf("extract genres: %w", err)
	}
	out := Outcome{FollowUps: make([]Command, 0, len(genres))}
	for _, g := range genres {
		out.FollowUps = append(out.FollowUps, &GenrePage{Genre: g.Name, URL: g.URL, Page: 1})
	}
	return out, nil
}

// GenrePage enumerates the movies on one page of a genre listing. The page
// number is part of the payload so a resumed run fetches the same page.
type GenrePage struct {
	Identity `json:"-"`
	Genre    string `json:"genre" validate:"required"`
	URL      string `json:"url" validate:"required,http_url"`
	Page     int    `json:"page" validate:"gte=1"`
}

func (c *GenrePage) Kind() Kind { return KindGenrePage }

// Target returns the genre URL with the page query parameter applied.
func (c *GenrePage) Target() string {
	u, err := url.Parse(c.URL)
	if err != nil {
		return c.URL
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(c.Page))
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *GenrePage) Execute(ctx context.Context, env Env) (Outcome, error) {
	body, err := fetch(ctx, env, c.Target())
	if err != nil {
		return Outcome{}, err
	}
	return c.Interpret(env, body)
}

// Interpret emits one Detail per movie and, when a next-page marker is present,
// exactly one GenrePage for the following page.
func (c *GenrePage) Interpret(env Env, body []byte) (Outcome, error) {
	listing, err := env.parser().Listing(c.Target(), body)
	if err != nil {
		return Outcome{}, fmt.Errorf("extract listing: %w", err)
	}
	out := Outcome{FollowUps: make([]Command, 0, len(listing.Movies)+1)}
	for _, m := range listing.Movies {
		out.FollowUps = append(out.FollowUps, &Detail{Genre: c.Genre, URL: m.URL})
	}
	if listing.HasNext && (env.MaxPages <= 0 || c.Page < env.MaxPages) {
		out.FollowUps = append(out.FollowUps, &GenrePage{Genre: c.Genre, URL: c.URL, Page: c.Page + 1})
	}
	return out, nil
}

// Detail extracts one movie's fields. It emits no follow-ups.
type Detail struct {
	Identity `json:"-"`
	Genre    string `json:"genre,omitempty"`
	URL      string `json:"url" validate:"required,http_url"`
}

func (c *Detail) Kind() Kind     { return KindDetail }
func (c *Detail) Target() string { return c.URL }

func (c *Detail) Execute(ctx context.Context, env Env) (Outcome, error) {
	body, err := fetch(ctx, env, c.Target())
	if err != nil {
		return Outcome{}, err
	}
	return c.Interpret(env, body)
}

// Interpret returns the movie as a single Result.
func (c *Detail) Interpret(env Env, body []byte) (Outcome, error) {
	movie, err := env.parser().Movie(c.Target(), body)
	if err != nil {
		return Outcome{}, fmt.Errorf("extract movie: %w", err)
	}
	return Outcome{Results: []Result{{
		URL:    c.URL,
		Title:  movie.Title,
		Genre:  c.Genre,
		Year:   movie.Year,
		Rating: movie.Rating,
	}}}, nil
}
