package command

import (
	"context"
	"errors"
	"fmt"

	"crawlq/internal/extract"
)

// Kind tags a command variant in storage.
type Kind string

const (
	KindGenreList Kind = "genre_list"
	KindGenrePage Kind = "genre_page"
	KindDetail    Kind = "detail"
)

// ErrIdentityAssigned is returned when a command that already has an identity
// is given a different one.
var ErrIdentityAssigned = errors.New("command identity already assigned")

// Command is a unit of crawl work.
type Command interface {
	ID() int64
	AssignID(id int64) error
	Kind() Kind
	// Target is the locator fetched by Execute.
	Target() string
	Execute(ctx context.Context, env Env) (Outcome, error)
}

// Identity carries the store-assigned id. It is embedded by every variant and
// never serialized into the payload.
type Identity struct {
	id int64
}

// ID returns the assigned identity, or zero before the command is persisted.
func (i *Identity) ID() int64 { return i.id }

// AssignID sets the identity once.
func (i *Identity) AssignID(id int64) error {
	if id <= 0 {
		return fmt.Errorf("invalid command id %d", id)
	}
	if i.id != 0 && i.id != id {
		return fmt.Errorf("%w: have %d, got %d", ErrIdentityAssigned, i.id, id)
	}
	i.id = id
	return nil
}

// Fetcher retrieves the raw content behind a target locator.
type Fetcher interface {
	Fetch(ctx context.Context, target string) ([]byte, error)
}

// Parser extracts crawl data from fetched content.
type Parser interface {
	Genres(pageURL string, body []byte) ([]extract.Link, error)
	Listing(pageURL string, body []byte) (extract.Listing, error)
	Movie(pageURL string, body []byte) (extract.Movie, error)
}

// Env holds the collaborators a command needs to execute.
type Env struct {
	Fetcher Fetcher
	Parser  Parser
	// MaxPages stops pagination after this many pages per genre. Zero follows
	// the next-page marker until it disappears.
	MaxPages int
}

func (e Env) parser() Parser {
	if e.Parser == nil {
		return extract.New()
	}
	return e.Parser
}

// Result is the record surfaced by a detail command.
type Result struct {
	URL    string  `json:"url"`
	Title  string  `json:"title"`
	Genre  string  `json:"genre,omitempty"`
	Year   int     `json:"year,omitempty"`
	Rating float64 `json:"rating,omitempty"`
}

// Outcome is what executing a command produced. FollowUps must be persisted
// before the command is marked complete.
type Outcome struct {
	FollowUps []Command
	Results   []Result
}

// FetchError marks a failure of the fetch step. The record it belongs to stays
// pending.
type FetchError struct {
	Target string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Target, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func fetch(ctx context.Context, env Env, target string) ([]byte, error) {
	if env.Fetcher == nil {
		return nil, &FetchError{Target: target, Err: errors.New("no fetcher configured")}
	}
	body, err := env.Fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, &FetchError{Target: target, Err: err}
	}
	return body, nil
}
