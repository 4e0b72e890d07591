package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"crawlq/internal/command"
	"crawlq/internal/queue"
	"crawlq/internal/testsupport"
)

const runID = "run-1"

func detail(url string) *command.Detail {
	return &command.Detail{Genre: "Drama", URL: url}
}

func TestEnqueueAssignsIdentityAndFetchNextIsFIFO(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	q := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	empty, err := q.IsEmpty(ctx)
	if err != nil {
		t.Fatalf("IsEmpty: %v", err)
	}
	if !empty {
		t.Fatal("expected fresh queue to be empty")
	}

	first := detail("https://crawl.test/title/tt1/")
	second := detail("https://crawl.test/title/tt2/")
	for _, cmd := range []*command.Detail{first, second} {
		if _, err := q.Enqueue(ctx, cmd); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	if first.ID() == 0 || second.ID() <= first.ID() {
		t.Fatalf("expected increasing identities, got %d and %d", first.ID(), second.ID())
	}

	next, err := q.FetchNext(ctx)
	if err != nil {
		t.Fatalf("FetchNext: %v", err)
	}
	if next.ID() != first.ID() || next.Target() != first.URL {
		t.Fatalf("expected first command, got id=%d target=%s", next.ID(), next.Target())
	}
	// FetchNext does not claim.
	again, err := q.FetchNext(ctx)
	if err != nil {
		t.Fatalf("FetchNext again: %v", err)
	}
	if again.ID() != first.ID() {
		t.Fatalf("expected FetchNext to be repeatable, got %d", again.ID())
	}

	if err := q.MarkComplete(ctx, next); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}
	next, err = q.FetchNext(ctx)
	if err != nil {
		t.Fatalf("FetchNext after complete: %v", err)
	}
	if next.ID() != second.ID() {
		t.Fatalf("expected second command, got %d", next.ID())
	}
	if err := q.MarkComplete(ctx, next); err != nil {
		t.Fatalf("MarkComplete second: %v", err)
	}

	if _, err := q.FetchNext(ctx); !errors.Is(err, queue.ErrEmptyQueue) {
		t.Fatalf("expected ErrEmptyQueue, got %v", err)
	}
	empty, err = q.IsEmpty(ctx)
	if err != nil {
		t.Fatalf("IsEmpty: %v", err)
	}
	if !empty {
		t.Fatal("expected queue to be empty after completing everything")
	}
}

func TestEnqueueRejectsStoredCommand(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	q := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	cmd := detail("https://crawl.test/title/tt1/")
	if _, err := q.Enqueue(ctx, cmd); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.Enqueue(ctx, cmd); !errors.Is(err, command.ErrIdentityAssigned) {
		t.Fatalf("expected ErrIdentityAssigned, got %v", err)
	}
}

func TestEnqueueRejectsTypedNilCommand(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	q := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, (*command.Detail)(nil)); !errors.Is(err, command.ErrSerialization) {
		t.Fatalf("expected ErrSerialization, got %v", err)
	}
	if err := q.MarkComplete(ctx, (*command.Detail)(nil)); err == nil {
		t.Fatal("expected MarkComplete to reject a nil command")
	}
	empty, err := q.IsEmpty(ctx)
	if err != nil {
		t.Fatalf("IsEmpty: %v", err)
	}
	if !empty {
		t.Fatal("nil command must not be stored")
	}
}

func TestEnqueueRejectsInvalidPayload(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	q := testsupport.MustOpenQueue(t, cfg)

	_, err := q.Enqueue(context.Background(), &command.GenrePage{Genre: "Drama", URL: "not a url", Page: 0})
	if !errors.Is(err, command.ErrSerialization) {
		t.Fatalf("expected ErrSerialization, got %v", err)
	}
}

func TestMarkCompleteUnknownIdentity(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	q := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	unsaved := detail("https://crawl.test/title/tt1/")
	if err := q.MarkComplete(ctx, unsaved); !errors.Is(err, queue.ErrUnknownIdentity) {
		t.Fatalf("expected ErrUnknownIdentity for unsaved command, got %v", err)
	}

	ghost := detail("https://crawl.test/title/tt2/")
	if err := ghost.AssignID(4242); err != nil {
		t.Fatalf("AssignID: %v", err)
	}
	if err := q.MarkComplete(ctx, ghost); !errors.Is(err, queue.ErrUnknownIdentity) {
		t.Fatalf("expected ErrUnknownIdentity for missing record, got %v", err)
	}
}

func TestMarkCompleteIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	q := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	cmd := detail("https://crawl.test/title/tt1/")
	if _, err := q.Enqueue(ctx, cmd); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := q.MarkComplete(ctx, cmd); err != nil {
			t.Fatalf("MarkComplete #%d: %v", i+1, err)
		}
	}
}

func TestCommitPersistsFollowUpsAndResults(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	q := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	page := &command.GenrePage{Genre: "Drama", URL: "https://crawl.test/search/title?genres=drama", Page: 1}
	if _, err := q.Enqueue(ctx, page); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	claimed, err := q.Claim(ctx, runID, "worker-1")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}

	followUps := []command.Command{
		detail("https://crawl.test/title/tt1/"),
		detail("https://crawl.test/title/tt2/"),
		detail("https://crawl.test/title/tt3/"),
		&command.GenrePage{Genre: "Drama", URL: page.URL, Page: 2},
	}
	outcome := command.Outcome{
		FollowUps: followUps,
		Results:   []command.Result{{URL: "https://crawl.test/title/tt0/", Title: "Seed", Genre: "Drama"}},
	}
	if err := q.Commit(ctx, claimed, outcome); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	for i, f := range followUps {
		if f.ID() == 0 {
			t.Fatalf("follow-up %d did not receive an identity", i)
		}
	}

	store := q.Store()
	rec, err := store.GetByID(ctx, page.ID())
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if rec.Status != queue.StatusCompleted || rec.CompletedAt == nil {
		t.Fatalf("expected committed record completed, got %+v", rec)
	}
	count, err := store.CountPending(ctx)
	if err != nil {
		t.Fatalf("CountPending: %v", err)
	}
	if count != len(followUps) {
		t.Fatalf("expected %d pending follow-ups, got %d", len(followUps), count)
	}

	// Follow-ups come out in emission order.
	for _, want := range followUps {
		got, err := q.Claim(ctx, runID, "worker-1")
		if err != nil {
			t.Fatalf("Claim follow-up: %v", err)
		}
		if got.ID() != want.ID() || got.Kind() != want.Kind() || got.Target() != want.Target() {
			t.Fatalf("expected %s %s, got %s %s", want.Kind(), want.Target(), got.Kind(), got.Target())
		}
	}

	results, err := store.ListResults(ctx)
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(results) != 1 || results[0].Title != "Seed" || results[0].CommandID != page.ID() {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestCommitOnCompletedRecordDiscardsFollowUps(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	q := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	root := command.NewGenreList("https://crawl.test/feature/genre/")
	if _, err := q.Enqueue(ctx, root); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.MarkComplete(ctx, root); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}

	err := q.Commit(ctx, root, command.Outcome{FollowUps: []command.Command{detail("https://crawl.test/title/tt1/")}})
	if !errors.Is(err, queue.ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
	empty, err := q.IsEmpty(ctx)
	if err != nil {
		t.Fatalf("IsEmpty: %v", err)
	}
	if !empty {
		t.Fatal("expected follow-ups of a rejected commit to be discarded")
	}
}

func TestCommitRollsBackOnInvalidFollowUp(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	q := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	root := command.NewGenreList("https://crawl.test/feature/genre/")
	if _, err := q.Enqueue(ctx, root); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	outcome := command.Outcome{FollowUps: []command.Command{
		detail("https://crawl.test/title/tt1/"),
		&command.Detail{URL: ""},
	}}
	if err := q.Commit(ctx, root, outcome); !errors.Is(err, command.ErrSerialization) {
		t.Fatalf("expected ErrSerialization, got %v", err)
	}

	rec, err := q.Store().GetByID(ctx, root.ID())
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if rec.Status != queue.StatusPending {
		t.Fatalf("expected root to stay pending, got %s", rec.Status)
	}
	count, err := q.Store().CountPending(ctx)
	if err != nil {
		t.Fatalf("CountPending: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected only the root pending, got %d", count)
	}
}

func TestClaimSkipsCommandsFailedInSameRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	q := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	cmd := detail("https://crawl.test/title/tt1/")
	if _, err := q.Enqueue(ctx, cmd); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	claimed, err := q.Claim(ctx, runID, "worker-1")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := q.Fail(ctx, claimed, runID, errors.New("boom")); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	if _, err := q.Claim(ctx, runID, "worker-1"); !errors.Is(err, queue.ErrEmptyQueue) {
		t.Fatalf("expected failed command to be skipped in the same run, got %v", err)
	}
	claimable, err := q.HasClaimable(ctx, runID)
	if err != nil {
		t.Fatalf("HasClaimable: %v", err)
	}
	if claimable {
		t.Fatal("expected nothing claimable for the failing run")
	}

	empty, err := q.IsEmpty(ctx)
	if err != nil {
		t.Fatalf("IsEmpty: %v", err)
	}
	if empty {
		t.Fatal("expected failed command to remain pending")
	}

	retried, err := q.Claim(ctx, "run-2", "worker-1")
	if err != nil {
		t.Fatalf("Claim in next run: %v", err)
	}
	if retried.ID() != cmd.ID() {
		t.Fatalf("expected next run to retry %d, got %d", cmd.ID(), retried.ID())
	}

	rec, err := q.Store().GetByID(ctx, cmd.ID())
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if rec.Attempts != 1 || rec.LastError != "boom" {
		t.Fatalf("expected failure bookkeeping, got attempts=%d last_error=%q", rec.Attempts, rec.LastError)
	}
}

func TestClaimHandsOutEachCommandOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	q := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	const total = 40
	for i := 0; i < total; i++ {
		if _, err := q.Enqueue(ctx, detail(fmt.Sprintf("https://crawl.test/title/tt%d/", i))); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	var (
		mu   sync.Mutex
		seen = make(map[int64]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				cmd, err := q.Claim(ctx, runID, "worker")
				if errors.Is(err, queue.ErrEmptyQueue) {
					return
				}
				if err != nil {
					t.Errorf("Claim: %v", err)
					return
				}
				mu.Lock()
				seen[cmd.ID()]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != total {
		t.Fatalf("expected %d distinct claims, got %d", total, len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("command %d claimed %d times", id, n)
		}
	}
	inFlight, err := q.InFlightCount(ctx, runID)
	if err != nil {
		t.Fatalf("InFlightCount: %v", err)
	}
	if inFlight != total {
		t.Fatalf("expected %d in flight, got %d", total, inFlight)
	}
}

func TestUncommittedClaimIsRedeliveredAfterRestart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	q := queue.New(store)
	cmd := detail("https://crawl.test/title/tt1/")
	if _, err := q.Enqueue(ctx, cmd); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.Claim(ctx, runID, "worker-1"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	// Crash: the claim is never committed.
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	reset, err := reopened.ResetInFlight(ctx)
	if err != nil {
		t.Fatalf("ResetInFlight: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected 1 record reset, got %d", reset)
	}
	q = queue.New(reopened)
	next, err := q.FetchNext(ctx)
	if err != nil {
		t.Fatalf("FetchNext: %v", err)
	}
	if next.ID() != cmd.ID() {
		t.Fatalf("expected redelivery of %d, got %d", cmd.ID(), next.ID())
	}
}

func TestCompletedCommandsSurviveRestart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	q := queue.New(store)
	done := detail("https://crawl.test/title/tt1/")
	open := detail("https://crawl.test/title/tt2/")
	for _, cmd := range []*command.Detail{done, open} {
		if _, err := q.Enqueue(ctx, cmd); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	if err := q.MarkComplete(ctx, done); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	q = testsupport.MustOpenQueue(t, cfg)
	next, err := q.FetchNext(ctx)
	if err != nil {
		t.Fatalf("FetchNext: %v", err)
	}
	if next.ID() != open.ID() {
		t.Fatalf("expected only the unfinished command, got %d", next.ID())
	}
	restored, ok := next.(*command.Detail)
	if !ok {
		t.Fatalf("expected *command.Detail, got %T", next)
	}
	if restored.Genre != "Drama" || restored.URL != open.URL {
		t.Fatalf("unexpected restored payload: %+v", restored)
	}
}

func TestClaimReportsUndecodablePayload(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	q := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	id, err := q.Store().Insert(ctx, string(command.KindDetail), []byte(`{"url":`))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	_, err = q.Claim(ctx, runID, "worker-1")
	var decodeErr *queue.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if decodeErr.ID != id || !errors.Is(err, command.ErrSerialization) {
		t.Fatalf("unexpected decode error: %v", err)
	}

	// The undecodable record stays in flight until the next startup reset.
	if _, err := q.FetchNext(ctx); !errors.Is(err, queue.ErrEmptyQueue) {
		t.Fatalf("expected ErrEmptyQueue, got %v", err)
	}
}
