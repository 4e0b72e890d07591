package queue

import (
	"context"
	"errors"
	"fmt"

	"crawlq/internal/command"
)

// DecodeError reports a stored record whose payload cannot be turned back into
// a command. It wraps command.ErrSerialization.
type DecodeError struct {
	ID   int64
	Kind string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode command %d (%s): %v", e.ID, e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Queue stores commands in a Store. It is safe for concurrent use.
type Queue struct {
	store *Store
}

// New returns a Queue backed by store.
func New(store *Store) *Queue {
	return &Queue{store: store}
}

// Store exposes the underlying record store.
func (q *Queue) Store() *Store {
	return q.store
}

// Enqueue persists cmd as a pending record and assigns its identity.
func (q *Queue) Enqueue(ctx context.Context, cmd command.Command) (int64, error) {
	kind, payload, err := command.Encode(cmd)
	if err != nil {
		return 0, err
	}
	if cmd.ID() != 0 {
		return 0, fmt.Errorf("enqueue: %w: command %d is already stored", command.ErrIdentityAssigned, cmd.ID())
	}
	id, err := q.store.Insert(ctx, string(kind), payload)
	if err != nil {
		return 0, err
	}
	if err := cmd.AssignID(id); err != nil {
		return 0, err
	}
	return id, nil
}

// IsEmpty reports whether no pending record exists.
func (q *Queue) IsEmpty(ctx context.Context) (bool, error) {
	count, err := q.store.CountPending(ctx)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// FetchNext returns the oldest pending command without claiming it.
// It returns ErrEmptyQueue when nothing is pending.
func (q *Queue) FetchNext(ctx context.Context) (command.Command, error) {
	rec, err := q.store.NextPending(ctx)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrEmptyQueue
	}
	return restore(rec)
}

// Claim marks the oldest command not already failed in runID as in flight and
// returns it. It returns ErrEmptyQueue when nothing is claimable.
func (q *Queue) Claim(ctx context.Context, runID, workerID string) (command.Command, error) {
	rec, err := q.store.Claim(ctx, runID, workerID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrEmptyQueue
	}
	return restore(rec)
}

// MarkComplete sets the command's record to completed.
func (q *Queue) MarkComplete(ctx context.Context, cmd command.Command) error {
	id, err := identity(cmd)
	if err != nil {
		return err
	}
	return q.store.Complete(ctx, id)
}

// Commit persists the outcome of executing cmd and completes it, all in one
// transaction. Follow-ups receive their identities on success.
func (q *Queue) Commit(ctx context.Context, cmd command.Command, outcome command.Outcome) error {
	id, err := identity(cmd)
	if err != nil {
		return err
	}
	followUps := make([]FollowUp, 0, len(outcome.FollowUps))
	for _, f := range outcome.FollowUps {
		if f == nil {
			return fmt.Errorf("%w: nil follow-up from command %d", command.ErrSerialization, id)
		}
		if f.ID() != 0 {
			return fmt.Errorf("follow-up of command %d: %w: already stored as %d", id, command.ErrIdentityAssigned, f.ID())
		}
		kind, payload, err := command.Encode(f)
		if err != nil {
			return fmt.Errorf("follow-up of command %d: %w", id, err)
		}
		followUps = append(followUps, FollowUp{Kind: string(kind), Payload: payload})
	}
	results := make([]ResultRecord, 0, len(outcome.Results))
	for _, r := range outcome.Results {
		results = append(results, ResultRecord{
			URL:    r.URL,
			Title:  r.Title,
			Genre:  r.Genre,
			Year:   r.Year,
			Rating: r.Rating,
		})
	}

	ids, err := q.store.CompleteWithFollowUps(ctx, id, followUps, results)
	if err != nil {
		return err
	}
	for i, f := range outcome.FollowUps {
		if err := f.AssignID(ids[i]); err != nil {
			return err
		}
	}
	return nil
}

// Fail returns cmd to pending, recording cause against runID.
func (q *Queue) Fail(ctx context.Context, cmd command.Command, runID string, cause error) error {
	id, err := identity(cmd)
	if err != nil {
		return err
	}
	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}
	return q.store.Fail(ctx, id, runID, message)
}

// HasClaimable reports whether Claim would return a command for runID.
func (q *Queue) HasClaimable(ctx context.Context, runID string) (bool, error) {
	return q.store.HasClaimable(ctx, runID)
}

// InFlightCount returns the number of commands runID currently holds.
func (q *Queue) InFlightCount(ctx context.Context, runID string) (int, error) {
	return q.store.InFlightCount(ctx, runID)
}

func identity(cmd command.Command) (int64, error) {
	if command.IsNil(cmd) {
		return 0, errors.New("nil command")
	}
	if cmd.ID() == 0 {
		return 0, fmt.Errorf("%w: command has no identity", ErrUnknownIdentity)
	}
	return cmd.ID(), nil
}

func restore(rec *Record) (command.Command, error) {
	cmd, err := command.Decode(command.Kind(rec.Kind), rec.Payload)
	if err != nil {
		return nil, &DecodeError{ID: rec.ID, Kind: rec.Kind, Err: err}
	}
	if err := cmd.AssignID(rec.ID); err != nil {
		return nil, err
	}
	return cmd, nil
}
