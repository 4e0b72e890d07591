package queue

import "errors"

var (
	// ErrStorageUnavailable is returned when the queue database cannot be
	// opened or initialized.
	ErrStorageUnavailable = errors.New("queue storage unavailable")
	// ErrEmptyQueue is returned by FetchNext and Claim when nothing is pending.
	ErrEmptyQueue = errors.New("queue is empty")
	// ErrUnknownIdentity is returned when a command id has no stored record.
	ErrUnknownIdentity = errors.New("unknown command identity")
	// ErrAlreadyCompleted is returned by Commit when the record was completed
	// elsewhere; its follow-ups are discarded.
	ErrAlreadyCompleted = errors.New("command already completed")
)
