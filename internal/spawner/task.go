package spawner

import (
	"context"
	"fmt"
	"sync"

	"github.com/wardenms/warden/internal/core/props"
	"github.com/wardenms/warden/internal/peer"
)

// Status tracks a spawn task through its lifecycle.
type Status int

const (
	StatusNone Status = iota
	StatusQueued
	StatusProvided
	StatusProcessRegistered
	StatusFinalized
	StatusAborted
	StatusKilled
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "None"
	case StatusQueued:
		return "Queued"
	case StatusProvided:
		return "Provided"
	case StatusProcessRegistered:
		return "ProcessRegistered"
	case StatusFinalized:
		return "Finalized"
	case StatusAborted:
		return "Aborted"
	case StatusKilled:
		return "Killed"
	}
	return "Unknown"
}

// terminal reports whether no further transitions are possible.
func (s Status) terminal() bool {
	return s == StatusFinalized || s == StatusAborted || s == StatusKilled
}

// RoomOptions describes the room a requester wants spawned.
type RoomOptions struct {
	Name       string
	MaxPlayers int
	Region     string
	Password   string
	IsPublic   bool
	Properties props.Properties
}

// Task is one in-flight request to start a room process. Exactly one spawner
// owns a task at a time.
type Task struct {
	id        string
	requester *peer.Peer
	options   RoomOptions
	custom    props.Properties

	mu           sync.Mutex
	spawner      *Spawner
	status       Status
	finalization props.Properties
	err          error
	done         chan struct{}
}

func newTask(id string, requester *peer.Peer, options RoomOptions, custom props.Properties) *Task {
	return &Task{
		id:        id,
		requester: requester,
		options:   options,
		custom:    custom.Clone(),
		status:    StatusQueued,
		done:      make(chan struct{}),
	}
}

func (t *Task) ID() string              { return t.id }
func (t *Task) Requester() *peer.Peer   { return t.requester }
func (t *Task) Options() RoomOptions    { return t.options }
func (t *Task) Custom() props.Properties { return t.custom }

func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Spawner returns the spawner the task has been assigned to, if any.
func (t *Task) Spawner() *Spawner {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spawner
}

// transition advances the task's status, validating that the move is legal.
func (t *Task) transition(to Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.terminal() {
		return fmt.Errorf("task %s already %s", t.id, t.status)
	}

	legal := false
	switch to {
	case StatusProvided:
		legal = t.status == StatusQueued
	case StatusProcessRegistered:
		legal = t.status == StatusProvided
	case StatusFinalized:
		legal = t.status == StatusProcessRegistered
	case StatusAborted, StatusKilled:
		legal = true
	}
	if !legal {
		return fmt.Errorf("task %s cannot move from %s to %s", t.id, t.status, to)
	}

	t.status = to
	return nil
}

// finish resolves the task for any waiters. Safe to call at most once; the
// registry guarantees that by only finishing on terminal transitions.
func (t *Task) finish(finalization props.Properties, err error) {
	t.mu.Lock()
	t.finalization = finalization
	t.err = err
	t.mu.Unlock()
	close(t.done)
}

// WaitFinalized blocks until the task is finalized, aborted, or ctx expires.
// On success it returns the finalization payload the spawner reported.
func (t *Task) WaitFinalized(ctx context.Context) (props.Properties, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("spawn request %s timed out: %w", t.id, ctx.Err())
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.finalization, t.err
	}
}
