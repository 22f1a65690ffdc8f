package spawner

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wardenms/warden/internal/core/events"
	"github.com/wardenms/warden/internal/core/props"
	"github.com/wardenms/warden/internal/core/wire"
	"github.com/wardenms/warden/internal/peer"
)

var (
	ErrAlreadyRegistered   = errors.New("peer already owns a registered spawner")
	ErrNoAvailableSpawners = errors.New("no spawners available for the requested region")
	ErrTaskNotFound        = errors.New("no spawn task with that id")
	ErrNotTaskSpawner      = errors.New("task is owned by a different spawner")
	ErrNotTaskRequester    = errors.New("task was requested by a different peer")
	ErrTaskAborted         = errors.New("spawn task was aborted")
	ErrTaskKilled          = errors.New("spawn process was killed")
)

// Operation names for the notices the registry pushes to peers.
const (
	NoticeSpawnProcess   = "spawner.spawn_process"
	NoticeKillProcess    = "spawner.kill_process"
	NoticeSpawnFinalized = "spawner.spawn_finalized"
	NoticeSpawnAborted   = "spawner.spawn_aborted"
)

// Registry tracks registered spawners and in-flight spawn tasks.
type Registry struct {
	logger *logrus.Logger
	bus    *events.Bus

	mu            sync.RWMutex
	spawners      map[uint32]*Spawner
	tasks         map[string]*Task
	nextSpawnerID uint32
}

func NewRegistry(logger *logrus.Logger, bus *events.Bus) *Registry {
	return &Registry{
		logger:   logger,
		bus:      bus,
		spawners: make(map[uint32]*Spawner),
		tasks:    make(map[string]*Task),
	}
}

// RegisterSpawner creates a Spawner record tied to the peer. A peer may own
// at most one spawner.
func (r *Registry) RegisterSpawner(p *peer.Peer, options Options) (*Spawner, error) {
	if _, ok := p.Extension(peer.ExtensionSpawner); ok {
		return nil, ErrAlreadyRegistered
	}

	r.mu.Lock()
	r.nextSpawnerID++
	s := newSpawner(r.nextSpawnerID, p, options)
	r.spawners[s.id] = s
	r.mu.Unlock()

	p.SetExtension(peer.ExtensionSpawner, s)
	r.logger.Infof("[SPAWNER] registered spawner %d (region=%q, max=%d) for peer %d",
		s.id, options.Region, options.MaxProcesses, p.ID())
	r.bus.Publish(events.Event{Kind: events.SpawnerRegistered, Payload: s})

	return s, nil
}

// RequestSpawn selects an eligible spawner for the requested region and
// creates a spawn task charged against it. Selection prefers the least
// loaded spawner, breaking ties by lowest spawner id.
func (r *Registry) RequestSpawn(p *peer.Peer, options RoomOptions, custom props.Properties) (*Task, error) {
	s := r.selectSpawner(options.Region)
	if s == nil {
		return nil, ErrNoAvailableSpawners
	}

	task := newTask(uuid.NewString(), p, options, custom)
	task.mu.Lock()
	task.spawner = s
	task.mu.Unlock()
	if err := task.transition(StatusProvided); err != nil {
		s.release()
		return nil, err
	}

	r.mu.Lock()
	r.tasks[task.id] = task
	r.mu.Unlock()

	r.logger.Infof("[SPAWNER] task %s assigned to spawner %d (room=%q)",
		task.id, s.id, options.Name)
	r.bus.Publish(events.Event{Kind: events.SpawnStatusChanged, Payload: task})

	if err := s.Owner().Send(spawnProcessNotice(task)); err != nil {
		r.logger.Warnf("[SPAWNER] failed to notify spawner %d of task %s: %v", s.id, task.id, err)
	}
	return task, nil
}

// selectSpawner picks the least-loaded spawner serving the region, reserving
// a process slot on it. Returns nil when none are eligible.
func (r *Registry) selectSpawner(region string) *Spawner {
	r.mu.RLock()
	candidates := make([]*Spawner, 0, len(r.spawners))
	for _, s := range r.spawners {
		if region != "" && s.Region() != region {
			continue
		}
		candidates = append(candidates, s)
	}
	r.mu.RUnlock()

	for {
		var best *Spawner
		for _, s := range candidates {
			if !s.hasCapacity() {
				continue
			}
			if best == nil || s.ProcessCount() < best.ProcessCount() ||
				(s.ProcessCount() == best.ProcessCount() && s.id < best.id) {
				best = s
			}
		}
		if best == nil {
			return nil
		}
		// reserve can lose a race with a concurrent request; retry the scan.
		if best.reserve() {
			return best
		}
	}
}

// RegisterSpawnedProcess records that the spawner has launched the room
// executable for the task.
func (r *Registry) RegisterSpawnedProcess(p *peer.Peer, taskID string) (*Task, error) {
	task, err := r.taskOwnedBy(p, taskID)
	if err != nil {
		return nil, err
	}
	if err := task.transition(StatusProcessRegistered); err != nil {
		return nil, err
	}
	r.bus.Publish(events.Event{Kind: events.SpawnStatusChanged, Payload: task})
	return task, nil
}

// CompleteSpawnProcess finalizes the task and delivers the finalization
// payload back to the original requester.
func (r *Registry) CompleteSpawnProcess(p *peer.Peer, taskID string, finalization props.Properties) error {
	task, err := r.taskOwnedBy(p, taskID)
	if err != nil {
		return err
	}
	if err := task.transition(StatusFinalized); err != nil {
		return err
	}

	r.retireTask(task)
	task.finish(finalization, nil)
	r.bus.Publish(events.Event{Kind: events.SpawnStatusChanged, Payload: task})

	if err := task.Requester().Send(spawnFinalizedNotice(task, finalization)); err != nil {
		r.logger.Warnf("[SPAWNER] failed to deliver finalization for task %s: %v", task.id, err)
	}
	return nil
}

// AbortSpawn cancels an in-flight task at the requester's instruction. The
// owning spawner is told to kill whatever process it may have started.
func (r *Registry) AbortSpawn(p *peer.Peer, taskID string) error {
	task, err := r.task(taskID)
	if err != nil {
		return err
	}
	if task.Requester() != p {
		return ErrNotTaskRequester
	}
	return r.terminate(task, StatusAborted, ErrTaskAborted)
}

// KillProcess is the administrative force-stop of a running process.
func (r *Registry) KillProcess(taskID string) error {
	task, err := r.task(taskID)
	if err != nil {
		return err
	}
	return r.terminate(task, StatusKilled, ErrTaskKilled)
}

func (r *Registry) terminate(task *Task, to Status, cause error) error {
	if err := task.transition(to); err != nil {
		return err
	}

	r.retireTask(task)
	task.finish(nil, cause)
	r.bus.Publish(events.Event{Kind: events.SpawnStatusChanged, Payload: task})

	if s := task.Spawner(); s != nil {
		if err := s.Owner().Send(killProcessNotice(task.id)); err != nil {
			r.logger.Warnf("[SPAWNER] failed to send kill for task %s: %v", task.id, err)
		}
	}
	r.logger.Infof("[SPAWNER] task %s terminated: %s", task.id, to)
	return nil
}

// retireTask removes the task from tracking and returns its process slot.
// Each task passes through here exactly once, which is what guarantees the
// spawner's process count is never double-decremented.
func (r *Registry) retireTask(task *Task) {
	r.mu.Lock()
	delete(r.tasks, task.id)
	r.mu.Unlock()

	if s := task.Spawner(); s != nil {
		s.release()
	}
}

// HandleDisconnect releases everything the departed peer owned: its spawner
// registration (aborting all tasks charged to it, with the requesters
// notified) and any spawn requests it had in flight.
func (r *Registry) HandleDisconnect(p *peer.Peer) {
	if ext, ok := p.Extension(peer.ExtensionSpawner); ok {
		s := ext.(*Spawner)
		r.mu.Lock()
		delete(r.spawners, s.id)
		r.mu.Unlock()
		p.RemoveExtension(peer.ExtensionSpawner)
		r.logger.Infof("[SPAWNER] spawner %d removed (peer %d disconnected)", s.id, p.ID())

		for _, task := range r.tasksAssignedTo(s) {
			if err := task.transition(StatusAborted); err != nil {
				continue
			}
			r.retireTask(task)
			task.finish(nil, fmt.Errorf("%w: spawner disconnected", ErrTaskAborted))
			if err := task.Requester().Send(spawnAbortedNotice(task.id, "spawner disconnected")); err != nil {
				r.logger.Warnf("[SPAWNER] failed to notify requester of aborted task %s: %v", task.id, err)
			}
		}
	}

	for _, task := range r.tasksRequestedBy(p) {
		// Requester is gone; nobody is left to receive the room.
		_ = r.terminate(task, StatusAborted, ErrTaskAborted)
	}
}

// Regions returns the distinct set of regions across registered spawners.
func (r *Registry) Regions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	regions := make([]string, 0)
	for _, s := range r.spawners {
		if !seen[s.Region()] {
			seen[s.Region()] = true
			regions = append(regions, s.Region())
		}
	}
	return regions
}

// SpawnerCount returns the number of registered spawners.
func (r *Registry) SpawnerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.spawners)
}

func (r *Registry) task(taskID string) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

func (r *Registry) taskOwnedBy(p *peer.Peer, taskID string) (*Task, error) {
	task, err := r.task(taskID)
	if err != nil {
		return nil, err
	}
	s := task.Spawner()
	if s == nil || s.Owner() != p {
		return nil, ErrNotTaskSpawner
	}
	return task, nil
}

func (r *Registry) tasksAssignedTo(s *Spawner) []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var tasks []*Task
	for _, task := range r.tasks {
		if task.Spawner() == s {
			tasks = append(tasks, task)
		}
	}
	return tasks
}

func (r *Registry) tasksRequestedBy(p *peer.Peer) []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var tasks []*Task
	for _, task := range r.tasks {
		if task.Requester() == p {
			tasks = append(tasks, task)
		}
	}
	return tasks
}

func spawnProcessNotice(task *Task) *wire.Message {
	var w wire.Writer
	w.WriteString(task.ID())
	w.WriteString(task.options.Name)
	w.WriteUint32(uint32(task.options.MaxPlayers))
	w.WriteString(task.options.Region)
	w.WriteString(task.options.Password)
	w.WriteBool(task.options.IsPublic)
	w.WriteStringMap(task.options.Properties)
	w.WriteStringMap(task.custom)
	return wire.NewNotice(NoticeSpawnProcess, w.Bytes())
}

func spawnFinalizedNotice(task *Task, finalization props.Properties) *wire.Message {
	var w wire.Writer
	w.WriteString(task.ID())
	w.WriteStringMap(finalization)
	return wire.NewNotice(NoticeSpawnFinalized, w.Bytes())
}

func spawnAbortedNotice(taskID, reason string) *wire.Message {
	var w wire.Writer
	w.WriteString(taskID)
	w.WriteString(reason)
	return wire.NewNotice(NoticeSpawnAborted, w.Bytes())
}

func killProcessNotice(taskID string) *wire.Message {
	var w wire.Writer
	w.WriteString(taskID)
	return wire.NewNotice(NoticeKillProcess, w.Bytes())
}
