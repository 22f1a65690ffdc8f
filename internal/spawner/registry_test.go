package spawner

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wardenms/warden/internal/core/events"
	"github.com/wardenms/warden/internal/core/props"
	"github.com/wardenms/warden/internal/peer"
)

func newTestRegistry() (*Registry, *peer.Registry) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewRegistry(logger, events.NewBus(logger)), peer.NewRegistry()
}

func addPeer(peers *peer.Registry) *peer.Peer {
	return peers.Add("10.0.0.1:5000", io.Discard)
}

func registerSpawner(t *testing.T, r *Registry, p *peer.Peer, region string, max int) *Spawner {
	t.Helper()
	s, err := r.RegisterSpawner(p, Options{Region: region, MaxProcesses: max})
	if err != nil {
		t.Fatalf("RegisterSpawner() returned an unexpected error: %v", err)
	}
	return s
}

func TestRegisterSpawnerRejectsSecondRegistration(t *testing.T) {
	r, peers := newTestRegistry()
	p := addPeer(peers)

	registerSpawner(t, r, p, "eu", 4)
	if _, err := r.RegisterSpawner(p, Options{Region: "us", MaxProcesses: 2}); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("second RegisterSpawner() error = %v, want ErrAlreadyRegistered", err)
	}
}

func TestRequestSpawnSelection(t *testing.T) {
	tests := []struct {
		name       string
		region     string
		wantErr    error
		wantRegion string
	}{
		{name: "matches requested region", region: "us", wantRegion: "us"},
		{name: "empty region matches any", region: "", wantRegion: "eu"},
		{name: "unknown region fails", region: "ap", wantErr: ErrNoAvailableSpawners},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, peers := newTestRegistry()
			// The eu spawner is idle, the us spawner busy, so a regionless
			// request should prefer eu.
			registerSpawner(t, r, addPeer(peers), "eu", 4)
			us := registerSpawner(t, r, addPeer(peers), "us", 4)
			us.reserve()

			task, err := r.RequestSpawn(addPeer(peers), RoomOptions{Name: "Arena1", Region: tt.region}, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("RequestSpawn() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if got := task.Spawner().Region(); got != tt.wantRegion {
				t.Errorf("assigned spawner region = %q, want %q", got, tt.wantRegion)
			}
		})
	}
}

func TestRequestSpawnFailsWhenAllAtCapacity(t *testing.T) {
	r, peers := newTestRegistry()
	registerSpawner(t, r, addPeer(peers), "eu", 1)

	if _, err := r.RequestSpawn(addPeer(peers), RoomOptions{Name: "a"}, nil); err != nil {
		t.Fatalf("first RequestSpawn() returned an unexpected error: %v", err)
	}
	if _, err := r.RequestSpawn(addPeer(peers), RoomOptions{Name: "b"}, nil); !errors.Is(err, ErrNoAvailableSpawners) {
		t.Errorf("RequestSpawn() at capacity error = %v, want ErrNoAvailableSpawners", err)
	}
}

// The assigned spawner's process count must rise by one on assignment and
// return to its prior value after every terminal state.
func TestProcessCountRoundTrip(t *testing.T) {
	terminals := []struct {
		name      string
		terminate func(t *testing.T, r *Registry, spawnerPeer, requester *peer.Peer, task *Task)
	}{
		{
			name: "finalized",
			terminate: func(t *testing.T, r *Registry, spawnerPeer, requester *peer.Peer, task *Task) {
				if _, err := r.RegisterSpawnedProcess(spawnerPeer, task.ID()); err != nil {
					t.Fatalf("RegisterSpawnedProcess() error: %v", err)
				}
				if err := r.CompleteSpawnProcess(spawnerPeer, task.ID(), nil); err != nil {
					t.Fatalf("CompleteSpawnProcess() error: %v", err)
				}
			},
		},
		{
			name: "aborted",
			terminate: func(t *testing.T, r *Registry, spawnerPeer, requester *peer.Peer, task *Task) {
				if err := r.AbortSpawn(requester, task.ID()); err != nil {
					t.Fatalf("AbortSpawn() error: %v", err)
				}
			},
		},
		{
			name: "killed",
			terminate: func(t *testing.T, r *Registry, spawnerPeer, requester *peer.Peer, task *Task) {
				if err := r.KillProcess(task.ID()); err != nil {
					t.Fatalf("KillProcess() error: %v", err)
				}
			},
		},
	}
	for _, tt := range terminals {
		t.Run(tt.name, func(t *testing.T) {
			r, peers := newTestRegistry()
			spawnerPeer := addPeer(peers)
			s := registerSpawner(t, r, spawnerPeer, "eu", 4)

			before := s.ProcessCount()
			requester := addPeer(peers)
			task, err := r.RequestSpawn(requester, RoomOptions{Name: "Arena1"}, nil)
			if err != nil {
				t.Fatalf("RequestSpawn() error: %v", err)
			}
			if got := s.ProcessCount(); got != before+1 {
				t.Fatalf("process count after assignment = %d, want %d", got, before+1)
			}

			tt.terminate(t, r, spawnerPeer, requester, task)
			if got := s.ProcessCount(); got != before {
				t.Errorf("process count after %s = %d, want %d", tt.name, got, before)
			}
		})
	}
}

func TestSpawnLifecycleDeliversFinalizationData(t *testing.T) {
	r, peers := newTestRegistry()
	spawnerPeer := addPeer(peers)
	registerSpawner(t, r, spawnerPeer, "eu", 8)

	requester := addPeer(peers)
	task, err := r.RequestSpawn(requester, RoomOptions{Name: "Arena1", MaxPlayers: 8}, nil)
	if err != nil {
		t.Fatalf("RequestSpawn() error: %v", err)
	}

	if _, err := r.RegisterSpawnedProcess(spawnerPeer, task.ID()); err != nil {
		t.Fatalf("RegisterSpawnedProcess() error: %v", err)
	}
	if got := task.Status(); got != StatusProcessRegistered {
		t.Fatalf("task status = %s, want ProcessRegistered", got)
	}

	finalization := props.Properties{"ip": "10.1.2.3", "port": "7777"}
	if err := r.CompleteSpawnProcess(spawnerPeer, task.ID(), finalization); err != nil {
		t.Fatalf("CompleteSpawnProcess() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := task.WaitFinalized(ctx)
	if err != nil {
		t.Fatalf("WaitFinalized() error: %v", err)
	}
	if got["ip"] != "10.1.2.3" || got["port"] != "7777" {
		t.Errorf("finalization data = %v, want ip/port to round trip", got)
	}
	if task.Status() != StatusFinalized {
		t.Errorf("task status = %s, want Finalized", task.Status())
	}
}

func TestRegisterSpawnedProcessRejectsWrongPeer(t *testing.T) {
	r, peers := newTestRegistry()
	registerSpawner(t, r, addPeer(peers), "eu", 8)

	task, err := r.RequestSpawn(addPeer(peers), RoomOptions{Name: "Arena1"}, nil)
	if err != nil {
		t.Fatalf("RequestSpawn() error: %v", err)
	}

	imposter := addPeer(peers)
	if _, err := r.RegisterSpawnedProcess(imposter, task.ID()); !errors.Is(err, ErrNotTaskSpawner) {
		t.Errorf("RegisterSpawnedProcess() by imposter error = %v, want ErrNotTaskSpawner", err)
	}
}

func TestAbortSpawnRejectsNonRequester(t *testing.T) {
	r, peers := newTestRegistry()
	registerSpawner(t, r, addPeer(peers), "eu", 8)

	task, err := r.RequestSpawn(addPeer(peers), RoomOptions{Name: "Arena1"}, nil)
	if err != nil {
		t.Fatalf("RequestSpawn() error: %v", err)
	}

	if err := r.AbortSpawn(addPeer(peers), task.ID()); !errors.Is(err, ErrNotTaskRequester) {
		t.Errorf("AbortSpawn() by non-requester error = %v, want ErrNotTaskRequester", err)
	}
}

func TestSpawnerDisconnectAbortsPendingTasks(t *testing.T) {
	r, peers := newTestRegistry()
	spawnerPeer := addPeer(peers)
	registerSpawner(t, r, spawnerPeer, "eu", 8)

	task, err := r.RequestSpawn(addPeer(peers), RoomOptions{Name: "Arena1"}, nil)
	if err != nil {
		t.Fatalf("RequestSpawn() error: %v", err)
	}

	r.HandleDisconnect(spawnerPeer)

	if got := task.Status(); got != StatusAborted {
		t.Errorf("task status after spawner disconnect = %s, want Aborted", got)
	}
	if r.SpawnerCount() != 0 {
		t.Errorf("SpawnerCount() = %d, want 0 after disconnect", r.SpawnerCount())
	}

	// The waiter must be resolved with an error, not left hanging.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := task.WaitFinalized(ctx); !errors.Is(err, ErrTaskAborted) {
		t.Errorf("WaitFinalized() error = %v, want ErrTaskAborted", err)
	}
}

func TestWaitFinalizedTimesOut(t *testing.T) {
	r, peers := newTestRegistry()
	registerSpawner(t, r, addPeer(peers), "eu", 8)

	task, err := r.RequestSpawn(addPeer(peers), RoomOptions{Name: "Arena1"}, nil)
	if err != nil {
		t.Fatalf("RequestSpawn() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := task.WaitFinalized(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitFinalized() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestRegions(t *testing.T) {
	r, peers := newTestRegistry()

	if got := r.Regions(); len(got) != 0 {
		t.Fatalf("Regions() with no spawners = %v, want empty", got)
	}

	registerSpawner(t, r, addPeer(peers), "eu", 4)
	registerSpawner(t, r, addPeer(peers), "us", 4)
	registerSpawner(t, r, addPeer(peers), "eu", 4)

	got := r.Regions()
	if len(got) != 2 {
		t.Errorf("Regions() = %v, want exactly the distinct set {eu, us}", got)
	}
	seen := map[string]bool{}
	for _, region := range got {
		seen[region] = true
	}
	if !seen["eu"] || !seen["us"] {
		t.Errorf("Regions() = %v, missing a registered region", got)
	}
}
