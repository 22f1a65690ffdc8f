package peer

import (
	"bytes"
	"io"
	"testing"

	"github.com/wardenms/warden/internal/core/wire"
)

func newTestNotice() *wire.Message {
	return wire.NewNotice("peer.test", []byte("payload"))
}

func TestRegistryAssignsUniqueIDs(t *testing.T) {
	registry := NewRegistry()

	a := registry.Add("10.0.0.1:5000", io.Discard)
	b := registry.Add("10.0.0.2:5000", io.Discard)

	if a.ID() == b.ID() {
		t.Errorf("two peers share id %d", a.ID())
	}
	if registry.Count() != 2 {
		t.Errorf("Count() = %d, want 2", registry.Count())
	}
}

func TestRemoveFiresDisconnectHooksOnce(t *testing.T) {
	registry := NewRegistry()

	var fired []uint64
	registry.OnDisconnect(func(p *Peer) { fired = append(fired, p.ID()) })

	p := registry.Add("10.0.0.1:5000", io.Discard)
	registry.Remove(p)
	registry.Remove(p)

	if len(fired) != 1 || fired[0] != p.ID() {
		t.Errorf("disconnect hooks fired %v, want exactly one firing for peer %d", fired, p.ID())
	}
	if _, ok := registry.Get(p.ID()); ok {
		t.Error("removed peer still retrievable from registry")
	}
}

func TestExtensionsAttachAndDetach(t *testing.T) {
	registry := NewRegistry()
	p := registry.Add("10.0.0.1:5000", io.Discard)

	if _, ok := p.Extension(ExtensionSpawner); ok {
		t.Fatal("fresh peer already has a spawner extension")
	}

	p.SetExtension(ExtensionSpawner, "spawner-record")
	v, ok := p.Extension(ExtensionSpawner)
	if !ok || v != "spawner-record" {
		t.Fatalf("Extension() = (%v, %v), want the attached value", v, ok)
	}

	p.RemoveExtension(ExtensionSpawner)
	if _, ok := p.Extension(ExtensionSpawner); ok {
		t.Error("extension still attached after removal")
	}
}

func TestSendWritesFramedMessage(t *testing.T) {
	registry := NewRegistry()
	var buf bytes.Buffer
	p := registry.Add("10.0.0.1:5000", &buf)

	if err := p.Send(newTestNotice()); err != nil {
		t.Fatalf("Send() returned an unexpected error: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("Send() wrote nothing to the connection")
	}
}
