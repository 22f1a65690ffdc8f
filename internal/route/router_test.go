package route

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/wardenms/warden/internal/core/wire"
	"github.com/wardenms/warden/internal/peer"
)

func newTestRouter() (*Router, *peer.Registry) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewRouter(logger), peer.NewRegistry()
}

func dispatchRequest(t *testing.T, r *Router, peers *peer.Registry, m *wire.Message) *wire.Message {
	t.Helper()
	var buf bytes.Buffer
	p := peers.Add("10.0.0.1:5000", &buf)

	r.Dispatch(context.Background(), p, m)

	response, err := wire.Decode(&buf)
	if err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return response
}

func TestDispatchRoutesRequestToHandler(t *testing.T) {
	r, peers := newTestRouter()
	r.Handle("echo", func(_ context.Context, _ *peer.Peer, m *wire.Message) ([]byte, error) {
		return m.Payload, nil
	})

	request := wire.NewRequest("echo", 42, []byte("ping"))
	response := dispatchRequest(t, r, peers, request)

	if response.Status != wire.StatusSuccess {
		t.Errorf("response status = %s, want Success", response.Status)
	}
	if response.Seq != 42 || response.Op != request.Op {
		t.Errorf("response did not echo op/seq: op=%#x seq=%d", response.Op, response.Seq)
	}
	if string(response.Payload) != "ping" {
		t.Errorf("response payload = %q, want %q", response.Payload, "ping")
	}
}

func TestDispatchAnswersUnknownRequestsNotHandled(t *testing.T) {
	r, peers := newTestRouter()

	response := dispatchRequest(t, r, peers, wire.NewRequest("no.such.op", 1, nil))
	if response.Status != wire.StatusNotHandled {
		t.Errorf("response status = %s, want NotHandled", response.Status)
	}
}

func TestDispatchMapsHandlerErrorsToStatuses(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus wire.Status
		wantMsg    string
	}{
		{name: "bare error", err: errors.New("room full"), wantStatus: wire.StatusFailed, wantMsg: "Room full"},
		{name: "unauthorized", err: Unauthorized(errors.New("only the game-master may do that")), wantStatus: wire.StatusUnauthorized, wantMsg: "Only the game-master may do that"},
		{name: "not found", err: NotFound(errors.New("no room with that id")), wantStatus: wire.StatusNotFound, wantMsg: "No room with that id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, peers := newTestRouter()
			r.Handle("op", func(context.Context, *peer.Peer, *wire.Message) ([]byte, error) {
				return nil, tt.err
			})

			response := dispatchRequest(t, r, peers, wire.NewRequest("op", 1, nil))
			if response.Status != tt.wantStatus {
				t.Errorf("response status = %s, want %s", response.Status, tt.wantStatus)
			}
			msg, err := wire.NewReader(response.Payload).ReadString()
			if err != nil {
				t.Fatalf("failed to read error message: %v", err)
			}
			if msg != tt.wantMsg {
				t.Errorf("error message = %q, want %q", msg, tt.wantMsg)
			}
		})
	}
}

func TestDispatchRecoversHandlerPanics(t *testing.T) {
	r, peers := newTestRouter()
	r.Handle("boom", func(context.Context, *peer.Peer, *wire.Message) ([]byte, error) {
		panic("handler bug")
	})

	response := dispatchRequest(t, r, peers, wire.NewRequest("boom", 1, nil))
	if response.Status != wire.StatusError {
		t.Errorf("response status = %s, want Error", response.Status)
	}
}

func TestDispatchDoesNotRespondToNotices(t *testing.T) {
	r, peers := newTestRouter()
	called := false
	r.Handle("fire.and.forget", func(context.Context, *peer.Peer, *wire.Message) ([]byte, error) {
		called = true
		return nil, errors.New("ignored")
	})

	var buf bytes.Buffer
	p := peers.Add("10.0.0.1:5000", &buf)
	r.Dispatch(context.Background(), p, wire.NewNotice("fire.and.forget", nil))

	if !called {
		t.Error("notice handler was not invoked")
	}
	if buf.Len() != 0 {
		t.Errorf("notice produced %d bytes of response, want none", buf.Len())
	}
}
