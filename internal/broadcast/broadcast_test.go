package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/actsim/internal/rebuild"
	"github.com/roach88/actsim/internal/sim"
	"github.com/roach88/actsim/internal/testutil"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	mux := http.NewServeMux()
	mux.HandleFunc(Path, hub.ServeWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, session string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + Path + "?session=" + session
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitSubscribers(t *testing.T, hub *Hub, session string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.Subscribers(session) == n
	}, 2*time.Second, 10*time.Millisecond)
}

func snapshot(sessionID string, codes ...string) sim.State {
	clock := testutil.NewStepClock()
	events := make([]sim.Event, 0, len(codes))
	for i, code := range codes {
		events = append(events, sim.NewDecisionEvent(clock.Now(), i+1, code))
	}
	return rebuild.Rebuild("p-1", sessionID, sim.ModeNoAssistance, testutil.Epoch, events)
}

func TestHub_DeliversToSessionSubscribers(t *testing.T) {
	hub, srv := startHub(t)
	mine := dial(t, srv, "s-1")
	other := dial(t, srv, "s-2")
	waitSubscribers(t, hub, "s-1", 1)
	waitSubscribers(t, hub, "s-2", 1)

	want := snapshot("s-1", "B", "B1")
	require.NoError(t, hub.Publish(Message{Origin: "tab-a", SessionID: "s-1", State: want}))

	mine.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := mine.ReadMessage()
	require.NoError(t, err)

	var got Message
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "tab-a", got.Origin)
	assert.Equal(t, "s-1", got.SessionID)
	assert.Equal(t, want, got.State)

	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = other.ReadMessage()
	assert.Error(t, err, "other session receives nothing")
}

func TestHub_UnregistersClosedConnections(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "s-1")
	waitSubscribers(t, hub, "s-1", 1)

	conn.Close()
	waitSubscribers(t, hub, "s-1", 0)
}

func TestHub_RequiresSession(t *testing.T) {
	_, srv := startHub(t)

	resp, err := http.Get(srv.URL + Path)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHub_PublishAfterStop(t *testing.T) {
	hub := NewHub(slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	// The publish buffer may still accept messages; fill it until the
	// stopped hub is observed.
	var err error
	for i := 0; i < 1000 && err == nil; i++ {
		err = hub.Publish(Message{SessionID: "s-1"})
	}
	assert.Error(t, err)
	assert.Zero(t, hub.Subscribers("s-1"))
}

type recordingReceiver struct {
	mu     sync.Mutex
	states []sim.State
}

func (r *recordingReceiver) Receive(ctx context.Context, state sim.State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return true
}

func (r *recordingReceiver) received() []sim.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sim.State(nil), r.states...)
}

func TestFollower_SkipsOwnOrigin(t *testing.T) {
	hub, srv := startHub(t)
	recv := &recordingReceiver{}
	f, err := NewFollower(srv.URL, "s-1", "tab-a", recv, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- f.Run(ctx) }()
	waitSubscribers(t, hub, "s-1", 1)

	require.NoError(t, hub.Publish(Message{Origin: "tab-a", SessionID: "s-1", State: snapshot("s-1", "A")}))
	require.NoError(t, hub.Publish(Message{Origin: "tab-b", SessionID: "s-1", State: snapshot("s-1", "C")}))

	require.Eventually(t, func() bool { return len(recv.received()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "C", recv.received()[0].Decisions.Act1)

	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("follower did not stop after cancel")
	}
}

func TestFollower_HubShutdownEndsRun(t *testing.T) {
	hub := NewHub(slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	f, err := NewFollower(srv.URL, "s-1", "", &recordingReceiver{}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	// ServeWS is mounted at the root here, so point the follower there.
	f.url = strings.Replace(f.url, Path, "/", 1)

	runErr := make(chan error, 1)
	go func() { runErr <- f.Run(context.Background()) }()
	waitSubscribers(t, hub, "s-1", 1)

	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err, "normal closure is a clean stop")
	case <-time.After(2 * time.Second):
		t.Fatal("follower did not stop after hub shutdown")
	}
}

func TestNewFollower(t *testing.T) {
	f, err := NewFollower("https://example.com/base", "s 1", "", &recordingReceiver{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "wss://example.com/ws?session=s+1", f.URL())

	_, err = NewFollower("http://localhost", "", "", &recordingReceiver{}, nil)
	assert.Error(t, err)

	_, err = NewFollower("ftp://localhost", "s-1", "", &recordingReceiver{}, nil)
	assert.Error(t, err)
}
