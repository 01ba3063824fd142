package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/roach88/actsim/internal/sim"
)

// Receiver adopts snapshots written by other clients of the same session.
type Receiver interface {
	Receive(ctx context.Context, state sim.State) bool
}

// Follower subscribes to one session's broadcasts and forwards them to a
// Receiver.
type Follower struct {
	url      string
	session  string
	origin   string
	receiver Receiver
	dialer   *websocket.Dialer
	logger   *slog.Logger
}

// NewFollower creates a Follower for sessionID on the server at baseURL
// (http or https). Messages whose origin equals origin are skipped.
func NewFollower(baseURL, sessionID, origin string, receiver Receiver, logger *slog.Logger) (*Follower, error) {
	if sessionID == "" {
		return nil, errors.New("follower: preview runs have no session to follow")
	}
	wsURL, err := websocketURL(baseURL, sessionID)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Follower{
		url:      wsURL,
		session:  sessionID,
		origin:   origin,
		receiver: receiver,
		dialer:   websocket.DefaultDialer,
		logger:   logger,
	}, nil
}

// URL returns the websocket URL the follower dials.
func (f *Follower) URL() string {
	return f.url
}

func websocketURL(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("follower: parse url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("follower: unsupported scheme %q", u.Scheme)
	}
	u.Path = Path
	u.RawQuery = url.Values{SessionParam: {sessionID}}.Encode()
	return u.String(), nil
}

// Run follows the session until ctx is cancelled or the connection drops.
// It returns nil after cancellation.
func (f *Follower) Run(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("follower: dial %s: %w", f.url, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	f.logger.Debug("following session", "session_id", f.session)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("follower: read: %w", err)
		}
		f.handle(ctx, data)
	}
}

func (f *Follower) handle(ctx context.Context, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		f.logger.Warn("broadcast message malformed, ignoring", "error", err)
		return
	}
	if msg.SessionID != f.session {
		return
	}
	if f.origin != "" && msg.Origin == f.origin {
		return
	}
	adopted := f.receiver.Receive(ctx, msg.State)
	f.logger.Debug("broadcast received",
		"session_id", msg.SessionID,
		"origin", msg.Origin,
		"adopted", adopted,
	)
}
