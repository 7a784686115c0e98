package monitor

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

// writeWait bounds how long a single trajectory update may take to write to
// a peer before the connection is considered stuck.
const writeWait = 1 * time.Second

var upgrader = websocket.Upgrader{}

// client streams TrajectoryUpdate samples to a single websocket peer. The
// monitor feed is one-directional and Hub already drops samples a slow
// subscriber can't keep up with (its send is non-blocking), so client needs
// no read loop, ping/pong keep-alive, or read/write serialization: there is
// only ever one writer and nothing meaningful for the peer to send back.
type client struct {
	updates <-chan TrajectoryUpdate
	ws      *websocket.Conn
}

// newClient upgrades r to a websocket and returns a publisher fed by updates.
func newClient(updates <-chan TrajectoryUpdate, w http.ResponseWriter, r *http.Request) (*client, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, err
	}
	return &client{updates: updates, ws: ws}, nil
}

// Sync writes every update it receives to the peer as JSON until updates
// closes, ctx is cancelled, or a write fails.
func (cli *client) Sync(ctx context.Context) error {
	defer cli.ws.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-cli.updates:
			if !ok {
				return nil
			}
			if err := cli.write(update); err != nil {
				return err
			}
		}
	}
}

func (cli *client) write(update TrajectoryUpdate) error {
	payload, err := jsoniter.Marshal(update)
	if err != nil {
		return fmt.Errorf("monitor: marshal update: %w", err)
	}
	if err := cli.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("monitor: set write deadline: %w", err)
	}
	if err := cli.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("monitor: write update: %w", err)
	}
	return nil
}
