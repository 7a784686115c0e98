package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Server exposes a hub of trajectory updates over websocket to any number of
// observing clients. It has no notion of the master or the coupling graph
// producing the updates; it only relays what it is handed.
type Server struct {
	addr      string
	hub       *Hub
	startedAt time.Time
}

// NewServer wires addr to hub. The caller owns hub's lifetime (feed it via
// NewHub before or after constructing the server).
func NewServer(addr string, hub *Hub) *Server {
	return &Server{addr: addr, hub: hub, startedAt: time.Now()}
}

// Serve blocks serving http until ctx is cancelled or an unrecoverable error
// occurs. Routes are registered through gorilla/mux so additional endpoints
// (health, replay) can be added without colliding on "/".
func (s *Server) Serve(ctx context.Context) error {
	router := mux.NewRouter()
	router.HandleFunc("/ws", s.serveWebsocket).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.serveHealth).Methods(http.MethodGet)

	httpServer := &http.Server{
		Addr:    s.addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("monitor: serve: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// serveWebsocket upgrades the request and streams trajectory updates to it
// until the peer disconnects or the hub itself shuts down.
func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	updates, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	cli, err := newClient(updates, w, r)
	if err != nil {
		log.Println("monitor: upgrade failed:", err)
		return
	}

	if err := cli.Sync(r.Context()); err != nil {
		log.Println("monitor: client closed:", err)
	}
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		UptimeSeconds float64 `json:"uptime_seconds"`
	}{UptimeSeconds: time.Since(s.startedAt).Seconds()})
}
