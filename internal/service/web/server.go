package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"stealthgate/internal/engine/controller"
	"stealthgate/internal/shared/logger"
	"stealthgate/internal/shared/types"
)

// StatusProvider yields the current engine snapshot for the status API.
type StatusProvider interface {
	Snapshot() *controller.Snapshot
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// basicAuthMiddleware enforces HTTP Basic Authentication when a web user and
// password are configured; otherwise the handler passes through untouched.
func basicAuthMiddleware(next http.Handler, user, pass string) http.Handler {
	if user == "" || pass == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthorized.\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StartServer runs the status service: a JSON snapshot endpoint plus a
// websocket feed of the same snapshots. Disabled when the port is unset.
// The returned server (nil when disabled) must be shut down by the caller
// before waiting on wg, or the serving goroutine never exits.
func StartServer(wg *sync.WaitGroup, cfg types.WebConf, provider StatusProvider, hub *Hub) *http.Server {
	if cfg.Port <= 0 {
		logger.Info().Msg("Status web service is disabled (web port is 0 or not set).")
		return nil
	}

	mux := http.NewServeMux()

	mux.Handle("/api/status", basicAuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(provider.Snapshot()); err != nil {
			logger.Warn().Err(err).Msg("Failed to encode status snapshot.")
		}
	}), cfg.User, cfg.Password))

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn().Err(err).Msg("WebSocket upgrade failed.")
			return
		}
		hub.register <- conn

		// Read pump: clients send nothing meaningful, but reading detects
		// disconnects.
		go func() {
			defer func() { hub.unregister <- conn }()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info().Str("addr", srv.Addr).Msg("Status web service listening.")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Status web service exited.")
		}
	}()
	return srv
}
