package transport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"chat-core/dispatch"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The browser client is served from elsewhere; origin policy is the
	// deployment's concern, not this process's.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewRouter wires the websocket endpoint and the read-only blob file
// server. ctx is the process lifetime, not the upgrade request's: a
// connection outlives its HTTP handler.
func NewRouter(ctx context.Context, dispatcher *dispatch.Dispatcher, blobDir string,
	bufferSize int, log *slog.Logger) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			log.Warn("Websocket upgrade failed", "error", err)
			return
		}
		client := NewClient(conn, dispatcher, bufferSize, log)
		go client.Run(ctx)
	})

	r.PathPrefix("/blobs/").Handler(
		http.StripPrefix("/blobs/", http.FileServer(http.Dir(blobDir))))

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return r
}
