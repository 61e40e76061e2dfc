package roomserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BioHazard786/watchsync/internal/media"
	"github.com/BioHazard786/watchsync/internal/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// identityHeader is set by an authenticating proxy in front of the server.
	identityHeader = "Cf-Access-Authenticated-User-Email"

	defaultUser = "Guest"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16 * 1024,
	WriteBufferSize: 16 * 1024,

	// Players are embedded in arbitrary pages.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewHandler returns the HTTP routes backed by hub.
func NewHandler(hub *Hub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{room}", ServeWs(hub))
	mux.HandleFunc("GET /api/rooms", serveRooms(hub))
	mux.HandleFunc("GET /api/resolve", serveResolve)
	mux.HandleFunc("GET /health", healthCheckHandler)
	return mux
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Room server is healthy."))
}

// identity picks the user name for a request: proxy header, then the user
// query parameter, then a guest name.
func identity(r *http.Request) string {
	if user := strings.TrimSpace(r.Header.Get(identityHeader)); user != "" {
		return user
	}
	if user := strings.TrimSpace(r.URL.Query().Get("user")); user != "" {
		return user
	}
	return defaultUser
}

// ServeWs upgrades a request on /ws/{room} and attaches it to the hub.
func ServeWs(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := strings.TrimSpace(r.PathValue("room"))
		if roomID == "" {
			writeDetail(w, http.StatusBadRequest, "room id is required")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("Failed to upgrade connection", "error", err)
			return
		}

		client := newClient(hub, conn, uuid.NewString(), roomID, identity(r))
		if !hub.join(client) {
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}

func serveRooms(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms, err := hub.Rooms(r.Context())
		if err != nil {
			writeDetail(w, http.StatusServiceUnavailable, "server is shutting down")
			return
		}
		writeJSON(w, http.StatusOK, rooms)
	}
}

// serveResolve returns a descriptor that plays the URL as given. Page URLs
// need a real extractor, so their stream URL is left empty.
func serveResolve(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	src, err := media.ValidateURL(raw)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	v := protocol.VideoData{
		OriginalURL:   raw,
		Title:         src.Host,
		BackendEngine: "passthrough",
	}
	switch src.Kind {
	case media.KindHLS, media.KindDASH, media.KindFile:
		v.StreamURL = src.URL
		v.StreamType = string(src.Kind)
	}

	writeJSON(w, http.StatusOK, v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}
