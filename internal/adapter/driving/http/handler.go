package http

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/Wyydra/callrelay/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/callrelay/internal/config"
	"github.com/Wyydra/callrelay/internal/core/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Handler struct {
	Signaling *service.SignalingService
	Hub       *ws.Hub

	cfg      config.Config
	upgrader websocket.Upgrader
}

func NewHandler(signaling *service.SignalingService, hub *ws.Hub, cfg config.Config) *Handler {
	return &Handler{
		Signaling: signaling,
		Hub:       hub,
		cfg:       cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		MaxAge:         600,
	}))

	r.Get("/ws", h.ServeWS)
	r.Get("/health", h.Health)
	r.Get("/identities", h.ListIdentities)
	r.Get("/ice-servers", h.ICEServers)

	if h.cfg.StaticDir != "" {
		r.Handle("/*", staticHandler(h.cfg.StaticDir))
	}

	return r
}

type healthDTO struct {
	Status         string   `json:"status"`
	ConnectedUsers []string `json:"connectedUsers"`
	Connections    int      `json:"connections"`
	Sessions       int      `json:"sessions"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthDTO{
		Status:         "ok",
		ConnectedUsers: h.identities(),
		Connections:    h.Hub.Count(),
		Sessions:       h.Signaling.SessionCount(),
	})
}

func (h *Handler) ListIdentities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"identities": h.identities()})
}

func (h *Handler) ICEServers(w http.ResponseWriter, r *http.Request) {
	servers := h.cfg.ICEServers
	if servers == nil {
		servers = []webrtc.ICEServer{}
	}
	writeJSON(w, http.StatusOK, map[string][]webrtc.ICEServer{"iceServers": servers})
}

func (h *Handler) identities() []string {
	ids := h.Signaling.Identities()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}

// staticHandler serves files from dir and falls back to index.html for paths
// that do not exist, so client-side routes load the app.
func staticHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	index := filepath.Join(dir, "index.html")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
		if _, err := os.Stat(name); errors.Is(err, fs.ErrNotExist) {
			http.ServeFile(w, r, index)
			return
		}
		files.ServeHTTP(w, r)
	})
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
