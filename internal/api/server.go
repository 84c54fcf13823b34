// Package api exposes the workspace engine over HTTP and WebSocket.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/SirCrest/SDProfileManager-Windows/internal/database/repositories"
	"github.com/SirCrest/SDProfileManager-Windows/internal/services/archive"
	"github.com/SirCrest/SDProfileManager-Windows/internal/services/imagecache"
	"github.com/SirCrest/SDProfileManager-Windows/internal/services/plugins"
	"github.com/SirCrest/SDProfileManager-Windows/internal/services/pubsub"
	"github.com/SirCrest/SDProfileManager-Windows/internal/services/workspace"
)

// Error codes of the JSON error envelope.
const (
	CodeBadRequest      = "BAD_REQUEST"
	CodeNotFound        = "NOT_FOUND"
	CodeUnsupportedFile = "UNSUPPORTED_FILE"
	CodeNoProfile       = "NO_PROFILE"
	CodeInternal        = "INTERNAL"
)

// DefaultRecentLimit is the number of recent profiles listed by default.
const DefaultRecentLimit = 20

// ErrorEnvelope is the body of every error response.
type ErrorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Config holds the server dependencies. Settings and Recent may be nil, in
// which case nothing is persisted.
type Config struct {
	Engine   *workspace.Engine
	Catalog  *plugins.Catalog
	Images   *imagecache.Cache
	Settings *repositories.SettingRepository
	Recent   *repositories.RecentProfileRepository
	PubSub   *pubsub.Hub
	Logger   *zap.Logger

	CORSOrigins []string
	Debug       bool
	Version     string
}

// Server serves the workspace API.
type Server struct {
	engine   *workspace.Engine
	catalog  *plugins.Catalog
	images   *imagecache.Cache
	settings *repositories.SettingRepository
	recent   *repositories.RecentProfileRepository
	events   *pubsub.Hub
	logger   *zap.Logger

	corsOrigins []string
	debug       bool
	version     string
	upgrader    websocket.Upgrader
}

// NewServer creates a server and routes engine updates to the event stream.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.PubSub == nil {
		cfg.PubSub = pubsub.New()
	}
	if cfg.Images == nil {
		cfg.Images = imagecache.New(0, cfg.Logger)
	}
	s := &Server{
		engine:      cfg.Engine,
		catalog:     cfg.Catalog,
		images:      cfg.Images,
		settings:    cfg.Settings,
		recent:      cfg.Recent,
		events:      cfg.PubSub,
		logger:      cfg.Logger,
		corsOrigins: cfg.CORSOrigins,
		debug:       cfg.Debug,
		version:     cfg.Version,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for WebSocket
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.engine.SetUpdateCallback(func(state *workspace.State) {
		s.events.PublishWorkspace(state)
	})
	return s
}

// Handler builds the router with middleware and CORS.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	// CORS
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		Debug:            s.debug,
	})
	router.Use(corsMiddleware.Handler)

	// The event stream is long-lived and stays outside the request timeout.
	router.Get("/api/events", s.handleEvents)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/health", s.handleHealth)
		r.Route("/api", func(r chi.Router) {
			r.Get("/templates", s.handleTemplates)
			r.Get("/workspace", s.handleWorkspace)
			r.Post("/undo", s.handleUndo)
			r.Post("/redo", s.handleRedo)
			r.Put("/lock", s.handleLock)
			r.Post("/target", s.handleCreateTarget)
			r.Post("/drag", s.handleBeginDrag)
			r.Delete("/drag", s.handleCancelDrag)
			r.Post("/drop", s.handleDrop)
			r.Get("/recent", s.handleRecent)
			r.Get("/plugins/{pluginUuid}/actions/{actionUuid}", s.handleResolvePluginAction)
			r.Delete("/plugins/cache", s.handleClearCaches)

			r.Route("/panes/{side}", func(r chi.Router) {
				r.Post("/load", s.handleLoad)
				r.Post("/save", s.handleSave)
				r.Post("/close", s.handleClose)
				r.Post("/split", s.handleSplit)
				r.Put("/template", s.handleTemplate)
				r.Put("/name", s.handleName)
				r.Post("/pages", s.handleAddPage)
				r.Put("/pages/current", s.handleSelectPage)
				r.Delete("/pages/{pageId}", s.handleRemovePage)
				r.Get("/pages/{pageId}/actions", s.handleActions)
				r.Get("/pages/{pageId}/image", s.handleImage)
				r.Delete("/actions/{controller}/{coordinate}", s.handleRemoveAction)
				r.Post("/folder/open", s.handleOpenFolder)
				r.Post("/folder/back", s.handleFolderBack)
				r.Get("/preflight", s.handlePreflight)
			})
		})
	})

	return router
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   s.version,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorEnvelope{Code: code, Message: message})
}

// writeFailure maps an operation error onto the envelope. message is the
// status line the engine produced.
func (s *Server) writeFailure(w http.ResponseWriter, err error, message string) {
	var archiveErr *archive.Error
	switch {
	case errors.Is(err, workspace.ErrUnsupportedFile):
		writeError(w, http.StatusBadRequest, CodeUnsupportedFile, message)
	case errors.Is(err, workspace.ErrNoProfile):
		writeError(w, http.StatusConflict, CodeNoProfile, message)
	case errors.As(err, &archiveErr):
		writeError(w, http.StatusUnprocessableEntity, archiveErr.Code, message)
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeInternal, message)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
