package api

import (
	"context"
	"mime"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/SirCrest/SDProfileManager-Windows/internal/database/models"
	"github.com/SirCrest/SDProfileManager-Windows/internal/document"
	"github.com/SirCrest/SDProfileManager-Windows/internal/profile"
	"github.com/SirCrest/SDProfileManager-Windows/internal/services/plugins"
	"github.com/SirCrest/SDProfileManager-Windows/internal/services/pubsub"
	"github.com/SirCrest/SDProfileManager-Windows/internal/services/workspace"
)

type lockRequest struct {
	Locked *bool `json:"locked"`
}

type dragRequest struct {
	Side       string `json:"side"`
	PageID     string `json:"pageId"`
	Controller string `json:"controller"`
	Coordinate string `json:"coordinate"`
}

type slotRequest struct {
	Side       string `json:"side"`
	Controller string `json:"controller"`
	Coordinate string `json:"coordinate"`
}

type pathRequest struct {
	Path string `json:"path"`
}

type templateRequest struct {
	TemplateID string `json:"templateId"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type pageRequest struct {
	PageID string `json:"pageId"`
}

// ActionView is one placed action of a page.
type ActionView struct {
	Controller   profile.ControllerKind    `json:"controller"`
	Coordinate   string                    `json:"coordinate"`
	Presentation profile.Presentation      `json:"presentation"`
	Plugin       *plugins.ActionDefinition `json:"plugin,omitempty"`
	Action       *document.Node            `json:"action"`
}

// PageActions lists the actions of one page.
type PageActions struct {
	PageID  string       `json:"pageId"`
	Actions []ActionView `json:"actions"`
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, profile.Templates())
}

func (s *Server) handleWorkspace(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	s.engine.Undo()
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	s.engine.Redo()
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Locked == nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "locked is required")
		return
	}
	s.engine.SetSourceLock(*req.Locked)
	if s.settings != nil {
		if err := s.settings.SetBool(r.Context(), models.SettingLockSourceProfile, *req.Locked); err != nil {
			s.logger.Warn("failed to persist source lock", zap.Error(err))
		}
	}
	s.events.PublishSettings(pubsub.Settings{LockSource: *req.Locked})
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handleCreateTarget(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.CreateEmptyTarget(); err != nil {
		s.writeFailure(w, err, s.engine.Status())
		return
	}
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handleBeginDrag(w http.ResponseWriter, r *http.Request) {
	var req dragRequest
	if !decodeBody(w, r, &req) {
		return
	}
	side, ok := workspace.ParseSide(req.Side)
	if !ok {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid side: "+req.Side)
		return
	}
	kind, ok := profile.ParseControllerKind(req.Controller)
	if !ok {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid controller: "+req.Controller)
		return
	}
	if !s.engine.BeginDrag(side, req.PageID, kind, req.Coordinate) {
		writeError(w, http.StatusNotFound, CodeNotFound, "no action at "+req.Coordinate)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handleCancelDrag(w http.ResponseWriter, r *http.Request) {
	s.engine.CancelDrag()
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handleDrop(w http.ResponseWriter, r *http.Request) {
	var req slotRequest
	if !decodeBody(w, r, &req) {
		return
	}
	side, ok := workspace.ParseSide(req.Side)
	if !ok {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid side: "+req.Side)
		return
	}
	kind, ok := profile.ParseControllerKind(req.Controller)
	if !ok {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid controller: "+req.Controller)
		return
	}
	s.engine.DropAction(side, kind, req.Coordinate)
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if s.recent == nil {
		writeJSON(w, http.StatusOK, []models.RecentProfile{})
		return
	}
	limit := DefaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid limit: "+v)
			return
		}
		limit = n
	}
	recent, err := s.recent.FindRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list recent profiles", zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	if recent == nil {
		recent = []models.RecentProfile{}
	}
	writeJSON(w, http.StatusOK, recent)
}

func (s *Server) handleResolvePluginAction(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "plugin catalog unavailable")
		return
	}
	def := s.catalog.ResolveAction(chi.URLParam(r, "pluginUuid"), chi.URLParam(r, "actionUuid"))
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleClearCaches(w http.ResponseWriter, r *http.Request) {
	if s.catalog != nil {
		s.catalog.Clear()
	}
	s.images.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// paneSide reads the {side} URL parameter, writing a 400 when it is invalid.
func paneSide(w http.ResponseWriter, r *http.Request) (workspace.Side, bool) {
	raw := chi.URLParam(r, "side")
	side, ok := workspace.ParseSide(raw)
	if !ok {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid side: "+raw)
	}
	return side, ok
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	side, ok := paneSide(w, r)
	if !ok {
		return
	}
	var req pathRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.engine.LoadProfile(side, req.Path); err != nil {
		s.writeFailure(w, err, s.engine.Status())
		return
	}
	state := s.engine.State()
	s.rememberProfile(r.Context(), req.Path, paneOf(state, side))
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	side, ok := paneSide(w, r)
	if !ok {
		return
	}
	var req pathRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "path is required")
		return
	}
	if err := s.engine.SaveProfile(side, req.Path); err != nil {
		s.writeFailure(w, err, s.engine.Status())
		return
	}
	state := s.engine.State()
	s.rememberProfile(r.Context(), req.Path, paneOf(state, side))
	writeJSON(w, http.StatusOK, state)
}

// rememberProfile records a loaded or saved container in the recent list.
func (s *Server) rememberProfile(ctx context.Context, path string, pane workspace.PaneState) {
	if s.recent == nil {
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	recent, err := s.recent.Upsert(ctx, abs, pane.Name, pane.TemplateID)
	if err != nil {
		s.logger.Warn("failed to record recent profile", zap.String("path", abs), zap.Error(err))
		return
	}
	s.events.PublishRecent(recent)
}

func paneOf(state *workspace.State, side workspace.Side) workspace.PaneState {
	if side == workspace.Right {
		return state.Right
	}
	return state.Left
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	side, ok := paneSide(w, r)
	if !ok {
		return
	}
	s.engine.CloseProfile(side)
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	side, ok := paneSide(w, r)
	if !ok {
		return
	}
	s.engine.SplitProfileView(side)
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	side, ok := paneSide(w, r)
	if !ok {
		return
	}
	var req templateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, ok := profile.TemplateByID(req.TemplateID); !ok {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "unknown template: "+req.TemplateID)
		return
	}
	s.engine.UpdateTemplate(side, req.TemplateID)
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handleName(w http.ResponseWriter, r *http.Request) {
	side, ok := paneSide(w, r)
	if !ok {
		return
	}
	var req nameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.engine.UpdateProfileName(side, req.Name)
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handleAddPage(w http.ResponseWriter, r *http.Request) {
	side, ok := paneSide(w, r)
	if !ok {
		return
	}
	s.engine.AddPage(side)
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handleSelectPage(w http.ResponseWriter, r *http.Request) {
	side, ok := paneSide(w, r)
	if !ok {
		return
	}
	var req pageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.engine.SelectPage(side, req.PageID)
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handleRemovePage(w http.ResponseWriter, r *http.Request) {
	side, ok := paneSide(w, r)
	if !ok {
		return
	}
	s.engine.RemovePage(side, chi.URLParam(r, "pageId"))
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handleRemoveAction(w http.ResponseWriter, r *http.Request) {
	side, ok := paneSide(w, r)
	if !ok {
		return
	}
	raw := chi.URLParam(r, "controller")
	kind, ok := profile.ParseControllerKind(raw)
	if !ok {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid controller: "+raw)
		return
	}
	s.engine.RemoveAction(side, kind, chi.URLParam(r, "coordinate"))
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handleOpenFolder(w http.ResponseWriter, r *http.Request) {
	side, ok := paneSide(w, r)
	if !ok {
		return
	}
	var req slotRequest
	if !decodeBody(w, r, &req) {
		return
	}
	kind, ok := profile.ParseControllerKind(req.Controller)
	if !ok {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid controller: "+req.Controller)
		return
	}
	s.engine.OpenFolderAction(side, kind, req.Coordinate)
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handleFolderBack(w http.ResponseWriter, r *http.Request) {
	side, ok := paneSide(w, r)
	if !ok {
		return
	}
	if !s.engine.NavigateFolderBack(side) {
		writeError(w, http.StatusNotFound, CodeNotFound, s.engine.Status())
		return
	}
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	side, ok := paneSide(w, r)
	if !ok {
		return
	}
	report := s.engine.Report(side)
	if report == nil {
		writeError(w, http.StatusConflict, CodeNoProfile, "No profile loaded.")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// pageParam returns the {pageId} URL parameter; "current" selects the pane's
// view page.
func pageParam(r *http.Request, viewPageID string) string {
	id := chi.URLParam(r, "pageId")
	if strings.EqualFold(id, "current") {
		return viewPageID
	}
	return profile.NormalizePageID(id)
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	side, ok := paneSide(w, r)
	if !ok {
		return
	}

	var result *PageActions
	loaded := s.engine.Inspect(side, func(a *profile.Archive, viewPageID string) {
		pageID := pageParam(r, viewPageID)
		if !a.HasPage(pageID) {
			return
		}
		result = &PageActions{PageID: pageID, Actions: []ActionView{}}
		for _, kind := range []profile.ControllerKind{profile.Keypad, profile.Encoder} {
			actions := a.Actions(kind, pageID)
			coords := make([]string, 0, len(actions))
			for c := range actions {
				coords = append(coords, c)
			}
			sort.Strings(coords)
			for _, c := range coords {
				node := actions[c]
				view := ActionView{
					Controller:   kind,
					Coordinate:   c,
					Presentation: profile.Present(node),
					Action:       node.Clone(),
				}
				if kind == profile.Encoder && s.catalog != nil {
					def := s.catalog.ResolveAction(node.PluginUUID(), node.ActionUUID())
					view.Plugin = &def
				}
				result.Actions = append(result.Actions, view)
			}
		}
	})
	if !loaded {
		writeError(w, http.StatusConflict, CodeNoProfile, "No profile loaded.")
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "page not found: "+chi.URLParam(r, "pageId"))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	side, ok := paneSide(w, r)
	if !ok {
		return
	}
	ref := r.URL.Query().Get("ref")
	if strings.TrimSpace(ref) == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "ref is required")
		return
	}

	var (
		data  []byte
		path  string
		found bool
	)
	loaded := s.engine.Inspect(side, func(a *profile.Archive, viewPageID string) {
		path, found = s.images.Resolve(a, ref, pageParam(r, viewPageID))
		if !found {
			return
		}
		var err error
		if data, err = a.FS().ReadFile(path); err != nil {
			found = false
		}
	})
	if !loaded {
		writeError(w, http.StatusConflict, CodeNoProfile, "No profile loaded.")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, CodeNotFound, "image not found: "+ref)
		return
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
