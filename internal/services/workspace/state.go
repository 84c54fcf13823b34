package workspace

import (
	"github.com/SirCrest/SDProfileManager-Windows/internal/profile"
	"github.com/SirCrest/SDProfileManager-Windows/internal/services/preflight"
)

// State is a read-only view of the workspace for adapters.
type State struct {
	Status     string     `json:"status"`
	Layout     LayoutMode `json:"layout"`
	Shared     bool       `json:"shared"`
	LockSource bool       `json:"lockSource"`
	CanUndo    bool       `json:"canUndo"`
	CanRedo    bool       `json:"canRedo"`
	Left       PaneState  `json:"left"`
	Right      PaneState  `json:"right"`
	Drag       *DragState `json:"drag,omitempty"`
}

// PaneState describes one pane.
type PaneState struct {
	Loaded          bool              `json:"loaded"`
	ProfileID       string            `json:"profileId,omitempty"`
	Name            string            `json:"name,omitempty"`
	SourcePath      string            `json:"sourcePath,omitempty"`
	TemplateID      string            `json:"templateId,omitempty"`
	TemplateLabel   string            `json:"templateLabel,omitempty"`
	ViewPageID      string            `json:"viewPageId,omitempty"`
	ActivePageID    string            `json:"activePageId,omitempty"`
	Pages           []PageInfo        `json:"pages"`
	CanNavigateBack bool              `json:"canNavigateBack"`
	Preflight       *preflight.Report `json:"preflight,omitempty"`
}

// PageInfo lists a page of a pane. Folder pages are not visible.
type PageInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Visible bool   `json:"visible"`
	Actions int    `json:"actions"`
}

// DragState describes the pending move.
type DragState struct {
	Side       Side                   `json:"side"`
	PageID     string                 `json:"pageId"`
	Controller profile.ControllerKind `json:"controller"`
	Coordinate string                 `json:"coordinate"`
}

// State returns the current workspace view.
func (e *Engine) State() *State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Engine) stateLocked() *State {
	s := &State{
		Status:     e.status,
		Layout:     e.layout,
		Shared:     e.isShared(),
		LockSource: e.lock,
		CanUndo:    len(e.undo) > 0,
		CanRedo:    len(e.redo) > 0,
		Left:       e.paneState(Left),
		Right:      e.paneState(Right),
	}
	if d := e.drag; d != nil {
		s.Drag = &DragState{Side: d.Side, PageID: d.PageID, Controller: d.Controller, Coordinate: d.Coordinate}
	}
	return s
}

func (e *Engine) paneState(side Side) PaneState {
	p := e.pane(side)
	if p.profile == nil {
		return PaneState{Pages: []PageInfo{}}
	}
	a := p.profile
	e.pruneFolderNavigation(side)
	ps := PaneState{
		Loaded:          true,
		ProfileID:       a.ID,
		Name:            a.DisplayName(),
		SourcePath:      a.SourcePath,
		TemplateID:      a.Template.ID,
		TemplateLabel:   a.Template.Label,
		ViewPageID:      e.viewPageID(side),
		ActivePageID:    a.ActivePageID(),
		CanNavigateBack: len(p.folderBack) > 0,
		Preflight:       p.report,
	}
	for _, id := range a.AllPageIDs() {
		page := a.Page(id)
		ps.Pages = append(ps.Pages, PageInfo{
			ID:      id,
			Name:    page.Manifest.Name,
			Visible: isVisibleTopLevelPage(a, id),
			Actions: len(page.Keypad) + len(page.Encoder),
		})
	}
	return ps
}
