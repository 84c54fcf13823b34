package workspace

import (
	"strings"

	"go.uber.org/zap"

	"github.com/SirCrest/SDProfileManager-Windows/internal/profile"
)

// OpenFolderAction follows a keypad folder action to its target page and
// remembers the current page for NavigateFolderBack.
func (e *Engine) OpenFolderAction(side Side, kind profile.ControllerKind, coordinate string) {
	e.mutate(func() {
		if kind != profile.Keypad {
			return
		}
		a := e.profile(side)
		if a == nil {
			return
		}
		sourcePage := e.viewPageID(side)
		if sourcePage == "" {
			return
		}
		action := a.Action(kind, coordinate, sourcePage)
		if action == nil {
			return
		}
		target := profile.NormalizePageID(action.FolderProfileID())
		if target == "" {
			return
		}
		if !a.HasPage(target) {
			e.status = "Folder target is missing in this profile."
			e.logger.Warn("folder target missing",
				zap.String("side", string(side)),
				zap.String("page", sourcePage),
				zap.String("target", target))
			return
		}
		if target == sourcePage {
			return
		}

		p := e.pane(side)
		if n := len(p.folderBack); n == 0 || !strings.EqualFold(p.folderBack[n-1], sourcePage) {
			p.folderBack = append(p.folderBack, sourcePage)
		}
		e.setPaneViewPage(side, target, true)
		e.refreshAfterEdit(side)

		if name := strings.TrimSpace(a.Page(target).Manifest.Name); name != "" {
			e.status = "Opened folder " + name + "."
		} else {
			e.status = "Opened folder page."
		}
		e.logger.Info("opened folder",
			zap.String("side", string(side)),
			zap.String("page", sourcePage),
			zap.String("target", target))
	})
}

// CanNavigateFolderBack reports whether the pane has folder history left.
func (e *Engine) CanNavigateFolderBack(side Side) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pruneFolderNavigation(side)
	return len(e.pane(side).folderBack) > 0
}

// NavigateFolderBack returns to the page a folder was opened from, skipping
// pages that no longer exist. It reports false when no history is left.
func (e *Engine) NavigateFolderBack(side Side) bool {
	var ok bool
	e.mutate(func() {
		a := e.profile(side)
		if a == nil {
			return
		}
		p := e.pane(side)
		for len(p.folderBack) > 0 {
			previous := p.folderBack[len(p.folderBack)-1]
			p.folderBack = p.folderBack[:len(p.folderBack)-1]
			if !a.HasPage(previous) {
				continue
			}
			e.setPaneViewPage(side, previous, true)
			e.refreshAfterEdit(side)
			e.status = "Returned from folder."
			e.logger.Info("closed folder view", zap.String("side", string(side)), zap.String("page", previous))
			ok = true
			return
		}
		e.status = "No folder history on this pane."
	})
	return ok
}

func (e *Engine) resetFolderNavigation(side Side) {
	e.pane(side).folderBack = nil
}

func (e *Engine) pruneFolderNavigation(side Side) {
	p := e.pane(side)
	if len(p.folderBack) == 0 {
		return
	}
	if p.profile == nil {
		p.folderBack = nil
		return
	}
	kept := p.folderBack[:0]
	for _, id := range p.folderBack {
		if p.profile.HasPage(id) {
			kept = append(kept, id)
		}
	}
	p.folderBack = kept
}
