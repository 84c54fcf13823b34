package workspace

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/SirCrest/SDProfileManager-Windows/internal/profile"
	"github.com/SirCrest/SDProfileManager-Windows/internal/services/archive"
)

// SetSourceLock changes whether left-to-right drops copy instead of move.
func (e *Engine) SetSourceLock(locked bool) {
	e.mutate(func() {
		if e.lock == locked {
			return
		}
		e.recordHistory()
		e.lock = locked
		switch {
		case e.isSingleMode() && e.isShared():
			e.status = "Source lock updated (single profile mode always moves actions)."
		case locked:
			e.status = "Source lock enabled: drag to target copies."
		default:
			e.status = "Source lock disabled: drag to target moves."
		}
		e.logger.Info("source lock updated", zap.Bool("locked", locked))
	})
}

// SplitProfileView toggles single profile mode around the anchor pane. When
// leaving single mode the other pane receives an independent copy.
func (e *Engine) SplitProfileView(anchor Side) {
	e.mutate(func() {
		if e.profile(anchor) == nil {
			e.status = "Load a profile first."
			return
		}
		e.recordHistory()
		if e.isSingleMode() && e.isShared() {
			e.disableSingleProfileMode(anchor, true)
			e.refreshPreflightReports()
			e.status = "Single profile mode disabled."
			e.logger.Info("disabled single profile mode", zap.String("side", string(anchor)))
			return
		}
		e.enableSingleProfileMode(anchor)
		e.status = "Single profile mode enabled."
		e.logger.Info("enabled single profile mode", zap.String("side", string(anchor)))
	})
}

// LoadProfile loads a container into a pane. A failed load leaves both panes
// untouched.
func (e *Engine) LoadProfile(side Side, path string) error {
	var result error
	e.mutate(func() {
		if strings.TrimSpace(path) == "" {
			e.status = "Invalid profile path."
			result = fmt.Errorf("%w: empty path", ErrUnsupportedFile)
			return
		}
		if !strings.EqualFold(filepath.Ext(path), archive.FileExtension) {
			e.status = "Only .streamDeckProfile files are supported."
			e.logger.Info("ignored non-profile file", zap.String("side", string(side)), zap.String("path", path))
			result = fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Base(path))
			return
		}

		a, err := e.archiver.Load(path)
		if err != nil {
			e.status = fmt.Sprintf("Failed to load profile: %v", err)
			e.logger.Error("failed to load profile", zap.String("side", string(side)), zap.String("path", path), zap.Error(err))
			result = err
			return
		}

		e.recordHistory()
		e.setProfileForPane(side, a, a.ActivePageID())
		e.ensureLayoutModeValidity()
		e.ensurePaneViewPage(Left, false)
		e.ensurePaneViewPage(Right, false)
		e.refreshAfterEdit(side)
		e.status = fmt.Sprintf("Loaded %s.", filepath.Base(path))
		e.logger.Info("loaded profile", zap.String("side", string(side)), zap.String("file", filepath.Base(path)))
	})
	return result
}

// CreateEmptyTarget puts a new empty profile in the right pane, using the
// template of the right pane, else the left pane, else the default device.
func (e *Engine) CreateEmptyTarget() error {
	var result error
	e.mutate(func() {
		var tmpl *profile.Template
		switch {
		case e.right.profile != nil:
			tmpl = e.right.profile.Template
		case e.left.profile != nil:
			tmpl = e.left.profile.Template
		default:
			tmpl = profile.TemplateForDeviceModel(DefaultTargetDeviceModel)
		}

		a, err := e.archiver.CreateEmpty(tmpl, "")
		if err != nil {
			e.status = fmt.Sprintf("Failed to create target profile: %v", err)
			e.logger.Error("failed to create empty target", zap.Error(err))
			result = err
			return
		}

		e.recordHistory()
		e.setProfileForPane(Right, a, a.ActivePageID())
		e.ensureLayoutModeValidity()
		e.refreshPreflight(Right)
		e.status = fmt.Sprintf("Created empty target profile (%s).", tmpl.Label)
		e.logger.Info("created empty target", zap.String("template", tmpl.ID))
	})
	return result
}

// SaveProfile writes the pane's archive to outputPath.
func (e *Engine) SaveProfile(side Side, outputPath string) error {
	var result error
	e.mutate(func() {
		a := e.profile(side)
		if a == nil {
			e.status = fmt.Sprintf("No %s profile loaded.", side.label())
			result = ErrNoProfile
			return
		}
		name := filepath.Base(outputPath)
		if err := e.archiver.Save(a, outputPath); err != nil {
			e.status = fmt.Sprintf("Failed to save profile: %v", err)
			e.logger.Error("failed to save profile", zap.String("side", string(side)), zap.Error(err))
			result = err
			return
		}
		e.refreshPreflight(side)
		if errs := e.pane(side).report.Errors; errs > 0 {
			e.status = fmt.Sprintf("Saved %s with %d preflight error(s).", name, errs)
		} else {
			e.status = fmt.Sprintf("Saved %s.", name)
		}
		e.logger.Info("saved profile", zap.String("side", string(side)), zap.String("file", name))
	})
	return result
}

// CloseProfile empties a pane.
func (e *Engine) CloseProfile(side Side) {
	e.mutate(func() {
		a := e.profile(side)
		if a == nil {
			e.status = fmt.Sprintf("No %s profile loaded.", side.label())
			return
		}
		e.recordHistory()

		p := e.pane(side)
		p.profile = nil
		p.viewPageID = ""
		p.report = nil
		e.resetFolderNavigation(side)
		if e.drag != nil && e.drag.Side == side {
			e.drag = nil
		}
		e.ensureLayoutModeValidity()
		e.status = fmt.Sprintf("Closed %s profile.", side.label())
		e.logger.Info("closed profile", zap.String("side", string(side)), zap.String("name", a.DisplayName()))
	})
}

// UpdateTemplate retargets a pane's archive at another device template.
// Actions outside the new layout are dropped.
func (e *Engine) UpdateTemplate(side Side, templateID string) {
	e.mutate(func() {
		tmpl, ok := profile.TemplateByID(templateID)
		if !ok {
			return
		}
		a := e.profile(side)
		if a == nil || a.Template.ID == tmpl.ID {
			return
		}
		e.recordHistory()
		a.ApplyTemplate(tmpl)
		e.refreshAfterEdit(side)
		e.status = fmt.Sprintf("Set %s preset to %s.", side.label(), tmpl.Label)
		e.logger.Info("changed template", zap.String("side", string(side)), zap.String("template", tmpl.ID))
	})
}

// SelectPage switches the page a pane shows.
func (e *Engine) SelectPage(side Side, pageID string) {
	e.mutate(func() {
		a := e.profile(side)
		if a == nil {
			return
		}
		current := e.viewPageID(side)
		resolved := resolvePanePageID(a, pageID)
		if strings.EqualFold(current, resolved) {
			return
		}
		e.recordHistory()
		if isVisibleTopLevelPage(a, resolved) {
			e.resetFolderNavigation(side)
		}
		e.setPaneViewPage(side, resolved, true)
		e.status = fmt.Sprintf("Switched %s page.", side.label())
		e.logger.Info("switched page", zap.String("side", string(side)), zap.String("page", resolved))
	})
}

// AddPage appends an empty page and shows it. It refuses at the page limit.
func (e *Engine) AddPage(side Side) {
	e.mutate(func() {
		a := e.profile(side)
		if a == nil {
			return
		}
		if len(a.PageOrder()) >= e.maxPages {
			e.status = fmt.Sprintf("Page limit reached (%d).", e.maxPages)
			e.logger.Info("add page blocked", zap.String("side", string(side)), zap.String("reason", "max-pages"))
			return
		}
		e.recordHistory()
		id := a.CreatePage()
		e.resetFolderNavigation(side)
		e.setPaneViewPage(side, id, true)
		e.ensurePaneViewPage(Left, false)
		e.ensurePaneViewPage(Right, false)
		e.refreshAfterEdit(side)
		e.status = fmt.Sprintf("Added page to %s profile.", side.label())
		e.logger.Info("added page", zap.String("side", string(side)), zap.String("page", id))
	})
}

// UpdateProfileName renames a pane's archive. A blank name becomes
// "Untitled Profile".
func (e *Engine) UpdateProfileName(side Side, name string) {
	e.mutate(func() {
		a := e.profile(side)
		if a == nil {
			return
		}
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			trimmed = profile.UntitledProfileName
		}
		if strings.TrimSpace(a.Name) == trimmed {
			return
		}
		e.recordHistory()
		a.Name = trimmed
		e.status = fmt.Sprintf("Renamed %s profile.", side.label())
		e.logger.Info("renamed profile", zap.String("side", string(side)), zap.String("name", trimmed))
	})
}

// RemoveAction clears a slot on the pane's view page.
func (e *Engine) RemoveAction(side Side, kind profile.ControllerKind, coordinate string) {
	e.mutate(func() {
		a := e.profile(side)
		if a == nil {
			return
		}
		pageID := e.viewPageID(side)
		if pageID == "" || a.Action(kind, coordinate, pageID) == nil {
			return
		}
		e.recordHistory()
		a.RemoveAction(kind, coordinate, pageID)
		if d := e.drag; d != nil && d.Side == side && d.Controller == kind &&
			strings.EqualFold(d.PageID, pageID) && strings.EqualFold(d.Coordinate, coordinate) {
			e.drag = nil
		}
		e.refreshAfterEdit(side)

		noun := "dial"
		if kind == profile.Keypad {
			noun = "key"
		}
		e.status = fmt.Sprintf("Deleted %s action.", noun)
		e.logger.Info("deleted action",
			zap.String("side", string(side)),
			zap.String("controller", string(kind)),
			zap.String("coordinate", coordinate),
			zap.String("page", pageID))
	})
}

// RemovePage deletes a page from a pane's archive. The last visible page
// cannot be removed.
func (e *Engine) RemovePage(side Side, pageID string) {
	e.mutate(func() {
		a := e.profile(side)
		if a == nil {
			return
		}
		id := profile.NormalizePageID(pageID)
		visible := profile.UniquePageIDs(a.PageOrder())
		if len(visible) == 0 {
			visible = []string{profile.NormalizePageID(a.ActivePageID())}
		}
		if len(visible) <= 1 {
			e.status = "Cannot delete the last page."
			e.logger.Info("remove page blocked", zap.String("side", string(side)), zap.String("page", id), zap.String("reason", "last-page"))
			return
		}
		if !a.HasPage(id) {
			e.status = "Page remove failed."
			e.logger.Warn("remove page failed", zap.String("side", string(side)), zap.String("page", id), zap.String("reason", "missing-page"))
			return
		}

		e.recordHistory()
		if !a.RemovePage(id) {
			e.status = "Page remove failed."
			e.logger.Warn("remove page failed", zap.String("side", string(side)), zap.String("page", id))
			return
		}
		if d := e.drag; d != nil && d.Side == side && profile.NormalizePageID(d.PageID) == id {
			e.drag = nil
		}
		e.pruneFolderNavigation(Left)
		e.pruneFolderNavigation(Right)
		e.ensurePaneViewPage(Left, false)
		e.ensurePaneViewPage(Right, false)
		if current := e.viewPageID(side); current != "" {
			a.SetActivePage(current)
		}
		e.refreshAfterEdit(side)
		e.status = fmt.Sprintf("Removed page from %s profile.", side.label())
		e.logger.Info("removed page", zap.String("side", string(side)), zap.String("page", id))
	})
}
