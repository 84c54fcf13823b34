package workspace

import (
	"go.uber.org/zap"

	"github.com/SirCrest/SDProfileManager-Windows/internal/profile"
	"github.com/SirCrest/SDProfileManager-Windows/internal/services/preflight"
)

// resolvePanePageID picks the page a pane should show: the preferred id if it
// exists, then the archive's active page, then its first page, then the
// template working page.
func resolvePanePageID(a *profile.Archive, preferred string) string {
	if id := profile.NormalizePageID(preferred); id != "" && a.HasPage(id) {
		return id
	}
	if id := profile.NormalizePageID(a.ActivePageID()); id != "" && a.HasPage(id) {
		return id
	}
	if ids := a.AllPageIDs(); len(ids) > 0 && ids[0] != "" {
		return profile.NormalizePageID(ids[0])
	}
	return profile.NormalizePageID(a.Template.WorkingPageID)
}

func isVisibleTopLevelPage(a *profile.Archive, pageID string) bool {
	visible := a.PageOrder()
	if len(visible) == 0 {
		visible = []string{a.ActivePageID()}
	}
	id := profile.NormalizePageID(pageID)
	for _, v := range visible {
		if profile.NormalizePageID(v) == id {
			return true
		}
	}
	return false
}

func (e *Engine) viewPageID(side Side) string {
	e.ensurePaneViewPage(side, false)
	return e.pane(side).viewPageID
}

func (e *Engine) setProfileForPane(side Side, a *profile.Archive, preferredPageID string) {
	e.drag = nil
	e.resetFolderNavigation(side)
	p := e.pane(side)
	p.profile = a
	if a == nil {
		p.viewPageID = ""
	} else {
		p.viewPageID = resolvePanePageID(a, preferredPageID)
	}
	e.ensureLayoutModeValidity()
}

func (e *Engine) setPaneViewPage(side Side, pageID string, updateActive bool) {
	p := e.pane(side)
	if p.profile == nil {
		return
	}
	p.viewPageID = resolvePanePageID(p.profile, pageID)
	if updateActive {
		p.profile.SetActivePage(p.viewPageID)
	}
}

func (e *Engine) ensurePaneViewPage(side Side, updateActive bool) {
	p := e.pane(side)
	if p.profile == nil {
		p.viewPageID = ""
		return
	}
	p.viewPageID = resolvePanePageID(p.profile, p.viewPageID)
	if updateActive {
		p.profile.SetActivePage(p.viewPageID)
	}
}

func (e *Engine) ensureLayoutModeValidity() {
	if e.applyingHistory {
		return
	}
	if e.layout == SingleProfile && !e.isShared() {
		e.layout = DualProfile
	}
}

func (e *Engine) refreshPreflight(side Side) {
	p := e.pane(side)
	if p.profile == nil {
		p.report = nil
		return
	}
	p.report = preflight.Validate(p.profile)
}

func (e *Engine) refreshPreflightReports() {
	e.refreshPreflight(Left)
	e.refreshPreflight(Right)
}

// refreshAfterEdit revalidates side, or both panes when they share an
// archive or a working directory.
func (e *Engine) refreshAfterEdit(side Side) {
	if e.isShared() || e.sharesWorkingDir() {
		e.refreshPreflightReports()
		return
	}
	e.refreshPreflight(side)
}

// enableSingleProfileMode binds both panes to the anchor's archive, the other
// pane showing a different page when one exists.
func (e *Engine) enableSingleProfileMode(anchor Side) {
	a := e.profile(anchor)
	if a == nil {
		return
	}
	anchorPage := resolvePanePageID(a, e.viewPageID(anchor))
	otherPage := anchorPage
	for _, id := range a.AllPageIDs() {
		if id != anchorPage {
			otherPage = id
			break
		}
	}

	other := anchor.Opposite()
	e.setProfileForPane(anchor, a, anchorPage)
	e.setProfileForPane(other, a, otherPage)
	e.layout = SingleProfile

	e.setPaneViewPage(anchor, anchorPage, true)
	e.setPaneViewPage(other, otherPage, false)

	e.resetFolderNavigation(Left)
	e.resetFolderNavigation(Right)
	e.drag = nil
	e.refreshPreflightReports()
}

// disableSingleProfileMode returns to two documents. With clone set, the pane
// that is not kept gets an independent copy of the shared archive.
func (e *Engine) disableSingleProfileMode(keep Side, clone bool) {
	if clone && e.isShared() {
		shared := e.left.profile
		copied, err := e.archiver.Clone(shared)
		if err != nil {
			e.logger.Error("failed to clone shared profile", zap.Error(err))
		} else {
			other := keep.Opposite()
			keepPage := e.viewPageID(keep)
			otherPage := e.viewPageID(other)
			e.setProfileForPane(keep, shared, keepPage)
			e.setProfileForPane(other, copied, otherPage)
		}
	}

	e.layout = DualProfile
	e.ensurePaneViewPage(Left, false)
	e.ensurePaneViewPage(Right, false)
	if id := e.viewPageID(Left); id != "" {
		e.setPaneViewPage(Left, id, true)
	}
	if id := e.viewPageID(Right); id != "" {
		e.setPaneViewPage(Right, id, true)
	}
	e.resetFolderNavigation(Left)
	e.resetFolderNavigation(Right)
	e.drag = nil
}

// sharesWorkingDir reports whether two distinct archives are extracted into
// the same directory, as after restoring history taken before a split.
func (e *Engine) sharesWorkingDir() bool {
	l, r := e.left.profile, e.right.profile
	return l != nil && r != nil && l != r && l.ExtractedRoot != "" && l.ExtractedRoot == r.ExtractedRoot
}
