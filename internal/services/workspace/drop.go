package workspace

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/SirCrest/SDProfileManager-Windows/internal/profile"
)

// BeginDrag starts a move from a slot. It reports false when the slot is
// empty. The dragged action is a private copy.
func (e *Engine) BeginDrag(side Side, pageID string, kind profile.ControllerKind, coordinate string) bool {
	var ok bool
	e.mutate(func() {
		a := e.profile(side)
		if a == nil {
			return
		}
		if strings.TrimSpace(pageID) == "" {
			pageID = e.viewPageID(side)
		}
		pageID = profile.NormalizePageID(pageID)
		action := a.Action(kind, coordinate, pageID)
		if action == nil {
			return
		}
		e.drag = &DragContext{
			Side:       side,
			PageID:     pageID,
			Controller: kind,
			Coordinate: coordinate,
			Action:     action.Clone(),
		}
		ok = true
	})
	return ok
}

// CancelDrag drops any pending move.
func (e *Engine) CancelDrag() {
	e.mutate(func() { e.drag = nil })
}

// Drag returns a copy of the pending move, or nil.
func (e *Engine) Drag() *DragContext {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.drag == nil {
		return nil
	}
	d := *e.drag
	d.Action = d.Action.Clone()
	return &d
}

// DropAction completes the pending move onto the view page of side.
//
// Within one archive the action always moves. Between two archives it is
// copied only when the source lock is on and the drag goes from the left
// pane to the right pane; every other combination moves it.
func (e *Engine) DropAction(side Side, kind profile.ControllerKind, coordinate string) {
	e.mutate(func() {
		drag := e.drag
		if drag == nil {
			return
		}
		defer func() { e.drag = nil }()

		if drag.Controller != kind {
			e.status = "Drop canceled: keys and dials cannot be mixed."
			return
		}

		source := e.profile(drag.Side)
		target := e.profile(side)
		if source == nil || target == nil {
			return
		}
		if !target.Template.Fits(kind, coordinate) {
			e.status = fmt.Sprintf("Drop canceled: %s is outside the %s layout.", coordinate, target.Template.Label)
			e.logger.Info("drop outside layout",
				zap.String("to", string(side)),
				zap.String("coordinate", coordinate),
				zap.String("controller", string(kind)))
			return
		}
		sourcePage := drag.PageID
		targetPage := e.viewPageID(side)
		if targetPage == "" {
			return
		}
		sharedMove := source == target

		if drag.Side == side && strings.EqualFold(sourcePage, targetPage) && drag.Coordinate == coordinate {
			return
		}

		e.recordHistory()

		fields := []zap.Field{
			zap.String("from", string(drag.Side)),
			zap.String("to", string(side)),
			zap.String("sourcePage", sourcePage),
			zap.String("targetPage", targetPage),
			zap.String("coordinate", coordinate),
			zap.String("controller", string(kind)),
		}

		if drag.Side == side {
			source.RemoveAction(drag.Controller, drag.Coordinate, sourcePage)
			e.place(drag, source, source, targetPage, coordinate)
			e.setPaneViewPage(side, targetPage, true)
			e.refreshAfterEdit(side)
			e.status = fmt.Sprintf("Moved action to %s.", coordinate)
			e.logger.Info("moved action within pane", fields...)
			return
		}

		copyOnly := !sharedMove && e.lock && drag.Side == Left && side == Right
		if !copyOnly {
			source.RemoveAction(drag.Controller, drag.Coordinate, sourcePage)
		}
		e.place(drag, source, target, targetPage, coordinate)
		e.setPaneViewPage(side, targetPage, true)
		e.refreshPreflightReports()

		switch {
		case sharedMove:
			e.status = "Moved action within single profile."
			e.logger.Info("moved action within shared profile", fields...)
		case copyOnly:
			e.status = "Copied action to target."
			e.logger.Info("copied action", fields...)
		default:
			e.status = fmt.Sprintf("Moved action from %s to %s.", drag.Side.label(), side.label())
			e.logger.Info("moved action across panes", fields...)
		}
	})
}

// place writes the dragged action into target and brings its plugin and
// referenced files along.
func (e *Engine) place(drag *DragContext, source, target *profile.Archive, targetPage, coordinate string) {
	action := drag.Action.Clone()
	target.SetAction(drag.Controller, coordinate, action, targetPage)
	target.MergeRequiredPlugin(action.PluginUUID())
	e.archiver.CopyReferencedFiles(action, source, target, drag.PageID, targetPage)
}
