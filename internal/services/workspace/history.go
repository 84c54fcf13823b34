package workspace

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/SirCrest/SDProfileManager-Windows/internal/fsys"
	"github.com/SirCrest/SDProfileManager-Windows/internal/profile"
)

// historyEntry is a deep copy of the workspace. A shared workspace stores a
// single snapshot that both panes alias on restore.
type historyEntry struct {
	layout    LayoutMode
	shared    bool
	left      *profile.Snapshot
	right     *profile.Snapshot
	leftFS    fsys.FS
	rightFS   fsys.FS
	leftView  string
	rightView string
	lock      bool
}

func (e *Engine) captureHistory() (*historyEntry, error) {
	h := &historyEntry{
		layout:    e.layout,
		shared:    e.isShared(),
		leftView:  e.left.viewPageID,
		rightView: e.right.viewPageID,
		lock:      e.lock,
	}
	if a := e.left.profile; a != nil {
		snap, err := a.Snapshot()
		if err != nil {
			return nil, fmt.Errorf("snapshot source profile: %w", err)
		}
		h.left, h.leftFS = snap, a.FS()
	}
	if a := e.right.profile; a != nil && !h.shared {
		snap, err := a.Snapshot()
		if err != nil {
			return nil, fmt.Errorf("snapshot target profile: %w", err)
		}
		h.right, h.rightFS = snap, a.FS()
	}
	return h, nil
}

// recordHistory pushes the pre-mutation state onto the undo stack and clears
// the redo stack. It does nothing while a history entry is being applied.
func (e *Engine) recordHistory() {
	if e.applyingHistory {
		return
	}
	h, err := e.captureHistory()
	if err != nil {
		e.logger.Error("failed to record history", zap.Error(err))
		return
	}
	e.undo = pushBounded(e.undo, h, e.historyDepth)
	e.redo = nil
}

func pushBounded(stack []*historyEntry, h *historyEntry, depth int) []*historyEntry {
	stack = append(stack, h)
	if over := len(stack) - depth; over > 0 {
		stack = append(stack[:0:0], stack[over:]...)
	}
	return stack
}

func (e *Engine) applyHistory(h *historyEntry) error {
	e.applyingHistory = true
	defer func() { e.applyingHistory = false }()

	var left, right *profile.Archive
	var err error
	if h.left != nil {
		if left, err = profile.Restore(h.left, h.leftFS); err != nil {
			return err
		}
	}
	layout := h.layout
	if h.shared && left != nil {
		right = left
		layout = SingleProfile
	} else if h.right != nil {
		if right, err = profile.Restore(h.right, h.rightFS); err != nil {
			return err
		}
	}

	e.left.profile, e.right.profile = left, right
	e.layout = layout
	e.left.viewPageID, e.right.viewPageID = h.leftView, h.rightView
	e.ensurePaneViewPage(Left, false)
	e.ensurePaneViewPage(Right, false)
	if e.layout == SingleProfile && !e.isShared() {
		e.layout = DualProfile
	}
	if left != nil {
		left.SetActivePage(e.viewPageID(Left))
	}
	if right != nil && right != left {
		right.SetActivePage(e.viewPageID(Right))
	}
	e.lock = h.lock
	e.resetFolderNavigation(Left)
	e.resetFolderNavigation(Right)
	e.drag = nil
	e.refreshPreflightReports()
	return nil
}

// Undo restores the state before the most recent recorded mutation.
func (e *Engine) Undo() {
	e.mutate(func() {
		if len(e.undo) == 0 {
			e.status = "Nothing to undo."
			return
		}
		if e.stepHistory(&e.undo, &e.redo) {
			e.status = "Undo complete."
			e.logger.Info("undo applied")
		}
	})
}

// Redo reapplies the most recently undone mutation.
func (e *Engine) Redo() {
	e.mutate(func() {
		if len(e.redo) == 0 {
			e.status = "Nothing to redo."
			return
		}
		if e.stepHistory(&e.redo, &e.undo) {
			e.status = "Redo complete."
			e.logger.Info("redo applied")
		}
	})
}

// stepHistory pops from, pushes the current state onto to and applies the
// popped entry.
func (e *Engine) stepHistory(from, to *[]*historyEntry) bool {
	current, err := e.captureHistory()
	if err != nil {
		e.status = fmt.Sprintf("History failed: %v", err)
		e.logger.Error("failed to capture history", zap.Error(err))
		return false
	}
	stack := *from
	target := stack[len(stack)-1]
	*from = stack[:len(stack)-1]
	*to = pushBounded(*to, current, e.historyDepth)

	if err := e.applyHistory(target); err != nil {
		e.status = fmt.Sprintf("History failed: %v", err)
		e.logger.Error("failed to apply history", zap.Error(err))
		return false
	}
	return true
}
