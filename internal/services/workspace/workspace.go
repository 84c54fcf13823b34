// Package workspace implements the two-pane editing session: loading and
// saving profiles into panes, moving actions between them, page and folder
// navigation, and bounded undo/redo history.
package workspace

import (
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/SirCrest/SDProfileManager-Windows/internal/document"
	"github.com/SirCrest/SDProfileManager-Windows/internal/profile"
	"github.com/SirCrest/SDProfileManager-Windows/internal/services/preflight"
)

const (
	// DefaultHistoryDepth is the undo/redo capacity.
	DefaultHistoryDepth = 80

	// DefaultMaxPages is the visible page limit for AddPage.
	DefaultMaxPages = 10

	// DefaultTargetDeviceModel picks the template of a new empty target when
	// neither pane has a profile.
	DefaultTargetDeviceModel = "20GBX9901"

	initialStatus = "Open source and target profiles."
)

var (
	// ErrUnsupportedFile is returned when a path is blank or does not carry
	// the profile container extension.
	ErrUnsupportedFile = errors.New("unsupported profile file")

	// ErrNoProfile is returned when an operation targets an empty pane.
	ErrNoProfile = errors.New("no profile loaded")
)

// Side identifies a pane. Left is the source, right is the target.
type Side string

const (
	Left  Side = "left"
	Right Side = "right"
)

// ParseSide accepts "left"/"right" and the "source"/"target" aliases.
func ParseSide(s string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left", "source":
		return Left, true
	case "right", "target":
		return Right, true
	}
	return "", false
}

// Opposite returns the other pane.
func (s Side) Opposite() Side {
	if s == Left {
		return Right
	}
	return Left
}

func (s Side) label() string {
	if s == Left {
		return "source"
	}
	return "target"
}

// LayoutMode says whether the panes show two documents or one.
type LayoutMode string

const (
	DualProfile   LayoutMode = "dual"
	SingleProfile LayoutMode = "single"
)

// DragContext is a pending move started by BeginDrag.
type DragContext struct {
	Side       Side
	PageID     string
	Controller profile.ControllerKind
	Coordinate string
	Action     *document.Node
}

// Archiver is the persistence the engine needs. archive.Service satisfies it.
type Archiver interface {
	Load(path string) (*profile.Archive, error)
	Save(a *profile.Archive, outputPath string) error
	CreateEmpty(tmpl *profile.Template, name string) (*profile.Archive, error)
	CopyReferencedFiles(action *document.Node, source, target *profile.Archive, sourcePageID, targetPageID string)
	Clone(a *profile.Archive) (*profile.Archive, error)
}

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	HistoryDepth int
	MaxPages     int
	LockSource   bool
	Logger       *zap.Logger
}

type pane struct {
	profile    *profile.Archive
	viewPageID string
	report     *preflight.Report
	folderBack []string
}

// Engine holds the workspace state. Every exported method takes the engine
// lock, so operations never interleave.
type Engine struct {
	mu sync.Mutex

	archiver     Archiver
	logger       *zap.Logger
	historyDepth int
	maxPages     int

	left   pane
	right  pane
	layout LayoutMode
	lock   bool
	drag   *DragContext
	status string

	undo            []*historyEntry
	redo            []*historyEntry
	applyingHistory bool

	// Callback for state updates (optional)
	onUpdate func(state *State)
}

// NewEngine creates an engine with both panes empty.
func NewEngine(archiver Archiver, opts Options) *Engine {
	if opts.HistoryDepth <= 0 {
		opts.HistoryDepth = DefaultHistoryDepth
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		archiver:     archiver,
		logger:       opts.Logger,
		historyDepth: opts.HistoryDepth,
		maxPages:     opts.MaxPages,
		layout:       DualProfile,
		lock:         opts.LockSource,
		status:       initialStatus,
	}
}

// SetUpdateCallback registers fn to receive the state after every mutating
// call. fn runs without the engine lock held.
func (e *Engine) SetUpdateCallback(fn func(state *State)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onUpdate = fn
}

// mutate runs fn under the lock and then publishes the resulting state.
func (e *Engine) mutate(fn func()) {
	e.mu.Lock()
	fn()
	cb := e.onUpdate
	var state *State
	if cb != nil {
		state = e.stateLocked()
	}
	e.mu.Unlock()

	if cb != nil {
		cb(state)
	}
}

// Status returns the last status message.
func (e *Engine) Status() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// CanUndo reports whether Undo has an entry to restore.
func (e *Engine) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.undo) > 0
}

// CanRedo reports whether Redo has an entry to restore.
func (e *Engine) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.redo) > 0
}

// LockSource returns the source-lock flag.
func (e *Engine) LockSource() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lock
}

// Layout returns the current layout mode.
func (e *Engine) Layout() LayoutMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.layout
}

// IsShared reports whether both panes are bound to the same archive.
func (e *Engine) IsShared() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isShared()
}

// ViewPageID returns the page a pane is showing, correcting it first if the
// page no longer exists.
func (e *Engine) ViewPageID(side Side) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewPageID(side)
}

// Report returns the latest preflight report of a pane, or nil.
func (e *Engine) Report(side Side) *preflight.Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pane(side).report
}

// Inspect runs fn with the archive bound to side while holding the engine
// lock. It reports false when the pane is empty. fn must not retain the
// archive or call back into the engine.
func (e *Engine) Inspect(side Side, fn func(a *profile.Archive, viewPageID string)) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	a := e.profile(side)
	if a == nil {
		return false
	}
	fn(a, e.viewPageID(side))
	return true
}

// ReferencedRoots lists the working directories still in use by a pane or a
// history entry.
func (e *Engine) ReferencedRoots() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := map[string]bool{}
	var roots []string
	add := func(root string) {
		if root != "" && !seen[root] {
			seen[root] = true
			roots = append(roots, root)
		}
	}
	for _, p := range []*pane{&e.left, &e.right} {
		if p.profile != nil {
			add(p.profile.ExtractedRoot)
		}
	}
	for _, stack := range [][]*historyEntry{e.undo, e.redo} {
		for _, h := range stack {
			for _, snap := range []*profile.Snapshot{h.left, h.right} {
				if snap != nil {
					add(snap.ExtractedRoot)
				}
			}
		}
	}
	return roots
}

func (e *Engine) pane(side Side) *pane {
	if side == Left {
		return &e.left
	}
	return &e.right
}

func (e *Engine) profile(side Side) *profile.Archive {
	return e.pane(side).profile
}

func (e *Engine) isShared() bool {
	return e.left.profile != nil && e.left.profile == e.right.profile
}

func (e *Engine) isSingleMode() bool {
	return e.layout == SingleProfile
}
