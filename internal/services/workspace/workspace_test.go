package workspace

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SirCrest/SDProfileManager-Windows/internal/document"
	"github.com/SirCrest/SDProfileManager-Windows/internal/fsys"
	"github.com/SirCrest/SDProfileManager-Windows/internal/profile"
	"github.com/SirCrest/SDProfileManager-Windows/internal/services/archive"
	"github.com/SirCrest/SDProfileManager-Windows/internal/services/preflight"
	"github.com/SirCrest/SDProfileManager-Windows/internal/services/testutil"
)

func newTestEngine(t *testing.T, opts Options) (*Engine, *fsys.Mem) {
	t.Helper()
	mem := fsys.NewMem()
	require.NoError(t, mem.MkdirAll("/tmp", 0755))
	opts.LockSource = true
	return NewEngine(archive.NewService(mem, "/tmp", nil), opts), mem
}

func newFixture(t *testing.T, mem *fsys.Mem, pageIDs ...string) *profile.Archive {
	t.Helper()
	return testutil.NewProfile(t, testutil.ProfileOptions{FS: mem}, pageIDs...)
}

// bind puts archives into panes the way a load would, without history.
func bind(e *Engine, left, right *profile.Archive, leftPage, rightPage string) {
	e.setProfileForPane(Left, left, leftPage)
	e.setProfileForPane(Right, right, rightPage)
	if left != nil && left == right {
		e.layout = SingleProfile
	}
}

func testAction() *document.Node {
	return document.MustParse(`{
		"Name": "Action",
		"UUID": "com.test.action",
		"State": 0,
		"States": [{"Name": "Action", "Image": ""}],
		"Plugin": {"UUID": "com.test.plugin"},
		"Controller": "Keypad"
	}`)
}

func folderAction(target string) *document.Node {
	return document.MustParse(fmt.Sprintf(`{
		"Name": "Folder",
		"UUID": "com.elgato.streamdeck.profile.openchild",
		"State": 0,
		"States": [{"Name": "Folder", "Image": ""}],
		"Plugin": {"UUID": "com.elgato.streamdeck.profile", "Name": "Folder"},
		"Controller": "Keypad",
		"Settings": {"ProfileUUID": %q}
	}`, target))
}

func mustSnapshot(t *testing.T, a *profile.Archive) *profile.Snapshot {
	t.Helper()
	snap, err := a.Snapshot()
	require.NoError(t, err)
	return snap
}

func TestParseSide(t *testing.T) {
	for in, want := range map[string]Side{"left": Left, "Source": Left, "RIGHT": Right, "target": Right} {
		got, ok := ParseSide(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseSide("middle")
	assert.False(t, ok)
	assert.Equal(t, Right, Left.Opposite())
}

func TestNewEngine_Defaults(t *testing.T) {
	e := NewEngine(nil, Options{})

	assert.Equal(t, "Open source and target profiles.", e.Status())
	assert.Equal(t, DefaultHistoryDepth, e.historyDepth)
	assert.Equal(t, DefaultMaxPages, e.maxPages)
	assert.Equal(t, DualProfile, e.Layout())
	assert.False(t, e.CanUndo())
	assert.False(t, e.CanRedo())
}

func TestRemovePage_MissingPageDoesNotCreateUndoSnapshot(t *testing.T) {
	e, mem := newTestEngine(t, Options{})
	a := newFixture(t, mem, "page-a", "page-b")
	bind(e, a, nil, "page-a", "")

	e.RemovePage(Left, "missing-page")

	assert.False(t, e.CanUndo())
	assert.Equal(t, "Page remove failed.", e.Status())
	assert.True(t, a.HasPage("page-a"))
	assert.True(t, a.HasPage("page-b"))
}

func TestRemovePage_LastPageIsRefused(t *testing.T) {
	e, mem := newTestEngine(t, Options{})
	a := newFixture(t, mem, "only-page")
	bind(e, a, nil, "only-page", "")

	e.RemovePage(Left, "only-page")

	assert.Equal(t, "Cannot delete the last page.", e.Status())
	assert.False(t, e.CanUndo())
	assert.True(t, a.HasPage("only-page"))
}

func TestRemovePage_RetargetsViewAndDrag(t *testing.T) {
	e, mem := newTestEngine(t, Options{})
	a := newFixture(t, mem, "page-a", "page-b")
	a.SetAction(profile.Keypad, "0,0", testAction(), "page-b")
	bind(e, a, nil, "page-b", "")
	require.True(t, e.BeginDrag(Left, "page-b", profile.Keypad, "0,0"))

	e.RemovePage(Left, "PAGE-B")

	assert.Equal(t, "Removed page from source profile.", e.Status())
	assert.False(t, a.HasPage("page-b"))
	assert.Equal(t, "page-a", e.ViewPageID(Left))
	assert.Equal(t, "page-a", a.ActivePageID())
	assert.Nil(t, e.Drag())
	assert.True(t, e.CanUndo())
}

func TestDropAction_PolicyTable(t *testing.T) {
	type dir struct{ from, to Side }
	directions := []dir{{Left, Right}, {Right, Left}, {Left, Left}, {Right, Right}}

	for _, shared := range []bool{true, false} {
		for _, locked := range []bool{true, false} {
			for _, d := range directions {
				name := fmt.Sprintf("shared=%v/locked=%v/%s->%s", shared, locked, d.from, d.to)
				t.Run(name, func(t *testing.T) {
					e, mem := newTestEngine(t, Options{})
					var left, right *profile.Archive
					if shared {
						left = newFixture(t, mem, "left-page", "right-page")
						right = left
					} else {
						left = newFixture(t, mem, "left-page")
						right = newFixture(t, mem, "right-page")
					}
					bind(e, left, right, "left-page", "right-page")
					e.lock = locked

					source := e.profile(d.from)
					sourcePage := e.ViewPageID(d.from)
					target := e.profile(d.to)
					targetPage := e.ViewPageID(d.to)
					source.SetAction(profile.Keypad, "0,0", testAction(), sourcePage)

					require.True(t, e.BeginDrag(d.from, sourcePage, profile.Keypad, "0,0"))
					e.DropAction(d.to, profile.Keypad, "1,1")

					wantCopy := !shared && locked && d.from == Left && d.to == Right
					assert.Equal(t, wantCopy, source.Action(profile.Keypad, "0,0", sourcePage) != nil, "source slot")
					assert.NotNil(t, target.Action(profile.Keypad, "1,1", targetPage), "target slot")
					assert.Contains(t, target.Package.RequiredPlugins, "com.test.plugin")
					assert.Nil(t, e.Drag())
					assert.True(t, e.CanUndo())

					switch {
					case d.from == d.to:
						assert.Equal(t, "Moved action to 1,1.", e.Status())
					case shared:
						assert.Equal(t, "Moved action within single profile.", e.Status())
					case wantCopy:
						assert.Equal(t, "Copied action to target.", e.Status())
					default:
						assert.Equal(t, fmt.Sprintf("Moved action from %s to %s.", d.from.label(), d.to.label()), e.Status())
					}
				})
			}
		}
	}
}

func TestDropAction_KindMismatchCancels(t *testing.T) {
	e, mem := newTestEngine(t, Options{})
	a := newFixture(t, mem, "page-a")
	a.SetAction(profile.Keypad, "0,0", testAction(), "page-a")
	bind(e, a, nil, "page-a", "")

	require.True(t, e.BeginDrag(Left, "", profile.Keypad, "0,0"))
	e.DropAction(Left, profile.Encoder, "0,0")

	assert.Equal(t, "Drop canceled: keys and dials cannot be mixed.", e.Status())
	assert.Nil(t, e.Drag())
	assert.False(t, e.CanUndo())
	assert.NotNil(t, a.Action(profile.Keypad, "0,0", "page-a"))
	assert.Nil(t, a.Action(profile.Encoder, "0,0", "page-a"))
}

func TestDropAction_OutsideLayoutCancels(t *testing.T) {
	e, mem := newTestEngine(t, Options{})
	left := newFixture(t, mem, "left-page")
	right := newFixture(t, mem, "right-page")
	bind(e, left, right, "left-page", "right-page")
	left.SetAction(profile.Keypad, "0,0", testAction(), "left-page")
	left.SetAction(profile.Encoder, "0,0", testAction(), "left-page")

	for _, tc := range []struct {
		kind       profile.ControllerKind
		coordinate string
	}{
		{profile.Keypad, "99,99"},
		{profile.Keypad, "-1,0"},
		{profile.Keypad, "garbage"},
		{profile.Encoder, "0,9"},
	} {
		require.True(t, e.BeginDrag(Left, "left-page", tc.kind, "0,0"))
		e.DropAction(Right, tc.kind, tc.coordinate)

		assert.Equal(t, fmt.Sprintf("Drop canceled: %s is outside the %s layout.", tc.coordinate, right.Template.Label), e.Status())
		assert.Nil(t, e.Drag())
		assert.Empty(t, right.Actions(tc.kind, "right-page"), tc.coordinate)
	}
	assert.False(t, e.CanUndo())
	assert.NotNil(t, left.Action(profile.Keypad, "0,0", "left-page"))
}

func TestDropAction_SameSlotIsNoOp(t *testing.T) {
	e, mem := newTestEngine(t, Options{})
	a := newFixture(t, mem, "page-a")
	a.SetAction(profile.Keypad, "0,0", testAction(), "page-a")
	bind(e, a, nil, "page-a", "")

	require.True(t, e.BeginDrag(Left, "page-a", profile.Keypad, "0,0"))
	e.DropAction(Left, profile.Keypad, "0,0")

	assert.Nil(t, e.Drag())
	assert.False(t, e.CanUndo())
	assert.NotNil(t, a.Action(profile.Keypad, "0,0", "page-a"))
}

func TestBeginDrag_EmptySlot(t *testing.T) {
	e, mem := newTestEngine(t, Options{})
	bind(e, newFixture(t, mem, "page-a"), nil, "page-a", "")

	assert.False(t, e.BeginDrag(Left, "page-a", profile.Keypad, "3,3"))
	assert.False(t, e.BeginDrag(Right, "page-a", profile.Keypad, "0,0"))
	assert.Nil(t, e.Drag())
}

func TestDropAction_DraggedActionIsPrivateCopy(t *testing.T) {
	e, mem := newTestEngine(t, Options{})
	left := newFixture(t, mem, "left-page")
	right := newFixture(t, mem, "right-page")
	bind(e, left, right, "left-page", "right-page")
	left.SetAction(profile.Keypad, "0,0", testAction(), "left-page")

	require.True(t, e.BeginDrag(Left, "left-page", profile.Keypad, "0,0"))
	e.DropAction(Right, profile.Keypad, "1,1")

	copied := right.Action(profile.Keypad, "1,1", "right-page")
	require.NotNil(t, copied)
	copied.Set("Name", document.String("Changed"))
	assert.Equal(t, "Action", left.Action(profile.Keypad, "0,0", "left-page").Name())
}

func TestUndoRedo_RestoresFieldLevelState(t *testing.T) {
	e, mem := newTestEngine(t, Options{})
	left := newFixture(t, mem, "left-page")
	right := newFixture(t, mem, "right-page")
	bind(e, left, right, "left-page", "right-page")
	e.lock = false
	left.SetAction(profile.Keypad, "0,0", testAction(), "left-page")

	beforeLeft := mustSnapshot(t, left)
	beforeRight := mustSnapshot(t, right)

	require.True(t, e.BeginDrag(Left, "left-page", profile.Keypad, "0,0"))
	e.DropAction(Right, profile.Keypad, "2,1")

	afterLeft := mustSnapshot(t, e.profile(Left))
	afterRight := mustSnapshot(t, e.profile(Right))
	require.NotEqual(t, beforeLeft, afterLeft)

	e.Undo()
	assert.Equal(t, "Undo complete.", e.Status())
	assert.Equal(t, beforeLeft, mustSnapshot(t, e.profile(Left)))
	assert.Equal(t, beforeRight, mustSnapshot(t, e.profile(Right)))
	assert.False(t, e.LockSource())
	assert.True(t, e.CanRedo())

	e.Redo()
	assert.Equal(t, "Redo complete.", e.Status())
	assert.Equal(t, afterLeft, mustSnapshot(t, e.profile(Left)))
	assert.Equal(t, afterRight, mustSnapshot(t, e.profile(Right)))
	assert.False(t, e.CanRedo())
}

func TestUndoRedo_Exhaustion(t *testing.T) {
	e, _ := newTestEngine(t, Options{})

	e.Undo()
	assert.Equal(t, "Nothing to undo.", e.Status())
	e.Redo()
	assert.Equal(t, "Nothing to redo.", e.Status())
}

func TestRecordHistory_ClearsRedoAndIsBounded(t *testing.T) {
	e, mem := newTestEngine(t, Options{HistoryDepth: 3})
	a := newFixture(t, mem, "page-a")
	bind(e, a, nil, "page-a", "")

	for i := 0; i < 5; i++ {
		e.UpdateProfileName(Left, fmt.Sprintf("Name %d", i))
	}
	assert.Len(t, e.undo, 3)

	e.Undo()
	assert.Equal(t, "Name 3", e.profile(Left).Name)
	assert.True(t, e.CanRedo())

	e.UpdateProfileName(Left, "Fresh")
	assert.False(t, e.CanRedo())
}

func TestUndo_RestoresSharedAliasing(t *testing.T) {
	e, mem := newTestEngine(t, Options{})
	a := newFixture(t, mem, "page-a", "page-b")
	bind(e, a, nil, "page-a", "")

	e.SplitProfileView(Left)
	require.True(t, e.IsShared())
	e.UpdateProfileName(Left, "Renamed")

	e.Undo()

	assert.True(t, e.IsShared())
	assert.Equal(t, SingleProfile, e.Layout())
	assert.Same(t, e.profile(Left), e.profile(Right))
	assert.Equal(t, "Test Profile", e.profile(Right).Name)
	assert.Equal(t, "page-a", e.ViewPageID(Left))
	assert.Equal(t, "page-b", e.ViewPageID(Right))
}

func TestSplitProfileView_EnableAndDisable(t *testing.T) {
	e, mem := newTestEngine(t, Options{})

	e.SplitProfileView(Left)
	assert.Equal(t, "Load a profile first.", e.Status())

	a := newFixture(t, mem, "page-a", "page-b")
	bind(e, a, nil, "page-a", "")

	e.SplitProfileView(Left)
	assert.Equal(t, "Single profile mode enabled.", e.Status())
	assert.Equal(t, SingleProfile, e.Layout())
	assert.True(t, e.IsShared())
	assert.Equal(t, "page-b", e.ViewPageID(Right))
	assert.NotNil(t, e.Report(Right))

	e.SetSourceLock(false)
	assert.Equal(t, "Source lock updated (single profile mode always moves actions).", e.Status())

	e.SplitProfileView(Left)
	assert.Equal(t, "Single profile mode disabled.", e.Status())
	assert.Equal(t, DualProfile, e.Layout())
	assert.False(t, e.IsShared())
	assert.Same(t, a, e.profile(Left))
	assert.Equal(t, "page-b", e.ViewPageID(Right))

	e.profile(Right).SetAction(profile.Keypad, "0,0", testAction(), "page-b")
	assert.Nil(t, a.Action(profile.Keypad, "0,0", "page-b"))
}

func TestCloseProfile_DemotesSingleMode(t *testing.T) {
	e, mem := newTestEngine(t, Options{})

	e.CloseProfile(Right)
	assert.Equal(t, "No target profile loaded.", e.Status())

	a := newFixture(t, mem, "page-a", "page-b")
	bind(e, a, nil, "page-a", "")
	e.SplitProfileView(Left)

	e.CloseProfile(Right)

	assert.Equal(t, "Closed target profile.", e.Status())
	assert.Equal(t, DualProfile, e.Layout())
	assert.Nil(t, e.profile(Right))
	assert.Equal(t, "", e.ViewPageID(Right))
	assert.Nil(t, e.Report(Right))
}

func TestOpenFolderAction_NavigationAndBack(t *testing.T) {
	e, mem := newTestEngine(t, Options{})
	a := newFixture(t, mem, "home-page", "folder-page")
	bind(e, a, nil, "home-page", "")
	a.SetAction(profile.Keypad, "0,0", folderAction("FOLDER-PAGE"), "home-page")

	e.OpenFolderAction(Left, profile.Keypad, "0,0")

	assert.Equal(t, "folder-page", e.ViewPageID(Left))
	assert.Equal(t, "folder-page", a.ActivePageID())
	assert.Equal(t, "Opened folder Page folder-page.", e.Status())
	assert.True(t, e.CanNavigateFolderBack(Left))
	assert.False(t, e.CanUndo())

	assert.True(t, e.NavigateFolderBack(Left))

	assert.Equal(t, "home-page", e.ViewPageID(Left))
	assert.Equal(t, "Returned from folder.", e.Status())
	assert.False(t, e.CanNavigateFolderBack(Left))

	assert.False(t, e.NavigateFolderBack(Left))
	assert.Equal(t, "No folder history on this pane.", e.Status())
	assert.False(t, e.NavigateFolderBack(Right))
}

func TestOpenFolderAction_MissingTarget(t *testing.T) {
	e, mem := newTestEngine(t, Options{})
	a := newFixture(t, mem, "home-page")
	bind(e, a, nil, "home-page", "")
	a.SetAction(profile.Keypad, "0,0", folderAction("missing-page"), "home-page")

	e.OpenFolderAction(Left, profile.Keypad, "0,0")

	assert.Equal(t, "home-page", e.ViewPageID(Left))
	assert.Equal(t, "Folder target is missing in this profile.", e.Status())
	assert.False(t, e.CanNavigateFolderBack(Left))
}

func TestOpenFolderAction_IgnoresEncoder(t *testing.T) {
	e, mem := newTestEngine(t, Options{})
	a := newFixture(t, mem, "home-page", "folder-page")
	bind(e, a, nil, "home-page", "")
	a.SetAction(profile.Encoder, "0,0", folderAction("folder-page"), "home-page")

	e.OpenFolderAction(Left, profile.Encoder, "0,0")

	assert.Equal(t, "home-page", e.ViewPageID(Left))
}

func TestNavigateFolderBack_SkipsRemovedPages(t *testing.T) {
	e, mem := newTestEngine(t, Options{})
	a := newFixture(t, mem, "home-page", "middle-page", "leaf-page")
	bind(e, a, nil, "home-page", "")
	a.SetAction(profile.Keypad, "0,0", folderAction("middle-page"), "home-page")
	a.SetAction(profile.Keypad, "0,0", folderAction("leaf-page"), "middle-page")

	e.OpenFolderAction(Left, profile.Keypad, "0,0")
	e.OpenFolderAction(Left, profile.Keypad, "0,0")
	require.Equal(t, "leaf-page", e.ViewPageID(Left))
	require.True(t, a.RemovePage("middle-page"))

	assert.True(t, e.NavigateFolderBack(Left))
	assert.Equal(t, "home-page", e.ViewPageID(Left))

	a.SetAction(profile.Keypad, "0,0", folderAction("leaf-page"), "home-page")
	e.OpenFolderAction(Left, profile.Keypad, "0,0")
	require.True(t, a.RemovePage("home-page"))

	assert.False(t, e.NavigateFolderBack(Left), "every entry is stale")
	assert.Equal(t, "No folder history on this pane.", e.Status())
}

func TestSelectPage(t *testing.T) {
	e, mem := newTestEngine(t, Options{})
	a := newFixture(t, mem, "page-a", "page-b")
	bind(e, a, nil, "page-a", "")

	e.SelectPage(Left, "PAGE-A")
	assert.False(t, e.CanUndo())

	e.SelectPage(Left, "page-b")
	assert.Equal(t, "Switched source page.", e.Status())
	assert.Equal(t, "page-b", e.ViewPageID(Left))
	assert.Equal(t, "page-b", a.ActivePageID())
	assert.True(t, e.CanUndo())
}

func TestAddPage_RespectsLimit(t *testing.T) {
	e, mem := newTestEngine(t, Options{MaxPages: 2})
	a := newFixture(t, mem, "page-a")
	bind(e, a, nil, "page-a", "")

	e.AddPage(Left)
	assert.Equal(t, "Added page to source profile.", e.Status())
	assert.Len(t, a.PageOrder(), 2)
	assert.Equal(t, a.ActivePageID(), e.ViewPageID(Left))
	assert.NotEqual(t, "page-a", e.ViewPageID(Left))

	e.Undo()
	e.Redo()
	require.Len(t, e.profile(Left).PageOrder(), 2)

	e.AddPage(Left)
	assert.Equal(t, "Page limit reached (2).", e.Status())
	assert.Len(t, e.profile(Left).PageOrder(), 2)
}

func TestUpdateProfileName(t *testing.T) {
	e, mem := newTestEngine(t, Options{})
	a := newFixture(t, mem, "page-a")
	bind(e, nil, a, "", "page-a")

	e.UpdateProfileName(Right, "  Test Profile ")
	assert.False(t, e.CanUndo())

	e.UpdateProfileName(Right, "   ")
	assert.Equal(t, "Untitled Profile", a.Name)
	assert.Equal(t, "Renamed target profile.", e.Status())
}

func TestRemoveAction(t *testing.T) {
	e, mem := newTestEngine(t, Options{})
	a := newFixture(t, mem, "page-a")
	bind(e, a, nil, "page-a", "")
	a.SetAction(profile.Keypad, "1,0", testAction(), "page-a")
	a.SetAction(profile.Encoder, "0,0", testAction(), "page-a")
	require.True(t, e.BeginDrag(Left, "page-a", profile.Keypad, "1,0"))

	e.RemoveAction(Left, profile.Keypad, "1,0")
	assert.Equal(t, "Deleted key action.", e.Status())
	assert.Nil(t, e.Drag())
	assert.Nil(t, a.Action(profile.Keypad, "1,0", "page-a"))

	e.RemoveAction(Left, profile.Encoder, "0,0")
	assert.Equal(t, "Deleted dial action.", e.Status())

	e.undo = nil
	e.RemoveAction(Left, profile.Keypad, "5,0")
	assert.False(t, e.CanUndo())
}

func TestUpdateTemplate_PrunesActions(t *testing.T) {
	e, mem := newTestEngine(t, Options{})
	a := newFixture(t, mem, "page-a")
	bind(e, a, nil, "page-a", "")
	a.SetAction(profile.Keypad, "0,0", testAction(), "page-a")
	a.SetAction(profile.Keypad, "8,3", testAction(), "page-a")

	e.UpdateTemplate(Left, "mini")

	assert.Equal(t, "Set source preset to Stream Deck Mini.", e.Status())
	assert.Equal(t, "mini", a.Template.ID)
	assert.Equal(t, "20GAI9902", a.Package.DeviceModel)
	assert.NotNil(t, a.Action(profile.Keypad, "0,0", "page-a"))
	assert.Nil(t, a.Action(profile.Keypad, "8,3", "page-a"))

	e.undo = nil
	e.UpdateTemplate(Left, "mini")
	e.UpdateTemplate(Left, "nope")
	assert.False(t, e.CanUndo())
}

func TestSetSourceLock(t *testing.T) {
	e, _ := newTestEngine(t, Options{})

	e.SetSourceLock(true)
	assert.False(t, e.CanUndo())

	e.SetSourceLock(false)
	assert.Equal(t, "Source lock disabled: drag to target moves.", e.Status())
	e.SetSourceLock(true)
	assert.Equal(t, "Source lock enabled: drag to target copies.", e.Status())
	assert.True(t, e.CanUndo())
}

func TestLoadProfile_RejectsUnsupportedPaths(t *testing.T) {
	e, _ := newTestEngine(t, Options{})

	err := e.LoadProfile(Left, "  ")
	assert.ErrorIs(t, err, ErrUnsupportedFile)
	assert.Equal(t, "Invalid profile path.", e.Status())

	err = e.LoadProfile(Left, "/tmp/profile.zip")
	assert.ErrorIs(t, err, ErrUnsupportedFile)
	assert.Equal(t, "Only .streamDeckProfile files are supported.", e.Status())
	assert.False(t, e.CanUndo())
}

func TestCreateSaveLoadRoundTrip(t *testing.T) {
	e, mem := newTestEngine(t, Options{})
	require.NoError(t, mem.MkdirAll("/out", 0755))

	require.NoError(t, e.CreateEmptyTarget())
	assert.Equal(t, "Created empty target profile (Stream Deck + XL).", e.Status())
	require.NotNil(t, e.profile(Right))

	err := e.SaveProfile(Left, "/out/none.streamDeckProfile")
	assert.ErrorIs(t, err, ErrNoProfile)
	assert.Equal(t, "No source profile loaded.", e.Status())

	require.NoError(t, e.SaveProfile(Right, "/out/Target.streamDeckProfile"))
	assert.Equal(t, "Saved Target.streamDeckProfile.", e.Status())

	require.NoError(t, e.LoadProfile(Left, "/out/Target.streamDeckProfile"))
	assert.Equal(t, "Loaded Target.streamDeckProfile.", e.Status())
	assert.Equal(t, "sdplusxl", e.profile(Left).Template.ID)
	assert.NotSame(t, e.profile(Left), e.profile(Right))
	assert.NotNil(t, e.Report(Left))

	left := e.profile(Left)
	err = e.LoadProfile(Left, "/out/missing.streamDeckProfile")
	require.Error(t, err)
	assert.Contains(t, e.Status(), "Failed to load profile:")
	assert.Same(t, left, e.profile(Left))

	e.CloseProfile(Right)
	require.NoError(t, e.CreateEmptyTarget())
	assert.Equal(t, "sdplusxl", e.profile(Right).Template.ID)
}

// putImageAction places a keypad action whose image exists on disk.
func putImageAction(t *testing.T, mem *fsys.Mem, a *profile.Archive, pageID string) {
	t.Helper()
	a.SetAction(profile.Keypad, "0,0", document.MustParse(`{
		"Name": "Pic",
		"UUID": "com.test.pic",
		"States": [{"Image": "Images/x.png"}],
		"Plugin": {"UUID": "com.test.plugin"}
	}`), pageID)
	img := filepath.Join(a.PageDirectoryPath(pageID, true), "Images", "x.png")
	require.NoError(t, mem.MkdirAll(filepath.Dir(img), 0755))
	require.NoError(t, mem.WriteFile(img, []byte("png"), 0644))
}

func TestSaveAfterTemplateChange_UndoKeepsAssets(t *testing.T) {
	e, mem := newTestEngine(t, Options{})
	require.NoError(t, e.CreateEmptyTarget())
	page := e.ViewPageID(Right)
	putImageAction(t, mem, e.profile(Right), page)

	e.UpdateTemplate(Right, "sdxl")
	require.NoError(t, e.SaveProfile(Right, "/tmp/first.streamDeckProfile"))
	e.Undo()

	restored := e.profile(Right)
	require.Equal(t, "sdplusxl", restored.Template.ID)
	assert.True(t, fsys.IsDir(mem, restored.ProfileRootPath()))
	_, ok := restored.ResolveImagePath("Images/x.png", page)
	assert.True(t, ok)
	assert.Zero(t, e.Report(Right).Errors)

	require.NoError(t, e.SaveProfile(Right, "/tmp/second.streamDeckProfile"))
	require.NoError(t, e.LoadProfile(Left, "/tmp/second.streamDeckProfile"))

	loaded := e.profile(Left)
	assert.Equal(t, "sdplusxl", loaded.Template.ID)
	assert.Equal(t, restored.Template.RootName, loaded.RootName)
	_, ok = loaded.ResolveImagePath("Images/x.png", page)
	assert.True(t, ok)
}

func TestSplitProfileView_CloneHasOwnWorkingDirectory(t *testing.T) {
	e, mem := newTestEngine(t, Options{})
	require.NoError(t, e.CreateEmptyTarget())
	page := e.ViewPageID(Right)
	putImageAction(t, mem, e.profile(Right), page)

	e.SplitProfileView(Right)
	require.True(t, e.IsShared())
	e.SplitProfileView(Right)
	require.False(t, e.IsShared())

	kept, copied := e.profile(Right), e.profile(Left)
	require.NotSame(t, kept, copied)
	assert.NotEqual(t, kept.ExtractedRoot, copied.ExtractedRoot)
	roots := e.ReferencedRoots()
	assert.Contains(t, roots, kept.ExtractedRoot)
	assert.Contains(t, roots, copied.ExtractedRoot)

	e.UpdateTemplate(Right, "sdxl")
	require.NoError(t, e.SaveProfile(Right, "/tmp/split.streamDeckProfile"))
	require.NoError(t, mem.RemoveAll(filepath.Join(kept.ExtractedRoot, "Profiles")))

	_, ok := copied.ResolveImagePath("Images/x.png", page)
	assert.True(t, ok, "the copy keeps its own assets")
	assert.Zero(t, preflight.Validate(copied).Errors)
}

func TestRefreshAfterEdit_SharedWorkingDirectory(t *testing.T) {
	e, mem := newTestEngine(t, Options{})
	left := newFixture(t, mem, "page-a")
	right, err := left.Clone()
	require.NoError(t, err)
	bind(e, left, right, "page-a", "page-a")
	require.Equal(t, left.ExtractedRoot, right.ExtractedRoot)
	e.left.report, e.right.report = nil, nil

	e.refreshAfterEdit(Right)

	assert.NotNil(t, e.Report(Left))
	assert.NotNil(t, e.Report(Right))
}

func TestUpdateCallbackReceivesState(t *testing.T) {
	e, mem := newTestEngine(t, Options{})
	a := newFixture(t, mem, "page-a", "page-b")
	bind(e, a, nil, "page-a", "")

	var got []*State
	e.SetUpdateCallback(func(s *State) { got = append(got, s) })

	e.SelectPage(Left, "page-b")

	require.Len(t, got, 1)
	s := got[0]
	assert.Equal(t, "Switched source page.", s.Status)
	assert.True(t, s.Left.Loaded)
	assert.False(t, s.Right.Loaded)
	assert.Equal(t, "page-b", s.Left.ViewPageID)
	assert.Len(t, s.Left.Pages, 2)
	assert.True(t, s.CanUndo)
	assert.NotNil(t, s.Right.Pages)
}

func TestReferencedRoots(t *testing.T) {
	e, mem := newTestEngine(t, Options{})
	first := newFixture(t, mem, "page-a")
	second := newFixture(t, mem, "page-b")
	bind(e, first, nil, "page-a", "")

	e.recordHistory()
	e.setProfileForPane(Left, second, "page-b")

	roots := e.ReferencedRoots()
	assert.ElementsMatch(t, []string{first.ExtractedRoot, second.ExtractedRoot}, roots)
}
