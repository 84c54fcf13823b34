package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SirCrest/SDProfileManager-Windows/internal/database/models"
	"github.com/SirCrest/SDProfileManager-Windows/internal/document"
	"github.com/SirCrest/SDProfileManager-Windows/internal/fsys"
	"github.com/SirCrest/SDProfileManager-Windows/internal/profile"
	"github.com/SirCrest/SDProfileManager-Windows/internal/services/archive"
	"github.com/SirCrest/SDProfileManager-Windows/internal/services/plugins"
	"github.com/SirCrest/SDProfileManager-Windows/internal/services/pubsub"
	"github.com/SirCrest/SDProfileManager-Windows/internal/services/testutil"
	"github.com/SirCrest/SDProfileManager-Windows/internal/services/workspace"
)

const (
	pageA      = "0d2f5d3e-5a7c-4b1f-9a61-3a4c3b0f6a11"
	sourcePath = "/in/Source.streamDeckProfile"
)

type testEnv struct {
	server  *Server
	handler http.Handler
	fs      *fsys.Mem
	svc     *archive.Service
	db      *testutil.TestDB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := fsys.NewMem()
	for _, dir := range []string{"/tmp", "/in", "/out", "/plugins"} {
		require.NoError(t, mem.MkdirAll(dir, 0755))
	}
	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	svc := archive.NewService(mem, "/tmp", nil)
	engine := workspace.NewEngine(svc, workspace.Options{LockSource: true})
	s := NewServer(Config{
		Engine:      engine,
		Catalog:     plugins.NewCatalog(mem, "/plugins", nil),
		Settings:    db.SettingRepo,
		Recent:      db.RecentRepo,
		PubSub:      pubsub.New(),
		CORSOrigins: []string{"http://localhost:3000"},
		Version:     "test",
	})
	return &testEnv{server: s, handler: s.Handler(), fs: mem, svc: svc, db: db}
}

// writeSource saves a one-page profile with a keypad action, an encoder
// action and an image to sourcePath.
func (env *testEnv) writeSource(t *testing.T) {
	t.Helper()
	a := testutil.NewProfile(t, testutil.ProfileOptions{FS: env.fs, Name: "Source"}, pageA)
	a.SetAction(profile.Keypad, "0,0", document.MustParse(`{
		"Name": "Open",
		"UUID": "com.test.open",
		"States": [{"Title": "Open", "Image": "Images/open.png"}],
		"Plugin": {"UUID": "com.test.plugin", "Name": "Tester"}
	}`), "")
	a.SetAction(profile.Encoder, "0,0", document.MustParse(`{
		"Name": "Volume",
		"UUID": "com.test.dial.volume",
		"States": [{}],
		"Plugin": {"UUID": "com.test.dial", "Name": "Dial"}
	}`), "")
	img := filepath.Join(a.PageDirectoryPath(pageA, false), "Images", "open.png")
	require.NoError(t, env.fs.MkdirAll(filepath.Dir(img), 0755))
	require.NoError(t, env.fs.WriteFile(img, []byte("\x89PNG\r\n\x1a\n"), 0644))
	require.NoError(t, env.svc.Save(a, sourcePath))
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	body := decode[map[string]string](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestTemplates(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/templates", nil)
	require.Equal(t, http.StatusOK, w.Code)

	templates := decode[[]profile.Template](t, w)
	assert.Len(t, templates, len(profile.Templates()))
}

func TestWorkspace_Initial(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/workspace", nil)
	require.Equal(t, http.StatusOK, w.Code)

	state := decode[workspace.State](t, w)
	assert.False(t, state.Left.Loaded)
	assert.False(t, state.Right.Loaded)
	assert.True(t, state.LockSource)
	assert.False(t, state.CanUndo)
}

func TestInvalidInputs(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/panes/middle/close", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeBadRequest, decode[ErrorEnvelope](t, w).Code)

	req := httptest.NewRequest(http.MethodPut, "/api/lock", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	w = env.do(t, http.MethodPut, "/api/lock", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, "/api/panes/left/template", templateRequest{TemplateID: "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/drop", slotRequest{Side: "right", Controller: "pedal", Coordinate: "0,0"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/panes/left/preflight", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, CodeNoProfile, decode[ErrorEnvelope](t, w).Code)
}

func TestLoad_UnsupportedAndMissing(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/panes/left/load", pathRequest{Path: "/in/notes.txt"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	envelope := decode[ErrorEnvelope](t, w)
	assert.Equal(t, CodeUnsupportedFile, envelope.Code)
	assert.Equal(t, "Only .streamDeckProfile files are supported.", envelope.Message)

	w = env.do(t, http.MethodPost, "/api/panes/left/load", pathRequest{Path: "/in/missing.streamDeckProfile"})
	assert.GreaterOrEqual(t, w.Code, 400)
	assert.Contains(t, decode[ErrorEnvelope](t, w).Message, "Failed to load profile:")

	w = env.do(t, http.MethodPost, "/api/panes/left/save", pathRequest{Path: "/out/x.streamDeckProfile"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, CodeNoProfile, decode[ErrorEnvelope](t, w).Code)
}

func TestLoadDragDropSave(t *testing.T) {
	env := newTestEnv(t)
	env.writeSource(t)

	w := env.do(t, http.MethodPost, "/api/panes/left/load", pathRequest{Path: sourcePath})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	state := decode[workspace.State](t, w)
	require.True(t, state.Left.Loaded)
	assert.Equal(t, "Loaded Source.streamDeckProfile.", state.Status)
	assert.Equal(t, pageA, state.Left.ViewPageID)

	w = env.do(t, http.MethodPost, "/api/target", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[workspace.State](t, w).Right.Loaded)

	w = env.do(t, http.MethodPost, "/api/drag", dragRequest{Side: "left", Controller: "keypad", Coordinate: "0,0"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, decode[workspace.State](t, w).Drag)

	w = env.do(t, http.MethodPost, "/api/drop", slotRequest{Side: "right", Controller: "keypad", Coordinate: "1,0"})
	require.Equal(t, http.StatusOK, w.Code)
	state = decode[workspace.State](t, w)
	assert.Nil(t, state.Drag)
	assert.True(t, state.CanUndo)

	// Lock on: the source keeps its action, the target gains a copy.
	w = env.do(t, http.MethodGet, "/api/panes/left/pages/current/actions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	left := decode[PageActions](t, w)
	assert.Len(t, left.Actions, 2)

	w = env.do(t, http.MethodGet, "/api/panes/right/pages/current/actions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	right := decode[PageActions](t, w)
	require.Len(t, right.Actions, 1)
	assert.Equal(t, "1,0", right.Actions[0].Coordinate)
	assert.Equal(t, "Open - Tester", right.Actions[0].Presentation.DisplayName)

	// The referenced image travelled with the action.
	w = env.do(t, http.MethodGet, "/api/panes/right/pages/current/image?ref=Images/open.png", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	w = env.do(t, http.MethodPost, "/api/panes/right/save", pathRequest{Path: "/out/Target.streamDeckProfile"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Saved Target.streamDeckProfile.", decode[workspace.State](t, w).Status)
	assert.True(t, fsys.IsFile(env.fs, "/out/Target.streamDeckProfile"))

	w = env.do(t, http.MethodGet, "/api/recent", nil)
	require.Equal(t, http.StatusOK, w.Code)
	recent := decode[[]models.RecentProfile](t, w)
	require.Len(t, recent, 2)
	paths := []string{recent[0].Path, recent[1].Path}
	assert.ElementsMatch(t, []string{sourcePath, "/out/Target.streamDeckProfile"}, paths)

	w = env.do(t, http.MethodPost, "/api/undo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Undo complete.", decode[workspace.State](t, w).Status)
	w = env.do(t, http.MethodGet, "/api/panes/right/pages/current/actions", nil)
	assert.Empty(t, decode[PageActions](t, w).Actions)

	w = env.do(t, http.MethodPost, "/api/redo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Redo complete.", decode[workspace.State](t, w).Status)
}

func TestActions_EncoderPluginResolution(t *testing.T) {
	env := newTestEnv(t)
	env.writeSource(t)
	require.NoError(t, env.fs.MkdirAll("/plugins/com.test.dial.sdPlugin", 0755))
	require.NoError(t, env.fs.WriteFile("/plugins/com.test.dial.sdPlugin/manifest.json",
		[]byte(`{"Actions":[{"UUID":"com.test.dial.volume","Encoder":{"layout":"volume.json"}}]}`), 0644))

	w := env.do(t, http.MethodPost, "/api/panes/left/load", pathRequest{Path: sourcePath})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/panes/left/pages/"+strings.ToUpper(pageA)+"/actions", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	page := decode[PageActions](t, w)
	assert.Equal(t, pageA, page.PageID)

	var encoder *ActionView
	for i := range page.Actions {
		if page.Actions[i].Controller == profile.Encoder {
			encoder = &page.Actions[i]
		} else {
			assert.Nil(t, page.Actions[i].Plugin)
		}
	}
	require.NotNil(t, encoder)
	require.NotNil(t, encoder.Plugin)
	assert.Equal(t, plugins.LayoutAvailable, encoder.Plugin.Availability)
	assert.Equal(t, "volume.json", encoder.Plugin.LayoutPath)

	w = env.do(t, http.MethodGet, "/api/plugins/com.test.dial/actions/com.test.dial.volume", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, plugins.LayoutAvailable, decode[plugins.ActionDefinition](t, w).Availability)

	w = env.do(t, http.MethodDelete, "/api/plugins/cache", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/api/panes/left/pages/ffffffff-0000-0000-0000-000000000000/actions", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/panes/left/pages/current/image?ref=Images/none.png", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, env.fs.WriteFile("/secret.txt", []byte("host file"), 0644))
	for _, ref := range []string{"../../../../../../../../secret.txt", "Images/../../../../../../../../secret.txt", "/secret.txt"} {
		w = env.do(t, http.MethodGet, "/api/panes/left/pages/current/image?ref="+url.QueryEscape(ref), nil)
		assert.Equal(t, http.StatusNotFound, w.Code, ref)
		assert.NotContains(t, w.Body.String(), "host file")
	}
}

func TestPaneEditing(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/target", nil).Code)

	w := env.do(t, http.MethodPut, "/api/panes/right/name", nameRequest{Name: "  "})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Untitled Profile", decode[workspace.State](t, w).Right.Name)

	w = env.do(t, http.MethodPost, "/api/panes/right/pages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	state := decode[workspace.State](t, w)
	visible := 0
	for _, p := range state.Right.Pages {
		if p.Visible {
			visible++
		}
	}
	require.Equal(t, 2, visible)
	added := state.Right.ViewPageID
	require.NotEmpty(t, added)

	w = env.do(t, http.MethodDelete, "/api/panes/right/pages/"+added, nil)
	require.Equal(t, http.StatusOK, w.Code)
	for _, p := range decode[workspace.State](t, w).Right.Pages {
		assert.NotEqual(t, added, p.ID)
	}

	w = env.do(t, http.MethodPut, "/api/panes/right/template", templateRequest{TemplateID: "mini"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "mini", decode[workspace.State](t, w).Right.TemplateID)

	w = env.do(t, http.MethodGet, "/api/panes/right/preflight", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/panes/right/split", nil)
	require.Equal(t, http.StatusOK, w.Code)
	state = decode[workspace.State](t, w)
	assert.Equal(t, workspace.SingleProfile, state.Layout)
	assert.True(t, state.Shared)

	w = env.do(t, http.MethodPost, "/api/panes/right/close", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[workspace.State](t, w).Right.Loaded)
}

func TestLock_PersistsSetting(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPut, "/api/lock", map[string]bool{"locked": false})
	require.Equal(t, http.StatusOK, w.Code)
	state := decode[workspace.State](t, w)
	assert.False(t, state.LockSource)
	assert.Equal(t, "Source lock disabled: drag to target moves.", state.Status)

	locked, err := env.db.SettingRepo.GetBool(t.Context(), models.SettingLockSourceProfile, true)
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestEvents_StreamsUpdates(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first pubsub.Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, pubsub.TopicWorkspaceUpdated, first.Type)
	require.NotNil(t, first.Workspace)
	assert.True(t, first.Workspace.LockSource)

	// Wait until the handler has subscribed before mutating.
	require.Eventually(t, func() bool {
		return env.server.events.SubscriberCount(pubsub.TopicSettingsUpdated) == 1
	}, time.Second, 10*time.Millisecond)

	body := bytes.NewReader([]byte(`{"locked": false}`))
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/lock", body)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	seen := map[pubsub.Topic]pubsub.Event{}
	for {
		_, ws := seen[pubsub.TopicWorkspaceUpdated]
		_, st := seen[pubsub.TopicSettingsUpdated]
		if ws && st {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var ev pubsub.Event
		require.NoError(t, conn.ReadJSON(&ev))
		seen[ev.Type] = ev
	}

	settings := seen[pubsub.TopicSettingsUpdated]
	require.NotNil(t, settings.Settings)
	assert.False(t, settings.Settings.LockSource)
	assert.Nil(t, settings.Workspace)

	updated := seen[pubsub.TopicWorkspaceUpdated]
	require.NotNil(t, updated.Workspace)
	assert.False(t, updated.Workspace.LockSource)
	assert.Greater(t, updated.Seq, uint64(0))
}
