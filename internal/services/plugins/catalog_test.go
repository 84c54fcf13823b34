package plugins

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SirCrest/SDProfileManager-Windows/internal/fsys"
)

const root = "/plugins"

const dialManifest = `{
  "Name": "Dial Tools",
  "Actions": [
    {"UUID": "com.example.dial.volume", "Encoder": {"layout": "layouts/volume.json", "icon": " icons/volume "}},
    {"UUID": "com.example.dial.plain", "Encoder": {"icon": "icons/plain"}},
    "not-an-object"
  ]
}`

func writePlugin(t *testing.T, fs fsys.FS, folder, manifest string) {
	t.Helper()
	dir := filepath.Join(root, folder)
	require.NoError(t, fs.MkdirAll(dir, 0755))
	if manifest != "" {
		require.NoError(t, fs.WriteFile(filepath.Join(dir, "manifest.json"), []byte(manifest), 0644))
	}
}

func TestResolveAction_MissingIDs(t *testing.T) {
	fs := fsys.NewMem()
	writePlugin(t, fs, "com.example.dial.sdPlugin", dialManifest)
	c := NewCatalog(fs, root, nil)

	def := c.ResolveAction("  ", "x")
	assert.Equal(t, LayoutMissing, def.Availability)
	assert.Equal(t, "Plugin UUID missing from action.", def.Message)

	def = c.ResolveAction("com.example.dial", "")
	assert.Equal(t, LayoutMissing, def.Availability)
	assert.Equal(t, "Action UUID missing from action payload.", def.Message)
}

func TestResolveAction_PluginMissing(t *testing.T) {
	fs := fsys.NewMem()
	c := NewCatalog(fs, root, nil)

	def := c.ResolveAction("com.example.dial", "a")
	assert.Equal(t, PluginMissing, def.Availability)
	assert.Equal(t, "Plugin root not found: /plugins", def.Message)

	require.NoError(t, fs.MkdirAll(root, 0755))
	def = c.ResolveAction("com.example.dial", "a")
	assert.Equal(t, PluginMissing, def.Availability)
	assert.Equal(t, "Plugin package not installed locally.", def.Message)
	assert.Equal(t, "/plugins/com.example.dial.sdPlugin", def.PluginFolderPath)
}

func TestResolveAction_ManifestMissing(t *testing.T) {
	fs := fsys.NewMem()
	writePlugin(t, fs, "com.example.dial.sdPlugin", "")
	c := NewCatalog(fs, root, nil)

	def := c.ResolveAction("com.example.dial", "a")
	assert.Equal(t, LayoutMissing, def.Availability)
	assert.Equal(t, "Plugin manifest missing.", def.Message)
}

func TestResolveAction_Layouts(t *testing.T) {
	fs := fsys.NewMem()
	writePlugin(t, fs, "com.example.dial.sdPlugin", dialManifest)
	c := NewCatalog(fs, root, nil)

	def := c.ResolveAction("com.example.dial", "COM.EXAMPLE.DIAL.VOLUME")
	assert.Equal(t, LayoutAvailable, def.Availability)
	assert.Equal(t, "layouts/volume.json", def.LayoutPath)
	assert.Equal(t, "icons/volume", def.EncoderIconPath)
	assert.Equal(t, "Plugin layout available.", def.Message)

	def = c.ResolveAction("com.example.dial", "com.example.dial.plain")
	assert.Equal(t, LayoutMissing, def.Availability)
	assert.Equal(t, "icons/plain", def.EncoderIconPath)
	assert.Equal(t, "Plugin action has no encoder layout.", def.Message)

	def = c.ResolveAction("com.example.dial", "com.example.dial.gone")
	assert.Equal(t, LayoutMissing, def.Availability)
	assert.Equal(t, "Action com.example.dial.gone not found in plugin manifest.", def.Message)
}

func TestResolveAction_FolderLookupIgnoresCase(t *testing.T) {
	fs := fsys.NewMem()
	writePlugin(t, fs, "Com.Example.Dial.sdPlugin", dialManifest)
	c := NewCatalog(fs, root, nil)

	def := c.ResolveAction("com.example.dial", "com.example.dial.volume")
	assert.Equal(t, LayoutAvailable, def.Availability)
	assert.Equal(t, "/plugins/Com.Example.Dial.sdPlugin", def.PluginFolderPath)
}

func TestResolveAction_BadManifests(t *testing.T) {
	fs := fsys.NewMem()
	writePlugin(t, fs, "enc.sdPlugin", "ELGATO\x00\x01binary")
	writePlugin(t, fs, "broken.sdPlugin", "{not json")
	writePlugin(t, fs, "array.sdPlugin", "[1, 2]")
	c := NewCatalog(fs, root, nil)

	def := c.ResolveAction("enc", "a")
	assert.Equal(t, LayoutEncrypted, def.Availability)
	assert.Equal(t, "Manifest is ELGATO packaged/encrypted.", def.Message)

	def = c.ResolveAction("broken", "a")
	assert.Equal(t, LayoutEncrypted, def.Availability)
	assert.Contains(t, def.Message, "Manifest JSON parse failed:")

	def = c.ResolveAction("array", "a")
	assert.Equal(t, LayoutMissing, def.Availability)
	assert.Equal(t, "Manifest JSON root is invalid.", def.Message)
}

func TestCatalog_CachesUntilClear(t *testing.T) {
	fs := fsys.NewMem()
	writePlugin(t, fs, "com.example.dial.sdPlugin", dialManifest)
	c := NewCatalog(fs, root, nil)

	def := c.ResolveAction("com.example.dial", "com.example.dial.volume")
	require.Equal(t, LayoutAvailable, def.Availability)

	// The cached manifest wins over the rewritten file, whatever the id's case.
	writePlugin(t, fs, "com.example.dial.sdPlugin", `{"Actions": []}`)
	def = c.ResolveAction("COM.EXAMPLE.DIAL", "com.example.dial.volume")
	assert.Equal(t, LayoutAvailable, def.Availability)

	c.Clear()
	def = c.ResolveAction("com.example.dial", "com.example.dial.volume")
	assert.Equal(t, LayoutMissing, def.Availability)
}

func TestNewCatalog_DefaultRoot(t *testing.T) {
	c := NewCatalog(fsys.NewMem(), "", nil)
	assert.Equal(t, DefaultRoot(), c.Root())
	assert.Equal(t, filepath.Join("Elgato", "StreamDeck", "Plugins"),
		filepath.Join(filepath.Base(filepath.Dir(filepath.Dir(c.Root()))),
			filepath.Base(filepath.Dir(c.Root())), filepath.Base(c.Root())))
}
