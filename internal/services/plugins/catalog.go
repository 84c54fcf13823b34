// Package plugins resolves action metadata from locally installed Stream
// Deck plugin packages.
package plugins

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/SirCrest/SDProfileManager-Windows/internal/document"
	"github.com/SirCrest/SDProfileManager-Windows/internal/fsys"
)

// Availability describes how much of a plugin action can be rendered.
type Availability string

const (
	ProfileOnly     Availability = "profileOnly"
	LayoutAvailable Availability = "layoutAvailable"
	LayoutEncrypted Availability = "layoutEncrypted"
	LayoutMissing   Availability = "layoutMissing"
	PluginMissing   Availability = "pluginMissing"
)

const (
	pluginSuffix     = ".sdPlugin"
	manifestFileName = "manifest.json"
)

// encryptedHeader prefixes manifests shipped in Elgato's packaged format.
var encryptedHeader = []byte("ELGATO")

// ActionDefinition is the result of resolving one plugin action.
type ActionDefinition struct {
	Availability     Availability `json:"availability"`
	PluginUUID       string       `json:"pluginUuid,omitempty"`
	PluginFolderPath string       `json:"pluginFolderPath,omitempty"`
	LayoutPath       string       `json:"layoutPath,omitempty"`
	EncoderIconPath  string       `json:"encoderIconPath,omitempty"`
	Message          string       `json:"message"`
}

type manifestEntry struct {
	availability Availability
	root         *document.Node
	err          string
}

// Catalog reads plugin manifests under a root directory. Parsed manifests
// are cached for the life of the catalog, keyed by plugin id without regard
// to case, until Clear is called.
type Catalog struct {
	fs        fsys.FS
	root      string
	logger    *zap.Logger
	manifests *xsync.Map[string, manifestEntry]
}

// NewCatalog creates a catalog over root. An empty root selects the Stream
// Deck plugin directory of the current user.
func NewCatalog(fs fsys.FS, root string, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(root) == "" {
		root = DefaultRoot()
	}
	return &Catalog{
		fs:        fs,
		root:      root,
		logger:    logger,
		manifests: xsync.NewMap[string, manifestEntry](),
	}
}

// DefaultRoot returns <user config dir>/Elgato/StreamDeck/Plugins.
func DefaultRoot() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "Elgato", "StreamDeck", "Plugins")
}

// Root returns the plugin directory the catalog reads.
func (c *Catalog) Root() string { return c.root }

// Clear drops every cached manifest.
func (c *Catalog) Clear() {
	c.manifests.Clear()
}

// ResolveAction looks up actionUUID in the manifest of pluginUUID.
func (c *Catalog) ResolveAction(pluginUUID, actionUUID string) ActionDefinition {
	pluginUUID = strings.TrimSpace(pluginUUID)
	actionUUID = strings.TrimSpace(actionUUID)

	if pluginUUID == "" {
		return ActionDefinition{
			Availability: LayoutMissing,
			Message:      "Plugin UUID missing from action.",
		}
	}

	if !fsys.IsDir(c.fs, c.root) {
		return ActionDefinition{
			Availability: PluginMissing,
			PluginUUID:   pluginUUID,
			Message:      fmt.Sprintf("Plugin root not found: %s", c.root),
		}
	}

	folder, ok := fsys.FindDirFold(c.fs, c.root, pluginUUID+pluginSuffix)
	if !ok {
		return ActionDefinition{
			Availability:     PluginMissing,
			PluginUUID:       pluginUUID,
			PluginFolderPath: filepath.Join(c.root, pluginUUID+pluginSuffix),
			Message:          "Plugin package not installed locally.",
		}
	}

	def := ActionDefinition{PluginUUID: pluginUUID, PluginFolderPath: folder}

	manifestPath, ok := fsys.ResolveFold(c.fs, folder, manifestFileName)
	if !ok || !fsys.IsFile(c.fs, manifestPath) {
		def.Availability = LayoutMissing
		def.Message = "Plugin manifest missing."
		return def
	}

	manifest := c.manifest(pluginUUID, manifestPath)
	if manifest.availability == LayoutEncrypted {
		def.Availability = LayoutEncrypted
		def.Message = manifest.err
		return def
	}
	if manifest.root == nil {
		def.Availability = LayoutMissing
		def.Message = manifest.err
		return def
	}

	if actionUUID == "" {
		def.Availability = LayoutMissing
		def.Message = "Action UUID missing from action payload."
		return def
	}

	action := findAction(manifest.root, actionUUID)
	if action == nil {
		def.Availability = LayoutMissing
		def.Message = fmt.Sprintf("Action %s not found in plugin manifest.", actionUUID)
		return def
	}

	encoder := action.Get("Encoder")
	layout := strings.TrimSpace(encoder.Get("layout").StringValue())
	def.EncoderIconPath = strings.TrimSpace(encoder.Get("icon").StringValue())
	if layout == "" {
		def.Availability = LayoutMissing
		def.Message = "Plugin action has no encoder layout."
		return def
	}

	def.Availability = LayoutAvailable
	def.LayoutPath = layout
	def.Message = "Plugin layout available."
	return def
}

func (c *Catalog) manifest(pluginUUID, path string) manifestEntry {
	entry, loaded := c.manifests.LoadOrCompute(strings.ToLower(pluginUUID), func() (manifestEntry, bool) {
		return c.loadManifest(path), false
	})
	if !loaded {
		c.logger.Debug("plugin manifest cached",
			zap.String("plugin", pluginUUID),
			zap.String("availability", string(entry.availability)))
	}
	return entry
}

func (c *Catalog) loadManifest(path string) manifestEntry {
	data, err := c.fs.ReadFile(path)
	if err != nil {
		return manifestEntry{
			availability: LayoutMissing,
			err:          fmt.Sprintf("Manifest load failed: %v", err),
		}
	}
	if bytes.HasPrefix(data, encryptedHeader) {
		return manifestEntry{
			availability: LayoutEncrypted,
			err:          "Manifest is ELGATO packaged/encrypted.",
		}
	}

	root, err := document.Parse(data)
	if err != nil {
		return manifestEntry{
			availability: LayoutEncrypted,
			err:          fmt.Sprintf("Manifest JSON parse failed: %v", err),
		}
	}
	if !root.IsObject() {
		return manifestEntry{
			availability: LayoutMissing,
			err:          "Manifest JSON root is invalid.",
		}
	}
	return manifestEntry{availability: LayoutAvailable, root: root}
}

func findAction(root *document.Node, actionUUID string) *document.Node {
	for _, item := range root.Get("Actions").Items() {
		if !item.IsObject() {
			continue
		}
		if strings.EqualFold(item.Get("UUID").StringValue(), actionUUID) {
			return item
		}
	}
	return nil
}
