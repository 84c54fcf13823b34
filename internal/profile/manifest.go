package profile

import (
	"bytes"
	"encoding/json"

	"github.com/SirCrest/SDProfileManager-Windows/internal/document"
)

// Defaults written into manifests that lack them.
const (
	DefaultAppVersion    = "7.3.0.22513"
	DefaultFormatVersion = 1
	DefaultRootVersion   = "3.0"
	DefaultOSVersion     = "10.0.22631"
	UntitledProfileName  = "Untitled Profile"
)

// PackageManifest is package.json at the archive root.
type PackageManifest struct {
	AppVersion      string         `json:"AppVersion"`
	DeviceModel     string         `json:"DeviceModel"`
	DeviceSettings  *document.Node `json:"DeviceSettings"`
	FormatVersion   *int           `json:"FormatVersion"`
	OSType          string         `json:"OSType"`
	OSVersion       string         `json:"OSVersion"`
	RequiredPlugins []string       `json:"RequiredPlugins"`
}

// DeviceManifest identifies the physical device a profile targets.
type DeviceManifest struct {
	Model string `json:"Model"`
	UUID  string `json:"UUID"`
}

// PagesManifest carries the three redundant page references of the root manifest.
type PagesManifest struct {
	Current string   `json:"Current"`
	Default string   `json:"Default"`
	Pages   []string `json:"Pages"`
}

// RootProfileManifest is Profiles/<root>.sdProfile/manifest.json.
type RootProfileManifest struct {
	Device  *DeviceManifest `json:"Device"`
	Name    string          `json:"Name"`
	Pages   *PagesManifest  `json:"Pages"`
	Version string          `json:"Version"`
}

// ListedPages returns Pages.Pages, tolerating a missing block.
func (m *RootProfileManifest) ListedPages() []string {
	if m == nil || m.Pages == nil {
		return nil
	}
	return m.Pages.Pages
}

// DefaultPage returns Pages.Default, tolerating a missing block.
func (m *RootProfileManifest) DefaultPage() string {
	if m == nil || m.Pages == nil {
		return ""
	}
	return m.Pages.Default
}

// CurrentPage returns Pages.Current, tolerating a missing block.
func (m *RootProfileManifest) CurrentPage() string {
	if m == nil || m.Pages == nil {
		return ""
	}
	return m.Pages.Current
}

// ActionMap maps a "column,row" coordinate to an action document.
type ActionMap map[string]*document.Node

// Clone returns a shallow copy of the map.
func (m ActionMap) Clone() ActionMap {
	out := make(ActionMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ControllerManifest is one controller block of a page manifest. Actions is
// nil for controller types that carry no actions and is then omitted.
type ControllerManifest struct {
	Actions ActionMap      `json:"Actions"`
	Type    ControllerKind `json:"Type"`
}

// MarshalJSON omits Actions only when it is nil, so an empty keypad still
// serializes as "Actions":{}.
func (c ControllerManifest) MarshalJSON() ([]byte, error) {
	if c.Actions == nil {
		return EncodeJSON(struct {
			Type ControllerKind `json:"Type"`
		}{Type: c.Type})
	}
	return EncodeJSON(struct {
		Actions ActionMap      `json:"Actions"`
		Type    ControllerKind `json:"Type"`
	}{Actions: c.Actions, Type: c.Type})
}

// PageManifest is Profiles/<root>/Profiles/<PAGE>/manifest.json.
type PageManifest struct {
	Controllers []ControllerManifest `json:"Controllers"`
	Icon        string               `json:"Icon"`
	Name        string               `json:"Name"`
}

// Actions returns the action map of the first controller of kind.
func (m *PageManifest) Actions(kind ControllerKind) ActionMap {
	for _, c := range m.Controllers {
		if c.Type == kind && c.Actions != nil {
			return c.Actions.Clone()
		}
	}
	return ActionMap{}
}

// EncodeJSON encodes v compactly without escaping HTML characters, matching
// how the desktop app writes manifests.
func EncodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
