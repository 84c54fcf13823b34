// Package profile holds the in-memory model of a Stream Deck profile archive:
// device templates, manifests, page states and the archive aggregate itself.
package profile

import "strings"

// ZeroUUID is the manifest sentinel meaning "no specific current page".
const ZeroUUID = "00000000-0000-0000-0000-000000000000"

// FallbackTemplateID is used when a device model string is not recognized.
// It names the template with the largest grid so no action is truncated.
const FallbackTemplateID = "sdplusxl"

// ControllerKind identifies an action surface on a device.
type ControllerKind string

const (
	Keypad  ControllerKind = "Keypad"
	Encoder ControllerKind = "Encoder"
	Neo     ControllerKind = "Neo"
)

// ParseControllerKind maps a manifest or API string onto a kind, ignoring case.
func ParseControllerKind(s string) (ControllerKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "keypad", "key", "keys":
		return Keypad, true
	case "encoder", "dial", "dials":
		return Encoder, true
	case "neo":
		return Neo, true
	}
	return "", false
}

// Template describes one supported device.
type Template struct {
	ID              string           `json:"id"`
	Label           string           `json:"label"`
	DeviceModel     string           `json:"deviceModel"`
	RootName        string           `json:"rootName"`
	DefaultPageID   string           `json:"defaultPageId"`
	WorkingPageID   string           `json:"workingPageId"`
	Columns         int              `json:"columns"`
	Rows            int              `json:"rows"`
	Dials           int              `json:"dials"`
	ControllerOrder []ControllerKind `json:"controllerOrder"`
}

var catalog = []*Template{
	{
		ID: "mini", Label: "Stream Deck Mini", DeviceModel: "20GAI9902",
		RootName:      "3987917B-DACD-477A-BABC-8EEC9D5D94F6.sdProfile",
		DefaultPageID: "5e312b8f-eb08-4050-9d5f-3b76704c19bf", WorkingPageID: "7b823eed-b407-4549-877b-ba71b61b90a0",
		Columns: 3, Rows: 2, Dials: 0, ControllerOrder: []ControllerKind{Keypad},
	},
	{
		ID: "neo", Label: "Stream Deck Neo", DeviceModel: "20GBJ9901",
		RootName:      "4B6D966C-8037-4CC2-8F2C-A3D0CE41053C.sdProfile",
		DefaultPageID: "e8b3aee1-c58c-4092-b1b1-9bfb36bf18e0", WorkingPageID: "1f2ee4e4-4496-4df0-8da3-8b564ad0df26",
		Columns: 4, Rows: 2, Dials: 0, ControllerOrder: []ControllerKind{Keypad, Neo},
	},
	{
		ID: "sd15", Label: "Stream Deck", DeviceModel: "20GBL9901",
		RootName:      "47BA4A1D-B876-4DEF-9AD7-1D966A64D341.sdProfile",
		DefaultPageID: "eee1dbe5-2ab8-45df-96f5-80caa89b1ceb", WorkingPageID: "99962573-27ce-4d35-96e6-f9d8b9e0451b",
		Columns: 5, Rows: 3, Dials: 0, ControllerOrder: []ControllerKind{Keypad},
	},
	{
		ID: "sdxl", Label: "Stream Deck XL", DeviceModel: "20GAT9902",
		RootName:      "673C3A5E-B30C-4AD5-B8B7-03BF1686E9F9.sdProfile",
		DefaultPageID: "0d62177f-fa52-4dac-91bb-f4773d646ec9", WorkingPageID: "6239c2c6-0ad6-47b9-9e1f-70c254ddc7e6",
		Columns: 8, Rows: 4, Dials: 0, ControllerOrder: []ControllerKind{Keypad},
	},
	{
		ID: "sdplus", Label: "Stream Deck +", DeviceModel: "20GBD9901",
		RootName:      "848EB342-A9D6-4388-BF1F-E9C53C9E7482.sdProfile",
		DefaultPageID: "d90b6cf1-70eb-4737-b2e8-eb821666a8d0", WorkingPageID: "502dc114-3541-49f4-9c29-6618ec59b8bc",
		Columns: 4, Rows: 2, Dials: 4, ControllerOrder: []ControllerKind{Encoder, Keypad},
	},
	{
		ID: "sdplusxl", Label: "Stream Deck + XL", DeviceModel: "20GBX9901",
		RootName:      "AD21D867-BE2D-4B6B-B358-5A5E74CF7280.sdProfile",
		DefaultPageID: "5c038231-2e92-45ea-a0a8-ba60e3799cf1", WorkingPageID: "f2fcf47e-e496-49e3-9f78-6affc2f8ce87",
		Columns: 9, Rows: 4, Dials: 6, ControllerOrder: []ControllerKind{Keypad, Encoder},
	},
	{
		ID: "sdstudio", Label: "Stream Deck Studio", DeviceModel: "20GBO9901",
		RootName:      "E837C4E1-6260-463E-95F9-D5974BB675FD.sdProfile",
		DefaultPageID: "890e7c01-8ca0-432e-a213-6372d4baed9a", WorkingPageID: "b888f2f4-8bf0-424a-acd6-fb5e3fb5a307",
		Columns: 16, Rows: 2, Dials: 2, ControllerOrder: []ControllerKind{Encoder, Keypad},
	},
	{
		ID: "g100sd", Label: "Galleon 100 SD", DeviceModel: "GRETSCH",
		RootName:      "89F30D12-7A76-4D0B-9462-65B815E812B9.sdProfile",
		DefaultPageID: "f8832b67-cd24-449d-9000-b17c1dac0e73", WorkingPageID: "b13a1727-8271-4408-85c7-c94b61861b0f",
		Columns: 3, Rows: 4, Dials: 2, ControllerOrder: []ControllerKind{Encoder, Keypad},
	},
}

// Templates returns every supported template in catalog order.
func Templates() []*Template {
	return append([]*Template(nil), catalog...)
}

// TemplateByID looks a template up by its short id.
func TemplateByID(id string) (*Template, bool) {
	for _, t := range catalog {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// TemplateForDeviceModel returns the template whose device model matches
// exactly. Unknown or empty models resolve to the fallback template.
func TemplateForDeviceModel(model string) *Template {
	for _, t := range catalog {
		if t.DeviceModel == model {
			return t
		}
	}
	t, _ := TemplateByID(FallbackTemplateID)
	return t
}

// HasTouchStrip reports whether the device exposes a touch strip.
func (t *Template) HasTouchStrip() bool {
	switch t.ID {
	case "sdstudio":
		return false
	case "g100sd":
		return true
	}
	return t.Dials > 0
}

// HasDialSlots reports whether dial controls are shown as separate slots.
func (t *Template) HasDialSlots() bool {
	if t.ID == "g100sd" {
		return false
	}
	return t.Dials > 0
}

// TouchStripAboveKeys reports whether the strip sits above the key grid.
func (t *Template) TouchStripAboveKeys() bool {
	return t.ID == "g100sd"
}

// TouchStripRows returns the number of strip segment rows.
func (t *Template) TouchStripRows() int {
	if !t.HasTouchStrip() {
		return 0
	}
	if t.ID == "g100sd" {
		return 2
	}
	return 1
}

// TouchStripColumns returns the number of strip segment columns.
func (t *Template) TouchStripColumns() int {
	if !t.HasTouchStrip() {
		return 0
	}
	if t.ID == "g100sd" {
		return 2
	}
	return max(t.Dials, 1)
}

// EncoderRows returns how many encoder coordinate rows the device uses.
func (t *Template) EncoderRows() int {
	if t.Dials <= 0 && !t.HasTouchStrip() {
		return 0
	}
	return max(1, t.TouchStripRows())
}

// EncoderColumnForStripCell maps a touch strip cell onto an encoder column.
func (t *Template) EncoderColumnForStripCell(column, row int) int {
	if !t.HasTouchStrip() {
		return max(column, 0)
	}
	return clamp(column, 0, max(t.Dials-1, 0))
}

// EncoderRowForStripCell maps a touch strip cell onto an encoder row.
func (t *Template) EncoderRowForStripCell(column, row int) int {
	if !t.HasTouchStrip() {
		return 0
	}
	if t.ID == "g100sd" {
		return clamp(row, 0, max(t.EncoderRows(), 1)-1)
	}
	return 0
}

// Fits reports whether a coordinate is inside the template's layout for kind.
func (t *Template) Fits(kind ControllerKind, coordinate string) bool {
	col, row, ok := ParseCoordinate(coordinate)
	if !ok || col < 0 || row < 0 {
		return false
	}
	switch kind {
	case Keypad:
		return col < t.Columns && row < t.Rows
	case Encoder:
		return col < t.Dials && row < t.EncoderRows()
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
