package profile

import (
	"strings"

	"github.com/SirCrest/SDProfileManager-Windows/internal/document"
)

// Presentation is the label and icon data a UI shows for an action.
type Presentation struct {
	Title          string `json:"title"`
	ActionName     string `json:"actionName"`
	DisplayName    string `json:"displayName"`
	PluginName     string `json:"pluginName"`
	PluginUUID     string `json:"pluginUuid"`
	ImageReference string `json:"imageReference"`
}

// Present derives the presentation of an action document. Non-object
// documents yield an empty Presentation.
func Present(action *document.Node) Presentation {
	if !action.IsObject() {
		return Presentation{}
	}

	pluginName := normalizeLabel(action.PluginName(), action.Name(), "Action")
	state := action.CurrentState()
	stateTitle := normalizeLabel(state.Get("Title").StringValue())
	baseTitle := normalizeLabel(action.Name())
	actionName := normalizeLabel(stateTitle, baseTitle, pluginName, "Action")

	displayName := actionName
	if pluginName != "" &&
		!strings.EqualFold(pluginName, actionName) &&
		!strings.Contains(strings.ToLower(actionName), strings.ToLower(pluginName)) {
		displayName = actionName + " - " + pluginName
	}

	imageRef := state.Get("Image").StringValue()
	if strings.TrimSpace(imageRef) == "" {
		imageRef = action.EncoderIcon()
	}

	return Presentation{
		Title:          actionName,
		ActionName:     actionName,
		DisplayName:    displayName,
		PluginName:     pluginName,
		PluginUUID:     action.PluginUUID(),
		ImageReference: imageRef,
	}
}

// normalizeLabel returns the first candidate that is non-blank once newlines
// are flattened.
func normalizeLabel(candidates ...string) string {
	for _, c := range candidates {
		if v := strings.TrimSpace(strings.ReplaceAll(c, "\n", " ")); v != "" {
			return v
		}
	}
	return ""
}
