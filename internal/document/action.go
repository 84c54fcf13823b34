package document

import "strings"

// Well-known action payload fields. Everything else is passed through untouched.

// PluginUUID returns Plugin.UUID.
func (n *Node) PluginUUID() string {
	return n.Path("Plugin", "UUID").StringValue()
}

// PluginName returns Plugin.Name.
func (n *Node) PluginName() string {
	return n.Path("Plugin", "Name").StringValue()
}

// ActionUUID returns the action identifier (UUID).
func (n *Node) ActionUUID() string {
	return n.Get("UUID").StringValue()
}

// Name returns the action display name.
func (n *Node) Name() string {
	return n.Get("Name").StringValue()
}

// FolderProfileID returns Settings.ProfileUUID, the page opened by a folder action.
func (n *Node) FolderProfileID() string {
	return n.Path("Settings", "ProfileUUID").StringValue()
}

// SetFolderProfileID rewrites Settings.ProfileUUID, creating Settings if needed.
func (n *Node) SetFolderProfileID(pageID string) {
	if !n.IsObject() {
		return
	}
	settings := n.Get("Settings")
	if !settings.IsObject() {
		settings = Object()
		n.Set("Settings", settings)
	}
	settings.Set("ProfileUUID", String(pageID))
}

// StateIndex returns the State field, defaulting to 0.
func (n *Node) StateIndex() int {
	i, _ := n.Get("State").AsInt()
	return i
}

// CurrentState returns the States entry selected by State, falling back to
// the first entry when the index is out of range.
func (n *Node) CurrentState() *Node {
	states := n.Get("States")
	if !states.IsArray() {
		return nil
	}
	if idx := n.StateIndex(); idx >= 0 && idx < states.Len() {
		return states.Index(idx)
	}
	return states.Index(0)
}

// EncoderIcon returns Encoder.Icon.
func (n *Node) EncoderIcon() string {
	return n.Path("Encoder", "Icon").StringValue()
}

// LooksLikeImagePath reports whether a string value references an image asset.
func LooksLikeImagePath(s string) bool {
	if strings.Contains(s, "Images/") {
		return true
	}
	lower := strings.ToLower(s)
	return strings.HasSuffix(lower, ".png") || strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg")
}

// ImageReferences returns every distinct string in the tree that looks like
// an image path, in first-seen order.
func (n *Node) ImageReferences() []string {
	var refs []string
	seen := make(map[string]struct{})

	stack := []*Node{n}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch current.Kind() {
		case KindString:
			if LooksLikeImagePath(current.text) {
				if _, ok := seen[current.text]; !ok {
					seen[current.text] = struct{}{}
					refs = append(refs, current.text)
				}
			}
		case KindArray:
			for i := len(current.items) - 1; i >= 0; i-- {
				stack = append(stack, current.items[i])
			}
		case KindObject:
			for i := len(current.members) - 1; i >= 0; i-- {
				stack = append(stack, current.members[i].Value)
			}
		}
	}
	return refs
}
