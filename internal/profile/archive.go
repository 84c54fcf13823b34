package profile

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/SirCrest/SDProfileManager-Windows/internal/document"
	"github.com/SirCrest/SDProfileManager-Windows/internal/fsys"
)

// Archive is one loaded profile: its extracted working directory, manifests
// and page states. The zero value is not usable; build one with NewArchive.
//
// Archive is not safe for concurrent use. The workspace engine serializes
// every mutation.
type Archive struct {
	ID            string
	SourcePath    string
	ExtractedRoot string
	Template      *Template
	Name          string
	RootName      string
	Package       *PackageManifest
	Manifest      *RootProfileManifest

	fs           fsys.FS
	activePageID string
	pageOrder    []string
	pages        map[string]*PageState
}

// ArchiveParams carries the raw inputs of NewArchive. Page ids may be
// duplicated or mis-cased.
type ArchiveParams struct {
	FS            fsys.FS
	SourcePath    string
	ExtractedRoot string
	Template      *Template
	Name          string
	RootName      string
	ActivePageID  string
	PageOrder     []string
	Pages         map[string]*PageState
	Package       *PackageManifest
	Manifest      *RootProfileManifest
}

// NewArchive normalizes page ids, resolves the active page and guarantees a
// non-empty page order that contains it.
func NewArchive(p ArchiveParams) *Archive {
	t := p.Template
	if t == nil {
		t = TemplateForDeviceModel("")
	}
	fs := p.FS
	if fs == nil {
		fs = fsys.NewOS()
	}
	pkg := p.Package
	if pkg == nil {
		pkg = &PackageManifest{}
	}
	manifest := p.Manifest
	if manifest == nil {
		manifest = &RootProfileManifest{}
	}

	pages := make(map[string]*PageState, len(p.Pages))
	for rawID, state := range p.Pages {
		id := NormalizePageID(rawID)
		if id == "" || state == nil {
			continue
		}
		state.ID = id
		pages[id] = state
	}

	order := UniquePageIDs(p.PageOrder)
	active := NormalizePageID(p.ActivePageID)
	if _, ok := pages[active]; !ok {
		active = ""
		for _, id := range order {
			if _, ok := pages[id]; ok {
				active = id
				break
			}
		}
		if active == "" {
			if keys := sortedKeys(pages); len(keys) > 0 {
				active = keys[0]
			} else {
				active = NormalizePageID(t.WorkingPageID)
				pages[active] = NewPageState(active, t)
			}
		}
	}

	finalOrder := make([]string, 0, len(order)+1)
	for _, id := range order {
		if _, ok := pages[id]; ok {
			finalOrder = append(finalOrder, id)
		}
	}
	if !contains(finalOrder, active) {
		finalOrder = append(finalOrder, active)
	}

	return &Archive{
		ID:            uuid.NewString(),
		SourcePath:    p.SourcePath,
		ExtractedRoot: p.ExtractedRoot,
		Template:      t,
		Name:          p.Name,
		RootName:      p.RootName,
		Package:       pkg,
		Manifest:      manifest,
		fs:            fs,
		activePageID:  active,
		pageOrder:     finalOrder,
		pages:         pages,
	}
}

// FS returns the filesystem the archive's working directory lives on.
func (a *Archive) FS() fsys.FS { return a.fs }

// DisplayName returns the trimmed name, falling back to the source file name.
func (a *Archive) DisplayName() string {
	if name := strings.TrimSpace(a.Name); name != "" {
		return name
	}
	if a.SourcePath != "" {
		base := filepath.Base(a.SourcePath)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	return UntitledProfileName
}

// ProfileRootPath is <extracted>/Profiles/<root>.sdProfile. When RootName is
// not on disk the single .sdProfile folder under Profiles is used instead.
func (a *Archive) ProfileRootPath() string {
	profiles := filepath.Join(a.ExtractedRoot, "Profiles")
	direct := filepath.Join(profiles, a.RootName)
	if a.RootName != "" && fsys.IsDir(a.fs, direct) {
		return direct
	}
	entries, err := a.fs.ReadDir(profiles)
	if err != nil {
		return direct
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".sdprofile") {
			return filepath.Join(profiles, e.Name())
		}
	}
	return direct
}

// PagesRootPath is the page container directory under the profile root.
func (a *Archive) PagesRootPath() string {
	return filepath.Join(a.ProfileRootPath(), "Profiles")
}

// ActivePageID returns the page the model currently edits by default.
func (a *Archive) ActivePageID() string { return a.activePageID }

// PageOrder returns a copy of the visible page order.
func (a *Archive) PageOrder() []string {
	return append([]string(nil), a.pageOrder...)
}

// PageIDs returns every loaded page id, sorted.
func (a *Archive) PageIDs() []string { return sortedKeys(a.pages) }

// AllPageIDs returns the page order followed by the remaining loaded pages
// in sorted order.
func (a *Archive) AllPageIDs() []string {
	ids := a.PageOrder()
	for _, id := range sortedKeys(a.pages) {
		if !contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Page returns the page state for id, or nil.
func (a *Archive) Page(id string) *PageState {
	return a.pages[NormalizePageID(id)]
}

// HasPage reports whether id is a loaded page.
func (a *Archive) HasPage(id string) bool {
	_, ok := a.pages[NormalizePageID(id)]
	return ok
}

// SetActivePage switches the active page. Unknown ids are ignored.
func (a *Archive) SetActivePage(id string) bool {
	id = NormalizePageID(id)
	if _, ok := a.pages[id]; !ok {
		return false
	}
	a.activePageID = id
	return true
}

// ForceActivePage sets the active page without checking that it exists.
// It models manifests that were edited out from under the application.
func (a *Archive) ForceActivePage(id string) {
	a.activePageID = NormalizePageID(id)
}

// CreatePage adds an empty page with a fresh id, appends it to the order and
// makes it active.
func (a *Archive) CreatePage() string {
	var id string
	for {
		id = strings.ToLower(uuid.NewString())
		if _, ok := a.pages[id]; !ok {
			break
		}
	}
	a.pages[id] = NewPageState(id, a.Template)
	if !contains(a.pageOrder, id) {
		a.pageOrder = append(a.pageOrder, id)
	}
	a.activePageID = id
	return id
}

// RemovePage deletes a page. It refuses unknown ids and refuses to remove
// anything while only one visible page remains.
func (a *Archive) RemovePage(id string) bool {
	id = NormalizePageID(id)
	if _, ok := a.pages[id]; !ok {
		return false
	}

	visible := UniquePageIDs(a.pageOrder)
	if len(visible) == 0 {
		visible = []string{a.activePageID}
	}
	if len(visible) <= 1 {
		return false
	}

	delete(a.pages, id)

	next := make([]string, 0, len(visible))
	for _, pid := range visible {
		if pid != id {
			next = append(next, pid)
		}
	}
	if len(next) == 0 {
		next = sortedKeys(a.pages)
	}
	a.pageOrder = next

	if a.activePageID == id {
		switch keys := sortedKeys(a.pages); {
		case len(next) > 0:
			a.activePageID = next[0]
		case len(keys) > 0:
			a.activePageID = keys[0]
		default:
			a.activePageID = NormalizePageID(a.Template.WorkingPageID)
			a.pages[a.activePageID] = NewPageState(a.activePageID, a.Template)
		}
	}
	return true
}

// PageFolderName returns the canonical folder name for a page.
func (a *Archive) PageFolderName(id string) string { return PageFolderName(id) }

// ExistingPageDirectoryPath finds the on-disk folder of a page regardless of
// its case.
func (a *Archive) ExistingPageDirectoryPath(id string) (string, bool) {
	return fsys.FindDirFold(a.fs, a.PagesRootPath(), NormalizePageID(id))
}

// PageDirectoryPath returns the folder of a page. With preferExisting an
// existing folder of any case wins over the canonical uppercase path.
func (a *Archive) PageDirectoryPath(id string, preferExisting bool) string {
	if preferExisting {
		if dir, ok := a.ExistingPageDirectoryPath(id); ok {
			return dir
		}
	}
	return filepath.Join(a.PagesRootPath(), PageFolderName(id))
}

func (a *Archive) resolvePageID(id string) string {
	if strings.TrimSpace(id) == "" {
		return a.activePageID
	}
	return NormalizePageID(id)
}

// Action returns the action at coordinate. An empty pageID means the active page.
func (a *Archive) Action(kind ControllerKind, coordinate, pageID string) *document.Node {
	state := a.pages[a.resolvePageID(pageID)]
	if state == nil {
		return nil
	}
	return state.Actions(kind)[coordinate]
}

// SetAction stores action at coordinate, creating the page if needed. A nil
// action removes the slot.
func (a *Archive) SetAction(kind ControllerKind, coordinate string, action *document.Node, pageID string) {
	if kind != Keypad && kind != Encoder {
		return
	}
	a.upsertPage(a.resolvePageID(pageID), func(state *PageState) {
		actions := state.Actions(kind)
		if action == nil {
			delete(actions, coordinate)
		} else {
			actions[coordinate] = action
		}
	})
}

// RemoveAction clears a slot and reports whether it held an action.
func (a *Archive) RemoveAction(kind ControllerKind, coordinate, pageID string) bool {
	if a.Action(kind, coordinate, pageID) == nil {
		return false
	}
	a.SetAction(kind, coordinate, nil, pageID)
	return true
}

// ReplaceActions swaps both action maps of a page.
func (a *Archive) ReplaceActions(keypad, encoder ActionMap, pageID string) {
	a.upsertPage(a.resolvePageID(pageID), func(state *PageState) {
		state.Keypad = keypad.Clone()
		state.Encoder = encoder.Clone()
	})
}

// Actions returns a copy of a page's action map for kind.
func (a *Archive) Actions(kind ControllerKind, pageID string) ActionMap {
	state := a.pages[a.resolvePageID(pageID)]
	if state == nil {
		return ActionMap{}
	}
	return state.Actions(kind).Clone()
}

// AllActions returns every action of every page.
func (a *Archive) AllActions() []*document.Node {
	var out []*document.Node
	for _, id := range sortedKeys(a.pages) {
		state := a.pages[id]
		for _, coord := range sortedKeys(state.Keypad) {
			out = append(out, state.Keypad[coord])
		}
		for _, coord := range sortedKeys(state.Encoder) {
			out = append(out, state.Encoder[coord])
		}
	}
	return out
}

// ReferencedPlugins returns the sorted set of plugin UUIDs used by actions.
func (a *Archive) ReferencedPlugins() []string {
	set := map[string]struct{}{}
	for _, action := range a.AllActions() {
		if id := strings.TrimSpace(action.PluginUUID()); id != "" {
			set[id] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// FolderTargets returns the normalized page ids referenced by folder actions.
func (a *Archive) FolderTargets() []string {
	var ids []string
	for _, action := range a.AllActions() {
		if id := action.FolderProfileID(); id != "" {
			ids = append(ids, id)
		}
	}
	return UniquePageIDs(ids)
}

// MergeRequiredPlugin adds pluginUUID to the package's required plugins,
// keeping the list sorted and unique.
func (a *Archive) MergeRequiredPlugin(pluginUUID string) {
	pluginUUID = strings.TrimSpace(pluginUUID)
	if pluginUUID == "" {
		return
	}
	set := map[string]struct{}{pluginUUID: {}}
	for _, p := range a.Package.RequiredPlugins {
		if p = strings.TrimSpace(p); p != "" {
			set[p] = struct{}{}
		}
	}
	a.Package.RequiredPlugins = sortedKeys(set)
}

// RegenerateControllers rebuilds the controller projection of every page.
func (a *Archive) RegenerateControllers() {
	for _, state := range a.pages {
		state.RefreshControllers(a.Template)
	}
}

// ApplyTemplate retargets the archive at t, dropping actions that do not fit
// the new layout.
func (a *Archive) ApplyTemplate(t *Template) {
	a.Template = t
	a.Package.DeviceModel = t.DeviceModel
	for _, state := range a.pages {
		for _, kind := range []ControllerKind{Keypad, Encoder} {
			actions := state.Actions(kind)
			for coord := range actions {
				if !t.Fits(kind, coord) {
					delete(actions, coord)
				}
			}
		}
	}
	a.RegenerateControllers()
}

// UpdatePageName sets a page's display name.
func (a *Archive) UpdatePageName(name, pageID string) {
	a.upsertPage(a.resolvePageID(pageID), func(state *PageState) {
		state.Manifest.Name = name
	})
}

// ResolveImagePath finds the file an image reference points at. The page's
// own folder is searched first, then the profile and extraction roots, then
// every other page's folder. Every lookup ignores case. References that are
// absolute or leave the extraction root never resolve.
func (a *Archive) ResolveImagePath(reference, pageID string) (string, bool) {
	ref := strings.ReplaceAll(strings.TrimSpace(reference), `\`, "/")
	if ref == "" || strings.HasPrefix(ref, "/") || filepath.VolumeName(ref) != "" || strings.Contains(ref, ":") {
		return "", false
	}
	page := a.resolvePageID(pageID)
	root := a.ProfileRootPath()

	type candidate struct{ base, rel string }
	candidates := []candidate{
		{a.PageDirectoryPath(page, true), ref},
		{root, ref},
		{a.ExtractedRoot, ref},
		{root, "Profiles/" + PageFolderName(page) + "/" + ref},
		{root, "Profiles/" + page + "/" + ref},
	}
	for _, id := range a.AllPageIDs() {
		candidates = append(candidates,
			candidate{root, "Profiles/" + PageFolderName(id) + "/" + ref},
			candidate{root, "Profiles/" + id + "/" + ref},
		)
	}

	for _, c := range candidates {
		resolved, ok := fsys.ResolveFold(a.fs, c.base, c.rel)
		if ok && fsys.Within(a.ExtractedRoot, resolved) && fsys.IsFile(a.fs, resolved) {
			return resolved, true
		}
	}
	return "", false
}

func (a *Archive) upsertPage(id string, fn func(*PageState)) {
	state, ok := a.pages[id]
	if !ok {
		state = NewPageState(id, a.Template)
		a.pages[id] = state
		if !contains(a.pageOrder, id) {
			a.pageOrder = append(a.pageOrder, id)
		}
	}
	fn(state)
	state.RefreshControllers(a.Template)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
