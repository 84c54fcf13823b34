package profile

import (
	"encoding/json"
	"fmt"

	"github.com/SirCrest/SDProfileManager-Windows/internal/document"
	"github.com/SirCrest/SDProfileManager-Windows/internal/fsys"
)

// Snapshot is a serialized copy of an Archive. Manifests and actions are kept
// as JSON text so a snapshot never shares mutable state with a live model.
type Snapshot struct {
	SourcePath    string                  `json:"sourcePath"`
	ExtractedRoot string                  `json:"extractedRoot"`
	TemplateID    string                  `json:"templateId"`
	Name          string                  `json:"name"`
	RootName      string                  `json:"rootName"`
	ActivePageID  string                  `json:"activePageId"`
	PageOrder     []string                `json:"pageOrder"`
	PackageJSON   string                  `json:"packageJson"`
	ManifestJSON  string                  `json:"manifestJson"`
	Pages         map[string]PageSnapshot `json:"pages"`
}

// PageSnapshot is the serialized form of one PageState.
type PageSnapshot struct {
	ID           string            `json:"id"`
	ManifestJSON string            `json:"manifestJson"`
	Keypad       map[string]string `json:"keypad"`
	Encoder      map[string]string `json:"encoder"`
}

// Snapshot serializes the archive.
func (a *Archive) Snapshot() (*Snapshot, error) {
	pkg, err := EncodeJSON(a.Package)
	if err != nil {
		return nil, fmt.Errorf("snapshot package manifest: %w", err)
	}
	manifest, err := EncodeJSON(a.Manifest)
	if err != nil {
		return nil, fmt.Errorf("snapshot profile manifest: %w", err)
	}

	snap := &Snapshot{
		SourcePath:    a.SourcePath,
		ExtractedRoot: a.ExtractedRoot,
		TemplateID:    a.Template.ID,
		Name:          a.Name,
		RootName:      a.RootName,
		ActivePageID:  a.activePageID,
		PageOrder:     a.PageOrder(),
		PackageJSON:   string(pkg),
		ManifestJSON:  string(manifest),
		Pages:         make(map[string]PageSnapshot, len(a.pages)),
	}

	for id, state := range a.pages {
		data, err := EncodeJSON(state.Manifest)
		if err != nil {
			return nil, fmt.Errorf("snapshot page %s: %w", id, err)
		}
		ps := PageSnapshot{
			ID:           state.ID,
			ManifestJSON: string(data),
			Keypad:       make(map[string]string, len(state.Keypad)),
			Encoder:      make(map[string]string, len(state.Encoder)),
		}
		for coord, action := range state.Keypad {
			ps.Keypad[coord] = action.String()
		}
		for coord, action := range state.Encoder {
			ps.Encoder[coord] = action.String()
		}
		snap.Pages[id] = ps
	}
	return snap, nil
}

// Restore rebuilds an independent Archive from a snapshot. The restored
// archive gets a new identity.
func Restore(snap *Snapshot, fs fsys.FS) (*Archive, error) {
	pkg := &PackageManifest{}
	if err := json.Unmarshal([]byte(snap.PackageJSON), pkg); err != nil {
		return nil, fmt.Errorf("restore package manifest: %w", err)
	}
	manifest := &RootProfileManifest{}
	if err := json.Unmarshal([]byte(snap.ManifestJSON), manifest); err != nil {
		return nil, fmt.Errorf("restore profile manifest: %w", err)
	}

	t, ok := TemplateByID(snap.TemplateID)
	if !ok {
		t = TemplateForDeviceModel(pkg.DeviceModel)
	}

	pages := make(map[string]*PageState, len(snap.Pages))
	for id, ps := range snap.Pages {
		pm := &PageManifest{}
		if err := json.Unmarshal([]byte(ps.ManifestJSON), pm); err != nil {
			return nil, fmt.Errorf("restore page %s: %w", id, err)
		}
		state := &PageState{ID: ps.ID, Manifest: pm, Keypad: ActionMap{}, Encoder: ActionMap{}}
		if err := restoreActions(state.Keypad, ps.Keypad); err != nil {
			return nil, fmt.Errorf("restore page %s: %w", id, err)
		}
		if err := restoreActions(state.Encoder, ps.Encoder); err != nil {
			return nil, fmt.Errorf("restore page %s: %w", id, err)
		}
		pages[id] = state
	}

	return NewArchive(ArchiveParams{
		FS:            fs,
		SourcePath:    snap.SourcePath,
		ExtractedRoot: snap.ExtractedRoot,
		Template:      t,
		Name:          snap.Name,
		RootName:      snap.RootName,
		ActivePageID:  snap.ActivePageID,
		PageOrder:     append([]string(nil), snap.PageOrder...),
		Pages:         pages,
		Package:       pkg,
		Manifest:      manifest,
	}), nil
}

func restoreActions(dst ActionMap, src map[string]string) error {
	for coord, text := range src {
		node, err := document.Parse([]byte(text))
		if err != nil {
			return fmt.Errorf("action %s: %w", coord, err)
		}
		dst[coord] = node
	}
	return nil
}

// Clone returns an independent deep copy of the model through a snapshot.
// The copy keeps the same working directory.
func (a *Archive) Clone() (*Archive, error) {
	snap, err := a.Snapshot()
	if err != nil {
		return nil, err
	}
	return Restore(snap, a.fs)
}
