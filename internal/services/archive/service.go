// Package archive reads and writes .streamDeckProfile containers.
package archive

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/lucsky/cuid"
	"go.uber.org/zap"

	"github.com/SirCrest/SDProfileManager-Windows/internal/fsys"
	"github.com/SirCrest/SDProfileManager-Windows/internal/profile"
)

const (
	// WorkDirName is the directory under the work root that holds every
	// extraction and staging directory.
	WorkDirName = "SDProfileManager"

	// FileExtension is the container extension the desktop app uses.
	FileExtension = ".streamDeckProfile"

	packageFileName  = "package.json"
	manifestFileName = "manifest.json"
	profilesDirName  = "Profiles"
	imagesDirName    = "Images"
	rootSuffix       = ".sdProfile"
)

// Service loads, creates and saves profile archives.
type Service struct {
	fs      fsys.FS
	workDir string
	logger  *zap.Logger
}

// NewService creates an archive service. Working directories are created
// under workDir/SDProfileManager.
func NewService(fs fsys.FS, workDir string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{fs: fs, workDir: workDir, logger: logger}
}

// FS returns the filesystem the service operates on.
func (s *Service) FS() fsys.FS { return s.fs }

// WorkRoot returns the directory that holds extraction and staging directories.
func (s *Service) WorkRoot() string {
	return filepath.Join(s.workDir, WorkDirName)
}

func (s *Service) makeWorkingDirectory(prefix string) (string, error) {
	dir := filepath.Join(s.WorkRoot(), prefix+"-"+cuid.New())
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create working directory: %w", err)
	}
	return dir, nil
}

// Load extracts the archive at path and builds its model. Failures never
// return a partial model.
func (s *Service) Load(path string) (*profile.Archive, error) {
	s.logger.Info("loading profile archive", zap.String("file", filepath.Base(path)))

	workDir, err := s.makeWorkingDirectory("profile")
	if err != nil {
		return nil, err
	}
	a, err := s.load(path, workDir)
	if err != nil {
		_ = s.fs.RemoveAll(workDir)
		return nil, err
	}

	s.logger.Info("loaded profile",
		zap.String("name", a.DisplayName()),
		zap.Int("pages", len(a.PageOrder())),
		zap.String("device", a.Template.DeviceModel))
	return a, nil
}

func (s *Service) load(path, workDir string) (*profile.Archive, error) {
	if err := unpack(s.fs, path, workDir); err != nil {
		return nil, err
	}

	packagePath := filepath.Join(workDir, packageFileName)
	if !fsys.IsFile(s.fs, packagePath) {
		return nil, invalidArchive(nil, "Invalid archive: missing package.json")
	}
	pkg := &profile.PackageManifest{}
	if err := s.readJSON(packagePath, pkg); err != nil {
		return nil, invalidArchive(err, "Invalid archive: unreadable package.json")
	}

	rootName, err := s.findProfileRootName(workDir)
	if err != nil {
		return nil, err
	}
	rootPath := filepath.Join(workDir, profilesDirName, rootName)
	manifest := &profile.RootProfileManifest{}
	if err := s.readJSON(filepath.Join(rootPath, manifestFileName), manifest); err != nil {
		return nil, invalidArchive(err, "Invalid archive: unreadable profile manifest")
	}

	if strings.TrimSpace(manifest.Name) == "" {
		base := filepath.Base(path)
		manifest.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	deviceModel := strings.TrimSpace(pkg.DeviceModel)
	if deviceModel == "" && manifest.Device != nil {
		deviceModel = manifest.Device.Model
	}
	tmpl := profile.TemplateForDeviceModel(deviceModel)

	pagesRoot := filepath.Join(rootPath, profilesDirName)
	discovered := s.discoverPageIDs(pagesRoot)
	listed := profile.UniquePageIDs(manifest.ListedPages())
	defaultID := profile.NormalizePageID(manifest.DefaultPage())
	if defaultID == "" {
		defaultID = profile.NormalizePageID(tmpl.DefaultPageID)
	}

	candidates := profile.UniquePageIDs(append(append(append([]string{}, listed...), defaultID), discovered...))
	if len(candidates) == 0 {
		candidates = []string{profile.NormalizePageID(tmpl.WorkingPageID)}
	}

	pages := make(map[string]*profile.PageState, len(candidates))
	for _, id := range candidates {
		pm, ok := s.loadPageManifest(pagesRoot, id)
		if !ok {
			continue
		}
		pages[id] = profile.PageStateFromManifest(id, pm)
	}
	if len(pages) == 0 {
		return nil, invalidArchive(nil, "No valid page manifests found in profile.")
	}

	order := pageOrder(listed, discovered, defaultID, pages)
	active := selectActivePage(manifest, order, pages, tmpl.WorkingPageID)
	pkg.DeviceModel = tmpl.DeviceModel

	return profile.NewArchive(profile.ArchiveParams{
		FS:            s.fs,
		SourcePath:    path,
		ExtractedRoot: workDir,
		Template:      tmpl,
		Name:          manifest.Name,
		RootName:      rootName,
		ActivePageID:  active,
		PageOrder:     order,
		Pages:         pages,
		Package:       pkg,
		Manifest:      manifest,
	}), nil
}

// pageOrder computes the visible page strip of a freshly loaded archive.
func pageOrder(listed, discovered []string, defaultID string, pages map[string]*profile.PageState) []string {
	var order []string
	for _, id := range listed {
		if pages[id] != nil {
			order = append(order, id)
		}
	}

	if len(order) == 0 {
		var loaded []string
		for _, id := range discovered {
			if pages[id] != nil {
				loaded = append(loaded, id)
			}
		}
		for _, id := range loaded {
			if pages[id].HasActions() {
				order = []string{id}
				break
			}
		}
		if len(order) == 0 {
			if pages[defaultID] != nil {
				order = []string{defaultID}
			} else if len(loaded) > 0 {
				order = []string{loaded[0]}
			}
		}
	}

	for _, id := range discovered {
		if id == defaultID || pages[id] == nil || containsID(order, id) {
			continue
		}
		order = append(order, id)
	}

	if len(order) == 0 {
		order = sortedPageKeys(pages)
	}
	return order
}

// selectActivePage picks the page a loaded archive opens on.
func selectActivePage(m *profile.RootProfileManifest, order []string, pages map[string]*profile.PageState, workingID string) string {
	current := profile.NormalizePageID(m.CurrentPage())
	if current != "" && current != profile.ZeroUUID && pages[current] != nil {
		return current
	}

	candidates := profile.UniquePageIDs(append(append([]string{}, order...), m.ListedPages()...))
	for _, id := range candidates {
		if pages[id].HasActions() {
			return id
		}
	}
	for _, id := range candidates {
		if pages[id] != nil {
			return id
		}
	}
	if def := profile.NormalizePageID(m.DefaultPage()); def != "" && pages[def] != nil {
		return def
	}
	fallback := profile.NormalizePageID(workingID)
	if pages[fallback] != nil {
		return fallback
	}
	if keys := sortedPageKeys(pages); len(keys) > 0 {
		return keys[0]
	}
	return fallback
}

func (s *Service) findProfileRootName(workDir string) (string, error) {
	profilesRoot := filepath.Join(workDir, profilesDirName)
	if !fsys.IsDir(s.fs, profilesRoot) {
		return "", invalidArchive(nil, "Invalid archive: missing Profiles directory.")
	}
	entries, err := s.fs.ReadDir(profilesRoot)
	if err != nil {
		return "", invalidArchive(err, "Invalid archive: unreadable Profiles directory.")
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), strings.ToLower(rootSuffix)) {
			return e.Name(), nil
		}
	}
	return "", invalidArchive(nil, "Missing profile root (.sdProfile folder).")
}

// discoverPageIDs lists every page folder that carries a manifest.
func (s *Service) discoverPageIDs(pagesRoot string) []string {
	entries, err := s.fs.ReadDir(pagesRoot)
	if err != nil {
		return nil
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if fsys.IsFile(s.fs, filepath.Join(pagesRoot, e.Name(), manifestFileName)) {
			ids = append(ids, e.Name())
		}
	}
	return profile.UniquePageIDs(ids)
}

// existingPageFolder finds a page folder: uppercase, then lowercase, then any case.
func (s *Service) existingPageFolder(pagesRoot, pageID string) (string, bool) {
	if !fsys.IsDir(s.fs, pagesRoot) {
		return "", false
	}
	upper := filepath.Join(pagesRoot, strings.ToUpper(pageID))
	if fsys.IsDir(s.fs, upper) {
		return upper, true
	}
	lower := filepath.Join(pagesRoot, strings.ToLower(pageID))
	if fsys.IsDir(s.fs, lower) {
		return lower, true
	}
	return fsys.FindDirFold(s.fs, pagesRoot, pageID)
}

func (s *Service) loadPageManifest(pagesRoot, pageID string) (*profile.PageManifest, bool) {
	folder, ok := s.existingPageFolder(pagesRoot, pageID)
	if !ok {
		return nil, false
	}
	path := filepath.Join(folder, manifestFileName)
	if !fsys.IsFile(s.fs, path) {
		return nil, false
	}
	pm := &profile.PageManifest{}
	if err := s.readJSON(path, pm); err != nil {
		s.logger.Warn("skipping unreadable page manifest", zap.String("page", pageID), zap.Error(err))
		return nil, false
	}
	return pm, true
}

// CreateEmpty builds a new profile for tmpl with an empty default page and
// an empty working page.
func (s *Service) CreateEmpty(tmpl *profile.Template, name string) (*profile.Archive, error) {
	if strings.TrimSpace(name) == "" {
		name = profile.UntitledProfileName
	}
	s.logger.Info("creating empty profile", zap.String("template", tmpl.ID), zap.String("name", name))

	workDir, err := s.makeWorkingDirectory("profile")
	if err != nil {
		return nil, err
	}
	rootPath := filepath.Join(workDir, profilesDirName, tmpl.RootName)
	pagesRoot := filepath.Join(rootPath, profilesDirName)
	defaultDir := filepath.Join(pagesRoot, profile.PageFolderName(tmpl.DefaultPageID))
	workingDir := filepath.Join(pagesRoot, profile.PageFolderName(tmpl.WorkingPageID))

	for _, dir := range []string{
		filepath.Join(rootPath, imagesDirName),
		filepath.Join(defaultDir, imagesDirName),
		filepath.Join(workingDir, imagesDirName),
	} {
		if err := s.fs.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	formatVersion := profile.DefaultFormatVersion
	pkg := &profile.PackageManifest{
		AppVersion:      profile.DefaultAppVersion,
		DeviceModel:     tmpl.DeviceModel,
		FormatVersion:   &formatVersion,
		OSType:          hostOSType(),
		OSVersion:       profile.DefaultOSVersion,
		RequiredPlugins: []string{},
	}
	manifest := &profile.RootProfileManifest{
		Device: &profile.DeviceManifest{Model: tmpl.DeviceModel, UUID: strings.ToLower(uuid.NewString())},
		Name:   name,
		Pages: &profile.PagesManifest{
			Current: profile.ZeroUUID,
			Default: tmpl.DefaultPageID,
			Pages:   []string{tmpl.WorkingPageID},
		},
		Version: profile.DefaultRootVersion,
	}

	defaultState := profile.NewPageState(tmpl.DefaultPageID, tmpl)
	workingState := profile.NewPageState(tmpl.WorkingPageID, tmpl)

	writes := []struct {
		value any
		path  string
	}{
		{pkg, filepath.Join(workDir, packageFileName)},
		{manifest, filepath.Join(rootPath, manifestFileName)},
		{defaultState.Manifest, filepath.Join(defaultDir, manifestFileName)},
		{workingState.Manifest, filepath.Join(workingDir, manifestFileName)},
	}
	for _, w := range writes {
		if err := s.writeJSON(w.value, w.path); err != nil {
			return nil, err
		}
	}

	return profile.NewArchive(profile.ArchiveParams{
		FS:            s.fs,
		ExtractedRoot: workDir,
		Template:      tmpl,
		Name:          name,
		RootName:      tmpl.RootName,
		ActivePageID:  tmpl.WorkingPageID,
		PageOrder:     []string{tmpl.WorkingPageID},
		Pages: map[string]*profile.PageState{
			workingState.ID: workingState,
			defaultState.ID: defaultState,
		},
		Package:  pkg,
		Manifest: manifest,
	}), nil
}

// Clone returns an independent copy of a with its own working directory, so
// asset copies and page writes in one never reach the other.
func (s *Service) Clone(a *profile.Archive) (*profile.Archive, error) {
	dir, err := s.makeWorkingDirectory("profile")
	if err != nil {
		return nil, err
	}
	if fsys.IsDir(s.fs, a.ExtractedRoot) {
		if err := fsys.MergeDir(s.fs, a.ExtractedRoot, dir); err != nil {
			_ = s.fs.RemoveAll(dir)
			return nil, fmt.Errorf("failed to copy working directory: %w", err)
		}
	}
	c, err := a.Clone()
	if err != nil {
		_ = s.fs.RemoveAll(dir)
		return nil, err
	}
	c.ExtractedRoot = dir
	s.logger.Debug("cloned profile", zap.String("name", c.DisplayName()), zap.String("dir", filepath.Base(dir)))
	return c, nil
}

// Save writes the model to outputPath, replacing any existing file. The
// archive's manifests are reconciled in place as part of the save.
func (s *Service) Save(a *profile.Archive, outputPath string) error {
	s.logger.Info("saving profile",
		zap.String("name", a.DisplayName()),
		zap.Int("pages", len(a.PageOrder())),
		zap.String("file", filepath.Base(outputPath)))

	tmpl := a.Template
	staging, err := s.makeWorkingDirectory("stage")
	if err != nil {
		return err
	}
	defer func() { _ = s.fs.RemoveAll(staging) }()

	if fsys.IsDir(s.fs, a.ExtractedRoot) {
		if err := fsys.MergeDir(s.fs, a.ExtractedRoot, staging); err != nil {
			return fmt.Errorf("failed to stage profile: %w", err)
		}
	}

	// The working directory keeps its root name; only the staged copy is
	// renamed to the template's root.
	if err := s.stageProfileRoot(staging, filepath.Base(a.ProfileRootPath()), tmpl.RootName); err != nil {
		return err
	}

	rootPath := filepath.Join(staging, profilesDirName, tmpl.RootName)
	pagesRoot := filepath.Join(rootPath, profilesDirName)
	for _, dir := range []string{pagesRoot, filepath.Join(rootPath, imagesDirName)} {
		if err := s.fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	exportIDs := exportPageIDs(a)
	defaultID := profile.NormalizePageID(a.Manifest.DefaultPage())
	if defaultID == "" {
		defaultID = profile.NormalizePageID(tmpl.DefaultPageID)
	}
	allowed := profile.UniquePageIDs(append(append(append([]string{}, exportIDs...), defaultID), a.FolderTargets()...))
	if err := canonicalizePageFolders(s.fs, pagesRoot, allowed); err != nil {
		return fmt.Errorf("failed to canonicalize page folders: %w", err)
	}

	for _, id := range profile.UniquePageIDs(append([]string{defaultID}, exportIDs...)) {
		if err := s.writePage(a, pagesRoot, id); err != nil {
			return err
		}
	}

	deviceUUID := ""
	if a.Manifest.Device != nil {
		deviceUUID = a.Manifest.Device.UUID
	}
	if deviceUUID == "" {
		deviceUUID = strings.ToLower(uuid.NewString())
	}
	a.Manifest.Name = a.DisplayName()
	a.Manifest.Device = &profile.DeviceManifest{Model: tmpl.DeviceModel, UUID: deviceUUID}
	a.Manifest.Pages = &profile.PagesManifest{
		Current: profile.ZeroUUID,
		Default: defaultID,
		Pages:   exportIDs,
	}
	if a.Manifest.Version == "" {
		a.Manifest.Version = profile.DefaultRootVersion
	}

	a.Package.DeviceModel = tmpl.DeviceModel
	a.Package.RequiredPlugins = mergePlugins(a.Package.RequiredPlugins, a.ReferencedPlugins())
	if a.Package.FormatVersion == nil {
		v := profile.DefaultFormatVersion
		a.Package.FormatVersion = &v
	}
	if a.Package.AppVersion == "" {
		a.Package.AppVersion = profile.DefaultAppVersion
	}
	if a.Package.OSType == "" {
		a.Package.OSType = hostOSType()
	}
	if a.Package.OSVersion == "" {
		a.Package.OSVersion = profile.DefaultOSVersion
	}

	if err := s.writeJSON(a.Package, filepath.Join(staging, packageFileName)); err != nil {
		return err
	}
	if err := s.writeJSON(a.Manifest, filepath.Join(rootPath, manifestFileName)); err != nil {
		return err
	}

	if err := pack(s.fs, staging, outputPath); err != nil {
		return err
	}
	s.logger.Info("saved profile archive", zap.String("file", filepath.Base(outputPath)))
	return nil
}

// writePage writes one page manifest into the staging page container. Pages
// missing from the live model are written blank.
func (s *Service) writePage(a *profile.Archive, pagesRoot, id string) error {
	dir := filepath.Join(pagesRoot, profile.PageFolderName(id))
	if err := s.fs.MkdirAll(filepath.Join(dir, imagesDirName), 0755); err != nil {
		return fmt.Errorf("failed to create page folder: %w", err)
	}
	state := a.Page(id)
	if state == nil {
		state = profile.NewPageState(id, a.Template)
	} else {
		state.RefreshControllers(a.Template)
	}
	return s.writeJSON(state.Manifest, filepath.Join(dir, manifestFileName))
}

// stageProfileRoot renames the staged profile root from to the canonical
// name and drops any other .sdProfile folder, so the container carries
// exactly one root.
func (s *Service) stageProfileRoot(staging, from, to string) error {
	profilesRoot := filepath.Join(staging, profilesDirName)
	src := filepath.Join(profilesRoot, from)
	dst := filepath.Join(profilesRoot, to)
	if from != to && fsys.IsDir(s.fs, src) {
		if err := s.fs.RemoveAll(dst); err != nil {
			return fmt.Errorf("failed to replace profile root: %w", err)
		}
		if err := s.fs.Rename(src, dst); err != nil {
			return fmt.Errorf("failed to rename profile root: %w", err)
		}
	}

	entries, err := s.fs.ReadDir(profilesRoot)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		if !e.IsDir() || e.Name() == to || !strings.HasSuffix(strings.ToLower(e.Name()), strings.ToLower(rootSuffix)) {
			continue
		}
		if err := s.fs.RemoveAll(filepath.Join(profilesRoot, e.Name())); err != nil {
			return fmt.Errorf("failed to remove stale profile root: %w", err)
		}
	}
	return nil
}

// exportPageIDs returns the pages listed in the saved manifest.
func exportPageIDs(a *profile.Archive) []string {
	var ids []string
	for _, id := range a.PageOrder() {
		if a.HasPage(id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 && a.HasPage(a.ActivePageID()) {
		ids = []string{a.ActivePageID()}
	}
	if len(ids) == 0 {
		ids = []string{a.Template.WorkingPageID}
	}
	return profile.UniquePageIDs(ids)
}

func mergePlugins(declared, referenced []string) []string {
	set := make(map[string]struct{}, len(declared)+len(referenced))
	for _, list := range [][]string{declared, referenced} {
		for _, p := range list {
			if p = strings.TrimSpace(p); p != "" {
				set[p] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func hostOSType() string {
	switch runtime.GOOS {
	case "windows":
		return "Windows"
	case "darwin":
		return "macOS"
	default:
		return "Linux"
	}
}

func (s *Service) readJSON(path string, v any) error {
	data, err := s.fs.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *Service) writeJSON(v any, path string) error {
	data, err := profile.EncodeJSON(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := s.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := s.fs.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func sortedPageKeys(pages map[string]*profile.PageState) []string {
	keys := make([]string, 0, len(pages))
	for k := range pages {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
