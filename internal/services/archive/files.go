package archive

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SirCrest/SDProfileManager-Windows/internal/document"
	"github.com/SirCrest/SDProfileManager-Windows/internal/fsys"
	"github.com/SirCrest/SDProfileManager-Windows/internal/profile"
)

// CopyReferencedFiles copies the image assets and folder page an action
// depends on from source into target. Copy failures are logged and skipped.
func (s *Service) CopyReferencedFiles(action *document.Node, source, target *profile.Archive, sourcePageID, targetPageID string) {
	sourcePage := profile.NormalizePageID(sourcePageID)
	targetPage := profile.NormalizePageID(targetPageID)

	for _, ref := range action.ImageReferences() {
		srcPath, ok := source.ResolveImagePath(ref, sourcePage)
		if !ok {
			continue
		}
		dstPath := destinationFor(ref, srcPath, target, sourcePage, targetPage)
		if !isSubPath(target.ExtractedRoot, dstPath) {
			s.logger.Debug("skipping asset outside the target archive", zap.String("ref", ref))
			continue
		}
		if sameFile(srcPath, dstPath) {
			continue
		}
		if err := fsys.CopyFile(target.FS(), srcPath, dstPath); err != nil {
			s.logger.Debug("skipping asset copy", zap.String("ref", ref), zap.Error(err))
		}
	}

	folderID := strings.TrimSpace(action.FolderProfileID())
	if folderID == "" {
		return
	}
	srcFolder := source.PageDirectoryPath(folderID, true)
	targetFolderID := profile.NormalizePageID(folderID)
	if source == target && targetFolderID == sourcePage {
		targetFolderID = targetPage
	}
	dstFolder := filepath.Join(target.PagesRootPath(), profile.PageFolderName(targetFolderID))
	if !isSubPath(source.PagesRootPath(), srcFolder) || !isSubPath(target.PagesRootPath(), dstFolder) {
		return
	}
	if sameFile(srcFolder, dstFolder) || !fsys.IsDir(source.FS(), srcFolder) {
		return
	}
	if err := fsys.MergeDir(target.FS(), srcFolder, dstFolder); err != nil {
		s.logger.Debug("skipping folder merge", zap.String("folder", folderID), zap.Error(err))
	}
}

// destinationFor maps an asset reference onto the target archive's layout.
func destinationFor(ref, srcPath string, target *profile.Archive, sourcePage, targetPage string) string {
	normalized := strings.ReplaceAll(ref, `\`, "/")
	lower := strings.ToLower(normalized)

	switch {
	case strings.HasPrefix(lower, "images/"):
		return filepath.Join(target.PageDirectoryPath(targetPage, true), filepath.FromSlash(normalized))
	case strings.HasPrefix(lower, "profiles/"):
		parts := strings.Split(normalized, "/")
		if len(parts) < 3 {
			return filepath.Join(target.ProfileRootPath(), filepath.FromSlash(normalized))
		}
		folder := strings.ToUpper(parts[1])
		if strings.EqualFold(parts[1], sourcePage) {
			folder = profile.PageFolderName(targetPage)
		}
		return filepath.Join(target.PagesRootPath(), folder, filepath.Join(parts[2:]...))
	default:
		return filepath.Join(target.PageDirectoryPath(targetPage, true), imagesDirName, filepath.Base(srcPath))
	}
}

func sameFile(a, b string) bool {
	return strings.EqualFold(filepath.Clean(a), filepath.Clean(b))
}

// canonicalizePageFolders deletes page folders that are not allowed and
// renames the rest to their uppercase form, merging into an existing
// canonical folder when one is already present.
func canonicalizePageFolders(fs fsys.FS, pagesRoot string, allowed []string) error {
	if !fsys.IsDir(fs, pagesRoot) {
		return nil
	}
	canonical := make(map[string]string, len(allowed))
	for _, id := range allowed {
		name := profile.PageFolderName(id)
		canonical[strings.ToLower(name)] = name
	}

	entries, err := fs.ReadDir(pagesRoot)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, ok := canonical[strings.ToLower(e.Name())]; !ok {
			if err := fs.RemoveAll(filepath.Join(pagesRoot, e.Name())); err != nil {
				return err
			}
		}
	}

	entries, err = fs.ReadDir(pagesRoot)
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		present[e.Name()] = true
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		want, ok := canonical[strings.ToLower(e.Name())]
		if !ok || want == e.Name() {
			continue
		}

		dir := filepath.Join(pagesRoot, e.Name())
		wantPath := filepath.Join(pagesRoot, want)
		if !present[want] {
			// Two-step rename so case-only renames work on case-insensitive filesystems.
			temp := filepath.Join(pagesRoot, ".rename-"+uuid.NewString())
			if err := fs.Rename(dir, temp); err != nil {
				return err
			}
			if err := fs.Rename(temp, wantPath); err != nil {
				return err
			}
			present[want] = true
			continue
		}
		if err := fsys.MergeDir(fs, dir, wantPath); err != nil {
			return err
		}
		if err := fs.RemoveAll(dir); err != nil {
			return err
		}
	}
	return nil
}
