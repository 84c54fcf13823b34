// Package preflight checks a profile archive for structural problems before
// it is exported.
package preflight

import (
	"fmt"
	"sort"
	"strings"

	"github.com/SirCrest/SDProfileManager-Windows/internal/profile"
)

// MaxIssues caps the number of issues in one report.
const MaxIssues = 200

// Severity ranks an issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

func (s Severity) rank() int {
	switch s {
	case SeverityError:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// Issue codes.
const (
	CodeActivePageMissing     = "ACTIVE_PAGE_MISSING"
	CodePageListedMissing     = "PAGE_LISTED_MISSING"
	CodeDefaultPageMissing    = "DEFAULT_PAGE_MISSING"
	CodeCurrentPageMissing    = "CURRENT_PAGE_MISSING"
	CodePluginUUIDMissing     = "PLUGIN_UUID_MISSING"
	CodeFolderTargetMissing   = "FOLDER_TARGET_MISSING"
	CodeImageRefMissing       = "IMAGE_REF_MISSING"
	CodeRequiredPluginMissing = "REQUIRED_PLUGIN_MISSING"
	CodeRequiredPluginUnused  = "REQUIRED_PLUGIN_UNUSED"
)

// Issue is a single finding.
type Issue struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
}

// Report is the result of Validate. Issues are sorted by severity and then
// by message, ignoring case.
type Report struct {
	Issues   []Issue `json:"issues"`
	Errors   int     `json:"errors"`
	Warnings int     `json:"warnings"`
	Infos    int     `json:"infos"`
}

// IsClean reports whether the report has no issues at all.
func (r *Report) IsClean() bool { return len(r.Issues) == 0 }

// Summary renders the counts, e.g. "1 error, 2 warnings".
func (r *Report) Summary() string {
	if r.IsClean() {
		return "No issues"
	}
	var parts []string
	if r.Errors > 0 {
		parts = append(parts, plural(r.Errors, "error"))
	}
	if r.Warnings > 0 {
		parts = append(parts, plural(r.Warnings, "warning"))
	}
	if r.Infos > 0 {
		parts = append(parts, fmt.Sprintf("%d info", r.Infos))
	}
	return strings.Join(parts, ", ")
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

type collector struct {
	issues []Issue
	seen   map[string]struct{}
}

func (c *collector) add(sev Severity, code, format string, args ...any) {
	if len(c.issues) >= MaxIssues {
		return
	}
	msg := fmt.Sprintf(format, args...)
	key := string(sev) + "|" + code + "|" + msg
	if _, ok := c.seen[key]; ok {
		return
	}
	c.seen[key] = struct{}{}
	c.issues = append(c.issues, Issue{Severity: sev, Code: code, Message: msg})
}

// Validate inspects a. It never modifies the archive.
func Validate(a *profile.Archive) *Report {
	c := &collector{seen: map[string]struct{}{}}

	known := map[string]bool{}
	for _, id := range a.AllPageIDs() {
		known[profile.NormalizePageID(id)] = true
	}
	resolvable := func(id string) bool {
		if known[id] {
			return true
		}
		_, ok := a.ExistingPageDirectoryPath(id)
		return ok
	}

	if !known[profile.NormalizePageID(a.ActivePageID())] {
		c.add(SeverityError, CodeActivePageMissing, "Active page is missing from loaded page set.")
	}

	for _, listed := range a.Manifest.ListedPages() {
		id := profile.NormalizePageID(listed)
		if id != "" && !resolvable(id) {
			c.add(SeverityWarning, CodePageListedMissing, "Manifest lists missing page %s.", listed)
		}
	}

	if id := profile.NormalizePageID(a.Manifest.DefaultPage()); id != "" && !resolvable(id) {
		c.add(SeverityWarning, CodeDefaultPageMissing, "Manifest default page is missing: %s.", id)
	}
	if id := profile.NormalizePageID(a.Manifest.CurrentPage()); id != "" && id != profile.ZeroUUID && !resolvable(id) {
		c.add(SeverityWarning, CodeCurrentPageMissing, "Manifest current page is missing: %s.", id)
	}

	required := map[string]bool{}
	for _, p := range a.Package.RequiredPlugins {
		if p = strings.TrimSpace(p); p != "" {
			required[p] = true
		}
	}
	referenced := map[string]bool{}

	for _, pageID := range a.AllPageIDs() {
		for _, kind := range []profile.ControllerKind{profile.Keypad, profile.Encoder} {
			actions := a.Actions(kind, pageID)
			for _, coord := range sortedKeys(actions) {
				action := actions[coord]
				slot := fmt.Sprintf("%s %s on page %s", kind, coord, pageID)

				if plugin := strings.TrimSpace(action.PluginUUID()); plugin != "" {
					referenced[plugin] = true
				} else {
					c.add(SeverityWarning, CodePluginUUIDMissing, "Action at %s does not include Plugin.UUID.", slot)
				}

				if folder := strings.TrimSpace(action.FolderProfileID()); folder != "" && !resolvable(profile.NormalizePageID(folder)) {
					c.add(SeverityError, CodeFolderTargetMissing, "Folder action at %s references missing page %s.", slot, folder)
				}

				refs := action.ImageReferences()
				sort.Strings(refs)
				for _, ref := range refs {
					if _, ok := a.ResolveImagePath(ref, pageID); !ok {
						c.add(SeverityError, CodeImageRefMissing, "Action at %s references missing image %s.", slot, ref)
					}
				}
			}
		}
	}

	for _, plugin := range sortedKeys(referenced) {
		if !required[plugin] {
			c.add(SeverityWarning, CodeRequiredPluginMissing, "Plugin %s is used but not listed in package RequiredPlugins.", plugin)
		}
	}
	for _, plugin := range sortedKeys(required) {
		if !referenced[plugin] {
			c.add(SeverityInfo, CodeRequiredPluginUnused, "RequiredPlugins contains %s but no action currently references it.", plugin)
		}
	}

	return newReport(c.issues)
}

func newReport(issues []Issue) *Report {
	sort.SliceStable(issues, func(i, j int) bool {
		ri, rj := issues[i].Severity.rank(), issues[j].Severity.rank()
		if ri != rj {
			return ri < rj
		}
		return strings.ToLower(issues[i].Message) < strings.ToLower(issues[j].Message)
	})

	r := &Report{Issues: issues}
	if r.Issues == nil {
		r.Issues = []Issue{}
	}
	for _, is := range issues {
		switch is.Severity {
		case SeverityError:
			r.Errors++
		case SeverityWarning:
			r.Warnings++
		default:
			r.Infos++
		}
	}
	return r
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
