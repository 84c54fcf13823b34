// Package testutil provides shared test utilities: an in-memory settings
// database and profile fixtures on an in-memory filesystem.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/lucsky/cuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/SirCrest/SDProfileManager-Windows/internal/database/models"
	"github.com/SirCrest/SDProfileManager-Windows/internal/database/repositories"
	"github.com/SirCrest/SDProfileManager-Windows/internal/fsys"
	"github.com/SirCrest/SDProfileManager-Windows/internal/profile"
)

// TestDB holds the test database and repositories.
type TestDB struct {
	DB          *gorm.DB
	SettingRepo *repositories.SettingRepository
	RecentRepo  *repositories.RecentProfileRepository
}

// SetupTestDB creates an in-memory SQLite database for testing.
// It returns a TestDB with all repositories initialized and a cleanup function.
func SetupTestDB(t *testing.T) (*TestDB, func()) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	// Every connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}

	testDB := &TestDB{
		DB:          db,
		SettingRepo: repositories.NewSettingRepository(db),
		RecentRepo:  repositories.NewRecentProfileRepository(db),
	}
	cleanup := func() {
		_ = sqlDB.Close()
	}
	return testDB, cleanup
}

// ProfileOptions customizes NewProfile.
type ProfileOptions struct {
	FS       fsys.FS
	Template *profile.Template
	Name     string
}

// NewProfile builds an archive with the given pages, each named "Page <id>".
// The first page is active and default. Without page ids the template's
// default page is used. The archive's working directory is a fresh path on
// opts.FS (an in-memory filesystem when nil); nothing is written to it.
func NewProfile(t *testing.T, opts ProfileOptions, pageIDs ...string) *profile.Archive {
	t.Helper()

	tmpl := opts.Template
	if tmpl == nil {
		tmpl, _ = profile.TemplateByID("sdplusxl")
	}
	fs := opts.FS
	if fs == nil {
		fs = fsys.NewMem()
	}
	name := opts.Name
	if name == "" {
		name = "Test Profile"
	}

	if len(pageIDs) == 0 {
		pageIDs = []string{tmpl.DefaultPageID}
	}
	ids := profile.UniquePageIDs(pageIDs)
	first := ids[0]

	pages := make(map[string]*profile.PageState, len(ids))
	for _, id := range ids {
		state := profile.NewPageState(id, tmpl)
		state.Manifest.Name = "Page " + id
		pages[id] = state
	}

	return profile.NewArchive(profile.ArchiveParams{
		FS:            fs,
		ExtractedRoot: filepath.Join("/tmp", "sdpm-tests", cuid.New()),
		Template:      tmpl,
		Name:          name,
		RootName:      tmpl.RootName,
		ActivePageID:  first,
		PageOrder:     ids,
		Pages:         pages,
		Package: &profile.PackageManifest{
			DeviceModel:     tmpl.DeviceModel,
			RequiredPlugins: []string{},
		},
		Manifest: &profile.RootProfileManifest{
			Name:    name,
			Version: "1.0",
			Device:  &profile.DeviceManifest{Model: tmpl.DeviceModel, UUID: profile.ZeroUUID},
			Pages: &profile.PagesManifest{
				Current: first,
				Default: first,
				Pages:   ids,
			},
		},
	})
}
