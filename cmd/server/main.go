// Package main is the entry point for the Stream Deck profile manager server.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/SirCrest/SDProfileManager-Windows/internal/api"
	"github.com/SirCrest/SDProfileManager-Windows/internal/config"
	"github.com/SirCrest/SDProfileManager-Windows/internal/database"
	"github.com/SirCrest/SDProfileManager-Windows/internal/database/models"
	"github.com/SirCrest/SDProfileManager-Windows/internal/database/repositories"
	"github.com/SirCrest/SDProfileManager-Windows/internal/fsys"
	"github.com/SirCrest/SDProfileManager-Windows/internal/logging"
	"github.com/SirCrest/SDProfileManager-Windows/internal/services/archive"
	"github.com/SirCrest/SDProfileManager-Windows/internal/services/imagecache"
	"github.com/SirCrest/SDProfileManager-Windows/internal/services/janitor"
	"github.com/SirCrest/SDProfileManager-Windows/internal/services/plugins"
	"github.com/SirCrest/SDProfileManager-Windows/internal/services/pubsub"
	"github.com/SirCrest/SDProfileManager-Windows/internal/services/workspace"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// app holds the wired services of one server process.
type app struct {
	engine  *workspace.Engine
	janitor *janitor.Janitor
	images  *imagecache.Cache
	handler http.Handler
}

func main() {
	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Print startup banner
	printBanner(cfg)

	// Connect to database
	db, err := database.Connect(database.Config{
		URL:         cfg.DatabaseURL,
		MaxIdleConn: 2,
		MaxOpenConn: 4,
		Debug:       cfg.IsDevelopment(),
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() { _ = database.Close() }()

	logger.Info("running database migrations")
	if err := database.Migrate(db); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	a, err := newApp(cfg, fsys.NewOS(), db, logger)
	if err != nil {
		logger.Fatal("failed to initialize services", zap.Error(err))
	}
	a.janitor.Start()

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      a.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // the event stream is long-lived
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", zap.String("addr", "http://localhost:"+cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Cleanup services in reverse order
	a.janitor.Stop()
	a.images.Close()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Fatal("server shutdown error", zap.Error(err))
	}

	logger.Info("server stopped")
}

// loadConfig reads CONFIG_FILE when set, otherwise the environment alone.
func loadConfig() (*config.Config, error) {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return config.LoadFile(path)
	}
	return config.Load(), nil
}

// newApp wires the engine, its collaborators and the HTTP handler. The
// persisted source lock preference wins over the configured default.
func newApp(cfg *config.Config, fs fsys.FS, db *gorm.DB, logger *zap.Logger) (*app, error) {
	settings := repositories.NewSettingRepository(db)
	recent := repositories.NewRecentProfileRepository(db)

	lock, err := settings.GetBool(context.Background(), models.SettingLockSourceProfile, cfg.LockSourceProfile)
	if err != nil {
		logger.Warn("failed to read source lock preference", zap.Error(err))
		lock = cfg.LockSourceProfile
	}

	archives := archive.NewService(fs, cfg.WorkDir, logger.Named("archive"))
	engine := workspace.NewEngine(archives, workspace.Options{
		HistoryDepth: cfg.HistoryDepth,
		MaxPages:     cfg.MaxPages,
		LockSource:   lock,
		Logger:       logger.Named("workspace"),
	})

	sweeper, err := janitor.New(janitor.Config{
		FS:         fs,
		Dir:        filepath.Join(cfg.WorkDir, archive.WorkDirName),
		Schedule:   cfg.JanitorSchedule,
		MaxAge:     cfg.JanitorMaxAge,
		Referenced: engine.ReferencedRoots,
		Logger:     logger.Named("janitor"),
	})
	if err != nil {
		return nil, err
	}

	images := imagecache.New(cfg.ImageCacheSize, logger.Named("images"))
	server := api.NewServer(api.Config{
		Engine:      engine,
		Catalog:     plugins.NewCatalog(fs, cfg.PluginRoot, logger.Named("plugins")),
		Images:      images,
		Settings:    settings,
		Recent:      recent,
		PubSub:      pubsub.New(),
		Logger:      logger.Named("api"),
		CORSOrigins: []string{cfg.CORSOrigin, "http://localhost:3000", "http://localhost:" + cfg.Port},
		Debug:       cfg.IsDevelopment(),
		Version:     Version,
	})

	return &app{
		engine:  engine,
		janitor: sweeper,
		images:  images,
		handler: server.Handler(),
	}, nil
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println("============================================")
	fmt.Println("  Stream Deck Profile Manager")
	fmt.Printf("  Version: %s\n", Version)
	fmt.Printf("  Build:   %s\n", BuildTime)
	fmt.Printf("  Commit:  %s\n", GitCommit)
	fmt.Println("============================================")
	fmt.Printf("  Environment: %s\n", cfg.Env)
	fmt.Printf("  Port:        %s\n", cfg.Port)
	fmt.Printf("  Database:    %s\n", cfg.DatabaseURL)
	fmt.Printf("  Work dir:    %s\n", cfg.WorkDir)
	fmt.Println("============================================")
}
