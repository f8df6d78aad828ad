package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/voicetel/helpdesk-board/internal/config"
	"github.com/voicetel/helpdesk-board/internal/database"
	"github.com/voicetel/helpdesk-board/internal/engine"
	"github.com/voicetel/helpdesk-board/internal/identity"
	"github.com/voicetel/helpdesk-board/internal/logging"
	"github.com/voicetel/helpdesk-board/internal/models"
	"github.com/voicetel/helpdesk-board/internal/notifier"
	"github.com/voicetel/helpdesk-board/internal/session"
	"github.com/voicetel/helpdesk-board/internal/slack"
	"github.com/voicetel/helpdesk-board/internal/status"
)

// Version information - these will be set at build time via ldflags
var (
	Version   = "dev"     // Version number
	GitCommit = "unknown" // Git commit hash
	BuildDate = "unknown" // Build date
	GoVersion = "unknown" // Go version used to build
)

func main() {
	// Parse command line flags
	cfg := config.ParseFlags()

	// Check for version flag before other validation
	if cfg.ShowVersion {
		printVersion()
		os.Exit(0)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Set up logging
	logger := logging.NewLogger(cfg.LogFormat, cfg.Verbose, nil, logging.BuildInfo{
		Version:   Version,
		Commit:    GitCommit,
		BuildDate: BuildDate,
	})
	logger.SetAsDefault()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.LogError("Run failed", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	logger.Verbose("Starting helpdesk board",
		"version", Version,
		"authority", cfg.Authority.Driver,
		"role", cfg.Identity.Role,
	)

	// Check connections mode
	if cfg.CheckConnections {
		if err := checkConnections(ctx, cfg, logger); err != nil {
			return fmt.Errorf("connection check failed: %w", err)
		}
		fmt.Println("All connections successful!")
		return nil
	}

	// Initialize SQLite database
	db, err := database.InitSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize SQLite: %w", err)
	}
	defer db.Close()

	if err := database.InitSchema(db); err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}
	if cfg.InitDB {
		fmt.Println("Database initialized successfully!")
		return nil
	}

	// Cleanup mode
	if cfg.Cleanup {
		if err := performCleanup(db, cfg, logger); err != nil {
			return fmt.Errorf("failed to perform cleanup: %w", err)
		}
		fmt.Println("Cleanup completed successfully!")
		return nil
	}

	// Stats only mode
	if cfg.StatsOnly {
		return printStats(db)
	}

	authority, closeAuthority, err := openAuthority(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeAuthority()

	eng, err := newEngine(cfg, authority, db, logger)
	if err != nil {
		return err
	}
	// Let pending notifications finish before the database closes.
	defer eng.Wait()

	if err := eng.Load(ctx); err != nil {
		return err
	}
	if !cfg.Filter.IsZero() {
		if _, err := eng.ApplyFilter(ctx, cfg.Filter); err != nil {
			return fmt.Errorf("invalid filter: %w", err)
		}
	}

	if err := runActions(ctx, cfg, eng, logger); err != nil {
		return err
	}

	printBoard(eng)
	return nil
}

func printVersion() {
	fmt.Printf("Helpdesk Board\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Go Version: %s\n", GoVersion)
}

// openAuthority connects the configured remote authority. The returned func
// releases it; for the file driver it also writes mutations back.
func openAuthority(ctx context.Context, cfg *config.Config) (database.Authority, func(), error) {
	switch cfg.Authority.Driver {
	case config.DriverMySQL:
		m, err := database.ConnectMySQL(cfg.Authority)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to MySQL: %w", err)
		}
		return m, func() { m.Close() }, nil
	case config.DriverPostgres:
		p, err := database.ConnectPostgres(ctx, cfg.Authority)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		return p, func() { p.Close() }, nil
	case config.DriverFile:
		f, err := database.OpenFile(cfg.Authority.FixturePath)
		if err != nil {
			return nil, nil, err
		}
		return f, func() {
			if err := f.Save(); err != nil {
				log.Printf("Warning: failed to save fixture: %v", err)
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown authority driver %q", cfg.Authority.Driver)
}

func newEngine(cfg *config.Config, authority database.Authority, db *database.DB, logger *logging.Logger) (*engine.Engine, error) {
	role, err := cfg.Role()
	if err != nil {
		return nil, err
	}
	ident, err := identity.NewStatic(cfg.Identity.UserID, role, cfg.Identity.AdminRecipientID)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	var sl *slack.Client
	if cfg.Slack.WebhookURL != "" {
		sl = slack.NewClient(cfg.Slack)
	}

	return engine.New(authority, engine.Config{
		Identity:        ident,
		State:           session.NewSQLite(db.DB),
		Notifier:        notifier.New(authority, db, sl, logger),
		Logger:          logger,
		Location:        loc,
		NotifyTimeout:   cfg.NotifyTimeout.Duration,
		BulkConcurrency: cfg.BulkConcurrency,
	}), nil
}

func runActions(ctx context.Context, cfg *config.Config, eng *engine.Engine, logger *logging.Logger) error {
	if cfg.Move != "" {
		to, _ := models.ParseColumn(cfg.MoveTo)
		out := eng.MoveTicket(ctx, cfg.Move, to, cfg.MoveIndex)
		switch {
		case out.Stale:
			fmt.Printf("Ticket %s is already being updated\n", cfg.Move)
		case out.Class != "":
			return fmt.Errorf("%s (%w)", out.Class.Message(), out.Err)
		case out.Err != nil:
			return out.Err
		case out.Committed:
			fmt.Printf("Ticket %s moved to %s (status %q)\n", cfg.Move, status.Label(to), out.RawStatus)
		case out.Reordered:
			fmt.Printf("Ticket %s reordered within %s\n", cfg.Move, status.Label(to))
		default:
			fmt.Printf("Ticket %s already in place\n", cfg.Move)
		}
	}

	if cfg.Delete != "" {
		res := eng.DeleteMany(ctx, strings.Split(cfg.Delete, ","))
		fmt.Printf("Deleted %d of %d tickets\n", len(res.Succeeded), res.Total())
		for _, f := range res.Failed {
			logger.Warn("Delete failed", "ticket_id", f.ID, "class", string(f.Class), "error", f.Err.Error())
			fmt.Printf("  %s: %s\n", f.ID, f.Class.Message())
		}
	}

	if cfg.MarkRead != "" {
		if !eng.MarkRead(cfg.MarkRead) {
			return fmt.Errorf("ticket %s not found on the board", cfg.MarkRead)
		}
	}

	if cfg.MarkViewed != "" {
		col, _ := models.ParseColumn(cfg.MarkViewed)
		if _, err := eng.MarkViewed(ctx, col); err != nil {
			return fmt.Errorf("failed to record viewed column: %w", err)
		}
	}

	return nil
}

func printBoard(eng *engine.Engine) {
	b := eng.Board()
	badges := eng.Badges()

	if c := eng.Criteria(); !c.IsZero() {
		fmt.Printf("Filter: category=%q date=%q read=%q search=%q\n", c.Category, c.DateRange, c.ReadState, c.Search)
	}

	for _, col := range models.Columns {
		mark := ""
		if badges[col] {
			mark = " ●"
		}
		fmt.Printf("\n=== %s (%d)%s ===\n", status.Label(col), len(b[col]), mark)
		for _, t := range b[col] {
			flags := ""
			if !t.IsReadByRecipient {
				flags += " [baru]"
			}
			if t.UnreadChatCount > 0 {
				flags += fmt.Sprintf(" [%d pesan]", t.UnreadChatCount)
			}
			fmt.Printf("  #%-6s %-12s %s - %s%s\n", t.ID, t.Category, t.Subject, t.Sender, flags)
		}
	}
}

func checkConnections(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	logger.Info("Checking connections...")

	// Check remote authority
	logger.Info("Testing remote authority connection...", dsnAttrs(cfg)...)
	authority, closeAuthority, err := openAuthority(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeAuthority()
	if _, err := authority.FetchCategories(ctx); err != nil {
		return fmt.Errorf("remote authority query failed: %w", err)
	}
	logger.Info("Remote authority connection successful")

	// Check local database
	db, err := database.InitSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("SQLite open failed: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("SQLite ping failed: %w", err)
	}
	logger.Info("Local database connection successful")

	// Check Slack webhook
	if cfg.Slack.WebhookURL != "" {
		logger.Info("Testing Slack webhook...")
		if err := notifier.CheckSlackWebhook(ctx, cfg.Slack); err != nil {
			return fmt.Errorf("Slack webhook test failed: %w", err)
		}
		logger.Info("Slack webhook test successful")
	}

	return nil
}

func dsnAttrs(cfg *config.Config) []any {
	info := cfg.GetDSNInfo()
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]any, 0, len(info)*2)
	for _, k := range keys {
		attrs = append(attrs, k, info[k])
	}
	return attrs
}

func printStats(db *database.DB) error {
	stats, err := notifier.Stats(db)
	if err != nil {
		return fmt.Errorf("failed to get statistics: %w", err)
	}

	fmt.Printf("\n=== Helpdesk Board Notification Statistics ===\n\n")
	fmt.Printf("Total Notifications: %d\n\n", stats.Total)

	fmt.Printf("By Status:\n")
	printCounts(stats.ByStatus)
	fmt.Printf("By Type:\n")
	printCounts(stats.ByType)

	fmt.Printf("Notifications in Last 24 Hours: %d\n", stats.Last24h)
	fmt.Printf("Failed in Last 24 Hours: %d\n", stats.Failed24h)
	return nil
}

func printCounts(m map[string]int) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s: %d\n", k, m[k])
	}
	fmt.Println()
}

func performCleanup(db *database.DB, cfg *config.Config, logger *logging.Logger) error {
	logger.Info("Starting database cleanup",
		"retention_days", cfg.RetentionDays,
		"auto_vacuum", cfg.AutoVacuum,
	)

	if _, err := notifier.CleanupOldNotifications(db, cfg.RetentionDays, logger); err != nil {
		return fmt.Errorf("failed to cleanup old notifications: %w", err)
	}

	if cfg.AutoVacuum {
		if err := notifier.VacuumDatabase(db, logger); err != nil {
			return fmt.Errorf("failed to vacuum database: %w", err)
		}
	}

	return nil
}
