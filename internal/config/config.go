package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-sql-driver/mysql"
	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/voicetel/helpdesk-board/internal/models"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverFile     = "file"
)

type Config struct {
	// SQLite
	DBPath    string   `json:"db_path" yaml:"db_path"`
	DBTimeout Duration `json:"db_timeout" yaml:"db_timeout"`

	// Remote authority
	Authority AuthorityConfig `json:"authority" yaml:"authority"`

	// Slack
	Slack SlackConfig `json:"slack" yaml:"slack"`

	// Identity
	Identity IdentityConfig `json:"identity" yaml:"identity"`

	// Board behaviour
	Timezone        string   `json:"timezone" yaml:"timezone"`
	NotifyTimeout   Duration `json:"notify_timeout" yaml:"notify_timeout"`
	BulkConcurrency int      `json:"bulk_concurrency" yaml:"bulk_concurrency"`

	// Cleanup
	RetentionDays int  `json:"retention_days" yaml:"retention_days"`
	AutoVacuum    bool `json:"auto_vacuum" yaml:"auto_vacuum"`

	// Operational
	Verbose          bool   `json:"verbose" yaml:"verbose"`
	LogFormat        string `json:"log_format" yaml:"log_format"`
	CheckConnections bool   `json:"-" yaml:"-"`
	InitDB           bool   `json:"-" yaml:"-"`
	StatsOnly        bool   `json:"-" yaml:"-"`
	Cleanup          bool   `json:"-" yaml:"-"`
	ShowVersion      bool   `json:"-" yaml:"-"`

	// Actions
	Move       string `json:"-" yaml:"-"`
	MoveTo     string `json:"-" yaml:"-"`
	MoveIndex  int    `json:"-" yaml:"-"`
	Delete     string `json:"-" yaml:"-"`
	MarkViewed string `json:"-" yaml:"-"`
	MarkRead   string `json:"-" yaml:"-"`

	Filter models.Criteria `json:"-" yaml:"-"`
}

type AuthorityConfig struct {
	Driver      string   `json:"driver" yaml:"driver"`             // mysql, postgres or file
	DSN         string   `json:"dsn" yaml:"dsn"`                   // Database connection string
	Timeout     Duration `json:"timeout" yaml:"timeout"`           // Connection timeout
	FixturePath string   `json:"fixture_path" yaml:"fixture_path"` // JSON fixture for the file driver
}

type SlackConfig struct {
	WebhookURL    string   `json:"webhook_url" yaml:"webhook_url"`
	Timeout       Duration `json:"timeout" yaml:"timeout"`
	RetryAttempts int      `json:"retry_attempts" yaml:"retry_attempts"`
}

type IdentityConfig struct {
	UserID string `json:"user_id" yaml:"user_id"`
	Role   string `json:"role" yaml:"role"`
	// AdminRecipientID receives notifications about tickets moved by a
	// non-admin user.
	AdminRecipientID string `json:"admin_recipient_id" yaml:"admin_recipient_id"`
}

// ParseFlags parses os.Args and exits on error, printing usage for --help.
func ParseFlags() *Config {
	cfg, err := Parse(os.Args[1:])
	if err != nil {
		if err == pflag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(2)
	}
	return cfg
}

// Parse builds a Config from command-line arguments. Values from
// --config-file are applied first; flags given explicitly win over them.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}
	fs := pflag.NewFlagSet("helpdesk-board", pflag.ContinueOnError)

	// Config file flag
	configFile := fs.String("config-file", "", "Path to JSON or YAML configuration file")

	// SQLite flags
	fs.StringVar(&cfg.DBPath, "db-path", "./board.db", "Path to SQLite database")
	fs.DurationVar(&cfg.DBTimeout.Duration, "db-timeout", 5*time.Second, "SQLite timeout")

	// Authority flags
	fs.StringVar(&cfg.Authority.Driver, "authority-driver", DriverMySQL, "Remote authority driver (mysql, postgres or file)")
	fs.StringVar(&cfg.Authority.DSN, "authority-dsn", "", "Remote authority database DSN")
	fs.DurationVar(&cfg.Authority.Timeout.Duration, "authority-timeout", 30*time.Second, "Remote authority connection timeout")
	fs.StringVar(&cfg.Authority.FixturePath, "authority-fixture", "", "JSON fixture used by the file driver")

	// Slack flags
	fs.StringVar(&cfg.Slack.WebhookURL, "slack-webhook", "", "Slack webhook URL mirroring status notifications (optional)")
	fs.DurationVar(&cfg.Slack.Timeout.Duration, "slack-timeout", 10*time.Second, "Slack request timeout")
	fs.IntVar(&cfg.Slack.RetryAttempts, "slack-retry-attempts", 3, "Slack retry attempts")

	// Identity flags
	fs.StringVar(&cfg.Identity.UserID, "user-id", "", "Id of the acting user (required)")
	fs.StringVar(&cfg.Identity.Role, "role", string(models.RoleAdmin), "Role of the acting user (admin or student)")
	fs.StringVar(&cfg.Identity.AdminRecipientID, "admin-recipient", "", "Recipient of notifications for moves made by students")

	// Board flags
	fs.StringVar(&cfg.Timezone, "timezone", "Asia/Jakarta", "Timezone used for dates and badges")
	fs.DurationVar(&cfg.NotifyTimeout.Duration, "notify-timeout", 10*time.Second, "Timeout for a status-change notification")
	fs.IntVar(&cfg.BulkConcurrency, "bulk-concurrency", 4, "Concurrent remote calls during bulk delete")

	// Cleanup flags
	fs.IntVar(&cfg.RetentionDays, "retention-days", 90, "Days to retain notification history")
	fs.BoolVar(&cfg.AutoVacuum, "auto-vacuum", false, "Automatically vacuum database after cleanup")

	// Operational flags
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", "text", "Log format (text or json)")
	fs.BoolVar(&cfg.CheckConnections, "check-connections", false, "Test connections and exit")
	fs.BoolVar(&cfg.InitDB, "init-db", false, "Initialize database and exit")
	fs.BoolVar(&cfg.StatsOnly, "stats-only", false, "Print notification statistics and exit")
	fs.BoolVar(&cfg.Cleanup, "cleanup", false, "Clean up old records and exit")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Print version information and exit")

	// Action flags
	fs.StringVar(&cfg.Move, "move", "", "Ticket id to move")
	fs.StringVar(&cfg.MoveTo, "to", "", "Destination column for --move (new, in_progress or done)")
	fs.IntVar(&cfg.MoveIndex, "index", -1, "Destination position for --move (-1 appends)")
	fs.StringVar(&cfg.Delete, "delete", "", "Comma-separated ticket ids to delete")
	fs.StringVar(&cfg.MarkViewed, "mark-viewed", "", "Record that a column was viewed")
	fs.StringVar(&cfg.MarkRead, "mark-read", "", "Mark a ticket as read")

	// Filter flags
	fs.StringVar(&cfg.Filter.Category, "category", "", "Filter by category")
	fs.StringVar(&cfg.Filter.DateRange, "date-range", "", `Filter by creation date ("YYYY-MM-DD - YYYY-MM-DD")`)
	readState := fs.String("read-state", "", "Filter by read state (read or unread)")
	fs.StringVar(&cfg.Filter.Search, "search", "", "Case-insensitive search over id, subject, sender and NIM")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Load config file if specified
	if *configFile != "" {
		// Remember explicit flags; the file would overwrite their targets.
		explicit := make(map[string]string)
		fs.Visit(func(f *pflag.Flag) {
			if f.Name != "config-file" {
				explicit[f.Name] = f.Value.String()
			}
		})

		if err := cfg.LoadFromFile(*configFile); err != nil {
			return nil, fmt.Errorf("error loading config file: %w", err)
		}

		for name, value := range explicit {
			if err := fs.Set(name, value); err != nil {
				return nil, fmt.Errorf("reapply --%s: %w", name, err)
			}
		}
	}
	cfg.Filter.ReadState = models.ReadState(strings.ToLower(strings.TrimSpace(*readState)))

	return cfg, nil
}

// LoadFromFile overlays the file onto c. Files ending in .yaml or .yml are
// decoded as YAML, anything else as JSON.
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (c *Config) SaveToFile(filename string) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *Config) Validate() error {
	switch c.Authority.Driver {
	case DriverMySQL, DriverPostgres:
		if c.Authority.DSN == "" {
			return fmt.Errorf("--authority-dsn is required for the %s driver", c.Authority.Driver)
		}
		if err := c.validateDSN(); err != nil {
			return fmt.Errorf("invalid DSN: %w", err)
		}
	case DriverFile:
		if c.Authority.FixturePath == "" {
			return fmt.Errorf("--authority-fixture is required for the file driver")
		}
	default:
		return fmt.Errorf("--authority-driver must be mysql, postgres or file, got %q", c.Authority.Driver)
	}

	if c.Identity.UserID == "" && !c.localOnly() {
		return fmt.Errorf("--user-id is required")
	}
	if _, err := c.Role(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("--log-format must be text or json")
	}

	if c.RetentionDays < 1 {
		return fmt.Errorf("--retention-days must be at least 1")
	}
	if c.BulkConcurrency < 1 {
		return fmt.Errorf("--bulk-concurrency must be at least 1")
	}
	if c.Slack.RetryAttempts < 1 {
		return fmt.Errorf("--slack-retry-attempts must be at least 1")
	}

	if c.Move != "" {
		if c.MoveTo == "" {
			return fmt.Errorf("--move requires --to")
		}
		if _, err := models.ParseColumn(c.MoveTo); err != nil {
			return fmt.Errorf("--to: %w", err)
		}
		if c.MoveIndex < -1 {
			return fmt.Errorf("--index must be -1 or greater")
		}
	}
	if c.MarkViewed != "" {
		if _, err := models.ParseColumn(c.MarkViewed); err != nil {
			return fmt.Errorf("--mark-viewed: %w", err)
		}
	}

	switch c.Filter.ReadState {
	case models.ReadStateAny, models.ReadStateRead, models.ReadStateUnread:
	default:
		return fmt.Errorf("--read-state must be read or unread")
	}

	return nil
}

// localOnly reports whether the selected action touches only the local
// database.
func (c *Config) localOnly() bool {
	return c.InitDB || c.StatsOnly || c.Cleanup || c.CheckConnections
}

// Role returns the configured role of the acting user.
func (c *Config) Role() (models.Role, error) {
	for _, r := range models.Roles {
		if string(r) == c.Identity.Role {
			return r, nil
		}
	}
	return "", fmt.Errorf("--role must be admin or student, got %q", c.Identity.Role)
}

// Location loads the configured timezone. An empty name means UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// validateDSN checks the DSN with the parser of the selected driver.
func (c *Config) validateDSN() error {
	dsn := c.Authority.DSN

	switch c.Authority.Driver {
	case DriverMySQL:
		if strings.HasPrefix(dsn, "tcp://") || strings.HasPrefix(dsn, "mysql://") {
			return fmt.Errorf("DSN should not include a URL scheme, use format: 'user:password@tcp(host:port)/database'")
		}
		if _, err := mysql.ParseDSN(dsn); err != nil {
			return err
		}
	case DriverPostgres:
		if _, err := pgconn.ParseConfig(dsn); err != nil {
			return err
		}
	}

	return nil
}

// GetDSNInfo returns parsed information from the DSN for display purposes.
// The password is never included.
func (c *Config) GetDSNInfo() map[string]string {
	info := map[string]string{"driver": c.Authority.Driver}

	switch c.Authority.Driver {
	case DriverMySQL:
		parsed, err := mysql.ParseDSN(c.Authority.DSN)
		if err != nil {
			return info
		}
		info["user"] = parsed.User
		info["host_port"] = parsed.Addr
		info["database"] = parsed.DBName
	case DriverPostgres:
		parsed, err := pgconn.ParseConfig(c.Authority.DSN)
		if err != nil {
			return info
		}
		info["user"] = parsed.User
		info["host_port"] = fmt.Sprintf("%s:%d", parsed.Host, parsed.Port)
		info["database"] = parsed.Database
	case DriverFile:
		info["fixture"] = c.Authority.FixturePath
	}

	return info
}
