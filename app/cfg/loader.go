package cfg

import (
	"cmp"
	"fmt"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Google configuration
	SheetID            string `long:"sheet-id" env:"GOOGLE_SHEET_ID" description:"Google Sheet ID to append food entries to (required)"`
	DriveFolderID      string `long:"folder-id" env:"GOOGLE_DRIVE_FOLDER_ID" description:"Google Drive folder ID to watch (optional, all folders when empty)"`
	ServiceAccountFile string `long:"service-account-file" env:"SERVICE_ACCOUNT_FILE" default:"./config/service-account-key.json" description:"Path to the Google service account credentials JSON"`

	// OpenAI configuration
	OpenAIAPIKey string `long:"openai-api-key" env:"OPENAI_API_KEY" description:"OpenAI API key (required)"`

	// Application configuration
	LedgerPath      string `long:"ledger-path" env:"LEDGER_PATH" default:"./data/processed_files.json" description:"Path to the processed files ledger"`
	PromptsFile     string `long:"prompts-file" env:"PROMPTS_FILE" description:"Optional YAML file overriding the built-in prompts"`
	Port            string `long:"port" env:"PORT" default:"8080" description:"HTTP status server port (monitor mode only)"`
	IntervalMinutes int    `long:"interval" env:"CHECK_INTERVAL_MINUTES" default:"5" description:"Check interval in minutes (monitor mode)"`
	HoursBack       int    `long:"hours" default:"24" description:"Check photos from the last N hours"`
	MaxPhotosPerRun int    `long:"max-photos" env:"MAX_PHOTOS_PER_RUN" default:"10" description:"Maximum number of photos to process per run"`
	Monitor         bool   `long:"monitor" description:"Run in continuous monitoring mode"`

	// Application metadata
	LogLevel string `long:"log-level" env:"LOG_LEVEL" default:"INFO" description:"Log verbosity (DEBUG, INFO, WARN, ERROR)"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		SheetID:            raw.SheetID,
		DriveFolderID:      raw.DriveFolderID,
		ServiceAccountFile: raw.ServiceAccountFile,
		OpenAIAPIKey:       raw.OpenAIAPIKey,
		LedgerPath:         raw.LedgerPath,
		PromptsFile:        raw.PromptsFile,
		Port:               raw.Port,
		IntervalMinutes:    raw.IntervalMinutes,
		HoursBack:          raw.HoursBack,
		MaxPhotosPerRun:    raw.MaxPhotosPerRun,
		Monitor:            raw.Monitor,
		LogLevel:           strings.ToUpper(raw.LogLevel),
		Version:            GetVersion(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// Validate checks required values before any work is done. All problems are
// reported at once so a misconfigured deployment can be fixed in one pass.
func (c *Cfg) Validate() error {
	var problems []string

	if c.SheetID == "" {
		problems = append(problems, "GOOGLE_SHEET_ID is required")
	}
	if c.OpenAIAPIKey == "" {
		problems = append(problems, "OPENAI_API_KEY is required")
	}
	if c.ServiceAccountFile == "" {
		problems = append(problems, "SERVICE_ACCOUNT_FILE is required")
	} else if _, err := os.Stat(c.ServiceAccountFile); err != nil {
		problems = append(problems, fmt.Sprintf("service account file not found at %s", c.ServiceAccountFile))
	}
	if c.IntervalMinutes <= 0 {
		problems = append(problems, "check interval must be positive")
	}
	if c.HoursBack <= 0 {
		problems = append(problems, "hours must be positive")
	}
	if c.MaxPhotosPerRun <= 0 {
		problems = append(problems, "max photos per run must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration errors:\n%s", strings.Join(problems, "\n"))
	}

	return nil
}
