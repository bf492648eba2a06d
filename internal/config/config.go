// Package config loads the runtime configuration from defaults, an optional
// budget.yaml file, a .env file and BUDGET_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/dvloznov/budget-updater/internal/logger"
	"github.com/dvloznov/budget-updater/internal/sign"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// BankConfig carries the per-bank conventions.
type BankConfig struct {
	Sign    string `mapstructure:"sign" yaml:"sign"`
	Account string `mapstructure:"account" yaml:"account"`
}

// Config is passed explicitly to every component at construction.
type Config struct {
	Log struct {
		Level  string `mapstructure:"level" yaml:"level"`
		Format string `mapstructure:"format" yaml:"format"`
	} `mapstructure:"log" yaml:"log"`

	Store struct {
		Backend    string `mapstructure:"backend" yaml:"backend"` // bigquery or sqlite
		SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	} `mapstructure:"store" yaml:"store"`

	BigQuery struct {
		ProjectID string `mapstructure:"project_id" yaml:"project_id"`
		Dataset   string `mapstructure:"dataset" yaml:"dataset"`
	} `mapstructure:"bigquery" yaml:"bigquery"`

	GCS struct {
		Bucket string `mapstructure:"bucket" yaml:"bucket"`
	} `mapstructure:"gcs" yaml:"gcs"`

	Gemini struct {
		Model    string `mapstructure:"model" yaml:"model"`
		Backend  string `mapstructure:"backend" yaml:"backend"` // vertex or gemini
		Project  string `mapstructure:"project" yaml:"project"`
		Location string `mapstructure:"location" yaml:"location"`
		APIKey   string `mapstructure:"api_key" yaml:"-"`
	} `mapstructure:"gemini" yaml:"gemini"`

	Sheets struct {
		SpreadsheetID string `mapstructure:"spreadsheet_id" yaml:"spreadsheet_id"`
		LedgerTab     string `mapstructure:"ledger_tab" yaml:"ledger_tab"`
		PublishTab    string `mapstructure:"publish_tab" yaml:"publish_tab"`
	} `mapstructure:"sheets" yaml:"sheets"`

	OAuth struct {
		ClientSecretFile string `mapstructure:"client_secret_file" yaml:"client_secret_file"`
		TokenFile        string `mapstructure:"token_file" yaml:"token_file"`
		RedirectPort     int    `mapstructure:"redirect_port" yaml:"redirect_port"`
	} `mapstructure:"oauth" yaml:"oauth"`

	Archive struct {
		MaxResults int `mapstructure:"max_results" yaml:"max_results"`
		WindowDays int `mapstructure:"window_days" yaml:"window_days"`
		BodyLimit  int `mapstructure:"body_limit" yaml:"body_limit"`
	} `mapstructure:"archive" yaml:"archive"`

	Categorizer struct {
		TaxonomyFile  string `mapstructure:"taxonomy_file" yaml:"taxonomy_file"`
		MaxToolRounds int    `mapstructure:"max_tool_rounds" yaml:"max_tool_rounds"`
		BatchLimit    int    `mapstructure:"batch_limit" yaml:"batch_limit"`
	} `mapstructure:"categorizer" yaml:"categorizer"`

	Banks map[string]BankConfig `mapstructure:"banks" yaml:"banks"`

	Reconcile struct {
		Cutoffs map[string]string `mapstructure:"cutoffs" yaml:"cutoffs"`
	} `mapstructure:"reconcile" yaml:"reconcile"`
}

// Load reads configuration. configFile may be empty to use the search path.
func Load(configFile string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("budget")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.budget-updater")
	}

	v.SetEnvPrefix("BUDGET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config.Load: reading %s: %w", v.ConfigFileUsed(), err)
		}
	}

	_ = v.BindEnv("gemini.api_key", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	_ = v.BindEnv("bigquery.project_id", "BUDGET_BIGQUERY_PROJECT_ID", "GOOGLE_CLOUD_PROJECT")
	_ = v.BindEnv("sheets.spreadsheet_id", "BUDGET_SHEETS_SPREADSHEET_ID", "GOOGLE_SHEET_ID")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("store.backend", "bigquery")
	v.SetDefault("store.sqlite_path", "data/budget.db")

	v.SetDefault("bigquery.dataset", "budget")

	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.backend", "vertex")
	v.SetDefault("gemini.location", "europe-west1")

	v.SetDefault("sheets.ledger_tab", "Transactions")
	v.SetDefault("sheets.publish_tab", "New Transactions")

	v.SetDefault("oauth.client_secret_file", "credentials/client_secret.json")
	v.SetDefault("oauth.token_file", "credentials/token.json")
	v.SetDefault("oauth.redirect_port", 8085)

	v.SetDefault("archive.max_results", 15)
	v.SetDefault("archive.window_days", 3)
	v.SetDefault("archive.body_limit", 1000)

	v.SetDefault("categorizer.taxonomy_file", "configs/taxonomy.yaml")
	v.SetDefault("categorizer.max_tool_rounds", 4)
	v.SetDefault("categorizer.batch_limit", 200)

	v.SetDefault("banks", map[string]interface{}{
		"seb":        map[string]interface{}{"sign": "native", "account": "💰 SEB"},
		"revolut":    map[string]interface{}{"sign": "native", "account": "💳 Revolut"},
		"firstcard":  map[string]interface{}{"sign": "inverted", "account": "💳 First Card"},
		"strawberry": map[string]interface{}{"sign": "inverted", "account": "💳 Strawberry"},
	})

	v.SetDefault("reconcile.cutoffs", map[string]interface{}{
		"firstcard": "2023-05-01",
	})
}

// Validate checks the options components rely on.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "bigquery", "sqlite":
	default:
		return fmt.Errorf("store.backend must be bigquery or sqlite, got %q", c.Store.Backend)
	}
	if c.Archive.MaxResults <= 0 {
		return fmt.Errorf("archive.max_results must be positive")
	}
	if c.Archive.WindowDays < 0 {
		return fmt.Errorf("archive.window_days must not be negative")
	}
	if _, err := c.SignTable(); err != nil {
		return err
	}
	for account := range c.Reconcile.Cutoffs {
		if _, err := c.Cutoff(account); err != nil {
			return err
		}
	}
	return nil
}

// LoggerOptions adapts the log section for the logger package.
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{Level: c.Log.Level, Format: c.Log.Format}
}

// SignTable builds the bank → sign rule table. Every supported bank must be covered.
func (c *Config) SignTable() (sign.Table, error) {
	table := sign.Table{}
	for _, bank := range domain.Banks {
		bc, ok := c.Banks[string(bank)]
		if !ok || bc.Sign == "" {
			return nil, fmt.Errorf("banks.%s.sign is not configured", bank)
		}
		rule, err := sign.ParseRule(bc.Sign)
		if err != nil {
			return nil, fmt.Errorf("banks.%s.sign: %w", bank, err)
		}
		table[bank] = rule
	}
	return table, nil
}

// AccountAliases maps each bank to the account name used in the ledger.
func (c *Config) AccountAliases() map[domain.Bank]string {
	aliases := make(map[domain.Bank]string, len(c.Banks))
	for _, bank := range domain.Banks {
		if bc, ok := c.Banks[string(bank)]; ok && bc.Account != "" {
			aliases[bank] = bc.Account
		} else {
			aliases[bank] = bank.DisplayName()
		}
	}
	return aliases
}

// Cutoff returns the reconciliation cutoff configured for account.
func (c *Config) Cutoff(account string) (civil.Date, error) {
	raw, ok := c.Reconcile.Cutoffs[strings.ToLower(account)]
	if !ok {
		return civil.Date{}, fmt.Errorf("no reconciliation cutoff configured for %q", account)
	}
	d, err := civil.ParseDate(raw)
	if err != nil {
		return civil.Date{}, fmt.Errorf("reconcile.cutoffs.%s: %w", account, err)
	}
	return d, nil
}
