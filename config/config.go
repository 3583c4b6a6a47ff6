package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/execsim/sim"
)

// Config is a complete replay: cost model, accounts with their decision
// scripts, the tick dataset and where fills are journaled.
type Config struct {
	Execution ExecutionConfig `json:"execution" yaml:"execution"`
	Accounts  []AccountConfig `json:"accounts" yaml:"accounts"`
	Data      DataConfig      `json:"data" yaml:"data"`
	Journal   JournalConfig   `json:"journal" yaml:"journal"`
	Log       LogConfig       `json:"log" yaml:"log"`
	Run       RunConfig       `json:"run" yaml:"run"`
}

type ExecutionConfig struct {
	SlippagePercent float64 `json:"slippage_percent" yaml:"slippage_percent"`
	FeeRate         float64 `json:"fee_rate" yaml:"fee_rate"`
	// IDSeed seeds trade id generation; equal seeds give equal ids.
	IDSeed int64 `json:"id_seed" yaml:"id_seed"`
}

func (e ExecutionConfig) Sim() sim.Config {
	return sim.Config{SlippagePercent: e.SlippagePercent, FeeRate: e.FeeRate}
}

type AccountConfig struct {
	ID             string  `json:"id" yaml:"id"`
	InitialBalance float64 `json:"initial_balance" yaml:"initial_balance"`
	Decisions      string  `json:"decisions" yaml:"decisions"` // YAML decision script
}

type DataConfig struct {
	Ticks string `json:"ticks" yaml:"ticks"` // CSV: time,symbol,price
	From  string `json:"from,omitempty" yaml:"from,omitempty"`
	To    string `json:"to,omitempty" yaml:"to,omitempty"`
}

// Range parses From and To. Empty bounds are zero times.
func (d DataConfig) Range() (from, to time.Time, err error) {
	if d.From != "" {
		if from, err = time.Parse(time.RFC3339, d.From); err != nil {
			return from, to, fmt.Errorf("data.from: %w", err)
		}
	}
	if d.To != "" {
		if to, err = time.Parse(time.RFC3339, d.To); err != nil {
			return from, to, fmt.Errorf("data.to: %w", err)
		}
	}
	return from, to, nil
}

type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "csv", "sqlite" or "none"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // "json" or "console"
}

type RunConfig struct {
	CloseAtEnd bool   `json:"close_at_end" yaml:"close_at_end"`
	OrgReport  string `json:"org_report,omitempty" yaml:"org_report,omitempty"`
}

// LoadFromFile loads configuration from a file (YAML, falling back to JSON)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile saves configuration to a file (YAML for .yaml/.yml, JSON otherwise)
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.Execution.Sim().Validate(); err != nil {
		return fmt.Errorf("execution: %w", err)
	}

	if len(c.Accounts) == 0 {
		return fmt.Errorf("accounts: at least one account is required")
	}
	seen := map[string]bool{}
	for i, a := range c.Accounts {
		if a.ID == "" {
			return fmt.Errorf("accounts[%d].id is required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("accounts[%d].id %q is duplicated", i, a.ID)
		}
		seen[a.ID] = true
		if a.InitialBalance <= 0 {
			return fmt.Errorf("accounts[%d].initial_balance must be positive", i)
		}
		if a.Decisions == "" {
			return fmt.Errorf("accounts[%d].decisions is required", i)
		}
	}

	if c.Data.Ticks == "" {
		return fmt.Errorf("data.ticks is required")
	}
	from, to, err := c.Data.Range()
	if err != nil {
		return err
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return fmt.Errorf("data.from must be before data.to")
	}

	switch c.Journal.Type {
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	case "none":
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'none'")
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "json", "console":
	default:
		return fmt.Errorf("log.format must be 'json' or 'console'")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Execution: ExecutionConfig{
			SlippagePercent: 0.05,
			FeeRate:         0.0004,
			IDSeed:          1,
		},
		Accounts: []AccountConfig{
			{ID: "SIM-001", InitialBalance: 10000, Decisions: "./decisions.yaml"},
		},
		Data: DataConfig{
			Ticks: "./ticks.csv",
		},
		Journal: JournalConfig{
			Type:   "sqlite",
			DBPath: "./execsim.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Run: RunConfig{
			CloseAtEnd: true,
		},
	}
}
