// Package config loads tipsync's configuration.
//
// Sources, lowest precedence first: built-in defaults, a YAML file, .env
// files, then TIPSYNC_* environment variables. The result is built once at
// start-up and handed to every component; nothing reads configuration
// after that.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/roach88/tipsync/internal/amount"
	"github.com/roach88/tipsync/internal/chain"
	"github.com/roach88/tipsync/internal/tip"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TIPSYNC_"

// Config is the complete runtime configuration.
type Config struct {
	Bot     string `yaml:"bot"`
	Network string `yaml:"network"`
	DBPath  string `yaml:"db_path"`

	GracePeriod  time.Duration `yaml:"grace_period"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Backoff      time.Duration `yaml:"backoff"`
	PollLimit    int           `yaml:"poll_limit"`
	BatchSize    int           `yaml:"batch_size"`

	// MarkReadDigested marks digested items read in the inbox.
	MarkReadDigested bool `yaml:"mark_read_digested"`

	Autopay AutopayConfig `yaml:"autopay"`

	DefaultAmount     DefaultAmount            `yaml:"default_amount"`
	RecipientDefaults map[string]DefaultAmount `yaml:"recipient_defaults"`

	// UseLinkedAmount swaps in DefaultLinkedAmount for recipients that
	// already linked an address.
	UseLinkedAmount     bool          `yaml:"use_linked_amount"`
	DefaultLinkedAmount DefaultAmount `yaml:"default_linked_amount"`

	// Units are added in front of the built-in unit table, so a name
	// listed here shadows the built-in unit of the same name.
	Units []UnitConfig `yaml:"units"`

	// Rates are fixed exchange rates: units of currency per BCH.
	Rates map[string]string `yaml:"rates"`

	LogLevel string `yaml:"log_level"`
}

// AutopayConfig holds the eligibility policy.
type AutopayConfig struct {
	Enabled         bool            `yaml:"enabled"`
	MinWait         time.Duration   `yaml:"min_wait"`
	DisallowDefault bool            `yaml:"disallow_default"`
	UseLimit        bool            `yaml:"use_limit"`
	Limit           string          `yaml:"limit"`
	Overrides       map[string]bool `yaml:"overrides"`
}

// DefaultAmount is the amount used when a tip names none.
type DefaultAmount struct {
	Amount   string `yaml:"amount"`
	Currency string `yaml:"currency"`
}

// UnitConfig is one unit table entry. ValueLinked is optional.
type UnitConfig struct {
	Names       []string `yaml:"names"`
	Value       string   `yaml:"value"`
	ValueLinked string   `yaml:"value_linked"`
	Currency    string   `yaml:"currency"`
}

// Error reports an invalid setting.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Field + ": " + e.Message
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Bot:              "chaintip",
		Network:          "mainnet",
		DBPath:           "tipsync.db",
		GracePeriod:      2 * time.Second,
		PollInterval:     time.Second,
		Backoff:          30 * time.Second,
		PollLimit:        100,
		BatchSize:        10,
		MarkReadDigested: true,
		Autopay: AutopayConfig{
			Enabled:  false,
			MinWait:  3 * time.Second,
			UseLimit: true,
			Limit:    "0.0001",
		},
		DefaultAmount:       DefaultAmount{Amount: "0.1", Currency: "USD"},
		DefaultLinkedAmount: DefaultAmount{Amount: "0.01", Currency: "USD"},
		LogLevel:            "info",
	}
}

// Load builds the configuration. path names an optional YAML file and
// envFiles optional .env files; missing .env files are skipped. Variables
// already set in the process environment win over .env values.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	dotenv := make(map[string]string)
	for _, f := range envFiles {
		vars, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		for k, v := range vars {
			if _, seen := dotenv[k]; !seen {
				dotenv[k] = v
			}
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &Error{Field: EnvPrefix + name, Message: "not a boolean: " + v}
		}
		*dst = b
		return nil
	}
	duration := func(name string, dst *time.Duration) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return &Error{Field: EnvPrefix + name, Message: "not a duration: " + v}
		}
		*dst = d
		return nil
	}

	str("BOT", &c.Bot)
	str("NETWORK", &c.Network)
	str("DB", &c.DBPath)
	str("AUTOPAY_LIMIT", &c.Autopay.Limit)
	str("DEFAULT_AMOUNT", &c.DefaultAmount.Amount)
	str("DEFAULT_CURRENCY", &c.DefaultAmount.Currency)
	str("DEFAULT_LINKED_AMOUNT", &c.DefaultLinkedAmount.Amount)
	str("DEFAULT_LINKED_CURRENCY", &c.DefaultLinkedAmount.Currency)
	str("LOG_LEVEL", &c.LogLevel)

	for _, f := range []func() error{
		func() error { return boolean("AUTOPAY", &c.Autopay.Enabled) },
		func() error { return boolean("AUTOPAY_USE_LIMIT", &c.Autopay.UseLimit) },
		func() error { return boolean("DISALLOW_DEFAULT", &c.Autopay.DisallowDefault) },
		func() error { return boolean("MARK_READ", &c.MarkReadDigested) },
		func() error { return boolean("USE_LINKED_AMOUNT", &c.UseLinkedAmount) },
		func() error { return duration("GRACE", &c.GracePeriod) },
		func() error { return duration("AUTOPAY_WAIT", &c.Autopay.MinWait) },
		func() error { return duration("POLL_INTERVAL", &c.PollInterval) },
	} {
		if err := f(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks every setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Bot) == "" {
		return &Error{Field: "bot", Message: "required"}
	}
	if _, err := c.Params(); err != nil {
		return err
	}
	if c.GracePeriod < 0 {
		return &Error{Field: "grace_period", Message: "must not be negative"}
	}
	if c.Autopay.MinWait <= 0 {
		return &Error{Field: "autopay.min_wait", Message: "must be positive"}
	}
	if c.PollLimit <= 0 {
		return &Error{Field: "poll_limit", Message: "must be positive"}
	}
	if c.BatchSize <= 0 {
		return &Error{Field: "batch_size", Message: "must be positive"}
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if _, err := c.limit(); err != nil {
		return err
	}
	if _, err := parseDefault("default_amount", c.DefaultAmount); err != nil {
		return err
	}
	if c.UseLinkedAmount {
		if _, err := parseDefault("default_linked_amount", c.DefaultLinkedAmount); err != nil {
			return err
		}
	}
	for name, d := range c.RecipientDefaults {
		if _, err := parseDefault("recipient_defaults."+name, d); err != nil {
			return err
		}
	}
	if _, err := c.AmountTable(); err != nil {
		return err
	}
	if _, err := c.RateSource(); err != nil {
		return err
	}
	return nil
}

// Params returns the address parameters of the configured network.
func (c *Config) Params() (chain.Params, error) {
	switch strings.ToLower(c.Network) {
	case "", "mainnet":
		return chain.DefaultParams(), nil
	case "testnet":
		p := chain.DefaultParams()
		p.CashPrefix = "bchtest"
		p.Net = &chaincfg.TestNet3Params
		return p, nil
	case "regtest":
		p := chain.DefaultParams()
		p.CashPrefix = "bchreg"
		p.Net = &chaincfg.RegressionNetParams
		return p, nil
	default:
		return chain.Params{}, &Error{Field: "network", Message: "unknown network " + strconv.Quote(c.Network)}
	}
}

// Policy builds the autopay eligibility policy.
func (c *Config) Policy(params chain.Params) (tip.Policy, error) {
	limit, err := c.limit()
	if err != nil {
		return tip.Policy{}, err
	}
	overrides := make(map[string]bool, len(c.Autopay.Overrides))
	for user, on := range c.Autopay.Overrides {
		overrides[strings.ToLower(user)] = on
	}
	return tip.Policy{
		AutopayEnabled:   c.Autopay.Enabled,
		AutopayOverrides: overrides,
		DisallowDefault:  c.Autopay.DisallowDefault,
		UseLimit:         c.Autopay.UseLimit,
		Limit:            limit,
		ValidAddress:     params.Valid,
	}, nil
}

func (c *Config) limit() (decimal.Decimal, error) {
	if !c.Autopay.UseLimit && c.Autopay.Limit == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(c.Autopay.Limit))
	if err != nil || d.IsNegative() {
		return decimal.Zero, &Error{Field: "autopay.limit", Message: "not a non-negative decimal: " + c.Autopay.Limit}
	}
	return d, nil
}

// Defaults returns the default amount lookup. A recipient's own entry wins;
// otherwise linked recipients get the linked default when it is enabled,
// and everyone else the global default.
func (c *Config) Defaults() func(username string, linked bool) amount.Default {
	global, _ := parseDefault("default_amount", c.DefaultAmount)
	linkedDefault := global
	if c.UseLinkedAmount {
		linkedDefault, _ = parseDefault("default_linked_amount", c.DefaultLinkedAmount)
	}
	perUser := make(map[string]amount.Default, len(c.RecipientDefaults))
	for name, d := range c.RecipientDefaults {
		if parsed, err := parseDefault(name, d); err == nil {
			perUser[strings.ToLower(name)] = parsed
		}
	}
	return func(username string, linked bool) amount.Default {
		if d, ok := perUser[strings.ToLower(username)]; ok {
			return d
		}
		if linked {
			return linkedDefault
		}
		return global
	}
}

func parseDefault(field string, d DefaultAmount) (amount.Default, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(d.Amount))
	if err != nil || !v.IsPositive() {
		return amount.Default{}, &Error{Field: field + ".amount", Message: "not a positive decimal: " + d.Amount}
	}
	if strings.TrimSpace(d.Currency) == "" {
		return amount.Default{}, &Error{Field: field + ".currency", Message: "required"}
	}
	return amount.Default{Amount: v, Currency: strings.ToUpper(d.Currency)}, nil
}

// AmountTable returns the unit table: configured units first, then the
// built-in ones.
func (c *Config) AmountTable() (amount.Table, error) {
	table := amount.DefaultTable()
	if len(c.Units) == 0 {
		return table, nil
	}

	units := make([]amount.Unit, 0, len(c.Units)+len(table.Units))
	for i, u := range c.Units {
		field := fmt.Sprintf("units[%d]", i)
		if len(u.Names) == 0 {
			return amount.Table{}, &Error{Field: field + ".names", Message: "required"}
		}
		v, err := decimal.NewFromString(strings.TrimSpace(u.Value))
		if err != nil || !v.IsPositive() {
			return amount.Table{}, &Error{Field: field + ".value", Message: "not a positive decimal: " + u.Value}
		}
		var linked decimal.Decimal
		if strings.TrimSpace(u.ValueLinked) != "" {
			linked, err = decimal.NewFromString(strings.TrimSpace(u.ValueLinked))
			if err != nil || !linked.IsPositive() {
				return amount.Table{}, &Error{Field: field + ".value_linked", Message: "not a positive decimal: " + u.ValueLinked}
			}
		}
		currency := strings.ToUpper(u.Currency)
		if currency == "" {
			currency = amount.BaseCurrency
		}
		units = append(units, amount.Unit{Names: u.Names, Value: v, ValueLinked: linked, Currency: currency})
	}
	table.Units = append(units, table.Units...)
	return table, nil
}

// RateSource returns the configured fixed rates.
func (c *Config) RateSource() (amount.FixedRates, error) {
	rates, err := amount.ParseRates(c.Rates)
	if err != nil {
		return nil, &Error{Field: "rates", Message: err.Error()}
	}
	return rates, nil
}

// Level returns the configured log level.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, &Error{Field: "log_level", Message: "unknown level " + strconv.Quote(c.LogLevel)}
	}
	return l, nil
}
