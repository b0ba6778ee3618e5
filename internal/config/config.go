package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"brewboard/internal/domain"
)

// Config models brewboard.yml.
type Config struct {
	Board struct {
		Name string `yaml:"name"`
	} `yaml:"board"`
	Categories struct {
		Catalog map[string]struct {
			Description string `yaml:"description"`
		} `yaml:"catalog"`
	} `yaml:"categories"`
	Limits struct {
		UsernameMaxLen int    `yaml:"username_max_len"`
		MaxReward      uint64 `yaml:"max_reward"` // 0 means no cap
	} `yaml:"limits"`
	Bootstrap struct {
		Admins []string `yaml:"admins"`
	} `yaml:"bootstrap"`
	Auth struct {
		JWTSecret              string `yaml:"jwt_secret"`
		TokenTTLSeconds        int    `yaml:"token_ttl_seconds"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header"`
	} `yaml:"auth"`
	Mail     MailConfig      `yaml:"mail"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type MailConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	From        string `yaml:"from"`
	To          string `yaml:"to"`
	PollSeconds int    `yaml:"poll_seconds"`
}

// Enabled reports whether the contact-form notifier should run.
func (m MailConfig) Enabled() bool {
	return m.Host != "" && m.From != "" && m.To != ""
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run bb init or create it by hand", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Limits.UsernameMaxLen <= 0 {
		return fmt.Errorf("config.limits.username_max_len must be positive")
	}
	if len(c.Categories.Catalog) == 0 {
		return fmt.Errorf("config.categories.catalog is required")
	}
	for _, cat := range []domain.Category{domain.CategoryTea, domain.CategoryCoffee, domain.CategorySnacks, domain.CategoryMeals} {
		if _, ok := c.Categories.Catalog[string(cat)]; !ok {
			return fmt.Errorf("config.categories.catalog missing %s", cat)
		}
	}
	for id := range c.Categories.Catalog {
		if !validCategory(id) {
			return fmt.Errorf("config.categories.catalog contains unknown category %s", id)
		}
	}
	for _, actorID := range c.Bootstrap.Admins {
		if actorID == "" {
			return fmt.Errorf("config.bootstrap.admins contains empty actor id")
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	if c.Mail.Enabled() && c.Mail.Port <= 0 {
		return fmt.Errorf("config.mail.port must be positive when mail is configured")
	}
	return nil
}

func validCategory(id string) bool {
	switch domain.Category(id) {
	case domain.CategoryTea, domain.CategoryCoffee, domain.CategorySnacks, domain.CategoryMeals:
		return true
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "brewboard.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `board:
  name: BrewBoard

categories:
  catalog:
    tea:
      description: "Kettle duty: brew and serve tea"
    coffee:
      description: "Coffee runs and machine upkeep"
    snacks:
      description: "Restock the snack shelf"
    meals:
      description: "Organize shared meals and orders"

limits:
  username_max_len: 32
  max_reward: 0

bootstrap:
  admins: []

auth:
  jwt_secret: ""
  token_ttl_seconds: 3600
  allow_legacy_actor_header: true

mail:
  host: ""
  port: 465
  username: ""
  password: ""
  from: ""
  to: ""
  poll_seconds: 5

webhooks: []
`
