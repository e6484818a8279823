// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"ai-transform-service/internal/domain/model"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port          int           `yaml:"port" validate:"gt=0,lt=65536"`
	APIKey        string        `yaml:"api_key"`
	PublicBaseURL string        `yaml:"public_base_url"`
	SubmitTimeout time.Duration `yaml:"submit_timeout"`
	SubmitLimit   int           `yaml:"submit_limit"`  // per session per window
	SubmitWindow  time.Duration `yaml:"submit_window"` // rate-limit window
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AIConfig struct {
	Provider        string `yaml:"provider"`       // gemini | openai | noop
	ImageProvider   string `yaml:"image_provider"` // optional per-kind override
	TextProvider    string `yaml:"text_provider"`  // optional per-kind override
	GeminiKey       string `yaml:"gemini_key"`
	GeminiURL       string `yaml:"gemini_url"`
	GeminiImage     string `yaml:"gemini_image_model"`
	GeminiText      string `yaml:"gemini_text_model"`
	OpenAIKey       string `yaml:"openai_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"` // OpenAI-compatible gateways
	OpenAIImage     string `yaml:"openai_image_model"`
	OpenAIText      string `yaml:"openai_text_model"`
	ConcurrentLimit int    `yaml:"concurrent_limit"` // max concurrent provider calls
	VisionInspect   bool   `yaml:"vision_inspect"`   // use the provider to inspect generated images
}

type StepConfig struct {
	ID                string `yaml:"id" validate:"required"`
	Ordinal           int    `yaml:"ordinal" validate:"gt=0"`
	Kind              string `yaml:"kind" validate:"oneof=image text"`
	Template          string `yaml:"template" validate:"required"`
	Horizon           string `yaml:"horizon"`
	MaxQualityRetries int    `yaml:"max_quality_retries" validate:"gte=0"`
	CostUnits         int64  `yaml:"cost_units" validate:"gte=0"`
}

type GenerationConfig struct {
	Lease         time.Duration `yaml:"lease"`
	StepTimeout   time.Duration `yaml:"step_timeout"`
	MaxNoteTokens int           `yaml:"max_note_tokens"`
	Steps         []StepConfig  `yaml:"steps" validate:"required,min=1,dive"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" validate:"gte=1"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	Multiplier  float64       `yaml:"multiplier" validate:"gte=1"`
	Jitter      float64       `yaml:"jitter" validate:"gte=0,lte=1"`
}

type QualityConfig struct {
	MinFaceConfidence float64 `yaml:"min_face_confidence" validate:"gte=0,lte=1"`
	MaxArtifactScore  float64 `yaml:"max_artifact_score" validate:"gte=0,lte=1"`
	// InspectionCostUnits is charged per inspected image when ai.vision_inspect is on.
	InspectionCostUnits int64 `yaml:"inspection_cost_units" validate:"gte=0"`
}

type BudgetWindowConfig struct {
	Name     string        `yaml:"name" validate:"required"`
	Duration time.Duration `yaml:"duration" validate:"gt=0"`
	CapUnits int64         `yaml:"cap_units" validate:"gte=0"`
}

type BudgetConfig struct {
	Backend string               `yaml:"backend" validate:"oneof=postgres redis memory"`
	Ledger  string               `yaml:"ledger"` // shared ledger name; instances with the same name share caps
	Windows []BudgetWindowConfig `yaml:"windows" validate:"required,min=1,dive"`
}

type KillSwitchConfig struct {
	Source         string        `yaml:"source" validate:"oneof=redis static"`
	Key            string        `yaml:"key"`
	TTL            time.Duration `yaml:"ttl"`
	DefaultEnabled bool          `yaml:"default_enabled"`
	Enabled        bool          `yaml:"enabled"` // static source only
}

type BlobConfig struct {
	Root       string        `yaml:"root"`
	SigningKey string        `yaml:"signing_key"`
	URLTTL     time.Duration `yaml:"url_ttl"`
}

type WorkerConfig struct {
	Workers int `yaml:"workers"`
}

type RecoveryConfig struct {
	Interval time.Duration `yaml:"interval"`
	Batch    int           `yaml:"batch"`
}

type AlertsConfig struct {
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	AI         AIConfig         `yaml:"ai"`
	Generation GenerationConfig `yaml:"generation"`
	Retry      RetryConfig      `yaml:"retry"`
	Quality    QualityConfig    `yaml:"quality"`
	Budget     BudgetConfig     `yaml:"budget"`
	KillSwitch KillSwitchConfig `yaml:"kill_switch"`
	Blob       BlobConfig       `yaml:"blob"`
	Worker     WorkerConfig     `yaml:"worker"`
	Recovery   RecoveryConfig   `yaml:"recovery"`
	Alerts     AlertsConfig     `yaml:"alerts"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, overlays secrets from the
// environment (and a .env file when present), applies defaults and validates.
func LoadConfig(path string, dev bool) (*Config, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse builds a validated Config from raw YAML.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	overlay := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	overlay(&c.Database.URL, "DATABASE_URL")
	overlay(&c.Redis.URL, "REDIS_URL")
	overlay(&c.Redis.Password, "REDIS_PASSWORD")
	overlay(&c.AI.GeminiKey, "GEMINI_API_KEY")
	overlay(&c.AI.OpenAIKey, "OPENAI_API_KEY")
	overlay(&c.HTTP.APIKey, "API_KEY")
	overlay(&c.Blob.SigningKey, "BLOB_SIGNING_KEY")
	overlay(&c.Alerts.TelegramToken, "TELEGRAM_TOKEN")
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.SubmitTimeout <= 0 {
		c.HTTP.SubmitTimeout = 5 * time.Minute
	}
	if c.HTTP.SubmitLimit <= 0 {
		c.HTTP.SubmitLimit = 10
	}
	if c.HTTP.SubmitWindow <= 0 {
		c.HTTP.SubmitWindow = time.Minute
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	if c.AI.Provider == "" {
		c.AI.Provider = "gemini"
	}
	if c.AI.ConcurrentLimit <= 0 {
		c.AI.ConcurrentLimit = 16
	}
	if c.AI.GeminiImage == "" {
		c.AI.GeminiImage = "gemini-2.5-flash-image"
	}
	if c.AI.GeminiText == "" {
		c.AI.GeminiText = "gemini-2.5-flash"
	}
	if c.AI.OpenAIImage == "" {
		c.AI.OpenAIImage = "gpt-image-1"
	}
	if c.AI.OpenAIText == "" {
		c.AI.OpenAIText = "gpt-4o-mini"
	}
	if c.Generation.Lease <= 0 {
		c.Generation.Lease = 2 * time.Minute
	}
	if c.Generation.StepTimeout <= 0 {
		c.Generation.StepTimeout = c.Generation.Lease * 3 / 4
	}
	if c.Generation.MaxNoteTokens <= 0 {
		c.Generation.MaxNoteTokens = 200
	}
	if len(c.Generation.Steps) == 0 {
		c.Generation.Steps = DefaultSteps()
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = 500 * time.Millisecond
	}
	if c.Retry.Multiplier < 1 {
		c.Retry.Multiplier = 2
	}
	if c.Quality.MinFaceConfidence == 0 {
		c.Quality.MinFaceConfidence = 0.6
	}
	if c.Quality.MaxArtifactScore == 0 {
		c.Quality.MaxArtifactScore = 0.35
	}
	if c.AI.VisionInspect && c.Quality.InspectionCostUnits == 0 {
		c.Quality.InspectionCostUnits = 1
	}
	if c.Budget.Backend == "" {
		c.Budget.Backend = "postgres"
	}
	if c.Budget.Ledger == "" {
		c.Budget.Ledger = "global"
	}
	if len(c.Budget.Windows) == 0 {
		c.Budget.Windows = []BudgetWindowConfig{
			{Name: "hourly", Duration: time.Hour, CapUnits: 500},
			{Name: "daily", Duration: 24 * time.Hour, CapUnits: 5000},
		}
	}
	if c.KillSwitch.Source == "" {
		c.KillSwitch.Source = "redis"
	}
	if c.KillSwitch.Key == "" {
		c.KillSwitch.Key = "generation:enabled"
	}
	if c.KillSwitch.TTL <= 0 {
		c.KillSwitch.TTL = 15 * time.Second
	}
	if c.Blob.Root == "" {
		c.Blob.Root = "./data/blobs"
	}
	if c.Blob.URLTTL <= 0 {
		c.Blob.URLTTL = 15 * time.Minute
	}
	if c.Worker.Workers <= 0 {
		c.Worker.Workers = 4
	}
	if c.Recovery.Interval <= 0 {
		c.Recovery.Interval = time.Minute
	}
	if c.Recovery.Batch <= 0 {
		c.Recovery.Batch = 20
	}
}

// Validate checks struct constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Budget.Backend == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("invalid config: database.url is required for the postgres budget backend")
	}
	if (c.Budget.Backend == "redis" || c.KillSwitch.Source == "redis") && c.Redis.URL == "" {
		return fmt.Errorf("invalid config: redis.url is required for redis-backed budget or kill switch")
	}
	if c.Generation.StepTimeout >= c.Generation.Lease {
		return fmt.Errorf("invalid config: generation.step_timeout (%s) must be shorter than generation.lease (%s)", c.Generation.StepTimeout, c.Generation.Lease)
	}
	seen := make(map[string]struct{}, len(c.Generation.Steps))
	for _, s := range c.Generation.Steps {
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("invalid config: duplicate step id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

// DefaultSteps is the three-milestone pipeline followed by the analysis.
func DefaultSteps() []StepConfig {
	return []StepConfig{
		{ID: "milestone_1", Ordinal: 1, Kind: "image", Template: "milestone", Horizon: "4 weeks", MaxQualityRetries: 2, CostUnits: 5},
		{ID: "milestone_2", Ordinal: 2, Kind: "image", Template: "milestone", Horizon: "12 weeks", MaxQualityRetries: 2, CostUnits: 5},
		{ID: "milestone_3", Ordinal: 3, Kind: "image", Template: "milestone", Horizon: "6 months", MaxQualityRetries: 2, CostUnits: 5},
		{ID: "analysis", Ordinal: 4, Kind: "text", Template: "analysis", MaxQualityRetries: 0, CostUnits: 1},
	}
}

// PipelineSteps converts the configured steps into domain steps.
func (c *Config) PipelineSteps() []model.Step {
	out := make([]model.Step, 0, len(c.Generation.Steps))
	for _, s := range c.Generation.Steps {
		out = append(out, model.Step{
			ID:                s.ID,
			Ordinal:           s.Ordinal,
			Kind:              model.StepKind(s.Kind),
			PromptTemplateRef: s.Template,
			Horizon:           s.Horizon,
			MaxQualityRetries: s.MaxQualityRetries,
			CostUnits:         s.CostUnits,
		})
	}
	return out
}

// BudgetSpecs converts the configured budget windows.
func (c *Config) BudgetSpecs() []model.BudgetWindowSpec {
	out := make([]model.BudgetWindowSpec, 0, len(c.Budget.Windows))
	for _, w := range c.Budget.Windows {
		out = append(out, model.BudgetWindowSpec{Name: w.Name, Duration: w.Duration, CapUnits: w.CapUnits})
	}
	return out
}
