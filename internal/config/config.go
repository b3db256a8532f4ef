package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Azure      AzureConfig
	Wizard     WizardConfig
	Thresholds ClinicalThresholds
	Logging    LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string
	Environment     string
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds the draft scratch-storage connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	DraftTTL time.Duration
}

// AzureConfig holds Azure service configuration
type AzureConfig struct {
	OpenAI  OpenAIConfig
	Speech  SpeechConfig
	Storage StorageConfig
}

// OpenAIConfig holds Azure OpenAI configuration. Optional: note extraction
// is skipped when no endpoint is configured.
type OpenAIConfig struct {
	Endpoint   string
	APIKey     string
	Deployment string
}

// SpeechConfig holds Azure Speech Service configuration
type SpeechConfig struct {
	SubscriptionKey string
	Region          string
	Language        string
}

// StorageConfig holds Azure Blob Storage configuration for dictation audio
type StorageConfig struct {
	AccountName    string
	AccountKey     string
	AudioContainer string
}

// WizardConfig holds wizard session behavior configuration
type WizardConfig struct {
	DraftSaveTimeout   time.Duration
	DictationCountdown time.Duration
	EncryptionKey      string
}

// ClinicalThresholds holds the severity boundaries applied by the validation
// engine. Defaults follow common adult clinical ranges; deployments can
// override any boundary through the environment.
type ClinicalThresholds struct {
	BloodPressure BloodPressureThresholds
	Temperature   TemperatureThresholds
	HeartRate     HeartRateThresholds
	Oxygen        OxygenThresholds
	BloodSugar    BloodSugarThresholds
}

// BloodPressureThresholds holds mmHg boundaries
type BloodPressureThresholds struct {
	CriticalSystolic  int
	CriticalDiastolic int
	WarningSystolic   int
	WarningDiastolic  int
	LowSystolic       int
	LowDiastolic      int
}

// TemperatureThresholds holds °F boundaries
type TemperatureThresholds struct {
	HighFever   float64
	Fever       float64
	Low         float64
	Hypothermia float64
}

// HeartRateThresholds holds resting bpm boundaries for adults
type HeartRateThresholds struct {
	CriticalHigh int
	RestingHigh  int
	RestingLow   int
	CriticalLow  int
}

// OxygenThresholds holds SpO2 percentage boundaries
type OxygenThresholds struct {
	SevereCritical float64
	Critical       float64
	Warning        float64
}

// BloodSugarThresholds holds mg/dL boundaries
type BloodSugarThresholds struct {
	CriticalLow  float64
	CriticalHigh float64
	TargetLow    float64
	TargetHigh   float64
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json or console
}

// Load reads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.shutdowntimeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.maxopenconns", 25)
	v.SetDefault("database.maxidleconns", 5)
	v.SetDefault("database.connmaxlifetime", 5*time.Minute)

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.draftttl", 72*time.Hour)

	// Wizard defaults
	v.SetDefault("wizard.draftsavetimeout", 10*time.Second)
	v.SetDefault("wizard.dictationcountdown", 3*time.Second)

	// Speech defaults
	v.SetDefault("azure.speech.language", "en-US")
	v.SetDefault("azure.storage.audiocontainer", "dictation-audio")

	// Clinical threshold defaults for adult ranges
	v.SetDefault("thresholds.bloodpressure.criticalsystolic", 180)
	v.SetDefault("thresholds.bloodpressure.criticaldiastolic", 120)
	v.SetDefault("thresholds.bloodpressure.warningsystolic", 140)
	v.SetDefault("thresholds.bloodpressure.warningdiastolic", 90)
	v.SetDefault("thresholds.bloodpressure.lowsystolic", 90)
	v.SetDefault("thresholds.bloodpressure.lowdiastolic", 60)

	v.SetDefault("thresholds.temperature.highfever", 103.0)
	v.SetDefault("thresholds.temperature.fever", 100.4)
	v.SetDefault("thresholds.temperature.low", 97.0)
	v.SetDefault("thresholds.temperature.hypothermia", 95.0)

	v.SetDefault("thresholds.heartrate.criticalhigh", 150)
	v.SetDefault("thresholds.heartrate.restinghigh", 100)
	v.SetDefault("thresholds.heartrate.restinglow", 60)
	v.SetDefault("thresholds.heartrate.criticallow", 40)

	v.SetDefault("thresholds.oxygen.severecritical", 85.0)
	v.SetDefault("thresholds.oxygen.critical", 90.0)
	v.SetDefault("thresholds.oxygen.warning", 95.0)

	v.SetDefault("thresholds.bloodsugar.criticallow", 70.0)
	v.SetDefault("thresholds.bloodsugar.criticalhigh", 300.0)
	v.SetDefault("thresholds.bloodsugar.targetlow", 80.0)
	v.SetDefault("thresholds.bloodsugar.targethigh", 130.0)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// bindEnvVars binds environment variables to config keys
func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.environment", "ENV", "ENVIRONMENT")

	// Database
	v.BindEnv("database.url", "DATABASE_URL")

	// Redis
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	// Wizard
	v.BindEnv("wizard.encryptionkey", "DRAFT_ENCRYPTION_KEY")

	// Azure OpenAI
	v.BindEnv("azure.openai.endpoint", "AZURE_OPENAI_ENDPOINT")
	v.BindEnv("azure.openai.apikey", "AZURE_OPENAI_API_KEY")
	v.BindEnv("azure.openai.deployment", "AZURE_OPENAI_DEPLOYMENT")

	// Azure Speech
	v.BindEnv("azure.speech.subscriptionkey", "AZURE_SPEECH_KEY")
	v.BindEnv("azure.speech.region", "AZURE_SPEECH_REGION")
	v.BindEnv("azure.speech.language", "AZURE_SPEECH_LANGUAGE")

	// Azure Storage
	v.BindEnv("azure.storage.accountname", "AZURE_STORAGE_ACCOUNT_NAME")
	v.BindEnv("azure.storage.accountkey", "AZURE_STORAGE_ACCOUNT_KEY")

	// Logging
	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("logging.format", "LOG_FORMAT")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}

	if c.Wizard.EncryptionKey != "" && len(c.Wizard.EncryptionKey) != 32 {
		return fmt.Errorf("wizard.encryptionkey must be 32 bytes for AES-256, got %d", len(c.Wizard.EncryptionKey))
	}

	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("invalid clinical thresholds: %w", err)
	}

	return nil
}

// Validate checks that configured boundaries are internally consistent
func (t ClinicalThresholds) Validate() error {
	bp := t.BloodPressure
	if bp.WarningSystolic >= bp.CriticalSystolic {
		return fmt.Errorf("bloodpressure.warningsystolic must be below criticalsystolic")
	}
	if bp.WarningDiastolic >= bp.CriticalDiastolic {
		return fmt.Errorf("bloodpressure.warningdiastolic must be below criticaldiastolic")
	}
	if bp.LowSystolic >= bp.WarningSystolic {
		return fmt.Errorf("bloodpressure.lowsystolic must be below warningsystolic")
	}

	if t.Temperature.Fever >= t.Temperature.HighFever {
		return fmt.Errorf("temperature.fever must be below highfever")
	}
	if t.Temperature.Hypothermia >= t.Temperature.Low {
		return fmt.Errorf("temperature.hypothermia must be below low")
	}

	hr := t.HeartRate
	if !(hr.CriticalLow < hr.RestingLow && hr.RestingLow < hr.RestingHigh && hr.RestingHigh < hr.CriticalHigh) {
		return fmt.Errorf("heartrate thresholds must be strictly ordered")
	}

	ox := t.Oxygen
	if !(ox.SevereCritical < ox.Critical && ox.Critical < ox.Warning) {
		return fmt.Errorf("oxygen thresholds must be strictly ordered")
	}

	bs := t.BloodSugar
	if !(bs.CriticalLow < bs.TargetLow && bs.TargetLow < bs.TargetHigh && bs.TargetHigh < bs.CriticalHigh) {
		return fmt.Errorf("bloodsugar thresholds must be strictly ordered")
	}

	return nil
}

// DefaultThresholds returns the built-in adult clinical boundaries. Used by
// tests and as a fallback when no configuration is loaded.
func DefaultThresholds() ClinicalThresholds {
	return ClinicalThresholds{
		BloodPressure: BloodPressureThresholds{
			CriticalSystolic:  180,
			CriticalDiastolic: 120,
			WarningSystolic:   140,
			WarningDiastolic:  90,
			LowSystolic:       90,
			LowDiastolic:      60,
		},
		Temperature: TemperatureThresholds{
			HighFever:   103.0,
			Fever:       100.4,
			Low:         97.0,
			Hypothermia: 95.0,
		},
		HeartRate: HeartRateThresholds{
			CriticalHigh: 150,
			RestingHigh:  100,
			RestingLow:   60,
			CriticalLow:  40,
		},
		Oxygen: OxygenThresholds{
			SevereCritical: 85.0,
			Critical:       90.0,
			Warning:        95.0,
		},
		BloodSugar: BloodSugarThresholds{
			CriticalLow:  70.0,
			CriticalHigh: 300.0,
			TargetLow:    80.0,
			TargetHigh:   130.0,
		},
	}
}
