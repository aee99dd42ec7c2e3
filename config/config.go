package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4700"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// Enrichment-Provider (News-Suche)
	GDELTBaseURL       string `envconfig:"GDELT_BASE_URL" default:"https://api.gdeltproject.org/api/v2/doc/doc"`
	NewsdataBaseURL    string `envconfig:"NEWSDATA_BASE_URL" default:"https://newsdata.io/api/1/latest"`
	NewsdataAPIKey     string `envconfig:"NEWSDATA_API_KEY"`
	EnabledProviders   string `envconfig:"ENABLED_PROVIDERS" default:"gdelt,newsdata"`
	ProviderTimeoutSec int    `envconfig:"PROVIDER_TIMEOUT_SEC" default:"30"`
	MaxSourcesPerCase  int    `envconfig:"MAX_SOURCES_PER_CASE" default:"12"`

	// Generativer Text-Service
	GenTextBaseURL    string `envconfig:"GENTEXT_BASE_URL" default:"https://api.anthropic.com"`
	GenTextAPIKey     string `envconfig:"GENTEXT_API_KEY"`
	GenTextModel      string `envconfig:"GENTEXT_MODEL" default:"claude-3-5-sonnet-20241022"`
	GenTextTimeoutSec int    `envconfig:"GENTEXT_TIMEOUT_SEC" default:"90"`

	// Nächtliche Auffrischung der Quellen für unveröffentlichte Cases
	CronSchedule string `envconfig:"CRON_SCHEDULE" default:"0 3 * * *"`

	// S3-Snapshots veröffentlichter Cases
	SnapshotS3Key     string `envconfig:"SNAPSHOT_S3_KEY"`
	SnapshotS3Secret  string `envconfig:"SNAPSHOT_S3_SECRET"`
	SnapshotS3URL     string `envconfig:"SNAPSHOT_S3_URL"`
	SnapshotS3Region  string `envconfig:"SNAPSHOT_S3_REGION"`
	SnapshotS3Bucket  string `envconfig:"SNAPSHOT_S3_BUCKET"`
	SnapshotsDisabled bool   `envconfig:"SNAPSHOTS_DISABLED" default:"false"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// SnapshotsConfigured meldet, ob alle S3-Parameter für Snapshots gesetzt sind.
func (c *Config) SnapshotsConfigured() bool {
	return !c.SnapshotsDisabled &&
		c.SnapshotS3Key != "" && c.SnapshotS3Secret != "" &&
		c.SnapshotS3URL != "" && c.SnapshotS3Region != "" && c.SnapshotS3Bucket != ""
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
