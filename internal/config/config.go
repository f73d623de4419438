package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultTenantID is the tenant the config seeder targets when none is set
const DefaultTenantID = "mcs"

// DefaultCredentialsFile is the service account key the scripts look for in
// the working directory
const DefaultCredentialsFile = "./serviceAccountKey.json"

// Config holds everything the admin tools read from the environment
type Config struct {
	ProjectID       string `yaml:"project_id"`
	DatabaseID      string `yaml:"database_id"`
	CredentialsFile string `yaml:"credentials_file"`
	TenantID        string `yaml:"tenant_id"`

	Inspect struct {
		UserID string `yaml:"user_id"`
		Email  string `yaml:"email"`
	} `yaml:"inspect"`

	Migrate struct {
		TargetUserID string `yaml:"target_user_id"`
		Email        string `yaml:"email"`
		Mode         string `yaml:"mode"`
		DryRun       bool   `yaml:"dry_run"`
	} `yaml:"migrate"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load builds the config from the optional YAML file named by FSADMIN_CONFIG,
// then applies environment overrides and defaults.
func Load() (*Config, error) {
	c := &Config{}
	if path := strings.TrimSpace(os.Getenv("FSADMIN_CONFIG")); path != "" {
		if err := c.loadFile(path); err != nil {
			return nil, err
		}
	}
	c.applyEnv()
	c.applyDefaults()
	return c, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setStr(&c.ProjectID, "GCP_PROJECT_ID")
	setStr(&c.DatabaseID, "FIRESTORE_DATABASE_ID")
	setStr(&c.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	setStr(&c.TenantID, "SEED_TENANT_ID")
	setStr(&c.Inspect.UserID, "INSPECT_USER_ID")
	setStr(&c.Inspect.Email, "INSPECT_EMAIL")
	setStr(&c.Migrate.TargetUserID, "MIGRATE_TARGET_USER_ID")
	setStr(&c.Migrate.Email, "MIGRATE_EMAIL")
	setStr(&c.Migrate.Mode, "MIGRATE_MODE")
	setBool(&c.Migrate.DryRun, "MIGRATE_DRY_RUN")
	setStr(&c.Log.Level, "LOG_LEVEL")
	setStr(&c.Log.Format, "LOG_FORMAT")
}

func (c *Config) applyDefaults() {
	if c.DatabaseID == "" {
		c.DatabaseID = "(default)"
	}
	if c.CredentialsFile == "" {
		if _, err := os.Stat(DefaultCredentialsFile); err == nil {
			c.CredentialsFile = DefaultCredentialsFile
		}
	}
	if c.TenantID == "" {
		c.TenantID = DefaultTenantID
	}
	if c.Migrate.Mode == "" {
		c.Migrate.Mode = "transactional"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// RequireProject checks what every tool needs to reach Firestore
func (c *Config) RequireProject() error {
	if c.ProjectID == "" {
		return fmt.Errorf("GCP_PROJECT_ID environment variable is required")
	}
	return nil
}

// RequireInspect checks the inputs of the access inspector
func (c *Config) RequireInspect() error {
	if err := c.RequireProject(); err != nil {
		return err
	}
	if c.Inspect.UserID == "" || c.Inspect.Email == "" {
		return fmt.Errorf("INSPECT_USER_ID and INSPECT_EMAIL must be set")
	}
	return nil
}

// RequireMigrate checks the inputs of the identity migrator
func (c *Config) RequireMigrate() error {
	if err := c.RequireProject(); err != nil {
		return err
	}
	if c.Migrate.TargetUserID == "" || c.Migrate.Email == "" {
		return fmt.Errorf("MIGRATE_TARGET_USER_ID and MIGRATE_EMAIL must be set")
	}
	return nil
}

func setStr(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "t", "true", "y", "yes":
		*dst = true
	case "0", "f", "false", "n", "no":
		*dst = false
	}
}
