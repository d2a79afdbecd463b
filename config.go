// config.go - layered configuration, via viper, per §6's config surface.
package erp

import (
	"strings"

	"github.com/spf13/viper"
)

// DatabaseConfig is the database.* configuration block.
type DatabaseConfig struct {
	URL      string
	Name     string
	Schema   string
	User     string
	Password string
	MaxConns int
	MinConns int
}

// Config is the full configuration record consumed at the system boundary.
type Config struct {
	Database   DatabaseConfig
	PluginPath string
}

// LoadConfig reads configuration from viper, with ERP_-prefixed,
// underscore-separated environment overrides (ERP_DATABASE_URL,
// ERP_PLUGIN_PATH, ...).
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ERP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database.url", "")
	v.SetDefault("database.name", "")
	v.SetDefault("database.schema", "public")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("plugin_path", "")

	cfg := &Config{
		Database: DatabaseConfig{
			URL:      v.GetString("database.url"),
			Name:     v.GetString("database.name"),
			Schema:   v.GetString("database.schema"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			MaxConns: v.GetInt("database.max_conns"),
			MinConns: v.GetInt("database.min_conns"),
		},
		PluginPath: v.GetString("plugin_path"),
	}
	return cfg, nil
}
