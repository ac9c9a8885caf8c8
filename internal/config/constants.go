package config

const (
	// DefaultDatabasePath is the default path for the local entity store
	DefaultDatabasePath = "./caresync.db"

	// EnvPrefix is prepended to every environment variable name
	EnvPrefix = "CARESYNC"

	// ConfigFileEnv names an optional yaml/toml/json config file
	ConfigFileEnv = EnvPrefix + "_CONFIG"
)
