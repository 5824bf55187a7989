package store

// Config holds the store module configuration.
type Config struct {
	// MigrationsTable is the name of the table that tracks applied migrations
	MigrationsTable string `json:"migrations_table" yaml:"migrations_table" env:"MIGRATIONS_TABLE" default:"schema_migrations" desc:"Migration tracking table"`

	// AutoMigrate applies pending migrations during module Init
	AutoMigrate bool `json:"auto_migrate" yaml:"auto_migrate" env:"AUTO_MIGRATE" default:"true" desc:"Apply pending migrations on startup"`
}
