package store

import "errors"

// Static error definitions (err113)
var (
	// ErrNotFound is returned by repositories when a row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidTableName is returned when an invalid table name is used
	ErrInvalidTableName = errors.New("invalid table name: must start with letter/underscore and contain only alphanumeric/underscore characters")

	// ErrInvalidConfigType is returned when the store config section has an unexpected type
	ErrInvalidConfigType = errors.New("invalid config type for store module")

	// ErrNoConnection is returned when the database manager has no default connection
	ErrNoConnection = errors.New("database manager has no default connection")

	// ErrDatabaseManagerType is returned when the database.manager service has an unexpected type
	ErrDatabaseManagerType = errors.New("database.manager service does not provide connections")
)
