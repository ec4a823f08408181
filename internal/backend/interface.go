package backend

import (
	"context"

	"sitecost/internal/drive"
	"sitecost/internal/settings"

	"golang.org/x/oauth2"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the settings store and an optional cleanup function
type BackendResult struct {
	Store   settings.Store
	Cleanup CleanupFunc
}

// Factory creates the storage and drive backends selected in configuration.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
	// CreateDrive returns the file API the sync adapter runs on. ts supplies
	// the bearer token for every request.
	CreateDrive(ctx context.Context, driveType DriveType, ts oauth2.TokenSource) (drive.Files, error)
}

type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Postgres specific
	PostgresURL string

	Drive DriveType
}

// BackendType selects where settings and the persisted token live.
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MemoryBackend   BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, PostgresBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// DriveType selects the remote file API.
type DriveType string

const (
	GoogleDrive DriveType = "google"
	MemoryDrive DriveType = "memory"
)

func (dt DriveType) IsValid() bool {
	return dt == GoogleDrive || dt == MemoryDrive
}
