package backend

import (
	"context"
	"fmt"
	"log/slog"

	"sitecost/internal/drive"
	gdrive "sitecost/internal/drive/google"
	drivemem "sitecost/internal/drive/memory"
	settingsmem "sitecost/internal/settings/memory"
	"sitecost/internal/storage"

	"golang.org/x/oauth2"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return &BackendResult{Store: repo, Cleanup: repo.Close}, nil

	case PostgresBackend:
		repo, err := storage.NewPostgresRepository(ctx, config.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
		}
		f.logger.Info("Initialized Postgres backend")
		return &BackendResult{Store: repo, Cleanup: repo.Close}, nil

	case MemoryBackend:
		f.logger.Info("Initialized memory backend; settings and tokens are lost on restart")
		return &BackendResult{Store: settingsmem.New()}, nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) CreateDrive(ctx context.Context, driveType DriveType, ts oauth2.TokenSource) (drive.Files, error) {
	switch driveType {
	case GoogleDrive, "":
		files, err := gdrive.New(ctx, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Drive client: %w", err)
		}
		return files, nil
	case MemoryDrive:
		f.logger.Info("Using in-memory drive; remote data is lost on restart")
		return drivemem.New(), nil
	default:
		return nil, fmt.Errorf("unsupported drive type: %s", driveType)
	}
}
