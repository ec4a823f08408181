package drive

import (
	"context"
	"errors"
	"io"

	"sitecost/internal/core"
)

// Well-known names that locate the remote document deterministically.
const (
	FolderName     = "FinanceFlow_Data"
	DataFileName   = "finance_data.json"
	FolderMimeType = "application/vnd.google-apps.folder"
	JSONMimeType   = "application/json"
)

var ErrNotAuthenticated = errors.New("drive: not authenticated")

type (
	// Remote is the sync surface the ledger service talks to.
	Remote interface {
		// Pull returns nil when the folder or file is absent or unreadable.
		Pull(ctx context.Context) (*core.Snapshot, error)
		// Push overwrites the whole remote document.
		Push(ctx context.Context, snap core.Snapshot) Outcome
		UploadBlob(ctx context.Context, blob Blob) (UploadResult, error)
		// FetchPrivateBlob returns a locally servable URI, or ok=false when
		// the blob cannot be retrieved.
		FetchPrivateBlob(ctx context.Context, ref string) (uri string, ok bool)
	}

	// Files is the subset of a drive file API the adapter needs. Implementations
	// only ever see non-trashed items.
	Files interface {
		List(ctx context.Context, q Query) ([]File, error)
		CreateFolder(ctx context.Context, name string) (File, error)
		Create(ctx context.Context, meta File, mimeType string, content io.Reader) (File, error)
		Update(ctx context.Context, id, mimeType string, content io.Reader) error
		Download(ctx context.Context, id string) (mimeType string, body []byte, err error)
	}

	// Authorizer reports whether a bearer token is active.
	Authorizer interface {
		Connected() bool
	}

	// Query matches items by exact name. Folder restricts to folders; Parent,
	// when set, restricts to direct children of that folder.
	Query struct {
		Name   string
		Folder bool
		Parent string
	}

	File struct {
		ID             string
		Name           string
		MimeType       string
		Parents        []string
		WebContentLink string
	}

	Blob struct {
		Name     string
		MimeType string
		Content  io.Reader
	}

	UploadResult struct {
		WebContentLink string `json:"webContentLink"`
		FileID         string `json:"fileId"`
	}

	// Outcome is the result of a push. Callers decide whether to surface Err.
	Outcome struct {
		Created bool
		FileID  string
		Err     error
	}
)

func (o Outcome) OK() bool { return o.Err == nil }
