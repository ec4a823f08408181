package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"sitecost/internal/core"
	applog "sitecost/internal/log"
)

// Adapter locates the data folder and document by name on every call. Ids
// are never cached so a folder deleted or recreated out of band is picked
// up on the next operation.
type Adapter struct {
	files Files
	auth  Authorizer
	now   func() time.Time
}

var _ Remote = (*Adapter)(nil)

func NewAdapter(files Files, auth Authorizer) *Adapter {
	return &Adapter{files: files, auth: auth, now: time.Now}
}

func (a *Adapter) log() *slog.Logger {
	return slog.Default().With(applog.FieldComponent, applog.ComponentDrive)
}

// Pull reads the remote snapshot. It never creates anything: a missing folder
// or file, a failed download and an unparseable body all yield (nil, nil).
func (a *Adapter) Pull(ctx context.Context) (*core.Snapshot, error) {
	if !a.auth.Connected() {
		return nil, ErrNotAuthenticated
	}
	folderID, ok, err := a.find(ctx, Query{Name: FolderName, Folder: true})
	if err != nil {
		a.log().WarnContext(ctx, "Drive folder lookup failed", "error", err)
		return nil, nil
	}
	if !ok {
		return nil, nil
	}
	fileID, ok, err := a.find(ctx, Query{Name: DataFileName, Parent: folderID})
	if err != nil {
		a.log().WarnContext(ctx, "Drive data file lookup failed", "folder_id", folderID, "error", err)
		return nil, nil
	}
	if !ok {
		return nil, nil
	}
	_, body, err := a.files.Download(ctx, fileID)
	if err != nil {
		a.log().WarnContext(ctx, "Drive data file download failed", "file_id", fileID, "error", err)
		return nil, nil
	}
	var snap core.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		a.log().WarnContext(ctx, "Drive data file is not a valid snapshot", "file_id", fileID, "error", err)
		return nil, nil
	}
	return &snap, nil
}

// Push writes snap as the whole remote document, creating the folder and file
// on first use. Concurrent pushes are not ordered: the last write to land wins.
func (a *Adapter) Push(ctx context.Context, snap core.Snapshot) Outcome {
	if !a.auth.Connected() {
		return Outcome{Err: ErrNotAuthenticated}
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return Outcome{Err: fmt.Errorf("encode snapshot: %w", err)}
	}
	folderID, err := a.ensureFolder(ctx)
	if err != nil {
		return Outcome{Err: err}
	}
	fileID, ok, err := a.find(ctx, Query{Name: DataFileName, Parent: folderID})
	if err != nil {
		return Outcome{Err: fmt.Errorf("find data file: %w", err)}
	}
	if ok {
		if err := a.files.Update(ctx, fileID, JSONMimeType, bytes.NewReader(body)); err != nil {
			return Outcome{FileID: fileID, Err: fmt.Errorf("update data file: %w", err)}
		}
		return Outcome{FileID: fileID}
	}
	f, err := a.files.Create(ctx, File{Name: DataFileName, MimeType: JSONMimeType, Parents: []string{folderID}}, JSONMimeType, bytes.NewReader(body))
	if err != nil {
		return Outcome{Err: fmt.Errorf("create data file: %w", err)}
	}
	return Outcome{Created: true, FileID: f.ID}
}

// UploadBlob stores a receipt image in the data folder under a timestamped name.
func (a *Adapter) UploadBlob(ctx context.Context, blob Blob) (UploadResult, error) {
	if !a.auth.Connected() {
		return UploadResult{}, ErrNotAuthenticated
	}
	if blob.Content == nil {
		return UploadResult{}, fmt.Errorf("upload %q: empty content", blob.Name)
	}
	folderID, err := a.ensureFolder(ctx)
	if err != nil {
		return UploadResult{}, err
	}
	mime := blob.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}
	f, err := a.files.Create(ctx, File{
		Name:     ReceiptName(a.now(), blob.Name),
		MimeType: mime,
		Parents:  []string{folderID},
	}, mime, blob.Content)
	if err != nil {
		return UploadResult{}, fmt.Errorf("upload %q: %w", blob.Name, err)
	}
	return UploadResult{WebContentLink: f.WebContentLink, FileID: f.ID}, nil
}

// FetchPrivateBlob resolves a stored receipt reference to a data URI. Local
// blob: and data: references are returned as is.
func (a *Adapter) FetchPrivateBlob(ctx context.Context, ref string) (string, bool) {
	if IsDirectURI(ref) {
		return ref, true
	}
	if !a.auth.Connected() {
		return "", false
	}
	id := ExtractFileID(ref)
	if id == "" {
		return "", false
	}
	mime, body, err := a.files.Download(ctx, id)
	if err != nil {
		a.log().WarnContext(ctx, "Receipt download failed", "file_id", id, "error", err)
		return "", false
	}
	return DataURI(mime, body), true
}

func (a *Adapter) ensureFolder(ctx context.Context) (string, error) {
	id, ok, err := a.find(ctx, Query{Name: FolderName, Folder: true})
	if err != nil {
		return "", fmt.Errorf("find folder: %w", err)
	}
	if ok {
		return id, nil
	}
	f, err := a.files.CreateFolder(ctx, FolderName)
	if err != nil {
		return "", fmt.Errorf("create folder: %w", err)
	}
	a.log().InfoContext(ctx, "Created drive data folder", "folder_id", f.ID)
	return f.ID, nil
}

// find returns the first match; duplicates created out of band are ignored.
func (a *Adapter) find(ctx context.Context, q Query) (string, bool, error) {
	list, err := a.files.List(ctx, q)
	if err != nil {
		return "", false, err
	}
	if len(list) == 0 {
		return "", false, nil
	}
	return list[0].ID, true, nil
}
