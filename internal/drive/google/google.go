// Package google implements drive.Files on top of the Drive v3 API.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"sitecost/internal/drive"

	"golang.org/x/oauth2"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
)

const (
	listFields   = "files(id, name, mimeType, parents, webContentLink)"
	createFields = "id, name, mimeType, parents, webContentLink, webViewLink"
)

type Files struct {
	svc *gdrive.Service
}

var _ drive.Files = (*Files)(nil)

// New builds a Drive client that authorizes every request with a token from
// ts. The API key only gates configuration; sending it as well would make the
// client library drop the bearer credential.
func New(ctx context.Context, ts oauth2.TokenSource, opts ...goption.ClientOption) (*Files, error) {
	if ts == nil {
		return nil, errors.New("drive token source not configured")
	}
	base := context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	client := oauth2.NewClient(base, ts)
	svc, err := gdrive.NewService(ctx, append([]goption.ClientOption{goption.WithHTTPClient(client)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	slog.InfoContext(ctx, "Google Drive service created", "scope", gdrive.DriveFileScope)
	return &Files{svc: svc}, nil
}

// newHTTPClientWithPooling keeps connections to the Drive API warm across
// sync cycles.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// BuildQuery renders q in the Drive search syntax. Trashed items never match.
func BuildQuery(q drive.Query) string {
	parts := []string{fmt.Sprintf("name = '%s'", escape(q.Name))}
	if q.Folder {
		parts = append(parts, fmt.Sprintf("mimeType = '%s'", drive.FolderMimeType))
	}
	if q.Parent != "" {
		parts = append(parts, fmt.Sprintf("'%s' in parents", escape(q.Parent)))
	}
	parts = append(parts, "trashed = false")
	return strings.Join(parts, " and ")
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func (f *Files) List(ctx context.Context, q drive.Query) ([]drive.File, error) {
	res, err := f.svc.Files.List().
		Q(BuildQuery(q)).
		Spaces("drive").
		Fields(listFields).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", q.Name, err)
	}
	out := make([]drive.File, 0, len(res.Files))
	for _, file := range res.Files {
		out = append(out, fromAPI(file))
	}
	return out, nil
}

func (f *Files) CreateFolder(ctx context.Context, name string) (drive.File, error) {
	file, err := f.svc.Files.Create(&gdrive.File{Name: name, MimeType: drive.FolderMimeType}).
		Fields("id, name, mimeType").
		Context(ctx).
		Do()
	if err != nil {
		return drive.File{}, fmt.Errorf("create folder %q: %w", name, err)
	}
	return fromAPI(file), nil
}

// Create uploads metadata and content in a single multipart request.
func (f *Files) Create(ctx context.Context, meta drive.File, mimeType string, content io.Reader) (drive.File, error) {
	file, err := f.svc.Files.Create(&gdrive.File{
		Name:     meta.Name,
		MimeType: meta.MimeType,
		Parents:  meta.Parents,
	}).
		Media(content, googleapi.ContentType(mimeType)).
		Fields(createFields).
		Context(ctx).
		Do()
	if err != nil {
		return drive.File{}, fmt.Errorf("create %q: %w", meta.Name, err)
	}
	return fromAPI(file), nil
}

// Update replaces the content of id, leaving its metadata untouched.
func (f *Files) Update(ctx context.Context, id, mimeType string, content io.Reader) error {
	_, err := f.svc.Files.Update(id, &gdrive.File{}).
		Media(content, googleapi.ContentType(mimeType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	return nil
}

func (f *Files) Download(ctx context.Context, id string) (string, []byte, error) {
	resp, err := f.svc.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return "", nil, fmt.Errorf("download %s: %w", id, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w", id, err)
	}
	return resp.Header.Get("Content-Type"), body, nil
}

func fromAPI(f *gdrive.File) drive.File {
	if f == nil {
		return drive.File{}
	}
	return drive.File{
		ID:             f.Id,
		Name:           f.Name,
		MimeType:       f.MimeType,
		Parents:        f.Parents,
		WebContentLink: f.WebContentLink,
	}
}
