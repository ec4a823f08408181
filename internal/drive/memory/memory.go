// Package memory is an in-process drive.Files used for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"

	"sitecost/internal/drive"
)

type entry struct {
	file    drive.File
	body    []byte
	trashed bool
}

type Files struct {
	mu      sync.Mutex
	seq     int
	order   []string
	entries map[string]*entry
	failure error

	// BeforeWrite, when set, runs before Create or Update applies its body.
	// It is called without the lock held so tests can reorder completions.
	BeforeWrite func(name string, body []byte)
}

var _ drive.Files = (*Files)(nil)

func New() *Files {
	return &Files{entries: map[string]*entry{}}
}

// ContentLink is the download link shape returned for uploaded files.
func ContentLink(id string) string {
	return "https://drive.google.com/uc?id=" + id + "&export=download"
}

// SetFailure makes every subsequent call return err; nil restores normal operation.
func (f *Files) SetFailure(err error) {
	f.mu.Lock()
	f.failure = err
	f.mu.Unlock()
}

func (f *Files) List(_ context.Context, q drive.Query) ([]drive.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failure != nil {
		return nil, f.failure
	}
	var out []drive.File
	for _, id := range f.order {
		e := f.entries[id]
		if e.trashed || e.file.Name != q.Name {
			continue
		}
		if q.Folder && e.file.MimeType != drive.FolderMimeType {
			continue
		}
		if q.Parent != "" && !hasParent(e.file, q.Parent) {
			continue
		}
		out = append(out, e.file)
	}
	return out, nil
}

func (f *Files) CreateFolder(_ context.Context, name string) (drive.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failure != nil {
		return drive.File{}, f.failure
	}
	return f.add(drive.File{Name: name, MimeType: drive.FolderMimeType}, nil), nil
}

func (f *Files) Create(_ context.Context, meta drive.File, mimeType string, content io.Reader) (drive.File, error) {
	body, err := io.ReadAll(content)
	if err != nil {
		return drive.File{}, err
	}
	if hook := f.beforeWrite(); hook != nil {
		hook(meta.Name, body)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failure != nil {
		return drive.File{}, f.failure
	}
	if meta.MimeType == "" {
		meta.MimeType = mimeType
	}
	return f.add(meta, body), nil
}

func (f *Files) Update(_ context.Context, id, mimeType string, content io.Reader) error {
	body, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	f.mu.Lock()
	e, ok := f.entries[id]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("file %s not found", id)
	}
	if hook := f.beforeWrite(); hook != nil {
		hook(e.file.Name, body)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failure != nil {
		return f.failure
	}
	e.body = body
	e.file.MimeType = mimeType
	return nil
}

func (f *Files) Download(_ context.Context, id string) (string, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failure != nil {
		return "", nil, f.failure
	}
	e, ok := f.entries[id]
	if !ok || e.trashed {
		return "", nil, fmt.Errorf("file %s not found", id)
	}
	return e.file.MimeType, append([]byte(nil), e.body...), nil
}

// Trash hides id from List, as if the user deleted it in the drive UI.
func (f *Files) Trash(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entries[id]; ok {
		e.trashed = true
	}
}

// Content returns the body of the first live file named name.
func (f *Files) Content(name string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.order {
		e := f.entries[id]
		if !e.trashed && e.file.Name == name {
			return append([]byte(nil), e.body...), true
		}
	}
	return nil, false
}

// Count returns the number of live items named name.
func (f *Files) Count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.entries {
		if !e.trashed && e.file.Name == name {
			n++
		}
	}
	return n
}

// Len returns the number of live items.
func (f *Files) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.entries {
		if !e.trashed {
			n++
		}
	}
	return n
}

func (f *Files) beforeWrite() func(string, []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.BeforeWrite
}

func (f *Files) add(meta drive.File, body []byte) drive.File {
	f.seq++
	meta.ID = fmt.Sprintf("mem-%d", f.seq)
	if meta.MimeType != drive.FolderMimeType {
		meta.WebContentLink = ContentLink(meta.ID)
	}
	f.entries[meta.ID] = &entry{file: meta, body: body}
	f.order = append(f.order, meta.ID)
	return meta
}

func hasParent(file drive.File, parent string) bool {
	for _, p := range file.Parents {
		if p == parent {
			return true
		}
	}
	return false
}
