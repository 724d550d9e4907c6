// Package ingest downloads chat attachments, validates them and stages them
// against the sender's in-flight record draft. Staged files only become part
// of a stored record when the owning flow persists and drains them.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/medconn/medconnect/internal/fsstore"
	"github.com/medconn/medconnect/internal/telegram"
)

// URLPrefix is the externally visible path under which stored files are
// served by the dashboard.
const URLPrefix = "/uploads/medical_files/"

// DefaultMaxBytes caps a single attachment at 16MB.
const DefaultMaxBytes int64 = 16 * 1024 * 1024

var defaultExtensions = []string{"pdf", "jpg", "jpeg", "png", "gif", "doc", "docx", "txt"}

// Rejected reports why an attachment was refused. It is a user-facing
// condition, not a transport failure.
type Rejected struct {
	Reason string
}

func (r *Rejected) Error() string { return r.Reason }

// FileFetcher is the part of the chat transport the pipeline needs.
type FileFetcher interface {
	GetFile(ctx context.Context, fileID string) (*telegram.File, error)
	DownloadFileTo(ctx context.Context, filePath string, dstPath string, maxBytes int64) (int64, bool, error)
}

// Attachment is a validated, locally stored file waiting to be associated
// with a record.
type Attachment struct {
	Filename     string
	OriginalName string
	FileURL      string
	MediaKind    string
}

type Options struct {
	Fetcher    FileFetcher
	Dir        string
	MaxBytes   int64
	Extensions []string
	Logger     *slog.Logger

	// NewName generates a stored filename for the given extension.
	// Defaults to a uuid hex string; injectable for tests.
	NewName func(ext string) string
}

type Pipeline struct {
	fetcher  FileFetcher
	dir      string
	maxBytes int64
	allowed  map[string]struct{}
	logger   *slog.Logger
	newName  func(ext string) string

	// staged is keyed by internal user id and mutated only by the single
	// update-processing loop.
	staged map[string][]Attachment
}

func New(opts Options) (*Pipeline, error) {
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, fmt.Errorf("dir is required")
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = defaultExtensions
	}
	allowed := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		allowed[strings.ToLower(strings.TrimPrefix(e, "."))] = struct{}{}
	}
	newName := opts.NewName
	if newName == nil {
		newName = func(ext string) string {
			return strings.ReplaceAll(uuid.NewString(), "-", "") + "." + ext
		}
	}
	if err := fsstore.EnsureDir(opts.Dir, 0); err != nil {
		return nil, err
	}
	return &Pipeline{
		fetcher:  opts.Fetcher,
		dir:      opts.Dir,
		maxBytes: opts.MaxBytes,
		allowed:  allowed,
		logger:   opts.Logger,
		newName:  newName,
		staged:   make(map[string][]Attachment),
	}, nil
}

// Ingest validates, downloads and stages one attachment for userID.
// Validation failures return *Rejected; anything else is a transport or
// filesystem error.
func (p *Pipeline) Ingest(ctx context.Context, userID, fileID, originalName string, declaredSize int64, mediaKind string) (Attachment, error) {
	if declaredSize > p.maxBytes {
		return Attachment{}, &Rejected{Reason: fmt.Sprintf("el archivo supera el máximo de %dMB", p.maxBytes/(1024*1024))}
	}
	ext, ok := p.extensionOf(originalName)
	if !ok {
		return Attachment{}, &Rejected{Reason: "tipo de archivo no permitido. Usa: PDF, JPG, PNG, GIF, DOC, DOCX, TXT"}
	}

	file, err := p.fetcher.GetFile(ctx, fileID)
	if err != nil {
		return Attachment{}, err
	}
	if file.FileSize > p.maxBytes {
		return Attachment{}, &Rejected{Reason: fmt.Sprintf("el archivo supera el máximo de %dMB", p.maxBytes/(1024*1024))}
	}

	storedName := p.newName(ext)
	dstPath := filepath.Join(p.dir, storedName)
	n, truncated, err := p.fetcher.DownloadFileTo(ctx, file.FilePath, dstPath, p.maxBytes)
	if err != nil {
		return Attachment{}, err
	}
	if truncated {
		os.Remove(dstPath)
		return Attachment{}, &Rejected{Reason: fmt.Sprintf("el archivo supera el máximo de %dMB", p.maxBytes/(1024*1024))}
	}

	att := Attachment{
		Filename:     storedName,
		OriginalName: originalName,
		FileURL:      URLPrefix + storedName,
		MediaKind:    mediaKind,
	}
	p.staged[userID] = append(p.staged[userID], att)
	p.logger.Info("ingest_file_staged",
		"user_id", userID,
		"filename", storedName,
		"original_name", originalName,
		"bytes", n,
		"staged_total", len(p.staged[userID]))
	return att, nil
}

// Staged returns the attachments currently staged for userID, in ingestion
// order.
func (p *Pipeline) Staged(userID string) []Attachment {
	return p.staged[userID]
}

// Drain removes and returns the staged attachments for userID. Called by the
// dialogue flow when persisting the draft.
func (p *Pipeline) Drain(userID string) []Attachment {
	atts := p.staged[userID]
	delete(p.staged, userID)
	return atts
}

// Discard drops staged attachments without associating them; the stored
// files are removed.
func (p *Pipeline) Discard(userID string) {
	for _, att := range p.staged[userID] {
		os.Remove(filepath.Join(p.dir, att.Filename))
	}
	delete(p.staged, userID)
}

// LocalPath maps a stored attachment URL back to the file on disk. The URL
// is reduced to its basename so a crafted value cannot escape the directory.
func (p *Pipeline) LocalPath(fileURL string) (string, error) {
	name := filepath.Base(strings.TrimSpace(fileURL))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid file url %q", fileURL)
	}
	path := filepath.Join(p.dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("attachment %s: %w", name, err)
	}
	return path, nil
}

func (p *Pipeline) extensionOf(name string) (string, bool) {
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return "", false
	}
	ext := strings.ToLower(name[idx+1:])
	_, ok := p.allowed[ext]
	return ext, ok
}
