package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/medconn/medconnect/internal/telegram"
)

type fakeFetcher struct {
	files    map[string]*telegram.File
	contents map[string][]byte
	getErr   error
}

func (f *fakeFetcher) GetFile(_ context.Context, fileID string) (*telegram.File, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	file, ok := f.files[fileID]
	if !ok {
		return nil, fmt.Errorf("unknown file id %q", fileID)
	}
	return file, nil
}

func (f *fakeFetcher) DownloadFileTo(_ context.Context, filePath, dstPath string, maxBytes int64) (int64, bool, error) {
	content := f.contents[filePath]
	truncated := int64(len(content)) > maxBytes
	if truncated {
		content = content[:maxBytes]
	}
	if err := os.WriteFile(dstPath, content, 0o600); err != nil {
		return 0, false, err
	}
	return int64(len(content)), truncated, nil
}

func newTestPipeline(t *testing.T, fetcher *fakeFetcher) *Pipeline {
	t.Helper()
	seq := 0
	p, err := New(Options{
		Fetcher: fetcher,
		Dir:     t.TempDir(),
		NewName: func(ext string) string {
			seq++
			return fmt.Sprintf("f%d.%s", seq, ext)
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func TestIngestStagesInOrder(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		files: map[string]*telegram.File{
			"id1": {FileID: "id1", FilePath: "remote/a.pdf", FileSize: 3},
			"id2": {FileID: "id2", FilePath: "remote/b.jpg", FileSize: 3},
		},
		contents: map[string][]byte{
			"remote/a.pdf": []byte("aaa"),
			"remote/b.jpg": []byte("bbb"),
		},
	}
	p := newTestPipeline(t, fetcher)
	ctx := context.Background()

	first, err := p.Ingest(ctx, "web-1", "id1", "informe.pdf", 3, "document")
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if first.FileURL != "/uploads/medical_files/f1.pdf" {
		t.Fatalf("FileURL = %q, want %q", first.FileURL, "/uploads/medical_files/f1.pdf")
	}

	if _, err := p.Ingest(ctx, "web-1", "id2", "radiografia.jpg", 3, "photo"); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	staged := p.Staged("web-1")
	if len(staged) != 2 {
		t.Fatalf("Staged() len = %d, want 2", len(staged))
	}
	if staged[0].OriginalName != "informe.pdf" || staged[1].OriginalName != "radiografia.jpg" {
		t.Fatalf("staged order = %q, %q", staged[0].OriginalName, staged[1].OriginalName)
	}

	drained := p.Drain("web-1")
	if len(drained) != 2 {
		t.Fatalf("Drain() len = %d, want 2", len(drained))
	}
	if got := p.Staged("web-1"); len(got) != 0 {
		t.Fatalf("Staged() after drain len = %d, want 0", len(got))
	}
}

func TestIngestRejectsDisallowedExtension(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, &fakeFetcher{})

	_, err := p.Ingest(context.Background(), "web-1", "id1", "malware.exe", 10, "document")
	var rej *Rejected
	if !errors.As(err, &rej) {
		t.Fatalf("Ingest() error = %v, want *Rejected", err)
	}
}

func TestIngestRejectsDeclaredSizeOverCap(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, &fakeFetcher{})

	_, err := p.Ingest(context.Background(), "web-1", "id1", "grande.pdf", DefaultMaxBytes+1, "document")
	var rej *Rejected
	if !errors.As(err, &rej) {
		t.Fatalf("Ingest() error = %v, want *Rejected", err)
	}
}

func TestIngestRejectsTruncatedDownload(t *testing.T) {
	t.Parallel()

	big := make([]byte, 64)
	fetcher := &fakeFetcher{
		files:    map[string]*telegram.File{"id1": {FileID: "id1", FilePath: "remote/a.pdf"}},
		contents: map[string][]byte{"remote/a.pdf": big},
	}
	p, err := New(Options{
		Fetcher:  fetcher,
		Dir:      t.TempDir(),
		MaxBytes: 16,
		NewName:  func(ext string) string { return "f." + ext },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = p.Ingest(context.Background(), "web-1", "id1", "grande.pdf", 0, "document")
	var rej *Rejected
	if !errors.As(err, &rej) {
		t.Fatalf("Ingest() error = %v, want *Rejected", err)
	}
	if len(p.Staged("web-1")) != 0 {
		t.Fatalf("truncated download must not stage")
	}
}

func TestDiscardRemovesFiles(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		files:    map[string]*telegram.File{"id1": {FileID: "id1", FilePath: "remote/a.pdf", FileSize: 3}},
		contents: map[string][]byte{"remote/a.pdf": []byte("aaa")},
	}
	p := newTestPipeline(t, fetcher)

	att, err := p.Ingest(context.Background(), "web-1", "id1", "informe.pdf", 3, "document")
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	path, err := p.LocalPath(att.FileURL)
	if err != nil {
		t.Fatalf("LocalPath() error = %v", err)
	}

	p.Discard("web-1")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("discarded file still present: %v", err)
	}
}

func TestLocalPathRejectsTraversal(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, &fakeFetcher{})

	secret := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(secret, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := p.LocalPath("/uploads/medical_files/../../" + secret); err == nil {
		t.Fatal("LocalPath() accepted traversal url")
	}
}
