package objectstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
)

// FileStore is a filesystem-backed domain.ObjectStore, the local fallback
// when no S3-compatible backend is configured. Object keys are the content's
// SHA-256 checksum hex string, stored as flat files named by that checksum
// under root.
type FileStore struct {
	root string
}

// NewFileStore constructs a FileStore rooted at dir, creating it if absent.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("objectstore: create root dir: %w", err)
	}
	return &FileStore{root: dir}, nil
}

var _ domain.ObjectStore = (*FileStore)(nil)

func (f *FileStore) Put(_ domain.Context, r domain.ReadSeekCloser, contentType string) (domain.RawFileRef, error) {
	defer r.Close()

	tmp, err := os.CreateTemp(f.root, "upload-*")
	if err != nil {
		return domain.RawFileRef{}, fmt.Errorf("objectstore: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(h, tmp), r); err != nil {
		return domain.RawFileRef{}, fmt.Errorf("objectstore: write upload: %w", err)
	}
	checksum := hex.EncodeToString(h.Sum(nil))

	if err := os.WriteFile(f.metaPath(checksum), []byte(contentType), 0o640); err != nil {
		return domain.RawFileRef{}, fmt.Errorf("objectstore: write content-type: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return domain.RawFileRef{}, fmt.Errorf("objectstore: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.blobPath(checksum)); err != nil {
		return domain.RawFileRef{}, fmt.Errorf("objectstore: finalize upload: %w", err)
	}
	return domain.RawFileRef{FileID: checksum, Checksum: checksum}, nil
}

func (f *FileStore) OpenRead(_ domain.Context, fileID string) (domain.ReadSeekCloser, error) {
	file, err := os.Open(f.blobPath(fileID))
	if err != nil {
		return nil, fmt.Errorf("%w: objectstore open %q: %v", domain.ErrNotFound, fileID, err)
	}
	return file, nil
}

func (f *FileStore) Stat(_ domain.Context, fileID string) (domain.ObjectStat, error) {
	info, err := os.Stat(f.blobPath(fileID))
	if err != nil {
		return domain.ObjectStat{}, fmt.Errorf("%w: objectstore stat %q: %v", domain.ErrNotFound, fileID, err)
	}
	contentType := ""
	if b, err := os.ReadFile(f.metaPath(fileID)); err == nil {
		contentType = string(b)
	}
	return domain.ObjectStat{Size: info.Size(), ContentType: contentType, Checksum: fileID}, nil
}

func (f *FileStore) blobPath(fileID string) string { return filepath.Join(f.root, fileID+".bin") }
func (f *FileStore) metaPath(fileID string) string { return filepath.Join(f.root, fileID+".type") }
