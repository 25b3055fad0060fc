package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/google/renameio"
	"github.com/juju/errors"
)

// fileBackend keeps the snapshot in a single JSON file. Writes go through a
// temp file in the same directory and are renamed into place.
type fileBackend struct {
	path string
	now  func() time.Time
}

func newFileBackend(path string) *fileBackend {
	return &fileBackend{path: path, now: time.Now}
}

func (b *fileBackend) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return nil, errors.NotFoundf("snapshot file %s", b.path)
	}
	if err != nil {
		return nil, errors.Annotatef(err, "reading %s", b.path)
	}
	return data, nil
}

func (b *fileBackend) Save(ctx context.Context, data []byte) error {
	if err := renameio.WriteFile(b.path, data, 0o600); err != nil {
		return errors.Annotatef(err, "writing %s", b.path)
	}
	return nil
}

func (b *fileBackend) Quarantine(ctx context.Context) error {
	target := b.quarantinePath()
	if err := os.Rename(b.path, target); err != nil {
		return errors.Annotatef(err, "moving %s aside", b.path)
	}
	return nil
}

func (b *fileBackend) quarantinePath() string {
	return b.path + ".corrupt-" + strconv.FormatInt(b.now().Unix(), 10)
}

func (b *fileBackend) Close() error {
	return nil
}
