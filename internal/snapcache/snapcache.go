// Package snapcache stores snapshots of committed schemas on disk, keyed by
// everything that determines the compiler's output for them.
//
// Entries are zstd-compressed snapshot documents named by a BLAKE3 digest of
// the key parts. A revision's content never changes, so entries never expire.
package snapcache

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"lukechampine.com/blake3"

	"github.com/openbindings/capnpcompat"
)

const ext = ".yaml.zst"

// Cache is a directory of snapshot entries. The zero value is disabled.
type Cache struct {
	Dir string
}

// Enabled reports whether the cache has a directory.
func (c *Cache) Enabled() bool { return c != nil && c.Dir != "" }

// Key hashes the parts that identify one compiled schema.
func Key(parts ...string) string {
	h := blake3.New(32, nil)
	for _, p := range parts {
		// Length-prefix each part so that ("ab","c") and ("a","bc") differ.
		fmt.Fprintf(h, "%d:%s\n", len(p), p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.Dir, key+ext)
}

// Get returns the snapshot stored under key. A missing entry returns false and no error.
func (c *Cache) Get(key string) (*capnpcompat.Snapshot, bool, error) {
	if !c.Enabled() {
		return nil, false, nil
	}
	f, err := os.Open(c.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	decoder, err := zstd.NewReader(f)
	if err != nil {
		return nil, false, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer decoder.Close()

	s, err := capnpcompat.DecodeDocument(decoder)
	if err != nil {
		return nil, false, fmt.Errorf("cache entry %s: %w", key, err)
	}
	return s, true, nil
}

// Put stores s under key, replacing any existing entry.
func (c *Cache) Put(key string, s *capnpcompat.Snapshot) error {
	if !c.Enabled() {
		return nil
	}
	var doc bytes.Buffer
	if err := capnpcompat.EncodeDocument(&doc, s); err != nil {
		return err
	}

	var compressed bytes.Buffer
	encoder, err := zstd.NewWriter(&compressed)
	if err != nil {
		return fmt.Errorf("creating zstd encoder: %w", err)
	}
	if _, err := io.Copy(encoder, &doc); err != nil {
		encoder.Close()
		return fmt.Errorf("compressing: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("closing encoder: %w", err)
	}

	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(c.Dir, "entry-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(compressed.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), c.path(key))
}
