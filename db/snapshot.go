package db

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	dbfs "github.com/edgeiot/devicedb/pkg/fs"
)

// snapshotVersion is the only version this package writes or accepts.
const snapshotVersion uint16 = 1

// Resource bounds from spec.md §5.
const (
	maxKeyBytes  = 1024
	maxItemBytes = 256 * 1024
)

// snapshotSuffix is the temp file name spec.md §4.6/§6 mandates: a fixed,
// recognizable name, so that "never present between runs" is a checkable
// filesystem invariant. That's why the snapshot writer below talks to
// [dbfs.FS] directly and rolls its own temp-write-fsync-rename sequence
// instead of using a general-purpose atomic writer with a random temp name.
const snapshotSuffix = ".save"

// encodeSnapshot writes every item in idx, in key order, using the format
// spec.md §6 defines: u16 version then repeated
// (key_len:i64, key_bytes, value_len:i64, value_bytes).
func encodeSnapshot(idx *primaryIndex) ([]byte, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, snapshotVersion); err != nil {
		return nil, err
	}

	var writeErr error
	idx.scan(0, func(it *item) bool {
		if writeErr = writeSnapshotRecord(&buf, it.key, it.raw); writeErr != nil {
			return false
		}

		return true
	})

	if writeErr != nil {
		return nil, writeErr
	}

	return buf.Bytes(), nil
}

func writeSnapshotRecord(w io.Writer, key string, value []byte) error {
	if err := binary.Write(w, binary.LittleEndian, int64(len(key))); err != nil {
		return err
	}

	if _, err := w.Write([]byte(key)); err != nil {
		return err
	}

	if err := binary.Write(w, binary.LittleEndian, int64(len(value))); err != nil {
		return err
	}

	_, err := w.Write(value)

	return err
}

// decodeSnapshot reads a snapshot image into idx, which must be empty.
func decodeSnapshot(data []byte, idx *primaryIndex) error {
	r := bytes.NewReader(data)

	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		if err == io.EOF {
			// Empty/missing snapshot is not an error; nothing to load.
			return nil
		}

		return wrap(KindBadFormat, fmt.Errorf("read snapshot version: %w", err))
	}

	if version != snapshotVersion {
		return wrap(KindBadFormat, fmt.Errorf("unsupported snapshot version %d", version))
	}

	for {
		key, value, err := readSnapshotRecord(r)
		if err == io.EOF {
			return nil
		}

		if err != nil {
			return wrap(KindBadFormat, fmt.Errorf("read snapshot record: %w", err))
		}

		idx.insert(&item{key: key, raw: value})
	}
}

func readSnapshotRecord(r *bytes.Reader) (string, []byte, error) {
	var keyLen int64
	if err := binary.Read(r, binary.LittleEndian, &keyLen); err != nil {
		return "", nil, err
	}

	if keyLen < 0 || keyLen > maxKeyBytes || int64(r.Len()) < keyLen {
		return "", nil, fmt.Errorf("implausible key length %d", keyLen)
	}

	keyBytes := make([]byte, keyLen)
	if _, err := io.ReadFull(r, keyBytes); err != nil {
		return "", nil, err
	}

	var valueLen int64
	if err := binary.Read(r, binary.LittleEndian, &valueLen); err != nil {
		return "", nil, err
	}

	if valueLen < 0 || valueLen > maxItemBytes || int64(r.Len()) < valueLen {
		return "", nil, fmt.Errorf("implausible value length %d", valueLen)
	}

	valueBytes := make([]byte, valueLen)
	if _, err := io.ReadFull(r, valueBytes); err != nil {
		return "", nil, err
	}

	return string(keyBytes), valueBytes, nil
}

// writeSnapshotFile writes idx to snapshotPath via the path.save-then-rename
// protocol spec.md §4.6 mandates: write path.save, fsync it, rename over
// path, fsync the parent directory. A crash before the rename leaves path
// untouched; a crash after it but before journal truncation is harmless
// because the next open replays an already-applied (and therefore
// no-op-on-reapply by key) journal.
func writeSnapshotFile(fsys dbfs.FS, snapshotPath string, idx *primaryIndex) error {
	data, err := encodeSnapshot(idx)
	if err != nil {
		return wrap(KindMemory, err)
	}

	tmpPath := snapshotPath + snapshotSuffix

	f, err := fsys.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return wrap(KindCantWrite, fmt.Errorf("create %q: %w", tmpPath, err))
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return wrap(KindCantWrite, fmt.Errorf("write %q: %w", tmpPath, err))
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		return wrap(KindCantWrite, fmt.Errorf("sync %q: %w", tmpPath, err))
	}

	if err := f.Close(); err != nil {
		return wrap(KindCantWrite, fmt.Errorf("close %q: %w", tmpPath, err))
	}

	if err := fsys.Rename(tmpPath, snapshotPath); err != nil {
		return wrap(KindCantWrite, fmt.Errorf("rename %q to %q: %w", tmpPath, snapshotPath, err))
	}

	dir, err := fsys.Open(filepath.Dir(snapshotPath))
	if err != nil {
		return nil // best-effort directory fsync; rename already landed
	}
	defer dir.Close()

	_ = dir.Sync()

	return nil
}
