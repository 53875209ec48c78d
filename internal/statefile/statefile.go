// Package statefile implements the only shared medium between workers
// (spec §4.1): atomic-replace JSON snapshots and append-only JSONL streams.
// Writers never hand a partial file to a reader; readers never block on a
// writer and tolerate missing or corrupt files by returning a documented
// zero value.
package statefile

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// WriteSnapshot atomically replaces path with the JSON encoding of v: it
// writes to a sibling temp file, fsyncs it, then renames over the target.
// A flock on path.lock serializes concurrent writers to the same file.
func WriteSnapshot(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("statefile: mkdir: %w", err)
	}
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("statefile: lock: %w", err)
	}
	defer lock.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("statefile: create temp: %w", err)
	}
	tmpName := tmp.Name()
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("statefile: encode: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("statefile: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("statefile: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("statefile: rename: %w", err)
	}
	return nil
}

// ReadSnapshot decodes path into v. If the file is missing or the JSON is
// corrupt/partial, it leaves v untouched and returns ok=false with a nil
// error — callers apply their own documented default in that case, per the
// "readers tolerate missing/corrupt files" contract. Real I/O errors other
// than not-exist are returned.
func ReadSnapshot(path string, v any) (ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("statefile: read: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, nil
	}
	return true, nil
}

// AppendJSONL appends one JSON-encoded line (with trailing newline) to path,
// creating parent directories and the file as needed. A flock guards the
// append against concurrent writers; appends to a local filesystem are
// effectively atomic for lines this small, but the lock removes any doubt
// when multiple goroutines in this process share a stream file.
func AppendJSONL(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("statefile: mkdir: %w", err)
	}
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("statefile: lock: %w", err)
	}
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("statefile: open: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("statefile: marshal: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("statefile: write: %w", err)
	}
	return nil
}

// ReadJSONL reads every line of path, calling fn with each decoded object.
// A partial final line (no trailing newline, e.g. a write caught mid-append)
// is skipped rather than surfaced as an error. Missing files yield zero
// lines and no error.
func ReadJSONL[T any](path string, fn func(T) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("statefile: open: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			// Partial or corrupt line: tolerate and continue, per contract.
			continue
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// ReadAllJSONL is a convenience wrapper collecting every decoded line.
func ReadAllJSONL[T any](path string) ([]T, error) {
	var out []T
	err := ReadJSONL[T](path, func(v T) error {
		out = append(out, v)
		return nil
	})
	return out, err
}

// Truncate empties path (used by the inbox after draining) without deleting
// it, so the next writer can append immediately.
func Truncate(path string) error {
	f, err := os.OpenFile(path, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("statefile: truncate: %w", err)
	}
	return f.Close()
}
