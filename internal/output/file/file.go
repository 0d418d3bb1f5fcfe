package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/crimson-sun/faultline/internal/output"
)

// EncodeFunc serializes v to w.
type EncodeFunc func(w io.Writer, v any) error

// EncodeJSON writes v as indented JSON followed by a newline.
func EncodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Option configures a file Output.
type Option func(*Output)

// WithHistory keeps up to n previous versions of the target as path.1
// (newest) through path.n when it is overwritten. 0 (default) keeps none.
func WithHistory(n int) Option {
	return func(o *Output) { o.history = n }
}

// Output writes each artifact to a fixed path, atomically: the content is
// written to a temporary file in the target directory, synced, then
// renamed over the target. A failed write leaves the target untouched.
type Output struct {
	path    string
	history int
	encode  EncodeFunc
}

// New creates a file output that writes artifacts to path.
func New(path string, opts ...Option) *Output {
	o := &Output{path: path, encode: EncodeJSON}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Path returns the target path.
func (o *Output) Path() string { return o.path }

// Write encodes the artifact and replaces the target with it.
func (o *Output) Write(_ context.Context, a output.Artifact) error {
	err := WriteAtomic(o.path, o.history, func(w io.Writer) error {
		return o.encode(w, a.Value)
	})
	if err != nil {
		return fmt.Errorf("file output: %w", err)
	}
	return nil
}

// Close is a no-op; every Write is complete on return.
func (o *Output) Close() error {
	return nil
}

// WriteAtomic creates or replaces path with the bytes produced by write.
// If write or any file operation fails, the temporary file is removed and
// the existing target, if any, is left as it was. With history > 0 the
// previous target is rotated to path.1 first.
func WriteAtomic(path string, history int, write func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if err := write(tmp); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if history > 0 {
		if err := rotate(path, history); err != nil {
			return fmt.Errorf("rotate %s: %w", path, err)
		}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

// rotate copies the current target to path.1, shifting older versions up
// and dropping the one past keep. The target itself stays in place until
// the final rename replaces it.
func rotate(path string, keep int) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	os.Remove(fmt.Sprintf("%s.%d", path, keep))
	for i := keep - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", path, i)
		to := fmt.Sprintf("%s.%d", path, i+1)
		os.Rename(from, to) // missing generations are fine
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path+".1", data, 0644)
}
