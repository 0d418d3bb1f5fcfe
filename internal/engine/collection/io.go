package collection

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/crimson-sun/faultline/internal/model"
	"github.com/crimson-sun/faultline/internal/output/file"
)

// DefaultName returns the default collection file name for a build at t.
func DefaultName(t time.Time) string {
	return "failure_signature_collection_" + t.UTC().Format("20060102T150405Z") + ".json"
}

// Stem returns the collection file name without directory or extension.
func Stem(path string) string {
	base := filepath.Base(strings.TrimRight(path, string(filepath.Separator)))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Save writes c to path as a JSON array, atomically.
func Save(path string, c *model.Collection) error {
	return file.WriteAtomic(path, 0, func(w io.Writer) error {
		return file.EncodeJSON(w, c)
	})
}

// SaveSplit writes one <case_id>.json file per signature into dir. Case
// ids are path-escaped, so distinct ids never share a file.
func SaveSplit(dir string, c *model.Collection) error {
	written := make(map[string]string, c.Len())
	for _, sig := range c.Signatures() {
		base := safeName(sig.CaseID) + ".json"
		if prev, ok := written[base]; ok {
			return fmt.Errorf("split collection: case ids %q and %q map to the same file %s", prev, sig.CaseID, base)
		}
		written[base] = sig.CaseID
		name := filepath.Join(dir, base)
		if err := file.WriteAtomic(name, 0, func(w io.Writer) error {
			return file.EncodeJSON(w, sig)
		}); err != nil {
			return err
		}
	}
	return nil
}

// LoadReport describes what Load read.
type LoadReport struct {
	Files     int
	Malformed []error // *model.SerializationError per skipped file
}

// Load reads a collection from a JSON array file, or from a directory of
// per-signature *.json files. In directory mode a malformed file is
// skipped and reported; a malformed collection file is an error.
func Load(path string) (*model.Collection, LoadReport, error) {
	var rep LoadReport
	info, err := os.Stat(path)
	if err != nil {
		return nil, rep, fmt.Errorf("load collection: %w", err)
	}
	if !info.IsDir() {
		rep.Files = 1
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, rep, fmt.Errorf("load collection: %w", err)
		}
		var c model.Collection
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, rep, &model.SerializationError{Path: path, Err: err}
		}
		for i := 1; i < c.Len(); i++ {
			if id := c.At(i).CaseID; id == c.At(i-1).CaseID {
				return nil, rep, &model.SerializationError{Path: path, Err: fmt.Errorf("duplicate case_id %q", id)}
			}
		}
		return &c, rep, nil
	}

	names, err := filepath.Glob(filepath.Join(path, "*.json"))
	if err != nil {
		return nil, rep, fmt.Errorf("load collection: %w", err)
	}
	sort.Strings(names)

	var sigs []model.FailureSignature
	seen := make(map[string]string)
	for _, name := range names {
		rep.Files++
		sig, err := loadSignature(name)
		if err == nil {
			if first, ok := seen[sig.CaseID]; ok {
				err = &model.SerializationError{Path: name, Err: fmt.Errorf("duplicate case_id %q, first read from %s", sig.CaseID, first)}
			} else {
				seen[sig.CaseID] = name
			}
		}
		if err != nil {
			var se *model.SerializationError
			if !errors.As(err, &se) {
				return nil, rep, err
			}
			slog.Warn("skipping malformed signature file", "path", name, "error", err)
			rep.Malformed = append(rep.Malformed, err)
			continue
		}
		sigs = append(sigs, sig)
	}
	return model.NewCollection(sigs), rep, nil
}

func loadSignature(path string) (model.FailureSignature, error) {
	var sig model.FailureSignature
	data, err := os.ReadFile(path)
	if err != nil {
		return sig, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &sig); err != nil {
		return sig, &model.SerializationError{Path: path, Err: err}
	}
	if sig.CaseID == "" {
		return sig, &model.SerializationError{Path: path, Err: errors.New("missing case_id")}
	}
	return sig, nil
}

// safeName path-escapes a case id into a single file name. The escaping
// is reversible, so it is injective.
func safeName(caseID string) string {
	name := url.PathEscape(caseID)
	return strings.ReplaceAll(name, "..", "%2E%2E")
}
