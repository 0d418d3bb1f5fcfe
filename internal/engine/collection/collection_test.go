package collection

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/crimson-sun/faultline/internal/model"
)

// fakeExtractor fails for ids in unknown and returns a minimal signature
// otherwise.
type fakeExtractor struct {
	unknown map[string]bool
	calls   atomic.Int32
	delay   time.Duration
}

func (f *fakeExtractor) Extract(ctx context.Context, caseID string) (model.FailureSignature, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return model.FailureSignature{}, ctx.Err()
		}
	}
	if f.unknown[caseID] {
		return model.FailureSignature{}, &model.NotFoundError{Kind: "execution", ID: caseID}
	}
	return model.FailureSignature{
		CaseID:     caseID,
		TestName:   "test_" + caseID,
		Clustering: model.ClusteringSection{ErrorType: "Missing field '[VALUE]'"},
		FixContext: model.FixContext{ErrorMessage: "Missing field 'destination'"},
	}, nil
}

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("case-%02d", i)
	}
	return out
}

func TestBuildSkipsUnknownIDs(t *testing.T) {
	defer goleak.VerifyNone(t)

	in := ids(10)
	ex := &fakeExtractor{unknown: map[string]bool{in[3]: true, in[7]: true}}
	c, rep, err := NewBuilder(ex, Options{Workers: 3}).Build(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 8, c.Len())
	assert.Equal(t, 10, rep.Requested)
	assert.Equal(t, 8, rep.Extracted)
	require.Len(t, rep.Skipped, 2)
	assert.Equal(t, in[3], rep.Skipped[0].CaseID)
	assert.Equal(t, in[7], rep.Skipped[1].CaseID)
	assert.Contains(t, rep.Skipped[0].Reason, "not found")

	for i := 1; i < c.Len(); i++ {
		assert.Less(t, c.At(i-1).CaseID, c.At(i).CaseID)
	}
}

func TestBuildDuplicateIDsExtractedOnce(t *testing.T) {
	ex := &fakeExtractor{}
	c, rep, err := NewBuilder(ex, Options{}).Build(context.Background(), []string{"b", "a", "b", "a"})
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 2, rep.Requested)
	assert.EqualValues(t, 2, ex.calls.Load())
}

func TestBuildEmptyRejected(t *testing.T) {
	ex := &fakeExtractor{unknown: map[string]bool{"x": true}}
	_, _, err := NewBuilder(ex, Options{}).Build(context.Background(), []string{"x"})

	var empty *model.EmptyCollectionError
	require.ErrorAs(t, err, &empty)
	assert.Equal(t, 1, empty.Requested)
	assert.Equal(t, 1, empty.Skipped)

	_, _, err = NewBuilder(ex, Options{}).Build(context.Background(), nil)
	require.ErrorAs(t, err, &empty)
}

func TestBuildCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	ex := &fakeExtractor{delay: time.Second}
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, _, err := NewBuilder(ex, Options{Workers: 2}).Build(ctx, ids(20))
	require.ErrorIs(t, err, context.Canceled)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ex := &fakeExtractor{}
	c, _, err := NewBuilder(ex, Options{}).Build(context.Background(), ids(3))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), DefaultName(time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)))
	require.NoError(t, Save(path, c))
	assert.Equal(t, "failure_signature_collection_20260301T093000Z", Stem(path))

	back, rep, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Files)
	assert.Equal(t, c.Signatures(), back.Signatures())
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"case_id":`), 0644))

	_, _, err := Load(path)
	var se *model.SerializationError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, path, se.Path)
}

func TestLoadDirectorySkipsMalformed(t *testing.T) {
	dir := t.TempDir()
	ex := &fakeExtractor{}
	c, _, err := NewBuilder(ex, Options{}).Build(context.Background(), []string{"a/1", "b"})
	require.NoError(t, err)
	require.NoError(t, SaveSplit(dir, c))

	_, err = os.Stat(filepath.Join(dir, "a%2F1.json"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nocase.json"), []byte(`{"test_name":"x"}`), 0644))

	back, rep, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Files)
	assert.Len(t, rep.Malformed, 2)
	assert.Equal(t, 2, back.Len())

	for _, e := range rep.Malformed {
		var se *model.SerializationError
		assert.True(t, errors.As(e, &se))
	}
}

func TestSaveSplitKeepsLookalikeIDsApart(t *testing.T) {
	dir := t.TempDir()
	c := model.NewCollection([]model.FailureSignature{{CaseID: "a/b"}, {CaseID: "a_b"}, {CaseID: "../x"}})
	require.NoError(t, SaveSplit(dir, c))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	back, rep, err := Load(dir)
	require.NoError(t, err)
	assert.Empty(t, rep.Malformed)
	assert.Equal(t, c.Signatures(), back.Signatures())
}

func TestSaveSplitRejectsDuplicateIDs(t *testing.T) {
	c := model.NewCollection([]model.FailureSignature{{CaseID: "a"}, {CaseID: "a"}})
	assert.ErrorContains(t, SaveSplit(t.TempDir(), c), "same file")
}

func TestLoadDirectoryDuplicateCaseID(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.json"), []byte(`{"case_id":"a","test_name":"t1"}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.json"), []byte(`{"case_id":"a","test_name":"t2"}`), 0644))

	back, rep, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 1, back.Len())
	assert.Equal(t, "t1", back.At(0).TestName)
	require.Len(t, rep.Malformed, 1)
	var se *model.SerializationError
	require.True(t, errors.As(rep.Malformed[0], &se))
	assert.Equal(t, filepath.Join(dir, "two.json"), se.Path)
}

func TestLoadFileDuplicateCaseID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"case_id":"a"},{"case_id":"a"}]`), 0644))

	_, _, err := Load(path)
	var se *model.SerializationError
	assert.True(t, errors.As(err, &se), "err = %v", err)
}

func TestLoadMissingPath(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}
