package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/inventura/internal/model"
)

func sampleSummary() model.Summary {
	return model.Summary{
		SessionID:       "s1",
		UnitID:          "unit-1",
		CompletedAt:     time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
		ItemCount:       3,
		AccountedFor:    2,
		NotAccountedFor: 1,
		Tallies:         []model.Tally{{Nomenclature: "Rifle", Total: 3, AccountedFor: 2, NotAccountedFor: 1}},
	}
}

func TestFSArchive(t *testing.T) {
	root := t.TempDir()
	a, err := New(context.Background(), Config{Driver: DriverFS, Dir: root})
	require.NoError(t, err)

	require.NoError(t, a.Archive(context.Background(), sampleSummary()))

	data, err := os.ReadFile(filepath.Join(root, "sessions", "s1", "summary.json"))
	require.NoError(t, err)
	var got model.Summary
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, sampleSummary(), got)
}

func TestNewDisabledAndUnknown(t *testing.T) {
	a, err := New(context.Background(), Config{})
	require.NoError(t, err)
	assert.Nil(t, a)

	_, err = New(context.Background(), Config{Driver: "tape"})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Driver: DriverS3})
	assert.Error(t, err, "bucket is required")
}

type fakePutter struct {
	key  string
	body []byte
	err  error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.key = *in.Key
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Archive(t *testing.T) {
	p := &fakePutter{}
	a := &S3{client: p, bucket: "summaries"}

	require.NoError(t, a.Archive(context.Background(), sampleSummary()))
	assert.Equal(t, "sessions/s1/summary.json", p.key)
	assert.Contains(t, string(p.body), `"nomenclature": "Rifle"`)

	p.err = errors.New("denied")
	assert.Error(t, a.Archive(context.Background(), sampleSummary()))
}
