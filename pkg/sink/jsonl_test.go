package sink_test

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vistara-analytics/pkg/models"
	"vistara-analytics/pkg/sink"
)

func TestJSONL(t *testing.T) {
	fs := afero.NewMemMapFs()

	s, err := sink.Open(fs, "/var/lib/vsa/out/face.jsonl")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/vsa/out/face.jsonl", s.Path())

	ctx := context.Background()
	require.NoError(t, s.WriteDetection(ctx, models.DetectResult{Channel: 1, Seq: 2, Boxes: []models.BBox{{X2: 3, Y2: 4}}}))
	require.NoError(t, s.WriteFeature(ctx, models.FeatureVector{Channel: 1, Seq: 2, Values: []float32{1}}))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.WriteFeature(ctx, models.FeatureVector{}), os.ErrClosed)

	f, err := fs.Open("/var/lib/vsa/out/face.jsonl")
	require.NoError(t, err)
	defer f.Close()

	var kinds []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		kinds = append(kinds, rec["kind"].(string))
	}

	assert.Equal(t, []string{"detection", "feature"}, kinds)
}

func TestJSONL_appends(t *testing.T) {
	fs := afero.NewMemMapFs()

	for i := 0; i < 2; i++ {
		s, err := sink.Open(fs, "out.jsonl")
		require.NoError(t, err)
		require.NoError(t, s.WriteDetection(context.Background(), models.DetectResult{Seq: uint64(i)}))
		require.NoError(t, s.Close())
	}

	data, err := afero.ReadFile(fs, "out.jsonl")
	require.NoError(t, err)
	assert.Equal(t, 2, countLines(data))
}

func countLines(b []byte) int {
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}

	return n
}
