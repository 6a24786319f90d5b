package store_test

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/srg/soilsense/internal/analysis"
	"github.com/srg/soilsense/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s, err := store.NewStore(filepath.Join(t.TempDir(), "soilsense.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleResult(score int) *analysis.Result {
	return &analysis.Result{
		Score:          score,
		Interpretation: "balanced soil",
		Plants: []analysis.Plant{
			{Name: "Tomato"}, {Name: "Basil"}, {Name: "Carrot"},
		},
		Amendments: []analysis.Amendment{
			{Name: "Compost", ApplicationRate: "5 cm layer"},
		},
	}
}

func TestSaveAndLoadAnalysis(t *testing.T) {
	s := newTestStore(t)

	soil := analysis.SoilData{Temperature: 21.5, Moisture: 38.0, PH: 6.4, Weather: "sunny"}
	id, err := s.SaveAnalysis(soil, sampleResult(82))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, ok := s.GetAnalysis(id)
	require.True(t, ok)
	assert.Equal(t, 82, rec.Result.Score)
	assert.InDelta(t, 21.5, rec.Soil.Temperature, 0.001)
	assert.Equal(t, "sunny", rec.Soil.Weather)
	assert.Len(t, rec.Result.Plants, 3)
}

func TestListAnalysesNewestFirst(t *testing.T) {
	s := newTestStore(t)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := s.SaveAnalysis(analysis.SoilData{PH: 6.0 + float64(i)}, sampleResult(50+i))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	records := s.ListAnalyses(0)
	require.Len(t, records, 3)
	assert.Equal(t, 52, records[0].Result.Score, "newest record must come first")

	limited := s.ListAnalyses(2)
	assert.Len(t, limited, 2)

	latest, ok := s.LatestAnalysis()
	require.True(t, ok)
	assert.Equal(t, ids[2], latest.ID)
}

// GOAL: Verify read paths degrade instead of failing: an empty or unknown
// history yields empty results, never an error.
func TestLoadFallbacks(t *testing.T) {
	s := newTestStore(t)

	assert.Empty(t, s.ListAnalyses(0))

	_, ok := s.GetAnalysis("no-such-id")
	assert.False(t, ok)

	_, ok = s.LatestAnalysis()
	assert.False(t, ok)

	assert.Empty(t, s.ChatHistory("no-such-id"))

	_, ok = s.GetSetting("no-such-key")
	assert.False(t, ok)
}

func TestChatHistory(t *testing.T) {
	s := newTestStore(t)

	id, err := s.SaveAnalysis(analysis.SoilData{PH: 6.5}, sampleResult(70))
	require.NoError(t, err)

	require.NoError(t, s.AppendChat(id, "user", "What about roses?"))
	require.NoError(t, s.AppendChat(id, "model", "Roses prefer slightly acidic soil."))
	require.NoError(t, s.AppendChat(id, "user", "And lavender?"))

	history := s.ChatHistory(id)
	require.Len(t, history, 3)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "What about roses?", history[0].Text)
	assert.Equal(t, "model", history[1].Role)
	assert.Equal(t, "And lavender?", history[2].Text)
}

func TestSettings(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetSetting("language", "en"))
	require.NoError(t, s.SetSetting("language", "de")) // upsert

	value, ok := s.GetSetting("language")
	require.True(t, ok)
	assert.Equal(t, "de", value)
}

func TestStoreReopen(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	path := filepath.Join(t.TempDir(), "soilsense.db")

	s, err := store.NewStore(path, logger)
	require.NoError(t, err)
	id, err := s.SaveAnalysis(analysis.SoilData{PH: 7.0}, sampleResult(60))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := store.NewStore(path, logger)
	require.NoError(t, err)
	defer reopened.Close()

	rec, ok := reopened.GetAnalysis(id)
	require.True(t, ok)
	assert.Equal(t, 60, rec.Result.Score)
}
