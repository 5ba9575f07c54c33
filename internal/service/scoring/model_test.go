package scoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeArtifact(t *testing.T, artifact modelArtifact) string {
	t.Helper()
	data, err := json.Marshal(artifact)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func validArtifact() modelArtifact {
	names := FeatureNames()
	weights := make([]float64, len(names))
	return modelArtifact{
		Version:      "2026-03-01-rc1",
		FeatureNames: names,
		Weights:      weights,
		Bias:         -1.5,
	}
}

func TestNewModelInvokerLoadsArtifact(t *testing.T) {
	path := writeArtifact(t, validArtifact())

	inv, err := NewModelInvoker(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, inv.Ready())
	assert.Equal(t, "2026-03-01-rc1", inv.Version())
}

func TestNewModelInvokerMissingFile(t *testing.T) {
	_, err := NewModelInvoker(filepath.Join(t.TempDir(), "nope.json"), zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestNewModelInvokerCorruptArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewModelInvoker(path, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestNewModelInvokerSchemaMismatch(t *testing.T) {
	t.Run("wrong feature count", func(t *testing.T) {
		artifact := validArtifact()
		artifact.FeatureNames = artifact.FeatureNames[:5]
		artifact.Weights = artifact.Weights[:5]

		_, err := NewModelInvoker(writeArtifact(t, artifact), zaptest.NewLogger(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "feature schema mismatch")
	})

	t.Run("reordered features", func(t *testing.T) {
		artifact := validArtifact()
		artifact.FeatureNames[0], artifact.FeatureNames[1] = artifact.FeatureNames[1], artifact.FeatureNames[0]

		_, err := NewModelInvoker(writeArtifact(t, artifact), zaptest.NewLogger(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "feature schema mismatch")
	})

	t.Run("weights and names disagree", func(t *testing.T) {
		artifact := validArtifact()
		artifact.Weights = artifact.Weights[:len(artifact.Weights)-1]

		_, err := NewModelInvoker(writeArtifact(t, artifact), zaptest.NewLogger(t))
		assert.Error(t, err)
	})
}

func TestPredict(t *testing.T) {
	artifact := validArtifact()
	artifact.Weights[0] = 0.002 // amount
	artifact.Bias = -2

	inv, err := NewModelInvoker(writeArtifact(t, artifact), zaptest.NewLogger(t))
	require.NoError(t, err)

	features := make(FeatureVector, len(FeatureNames()))
	features[0] = 100

	prob, version, err := inv.Predict(features)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01-rc1", version)
	assert.Greater(t, prob, 0.0)
	assert.Less(t, prob, 1.0)

	// sigmoid(-2 + 0.2) = sigmoid(-1.8)
	assert.InDelta(t, 0.14185, prob, 1e-4)
}

func TestPredictDeterministic(t *testing.T) {
	inv, err := NewModelInvoker(writeArtifact(t, validArtifact()), zaptest.NewLogger(t))
	require.NoError(t, err)

	features := make(FeatureVector, len(FeatureNames()))
	for i := range features {
		features[i] = float64(i) * 0.1
	}

	first, _, err := inv.Predict(features)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		prob, _, err := inv.Predict(features)
		require.NoError(t, err)
		assert.Equal(t, first, prob)
	}
}

func TestPredictRejectsWrongLength(t *testing.T) {
	inv, err := NewModelInvoker(writeArtifact(t, validArtifact()), zaptest.NewLogger(t))
	require.NoError(t, err)

	_, _, err = inv.Predict(FeatureVector{1, 2, 3})
	assert.Error(t, err)
}

func TestReloadSwapsVersion(t *testing.T) {
	inv, err := NewModelInvoker(writeArtifact(t, validArtifact()), zaptest.NewLogger(t))
	require.NoError(t, err)

	next := validArtifact()
	next.Version = "2026-04-01-rc1"
	require.NoError(t, inv.Reload(writeArtifact(t, next)))
	assert.Equal(t, "2026-04-01-rc1", inv.Version())
}

func TestReloadKeepsOldModelOnFailure(t *testing.T) {
	inv, err := NewModelInvoker(writeArtifact(t, validArtifact()), zaptest.NewLogger(t))
	require.NoError(t, err)

	require.Error(t, inv.Reload(filepath.Join(t.TempDir(), "missing.json")))
	assert.True(t, inv.Ready())
	assert.Equal(t, "2026-03-01-rc1", inv.Version())
}
