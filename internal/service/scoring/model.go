package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/sentinelpay/fraud-scoring-backend/internal/domain/errors"
	"github.com/sentinelpay/fraud-scoring-backend/internal/infrastructure/metrics"
)

// modelArtifact is the on-disk format of the trained risk model: a logistic
// regression over the canonical feature vector. The feature_names list is
// the schema contract checked against the assembler at load time.
type modelArtifact struct {
	Version      string    `json:"version"`
	FeatureNames []string  `json:"feature_names"`
	Weights      []float64 `json:"weights"`
	Bias         float64   `json:"bias"`
}

type model struct {
	version string
	weights []float64
	bias    float64
}

// ModelInvoker holds the loaded risk model. Loaded once per process; the
// model is read-only after load so concurrent Predict calls need no
// locking. Reload swaps the pointer atomically rather than mutating in
// place, so in-flight predictions always see a consistent model.
type ModelInvoker struct {
	current atomic.Pointer[model]
	logger  *zap.Logger
}

// NewModelInvoker loads the artifact at path. A missing or corrupt
// artifact, or a feature-schema mismatch, is a fatal startup condition:
// the process must not accept scoring traffic without a model.
func NewModelInvoker(path string, logger *zap.Logger) (*ModelInvoker, error) {
	inv := &ModelInvoker{logger: logger}
	if err := inv.load(path); err != nil {
		return nil, err
	}
	m := inv.current.Load()
	logger.Info("risk model loaded",
		zap.String("model_version", m.version),
		zap.Int("features", len(m.weights)),
		zap.String("schema_hash", FeatureSchemaHash()))
	return inv, nil
}

func (inv *ModelInvoker) load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading model artifact %s: %w", path, err)
	}

	var artifact modelArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return fmt.Errorf("parsing model artifact %s: %w", path, err)
	}
	if artifact.Version == "" {
		return fmt.Errorf("model artifact %s has no version", path)
	}
	if len(artifact.Weights) != len(artifact.FeatureNames) {
		return fmt.Errorf("model artifact %s: %d weights for %d features",
			path, len(artifact.Weights), len(artifact.FeatureNames))
	}
	if err := checkSchema(artifact.FeatureNames); err != nil {
		return fmt.Errorf("model artifact %s: %w", path, err)
	}

	inv.current.Store(&model{
		version: artifact.Version,
		weights: artifact.Weights,
		bias:    artifact.Bias,
	})
	return nil
}

// checkSchema verifies the artifact was trained against the exact feature
// ordering the assembler produces.
func checkSchema(names []string) error {
	expected := FeatureNames()
	if len(names) != len(expected) {
		return fmt.Errorf("feature schema mismatch: artifact has %d features, assembler produces %d",
			len(names), len(expected))
	}
	for i, name := range names {
		if name != expected[i] {
			return fmt.Errorf("feature schema mismatch at position %d: artifact %q, assembler %q",
				i, name, expected[i])
		}
	}
	return nil
}

// Predict runs the model on a feature vector. Pure and lock-free; the
// probability is clamped to [0,1] by the sigmoid.
func (inv *ModelInvoker) Predict(features FeatureVector) (float64, string, error) {
	m := inv.current.Load()
	if m == nil {
		return 0, "", errors.NewModelNotReadyError()
	}
	if len(features) != len(m.weights) {
		return 0, "", errors.NewInternalError(
			fmt.Sprintf("feature vector length %d does not match model %d", len(features), len(m.weights)))
	}

	metrics.ModelInvocationsTotal.Inc()

	z := m.bias
	for i, w := range m.weights {
		z += w * features[i]
	}
	return sigmoid(z), m.version, nil
}

// Ready reports whether a model is loaded; the readiness probe checks this
// before the process is declared healthy.
func (inv *ModelInvoker) Ready() bool {
	return inv.current.Load() != nil
}

// Version returns the loaded model version.
func (inv *ModelInvoker) Version() string {
	if m := inv.current.Load(); m != nil {
		return m.version
	}
	return ""
}

// Reload loads a new artifact and swaps it in atomically. In-flight
// predictions keep the model they started with.
func (inv *ModelInvoker) Reload(path string) error {
	if err := inv.load(path); err != nil {
		return err
	}
	inv.logger.Info("risk model reloaded",
		zap.String("model_version", inv.current.Load().version))
	return nil
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}
