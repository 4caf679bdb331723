// Package regime classifies market volatility regimes from feature vectors.
// Two-stage design: a static stump ensemble scores a single vector, and a
// sequence stage forward-smooths the distribution over a feature history
// using the regime transition matrix. The two distributions are blended
// with a fixed configured weight.
package regime

import (
	"math"

	"github.com/voldesk/regime-backend/pkg/types"
	"go.uber.org/zap"
)

// Classifier produces regime classifications from trained model parameters.
// Pure and stateless given its model; safe for concurrent use.
type Classifier struct {
	logger *zap.Logger
	model  *Model
	config types.ClassifierConfig
}

// NewClassifier creates a classifier around an immutable model. A nil model
// is allowed at construction; classification then fails with ModelNotLoaded.
// A blend weight outside (0,1] falls back to the 0.5 default: zero is the
// unset config value, not a request for a pure-sequence blend.
func NewClassifier(logger *zap.Logger, model *Model, config types.ClassifierConfig) *Classifier {
	if config.BlendWeight <= 0 || config.BlendWeight > 1 {
		config.BlendWeight = 0.5
	}
	if config.SequenceLength <= 0 {
		config.SequenceLength = 10
	}
	return &Classifier{logger: logger, model: model, config: config}
}

// Classify maps a feature vector (and optionally a short ordered history of
// preceding vectors, oldest first) to a regime classification.
//
// The sequence stage runs only when history contains at least the configured
// sequence length; otherwise the static distribution is used alone. Ties on
// the final argmax break by fixed priority, higher-risk label first.
func (c *Classifier) Classify(fv types.FeatureVector, history []types.FeatureVector) (*types.RegimeClassification, error) {
	if c.model == nil {
		return nil, &types.ModelNotLoadedError{}
	}
	if err := c.model.Validate(); err != nil {
		return nil, &types.ModelNotLoadedError{Detail: err.Error()}
	}

	static := c.staticProbabilities(fv)

	final := static
	if len(history) >= c.config.SequenceLength {
		seq := c.sequenceProbabilities(history, fv)
		w := c.config.BlendWeight
		for i := range final {
			final[i] = w*static[i] + (1-w)*seq[i]
		}
	}

	chosen := argmax(final)
	probs := make(map[types.Regime]float64, len(types.Regimes))
	for i, r := range types.Regimes {
		probs[r] = final[i]
	}

	c.logger.Debug("regime classified",
		zap.String("regime", string(chosen)),
		zap.Float64("confidence", probs[chosen]),
		zap.Int("history", len(history)),
	)

	return &types.RegimeClassification{
		Regime:        chosen,
		Probabilities: probs,
		Confidence:    probs[chosen],
	}, nil
}

// ClassifySeries classifies each snapshot-aligned feature vector in order,
// feeding the preceding vectors as sequence context. Vectors must be ordered
// oldest first.
func (c *Classifier) ClassifySeries(vectors []types.FeatureVector) ([]*types.RegimeClassification, error) {
	out := make([]*types.RegimeClassification, 0, len(vectors))
	for i, fv := range vectors {
		start := i - c.config.SequenceLength
		if start < 0 {
			start = 0
		}
		cls, err := c.Classify(fv, vectors[start:i])
		if err != nil {
			return nil, err
		}
		out = append(out, cls)
	}
	return out, nil
}

// ModelVersion reports the loaded parameter version, empty when unloaded.
func (c *Classifier) ModelVersion() string {
	if c.model == nil {
		return ""
	}
	return c.model.Version
}

// staticProbabilities runs the stump ensemble and softmaxes the class scores.
func (c *Classifier) staticProbabilities(fv types.FeatureVector) [4]float64 {
	x := fv.Slice()
	scores := c.model.Bias

	for _, s := range c.model.Stumps {
		votes := s.Below
		if x[s.Feature] > s.Threshold {
			votes = s.Above
		}
		for i := range scores {
			scores[i] += votes[i]
		}
	}

	return softmax(scores)
}

// sequenceProbabilities runs a forward pass over the history: at each step
// the belief is propagated through the transition matrix and reweighted by
// that step's static distribution, then normalized.
func (c *Classifier) sequenceProbabilities(history []types.FeatureVector, current types.FeatureVector) [4]float64 {
	alpha := [4]float64{0.25, 0.25, 0.25, 0.25}

	steps := make([]types.FeatureVector, 0, len(history)+1)
	steps = append(steps, history...)
	steps = append(steps, current)

	for _, fv := range steps {
		emission := c.staticProbabilities(fv)

		var next [4]float64
		total := 0.0
		for j := 0; j < 4; j++ {
			sum := 0.0
			for i := 0; i < 4; i++ {
				sum += alpha[i] * c.model.Transition[i][j]
			}
			next[j] = sum * emission[j]
			total += next[j]
		}

		if total > 0 {
			for j := range next {
				next[j] /= total
			}
		}
		alpha = next
	}

	return alpha
}

// argmax picks the most probable regime, breaking ties by fixed priority.
func argmax(probs [4]float64) types.Regime {
	indexOf := make(map[types.Regime]int, len(types.Regimes))
	for i, r := range types.Regimes {
		indexOf[r] = i
	}

	best := types.TieBreakPriority[0]
	bestP := probs[indexOf[best]]
	for _, r := range types.TieBreakPriority[1:] {
		if p := probs[indexOf[r]]; p > bestP {
			best = r
			bestP = p
		}
	}
	return best
}

// softmax converts scores to a probability distribution, shifted by the max
// score for numerical stability.
func softmax(scores [4]float64) [4]float64 {
	maxScore := scores[0]
	for _, s := range scores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}

	var out [4]float64
	total := 0.0
	for i, s := range scores {
		out[i] = math.Exp(s - maxScore)
		total += out[i]
	}
	for i := range out {
		out[i] /= total
	}
	return out
}
