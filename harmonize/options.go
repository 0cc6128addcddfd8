package harmonize

// Pooling selects the set of raw estimates the Empirical-Bayes
// hyperparameters are computed over.
type Pooling int

const (
	// PoolBatches estimates one prior per feature from that feature's raw
	// estimates across all batches.
	PoolBatches Pooling = iota
	// PoolFeatures estimates one prior per batch from that batch's raw
	// estimates across all features.
	PoolFeatures
)

func (p Pooling) String() string {
	switch p {
	case PoolBatches:
		return "batches"
	case PoolFeatures:
		return "features"
	default:
		return "unknown"
	}
}

// ParsePooling converts a configuration string into a Pooling.
func ParsePooling(s string) (Pooling, bool) {
	switch s {
	case "batches", "":
		return PoolBatches, true
	case "features":
		return PoolFeatures, true
	default:
		return PoolBatches, false
	}
}

const (
	defaultTol     = 1e-4
	defaultMaxIter = 1000
)

type config struct {
	empiricalBayes      bool
	pooling             Pooling
	tol                 float64
	maxIter             int
	allowNonConvergence bool
	featureNames        []string
}

func defaultConfig() *config {
	return &config{
		empiricalBayes: true,
		pooling:        PoolBatches,
		tol:            defaultTol,
		maxIter:        defaultMaxIter,
	}
}

// Option configures Learn.
type Option func(*config)

// WithEmpiricalBayes toggles shrinkage. When disabled the raw per-batch
// estimates are used directly.
func WithEmpiricalBayes(enabled bool) Option {
	return func(c *config) {
		c.empiricalBayes = enabled
	}
}

// WithPooling selects how prior hyperparameters are pooled.
func WithPooling(p Pooling) Option {
	return func(c *config) {
		c.pooling = p
	}
}

// WithTolerance sets the convergence tolerance of the shrinkage iteration.
func WithTolerance(tol float64) Option {
	return func(c *config) {
		if tol > 0 {
			c.tol = tol
		}
	}
}

// WithMaxIter caps the number of shrinkage iterations per batch.
func WithMaxIter(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxIter = n
		}
	}
}

// WithAllowNonConvergence keeps the last iterate instead of failing when the
// shrinkage iteration hits the cap. A ConvergenceWarning is still emitted.
func WithAllowNonConvergence(allow bool) Option {
	return func(c *config) {
		c.allowNonConvergence = allow
	}
}

// WithFeatureNames records feature names in the learned model.
func WithFeatureNames(names ...string) Option {
	return func(c *config) {
		c.featureNames = append([]string(nil), names...)
	}
}
