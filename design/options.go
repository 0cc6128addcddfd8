package design

// DefaultBatchColumn is the batch column name used when none is configured.
const DefaultBatchColumn = "batch"

type config struct {
	batchColumn   string
	categorical   []string
	continuous    []string
	explicit      bool
	dropFirst     bool
	intercept     bool
	allowConstant bool
}

func defaultConfig() *config {
	return &config{
		batchColumn: DefaultBatchColumn,
		dropFirst:   true,
		intercept:   true,
	}
}

// Option configures Build.
type Option func(*config)

// WithBatchColumn sets the name of the required batch column.
func WithBatchColumn(name string) Option {
	return func(c *config) {
		c.batchColumn = name
	}
}

// WithCategorical lists the non-batch columns to one-hot encode.
// Passing either list disables type-based auto-detection.
func WithCategorical(cols ...string) Option {
	return func(c *config) {
		c.categorical = append(c.categorical, cols...)
		c.explicit = true
	}
}

// WithContinuous lists the columns passed through as numbers.
func WithContinuous(cols ...string) Option {
	return func(c *config) {
		c.continuous = append(c.continuous, cols...)
		c.explicit = true
	}
}

// WithDropFirst controls whether the first sorted level of every categorical
// column is dropped as the reference level. Default true.
func WithDropFirst(drop bool) Option {
	return func(c *config) {
		c.dropFirst = drop
	}
}

// WithIntercept controls whether an intercept column is added. Default true.
func WithIntercept(intercept bool) Option {
	return func(c *config) {
		c.intercept = intercept
	}
}

// WithAllowConstant skips the constant-column check. Designs built for
// applying a learned model to a single site need it.
func WithAllowConstant(allow bool) Option {
	return func(c *config) {
		c.allowConstant = allow
	}
}
