// Package log defines standard attribute keys for harmonization operations.
//
// Keys follow a hierarchical naming convention (e.g. "model.name",
// "data.samples") so that logs from the design builder, the Empirical-Bayes
// model and the Riemannian adapter can be filtered consistently.
package log

// Model and Operation Context
const (
	// ModelNameKey identifies the type of model.
	// Examples: "EmpiricalBayesHarmonizer", "RiemannianAdapter"
	ModelNameKey = "model.name"

	// EstimatorIDKey provides a unique identifier for a run or model instance.
	EstimatorIDKey = "estimator.id"

	// OperationKey specifies the operation being performed.
	// Standard values: "learn", "apply", "fit_transform", "geodesic_mean"
	OperationKey = "ml.operation"

	// ComponentKey identifies which component or package is performing the operation.
	// Examples: "design", "harmonize", "riemann", "metrics"
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of model lifecycle.
	PhaseKey = "ml.phase"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of observations (rows).
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns).
	FeaturesKey = "data.features"

	// CovariatesKey indicates the number of non-batch design columns.
	CovariatesKey = "data.covariates"

	// MissingKey indicates the number of covariate cells that failed numeric coercion.
	MissingKey = "data.missing"
)

// Harmonization Context
const (
	// BatchesKey records the number of batch levels.
	BatchesKey = "harmonize.batches"

	// BatchKey records a single batch level.
	BatchKey = "harmonize.batch"

	// BatchColumnKey records the name of the batch column.
	BatchColumnKey = "harmonize.batch_column"

	// EmpiricalBayesKey records whether shrinkage was enabled.
	EmpiricalBayesKey = "harmonize.eb"

	// DimKey records the SPD matrix dimension.
	DimKey = "riemann.dim"

	// MatrixIndexKey records the index of an SPD matrix in its set.
	MatrixIndexKey = "riemann.index"
)

// Performance and Iteration
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// IterationKey records the iteration count of an iterative procedure.
	IterationKey = "training.iteration"

	// ChangeKey records the last relative change of an iterative procedure.
	ChangeKey = "training.change"

	// RatioKey records a site variance ratio.
	RatioKey = "metrics.site_variance_ratio"
)

// Error and Warning Context
const (
	// ErrorCodeKey provides a structured error code for programmatic handling.
	ErrorCodeKey = "error.code"

	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// SuggestionKey provides a hint for resolving an issue.
	SuggestionKey = "error.suggestion"
)

// Standard attribute values.
const (
	OperationLearn        = "learn"
	OperationApply        = "apply"
	OperationFitTransform = "fit_transform"
	OperationBuild        = "build"
	OperationMean         = "geodesic_mean"

	PhaseTraining  = "training"
	PhaseInference = "inference"

	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorInvalidInput      = "INVALID_INPUT"
	ErrorConvergence       = "CONVERGENCE_FAILURE"
	ErrorUnavailable       = "CAPABILITY_UNAVAILABLE"
)
