// Package metrics quantifies how much batch variance remains in a feature
// matrix and how much biological signal survives harmonization.
//
// All functions are read-only reductions over their inputs.
package metrics
