// Package apperrors defines the error categories shared by the classifier packages.
//
// Package-level sentinels elsewhere wrap one of these categories so callers can
// branch on the category with errors.Is without knowing which stage failed.
package apperrors

import "errors"

var (
	// ErrInputValidation marks bad caller input at inference time. Recoverable.
	ErrInputValidation = errors.New("invalid input")

	// ErrArtifactLoad marks a missing or corrupt persisted artifact. Fatal at startup.
	ErrArtifactLoad = errors.New("artifact load failed")

	// ErrTrainingData marks a malformed corpus. Fatal for training.
	ErrTrainingData = errors.New("invalid training data")

	// ErrConfiguration marks an unusable fit configuration. Fatal for training.
	ErrConfiguration = errors.New("invalid configuration")
)
