package training

import (
	"fmt"

	apperrors "github.com/portraitlab/server/internal/utils/errors"
)

// Domain errors for training. Each wraps a taxonomy sentinel so callers can
// match either the specific cause or its class.
var (
	// Submission errors
	ErrTooFewImages  = fmt.Errorf("%w: too few images", apperrors.ErrValidation)
	ErrTooManyImages = fmt.Errorf("%w: too many images", apperrors.ErrValidation)
	ErrImageNotFound = fmt.Errorf("%w: image not found", apperrors.ErrValidation)
	ErrImageNotOwned = fmt.Errorf("%w: image belongs to another user", apperrors.ErrValidation)
	ErrImageAttached = fmt.Errorf("%w: image already used by a training", apperrors.ErrValidation)

	// Provider update errors
	ErrInvalidUpdate        = fmt.Errorf("%w: provider update without job id", apperrors.ErrValidation)
	ErrUnknownProviderState = fmt.Errorf("%w: unknown provider state", apperrors.ErrValidation)
	ErrMissingVersion       = fmt.Errorf("%w: succeeded update without model version", apperrors.ErrValidation)
	ErrConcurrentTransition = fmt.Errorf("%w: training changed concurrently", apperrors.ErrConflict)
	ErrConcurrentAttachment = fmt.Errorf("%w: images attached concurrently", apperrors.ErrConflict)

	// Lookup errors
	ErrTrainingNotFound = fmt.Errorf("training: %w", apperrors.ErrNotFound)
)
