package artifact

import (
	"errors"
	"fmt"

	apperrors "github.com/portraitlab/server/internal/utils/errors"
)

// Domain errors for generation.
var (
	ErrEmptyPrompt      = fmt.Errorf("%w: prompt is required", apperrors.ErrValidation)
	ErrTrainingNotFound = fmt.Errorf("%w: training not found", apperrors.ErrValidation)
	ErrBaseModelMissing = errors.New("base model version is not configured")
	ErrEmptyOutput      = errors.New("inference returned no image")
)
