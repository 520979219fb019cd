package quota

import (
	"errors"
	"fmt"

	apperrors "github.com/portraitlab/server/internal/utils/errors"
)

// Domain errors for quota.
var (
	ErrUserNotFound       = fmt.Errorf("user: %w", apperrors.ErrNotFound)
	ErrReservationNotHeld = errors.New("reservation was not granted")
)
