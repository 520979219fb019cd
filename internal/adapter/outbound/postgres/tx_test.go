package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	apperrors "github.com/portraitlab/server/internal/utils/errors"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestTranslateError(t *testing.T) {
	plain := errors.New("connection refused")

	tests := []struct {
		name         string
		err          error
		wantConflict bool
	}{
		{"nil", nil, false},
		{"plain", plain, false},
		{"serialization failure", &pgconn.PgError{Code: "40001", Message: "could not serialize access"}, true},
		{"deadlock", fmt.Errorf("update: %w", &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505", Message: "duplicate key"}, true},
		{"not null violation", &pgconn.PgError{Code: "23502", Message: "null value"}, false},
		{"lib/pq deadlock", &pq.Error{Code: "40P01", Message: "deadlock detected"}, true},
		{"gorm duplicated key", gorm.ErrDuplicatedKey, true},
		{"already conflict", apperrors.ErrConflict, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateError(tt.err)
			if tt.err == nil {
				assert.NoError(t, got)
				return
			}
			assert.Equal(t, tt.wantConflict, errors.Is(got, apperrors.ErrConflict))
			if !tt.wantConflict {
				assert.Same(t, tt.err, got)
			}
		})
	}
}

func TestLockConn_RequiresTransaction(t *testing.T) {
	_, err := lockConn(context.Background())
	assert.ErrorIs(t, err, ErrNoTransaction)

	var nilTx *gorm.DB
	_, err = lockConn(context.WithValue(context.Background(), txContextKey, nilTx))
	assert.ErrorIs(t, err, ErrNoTransaction)
}
