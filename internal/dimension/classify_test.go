package dimension

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"23514", ErrConstraint},
		{"23505", ErrResolutionRace},
		{"22001", ErrConstraint},
		{"22021", ErrConstraint},
		{"22P05", ErrConstraint},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := classify(&pgconn.PgError{Code: tt.code, Message: "rejected"}, "insert locations")
			assert.ErrorIs(t, err, tt.want)
		})
	}

	err := classify(&pgconn.PgError{Code: "08006"}, "insert locations")
	assert.False(t, errors.Is(err, ErrConstraint))
	assert.False(t, errors.Is(err, ErrResolutionRace))
	assert.ErrorContains(t, err, "insert locations")
}
