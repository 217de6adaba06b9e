package coupon

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyLenient, p)

	p, err = ParsePolicy("strict")
	require.NoError(t, err)
	assert.Equal(t, PolicyStrict, p)

	_, err = ParsePolicy("sloppy")
	require.Error(t, err)
}

func TestPolicy_Tolerates(t *testing.T) {
	belowMin := &RejectedError{Code: "MIN500", Reason: ReasonBelowMinimum}
	perUser := &RejectedError{Code: "FLAT100", Reason: ReasonPerUserLimit}
	storage := errors.New("connection refused")

	tests := []struct {
		name     string
		policy   Policy
		err      error
		tolerate bool
	}{
		{"nil error", PolicyStrict, nil, true},
		{"lenient ignores unknown code", PolicyLenient, ErrNotFound, true},
		{"lenient ignores inapplicable", PolicyLenient, belowMin, true},
		{"lenient ignores wrapped inapplicable", PolicyLenient, errors.Wrap(belowMin, "assemble"), true},
		{"lenient rejects exhausted", PolicyLenient, perUser, false},
		{"lenient rejects storage faults", PolicyLenient, storage, false},
		{"strict rejects unknown code", PolicyStrict, ErrNotFound, false},
		{"strict rejects inapplicable", PolicyStrict, belowMin, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.tolerate, tt.policy.Tolerates(tt.err))
		})
	}
}

func TestRejectedError_Classification(t *testing.T) {
	err := error(&RejectedError{Code: "X", Reason: ReasonExpired})
	assert.ErrorIs(t, err, ErrNotApplicable)
	assert.NotErrorIs(t, err, ErrExhausted)
	assert.Equal(t, "coupon X: expired", err.Error())

	err = &RejectedError{Code: "X", Reason: ReasonUsageLimitReached}
	assert.ErrorIs(t, err, ErrExhausted)
	assert.NotErrorIs(t, err, ErrNotApplicable)
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "SAVE10", NormalizeCode("  save10 "))
	assert.Equal(t, "", NormalizeCode("   "))
}
