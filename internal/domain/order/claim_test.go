package order

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClaimTTL(t *testing.T) {
	withTimeout := func(d time.Duration) context.Context {
		ctx, cancel := context.WithTimeout(context.Background(), d)
		t.Cleanup(cancel)
		return ctx
	}

	assert.Equal(t, 20*time.Second, ClaimTTL(context.Background(), 20*time.Second))
	assert.Equal(t, DefaultClaimTTL, ClaimTTL(context.Background(), 0))
	assert.Equal(t, 20*time.Second, ClaimTTL(withTimeout(time.Hour), 20*time.Second), "distant deadline")

	got := ClaimTTL(withTimeout(5*time.Second), 20*time.Second)
	assert.Greater(t, got, 5*time.Second)
	assert.LessOrEqual(t, got, 6*time.Second)

	assert.Equal(t, time.Second, ClaimTTL(withTimeout(-time.Second), 20*time.Second), "expired deadline")
}
