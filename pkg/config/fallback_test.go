package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDuration(t *testing.T) {
	positive := ValidatePositiveDuration

	tests := []struct {
		name         string
		env          string
		want         time.Duration
		wantFallback bool
	}{
		{"unset uses default", "", time.Minute, false},
		{"valid value", "90s", 90 * time.Second, false},
		{"unparseable", "soon", time.Minute, true},
		{"fails validation", "-5s", time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BACKOFF", tt.env)

			got := LoadDuration("TEST_BACKOFF", time.Minute, positive)

			assert.Equal(t, tt.want, got.Value)
			assert.Equal(t, tt.wantFallback, got.FallbackApplied())
			if tt.wantFallback {
				assert.Contains(t, got.Warning, "TEST_BACKOFF")
				assert.Contains(t, got.Warning, "falling back to default '1m0s'")
			}
		})
	}
}

func TestLoadInt(t *testing.T) {
	inRange := func(v int) error { return ValidateIntRange(v, 1, 50) }

	t.Setenv("TEST_PREFETCH", "10")
	assert.Equal(t, 10, LoadInt("TEST_PREFETCH", 1, inRange).Value)

	t.Setenv("TEST_PREFETCH", "ten")
	got := LoadInt("TEST_PREFETCH", 1, inRange)
	assert.Equal(t, 1, got.Value)
	assert.True(t, got.FallbackApplied())

	t.Setenv("TEST_PREFETCH", "500")
	got = LoadInt("TEST_PREFETCH", 1, inRange)
	assert.Equal(t, 1, got.Value)
	assert.Contains(t, got.Warning, "exceeds maximum 50")
}

func TestLoadString(t *testing.T) {
	t.Setenv("TEST_SCHEDULE", "*/5 * * * *")
	assert.Equal(t, "*/5 * * * *", LoadString("TEST_SCHEDULE", "* * * * *", ValidateCronSchedule).Value)

	t.Setenv("TEST_SCHEDULE", "every minute")
	got := LoadString("TEST_SCHEDULE", "* * * * *", ValidateCronSchedule)
	assert.Equal(t, "* * * * *", got.Value)
	assert.True(t, got.FallbackApplied())

	t.Setenv("TEST_SCHEDULE", "anything")
	assert.Equal(t, "anything", LoadString("TEST_SCHEDULE", "x", nil).Value, "nil validator accepts any value")
}
