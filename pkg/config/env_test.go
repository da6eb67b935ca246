package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvString(t *testing.T) {
	t.Setenv("NP_TEST_STRING", "")
	assert.Equal(t, "fallback", GetEnvString("NP_TEST_STRING", "fallback"))

	t.Setenv("NP_TEST_STRING", "value")
	assert.Equal(t, "value", GetEnvString("NP_TEST_STRING", "fallback"))
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"", 3},
		{"7", 7},
		{"-2", -2},
		{"seven", 3},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("NP_TEST_INT", tt.value)
			assert.Equal(t, tt.want, GetEnvInt("NP_TEST_INT", 3))
		})
	}
}

func TestGetEnvFloat(t *testing.T) {
	t.Setenv("NP_TEST_FLOAT", "2.5")
	assert.Equal(t, 2.5, GetEnvFloat("NP_TEST_FLOAT", 1))

	t.Setenv("NP_TEST_FLOAT", "fast")
	assert.Equal(t, 1.0, GetEnvFloat("NP_TEST_FLOAT", 1))
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("NP_TEST_BOOL", "TRUE")
	assert.True(t, GetEnvBool("NP_TEST_BOOL", false))

	t.Setenv("NP_TEST_BOOL", "0")
	assert.False(t, GetEnvBool("NP_TEST_BOOL", true))

	t.Setenv("NP_TEST_BOOL", "yes")
	assert.True(t, GetEnvBool("NP_TEST_BOOL", true))
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("NP_TEST_DURATION", "90s")
	assert.Equal(t, 90*time.Second, GetEnvDuration("NP_TEST_DURATION", time.Second))

	t.Setenv("NP_TEST_DURATION", "later")
	assert.Equal(t, time.Second, GetEnvDuration("NP_TEST_DURATION", time.Second))
}

func TestGetEnvStringList(t *testing.T) {
	t.Setenv("NP_TEST_LIST", " a, ,b ,")
	assert.Equal(t, []string{"a", "b"}, GetEnvStringList("NP_TEST_LIST", nil))

	t.Setenv("NP_TEST_LIST", " , ")
	assert.Equal(t, []string{"x"}, GetEnvStringList("NP_TEST_LIST", []string{"x"}))
}

func TestGetEnvStringMap(t *testing.T) {
	t.Setenv("NP_TEST_MAP", "gateway:k1, email_service:k2,broken,:nokey")
	assert.Equal(t, map[string]string{"gateway": "k1", "email_service": "k2"}, GetEnvStringMap("NP_TEST_MAP"))
}
