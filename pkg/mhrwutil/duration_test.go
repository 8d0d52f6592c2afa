package mhrwutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDurationSeconds(t *testing.T) {
	assert.Equal(t, "1.500", FormatDuration(1500*time.Millisecond))
}

func TestFormatDurationMinutes(t *testing.T) {
	assert.Equal(t, "2:03.250", FormatDuration(2*time.Minute+3*time.Second+250*time.Millisecond))
}

func TestFormatDurationHours(t *testing.T) {
	d := time.Hour + 5*time.Minute + 9*time.Second + 10*time.Millisecond
	assert.Equal(t, "1:05:09.010", FormatDuration(d))
}

func TestFormatDurationNegativeClampsToZero(t *testing.T) {
	assert.Equal(t, "0.000", FormatDuration(-5*time.Second))
}
