package values

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	assert.Equal(t, "local", String("local"))
	assert.Empty(t, String(42))
	assert.Empty(t, String(nil))
}

func TestInt(t *testing.T) {
	tests := []struct {
		in   any
		want int
	}{
		{512, 512},
		{int64(64), 64},
		{float64(3.9), 3},
		{" 2000 ", 2000},
		{"lots", 0},
		{true, 0},
		{nil, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Int(tt.in), "input %#v", tt.in)
	}
}

func TestFloat(t *testing.T) {
	assert.InDelta(t, 0.5, Float(0.5), 1e-9)
	assert.InDelta(t, 1.0, Float(int64(1)), 1e-9)
	assert.InDelta(t, 2.0, Float(2), 1e-9)
	assert.InDelta(t, 0.75, Float("0.75"), 1e-9)
	assert.Zero(t, Float("high"))
	assert.Zero(t, Float(nil))
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 10*time.Second, Duration(10*time.Second))
	assert.Equal(t, 250*time.Millisecond, Duration("250ms"))
	assert.Zero(t, Duration("soon"))
	assert.Zero(t, Duration(int64(5)))
}
