package buildinfo

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextGetters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ctx  *Context
		want [3]string
	}{
		{"nil context", nil, [3]string{UnknownValue, UnknownValue, UnknownValue}},
		{"empty values", NewContext("", "", ""), [3]string{UnknownValue, UnknownValue, UnknownValue}},
		{"injected", NewContext("v1.2.0", "2025-03-01", "abc1234"), [3]string{"v1.2.0", "2025-03-01", "abc1234"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want[0], tt.ctx.GetVersion())
			assert.Equal(t, tt.want[1], tt.ctx.GetBuildDate())
			assert.Equal(t, tt.want[2], tt.ctx.GetCommit())
		})
	}
}

func TestContextString(t *testing.T) {
	t.Parallel()

	s := NewContext("v1.2.0", "", "abc1234").String()
	assert.Contains(t, s, "usagipass-migrate v1.2.0")
	assert.Contains(t, s, "commit abc1234")
	assert.Contains(t, s, "built unknown")
	assert.Contains(t, s, runtime.Version())
}
