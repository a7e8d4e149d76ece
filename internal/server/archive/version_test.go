package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeVersion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1", "1.0.0"},
		{"1.0", "1.0.0"},
		{"1.0.0", "1.0.0"},
		{"1.0.0.0", "1.0.0"},
		{"1.2.3.4", "1.2.3.4"},
		{"01.002.0003", "1.2.3"},
		{" 2.0.0 ", "2.0.0"},
		{"1.0.0-beta", "1.0.0-beta"},
		{"1.0-RC.1", "1.0.0-RC.1"},
		{"1.0.0+sha.abc", "1.0.0"},
		{"1.0.0.0-alpha-2+build", "1.0.0-alpha-2"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeVersion(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeVersion_Invalid(t *testing.T) {
	for _, in := range []string{
		"",
		"a.b.c",
		"1..0",
		"1.0.0.0.0",
		"1.0.0-",
		"1.0.0-beta..1",
		"1.0.0-be ta",
		"1.0.0+",
		"-1.0.0",
		"99999999999.0.0",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := NormalizeVersion(in)
			assert.Error(t, err)
		})
	}
}
