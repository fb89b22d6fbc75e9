package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	tests := map[string]int64{
		"0":      0,
		"100":    100,
		"100B":   100,
		"100b":   100,
		" 100k ": 100 << 10,
		"100KB":  100 << 10,
		"1M":     1 << 20,
		"1MiB":   1 << 20,
		"1G":     1 << 30,
		"1T":     1 << 40,
		"1.5G":   1610612736,
		"0.5m":   512 << 10,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			got, err := ParseSize(in)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseSizeErrors(t *testing.T) {
	for _, in := range []string{"", "B", "K", "abc", "notanumber G", "-1", "-1.5M", "NaN", "Inf", "9999999999T"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseSize(in)
			assert.Error(t, err)
		})
	}
}
