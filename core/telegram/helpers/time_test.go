package helpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDate(t *testing.T) {
	march5 := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	cases := map[string]struct {
		want time.Time
		ok   bool
	}{
		"2024-03-05":       {march5, true},
		" 5.3.2024 ":       {march5, true},
		"05/03/2024":       {march5, true},
		"2024-03-05 14:30": {march5, true},
		"2024-02-30":       {ok: false},
		"tomorrow":         {ok: false},
		"":                 {ok: false},
	}
	for in, tc := range cases {
		got, ok := ParseDate(in)
		if assert.Equal(t, tc.ok, ok, in) && ok {
			assert.True(t, tc.want.Equal(got), in)
			assert.Equal(t, time.UTC, got.Location(), in)
		}
	}
}
