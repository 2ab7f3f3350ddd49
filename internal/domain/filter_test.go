package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesFilter(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		filter string
		want   bool
	}{
		{"empty filter matches", "anything", "", true},
		{"wildcard matches", "anything", "*", true},
		{"exact match", "color", "color", true},
		{"exact mismatch", "color", "colour", false},
		{"prefix match", "service/timeout", "service/*", true},
		{"prefix mismatch", "worker/timeout", "service/*", false},
		{"bare star prefix matches empty value", "", "*", true},
		{"exact filter does not match prefix", "colors", "color", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesFilter(tt.value, tt.filter))
		})
	}
}

func TestFilterToLike(t *testing.T) {
	tests := []struct {
		name    string
		filter  string
		want    string
		wantOK  bool
	}{
		{"empty filter needs no pattern", "", "", false},
		{"wildcard needs no pattern", "*", "", false},
		{"exact value passes through", "color", "color", true},
		{"trailing star becomes percent", "service/*", "service/%", true},
		{"literal percent escaped", "100%", `100\%`, true},
		{"literal underscore escaped", "a_b", `a\_b`, true},
		{"backslash escaped", `a\b`, `a\\b`, true},
		{"escaped literals with trailing star", "v_1*", `v\_1%`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FilterToLike(tt.filter)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
