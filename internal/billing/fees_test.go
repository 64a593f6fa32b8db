package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplicationFee(t *testing.T) {
	override := func(v float64) *float64 { return &v }

	cases := []struct {
		name     string
		amount   int64
		def      float64
		override *float64
		want     int64
	}{
		{"default percent", 10000, 10, nil, 1000},
		{"override wins", 10000, 10, override(15), 1500},
		{"rounds to nearest cent", 999, 10, nil, 100},
		{"rounds down", 994, 10, nil, 99},
		{"zero percent", 10000, 0, nil, 0},
		{"negative override", 10000, 10, override(-5), 0},
		{"zero amount", 0, 10, nil, 0},
		{"override zero disables fee", 10000, 10, override(0), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ApplicationFee(tc.amount, tc.def, tc.override))
		})
	}
}
