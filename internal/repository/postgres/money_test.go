package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericStringToCents(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"12.50", 1250},
		{"3.99", 399},
		{"31.89", 3189},
		{"0.00", 0},
		{"7", 700},
		{" 2.9 ", 290},
		// NUMERIC(12,2) never carries a third decimal, but rounding is half-up if it does
		{"28.985", 2899},
		{"0.29", 29},
		{"9999999999.99", 999999999999},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := numericStringToCents(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNumericStringToCents_Invalid(t *testing.T) {
	for _, in := range []string{"", "  ", "twelve", "$12.50", "1.2.3"} {
		_, err := numericStringToCents(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestCentsToNumericString(t *testing.T) {
	assert.Equal(t, "12.50", centsToNumericString(1250))
	assert.Equal(t, "0.05", centsToNumericString(5))
	assert.Equal(t, "0.00", centsToNumericString(0))
	assert.Equal(t, "31.89", centsToNumericString(3189))
}

func TestOrderAmountsSurviveStorage(t *testing.T) {
	// subtotal, tax and total of a priced order
	for _, cents := range []int64{2899, 290, 3189, 1, 99, 100000} {
		back, err := numericStringToCents(centsToNumericString(cents))
		require.NoError(t, err)
		assert.Equal(t, cents, back)
	}
}
