package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1.00", true},
		{"1.0", "1.00", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"1.005", "1.01", true}, // half-up rounding
		{"12,345", "12.35", true},
		{" 2.50 ", "2.50", true},
		{"-1", "", false},
		{"+1", "", false},
		{"0", "", false},
		{"0.001", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if !tc.ok {
			assert.ErrorIs(t, err, ErrInvalidAmount, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.out, got.StringFixed(2), "input %q", tc.in)
	}
}

func TestCentsRoundTrip(t *testing.T) {
	assert.Equal(t, "12.34", FromCents(1234).StringFixed(2))
	assert.Equal(t, int64(1234), ToCents(decimal.RequireFromString("12.34")))
	assert.Equal(t, int64(1235), ToCents(decimal.RequireFromString("12.345")))
	assert.Equal(t, int64(-1235), ToCents(decimal.RequireFromString("-12.345")))
}

func TestMonthlyNormalize(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		freq   Frequency
		want   string
	}{
		{"weekly", "52", Weekly, "225.33"},
		{"monthly", "120", Monthly, "120.00"},
		{"quarterly", "90", Quarterly, "30.00"},
		{"annual", "1200", Annual, "100.00"},
		{"annual with remainder", "100", Annual, "8.33"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MonthlyNormalize(decimal.RequireFromString(tt.amount), tt.freq)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Round(2).StringFixed(2))
		})
	}

	t.Run("unknown frequency is rejected", func(t *testing.T) {
		_, err := MonthlyNormalize(decimal.NewFromInt(10), Frequency("daily"))
		assert.ErrorIs(t, err, ErrUnknownFrequency)
	})
}

func TestAnnualAmount(t *testing.T) {
	tests := []struct {
		freq Frequency
		want string
	}{
		{Weekly, "520.00"},
		{Monthly, "120.00"},
		{Quarterly, "40.00"},
		{Annual, "10.00"},
	}
	for _, tt := range tests {
		t.Run(string(tt.freq), func(t *testing.T) {
			got, err := AnnualAmount(decimal.NewFromInt(10), tt.freq)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.StringFixed(2))
		})
	}

	_, err := AnnualAmount(decimal.NewFromInt(10), Frequency("daily"))
	assert.ErrorIs(t, err, ErrUnknownFrequency)
}

func TestMonthlyTotal(t *testing.T) {
	tests := []struct {
		annual string
		want   string
	}{
		{"0.18", "0.02"},   // 0.015
		{"0.06", "0.01"},   // 0.005
		{"0.05", "0.00"},   // 0.00416...
		{"1200", "100.00"}, // exact
		{"2704", "225.33"}, // 52 weekly
	}
	for _, tt := range tests {
		t.Run(tt.annual, func(t *testing.T) {
			assert.Equal(t, tt.want, MonthlyTotal(decimal.RequireFromString(tt.annual)).StringFixed(2))
		})
	}
}

func TestFormatMoney(t *testing.T) {
	euro := FormatOptions{Symbol: "€"}
	tests := []struct {
		in   string
		opts FormatOptions
		want string
	}{
		{"0", euro, "€0,00"},
		{"12.3", euro, "€12,30"},
		{"123", euro, "€123,00"},
		{"1234.5", euro, "€1.234,50"},
		{"1234567.891", euro, "€1.234.567,89"},
		{"-45.6", euro, "-€45,60"},
		{"1234.5", FormatOptions{Symbol: "€", Hidden: true}, "€•••"},
		{"9.99", FormatOptions{}, "9,99"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatMoney(decimal.RequireFromString(tt.in), tt.opts), "input %s", tt.in)
	}
}
