package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyColumn(t *testing.T) {
	testCases := []struct {
		databaseType string
		expected     numericFamily
	}{
		{"UInt64", familyInt},
		{"Int32", familyInt},
		{"Nullable(UInt64)", familyInt},
		{"LowCardinality(Nullable(Int16))", familyInt},
		{"Float64", familyFloat},
		{"Float32", familyFloat},
		{"Decimal(18, 4)", familyFloat},
		{"Nullable(Float64)", familyFloat},
		{"String", familyNone},
		{"LowCardinality(String)", familyNone},
		{"DateTime", familyNone},
		{"Date", familyNone},
	}

	for _, tc := range testCases {
		t.Run(tc.databaseType, func(t *testing.T) {
			assert.Equal(t, tc.expected, classifyColumn(tc.databaseType))
		})
	}
}

func TestCoerceInt(t *testing.T) {
	testCases := []struct {
		name     string
		input    any
		expected any
	}{
		{"uint64 narrows", uint64(42), int64(42)},
		{"uint32", uint32(7), int64(7)},
		{"int8", int8(-3), int64(-3)},
		{"int64 passthrough", int64(9), int64(9)},
		{"string parsed", "12345", int64(12345)},
		{"unparseable string unchanged", "n/a", "n/a"},
		{"nil stays nil", nil, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, coerceInt(tc.input))
		})
	}
}

func TestCoerceFloat(t *testing.T) {
	testCases := []struct {
		name     string
		input    any
		expected any
	}{
		{"float32 widens", float32(1.5), float64(1.5)},
		{"float64 passthrough", float64(2.25), float64(2.25)},
		{"string parsed", "3.75", float64(3.75)},
		{"unparseable string unchanged", "-", "-"},
		{"nil stays nil", nil, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, coerceFloat(tc.input))
		})
	}
}

func TestRowAccessors(t *testing.T) {
	row := Row{
		"pageviews": int64(10),
		"rate":      42.5,
		"path":      "/pricing",
	}

	assert.Equal(t, int64(10), row.Int64("pageviews"))
	assert.Equal(t, 42.5, row.Float64("rate"))
	assert.Equal(t, "/pricing", row.String("path"))

	assert.Equal(t, int64(0), row.Int64("missing"))
	assert.Equal(t, 0.0, row.Float64("missing"))
	assert.Equal(t, "", row.String("missing"))
}
