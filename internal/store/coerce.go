package store

import (
	"strconv"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// numericFamily classifies a column's store-reported type. The family is
// decided once per column from the result metadata and the same conversion
// is then applied to every row, so a column never mixes Go types across rows.
type numericFamily int

const (
	familyNone numericFamily = iota
	familyInt
	familyFloat
)

type coercer func(any) any

func buildCoercers(types []driver.ColumnType) []coercer {
	coercers := make([]coercer, len(types))
	for i, ct := range types {
		switch classifyColumn(ct.DatabaseTypeName()) {
		case familyInt:
			coercers[i] = coerceInt
		case familyFloat:
			coercers[i] = coerceFloat
		default:
			coercers[i] = coerceNone
		}
	}
	return coercers
}

func classifyColumn(databaseType string) numericFamily {
	base := baseType(databaseType)
	switch {
	case strings.HasPrefix(base, "Int"), strings.HasPrefix(base, "UInt"):
		return familyInt
	case strings.HasPrefix(base, "Float"), strings.HasPrefix(base, "Decimal"):
		return familyFloat
	default:
		return familyNone
	}
}

// baseType strips the wrapper type modifiers ClickHouse reports, e.g.
// Nullable(UInt64) or LowCardinality(Nullable(Int32)).
func baseType(databaseType string) string {
	for {
		switch {
		case strings.HasPrefix(databaseType, "Nullable(") && strings.HasSuffix(databaseType, ")"):
			databaseType = databaseType[len("Nullable(") : len(databaseType)-1]
		case strings.HasPrefix(databaseType, "LowCardinality(") && strings.HasSuffix(databaseType, ")"):
			databaseType = databaseType[len("LowCardinality(") : len(databaseType)-1]
		default:
			return databaseType
		}
	}
}

func coerceNone(v any) any { return v }

// coerceInt canonicalizes integer-family values to int64. String-encoded
// numerics (as produced by stores that serialize wide integers as text)
// are parsed; unparseable strings are passed through unchanged.
func coerceInt(v any) any {
	switch value := v.(type) {
	case nil:
		return nil
	case int64:
		return value
	case int:
		return int64(value)
	case int8:
		return int64(value)
	case int16:
		return int64(value)
	case int32:
		return int64(value)
	case uint:
		return int64(value)
	case uint8:
		return int64(value)
	case uint16:
		return int64(value)
	case uint32:
		return int64(value)
	case uint64:
		return int64(value)
	case string:
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
		return value
	default:
		return value
	}
}

// coerceFloat canonicalizes float-family values to float64, parsing
// string-encoded numerics.
func coerceFloat(v any) any {
	switch value := v.(type) {
	case nil:
		return nil
	case float64:
		return value
	case float32:
		return float64(value)
	case string:
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
		return value
	default:
		return value
	}
}
