package filter

import (
	"fmt"
	"reflect"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"resourcekit/internal/resterr"
)

// Operator is the comparison a search field applies. The set is closed;
// ParseOperator rejects anything else.
type Operator string

const (
	OpEq      Operator = "="
	OpNe      Operator = "!="
	OpGt      Operator = ">"
	OpGte     Operator = ">="
	OpLt      Operator = "<"
	OpLte     Operator = "<="
	OpLike    Operator = "like"
	OpIn      Operator = "in"
	OpBetween Operator = "between"
)

// ParseOperator maps a catalog spelling onto an Operator. Empty means equality.
func ParseOperator(raw string) (Operator, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "=", "eq":
		return OpEq, nil
	case "!=", "<>", "ne":
		return OpNe, nil
	case ">", "gt":
		return OpGt, nil
	case ">=", "gte":
		return OpGte, nil
	case "<", "lt":
		return OpLt, nil
	case "<=", "lte":
		return OpLte, nil
	case "like":
		return OpLike, nil
	case "in":
		return OpIn, nil
	case "between":
		return OpBetween, nil
	default:
		return "", resterr.Configurationf("unknown filter operator %q", raw)
	}
}

// Condition builds the predicate comparing column (already quoted and
// qualified) with value.
func (op Operator) Condition(column string, value interface{}) (sq.Sqlizer, error) {
	switch op {
	case "", OpEq:
		if values, ok := toSlice(value); ok {
			return sq.Eq{column: values}, nil
		}
		return sq.Eq{column: value}, nil
	case OpNe:
		if values, ok := toSlice(value); ok {
			return sq.NotEq{column: values}, nil
		}
		return sq.NotEq{column: value}, nil
	case OpGt, OpGte, OpLt, OpLte:
		if _, ok := toSlice(value); ok || value == nil {
			return nil, resterr.Validationf("operator %s requires a single value", op)
		}
		switch op {
		case OpGt:
			return sq.Gt{column: value}, nil
		case OpGte:
			return sq.GtOrEq{column: value}, nil
		case OpLt:
			return sq.Lt{column: value}, nil
		default:
			return sq.LtOrEq{column: value}, nil
		}
	case OpLike:
		pattern, err := ContainsPattern(value)
		if err != nil {
			return nil, err
		}
		return sq.Like{column: pattern}, nil
	case OpIn:
		// A scalar passed to "in" degrades to equality.
		if values, ok := toSlice(value); ok {
			return sq.Eq{column: values}, nil
		}
		return sq.Eq{column: value}, nil
	case OpBetween:
		values, ok := toSlice(value)
		if !ok || len(values) != 2 {
			return nil, resterr.Validationf("between requires exactly 2 values")
		}
		return sq.Expr(column+" BETWEEN ? AND ?", values[0], values[1]), nil
	default:
		return nil, resterr.Configurationf("unknown filter operator %q", string(op))
	}
}

// ContainsPattern wraps a scalar in %...% for a substring LIKE match.
// Numbers and booleans are formatted; nil, lists and objects are rejected.
func ContainsPattern(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", resterr.Validationf("like filter requires a value")
	case string:
		return "%" + v + "%", nil
	case []byte:
		return "%" + string(v) + "%", nil
	}
	switch reflect.ValueOf(value).Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%%%v%%", value), nil
	default:
		return "", resterr.Validationf("like filter requires a scalar value, got %T", value)
	}
}

// toSlice flattens any slice or array (except []byte) into []interface{}.
func toSlice(value interface{}) ([]interface{}, bool) {
	switch v := value.(type) {
	case nil, []byte, string:
		return nil, false
	case []interface{}:
		return v, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
