package style

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBadExpression is returned when an expression has the wrong shape:
// wrong arity, an unknown operator, or an operand of an unexpected kind.
var ErrBadExpression = errors.New("style: bad expression")

// Eval evaluates a filter or paint expression against one feature.
//
// expr is the decoded expression array; element 0 is the operator, possibly
// prefixed with "!" to negate a boolean result (the literal operator "!="
// is not a negation). geomType is the feature's geometry type name as
// produced by the tile decoder ("Point", "LineString", "Polygon"). meta is
// the feature's decoded metadata. mapZoom is the integer map zoom,
// vpZoom the continuous viewport zoom.
//
// The result is a bool for comparisons, membership and logic operators, a
// float64 for interpolate, and otherwise a metadata value or a literal
// operand passed through unchanged (get, match, case, coalesce); nil marks
// an absent value.
func Eval(expr []any, geomType string, meta map[string]any, mapZoom int, vpZoom float64) (any, error) {
	if len(expr) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrBadExpression)
	}
	op, ok := expr[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: operator is %T, not string", ErrBadExpression, expr[0])
	}

	negated := strings.HasPrefix(op, "!") && op != "!="
	if negated {
		op = op[1:]
	}

	res, err := evalOp(op, expr, geomType, meta, mapZoom, vpZoom)
	if err != nil {
		return nil, err
	}
	if negated {
		b, ok := res.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: !%s result is %T, not bool", ErrBadExpression, op, res)
		}
		return !b, nil
	}
	return res, nil
}

// EvalFilter evaluates a filter expression, treating any evaluation error
// or non-boolean result as "feature not shown".
func EvalFilter(expr []any, geomType string, meta map[string]any, mapZoom int, vpZoom float64) bool {
	res, err := Eval(expr, geomType, meta, mapZoom, vpZoom)
	if err != nil {
		return false
	}
	b, ok := res.(bool)
	return ok && b
}

func evalOp(op string, expr []any, geomType string, meta map[string]any, mapZoom int, vpZoom float64) (any, error) {
	switch op {
	case "==", "!=":
		return evalCompare(op, expr, geomType, meta, mapZoom, vpZoom)
	case "in":
		return evalIn(expr, meta)
	case "all":
		return evalAll(expr, geomType, meta, mapZoom, vpZoom)
	case "get":
		return evalGet(expr, meta)
	case "has":
		return evalHas(expr, meta)
	case "match":
		return evalMatch(expr, geomType, meta, mapZoom, vpZoom)
	case "case":
		return evalCase(expr, geomType, meta, mapZoom, vpZoom)
	case "coalesce":
		return evalCoalesce(expr, geomType, meta, mapZoom, vpZoom)
	case ">":
		return evalGreater(expr, geomType, meta, mapZoom, vpZoom)
	case "interpolate":
		return evalInterpolate(expr, geomType, meta, mapZoom, vpZoom)
	default:
		return nil, fmt.Errorf("%w: unknown operator %q", ErrBadExpression, op)
	}
}

// propertyName reduces the left operand of a comparison to a property
// name. A nested single-element ["name"] form names the property
// directly; any other nested expression is evaluated and its string
// result used as the name.
func propertyName(operand any, geomType string, meta map[string]any, mapZoom int, vpZoom float64) (string, error) {
	switch v := operand.(type) {
	case string:
		return v, nil
	case []any:
		if len(v) == 1 {
			if s, ok := v[0].(string); ok {
				return s, nil
			}
		}
		res, err := Eval(v, geomType, meta, mapZoom, vpZoom)
		if err != nil {
			return "", err
		}
		s, ok := res.(string)
		if !ok {
			return "", fmt.Errorf("%w: property operand is %T, not string", ErrBadExpression, res)
		}
		return s, nil
	default:
		return "", fmt.Errorf("%w: property operand is %T", ErrBadExpression, operand)
	}
}

func evalCompare(op string, expr []any, geomType string, meta map[string]any, mapZoom int, vpZoom float64) (any, error) {
	if len(expr) != 3 {
		return nil, fmt.Errorf("%w: %s wants 3 elements, got %d", ErrBadExpression, op, len(expr))
	}

	name, err := propertyName(expr[1], geomType, meta, mapZoom, vpZoom)
	if err != nil {
		return nil, err
	}

	var left any
	if name == "$type" {
		left = geomType
	} else if v, ok := meta[name]; ok {
		left = v
	} else {
		left = ""
	}

	eq := valuesEqual(left, expr[2])
	if op == "!=" {
		return !eq, nil
	}
	return eq, nil
}

func evalIn(expr []any, meta map[string]any) (any, error) {
	if len(expr) < 3 {
		return nil, fmt.Errorf("%w: in wants at least 3 elements, got %d", ErrBadExpression, len(expr))
	}
	name, ok := expr[1].(string)
	if !ok {
		return nil, fmt.Errorf("%w: in property is %T, not string", ErrBadExpression, expr[1])
	}
	value, ok := meta[name]
	if !ok {
		return false, nil
	}
	for _, cand := range expr[2:] {
		if valuesEqual(value, cand) {
			return true, nil
		}
	}
	return false, nil
}

func evalAll(expr []any, geomType string, meta map[string]any, mapZoom int, vpZoom float64) (any, error) {
	for _, e := range expr[1:] {
		sub, ok := e.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: all operand is %T, not expression", ErrBadExpression, e)
		}
		res, err := Eval(sub, geomType, meta, mapZoom, vpZoom)
		if err != nil {
			return nil, err
		}
		b, ok := res.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: all operand result is %T, not bool", ErrBadExpression, res)
		}
		if !b {
			return false, nil
		}
	}
	return true, nil
}

func evalGet(expr []any, meta map[string]any) (any, error) {
	if len(expr) != 2 {
		return nil, fmt.Errorf("%w: get wants 2 elements, got %d", ErrBadExpression, len(expr))
	}
	name, ok := expr[1].(string)
	if !ok {
		return nil, fmt.Errorf("%w: get property is %T, not string", ErrBadExpression, expr[1])
	}
	return meta[name], nil
}

func evalHas(expr []any, meta map[string]any) (any, error) {
	if len(expr) != 2 {
		return nil, fmt.Errorf("%w: has wants 2 elements, got %d", ErrBadExpression, len(expr))
	}
	name, ok := expr[1].(string)
	if !ok {
		return nil, fmt.Errorf("%w: has property is %T, not string", ErrBadExpression, expr[1])
	}
	_, ok = meta[name]
	return ok, nil
}

func evalMatch(expr []any, geomType string, meta map[string]any, mapZoom int, vpZoom float64) (any, error) {
	if len(expr) < 5 || len(expr)%2 == 0 {
		return nil, fmt.Errorf("%w: match wants an odd count of at least 5 elements, got %d", ErrBadExpression, len(expr))
	}

	input, err := operandValue(expr[1], geomType, meta, mapZoom, vpZoom)
	if err != nil {
		return nil, err
	}

	// Pairs of (label, output) from element 2; the last element is the
	// fallback.
	for i := 2; i+1 < len(expr)-1; i += 2 {
		matched := false
		if labels, ok := expr[i].([]any); ok {
			for _, l := range labels {
				if valuesEqual(input, l) {
					matched = true
					break
				}
			}
		} else {
			matched = valuesEqual(input, expr[i])
		}
		if matched {
			return operandValue(expr[i+1], geomType, meta, mapZoom, vpZoom)
		}
	}
	return operandValue(expr[len(expr)-1], geomType, meta, mapZoom, vpZoom)
}

func evalCase(expr []any, geomType string, meta map[string]any, mapZoom int, vpZoom float64) (any, error) {
	if len(expr) < 4 || len(expr)%2 != 0 {
		return nil, fmt.Errorf("%w: case wants an even count of at least 4 elements, got %d", ErrBadExpression, len(expr))
	}

	for i := 1; i+1 < len(expr)-1; i += 2 {
		cond, ok := expr[i].([]any)
		if !ok {
			return nil, fmt.Errorf("%w: case condition is %T, not expression", ErrBadExpression, expr[i])
		}
		res, err := Eval(cond, geomType, meta, mapZoom, vpZoom)
		if err != nil {
			return nil, err
		}
		if b, ok := res.(bool); ok && b {
			return operandValue(expr[i+1], geomType, meta, mapZoom, vpZoom)
		}
	}
	return operandValue(expr[len(expr)-1], geomType, meta, mapZoom, vpZoom)
}

func evalCoalesce(expr []any, geomType string, meta map[string]any, mapZoom int, vpZoom float64) (any, error) {
	for _, e := range expr[1:] {
		res, err := operandValue(e, geomType, meta, mapZoom, vpZoom)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}
	return nil, nil
}

func evalGreater(expr []any, geomType string, meta map[string]any, mapZoom int, vpZoom float64) (any, error) {
	if len(expr) != 3 {
		return nil, fmt.Errorf("%w: > wants 3 elements, got %d", ErrBadExpression, len(expr))
	}
	left, err := operandValue(expr[1], geomType, meta, mapZoom, vpZoom)
	if err != nil {
		return nil, err
	}
	right, err := operandValue(expr[2], geomType, meta, mapZoom, vpZoom)
	if err != nil {
		return nil, err
	}

	if ls, ok := left.(string); ok {
		rs, ok := right.(string)
		if !ok {
			return nil, fmt.Errorf("%w: > mixes string and %T", ErrBadExpression, right)
		}
		return ls > rs, nil
	}
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if !lok || !rok {
		return nil, fmt.Errorf("%w: > operands %T and %T are not comparable", ErrBadExpression, left, right)
	}
	return lf > rf, nil
}

// evalInterpolate interpolates linearly over (zoom, value) pairs starting
// at element 3. Element 1 names the interpolation kind and element 2 the
// input; only linear zoom interpolation is supported, so both are
// accepted without inspection and the integer map zoom drives the lookup.
func evalInterpolate(expr []any, geomType string, meta map[string]any, mapZoom int, vpZoom float64) (any, error) {
	if len(expr) < 5 || (len(expr)-3)%2 != 0 {
		return nil, fmt.Errorf("%w: interpolate wants pairs from element 3, got %d elements", ErrBadExpression, len(expr))
	}

	stopNum := func(i int) (float64, error) {
		f, ok := toFloat(expr[i])
		if !ok {
			return 0, fmt.Errorf("%w: interpolate stop zoom is %T", ErrBadExpression, expr[i])
		}
		return f, nil
	}
	stopVal := func(i int) (float64, error) {
		res, err := operandValue(expr[i], geomType, meta, mapZoom, vpZoom)
		if err != nil {
			return 0, err
		}
		f, ok := toFloat(res)
		if !ok {
			return 0, fmt.Errorf("%w: interpolate stop value is %T", ErrBadExpression, res)
		}
		return f, nil
	}

	z := float64(mapZoom)

	first, err := stopNum(3)
	if err != nil {
		return nil, err
	}
	if z <= first {
		return stopVal(4)
	}
	last, err := stopNum(len(expr) - 2)
	if err != nil {
		return nil, err
	}
	if z >= last {
		return stopVal(len(expr) - 1)
	}

	i := 3
	for {
		zi, err := stopNum(i)
		if err != nil {
			return nil, err
		}
		if z <= zi {
			break
		}
		i += 2
	}

	z0, err := stopNum(i - 2)
	if err != nil {
		return nil, err
	}
	z1, err := stopNum(i)
	if err != nil {
		return nil, err
	}
	v0, err := stopVal(i - 1)
	if err != nil {
		return nil, err
	}
	v1, err := stopVal(i + 1)
	if err != nil {
		return nil, err
	}
	return v0 + (z-z0)*(v1-v0)/(z1-z0), nil
}

// operandValue resolves an operand that may be either a literal or a
// nested expression.
func operandValue(operand any, geomType string, meta map[string]any, mapZoom int, vpZoom float64) (any, error) {
	if sub, ok := operand.([]any); ok {
		return Eval(sub, geomType, meta, mapZoom, vpZoom)
	}
	return operand, nil
}

// valuesEqual compares metadata values against expression literals,
// normalizing across the numeric kinds the tile decoder and the JSON
// style document produce.
func valuesEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	default:
		return false
	}
}

// toFloat widens any numeric kind produced by the tile decoder or the
// JSON parser to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
