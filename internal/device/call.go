package device

import (
	"encoding/json"
	"math"
)

// Call carries the arguments of one invocation as they arrived on the wire.
//
// Accessors take a position and a keyword name; pass a negative position
// for keyword-only arguments. Supplying the same argument both ways is a
// TypeError.
type Call struct {
	Args   []any
	Kwargs map[string]any
}

// Lookup returns the raw argument at pos or under name.
func (c Call) Lookup(pos int, name string) (any, bool, error) {
	kw, hasKw := c.Kwargs[name]
	hasPos := pos >= 0 && pos < len(c.Args)
	switch {
	case hasPos && hasKw:
		return nil, false, Errorf(KindTypeError, "got multiple values for argument %q", name)
	case hasPos:
		return c.Args[pos], true, nil
	case hasKw:
		return kw, true, nil
	default:
		return nil, false, nil
	}
}

// Float returns a numeric argument, or def when it is absent.
func (c Call) Float(pos int, name string, def float64) (float64, error) {
	v, ok, err := c.Lookup(pos, name)
	if err != nil || !ok {
		return def, err
	}
	f, ok := ToFloat(v)
	if !ok {
		return 0, Errorf(KindTypeError, "argument %q must be a number, got %T", name, v)
	}
	return f, nil
}

// RequireFloat returns a numeric argument that must be present.
func (c Call) RequireFloat(pos int, name string) (float64, error) {
	if _, ok, err := c.Lookup(pos, name); err != nil {
		return 0, err
	} else if !ok {
		return 0, Errorf(KindTypeError, "missing required argument %q", name)
	}
	return c.Float(pos, name, 0)
}

// Int returns an integral argument, or def when it is absent.
func (c Call) Int(pos int, name string, def int) (int, error) {
	v, ok, err := c.Lookup(pos, name)
	if err != nil || !ok {
		return def, err
	}
	f, ok := ToFloat(v)
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, Errorf(KindTypeError, "argument %q must be an integer, got %v", name, v)
	}
	return int(f), nil
}

// RequireInt returns an integral argument that must be present.
func (c Call) RequireInt(pos int, name string) (int, error) {
	if _, ok, err := c.Lookup(pos, name); err != nil {
		return 0, err
	} else if !ok {
		return 0, Errorf(KindTypeError, "missing required argument %q", name)
	}
	return c.Int(pos, name, 0)
}

// Bool returns a boolean argument, or def when it is absent.
func (c Call) Bool(pos int, name string, def bool) (bool, error) {
	v, ok, err := c.Lookup(pos, name)
	if err != nil || !ok {
		return def, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, Errorf(KindTypeError, "argument %q must be a boolean, got %T", name, v)
	}
	return b, nil
}

// String returns a string argument, or def when it is absent.
func (c Call) String(pos int, name string, def string) (string, error) {
	v, ok, err := c.Lookup(pos, name)
	if err != nil || !ok {
		return def, err
	}
	s, ok := v.(string)
	if !ok {
		return "", Errorf(KindTypeError, "argument %q must be a string, got %T", name, v)
	}
	return s, nil
}

// ToFloat accepts the numeric types produced by the JSON and CBOR decoders
// as well as native Go values.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
