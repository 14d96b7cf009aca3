package bench

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrUnknownParam = errors.New("bench: unknown parameter")
	ErrInvalidParam = errors.New("bench: invalid parameter value")
)

// Param is one axis of the parameter grid.
type Param struct {
	Name   string
	Values []any
}

func Ints(name string, vs ...int) Param {
	p := Param{Name: name}
	for _, v := range vs {
		p.Values = append(p.Values, v)
	}
	return p
}

func Floats(name string, vs ...float64) Param {
	p := Param{Name: name}
	for _, v := range vs {
		p.Values = append(p.Values, v)
	}
	return p
}

func Strings(name string, vs ...string) Param {
	p := Param{Name: name}
	for _, v := range vs {
		p.Values = append(p.Values, v)
	}
	return p
}

// Values is one point of the grid.
type Values map[string]any

func (v Values) Int(name string) (int, error) {
	x, err := v.Get(name)
	if err != nil {
		return 0, err
	}
	switch x := x.(type) {
	case int:
		return x, nil
	case string:
		n, err := strconv.Atoi(x)
		if err != nil {
			return 0, fmt.Errorf("%w: %s=%q", ErrInvalidParam, name, x)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: %s=%v is not an integer", ErrInvalidParam, name, x)
}

// Ints reads several integer params at once, in the order given.
func (v Values) Ints(names ...string) ([]int, error) {
	out := make([]int, len(names))
	for i, name := range names {
		n, err := v.Int(name)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func (v Values) Float(name string) (float64, error) {
	x, err := v.Get(name)
	if err != nil {
		return 0, err
	}
	switch x := x.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s=%q", ErrInvalidParam, name, x)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%w: %s=%v is not a number", ErrInvalidParam, name, x)
}

func (v Values) String(name string) string {
	if x, ok := v[name]; ok {
		return fmt.Sprint(x)
	}
	return ""
}

// Get returns the raw value, failing for names outside the grid.
func (v Values) Get(name string) (any, error) {
	x, ok := v[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParam, name)
	}
	return x, nil
}

// Strings formats every value, the form stored with results.
func (v Values) Strings() map[string]string {
	out := make(map[string]string, len(v))
	for k, x := range v {
		out[k] = fmt.Sprint(x)
	}
	return out
}

// Combinations enumerates the cartesian product of params, the first
// param varying slowest.
func Combinations(params []Param) []Values {
	var out []Values
	combine(params, 0, Values{}, &out)
	return out
}

func combine(params []Param, depth int, current Values, out *[]Values) {
	if depth == len(params) {
		v := make(Values, len(current))
		for k, x := range current {
			v[k] = x
		}
		*out = append(*out, v)
		return
	}
	p := params[depth]
	for _, val := range p.Values {
		current[p.Name] = val
		combine(params, depth+1, current, out)
	}
	delete(current, p.Name)
}
