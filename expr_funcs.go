package mindb

import (
	"fmt"
	"strings"
)

// callScalarFunction dispatches a scalar FuncCallExpr by name. Grounded
// on spec.md §4.4's scalar-function list; NULL propagates through every
// function here the way it does through arithmetic (any null argument
// yields a null result) except for COALESCE, which is its own
// expression type and never reaches this dispatcher.
func callScalarFunction(name string, args []Value) (Value, error) {
	for _, a := range args {
		if a == nil {
			return nil, nil
		}
	}
	switch strings.ToUpper(name) {
	case "UPPER":
		s, err := requireString(name, args, 0)
		if err != nil {
			return nil, err
		}
		return strings.ToUpper(s), nil
	case "LOWER":
		s, err := requireString(name, args, 0)
		if err != nil {
			return nil, err
		}
		return strings.ToLower(s), nil
	case "LENGTH", "CHAR_LENGTH":
		s, err := requireString(name, args, 0)
		if err != nil {
			return nil, err
		}
		return int64(len(s)), nil
	case "TRIM":
		s, err := requireString(name, args, 0)
		if err != nil {
			return nil, err
		}
		return strings.TrimSpace(s), nil
	case "CONCAT":
		var b strings.Builder
		for _, a := range args {
			b.WriteString(fmt.Sprintf("%v", a))
		}
		return b.String(), nil
	case "ABS":
		return absNumeric(args[0])
	case "SUBSTRING", "SUBSTR":
		return substringValue(args)
	default:
		return nil, NewError(KindExpression, "unknown scalar function %s", name)
	}
}

func requireString(fn string, args []Value, i int) (string, error) {
	s, ok := args[i].(string)
	if !ok {
		return "", NewError(KindTypeCast, "%s requires a string argument, got %T", fn, args[i])
	}
	return s, nil
}

func absNumeric(v Value) (Value, error) {
	switch n := v.(type) {
	case int64:
		if n < 0 {
			return -n, nil
		}
		return n, nil
	case float64:
		if n < 0 {
			return -n, nil
		}
		return n, nil
	default:
		return nil, NewError(KindTypeCast, "ABS requires a numeric argument, got %T", v)
	}
}

func substringValue(args []Value) (Value, error) {
	if len(args) < 2 {
		return nil, NewError(KindExpression, "SUBSTRING requires at least 2 arguments")
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, NewError(KindTypeCast, "SUBSTRING requires a string first argument, got %T", args[0])
	}
	start, ok := asInt(args[1])
	if !ok {
		return nil, NewError(KindTypeCast, "SUBSTRING requires a numeric start, got %T", args[1])
	}
	begin := int(start) - 1
	if begin < 0 {
		begin = 0
	}
	if begin > len(s) {
		return "", nil
	}
	end := len(s)
	if len(args) >= 3 {
		length, ok := asInt(args[2])
		if !ok {
			return nil, NewError(KindTypeCast, "SUBSTRING requires a numeric length, got %T", args[2])
		}
		if begin+int(length) < end {
			end = begin + int(length)
		}
	}
	if end < begin {
		end = begin
	}
	return s[begin:end], nil
}
