package mindb

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// widerNumericType picks the wider of two numeric base types per the
// precedence rule in spec.md §4.4.
func widerNumericType(a, b BaseType) BaseType {
	if numericRank[a] >= numericRank[b] {
		return a
	}
	return b
}

func asFloat(v Value) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case int:
		return float64(x), true
	}
	return 0, false
}

func asInt(v Value) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	}
	return 0, false
}

// evalArith implements spec.md §4.4: null operands yield null; numeric
// operands promote to the wider type; temporal +/- interval and
// date-date/time-time/datetime-datetime differences are supported;
// DIVIDE/REMAINDER by zero fail with DivideByZero; POWER(0,0) fails with
// Expression.
func evalArith(op ArithOp, l, r Value) (Value, error) {
	if l == nil || r == nil {
		return nil, nil
	}

	if lt, lok := l.(time.Time); lok {
		return evalTemporalArith(op, lt, r)
	}
	if rt, rok := r.(time.Time); rok && op == OpAdd {
		return evalTemporalArith(op, rt, l)
	}
	if li, lok := l.(Interval); lok {
		if rt, rok := r.(time.Time); rok && op == OpAdd {
			return applyInterval(rt, li, true), nil
		}
	}

	lf, lok := asFloat(l)
	rf, rok := asFloat(r)
	if !lok || !rok {
		return nil, NewError(KindTypeCast, "arithmetic requires numeric operands, got %T and %T", l, r)
	}

	switch op {
	case OpAdd:
		return combineNumeric(l, r, lf+rf)
	case OpSubtract:
		return combineNumeric(l, r, lf-rf)
	case OpMultiply:
		return combineNumeric(l, r, lf*rf)
	case OpDivide:
		if rf == 0 {
			return nil, NewError(KindDivideByZero, "division by zero")
		}
		if li, ok := l.(int64); ok {
			if ri, ok := r.(int64); ok {
				return li / ri, nil
			}
		}
		return combineNumeric(l, r, lf/rf)
	case OpRemainder:
		if rf == 0 {
			return nil, NewError(KindDivideByZero, "modulo by zero")
		}
		li, lIsInt := asInt(l)
		ri, rIsInt := asInt(r)
		if lIsInt && rIsInt {
			return li % ri, nil
		}
		return combineNumeric(l, r, float64(int64(lf)%int64(rf)))
	case OpPower:
		if lf == 0 && rf == 0 {
			return nil, NewError(KindExpression, "POWER(0,0) is undefined")
		}
		return powFloat(lf, rf), nil
	}
	return nil, NewError(KindExpression, "unrecognized arithmetic operator")
}

func powFloat(base, exp float64) float64 {
	return math.Pow(base, exp)
}

// combineNumeric returns the sum/etc already computed in float64,
// narrowed back to int64 when both operands were integral and the wider
// type of the pair is itself integral (so 1+2 stays INTEGER, not DOUBLE).
func combineNumeric(l, r Value, result float64) (Value, error) {
	_, lInt := l.(int64)
	_, rInt := r.(int64)
	if lInt && rInt && result == float64(int64(result)) {
		return int64(result), nil
	}
	return result, nil
}

func negateNumeric(v Value) (Value, error) {
	switch x := v.(type) {
	case int64:
		return -x, nil
	case float64:
		return -x, nil
	}
	return nil, NewError(KindTypeCast, "cannot negate %T", v)
}

// evalTemporalArith implements date-date/time-time/datetime-datetime
// differences and temporal +/- interval per spec.md §4.4.
func evalTemporalArith(op ArithOp, t time.Time, r Value) (Value, error) {
	if rt, ok := r.(time.Time); ok {
		if op != OpSubtract {
			return nil, NewError(KindExpression, "temporal - temporal is the only supported temporal/temporal operation")
		}
		d := t.Sub(rt)
		return Interval{Seconds: int(d.Seconds())}, nil
	}
	if iv, ok := r.(Interval); ok {
		switch op {
		case OpAdd:
			return applyInterval(t, iv, true), nil
		case OpSubtract:
			return applyInterval(t, iv, false), nil
		}
		return nil, NewError(KindExpression, "temporal values only support + and - with an interval")
	}
	return nil, NewError(KindTypeCast, "cannot combine temporal value with %T", r)
}

// applyInterval adds (or, if add is false, subtracts) iv to t. Month/year
// arithmetic that lands past the target month's last day clamps to that
// month's last day — the chosen rule for spec.md §9's open question,
// matching spec.md §8 scenario 6 (2020-01-31 + 1 month = 2020-02-29).
func applyInterval(t time.Time, iv Interval, add bool) time.Time {
	sign := 1
	if !add {
		sign = -1
	}
	months := sign * (iv.Years*12 + iv.Months)
	if months != 0 {
		year, month, day := t.Date()
		totalMonths := int(month) - 1 + months
		newYear := year + totalMonths/12
		newMonth := totalMonths % 12
		if newMonth < 0 {
			newMonth += 12
			newYear--
		}
		lastDay := daysInMonth(newYear, time.Month(newMonth+1))
		if day > lastDay {
			day = lastDay
		}
		t = time.Date(newYear, time.Month(newMonth+1), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	}
	d := time.Duration(sign) * (time.Duration(iv.Days)*24*time.Hour +
		time.Duration(iv.Hours)*time.Hour +
		time.Duration(iv.Minutes)*time.Minute +
		time.Duration(iv.Seconds)*time.Second)
	return t.Add(d)
}

func daysInMonth(year int, month time.Month) int {
	firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC)
	lastOfThis := firstOfNext.Add(-24 * time.Hour)
	return lastOfThis.Day()
}

// evalCompare implements spec.md §4.4's comparison coercion: numeric
// family uses the same widening rule as arithmetic; strings compare as
// strings; booleans compare as booleans; mixed families are a cast
// error. Null handling for the general comparator is spec.md §4.5's
// comparator; this function is for scalar predicate evaluation where a
// null operand already short-circuited to null before reaching here.
func evalCompare(op CompareOp, l, r Value) (Value, error) {
	if l == nil || r == nil {
		return nil, nil
	}
	cmp, err := CompareScalars(l, r)
	if err != nil {
		return nil, err
	}
	switch op {
	case OpEQ:
		return cmp == 0, nil
	case OpNE:
		return cmp != 0, nil
	case OpLT:
		return cmp < 0, nil
	case OpLE:
		return cmp <= 0, nil
	case OpGT:
		return cmp > 0, nil
	case OpGE:
		return cmp >= 0, nil
	}
	return nil, NewError(KindExpression, "unrecognized comparison operator")
}

// CompareScalars orders two non-null values of the same comparison
// family (numeric, string, boolean, or temporal), failing with
// TypeCast for cross-family comparisons per spec.md §4.4.
func CompareScalars(l, r Value) (int, error) {
	if lf, lok := asFloat(l); lok {
		if rf, rok := asFloat(r); rok {
			switch {
			case lf < rf:
				return -1, nil
			case lf > rf:
				return 1, nil
			default:
				return 0, nil
			}
		}
		return 0, NewError(KindTypeCast, "cannot compare numeric with %T", r)
	}
	if ls, lok := l.(string); lok {
		if rs, rok := r.(string); rok {
			return strings.Compare(ls, rs), nil
		}
		return 0, NewError(KindTypeCast, "cannot compare string with %T", r)
	}
	if lb, lok := l.(bool); lok {
		if rb, rok := r.(bool); rok {
			switch {
			case lb == rb:
				return 0, nil
			case !lb:
				return -1, nil
			default:
				return 1, nil
			}
		}
		return 0, NewError(KindTypeCast, "cannot compare boolean with %T", r)
	}
	if lt, lok := l.(time.Time); lok {
		if rt, rok := r.(time.Time); rok {
			switch {
			case lt.Before(rt):
				return -1, nil
			case lt.After(rt):
				return 1, nil
			default:
				return 0, nil
			}
		}
		return 0, NewError(KindTypeCast, "cannot compare temporal with %T", r)
	}
	return 0, NewError(KindTypeCast, "cannot compare %T with %T", l, r)
}

func parseIntLiteral(s string) (Value, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return nil, NewError(KindTypeCast, "cannot parse %q as integer", s)
	}
	return n, nil
}

func parseFloatLiteral(s string) (Value, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, NewError(KindTypeCast, "cannot parse %q as a number", s)
	}
	return f, nil
}

// dateLayouts and timeLayouts enumerate the accepted formats from
// spec.md §4.4: ISO-8601 plus "dd MMM yyyy"/"MMM dd yyyy" for dates, and
// ISO-8601 plus "h:mm[:ss[.SSS]][ AM/PM]" for times.
var dateLayouts = []string{"2006-01-02", "02 Jan 2006", "Jan 02 2006"}
var timeLayouts = []string{"15:04:05.000", "15:04:05", "15:04", "3:04:05 PM", "3:04 PM"}
var datetimeLayouts = []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", time.RFC3339}

func parseTemporal(s string, base BaseType) (Value, error) {
	s = strings.TrimSpace(s)
	var layouts []string
	switch base {
	case DATE:
		layouts = dateLayouts
	case TIME:
		layouts = timeLayouts
	default:
		layouts = datetimeLayouts
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, NewError(KindTypeCast, "cannot parse %q as %s", s, baseTypeName(base))
}

// ParseInterval parses spec.md §4.4's "<signed-int> <unit>[s]" grammar.
func ParseInterval(s string) (Interval, error) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) != 2 {
		return Interval{}, NewError(KindTypeCast, "interval literal must be '<signed-int> <unit>', got %q", s)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return Interval{}, NewError(KindTypeCast, "invalid interval magnitude %q", fields[0])
	}
	unit := strings.ToLower(strings.TrimSuffix(fields[1], "s"))
	var iv Interval
	switch unit {
	case "year":
		iv.Years = n
	case "month":
		iv.Months = n
	case "week":
		iv.Days = n * 7
	case "day":
		iv.Days = n
	case "hour":
		iv.Hours = n
	case "minute":
		iv.Minutes = n
	case "second":
		iv.Seconds = n
	default:
		return Interval{}, NewError(KindTypeCast, "unknown interval unit %q", fields[1])
	}
	return iv, nil
}
