package mindb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEvalArithIntegerPromotion(t *testing.T) {
	v, err := evalArith(OpAdd, int64(1), int64(2))
	require.NoError(t, err)
	require.Equal(t, int64(3), v, "int64 + int64 stays integral")

	v, err = evalArith(OpAdd, int64(1), 2.5)
	require.NoError(t, err)
	require.Equal(t, 3.5, v, "mixing in a float widens the result")
}

func TestEvalArithNullPropagates(t *testing.T) {
	v, err := evalArith(OpAdd, nil, int64(1))
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestEvalArithDivideByZero(t *testing.T) {
	_, err := evalArith(OpDivide, int64(4), int64(0))
	require.Error(t, err)
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	require.Equal(t, KindDivideByZero, ee.Kind)
}

func TestEvalArithRemainderByZero(t *testing.T) {
	_, err := evalArith(OpRemainder, int64(4), int64(0))
	require.Error(t, err)
}

func TestEvalArithPowerZeroZero(t *testing.T) {
	_, err := evalArith(OpPower, 0.0, 0.0)
	require.Error(t, err)
}

func TestApplyIntervalMonthEndClamp(t *testing.T) {
	base := time.Date(2020, time.January, 31, 0, 0, 0, 0, time.UTC)
	got := applyInterval(base, Interval{Months: 1}, true)
	require.Equal(t, time.Date(2020, time.February, 29, 0, 0, 0, 0, time.UTC), got,
		"Jan 31 + 1 month clamps to Feb's last day in a leap year")
}

func TestCompareScalarsCrossFamilyIsTypeCastError(t *testing.T) {
	_, err := CompareScalars(int64(1), "x")
	require.Error(t, err)
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	require.Equal(t, KindTypeCast, ee.Kind)
}

func TestParseIntervalGrammar(t *testing.T) {
	iv, err := ParseInterval("1 month")
	require.NoError(t, err)
	require.Equal(t, 1, iv.Months)

	iv, err = ParseInterval("3 days")
	require.NoError(t, err)
	require.Equal(t, 3, iv.Days)

	_, err = ParseInterval("garbage")
	require.Error(t, err)
}
