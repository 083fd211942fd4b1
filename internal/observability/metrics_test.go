package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordCurrencySkipsZeroAmounts(t *testing.T) {
	eggsBefore := testutil.ToFloat64(currencyCredited.WithLabelValues("eggs"))
	candiesBefore := testutil.ToFloat64(currencyCredited.WithLabelValues("rare_candies"))

	RecordCredited(0, 3)

	require.Equal(t, eggsBefore, testutil.ToFloat64(currencyCredited.WithLabelValues("eggs")))
	require.Equal(t, candiesBefore+3, testutil.ToFloat64(currencyCredited.WithLabelValues("rare_candies")))
}

func TestRecordWorkoutFinishedMovesWatermark(t *testing.T) {
	ts := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	RecordWorkoutFinished("sensor", ts)
	require.Equal(t, float64(ts.Unix()), testutil.ToFloat64(lastWorkoutGauge))

	RecordWorkoutFinished("sensor", time.Time{})
	require.Equal(t, float64(ts.Unix()), testutil.ToFloat64(lastWorkoutGauge))
}

func TestRecordBalanceAndReconciled(t *testing.T) {
	RecordBalance(2, 5)
	require.Equal(t, 2.0, testutil.ToFloat64(inventoryBalance.WithLabelValues("eggs")))
	require.Equal(t, 5.0, testutil.ToFloat64(inventoryBalance.WithLabelValues("rare_candies")))

	before := testutil.ToFloat64(reconciled)
	RecordReconciled(0)
	RecordReconciled(2)
	require.Equal(t, before+2, testutil.ToFloat64(reconciled))
}
