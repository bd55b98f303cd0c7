/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// RequireSamplesCountInHistogram asserts how many observations the histogram has.
// Counters and gauges are easier checked with prometheus/testutil.ToFloat64.
func RequireSamplesCountInHistogram(t require.TestingT, hist prometheus.Histogram, wantSamplesCount int) {
	markHelper(t)
	var m dto.Metric
	require.NoError(t, hist.Write(&m))
	require.EqualValues(t, wantSamplesCount, m.GetHistogram().GetSampleCount())
}
