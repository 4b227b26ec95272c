// Copyright (c) 2025 Vladyslav Kazantsev
// SPDX-License-Identifier: MIT
package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewBatchResult(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	start := time.Now().UTC()
	end := start.Add(time.Second)
	// Completion order differs from line order on purpose.
	lines := []*LineResult{
		{Index: 2, Status: StatusCompleted},
		{Index: 0, Status: StatusFailed},
		{Index: 3, Status: StatusCanceled},
		{Index: 1, Status: StatusCompleted},
	}

	// --- Act ---
	result := NewBatchResult(start, end, lines, nil, StatusCompleted)

	// --- Assert ---
	require.Equal(t, 4, result.Total)
	require.Equal(t, 2, result.Completed)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, 1, result.Canceled)
	for i, line := range result.Lines {
		require.Equal(t, i, line.Index, "lines must be sorted ascending by index")
	}
	require.NotNil(t, result.Aggregation, "a nil aggregation is replaced with an empty one")
	// The input slice's order is left alone.
	require.Equal(t, 2, lines[0].Index)
}

func TestEmptyAggregationResult(t *testing.T) {
	t.Parallel()

	aggr := EmptyAggregationResult()

	require.NotNil(t, aggr.Output)
	require.NotNil(t, aggr.Metrics)
	require.NotNil(t, aggr.Errors)
	require.Empty(t, aggr.Output)
}
