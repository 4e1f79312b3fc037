package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptContext_CompareVersion(t *testing.T) {
	sc := NewScriptContext("1.2.3")

	got, err := sc.CompareVersion("1.2.3")
	require.NoError(t, err)
	assert.Equal(t, 0, got)

	got, err = sc.CompareVersion("1.0.0")
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	got, err = sc.CompareVersion("2.0.0")
	require.NoError(t, err)
	assert.Equal(t, -1, got)

	_, err = sc.CompareVersion("not-a-version")
	assert.Error(t, err)
}

func TestScriptContext_SleepHonorsCancellation(t *testing.T) {
	sc := NewScriptContext("1.0.0")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sc.Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)

	start := time.Now()
	require.NoError(t, sc.Sleep(context.Background(), 5*time.Millisecond))
	assert.Less(t, time.Since(start), time.Second)
}
