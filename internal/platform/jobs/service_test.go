package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueRunsJobAndRecordsResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := New(nil, 4)
	svc.Start(ctx)

	svc.Enqueue("payslip_delivery", func(context.Context) (any, error) {
		return map[string]int{"sent": 3}, nil
	})
	svc.Enqueue("payslip_delivery", func(context.Context) (any, error) {
		return nil, errors.New("smtp down")
	})
	svc.Wait()

	recent := svc.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, StatusFailed, recent[0].Status)
	assert.Equal(t, "smtp down", recent[0].Error)
	assert.Equal(t, StatusCompleted, recent[1].Status)
}

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	svc := New(nil, 1)
	svc.Enqueue("a", func(context.Context) (any, error) { return nil, nil })
	svc.Enqueue("b", func(context.Context) (any, error) { return nil, nil })

	svc.Start(context.Background())
	svc.Wait()
	assert.Len(t, svc.Recent(), 1)
}

func TestRunNowReturnsDetails(t *testing.T) {
	svc := New(nil, 1)
	out, err := svc.RunNow(context.Background(), "x", func(context.Context) (any, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, out)
}
