package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishRunsEveryHandler(t *testing.T) {
	d := NewInMemoryDispatcher()
	var calls []string
	d.Subscribe(EventRequisitionPaid, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	d.Subscribe(EventRequisitionPaid, func(context.Context, Event) error {
		calls = append(calls, "second")
		panic("handler bug")
	})
	d.Subscribe(EventRequisitionPaid, func(context.Context, Event) error {
		calls = append(calls, "third")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventRequisitionPaid})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "handler panic")
	assert.Equal(t, []string{"first", "second", "third"}, calls)
}

func TestPublishIgnoresOtherTypes(t *testing.T) {
	d := NewInMemoryDispatcher()
	called := false
	d.Subscribe(EventRequisitionApproved, func(context.Context, Event) error {
		called = true
		return nil
	})
	require.NoError(t, d.Publish(context.Background(), Event{Type: EventRequisitionRejected}))
	assert.False(t, called)
}
