package dbnotify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadRoundTrip(t *testing.T) {
	payload, err := Payload("allocation_history", "run-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"table":"allocation_history","key":"run-1"}`, payload)

	event, err := parse(payload)
	require.NoError(t, err)
	assert.Equal(t, &NotificationEvent{Table: "allocation_history", Key: "run-1"}, event)

	assert.Equal(t, "settings_changes", Channel("settings"))
}

func TestParseRejectsJunk(t *testing.T) {
	_, err := parse("not json")
	assert.ErrorContains(t, err, "can't unmarshal")
	_, err = parse(`{"key":"x"}`)
	assert.ErrorContains(t, err, "names no table")
}

func TestDispatch(t *testing.T) {
	var got []string
	record := func(_ context.Context, e *NotificationEvent) {
		got = append(got, e.Table+":"+e.Key)
	}
	cl, err := NewDBNotifyListener(nil,
		ConsumerFunc{Table: "settings", Func: record},
		ConsumerFunc{Table: "allocation_history", Func: record},
	)
	require.NoError(t, err)

	ctx := context.Background()
	cl.dispatch(ctx, &NotificationEvent{Table: "settings"})
	cl.dispatch(ctx, &NotificationEvent{Table: "participants", Key: "p1"})
	cl.dispatch(ctx, &NotificationEvent{Table: "allocation_history", Key: "r1"})
	assert.Equal(t, []string{"settings:", "allocation_history:r1"}, got)
}

func TestConsumeEventsStopsWhenClosed(t *testing.T) {
	var n int
	cl, err := NewDBNotifyListener(nil, ConsumerFunc{Table: "settings", Func: func(context.Context, *NotificationEvent) { n++ }})
	require.NoError(t, err)

	ch := make(chan *NotificationEvent, 2)
	ch <- &NotificationEvent{Table: "settings"}
	ch <- &NotificationEvent{Table: "settings"}
	close(ch)
	cl.consumeEvents(context.Background(), ch)
	assert.Equal(t, 2, n)
}

func TestDuplicateConsumers(t *testing.T) {
	noop := func(context.Context, *NotificationEvent) {}
	_, err := NewDBNotifyListener(nil, ConsumerFunc{Table: "settings", Func: noop}, ConsumerFunc{Table: "settings", Func: noop})
	assert.ErrorContains(t, err, "duplicate consumer for table settings")
}
