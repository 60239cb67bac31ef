package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubStore struct {
	inserted []Event
	err      error
}

func (s *stubStore) InsertDomainEvent(_ context.Context, topic, billID string, payload []byte) (Event, error) {
	if s.err != nil {
		return Event{}, s.err
	}
	ev := Event{
		ID:         "evt-1",
		Topic:      topic,
		BillID:     billID,
		Payload:    append(json.RawMessage(nil), payload...),
		OccurredAt: time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC),
	}
	s.inserted = append(s.inserted, ev)
	return ev, nil
}

type captureNotifier struct {
	events []Event
	err    error
}

func (n *captureNotifier) Notify(_ context.Context, ev Event) error {
	n.events = append(n.events, ev)
	return n.err
}

func TestBusEmitPersistsAndNotifies(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	bus := &Bus{Store: store, Notifiers: []Notifier{notifier}}

	ev, err := bus.Emit(context.Background(), TopicPairFormed, "bill-1", map[string]string{"productCode": "P1"})
	require.NoError(t, err)
	require.Equal(t, TopicPairFormed, ev.Topic)
	require.Equal(t, "bill-1", ev.BillID)
	require.JSONEq(t, `{"productCode":"P1"}`, string(ev.Payload))
	require.Len(t, notifier.events, 1)
}

func TestBusEmitNilPayloadBecomesEmptyObject(t *testing.T) {
	store := &stubStore{}
	bus := &Bus{Store: store}

	ev, err := bus.Emit(context.Background(), TopicBillOpened, "bill-2", nil)
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(ev.Payload))
}

func TestBusEmitValidation(t *testing.T) {
	bus := &Bus{Store: &stubStore{}}

	_, err := bus.Emit(context.Background(), "  ", "bill-1", nil)
	require.Error(t, err)

	_, err = bus.Emit(context.Background(), TopicBillOpened, "", nil)
	require.Error(t, err)

	_, err = bus.Emit(context.Background(), TopicBillOpened, "bill-1", []byte("not json"))
	require.Error(t, err)
}

func TestBusEmitNotifierErrorsAreJoined(t *testing.T) {
	store := &stubStore{}
	notifyErr := errors.New("boom")
	bus := &Bus{Store: store, Notifiers: []Notifier{&captureNotifier{err: notifyErr}}}

	_, err := bus.Emit(context.Background(), TopicLineVoided, "bill-3", nil)
	require.ErrorIs(t, err, notifyErr)
	require.Len(t, store.inserted, 1)
}
