package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/occupancy-etl/internal/issues"
)

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

var report = issues.Report{
	Kind:  "raw",
	Title: "Data Irregularities Detected - Raw Scrapes (2026-01-17)",
	Body:  "- Scrape gap: 3h0m0s between 10:00 and 13:00",
}

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2026, 1, 17, 14, 0, 0, 0, time.UTC)

	msg, err := serializeToMessage("run-1", report, now)
	require.NoError(t, err)

	assert.Equal(t, []byte("run-1"), msg.Key)
	var payload issueMessage
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "run-1", payload.RunID)
	assert.Equal(t, report.Title, payload.Title)
	assert.Equal(t, report.Body, payload.Body)
	assert.True(t, payload.CreatedAt.Equal(now))

	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "report_kind", msg.Headers[0].Key)
	assert.Equal(t, []byte("raw"), msg.Headers[0].Value)
	assert.Equal(t, "created_at", msg.Headers[1].Key)
	assert.Equal(t, []byte("2026-01-17T14:00:00Z"), msg.Headers[1].Value)
}

func TestPublisher_Submit(t *testing.T) {
	w := &fakeWriter{}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 17, 14, 0, 0, 0, time.UTC))
	p := &Publisher{writer: w, clock: clock, logger: slog.New(slog.DiscardHandler)}

	id, err := p.Submit(context.Background(), report)
	require.NoError(t, err)

	_, err = uuid.Parse(id)
	require.NoError(t, err, "run id is a UUID")
	require.Len(t, w.msgs, 1)
	assert.Equal(t, id, string(w.msgs[0].Key))

	second, err := p.Submit(context.Background(), report)
	require.NoError(t, err)
	assert.NotEqual(t, id, second)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublisher_SubmitError(t *testing.T) {
	p := &Publisher{writer: &fakeWriter{err: assert.AnError}, clock: clockwork.NewFakeClock(), logger: slog.New(slog.DiscardHandler)}

	_, err := p.Submit(context.Background(), report)
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "publish issue report")
}

func TestPublisher_SubmitUnreachable(t *testing.T) {
	tests := []struct {
		name            string
		err             error
		wantUnavailable bool
	}{
		{
			name:            "dial refused",
			err:             &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED},
			wantUnavailable: true,
		},
		{
			name:            "no leader for partition",
			err:             kafkago.WriteErrors{kafkago.LeaderNotAvailable},
			wantUnavailable: true,
		},
		{
			name:            "broker not available",
			err:             kafkago.BrokerNotAvailable,
			wantUnavailable: true,
		},
		{
			name: "message rejected",
			err:  kafkago.MessageSizeTooLarge,
		},
		{
			name: "other failure",
			err:  assert.AnError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Publisher{writer: &fakeWriter{err: tt.err}, clock: clockwork.NewFakeClock(), logger: slog.New(slog.DiscardHandler)}

			_, err := p.Submit(context.Background(), report)
			require.Error(t, err)
			assert.Equal(t, tt.wantUnavailable, errors.Is(err, issues.ErrTrackerUnavailable))
			assert.Contains(t, err.Error(), "publish issue report")
		})
	}
}
