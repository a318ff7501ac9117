package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
	"github.com/lcalzada-xor/fleetmap/internal/core/ports"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *mockWriter) Close() error {
	return m.Called().Error(0)
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := new(mockWriter)
	p := newPublisher(w, "console-1")
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	var sent []kafka.Message
	w.On("WriteMessages", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).([]kafka.Message) }).
		Return(nil)

	rt := 4.2
	events := []ports.StatusEvent{
		{DeviceID: "firewall:100", Version: 7, Record: domain.TerminalRecord(domain.StatusOnline, &rt, "", at)},
		{DeviceID: "camera:1", Version: 7, Record: domain.TerminalRecord(domain.StatusOffline, nil, "unreachable", at)},
	}
	require.NoError(t, p.Publish(context.Background(), events))

	require.Len(t, sent, 2)
	assert.Equal(t, "firewall:100", string(sent[0].Key))
	assert.Equal(t, at, sent[0].Time)
	assert.Equal(t, "console-1", string(sent[0].Headers[0].Value))
	assert.Equal(t, "7", string(sent[0].Headers[1].Value))

	var decoded ports.StatusEvent
	require.NoError(t, json.Unmarshal(sent[1].Value, &decoded))
	assert.Equal(t, "camera:1", decoded.DeviceID)
	assert.Equal(t, domain.StatusOffline, decoded.Record.Status)
	assert.Equal(t, "unreachable", decoded.Record.Error)
	w.AssertExpectations(t)
}

func TestKafkaPublisher_Empty(t *testing.T) {
	w := new(mockWriter)
	p := newPublisher(w, "console-1")

	assert.NoError(t, p.Publish(context.Background(), nil))
	w.AssertNotCalled(t, "WriteMessages", mock.Anything, mock.Anything)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	w := new(mockWriter)
	p := newPublisher(w, "console-1")
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	err := p.Publish(context.Background(), []ports.StatusEvent{{DeviceID: "camera:1"}})
	assert.ErrorContains(t, err, "broker down")
}

func TestKafkaPublisher_Close(t *testing.T) {
	w := new(mockWriter)
	w.On("Close").Return(nil)
	assert.NoError(t, newPublisher(w, "x").Close())
	w.AssertExpectations(t)
}
