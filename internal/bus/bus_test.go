package bus

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
)

func TestNew_RequiresBrokers(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNew_DefaultsTransactionalIDAndRetry(t *testing.T) {
	b, err := New(Config{Brokers: []string{"localhost:9092"}})
	assert.NoError(t, err)
	defer b.Close()

	assert.Equal(t, "recruiter-pipeline-producer", b.cfg.TransactionalID)
	assert.Equal(t, domain.DefaultRetryConfig().MaxDeliveries, b.cfg.Retry.MaxDeliveries)
}

func TestNew_PreservesExplicitTransactionalID(t *testing.T) {
	b, err := New(Config{Brokers: []string{"localhost:9092"}, TransactionalID: "custom-id"})
	assert.NoError(t, err)
	defer b.Close()

	assert.Equal(t, "custom-id", b.cfg.TransactionalID)
}

func TestNew_DefaultsMaxPayload(t *testing.T) {
	b, err := New(Config{Brokers: []string{"localhost:9092"}})
	assert.NoError(t, err)
	defer b.Close()

	assert.Equal(t, defaultMaxPayloadBytes, b.cfg.MaxPayloadBytes)
}

func TestPublish_RejectsOversizePayload(t *testing.T) {
	b, err := New(Config{Brokers: []string{"localhost:9092"}, MaxPayloadBytes: 64})
	assert.NoError(t, err)
	defer b.Close()

	env := domain.Envelope{
		MessageID:     "msg-1",
		CorrelationID: "job-1",
		Subject:       domain.SubjectJobJDSubmitted,
		Payload:       bytes.Repeat([]byte("x"), 65),
	}
	err = b.Publish(context.Background(), domain.SubjectJobJDSubmitted, env)
	assert.ErrorIs(t, err, domain.ErrPublishRejected)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument, "oversize must classify as permanent")
}

func TestPublish_AcceptsPayloadAtLimit(t *testing.T) {
	b, err := New(Config{Brokers: []string{"localhost:9092"}, MaxPayloadBytes: 64})
	assert.NoError(t, err)
	defer b.Close()

	env := domain.Envelope{Payload: bytes.Repeat([]byte("x"), 64)}
	assert.NoError(t, b.checkPayload(env))
}
