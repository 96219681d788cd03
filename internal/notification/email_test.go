package notification

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mfadomain "identity-core/internal/mfa/domain"
)

type fakeChannel struct {
	declared   []string
	published  []amqp.Publishing
	keys       []string
	declareErr error
	publishErr error
}

func (c *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	if c.declareErr != nil {
		return amqp.Queue{}, c.declareErr
	}
	c.declared = append(c.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.publishErr != nil {
		return c.publishErr
	}
	c.keys = append(c.keys, exchange+"/"+key)
	c.published = append(c.published, msg)
	return nil
}

func TestQueueMailer_Send(t *testing.T) {
	ch := &fakeChannel{}
	m, err := NewQueueMailer(ch, "identity.notifications.otp")
	require.NoError(t, err)
	assert.Equal(t, []string{"identity.notifications.otp"}, ch.declared)

	msg := OneTimeCode{
		PrincipalID: "alice",
		ChallengeID: "c1",
		Factor:      mfadomain.FactorEmailOTP,
		Destination: "alice@example.com",
		Code:        "654321",
		ExpiresAt:   time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC),
	}
	require.NoError(t, m.Send(context.Background(), msg))
	require.Len(t, ch.published, 1)
	assert.Equal(t, "/identity.notifications.otp", ch.keys[0])
	pub := ch.published[0]
	assert.Equal(t, uint8(amqp.Persistent), pub.DeliveryMode)
	assert.Equal(t, "c1", pub.MessageId)

	var got OneTimeCode
	require.NoError(t, json.Unmarshal(pub.Body, &got))
	assert.Equal(t, msg.Destination, got.Destination)
	assert.Equal(t, mfadomain.FactorEmailOTP, got.Factor)
}

func TestQueueMailer_Errors(t *testing.T) {
	_, err := NewQueueMailer(&fakeChannel{declareErr: assert.AnError}, "q")
	assert.ErrorIs(t, err, assert.AnError)

	m, err := NewQueueMailer(&fakeChannel{publishErr: assert.AnError}, "q")
	require.NoError(t, err)
	assert.ErrorIs(t, m.Send(context.Background(), OneTimeCode{}), assert.AnError)
}
