// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/innovationmech/atelier/pkg/workflow"
)

type mockChannel struct {
	mock.Mock
}

func (m *mockChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return m.Called(name, kind, durable).Error(0)
}

func (m *mockChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return m.Called(exchange, key, msg).Error(0)
}

func (m *mockChannel) Close() error {
	return m.Called().Error(0)
}

func TestAMQPPublisher(t *testing.T) {
	ch := &mockChannel{}
	ch.On("ExchangeDeclare", "atelier.workflow", amqp.ExchangeTopic, true).Return(nil)
	ch.On("Publish", "atelier.workflow", "workflow.succeeded", mock.MatchedBy(func(msg amqp.Publishing) bool {
		var decoded workflow.Event
		if err := json.Unmarshal(msg.Body, &decoded); err != nil {
			return false
		}
		return decoded.InstanceID == "inst-1" &&
			msg.DeliveryMode == amqp.Persistent &&
			msg.Type == "workflow.succeeded" &&
			msg.Headers["workflow"] == "ReserveSlot"
	})).Return(nil).Once()
	ch.On("Close").Return(nil).Once()

	p, err := newAMQPPublisher(ch, "atelier.workflow")
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Publish(context.Background(), sampleEvent()), ErrPublisherClosed)
	ch.AssertExpectations(t)
}

func TestAMQPPublisher_Errors(t *testing.T) {
	t.Run("declare failure closes the channel", func(t *testing.T) {
		ch := &mockChannel{}
		ch.On("ExchangeDeclare", "x", amqp.ExchangeTopic, true).Return(errors.New("access refused"))
		ch.On("Close").Return(nil).Once()

		_, err := newAMQPPublisher(ch, "x")
		assert.ErrorContains(t, err, "access refused")
		ch.AssertExpectations(t)
	})

	t.Run("publish failure is returned", func(t *testing.T) {
		ch := &mockChannel{}
		ch.On("ExchangeDeclare", "x", amqp.ExchangeTopic, true).Return(nil)
		ch.On("Publish", "x", "workflow.succeeded", mock.Anything).Return(amqp.ErrClosed)

		p, err := newAMQPPublisher(ch, "x")
		require.NoError(t, err)
		assert.ErrorIs(t, p.Publish(context.Background(), sampleEvent()), amqp.ErrClosed)
	})

	t.Run("config validation", func(t *testing.T) {
		_, err := NewAMQPPublisher(AMQPConfig{Exchange: "x"})
		assert.Error(t, err)
		_, err = NewAMQPPublisher(AMQPConfig{URL: "amqp://localhost"})
		assert.Error(t, err)
	})
}
