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

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/innovationmech/atelier/internal/atelier/interfaces"
	"github.com/innovationmech/atelier/pkg/logger"
)

// Job is a mail delivery request published to NATS.
type Job struct {
	ID        string                 `json:"id"`
	Recipient string                 `json:"recipient"`
	Template  string                 `json:"template"`
	Data      map[string]interface{} `json:"data"`
	CreatedAt time.Time              `json:"created_at"`
}

// publisher is the subset of *nats.Conn used by NATSNotifier.
type publisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// NATSNotifier implements interfaces.Notifier by publishing mail jobs.
// A publish succeeds once the server acknowledged the flush.
type NATSNotifier struct {
	conn    publisher
	subject string
	logger  *zap.Logger
}

// NewNATSNotifier creates a notifier publishing to subject.
func NewNATSNotifier(conn *nats.Conn, subject string) *NATSNotifier {
	return newNATSNotifier(conn, subject)
}

func newNATSNotifier(conn publisher, subject string) *NATSNotifier {
	return &NATSNotifier{conn: conn, subject: subject, logger: logger.GetLogger().Named("notify")}
}

// Send implements interfaces.Notifier.
func (n *NATSNotifier) Send(ctx context.Context, recipient, template string, data map[string]interface{}) error {
	job := Job{
		ID:        uuid.NewString(),
		Recipient: recipient,
		Template:  template,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode mail job: %w", err)
	}
	if err := n.conn.Publish(n.subject, payload); err != nil {
		return fmt.Errorf("publish mail job: %w", err)
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush mail job: %w", err)
	}
	n.logger.Debug("mail job published", zap.String("job_id", job.ID), zap.String("template", template))
	return nil
}

// Relay consumes mail jobs from NATS and delivers them with a Notifier.
type Relay struct {
	conn    *nats.Conn
	subject string
	queue   string
	sender  interfaces.Notifier
	timeout time.Duration
	sub     *nats.Subscription
	logger  *zap.Logger
}

// NewRelay creates a relay. Relays sharing queue split the jobs between them.
func NewRelay(conn *nats.Conn, subject, queue string, sender interfaces.Notifier) *Relay {
	return &Relay{
		conn:    conn,
		subject: subject,
		queue:   queue,
		sender:  sender,
		timeout: 30 * time.Second,
		logger:  logger.GetLogger().Named("mail-relay"),
	}
}

// Start subscribes to the job subject.
func (r *Relay) Start() error {
	if r.conn == nil {
		return errors.New("relay requires a nats connection")
	}
	sub, err := r.conn.QueueSubscribe(r.subject, r.queue, func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.Handle(ctx, msg.Data); err != nil {
			r.logger.Error("mail job failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", r.subject, err)
	}
	r.sub = sub
	r.logger.Info("mail relay started", zap.String("subject", r.subject), zap.String("queue", r.queue))
	return nil
}

// Handle delivers one encoded job.
func (r *Relay) Handle(ctx context.Context, data []byte) error {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return fmt.Errorf("decode mail job: %w", err)
	}
	if err := r.sender.Send(ctx, job.Recipient, job.Template, job.Data); err != nil {
		return fmt.Errorf("deliver job %s: %w", job.ID, err)
	}
	return nil
}

// Stop drains the subscription.
func (r *Relay) Stop() error {
	if r.sub == nil {
		return nil
	}
	return r.sub.Drain()
}
