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
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/innovationmech/atelier/pkg/workflow"
)

func TestTemplates_Render(t *testing.T) {
	templates, err := LoadTemplates()
	require.NoError(t, err)

	tests := []struct {
		name        string
		template    string
		data        map[string]interface{}
		wantSubject string
		wantBody    string
	}{
		{
			name:        "client booking",
			template:    TemplateBookingClient,
			data:        map[string]interface{}{"Name": "Ada", "Resource": "room-1", "Date": "2024-06-01", "Hour": 14},
			wantSubject: "Your booking on 2024-06-01 at 14:00",
			wantBody:    "room-1",
		},
		{
			name:        "admin booking escapes input",
			template:    TemplateBookingAdmin,
			data:        map[string]interface{}{"Name": "<b>Ada</b>", "Resource": "room-1", "Date": "2024-06-01", "Hour": 9, "Email": "ada@example.com"},
			wantSubject: "New booking: room-1 2024-06-01 9:00",
			wantBody:    "&lt;b&gt;Ada&lt;/b&gt;",
		},
		{
			name:        "delivery",
			template:    TemplateDelivery,
			data:        map[string]interface{}{"Name": "Ada", "Title": "Field Notes", "DownloadURL": "https://cdn.example.com/doc.pdf", "Amount": "12.00", "Currency": "EUR", "OrderID": "o-1"},
			wantSubject: "Your download: Field Notes",
			wantBody:    "https://cdn.example.com/doc.pdf",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, body, err := templates.Render(tt.template, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSubject, subject)
			assert.Contains(t, body, tt.wantBody)
		})
	}

	_, _, err = templates.Render("missing", nil)
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestSMTPNotifier_Send(t *testing.T) {
	templates, err := LoadTemplates()
	require.NoError(t, err)
	n, err := NewSMTPNotifier(SMTPConfig{Host: "mail.example.com", Port: 587, Username: "u", Password: "p", From: "atelier@example.com"}, templates)
	require.NoError(t, err)
	n.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

	var gotAddr string
	var gotTo []string
	var gotMsg string
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		assert.NotNil(t, a)
		assert.Equal(t, "atelier@example.com", from)
		return nil
	}

	err = n.Send(context.Background(), "ada@example.com", TemplateBookingClient,
		map[string]interface{}{"Name": "Ada", "Resource": "room-1", "Date": "2024-06-01", "Hour": 14})
	require.NoError(t, err)

	assert.Equal(t, "mail.example.com:587", gotAddr)
	assert.Equal(t, []string{"ada@example.com"}, gotTo)
	assert.True(t, strings.HasPrefix(gotMsg, "From: atelier@example.com\r\nTo: ada@example.com\r\n"))
	assert.Contains(t, gotMsg, "Content-Type: text/html")
	assert.Contains(t, gotMsg, "Hello Ada")
}

func TestSMTPNotifier_Errors(t *testing.T) {
	templates, err := LoadTemplates()
	require.NoError(t, err)
	n, err := NewSMTPNotifier(SMTPConfig{Host: "mail.example.com", Port: 25, From: "a@example.com"}, templates)
	require.NoError(t, err)
	n.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("421 try again later") }

	err = n.Send(context.Background(), "ada@example.com", TemplateDelivery, map[string]interface{}{})
	require.Error(t, err)
	assert.False(t, workflow.IsPermanent(err))

	err = n.Send(context.Background(), "", TemplateDelivery, nil)
	assert.True(t, workflow.IsPermanent(err))

	err = n.Send(context.Background(), "ada@example.com", "missing", nil)
	assert.True(t, workflow.IsPermanent(err))

	_, err = NewSMTPNotifier(SMTPConfig{}, templates)
	assert.Error(t, err)
}

type fakePublisher struct {
	subject  string
	payload  []byte
	flushErr error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subject, f.payload = subject, data
	return nil
}

func (f *fakePublisher) FlushWithContext(context.Context) error { return f.flushErr }

func TestNATSNotifier_Send(t *testing.T) {
	pub := &fakePublisher{}
	n := newNATSNotifier(pub, "atelier.mail")

	require.NoError(t, n.Send(context.Background(), "ada@example.com", TemplateDelivery, map[string]interface{}{"Title": "Field Notes"}))
	assert.Equal(t, "atelier.mail", pub.subject)

	var job Job
	require.NoError(t, json.Unmarshal(pub.payload, &job))
	assert.Equal(t, "ada@example.com", job.Recipient)
	assert.Equal(t, TemplateDelivery, job.Template)
	assert.Equal(t, "Field Notes", job.Data["Title"])
	assert.NotEmpty(t, job.ID)

	pub.flushErr = errors.New("nats: timeout")
	assert.Error(t, n.Send(context.Background(), "ada@example.com", TemplateDelivery, nil))
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Send(ctx context.Context, recipient, template string, data map[string]interface{}) error {
	return m.Called(ctx, recipient, template, data).Error(0)
}

func TestRelay_Handle(t *testing.T) {
	sender := new(mockNotifier)
	sender.On("Send", mock.Anything, "ada@example.com", TemplateBookingAdmin, mock.Anything).Return(nil).Once()
	relay := NewRelay(nil, "atelier.mail", "mailers", sender)

	payload, err := json.Marshal(Job{ID: "j-1", Recipient: "ada@example.com", Template: TemplateBookingAdmin})
	require.NoError(t, err)
	require.NoError(t, relay.Handle(context.Background(), payload))
	sender.AssertExpectations(t)

	assert.Error(t, relay.Handle(context.Background(), []byte("{")))
	assert.Error(t, relay.Start(), "start without a connection")
	assert.NoError(t, relay.Stop())
}
