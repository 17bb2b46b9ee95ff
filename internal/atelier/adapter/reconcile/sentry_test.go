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

package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innovationmech/atelier/pkg/workflow/compensation"
)

func TestSentryReporter_ReportCompensationFailure(t *testing.T) {
	var mu sync.Mutex
	var captured []*sentry.Event

	client, err := sentry.NewClient(sentry.ClientOptions{
		SampleRate: 1.0,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			mu.Lock()
			captured = append(captured, event)
			mu.Unlock()
			return nil
		},
	})
	require.NoError(t, err)
	reporter := NewReporterWithHub(sentry.NewHub(client, sentry.NewScope()))

	reporter.ReportCompensationFailure(context.Background(), compensation.Failure{
		InstanceID: "inst-1",
		Step:       "upload_image",
		Err:        errors.New("asset store unavailable"),
		Attempts:   3,
		At:         time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC),
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, captured, 1)
	event := captured[0]
	assert.Equal(t, sentry.LevelError, event.Level)
	assert.Equal(t, "compensation", event.Tags["component"])
	assert.Equal(t, "upload_image", event.Tags["step"])
	assert.Equal(t, "inst-1", event.Contexts["compensation"]["instance_id"])
	require.NotEmpty(t, event.Exception)
	assert.Contains(t, event.Exception[len(event.Exception)-1].Value, "asset store unavailable")
}

func TestSentryReporter_NilHub(t *testing.T) {
	reporter := NewReporterWithHub(nil)
	assert.NotPanics(t, func() {
		reporter.ReportCompensationFailure(context.Background(), compensation.Failure{Step: "persist", Err: errors.New("x")})
	})
	assert.True(t, reporter.Flush(time.Millisecond))
}
