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

package logger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger(t *testing.T) {
	originalLogger := Logger

	defer func() {
		Logger = originalLogger
	}()

	ResetLogger()
	InitLogger()

	require.NotNil(t, Logger)
	assert.NotNil(t, Logger.Core())
}

func TestInitLoggerMultipleCalls(t *testing.T) {
	originalLogger := Logger

	defer func() {
		Logger = originalLogger
	}()

	ResetLogger()

	InitLogger()
	firstLogger := Logger

	InitLogger()
	secondLogger := Logger

	require.NotNil(t, firstLogger)
	assert.Same(t, firstLogger, secondLogger)
}

func TestGetLoggerInitializesLazily(t *testing.T) {
	originalLogger := Logger

	defer func() {
		Logger = originalLogger
	}()

	ResetLogger()
	assert.Nil(t, Logger)

	l := GetLogger()
	require.NotNil(t, l)
	assert.NotNil(t, GetSugaredLogger())
}

func TestSetLevel(t *testing.T) {
	defer ResetLogger()

	tests := []struct {
		name    string
		level   string
		want    string
		wantErr bool
	}{
		{name: "debug", level: "debug", want: "debug"},
		{name: "warn", level: "warn", want: "warn"},
		{name: "upper case", level: "ERROR", want: "error"},
		{name: "invalid", level: "verbose", want: "error", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SetLevel(tt.level)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, GetLevel())
		})
	}
}

func TestGetLoggerConcurrentAccess(t *testing.T) {
	originalLogger := Logger

	defer func() {
		Logger = originalLogger
	}()

	ResetLogger()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			GetLogger().Debug("concurrent access")
		}()
	}
	wg.Wait()
	assert.NotNil(t, Logger)
}
