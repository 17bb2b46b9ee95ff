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

package config

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/innovationmech/atelier/pkg/logger"
)

// ErrReloaderStarted is returned when Start is called twice.
var ErrReloaderStarted = errors.New("hot reloader already started")

// Change describes the result of a reload triggered by a file event.
type Change struct {
	// File is the file whose event triggered the reload.
	File string
	// Layer is the configuration layer File belongs to.
	Layer Layer
	// Settings holds the merged settings after the reload. Nil when Err is set.
	Settings map[string]interface{}
	// Err is set when the reload failed; the previous settings stay active.
	Err error
}

// HotReloader watches the configuration files of a Manager and reloads it
// when one of them changes. Events are debounced.
type HotReloader struct {
	manager  *Manager
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	events  chan Change
	done    chan struct{}
	started bool
}

// NewHotReloader creates a reloader for the given manager.
func NewHotReloader(manager *Manager, debounce time.Duration) *HotReloader {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &HotReloader{
		manager:  manager,
		debounce: debounce,
		events:   make(chan Change, 8),
		done:     make(chan struct{}),
	}
}

// Events returns the channel reload results are delivered on. It is closed by Stop.
func (r *HotReloader) Events() <-chan Change {
	return r.events
}

// Start begins watching the directories that contain the config files.
// Directories are watched instead of files so editors that replace files
// by rename keep triggering events.
func (r *HotReloader) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return ErrReloaderStarted
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dirs := make(map[string]struct{})
	for _, file := range r.manager.WatchedFiles() {
		dirs[filepath.Dir(file)] = struct{}{}
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return err
		}
	}

	r.watcher = watcher
	r.started = true
	go r.loop()
	return nil
}

// Stop stops watching and closes the events channel.
func (r *HotReloader) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return nil
	}
	r.started = false
	close(r.done)
	return r.watcher.Close()
}

func (r *HotReloader) loop() {
	defer close(r.events)

	watched := make(map[string]struct{})
	for _, file := range r.manager.WatchedFiles() {
		watched[filepath.Clean(file)] = struct{}{}
	}

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending string
	)

	for {
		select {
		case <-r.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if _, ok := watched[filepath.Clean(event.Name)]; !ok {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			pending = event.Name
			if timer == nil {
				timer = time.NewTimer(r.debounce)
			} else {
				timer.Reset(r.debounce)
			}
			timerC = timer.C
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			logger.GetLogger().Warn("config watcher error", zap.Error(err))
		case <-timerC:
			timerC = nil
			r.emit(r.reload(pending))
		}
	}
}

func (r *HotReloader) reload(file string) Change {
	change := Change{File: file, Layer: r.manager.LayerOf(file)}
	if err := r.manager.Reload(); err != nil {
		change.Err = err
		return change
	}
	change.Settings = r.manager.AllSettings()
	return change
}

func (r *HotReloader) emit(change Change) {
	select {
	case r.events <- change:
	case <-r.done:
	default:
		logger.GetLogger().Warn("config change dropped, consumer is not keeping up",
			zap.String("file", change.File))
	}
}
