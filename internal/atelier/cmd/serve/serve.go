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

package serve

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/innovationmech/atelier/internal/atelier/app"
	"github.com/innovationmech/atelier/internal/atelier/config"
	pkgconfig "github.com/innovationmech/atelier/pkg/config"
	"github.com/innovationmech/atelier/pkg/logger"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var configDir string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the atelier server",
		Long: `Start the atelier server. It accepts workflow submissions over HTTP
and drives them with the configured idempotency store, slot manager, mail
backend and event publisher.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			logger.InitLogger()
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), configDir)
		},
	}
	cmd.Flags().StringVar(&configDir, "config-dir", "", "Directory holding atelier.yaml (default: current directory)")
	return cmd
}

func runServer(parent context.Context, configDir string) error {
	if parent == nil {
		parent = context.Background()
	}
	logger.Logger.Info("Starting atelier server...")

	manager := config.NewManager(configDir)
	cfg, err := config.Load(manager)
	if err != nil {
		logger.Logger.Error("Failed to load configuration", zap.Error(err))
		return err
	}
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		logger.Logger.Warn("invalid log level; keeping default", zap.String("level", cfg.Logging.Level), zap.Error(err))
	}

	reloader := pkgconfig.NewHotReloader(manager, 500*time.Millisecond)
	if err := reloader.Start(); err == nil {
		defer reloader.Stop()
		go watchLogLevel(reloader.Events())
	} else {
		logger.Logger.Debug("hot reloader not started", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	service, err := app.New(ctx, cfg)
	if err != nil {
		logger.Logger.Error("Failed to create server", zap.Error(err))
		return err
	}
	if err := service.Run(ctx); err != nil {
		logger.Logger.Error("Server error", zap.Error(err))
		return err
	}
	logger.Logger.Info("Server shutdown complete")
	return nil
}

// watchLogLevel applies logging.level from reloaded settings. Other
// settings need a restart.
func watchLogLevel(changes <-chan pkgconfig.Change) {
	for change := range changes {
		if change.Err != nil {
			logger.Logger.Warn("config reload error", zap.Error(change.Err))
			continue
		}
		applyLogLevel(change.Settings)
	}
}

func applyLogLevel(settings map[string]interface{}) {
	section, ok := settings["logging"].(map[string]interface{})
	if !ok {
		return
	}
	level, ok := section["level"].(string)
	if !ok || level == "" || level == logger.GetLevel() {
		return
	}
	if err := logger.SetLevel(level); err != nil {
		logger.Logger.Warn("apply log level failed", zap.Error(err))
		return
	}
	logger.Logger.Info("log level updated via hot-reload", zap.String("level", logger.GetLevel()))
}
