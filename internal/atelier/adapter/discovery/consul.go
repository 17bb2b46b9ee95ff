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

// Package discovery registers the service with Consul.
package discovery

import (
	"errors"
	"fmt"

	"github.com/hashicorp/consul/api"
	"go.uber.org/zap"

	"github.com/innovationmech/atelier/pkg/logger"
)

// Config describes the service registration.
type Config struct {
	// ConsulAddress is the agent address; empty uses the Consul default.
	ConsulAddress string
	ServiceName   string
	Address       string
	Port          int
	Tags          []string
}

// Registrar registers one service instance with a Consul agent.
type Registrar struct {
	client *api.Client
	config Config
	id     string
	logger *zap.Logger
}

// NewRegistrar creates a registrar for cfg.
func NewRegistrar(cfg Config) (*Registrar, error) {
	if cfg.ServiceName == "" || cfg.Address == "" || cfg.Port <= 0 {
		return nil, errors.New("service name, address and port are required")
	}
	config := api.DefaultConfig()
	if cfg.ConsulAddress != "" {
		config.Address = cfg.ConsulAddress
	}
	client, err := api.NewClient(config)
	if err != nil {
		return nil, err
	}
	return &Registrar{
		client: client,
		config: cfg,
		id:     fmt.Sprintf("%s-%s-%d", cfg.ServiceName, cfg.Address, cfg.Port),
		logger: logger.GetLogger().Named("discovery"),
	}, nil
}

// ID returns the service instance ID.
func (r *Registrar) ID() string {
	return r.id
}

// Register adds the instance with an HTTP check on /health.
func (r *Registrar) Register() error {
	registration := &api.AgentServiceRegistration{
		ID:      r.id,
		Name:    r.config.ServiceName,
		Address: r.config.Address,
		Port:    r.config.Port,
		Tags:    r.config.Tags,
		Check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/health", r.config.Address, r.config.Port),
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}
	if err := r.client.Agent().ServiceRegister(registration); err != nil {
		return fmt.Errorf("register %s: %w", r.id, err)
	}
	r.logger.Info("service registered", zap.String("id", r.id))
	return nil
}

// Deregister removes the instance.
func (r *Registrar) Deregister() error {
	if err := r.client.Agent().ServiceDeregister(r.id); err != nil {
		return fmt.Errorf("deregister %s: %w", r.id, err)
	}
	r.logger.Info("service deregistered", zap.String("id", r.id))
	return nil
}
