//go:build !windows

// Package service runs the agent under the Windows Service Control Manager.
// Elsewhere the agent runs in the foreground and Run calls the run function
// with a context cancelled on SIGINT or SIGTERM.
package service

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// Name is the service name used by the init system.
const Name = "diamond-agent"

// AgentService runs the agent in the foreground.
type AgentService struct {
	logger *zap.Logger
	run    func(ctx context.Context) error
}

// New wraps run. run must return once its context is cancelled.
func New(logger *zap.Logger, run func(ctx context.Context) error) *AgentService {
	return &AgentService{logger: logger.Named("service"), run: run}
}

// IsWindowsService always returns false on non-Windows platforms.
func IsWindowsService() bool {
	return false
}

// Run blocks until run returns after a termination signal.
func (s *AgentService) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	err := s.run(ctx)
	s.logger.Info("Agent stopped")
	return err
}
