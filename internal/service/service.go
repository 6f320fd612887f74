//go:build windows

// Package service runs the agent under the Windows Service Control Manager.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/windows/svc"
)

// Name is the SCM service name.
const Name = "DiamondAgent"

// stopTimeout bounds how long a stop request waits for the final flush.
const stopTimeout = 60 * time.Second

// AgentService adapts a blocking run function to svc.Handler.
type AgentService struct {
	logger *zap.Logger
	run    func(ctx context.Context) error
}

// New wraps run. run must return once its context is cancelled.
func New(logger *zap.Logger, run func(ctx context.Context) error) *AgentService {
	return &AgentService{logger: logger.Named("service"), run: run}
}

// IsWindowsService reports whether the process was started by the SCM.
func IsWindowsService() bool {
	isService, err := svc.IsWindowsService()
	if err != nil {
		return false
	}
	return isService
}

// Run enters the SCM control loop and blocks until the service stops.
func (s *AgentService) Run() error {
	return svc.Run(Name, s)
}

// Execute implements svc.Handler. On stop or shutdown it cancels the run
// function and waits for it to drain the publisher.
func (s *AgentService) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (ssec bool, errno uint32) {
	changes <- svc.Status{State: svc.StartPending}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.run(ctx) }()

	changes <- svc.Status{
		State:   svc.Running,
		Accepts: svc.AcceptStop | svc.AcceptShutdown,
	}
	s.logger.Info("Windows service started")

	for {
		select {
		case err := <-done:
			if err != nil {
				s.logger.Error("Agent exited", zap.Error(err))
				return false, 1
			}
			return false, 0
		case c := <-r:
			switch c.Cmd {
			case svc.Interrogate:
				changes <- c.CurrentStatus
			case svc.Stop, svc.Shutdown:
				s.logger.Info("Windows service stopping")
				changes <- svc.Status{State: svc.StopPending, WaitHint: uint32(stopTimeout / time.Millisecond)}
				cancel()
				select {
				case err := <-done:
					if err != nil {
						s.logger.Warn("Final flush failed", zap.Error(err))
					}
				case <-time.After(stopTimeout):
					s.logger.Warn("Timed out waiting for final flush")
				}
				return false, 0
			default:
				s.logger.Warn("Unexpected service control request",
					zap.Uint32("cmd", uint32(c.Cmd)))
			}
		}
	}
}
