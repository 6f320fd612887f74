package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/docker/docker/client"
	"go.uber.org/zap"

	"github.com/Guliveer/diamond-agent/internal/buffer"
	"github.com/Guliveer/diamond-agent/internal/collector"
	"github.com/Guliveer/diamond-agent/internal/config"
	"github.com/Guliveer/diamond-agent/internal/metadata"
	"github.com/Guliveer/diamond-agent/internal/models"
	"github.com/Guliveer/diamond-agent/internal/publisher"
	"github.com/Guliveer/diamond-agent/internal/rate"
	"github.com/Guliveer/diamond-agent/internal/scheduler"
	"github.com/Guliveer/diamond-agent/internal/sender"
	"github.com/Guliveer/diamond-agent/internal/telemetry"
)

// runAgent initializes all components and runs the collect/publish loop.
// It blocks until ctx is cancelled and the publisher has been closed.
func runAgent(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	metrics := telemetry.New()
	if cfg.Telemetry.Listen != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Telemetry.Listen, logger.Named("telemetry")); err != nil {
				logger.Error("Telemetry listener failed", zap.Error(err))
			}
		}()
	}

	buf, err := buffer.New(cfg.Buffer.Dir, cfg.Buffer.MaxSizeMB, logger)
	if err != nil {
		return fmt.Errorf("initialize buffer: %w", err)
	}

	snd := sender.New(cfg.Server, version, logger)
	element := newElement(cfg.Element, logger)

	var dockerClient *client.Client
	if cfg.Element.Docker || cfg.Collectors.Docker.Enabled {
		dockerClient, err = client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			logger.Warn("Docker client unavailable", zap.Error(err))
			dockerClient = nil
		} else {
			defer dockerClient.Close()
		}
	}

	opts := []publisher.Option{
		publisher.WithSpill(buf),
		publisher.WithMetrics(metrics),
		publisher.WithSendTimeout(sendTimeout(cfg.Server)),
	}
	if cfg.Element.AWS {
		opts = append(opts, publisher.WithEnricher(metadata.NewAWS()))
	}
	pub, err := publisher.New(cfg.Publisher, element, snd, logger, opts...)
	if err != nil {
		return fmt.Errorf("initialize publisher: %w", err)
	}

	restored, err := buf.Restore()
	if err != nil {
		logger.Warn("Failed to restore spilled samples", zap.Error(err))
	} else if len(restored) > 0 {
		logger.Info("Restored spilled samples", zap.Int("samples", len(restored)))
		pub.Preload(restored)
	}

	registry := collector.NewRegistry(logger, metrics)
	if err := registerCollectors(registry, cfg, dockerClient, pub, logger); err != nil {
		return err
	}

	enrichElement(ctx, element, cfg, dockerClient, registry.Names(), logger)

	sched := scheduler.New(registry, pub,
		cfg.Collection.Interval.Duration,
		cfg.Collection.Timeout.Duration,
		logger,
		scheduler.WithShutdownTimeout(sendTimeout(cfg.Server)))

	logger.Info("Agent running",
		zap.String("element", element.ID),
		zap.Duration("interval", cfg.Collection.Interval.Duration),
		zap.Int("batch_size", cfg.Publisher.BatchSize),
		zap.Strings("collectors", registry.Names()))
	return sched.Start(ctx)
}

// newElement builds the reporting element. Without a configured ID the host
// name is used.
func newElement(cfg config.ElementConfig, logger *zap.Logger) *models.Element {
	id := cfg.ID
	if id == "" {
		hostname, err := os.Hostname()
		if err != nil {
			logger.Warn("Cannot determine hostname, element id unset until a sample carries one", zap.Error(err))
		}
		id = hostname
	}
	return models.NewElement(id, cfg.Location)
}

// enrichElement applies the one-off metadata. Every source is best effort.
func enrichElement(ctx context.Context, element *models.Element, cfg *config.Config, dockerClient *client.Client, collectors []string, logger *zap.Logger) {
	chain := metadata.Chain{
		metadata.System{Version: version},
		metadata.Distro{},
		metadata.Static{Tags: cfg.Element.Tags, Relations: cfg.Element.Relations},
		metadata.Collectors(collectors),
	}
	if cfg.Element.Docker && dockerClient != nil {
		chain = append(chain, metadata.Docker{Client: dockerClient})
	}
	if cfg.Element.Azure {
		chain = append(chain, metadata.NewAzure())
	}

	enrichCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := chain.Enrich(enrichCtx, element); err != nil {
		logger.Warn("Some element metadata unavailable", zap.Error(err))
	}
}

// registerCollectors adds every enabled collector. Each stateful collector
// gets its own rate computer.
func registerCollectors(r *collector.Registry, cfg *config.Config, dockerClient *client.Client, poster collector.CheckPoster, logger *zap.Logger) error {
	c := cfg.Collectors
	newRate := func() *rate.Computer {
		return rate.New(rate.WithStateTTL(cfg.Collection.StateTTL.Duration))
	}

	if c.Heartbeat {
		r.Register(collector.NewHeartbeatCollector())
	}
	if c.CPU {
		r.Register(collector.NewCPUCollector(c.PerCore, newRate()))
	}
	if c.Memory {
		r.Register(collector.NewMemoryCollector())
	}
	if c.LoadAvg {
		r.Register(collector.NewLoadAvgCollector())
	}
	if c.Uptime {
		r.Register(collector.NewUptimeCollector())
	}
	if c.Network {
		r.Register(collector.NewNetworkCollector(newRate()))
	}
	if c.DiskUsage {
		r.Register(collector.NewDiskUsageCollector(newRate()))
	}
	if c.DiskSpace {
		r.Register(collector.NewDiskSpaceCollector(logger))
	}
	if c.Docker.Enabled {
		// A nil *client.Client must not become a non-nil interface.
		var api collector.DockerAPI
		if dockerClient != nil {
			api = dockerClient
		}
		r.Register(collector.NewDockerCollector(api, c.Docker, newRate(), logger.Named("docker")))
	}
	if c.Zookeeper.Enabled {
		r.Register(collector.NewZookeeperCollector(c.Zookeeper.Servers, nil, newRate(), logger.Named("zookeeper")))
	}
	if c.PortCheck.Enabled {
		r.Register(collector.NewPortCheckCollector(c.PortCheck, nil, poster))
	}
	if c.ProcessCheck.Enabled {
		pc, err := collector.NewProcessCheckCollector(c.ProcessCheck, nil, poster, logger.Named("processcheck"))
		if err != nil {
			return fmt.Errorf("process check: %w", err)
		}
		r.Register(pc)
	}
	if c.DNSCheck.Enabled {
		r.Register(collector.NewDNSCheckCollector(c.DNSCheck, poster, logger.Named("dnscheck")))
	}
	return nil
}

// sendTimeout covers every attempt the sender makes for one post.
func sendTimeout(cfg config.ServerConfig) time.Duration {
	attempts := time.Duration(cfg.Retries + 1)
	return attempts*cfg.Timeout.Duration + time.Duration(cfg.Retries)*cfg.RetryDelay.Duration*4 + 5*time.Second
}
