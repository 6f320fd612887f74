// Package publisher batches samples and delivers them to the ingestion API.
//
// Samples accumulate in order. When the batch reaches the configured size
// it is flushed inline: trimmed if the backlog has grown too large,
// enriched with element metadata, and posted. A failed post keeps the
// batch so the next flush resends it together with newer samples. No send
// failure ever reaches the caller; failures are logged and counted.
package publisher

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/Guliveer/diamond-agent/internal/config"
	"github.com/Guliveer/diamond-agent/internal/metadata"
	"github.com/Guliveer/diamond-agent/internal/models"
	"github.com/Guliveer/diamond-agent/internal/sender"
	"github.com/Guliveer/diamond-agent/internal/telemetry"
)

// Sender delivers payloads and checks to the ingestion API.
type Sender interface {
	Post(ctx context.Context, payload models.Payload) error
	PostCheck(ctx context.Context, check models.Check) error
	TimeOffset(ctx context.Context) (time.Duration, error)
}

// Spiller persists samples that could not be delivered before shutdown.
type Spiller interface {
	Spill(samples []models.Sample) error
}

const defaultSendTimeout = 30 * time.Second

// Option configures a Publisher.
type Option func(*Publisher)

// WithClock sets the clock used for skew-check scheduling.
func WithClock(c clock.Clock) Option {
	return func(p *Publisher) { p.clock = c }
}

// WithEnricher sets metadata lookups run before every send.
func WithEnricher(e metadata.Enricher) Option {
	return func(p *Publisher) { p.enricher = e }
}

// WithSpill sets where Close leaves undelivered samples.
func WithSpill(s Spiller) Option {
	return func(p *Publisher) { p.spill = s }
}

// WithMetrics sets the telemetry the publisher reports to.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

// WithSendTimeout bounds each post, retries included.
func WithSendTimeout(d time.Duration) Option {
	return func(p *Publisher) { p.sendTimeout = d }
}

// Publisher is the batching publisher. It is safe for concurrent use.
type Publisher struct {
	cfg         config.PublisherConfig
	sender      Sender
	element     *models.Element
	enricher    metadata.Enricher
	spill       Spiller
	clock       clock.Clock
	metrics     *telemetry.Metrics
	sendTimeout time.Duration
	logger      *zap.Logger

	mu         sync.Mutex
	batch      []models.Sample
	elementID  string
	warnedNoID bool

	// flushMu serializes flushes. Fields below it are only touched while
	// it is held.
	flushMu       sync.Mutex
	lastSkewCheck time.Time
	knownFQNs     map[string]struct{}
}

// New creates a publisher reporting under element. If the element has no
// ID, the host of the first sample that carries one becomes the ID; until
// then flushes send nothing.
func New(cfg config.PublisherConfig, element *models.Element, s Sender, logger *zap.Logger, opts ...Option) (*Publisher, error) {
	if element == nil {
		element = models.NewElement("", "")
	}
	p := &Publisher{
		cfg:         cfg,
		sender:      s,
		element:     element,
		elementID:   element.ID,
		clock:       clock.New(),
		sendTimeout: defaultSendTimeout,
		logger:      logger.Named("publisher"),
		knownFQNs:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = telemetry.New()
	}

	if cfg.WriteMetricFQNs {
		// Start every run with an empty list.
		if err := os.WriteFile(cfg.MetricFQNsPath, nil, 0644); err != nil {
			return nil, fmt.Errorf("truncate metric fqn file: %w", err)
		}
	}
	return p, nil
}

// Process appends s to the batch and flushes when the batch is full. The
// inline flush is skipped if another flush is already running; the sample
// stays queued for it or the next one. Samples whose value is NaN or
// infinite cannot be encoded and are dropped.
func (p *Publisher) Process(ctx context.Context, s models.Sample) {
	if !s.Value.IsFinite() {
		p.logger.Warn("Dropping sample with non-finite value",
			zap.String("path", s.Path),
			zap.Stringer("value", s.Value))
		p.metrics.SamplesDropped.Inc()
		return
	}

	p.mu.Lock()
	if p.elementID == "" && s.Host != "" {
		p.elementID = s.Host
		p.logger.Info("Element id taken from sample host", zap.String("element_id", s.Host))
	}
	p.batch = append(p.batch, s)
	n := len(p.batch)
	p.mu.Unlock()

	p.metrics.SamplesProcessed.Inc()
	p.metrics.BatchLength.Set(float64(n))

	if n < p.cfg.BatchSize {
		return
	}
	if !p.flushMu.TryLock() {
		p.logger.Debug("Flush already running, leaving samples queued", zap.Int("batch", n))
		return
	}
	defer p.flushMu.Unlock()
	p.logger.Debug("Flushing full batch", zap.Int("batch", n))
	p.flush(ctx)
}

// Preload puts previously spilled samples ahead of anything queued. It
// waits for a running flush so the prefix that flush removes is still the
// one it sent.
func (p *Publisher) Preload(samples []models.Sample) {
	if len(samples) == 0 {
		return
	}
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	p.batch = append(append(make([]models.Sample, 0, len(samples)+len(p.batch)), samples...), p.batch...)
	n := len(p.batch)
	p.mu.Unlock()
	p.metrics.BatchLength.Set(float64(n))
	p.logger.Info("Restored spilled samples", zap.Int("samples", len(samples)))
}

// Flush sends the current batch. It never fails; outcomes are logged.
func (p *Publisher) Flush(ctx context.Context) {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()
	p.flush(ctx)
}

// Close drains the publisher: a final flush, then whatever is still unsent
// is handed to the spiller. The batch is empty afterwards.
func (p *Publisher) Close(ctx context.Context) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.flush(ctx)

	p.mu.Lock()
	remaining := p.batch
	p.batch = nil
	p.mu.Unlock()
	p.metrics.BatchLength.Set(0)

	if len(remaining) == 0 {
		return nil
	}
	if p.spill == nil {
		p.logger.Warn("Discarding unsent samples at shutdown", zap.Int("samples", len(remaining)))
		return nil
	}
	if err := p.spill.Spill(remaining); err != nil {
		return fmt.Errorf("spill unsent samples: %w", err)
	}
	return nil
}

// PostCheck renews a TTL check right away; checks are not batched. A check
// without a host is reported under the element id.
func (p *Publisher) PostCheck(ctx context.Context, check models.Check) {
	if check.Host == "" {
		check.Host = p.ElementID()
	}
	if check.Host == "" {
		p.logger.Warn("Element id not set, dropping check", zap.String("check", check.Name))
		p.metrics.Checks.WithLabelValues(telemetry.OutcomeSkipped).Inc()
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.sendTimeout)
	defer cancel()
	err := p.sender.PostCheck(ctx, check)
	outcome := p.classify(err, "Check post failed", zap.String("check", check.Name))
	p.metrics.Checks.WithLabelValues(outcome).Inc()
}

// Len returns the number of queued samples.
func (p *Publisher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batch)
}

// Pending returns a copy of the queued samples, oldest first.
func (p *Publisher) Pending() []models.Sample {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Sample(nil), p.batch...)
}

// ElementID returns the id batches are reported under.
func (p *Publisher) ElementID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.elementID
}

// flush must be called with flushMu held.
func (p *Publisher) flush(ctx context.Context) {
	pending, id := p.prepare()
	if pending == nil {
		p.metrics.Flushes.WithLabelValues(telemetry.OutcomeSkipped).Inc()
		return
	}

	if p.enricher != nil {
		if err := p.enricher.Enrich(ctx, p.element); err != nil {
			p.logger.Debug("Metadata enrichment incomplete", zap.Error(err))
		}
	}
	element := p.element.Clone()
	element.ID = id
	if element.Name == "" {
		element.Name = id
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.sendTimeout)
	err := p.sender.Post(sendCtx, models.NewPayload(element, pending))
	cancel()

	if err != nil {
		outcome := p.classify(err, "Flush failed, keeping batch", zap.Int("samples", len(pending)))
		p.metrics.Flushes.WithLabelValues(outcome).Inc()
		return
	}

	// Only flushes remove samples and flushes are serialized, so the
	// head of the batch is still exactly what was sent.
	p.mu.Lock()
	p.batch = append([]models.Sample(nil), p.batch[len(pending):]...)
	n := len(p.batch)
	p.mu.Unlock()

	p.metrics.Flushes.WithLabelValues(telemetry.OutcomeSuccess).Inc()
	p.metrics.SamplesSent.Add(float64(len(pending)))
	p.metrics.BatchLength.Set(float64(n))

	if p.cfg.WriteMetricFQNs {
		if err := p.writeFQNs(pending); err != nil {
			p.logger.Warn("Failed to write metric fqns", zap.Error(err))
		}
	}
	p.checkSkew(ctx)
}

// prepare trims the backlog and snapshots the batch. It returns nil when
// there is nothing to send.
func (p *Publisher) prepare() ([]models.Sample, string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.batch) == 0 {
		p.logger.Debug("Batch empty, nothing to post")
		return nil, ""
	}
	if p.elementID == "" {
		if !p.warnedNoID {
			p.logger.Warn("Element id not set, nothing to post", zap.Int("batch", len(p.batch)))
			p.warnedNoID = true
		}
		return nil, ""
	}

	maxBacklog := p.cfg.BatchSize * p.cfg.MaxBacklogMultiplier
	if len(p.batch) >= maxBacklog {
		keep := p.cfg.BatchSize * p.cfg.TrimBacklogMultiplier
		dropped := len(p.batch) - keep
		p.batch = append([]models.Sample(nil), p.batch[dropped:]...)
		p.metrics.SamplesDropped.Add(float64(dropped))
		p.logger.Warn("Trimming backlog",
			zap.Int("dropped_oldest", dropped),
			zap.Int("kept_newest", keep))
	}
	return append([]models.Sample(nil), p.batch...), p.elementID
}

// classify logs a send outcome and returns its telemetry label.
func (p *Publisher) classify(err error, msg string, fields ...zap.Field) string {
	if err == nil {
		return telemetry.OutcomeSuccess
	}
	fields = append(fields, zap.Error(err))
	if sender.IsKill(err) {
		p.logger.Error(msg, fields...)
		return telemetry.OutcomeKill
	}
	p.logger.Warn(msg, fields...)
	return telemetry.OutcomeTransient
}

// checkSkew compares clocks with the server on the first successful flush
// and then at most once per SkewCheckInterval.
func (p *Publisher) checkSkew(ctx context.Context) {
	now := p.clock.Now()
	if !p.lastSkewCheck.IsZero() && now.Sub(p.lastSkewCheck) <= p.cfg.SkewCheckInterval.Duration {
		return
	}
	p.lastSkewCheck = now

	ctx, cancel := context.WithTimeout(ctx, p.sendTimeout)
	defer cancel()
	offset, err := p.sender.TimeOffset(ctx)
	if err != nil {
		p.logger.Warn("Clock skew check failed", zap.Error(err))
	} else if p.outOfSync(offset) {
		p.logger.Error("Local time is out of sync with the server",
			zap.Duration("offset", offset))
	}
	p.logger.Info("Data posted successfully",
		zap.Duration("next_skew_check", p.cfg.SkewCheckInterval.Duration))
}

// outOfSync reports whether offset lies outside [-MaxSkew, MaxSkew).
func (p *Publisher) outOfSync(offset time.Duration) bool {
	return offset >= p.cfg.MaxSkew.Duration || offset < -p.cfg.MaxSkew.Duration
}

// writeFQNs appends metric paths not written before to the fqn file.
func (p *Publisher) writeFQNs(sent []models.Sample) error {
	var fresh []string
	for _, s := range sent {
		if _, ok := p.knownFQNs[s.Path]; ok {
			continue
		}
		p.knownFQNs[s.Path] = struct{}{}
		fresh = append(fresh, s.Path)
	}
	if len(fresh) == 0 {
		return nil
	}

	f, err := os.OpenFile(p.cfg.MetricFQNsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	for _, path := range fresh {
		if _, err := fmt.Fprintln(f, path); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}
