// Package sender implements the client for the remote ingestion API.
// It marshals element payloads to JSON, optionally compresses them with gzip,
// and POSTs them with bounded exponential backoff. It also posts TTL checks
// and reads the server clock for skew detection.
package sender

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Guliveer/diamond-agent/internal/config"
	"github.com/Guliveer/diamond-agent/internal/models"
)

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	Code int
	// Kill is set for statuses the API uses to say "stop sending", such as
	// revoked credentials. Kill errors are never retried.
	Kill bool
}

func (e *StatusError) Error() string {
	if e.Kill {
		return fmt.Sprintf("server returned kill code %d", e.Code)
	}
	return fmt.Sprintf("server returned %d", e.Code)
}

// RateLimited reports whether the server asked us to slow down.
func (e *StatusError) RateLimited() bool {
	return e.Code == http.StatusTooManyRequests
}

// IsKill reports whether err carries a kill code.
func IsKill(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Kill
}

// Sender talks to the ingestion API.
type Sender struct {
	client    *http.Client
	cfg       config.ServerConfig
	userAgent string
	killCodes map[int]bool
	logger    *zap.Logger
}

// New creates a Sender for the given server configuration.
func New(cfg config.ServerConfig, version string, logger *zap.Logger) *Sender {
	kill := make(map[int]bool, len(cfg.KillCodes))
	for _, c := range cfg.KillCodes {
		kill[c] = true
	}
	return &Sender{
		client: &http.Client{
			Timeout: cfg.Timeout.Duration,
		},
		cfg:       cfg,
		userAgent: "diamond-agent/" + version,
		killCodes: kill,
		logger:    logger.Named("sender"),
	}
}

// Post sends a payload. Transient failures are retried up to the configured
// number of times; kill codes and rate limiting stop the retries at once.
func (s *Sender) Post(ctx context.Context, payload models.Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	encoding := ""
	if s.cfg.Compress {
		var compressed bytes.Buffer
		gz := gzip.NewWriter(&compressed)
		if _, err := gz.Write(data); err != nil {
			return fmt.Errorf("compress payload: %w", err)
		}
		if err := gz.Close(); err != nil {
			return fmt.Errorf("finalize gzip compression: %w", err)
		}
		data = compressed.Bytes()
		encoding = "gzip"
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.RetryDelay.Duration
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.cfg.Retries)), ctx)

	op := func() error {
		err := s.doPost(ctx, s.ingestURL(), data, encoding)
		var se *StatusError
		if errors.As(err, &se) && (se.Kill || se.RateLimited()) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, delay time.Duration) {
		s.logger.Warn("Retrying send",
			zap.Duration("delay", delay),
			zap.Error(err))
	}
	return backoff.RetryNotify(op, policy, notify)
}

// PostCheck renews a TTL check. It is a single attempt.
func (s *Sender) PostCheck(ctx context.Context, check models.Check) error {
	ttl := strconv.Itoa(int(check.TTL / time.Second))
	target := strings.Join([]string{
		s.checkURL(),
		url.PathEscape(check.Name),
		url.PathEscape(check.Host),
		ttl,
	}, "/")
	return s.doPost(ctx, target, nil, "")
}

// TimeOffset returns how far the server clock is ahead of the local clock,
// read from the Date header of a HEAD request.
func (s *Sender) TimeOffset(ctx context.Context) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.timeURL(), nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	local := time.Now()
	date := resp.Header.Get("Date")
	if date == "" {
		return 0, errors.New("server response has no Date header")
	}
	server, err := http.ParseTime(date)
	if err != nil {
		return 0, fmt.Errorf("parse Date header %q: %w", date, err)
	}
	return server.Sub(local).Truncate(time.Second), nil
}

// doPost performs a single HTTP POST.
func (s *Sender) doPost(ctx context.Context, target string, body []byte, encoding string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &StatusError{Code: resp.StatusCode, Kill: s.killCodes[resp.StatusCode]}
}

// ingestURL is the configured URL followed by the api key, the layout the
// infrastructure ingest endpoint expects.
func (s *Sender) ingestURL() string {
	return strings.TrimRight(s.cfg.URL, "/") + "/" + url.PathEscape(s.cfg.APIKey)
}

// checkURL defaults to the ingest URL with /ingest replaced by /check and
// the data source suffix removed.
func (s *Sender) checkURL() string {
	if s.cfg.CheckURL != "" {
		return strings.TrimRight(s.cfg.CheckURL, "/") + "/" + url.PathEscape(s.cfg.APIKey)
	}
	u := strings.Replace(s.ingestURL(), "/ingest", "/check", 1)
	return strings.Replace(u, "/infrastructure", "", 1)
}

// timeURL is the /time resource at the root of the API host.
func (s *Sender) timeURL() string {
	u, err := url.Parse(s.cfg.URL)
	if err != nil || u.Host == "" {
		return strings.TrimRight(s.cfg.URL, "/") + "/time"
	}
	return u.Scheme + "://" + u.Host + "/time"
}
