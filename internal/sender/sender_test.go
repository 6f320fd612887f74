package sender

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Guliveer/diamond-agent/internal/config"
	"github.com/Guliveer/diamond-agent/internal/models"
)

const apiBase = "https://api.example.com"

func testSender(t *testing.T, mutate func(*config.ServerConfig)) *Sender {
	t.Helper()
	cfg := config.ServerConfig{
		URL:        apiBase + "/ingest/infrastructure",
		APIKey:     "KEY",
		Timeout:    config.Duration{Duration: time.Second},
		Retries:    2,
		RetryDelay: config.Duration{Duration: time.Millisecond},
		KillCodes:  []int{410, 418},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s := New(cfg, "test", zap.NewNop())
	gock.InterceptClient(s.client)
	t.Cleanup(func() {
		gock.RestoreClient(s.client)
		gock.Off()
	})
	return s
}

func testPayload() models.Payload {
	e := models.NewElement("web-01", "")
	return models.NewPayload(e, []models.Sample{
		models.NewGauge("cpu.total.idle", time.Unix(1700000000, 0), models.Float(97.5)),
	})
}

func TestPostSuccess(t *testing.T) {
	s := testSender(t, nil)
	gock.New(apiBase).
		Post("/ingest/infrastructure/KEY").
		MatchHeader("Content-Type", "application/json").
		MatchHeader("User-Agent", "diamond-agent/test").
		Reply(202)

	require.NoError(t, s.Post(context.Background(), testPayload()))
	assert.True(t, gock.IsDone())
}

func TestPostCompressed(t *testing.T) {
	s := testSender(t, func(c *config.ServerConfig) { c.Compress = true })
	gock.New(apiBase).
		Post("/ingest/infrastructure/KEY").
		MatchHeader("Content-Encoding", "gzip").
		Reply(202)

	require.NoError(t, s.Post(context.Background(), testPayload()))
	assert.True(t, gock.IsDone())
}

func TestPostRetriesTransientFailure(t *testing.T) {
	s := testSender(t, nil)
	gock.New(apiBase).Post("/ingest/infrastructure/KEY").Reply(503)
	gock.New(apiBase).Post("/ingest/infrastructure/KEY").Reply(202)

	require.NoError(t, s.Post(context.Background(), testPayload()))
	assert.True(t, gock.IsDone())
}

func TestPostGivesUpAfterRetries(t *testing.T) {
	s := testSender(t, func(c *config.ServerConfig) { c.Retries = 1 })
	gock.New(apiBase).Post("/ingest/infrastructure/KEY").Times(2).Reply(500)

	err := s.Post(context.Background(), testPayload())
	require.Error(t, err)
	assert.False(t, IsKill(err))
	assert.True(t, gock.IsDone())
}

func TestPostKillCodeIsNotRetried(t *testing.T) {
	s := testSender(t, nil)
	gock.New(apiBase).Post("/ingest/infrastructure/KEY").Reply(410)

	err := s.Post(context.Background(), testPayload())
	require.Error(t, err)
	assert.True(t, IsKill(err))
	assert.True(t, gock.IsDone())
}

func TestPostRateLimitedIsNotRetried(t *testing.T) {
	s := testSender(t, nil)
	gock.New(apiBase).Post("/ingest/infrastructure/KEY").Reply(429)

	err := s.Post(context.Background(), testPayload())
	require.Error(t, err)
	assert.False(t, IsKill(err))

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.RateLimited())
}

func TestPostCheck(t *testing.T) {
	s := testSender(t, nil)
	gock.New(apiBase).Post("/check/KEY/port.ssh/web-01/150").Reply(202)

	err := s.PostCheck(context.Background(), models.Check{
		Name: "port.ssh",
		Host: "web-01",
		TTL:  150 * time.Second,
	})
	require.NoError(t, err)
	assert.True(t, gock.IsDone())
}

func TestPostCheckExplicitURL(t *testing.T) {
	s := testSender(t, func(c *config.ServerConfig) { c.CheckURL = "https://checks.example.com/v2/" })
	gock.New("https://checks.example.com").Post("/v2/KEY/dns/web-01/60").Reply(200)

	err := s.PostCheck(context.Background(), models.Check{Name: "dns", Host: "web-01", TTL: time.Minute})
	require.NoError(t, err)
	assert.True(t, gock.IsDone())
}

func TestTimeOffset(t *testing.T) {
	s := testSender(t, nil)
	serverNow := time.Now().Add(2 * time.Hour).UTC()
	gock.New(apiBase).
		Head("/time").
		Reply(200).
		SetHeader("Date", serverNow.Format(http.TimeFormat))

	offset, err := s.TimeOffset(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, (2 * time.Hour).Seconds(), offset.Seconds(), 2)
}

func TestTimeOffsetMissingDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Date"] = nil
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(config.ServerConfig{
		URL:     srv.URL + "/ingest",
		APIKey:  "KEY",
		Timeout: config.Duration{Duration: time.Second},
	}, "test", zap.NewNop())

	_, err := s.TimeOffset(context.Background())
	assert.Error(t, err)
}

func TestPostTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := New(config.ServerConfig{
		URL:     srv.URL + "/ingest",
		APIKey:  "KEY",
		Timeout: config.Duration{Duration: 50 * time.Millisecond},
	}, "test", zap.NewNop())

	err := s.Post(context.Background(), testPayload())
	require.Error(t, err)
	var se *StatusError
	assert.False(t, errors.As(err, &se), "timeouts carry no status")
}
