// DNS check collector: resolves configured names and posts a TTL check for
// each one that resolves.
package collector

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"

	"github.com/Guliveer/diamond-agent/internal/config"
	"github.com/Guliveer/diamond-agent/internal/models"
)

const resolvConf = "/etc/resolv.conf"

// DNSCheckCollector resolves names against a DNS server.
type DNSCheckCollector struct {
	names    []string
	resolver string
	ttl      time.Duration
	client   *dns.Client
	poster   CheckPoster
	logger   *zap.Logger
}

// NewDNSCheckCollector creates a DNS check collector. Without an explicit
// resolver ("host:port") the first nameserver in /etc/resolv.conf is used.
func NewDNSCheckCollector(cfg config.DNSCheckConfig, poster CheckPoster, logger *zap.Logger) *DNSCheckCollector {
	resolver := cfg.Resolver
	if resolver == "" {
		if cc, err := dns.ClientConfigFromFile(resolvConf); err == nil && len(cc.Servers) > 0 {
			resolver = net.JoinHostPort(cc.Servers[0], cc.Port)
		}
	}
	return &DNSCheckCollector{
		names:    cfg.Names,
		resolver: resolver,
		ttl:      cfg.TTL.Duration,
		client:   &dns.Client{Timeout: 2 * time.Second},
		poster:   poster,
		logger:   logger,
	}
}

// Name returns the collector identifier.
func (c *DNSCheckCollector) Name() string { return "dnscheck" }

// IsAvailable reports whether there is something to resolve and a server
// to ask.
func (c *DNSCheckCollector) IsAvailable() bool {
	return len(c.names) > 0 && c.resolver != ""
}

// Collect reports dns.<name>.resolved (1 or 0) and the lookup time in
// milliseconds for names that resolved.
func (c *DNSCheckCollector) Collect(ctx context.Context) ([]models.Sample, error) {
	s := newSampler()
	for _, name := range c.names {
		prefix := "dns." + sanitize(name) + "."
		rtt, err := c.resolve(ctx, name)
		if err != nil {
			c.logger.Warn("Cannot resolve hostname",
				zap.String("name", name),
				zap.Error(err))
			s.gauge(prefix+"resolved", models.Int(0))
			continue
		}
		s.gauge(prefix+"resolved", models.Int(1))
		s.gauge(prefix+"response_ms", models.Float(float64(rtt)/float64(time.Millisecond)))
		if c.poster != nil {
			c.poster.PostCheck(ctx, models.Check{Name: name, TTL: c.ttl})
		}
	}
	return s.samples, nil
}

// resolve asks for A records and succeeds if at least one comes back.
func (c *DNSCheckCollector) resolve(ctx context.Context, name string) (time.Duration, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeA)
	msg.RecursionDesired = true

	resp, rtt, err := c.client.ExchangeContext(ctx, msg, c.resolver)
	if err != nil {
		return 0, err
	}
	if resp.Rcode != dns.RcodeSuccess {
		return 0, fmt.Errorf("rcode %s", dns.RcodeToString[resp.Rcode])
	}
	for _, rr := range resp.Answer {
		if _, ok := rr.(*dns.A); ok {
			return rtt, nil
		}
	}
	return 0, fmt.Errorf("no A record for %s", name)
}
