package eureka

import (
	"fmt"
	"time"

	"github.com/miekg/dns"
)

// DNSDiscoveryConfig generalizes the teacher's DNS-zone endpoint lookup
// into an optional resolver the endpoint controller can refresh from
// periodically instead of (or alongside) a static endpoint list.
type DNSDiscoveryConfig struct {
	Enabled      bool
	Resolver     string // "host:port" of the DNS server to query, e.g. "127.0.0.1:53"
	DomainSuffix string // e.g. "eureka.mycompany.net"
	Region       string
	Zone         string
	RefreshEvery time.Duration
}

func (c DNSDiscoveryConfig) refreshInterval() time.Duration {
	if c.RefreshEvery <= 0 {
		return 5 * time.Minute
	}
	return c.RefreshEvery
}

// dnsEndpointResolver periodically re-resolves registry endpoints from a
// DNS TXT record and pushes the result into an endpointController, mirroring
// getServiceUrlsWithZones's DNS-zone lookup but generalized to any TXT
// record shaped as a CNAME list.
type dnsEndpointResolver struct {
	cfg    DNSDiscoveryConfig
	client *dns.Client
}

func newDNSEndpointResolver(cfg DNSDiscoveryConfig) *dnsEndpointResolver {
	return &dnsEndpointResolver{
		cfg:    cfg,
		client: new(dns.Client),
	}
}

// recordName builds the TXT record name to query, e.g.
// "txt.us-east-1.myzone.eureka.mycompany.net.".
func (r *dnsEndpointResolver) recordName() string {
	name := r.cfg.DomainSuffix
	if r.cfg.Zone != "" {
		name = r.cfg.Zone + "." + name
	}
	if r.cfg.Region != "" {
		name = "txt." + r.cfg.Region + "." + name
	}
	return dns.Fqdn(name)
}

// resolve queries the configured DNS server for a TXT record and returns
// the whitespace-separated list of hostnames it contains, each converted
// into an http:// endpoint URL.
func (r *dnsEndpointResolver) resolve() ([]string, error) {
	if r.cfg.Resolver == "" {
		return nil, NewParamError("DNS discovery enabled without a resolver address")
	}
	msg := new(dns.Msg)
	msg.SetQuestion(r.recordName(), dns.TypeTXT)
	msg.RecursionDesired = true

	resp, _, err := r.client.Exchange(msg, r.cfg.Resolver)
	if err != nil {
		return nil, NewNetError("dns TXT lookup for %s: %v", r.recordName(), err)
	}
	if resp == nil || resp.Rcode != dns.RcodeSuccess {
		return nil, NewNetError("dns TXT lookup for %s failed", r.recordName())
	}

	var endpoints []string
	for _, rr := range resp.Answer {
		txt, ok := rr.(*dns.TXT)
		if !ok {
			continue
		}
		for _, field := range txt.Txt {
			for _, host := range splitFields(field) {
				endpoints = append(endpoints, fmt.Sprintf("http://%s", host))
			}
		}
	}
	if len(endpoints) == 0 {
		return nil, NewNotFoundError()
	}
	return endpoints, nil
}

func splitFields(s string) []string {
	var out []string
	start := -1
	for i, r := range s {
		if r == ' ' || r == '\t' {
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	return out
}

// run periodically resolves endpoints and pushes changes into ec, until
// stop is closed.
func (r *dnsEndpointResolver) run(ec *endpointController, logger *logAdapter, stop <-chan struct{}) {
	ticker := time.NewTicker(r.cfg.refreshInterval())
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			endpoints, err := r.resolve()
			if err != nil {
				logger.Warnf("dns endpoint refresh failed: %v", err)
				continue
			}
			ec.setEndpoints(endpoints)
			logger.Debugf("dns endpoint refresh: %v", endpoints)
		}
	}
}
