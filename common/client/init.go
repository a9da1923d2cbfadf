package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/cliproxy/gateway/common/config"
	"github.com/cliproxy/gateway/common/logger"
	netutil "github.com/cliproxy/gateway/common/network"
)

// HTTPClient is the default outbound client used to forward requests to
// providers.
var HTTPClient *http.Client

// ImpatientHTTPClient is a short-timeout client for quick health checks.
var ImpatientHTTPClient *http.Client

// buildUserContentDialContext enforces that outbound connections only target public IPs.
// Parameters: proxyURL is the optional proxy address; returns a DialContext function for http.Transport.
func buildUserContentDialContext(proxyURL *url.URL) func(ctx context.Context, networkName string, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	proxyHost := ""
	if proxyURL != nil {
		proxyHost = strings.ToLower(proxyURL.Hostname())
	}

	return func(ctx context.Context, networkName string, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, errors.Wrapf(err, "split host and port: %s", addr)
		}

		if proxyHost != "" && strings.EqualFold(host, proxyHost) {
			return dialer.DialContext(ctx, networkName, addr)
		}

		if ip := net.ParseIP(host); ip != nil {
			if netutil.IsForbiddenIP(ip) {
				return nil, errors.Errorf("blocked private address: %s", host)
			}
			return dialer.DialContext(ctx, networkName, net.JoinHostPort(ip.String(), port))
		}

		ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve host: %s", host)
		}
		if len(ips) == 0 {
			return nil, errors.Errorf("no IPs found for host: %s", host)
		}

		for _, addr := range ips {
			if netutil.IsForbiddenIP(addr.IP) {
				return nil, errors.Errorf("blocked private address for host: %s", host)
			}
		}

		return dialer.DialContext(ctx, networkName, net.JoinHostPort(ips[0].IP.String(), port))
	}
}

// Init builds the shared HTTP clients used to forward requests to
// providers, with proxy and timeout settings derived from configuration.
// Outbound connections are still SSRF-guarded even though provider base
// URLs are operator-configured, not user-supplied: a misconfigured or
// compromised ProviderStore entry should not be able to pivot into the
// local network.
func Init() {
	createTransport := func(proxyURL *url.URL) *http.Transport {
		transport := &http.Transport{
			TLSNextProto: make(map[string]func(authority string, c *tls.Conn) http.RoundTripper), // Disable HTTP/2
			DialContext:  buildUserContentDialContext(proxyURL),
		}
		if proxyURL != nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
		return transport
	}

	var transport http.RoundTripper
	if config.RelayProxy != "" {
		logger.Logger.Info("using relay proxy", zap.String("proxy", config.RelayProxy))
		proxyURL, err := url.Parse(config.RelayProxy)
		if err != nil {
			logger.Logger.Fatal(fmt.Sprintf("RELAY_PROXY set but invalid: %s", config.RelayProxy))
		}
		transport = createTransport(proxyURL)
	} else {
		transport = createTransport(nil)
	}

	if config.RelayTimeout == 0 {
		HTTPClient = &http.Client{Transport: transport}
	} else {
		HTTPClient = &http.Client{
			Timeout:   time.Duration(config.RelayTimeout) * time.Second,
			Transport: transport,
		}
	}

	ImpatientHTTPClient = &http.Client{
		Timeout:   5 * time.Second,
		Transport: transport,
	}
}
