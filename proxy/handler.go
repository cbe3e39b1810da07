// Package proxy forwards scored traffic to the protected upstream.
package proxy

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"ipsguard/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var UpstreamErrors = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "ipsguard_upstream_errors_total",
		Help: "Requests that failed to reach the upstream",
	},
)

type ReverseProxy struct {
	Target *url.URL
	Proxy  *httputil.ReverseProxy
}

func NewReverseProxy(target string) (*ReverseProxy, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream %q must be an absolute URL", target)
	}

	proxy := httputil.NewSingleHostReverseProxy(u)

	proxy.Transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	// 502 is recorded by Observe like any other upstream error status.
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		UpstreamErrors.Inc()
		logger.Error("Proxy error", "err", err, "path", r.URL.Path)
		w.WriteHeader(http.StatusBadGateway)
	}

	return &ReverseProxy{Target: u, Proxy: proxy}, nil
}

func (p *ReverseProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.Proxy.ServeHTTP(w, r)
}
