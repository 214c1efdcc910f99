// Package proxy forwards gateway traffic to a per-request target,
// stripping the routing prefix before the request leaves the gateway.
package proxy

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/rifat-hasan/usergate/libs/httpx"
)

// Config for one proxied route prefix.
type Config struct {
	// Prefix is the inbound path prefix, e.g. "/users". It is removed
	// before forwarding so the upstream sees "/" rooted paths.
	Prefix string
	// Pick returns the upstream base URL for one request. It is called
	// once per request and must be safe for concurrent use.
	Pick func() *url.URL
	// ChangeOrigin rewrites the outbound Host header to the target's
	// host. When false the client's Host header is passed through.
	ChangeOrigin bool
	// Transport overrides the outbound round tripper when set.
	Transport http.RoundTripper
}

// New builds the reverse proxy handler for one route prefix. Upstream
// transport failures answer 502 with a generic JSON body; there is no
// retry and no failover to the alternate instance.
func New(logger *slog.Logger, cfg Config) http.Handler {
	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			target := cfg.Pick()
			pr.SetXForwarded()
			pr.SetURL(target)
			pr.Out.URL.Path = stripPrefix(pr.In.URL.Path, cfg.Prefix)
			pr.Out.URL.RawPath = ""
			if !cfg.ChangeOrigin {
				pr.Out.Host = pr.In.Host
			}
			logger.Info("proxying request",
				"prefix", cfg.Prefix,
				"method", pr.In.Method,
				"path", pr.In.URL.Path,
				"target", target.String(),
			)
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("proxy error", "prefix", cfg.Prefix, "path", r.URL.Path, "err", err)
			httpx.Error(w, http.StatusBadGateway, "gateway error while proxying "+cfg.Prefix)
		},
	}
	if cfg.Transport != nil {
		rp.Transport = cfg.Transport
	}
	return rp
}

// SingleTarget is a Pick func for routes with one fixed upstream.
func SingleTarget(u *url.URL) func() *url.URL {
	return func() *url.URL { return u }
}

func stripPrefix(path, prefix string) string {
	p := strings.TrimPrefix(path, prefix)
	if p == "" || p[0] != '/' {
		p = "/" + p
	}
	return p
}
