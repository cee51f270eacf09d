package client

import (
	"net"
	"net/http"
	"time"
)

// NewTransport builds the pooled transport shared by every request of a
// Client. Connections are kept alive between the pages of a chain, which
// usually live on the same host. A negative KeepAlive disables reuse.
//
// Timeout bounds the wait for response headers only; a page body may stream
// for longer than that.
func NewTransport(cfg Config) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: cfg.KeepAlive,
	}

	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		DisableKeepAlives:     cfg.KeepAlive < 0,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
	}
}
