package utils

import (
	"net/http"
	"time"
)

type HTTPClientConfig struct {
	Timeout   time.Duration
	KATimeout time.Duration
	UserAgent string
	Headers   map[string]string
}

// HTTPDoer is the transport seam between the engine and the network; tests
// substitute an httptest-backed client here.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type StashHTTPClient struct {
	client *http.Client
	config HTTPClientConfig
}

func NewStashHTTPClient(cfg HTTPClientConfig) *StashHTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.KATimeout == 0 {
		cfg.KATimeout = 60 * time.Second
	}
	transport := &http.Transport{
		IdleConnTimeout:     cfg.KATimeout,
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 16,
		DisableCompression:  true,
	}
	return &StashHTTPClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		config: cfg,
	}
}

func (s *StashHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if s.config.UserAgent != "" {
		req.Header.Set("User-Agent", s.config.UserAgent)
	} else {
		req.Header.Set("User-Agent", "clipstash")
	}
	for k, v := range s.config.Headers {
		req.Header.Set(k, v)
	}
	return s.client.Do(req)
}
