package feed

import (
	"context"
	"io"
	"net/http"
	"time"

	"meshmap/internal/topology"
)

// maxPayloadBytes caps the size of a topology document.
const maxPayloadBytes = 32 << 20

// HTTPSource GETs the payload from URL.
type HTTPSource struct {
	URL    string
	Client *http.Client
	Parse  topology.ParseOptions
	// MaxBytes overrides maxPayloadBytes when positive.
	MaxBytes int64
}

func NewHTTPSource(url string, timeout time.Duration, opts topology.ParseOptions) *HTTPSource {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSource{URL: url, Client: &http.Client{Timeout: timeout}, Parse: opts}
}

func (s *HTTPSource) Fetch(ctx context.Context) (*topology.Snapshot, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fetchErr("build request: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fetchErr("%v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fetchErr("%s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.limit()+1))
	if err != nil {
		return nil, fetchErr("read body: %v", err)
	}
	if int64(len(data)) > s.limit() {
		return nil, fetchErr("payload exceeds %d bytes", s.limit())
	}
	return parse(data, s.Parse)
}

func (s *HTTPSource) limit() int64 {
	if s.MaxBytes > 0 {
		return s.MaxBytes
	}
	return maxPayloadBytes
}
