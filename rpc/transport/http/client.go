package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ValentinKolb/dTree/rpc/common"
	"github.com/ValentinKolb/dTree/rpc/transport"
)

func NewHttpClientTransport() transport.IRPCClientTransport {
	return &httpClientTransport{}
}

type httpClientTransport struct {
	client  *http.Client
	timeout time.Duration
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *httpClientTransport) Connect(config common.ClientConfig) error {
	maxIdle := config.Transport.ConnectionsPerEndpoint
	if maxIdle < 10 {
		maxIdle = 10
	}

	t.client = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: maxIdle,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	t.timeout = config.Timeout()
	return nil
}

func (t *httpClientTransport) Send(ctx context.Context, endpoint string, shardId uint64, req []byte) ([]byte, error) {
	resp, cancel, err := t.post(ctx, endpoint, fmt.Sprintf("/%d", shardId), req)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response from %s: %v", transport.ErrUnavailable, endpoint, err)
	}
	return body, nil
}

func (t *httpClientTransport) SendStream(ctx context.Context, endpoint string, shardId uint64, req []byte, onFrame func([]byte) error) ([]byte, error) {
	resp, cancel, err := t.post(ctx, endpoint, fmt.Sprintf("/%d/stream", shardId), req)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer resp.Body.Close()

	for {
		kind, data, err := readChunk(resp.Body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: stream from %s broke: %v", transport.ErrUnavailable, endpoint, err)
		}
		if kind == chunkFinal {
			return data, nil
		}
		if err := onFrame(data); err != nil {
			return nil, err
		}
	}
}

func (t *httpClientTransport) Close() error {
	if t.client != nil {
		t.client.CloseIdleConnections()
	}
	t.client = nil
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// post sends the request and checks the status code. The returned cancel func must be
// called after the body was consumed.
func (t *httpClientTransport) post(ctx context.Context, endpoint, path string, req []byte) (*http.Response, context.CancelFunc, error) {
	if t.client == nil {
		return nil, nil, fmt.Errorf("http transport not initialized")
	}

	cancel := context.CancelFunc(func() {})
	if _, ok := ctx.Deadline(); !ok && t.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL(endpoint)+path, bytes.NewReader(req))
	if err != nil {
		cancel()
		return nil, nil, err
	}

	httpResponse, err := t.client.Do(httpRequest)
	if err != nil {
		cancel()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, ctx.Err()
		}
		return nil, nil, fmt.Errorf("%w: %v", transport.ErrUnavailable, err)
	}

	if httpResponse.StatusCode != http.StatusOK {
		httpResponse.Body.Close()
		cancel()
		return nil, nil, fmt.Errorf("http error: %s", httpResponse.Status)
	}
	return httpResponse, cancel, nil
}

// baseURL adds the scheme to bare host:port endpoints
func baseURL(endpoint string) string {
	endpoint = strings.TrimRight(endpoint, "/")
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return "http://" + endpoint
}
