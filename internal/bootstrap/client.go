package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/dig-network/dignode/internal/digerr"
	"github.com/dig-network/dignode/internal/store"
)

const (
	requestTimeout = 30 * time.Second
	maxAttempts    = 3
)

// Client is the REST client for the bootstrap service of §4.10/§6. It is
// LAST RESORT by policy: internal/syncsvc and internal/download only call
// into it once every peer path has been exhausted.
type Client struct {
	log     *zap.Logger
	hc      *http.Client
	servers []string // base URLs, e.g. "https://bootstrap.dig.net"

	selfPeerID string
	stores     *store.Registry
}

// New constructs a client that tries each configured server in order,
// mirroring the teacher's round-robin dial-the-list pattern in
// node.go's bootstrap connect loop. selfPeerID and stores are used by
// PullMissing/FetchDirect to bind relayed fetches to this node's
// identity and local registry.
func New(log *zap.Logger, servers []string, selfPeerID string, stores *store.Registry) *Client {
	return &Client{
		log:        log,
		hc:         &http.Client{Timeout: requestTimeout},
		servers:    servers,
		selfPeerID: selfPeerID,
		stores:     stores,
	}
}

// Register advertises this node's crypto-IPv6 and stores to every
// configured bootstrap server, returning the first success.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (RegisterResponse, error) {
	var resp RegisterResponse
	err := c.tryServers(ctx, func(ctx context.Context, base string) error {
		return c.doJSON(ctx, http.MethodPost, base+"/register", req, &resp)
	})
	return resp, err
}

// Directory fetches the crypto-IPv6 directory from the first reachable
// bootstrap server, optionally including each peer's announced stores.
func (c *Client) Directory(ctx context.Context, includeStores bool) (DirectoryResponse, error) {
	var resp DirectoryResponse
	path := "/crypto-ipv6-directory"
	if includeStores {
		path += "?includeStores=true"
	}
	err := c.tryServers(ctx, func(ctx context.Context, base string) error {
		return c.doJSON(ctx, http.MethodGet, base+path, nil, &resp)
	})
	return resp, err
}

// TurnDirect asks a bootstrap server to broker a direct connection,
// returning the holder's source addresses.
func (c *Client) TurnDirect(ctx context.Context, req TurnRequest) (TurnDirectResponse, error) {
	var resp TurnDirectResponse
	err := c.tryServers(ctx, func(ctx context.Context, base string) error {
		return c.doJSON(ctx, http.MethodPost, base+"/bootstrap-turn-direct", req, &resp)
	})
	return resp, err
}

// TurnRelay fetches a store's bytes proxied by a bootstrap server: the
// response body is the raw octet-stream payload, not JSON, so the caller
// owns closing it.
func (c *Client) TurnRelay(ctx context.Context, req TurnRequest) (io.ReadCloser, int64, error) {
	var body io.ReadCloser
	var size int64
	err := c.tryServers(ctx, func(ctx context.Context, base string) error {
		r, n, err := c.doStream(ctx, base+"/bootstrap-turn-relay", req)
		if err != nil {
			return err
		}
		body, size = r, n
		return nil
	})
	return body, size, err
}

// InitiateRelay asks a bootstrap server to set up circuit relay between
// two peer-ids.
func (c *Client) InitiateRelay(ctx context.Context, req TurnRequest) (InitiateRelayResponse, error) {
	var resp InitiateRelayResponse
	err := c.tryServers(ctx, func(ctx context.Context, base string) error {
		return c.doJSON(ctx, http.MethodPost, base+"/initiate-relay", req, &resp)
	})
	return resp, err
}

// tryServers attempts op against every configured server in order, with
// a bounded backoff retry per server, stopping at the first success.
func (c *Client) tryServers(ctx context.Context, op func(ctx context.Context, base string) error) error {
	if len(c.servers) == 0 {
		return fmt.Errorf("bootstrap: %w: no servers configured", digerr.ErrResolutionUnavailable)
	}

	var lastErr error
	for _, base := range c.servers {
		b := &backoff.Backoff{Min: 200 * time.Millisecond, Max: 2 * time.Second, Factor: 2, Jitter: true}
		for attempt := 0; attempt < maxAttempts; attempt++ {
			err := op(ctx, base)
			if err == nil {
				return nil
			}
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.Duration()):
			}
		}
		c.log.Debug("bootstrap: server exhausted retries", zap.String("server", base), zap.Error(lastErr))
	}
	return fmt.Errorf("bootstrap: %w: %v", digerr.ErrResolutionUnavailable, lastErr)
}

func (c *Client) doJSON(ctx context.Context, method, url string, reqBody, respBody any) error {
	var bodyReader io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("bootstrap: %s returned status %d", url, resp.StatusCode)
	}
	if respBody == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(respBody)
}

func (c *Client) doStream(ctx context.Context, url string, reqBody any) (io.ReadCloser, int64, error) {
	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("bootstrap: %s returned status %d", url, resp.StatusCode)
	}
	return resp.Body, resp.ContentLength, nil
}
