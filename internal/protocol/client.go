package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
)

// Client issues requests to remote peers over ProtocolID streams. One
// Client is shared process-wide; every call opens and closes its own
// stream, matching the "one request per stream" server contract.
type Client struct {
	h host.Host
}

func NewClient(h host.Host) *Client {
	return &Client{h: h}
}

const dialTimeout = 30 * time.Second

func (c *Client) open(ctx context.Context, target peer.ID) (network.Stream, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	str, err := c.h.NewStream(ctx, target, ProtocolID)
	if err != nil {
		return nil, fmt.Errorf("protocol: opening stream to %s: %w", target, err)
	}
	return str, nil
}

func request(str network.Stream, req any, resp any) error {
	b, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("protocol: marshaling request: %w", err)
	}
	b = append(b, '\n')
	if _, err := str.Write(b); err != nil {
		return fmt.Errorf("protocol: writing request: %w", err)
	}
	if err := str.CloseWrite(); err != nil {
		return fmt.Errorf("protocol: closing write side: %w", err)
	}

	reader := bufio.NewReader(str)
	line, err := reader.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return fmt.Errorf("protocol: reading response: %w", err)
	}
	if err := json.Unmarshal(line, resp); err != nil {
		return fmt.Errorf("protocol: decoding response: %w", err)
	}
	return nil
}

func (c *Client) Handshake(ctx context.Context, target peer.ID, req HandshakeRequest) (HandshakeResponse, error) {
	var resp HandshakeResponse
	str, err := c.open(ctx, target)
	if err != nil {
		return resp, err
	}
	defer str.Close()
	req.Type = "HANDSHAKE"
	err = request(str, req, &resp)
	return resp, err
}

func (c *Client) ListStores(ctx context.Context, target peer.ID) (ListStoresResponse, error) {
	var resp ListStoresResponse
	str, err := c.open(ctx, target)
	if err != nil {
		return resp, err
	}
	defer str.Close()
	err = request(str, ListStoresRequest{Type: "LIST_STORES"}, &resp)
	return resp, err
}

func (c *Client) FindStore(ctx context.Context, target peer.ID, storeID string) (FindStoreResponse, error) {
	var resp FindStoreResponse
	str, err := c.open(ctx, target)
	if err != nil {
		return resp, err
	}
	defer str.Close()
	err = request(str, FindStoreRequest{Type: "FIND_STORE", StoreID: storeID}, &resp)
	return resp, err
}

// GetStoreContent opens a stream, reads the JSON header, and returns the
// still-open stream positioned at the start of the body for the caller
// to copy out (the body may be large, so it is never buffered here).
func (c *Client) GetStoreContent(ctx context.Context, target peer.ID, storeID string) (GetStoreContentHeader, io.ReadCloser, error) {
	var hdr GetStoreContentHeader
	str, err := c.open(ctx, target)
	if err != nil {
		return hdr, nil, err
	}
	if err := writeRequestOnly(str, GetStoreContentRequest{Type: "GET_STORE_CONTENT", StoreID: storeID}); err != nil {
		str.Close()
		return hdr, nil, err
	}
	reader := bufio.NewReader(str)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		str.Close()
		return hdr, nil, fmt.Errorf("protocol: reading content header: %w", err)
	}
	if err := json.Unmarshal(line, &hdr); err != nil {
		str.Close()
		return hdr, nil, fmt.Errorf("protocol: decoding content header: %w", err)
	}
	return hdr, &streamBodyReader{reader: reader, stream: str}, nil
}

// GetFileRange behaves like GetStoreContent but for a single byte range.
func (c *Client) GetFileRange(ctx context.Context, target peer.ID, req GetFileRangeRequest) (GetFileRangeHeader, io.ReadCloser, error) {
	var hdr GetFileRangeHeader
	str, err := c.open(ctx, target)
	if err != nil {
		return hdr, nil, err
	}
	req.Type = "GET_FILE_RANGE"
	if err := writeRequestOnly(str, req); err != nil {
		str.Close()
		return hdr, nil, err
	}
	reader := bufio.NewReader(str)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		str.Close()
		return hdr, nil, fmt.Errorf("protocol: reading range header: %w", err)
	}
	if err := json.Unmarshal(line, &hdr); err != nil {
		str.Close()
		return hdr, nil, fmt.Errorf("protocol: decoding range header: %w", err)
	}
	return hdr, &streamBodyReader{reader: reader, stream: str}, nil
}

// GetURN behaves like GetStoreContent but resolves a full URN, enforcing
// the root-hash pin server-side.
func (c *Client) GetURN(ctx context.Context, target peer.ID, urn string) (GetStoreContentHeader, io.ReadCloser, error) {
	var hdr GetStoreContentHeader
	str, err := c.open(ctx, target)
	if err != nil {
		return hdr, nil, err
	}
	if err := writeRequestOnly(str, GetURNRequest{Type: "GET_URN", URN: urn}); err != nil {
		str.Close()
		return hdr, nil, err
	}
	reader := bufio.NewReader(str)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		str.Close()
		return hdr, nil, fmt.Errorf("protocol: reading urn header: %w", err)
	}
	if err := json.Unmarshal(line, &hdr); err != nil {
		str.Close()
		return hdr, nil, fmt.Errorf("protocol: decoding urn header: %w", err)
	}
	return hdr, &streamBodyReader{reader: reader, stream: str}, nil
}

func (c *Client) PeerExchange(ctx context.Context, target peer.ID, req PeerExchangeRequest) (PeerExchangeResponse, error) {
	var resp PeerExchangeResponse
	str, err := c.open(ctx, target)
	if err != nil {
		return resp, err
	}
	defer str.Close()
	req.Type = "PEER_EXCHANGE"
	err = request(str, req, &resp)
	return resp, err
}

func (c *Client) PrivacyPeerDiscovery(ctx context.Context, target peer.ID, req PrivacyPeerDiscoveryRequest) (PeerExchangeResponse, error) {
	var resp PeerExchangeResponse
	str, err := c.open(ctx, target)
	if err != nil {
		return resp, err
	}
	defer str.Close()
	req.Type = "PRIVACY_PEER_DISCOVERY"
	err = request(str, req, &resp)
	return resp, err
}

func writeRequestOnly(str network.Stream, req any) error {
	b, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("protocol: marshaling request: %w", err)
	}
	b = append(b, '\n')
	if _, err := str.Write(b); err != nil {
		return fmt.Errorf("protocol: writing request: %w", err)
	}
	return str.CloseWrite()
}

// streamBodyReader closes the underlying stream once the caller is done
// reading the body, so a cancelled download does not leak a half-open
// stream.
type streamBodyReader struct {
	reader *bufio.Reader
	stream network.Stream
}

func (r *streamBodyReader) Read(p []byte) (int, error) { return r.reader.Read(p) }
func (r *streamBodyReader) Close() error                { return r.stream.Close() }
