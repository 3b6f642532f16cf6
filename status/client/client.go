// Package client queries the admin server's status API.
package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	fspath "path"
	"time"

	"github.com/cidmesh/cidmesh/gossip"
	"github.com/cidmesh/cidmesh/sync"
)

type Client struct {
	httpClient *http.Client

	url *url.URL
}

func NewClient(url *url.URL) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Second * 15,
		},
		url: url,
	}
}

func (c *Client) SyncChannels() ([]sync.ChannelStatus, error) {
	r, err := c.request("/status/sync/channels")
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var channels []sync.ChannelStatus
	if err := json.NewDecoder(r).Decode(&channels); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return channels, nil
}

func (c *Client) GossipNode() (*gossip.NodeInfo, error) {
	r, err := c.request("/status/gossip/node")
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var node gossip.NodeInfo
	if err := json.NewDecoder(r).Decode(&node); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &node, nil
}

func (c *Client) GossipPeers() ([]gossip.PeerInfo, error) {
	r, err := c.request("/status/gossip/peers")
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var peers []gossip.PeerInfo
	if err := json.NewDecoder(r).Decode(&peers); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return peers, nil
}

func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) request(path string) (io.ReadCloser, error) {
	url := new(url.URL)
	*url = *c.url

	url.Path = fspath.Join(url.Path, path)

	req, err := http.NewRequest(http.MethodGet, url.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()

		return nil, fmt.Errorf("request: bad status: %d", resp.StatusCode)
	}

	return resp.Body, nil
}
