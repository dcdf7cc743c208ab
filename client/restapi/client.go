// Package restapi reads the current chain state from REST block-query
// endpoints (/blocks/latest, /blocks/{height}).
package restapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/chainpulse/blockwatch/client/pool"
	"github.com/chainpulse/blockwatch/lib/failover"
	"github.com/chainpulse/blockwatch/models"
	"github.com/go-errors/errors"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	SourceName = "rest-api"

	lookbackBlocks = int64(100)

	latestBlockPath = "/cosmos/base/tendermint/v1beta1/blocks/latest"
	blockByHeight   = "/cosmos/base/tendermint/v1beta1/blocks/%d"
)

type Client struct {
	log        *slog.Logger
	httpClient pool.HTTPClient
	wrkPool    *pool.WorkerPool
}

func New(log *slog.Logger, httpClient pool.HTTPClient, wrkPool *pool.WorkerPool) *Client {
	return &Client{
		log:        log.With("module", "restapi"),
		httpClient: httpClient,
		wrkPool:    wrkPool,
	}
}

func (c *Client) Source() string {
	return SourceName
}

type blockHeader struct {
	height int64
	time   time.Time
}

// CurrentState resolves the latest block across urls in fallback order, then
// fetches the lookback block from the same resolved endpoint and averages the
// block time over the two blocks' wall-clock timestamps.
func (c *Client) CurrentState(ctx context.Context, urls []string) (models.SourceResult, error) {
	latest, endpoint, err := failover.TryInOrder(ctx, urls, func(ctx context.Context, url string) (blockHeader, error) {
		return c.block(ctx, url+latestBlockPath)
	})
	if err != nil {
		return models.SourceResult{}, err
	}

	earlierHeight := latest.height - lookbackBlocks
	if earlierHeight < 1 {
		earlierHeight = 1
	}
	if earlierHeight == latest.height {
		return models.SourceResult{}, errors.Errorf("chain at height %d is too short to average block time", latest.height)
	}

	earlier, err := c.block(ctx, endpoint+fmt.Sprintf(blockByHeight, earlierHeight))
	if err != nil {
		return models.SourceResult{}, errors.Errorf("fetch block %d from %s: %w", earlierHeight, endpoint, err)
	}

	elapsedMs := float64(latest.time.Sub(earlier.time)) / float64(time.Millisecond)
	avgMs := elapsedMs / float64(latest.height-earlier.height)
	return models.SourceResult{
		Source:         SourceName,
		Height:         latest.height,
		AvgBlockTimeMs: avgMs,
		Endpoint:       endpoint,
	}, nil
}

func (c *Client) block(ctx context.Context, url string) (blockHeader, error) {
	var resp struct {
		Block struct {
			Header struct {
				Height string    `json:"height"`
				Time   time.Time `json:"time"`
			} `json:"header"`
		} `json:"block"`
	}
	if err := c.get(ctx, url, &resp); err != nil {
		return blockHeader{}, err
	}
	height, err := strconv.ParseInt(resp.Block.Header.Height, 10, 64)
	if err != nil {
		return blockHeader{}, errors.Errorf("parse block height %q: %w", resp.Block.Header.Height, err)
	}
	if height == 0 || resp.Block.Header.Time.IsZero() {
		return blockHeader{}, errors.New("block response missing height or time")
	}
	return blockHeader{height: height, time: resp.Block.Header.Time}, nil
}

func (c *Client) get(ctx context.Context, url string, out any) error {
	return c.wrkPool.Execute(func() error {
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.log.Warn("REST request failed", "url", url, "error", err)
			return errors.Errorf("failed to send request to %s: %w", url, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return errors.Errorf("block not found at %s", url)
		}
		if resp.StatusCode != http.StatusOK {
			return errors.Errorf("response from %s has status code %d", url, resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.Errorf("failed to read response body from %s: %w", url, err)
		}
		if err := json.Unmarshal(body, out); err != nil {
			return errors.Errorf("decode response from %s: %w", url, err)
		}
		return nil
	})
}
