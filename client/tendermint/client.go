// Package tendermint reads the current chain state from Tendermint-style
// RPC nodes (/status, /block?height=N).
package tendermint

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
	SourceName = "tendermint-rpc"

	lookbackBlocks = int64(200)
)

type Client struct {
	log        *slog.Logger
	httpClient pool.HTTPClient
	wrkPool    *pool.WorkerPool
}

func New(log *slog.Logger, httpClient pool.HTTPClient, wrkPool *pool.WorkerPool) *Client {
	return &Client{
		log:        log.With("module", "tendermint"),
		httpClient: httpClient,
		wrkPool:    wrkPool,
	}
}

func (c *Client) Source() string {
	return SourceName
}

type chainTip struct {
	height int64
	time   time.Time
}

// CurrentState resolves the node status across urls in fallback order, then
// fetches the lookback block from the same resolved endpoint. The average
// block time is derived from the wall-clock timestamps carried on the two
// blocks, not from block indices.
func (c *Client) CurrentState(ctx context.Context, urls []string) (models.SourceResult, error) {
	tip, endpoint, err := failover.TryInOrder(ctx, urls, c.status)
	if err != nil {
		return models.SourceResult{}, err
	}

	earlierHeight := tip.height - lookbackBlocks
	if earlierHeight < 1 {
		earlierHeight = 1
	}
	if earlierHeight == tip.height {
		return models.SourceResult{}, errors.Errorf("chain at height %d is too short to average block time", tip.height)
	}

	earlierTime, err := c.blockTime(ctx, endpoint, earlierHeight)
	if err != nil {
		return models.SourceResult{}, errors.Errorf("fetch block %d from %s: %w", earlierHeight, endpoint, err)
	}

	elapsedMs := float64(tip.time.Sub(earlierTime)) / float64(time.Millisecond)
	avgMs := elapsedMs / float64(tip.height-earlierHeight)
	return models.SourceResult{
		Source:         SourceName,
		Height:         tip.height,
		AvgBlockTimeMs: avgMs,
		Endpoint:       endpoint,
	}, nil
}

func (c *Client) status(ctx context.Context, url string) (chainTip, error) {
	var resp struct {
		Result struct {
			SyncInfo struct {
				LatestBlockHeight string    `json:"latest_block_height"`
				LatestBlockTime   time.Time `json:"latest_block_time"`
			} `json:"sync_info"`
		} `json:"result"`
	}
	if err := c.get(ctx, url+"/status", &resp); err != nil {
		return chainTip{}, err
	}
	height, err := strconv.ParseInt(resp.Result.SyncInfo.LatestBlockHeight, 10, 64)
	if err != nil {
		return chainTip{}, errors.Errorf("parse latest_block_height %q: %w", resp.Result.SyncInfo.LatestBlockHeight, err)
	}
	if height == 0 {
		return chainTip{}, errors.New("status reported height 0")
	}
	return chainTip{height: height, time: resp.Result.SyncInfo.LatestBlockTime}, nil
}

func (c *Client) blockTime(ctx context.Context, url string, height int64) (time.Time, error) {
	var resp struct {
		Result struct {
			Block struct {
				Header struct {
					Time time.Time `json:"time"`
				} `json:"header"`
			} `json:"block"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
			Data    string `json:"data"`
		} `json:"error"`
	}
	if err := c.get(ctx, fmt.Sprintf("%s/block?height=%d", url, height), &resp); err != nil {
		return time.Time{}, err
	}
	if resp.Error != nil {
		return time.Time{}, errors.Errorf("rpc error: %s %s", resp.Error.Message, resp.Error.Data)
	}
	if resp.Result.Block.Header.Time.IsZero() {
		return time.Time{}, errors.Errorf("block %d has no timestamp", height)
	}
	return resp.Result.Block.Header.Time, nil
}

func (c *Client) get(ctx context.Context, url string, out any) error {
	return c.wrkPool.Execute(func() error {
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.log.Warn("RPC request failed", "url", url, "error", err)
			return errors.Errorf("failed to send request to %s: %w", url, err)
		}
		defer resp.Body.Close()
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
