// Package evmrpc reads the current chain state from EVM-style JSON-RPC
// nodes (eth_blockNumber, eth_getBlockByNumber).
package evmrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/chainpulse/blockwatch/client/pool"
	"github.com/chainpulse/blockwatch/lib/failover"
	"github.com/chainpulse/blockwatch/lib/hexutils"
	"github.com/chainpulse/blockwatch/models"
	"github.com/go-errors/errors"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	SourceName = "evm-rpc"

	// lookbackBlocks is the window used to compute the average block time:
	// wide enough to smooth short-term jitter, small enough to stay recent.
	lookbackBlocks = int64(100)
)

var ErrBlockNotFound = errors.New("block not found")

type Client struct {
	log        *slog.Logger
	httpClient pool.HTTPClient
	wrkPool    *pool.WorkerPool
	bufPool    *sync.Pool
}

func New(log *slog.Logger, httpClient pool.HTTPClient, wrkPool *pool.WorkerPool) *Client {
	return &Client{
		log:        log.With("module", "evmrpc"),
		httpClient: httpClient,
		wrkPool:    wrkPool,
		bufPool: &sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}
}

func (c *Client) Source() string {
	return SourceName
}

// CurrentState resolves the latest height across urls in fallback order, then
// fetches the timestamps of that height and of the lookback height from the
// same resolved endpoint, so both reads are consistent against one node.
func (c *Client) CurrentState(ctx context.Context, urls []string) (models.SourceResult, error) {
	height, endpoint, err := failover.TryInOrder(ctx, urls, c.latestBlockNumber)
	if err != nil {
		return models.SourceResult{}, err
	}

	earlierHeight := height - lookbackBlocks
	if earlierHeight < 0 {
		earlierHeight = 0
	}
	if earlierHeight == height {
		return models.SourceResult{}, errors.Errorf("chain at height %d is too short to average block time", height)
	}

	laterTS, err := c.blockTimestamp(ctx, endpoint, height)
	if err != nil {
		return models.SourceResult{}, errors.Errorf("fetch block %d from %s: %w", height, endpoint, err)
	}
	earlierTS, err := c.blockTimestamp(ctx, endpoint, earlierHeight)
	if err != nil {
		return models.SourceResult{}, errors.Errorf("fetch block %d from %s: %w", earlierHeight, endpoint, err)
	}

	avgMs := float64(laterTS-earlierTS) * 1000 / float64(height-earlierHeight)
	return models.SourceResult{
		Source:         SourceName,
		Height:         height,
		AvgBlockTimeMs: avgMs,
		Endpoint:       endpoint,
	}, nil
}

func (c *Client) latestBlockNumber(ctx context.Context, url string) (int64, error) {
	var result string
	if err := c.call(ctx, url, "eth_blockNumber", []any{}, &result); err != nil {
		return 0, err
	}
	return hexutils.IntFromHex(result)
}

// blockTimestamp returns the unix timestamp of the block at the given height.
func (c *Client) blockTimestamp(ctx context.Context, url string, height int64) (int64, error) {
	var result *struct {
		Timestamp string `json:"timestamp"`
	}
	params := []any{fmt.Sprintf("0x%x", height), false}
	if err := c.call(ctx, url, "eth_getBlockByNumber", params, &result); err != nil {
		return 0, err
	}
	if result == nil {
		return 0, ErrBlockNotFound
	}
	return hexutils.IntFromHex(result.Timestamp)
}

// call sends one JSON-RPC request through the shared worker pool and decodes
// the result field into out.
func (c *Client) call(ctx context.Context, url string, method string, params []any, out any) error {
	return c.wrkPool.Execute(func() error {
		buf := c.bufPool.Get().(*bytes.Buffer)
		defer c.bufPool.Put(buf)
		buf.Reset()

		if err := c.getResponseBody(ctx, url, method, params, buf); err != nil {
			c.log.Warn("JSON-RPC request failed", "method", method, "url", url, "error", err)
			return err
		}

		resp := struct {
			Result json.RawMessage `json:"result"`
			Error  *struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}{}
		if err := json.NewDecoder(buf).Decode(&resp); err != nil {
			return errors.Errorf("decode response for method %s: %w", method, err)
		}
		if resp.Error != nil {
			return errors.Errorf("rpc error for method %s: %d %s", method, resp.Error.Code, resp.Error.Message)
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return errors.Errorf("decode result for method %s: %w", method, err)
		}
		return nil
	})
}

// getResponseBody sends a request to the server and reads the response body
// into output.
func (c *Client) getResponseBody(
	ctx context.Context, url string, method string, params []any, output *bytes.Buffer,
) error {
	reqData := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	}
	encoder := json.NewEncoder(output)
	if err := encoder.Encode(reqData); err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, output)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Errorf("failed to send request for method %s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("response for method %s has status code %d", method, resp.StatusCode)
	}

	output.Reset()
	if _, err := output.ReadFrom(resp.Body); err != nil {
		return errors.Errorf("failed to read response body for method %s: %w", method, err)
	}
	return nil
}
