package restapi_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/chainpulse/blockwatch/client/pool"
	"github.com/chainpulse/blockwatch/client/restapi"
	"github.com/chainpulse/blockwatch/lib/failover"
	pool_mock "github.com/chainpulse/blockwatch/mocks/pool"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorkerPool(t *testing.T) *pool.WorkerPool {
	t.Helper()
	wrkPool, err := pool.NewWorkerPool(4)
	require.NoError(t, err)
	t.Cleanup(wrkPool.Release)
	return wrkPool
}

type restResponse struct {
	status int
	body   string
}

// mockNodes routes GET requests by full URL. URLs absent from the map refuse
// the connection.
func mockNodes(responses map[string]restResponse) *pool_mock.HTTPClientMock {
	return &pool_mock.HTTPClientMock{
		DoFunc: func(req *retryablehttp.Request) (*http.Response, error) {
			r, ok := responses[req.URL.String()]
			if !ok {
				return nil, fmt.Errorf("connection refused: %s", req.URL)
			}
			status := r.status
			if status == 0 {
				status = http.StatusOK
			}
			resp := &http.Response{
				StatusCode: status,
				Body:       io.NopCloser(strings.NewReader(r.body)),
				Header:     make(http.Header),
			}
			resp.Header.Set("Content-Type", "application/json")
			return resp, nil
		},
	}
}

func blockResponse(height int64, blockTime string) string {
	return fmt.Sprintf(`{"block":{"header":{"height":"%d","time":"%s"}}}`, height, blockTime)
}

const (
	latestPath = "/cosmos/base/tendermint/v1beta1/blocks/latest"
	heightPath = "/cosmos/base/tendermint/v1beta1/blocks/%d"
)

func TestCurrentStateAveragesOverLookbackWindow(t *testing.T) {
	// 100 blocks over 5 minutes is a 3000ms average.
	httpClient := mockNodes(map[string]restResponse{
		"https://api-a.example.com" + latestPath:                    {body: blockResponse(5000, "2026-03-01T12:00:00Z")},
		"https://api-a.example.com" + fmt.Sprintf(heightPath, 4900): {body: blockResponse(4900, "2026-03-01T11:55:00Z")},
	})
	client := restapi.New(newTestLogger(), httpClient, newTestWorkerPool(t))

	result, err := client.CurrentState(context.Background(), []string{"https://api-a.example.com"})
	require.NoError(t, err)
	require.Equal(t, restapi.SourceName, result.Source)
	require.Equal(t, int64(5000), result.Height)
	require.InDelta(t, 3000.0, result.AvgBlockTimeMs, 0.001)
	require.Equal(t, "https://api-a.example.com", result.Endpoint)
}

func TestCurrentStateFallsBackOnDeadPrimary(t *testing.T) {
	httpClient := mockNodes(map[string]restResponse{
		"https://api-b.example.com" + latestPath:                    {body: blockResponse(5000, "2026-03-01T12:00:00Z")},
		"https://api-b.example.com" + fmt.Sprintf(heightPath, 4900): {body: blockResponse(4900, "2026-03-01T11:55:00Z")},
	})
	client := restapi.New(newTestLogger(), httpClient, newTestWorkerPool(t))

	result, err := client.CurrentState(context.Background(),
		[]string{"https://api-a.example.com", "https://api-b.example.com"})
	require.NoError(t, err)
	require.Equal(t, "https://api-b.example.com", result.Endpoint)
}

func TestCurrentStateExhaustsEndpoints(t *testing.T) {
	httpClient := mockNodes(map[string]restResponse{})
	client := restapi.New(newTestLogger(), httpClient, newTestWorkerPool(t))

	_, err := client.CurrentState(context.Background(),
		[]string{"https://api-a.example.com", "https://api-b.example.com"})
	var exhausted *failover.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, exhausted.Attempts, 2)
}

func TestCurrentStatePrunedLookbackBlockIsAnError(t *testing.T) {
	httpClient := mockNodes(map[string]restResponse{
		"https://api-a.example.com" + latestPath:                    {body: blockResponse(5000, "2026-03-01T12:00:00Z")},
		"https://api-a.example.com" + fmt.Sprintf(heightPath, 4900): {status: http.StatusNotFound, body: `{"code":5,"message":"block not found"}`},
	})
	client := restapi.New(newTestLogger(), httpClient, newTestWorkerPool(t))

	_, err := client.CurrentState(context.Background(), []string{"https://api-a.example.com"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "block not found")
}

func TestCurrentStateRejectsMalformedHeader(t *testing.T) {
	httpClient := mockNodes(map[string]restResponse{
		"https://api-a.example.com" + latestPath: {body: `{"block":{"header":{"height":"","time":"2026-03-01T12:00:00Z"}}}`},
	})
	client := restapi.New(newTestLogger(), httpClient, newTestWorkerPool(t))

	_, err := client.CurrentState(context.Background(), []string{"https://api-a.example.com"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse block height")
}
