package config

import (
	"errors"
	"time"

	"github.com/chainpulse/blockwatch/models"
	flags "github.com/jessevdk/go-flags"
)

type NetworkEndpoints struct {
	EVMRPCURLs        []string `long:"evm-rpc-url" description:"EVM JSON-RPC endpoint, repeatable, tried in order" env-delim:","`
	TendermintRPCURLs []string `long:"tendermint-rpc-url" description:"Tendermint RPC endpoint, repeatable, tried in order" env-delim:","`
	RESTURLs          []string `long:"rest-url" description:"REST block API endpoint, repeatable, tried in order" env-delim:","`
}

func (n NetworkEndpoints) HasError() error {
	if len(n.EVMRPCURLs) == 0 || len(n.TendermintRPCURLs) == 0 || len(n.RESTURLs) == 0 {
		return errors.New("every source family needs at least one endpoint")
	}
	return nil
}

type Config struct {
	ListenAddr  string `long:"listen-addr" env:"LISTEN_ADDR" description:"HTTP listen address" default:":8080"`
	DatabaseURL string `long:"database-url" env:"DATABASE_URL" description:"Postgres connection URL" required:"true"`

	CycleToken    string        `long:"cycle-token" env:"CYCLE_TOKEN" description:"Bearer token protecting the cycle trigger endpoint"`                                      // nolint:lll
	CycleInterval time.Duration `long:"cycle-interval" env:"CYCLE_INTERVAL" description:"Interval between unattended processing cycles; 0 disables the loop" default:"60s"` // nolint:lll

	SourceTimeout    time.Duration `long:"source-timeout" env:"SOURCE_TIMEOUT" description:"Per-source timeout during aggregation" default:"10s"`                    // nolint:lll
	SubscribeTimeout time.Duration `long:"subscribe-timeout" env:"SUBSCRIBE_TIMEOUT" description:"Timeout for the estimate on the subscription path" default:"10s"` // nolint:lll
	WebhookTimeout   time.Duration `long:"webhook-timeout" env:"WEBHOOK_TIMEOUT" description:"Timeout for one webhook delivery" default:"10s"`                      // nolint:lll

	MaxConcurrentRequests int `long:"max-concurrent-requests" env:"MAX_CONCURRENT_REQUESTS" description:"Cap on in-flight source RPC requests" default:"16"` // nolint:lll

	Mainnet NetworkEndpoints `group:"mainnet" namespace:"mainnet" env-namespace:"MAINNET"`
	Testnet NetworkEndpoints `group:"testnet" namespace:"testnet" env-namespace:"TESTNET"`
}

func (c Config) HasError() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required")
	}
	if err := c.Mainnet.HasError(); err != nil {
		return err
	}
	return c.Testnet.HasError()
}

// Endpoints maps the two configured network variants to their per-family
// endpoint lists.
func (c Config) Endpoints() map[models.Network]models.NetworkEndpoints {
	return map[models.Network]models.NetworkEndpoints{
		models.NetworkMainnet: {
			EVMRPCURLs:        c.Mainnet.EVMRPCURLs,
			TendermintRPCURLs: c.Mainnet.TendermintRPCURLs,
			RESTURLs:          c.Mainnet.RESTURLs,
		},
		models.NetworkTestnet: {
			EVMRPCURLs:        c.Testnet.EVMRPCURLs,
			TendermintRPCURLs: c.Testnet.TendermintRPCURLs,
			RESTURLs:          c.Testnet.RESTURLs,
		},
	}
}

func Parse() (*Config, error) {
	var config Config
	parser := flags.NewParser(&config, flags.Default)
	_, err := parser.Parse()
	if err != nil {
		return nil, err
	}
	if err := config.HasError(); err != nil {
		return nil, err
	}
	return &config, nil
}
