package models

type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
)

func (n Network) String() string {
	return string(n)
}

func (n Network) Valid() bool {
	return n == NetworkMainnet || n == NetworkTestnet
}

// NetworkEndpoints carries the per-source-family endpoint lists for one
// network. List order is the fallback priority: first entry is preferred.
type NetworkEndpoints struct {
	EVMRPCURLs        []string
	TendermintRPCURLs []string
	RESTURLs          []string
}

func (e NetworkEndpoints) HasAllFamilies() bool {
	return len(e.EVMRPCURLs) > 0 && len(e.TendermintRPCURLs) > 0 && len(e.RESTURLs) > 0
}
