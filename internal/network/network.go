// Package network describes the chains gaiachat recognises and validates
// wallet-supplied network identifiers against them.
package network

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gaiachat/internal/data/embedded"
	"gaiachat/pkg/gaiatypes"

	"gopkg.in/yaml.v3"
)

// Currency is a chain's native currency.
type Currency struct {
	Name     string `yaml:"name" json:"name"`
	Symbol   string `yaml:"symbol" json:"symbol"`
	Decimals int    `yaml:"decimals" json:"decimals"`
}

// StoragePricing is the linear storage cost estimate applied to transcripts.
type StoragePricing struct {
	RatePerKB   float64 `yaml:"rate_per_kb" json:"ratePerKB"`
	MinimumCost float64 `yaml:"minimum_cost" json:"minimumCost"`
	Note        string  `yaml:"note" json:"note"`
}

// Chain is one entry of the network catalog.
type Chain struct {
	Key               string         `yaml:"key" json:"key"`
	Name              string         `yaml:"name" json:"name"`
	ChainID           int64          `yaml:"chain_id" json:"chainId"`
	CAIP2             string         `yaml:"caip2" json:"caip2"`
	Currency          Currency       `yaml:"currency" json:"currency"`
	RPCURLs           []string       `yaml:"rpc_urls" json:"rpcUrls"`
	BlockExplorerURLs []string       `yaml:"block_explorer_urls" json:"blockExplorerUrls"`
	Storage           StoragePricing `yaml:"storage" json:"storage"`
}

// HexChainID returns the chain id in the 0x-prefixed form used by wallet RPCs.
func (c Chain) HexChainID() string {
	return "0x" + strings.ToUpper(strconv.FormatInt(c.ChainID, 16))
}

// Accepts reports whether id names this chain. Exactly two representations are
// accepted: the numeric chain id and its CAIP-2 string.
func (c Chain) Accepts(id gaiatypes.NetworkID) bool {
	if n, ok := id.Number(); ok {
		return n == c.ChainID
	}
	s, _ := id.Text()
	return s == c.CAIP2
}

// MatchesChainID reports whether a numeric chain id reported by a wallet is this chain.
func (c Chain) MatchesChainID(id int64) bool {
	return id == c.ChainID
}

// EstimateCost applies max(sizeKB × rate, floor) and rounds to six decimals.
func (c Chain) EstimateCost(sizeBytes int) float64 {
	sizeKB := float64(sizeBytes) / 1024
	cost := math.Max(sizeKB*c.Storage.RatePerKB, c.Storage.MinimumCost)
	return Round(cost, 6)
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Catalog is the set of known chains.
type Catalog struct {
	DefaultKey string  `yaml:"default"`
	Networks   []Chain `yaml:"networks"`
}

// Default returns the supported chain.
func (c *Catalog) Default() Chain {
	for _, n := range c.Networks {
		if n.Key == c.DefaultKey {
			return n
		}
	}
	return c.Networks[0]
}

// Lookup finds a chain by numeric id.
func (c *Catalog) Lookup(chainID int64) (Chain, bool) {
	for _, n := range c.Networks {
		if n.ChainID == chainID {
			return n, true
		}
	}
	return Chain{}, false
}

// Parse decodes a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse network catalog: %w", err)
	}
	if len(cat.Networks) == 0 {
		return nil, fmt.Errorf("network catalog is empty")
	}
	for _, n := range cat.Networks {
		if n.ChainID <= 0 || n.CAIP2 == "" {
			return nil, fmt.Errorf("network %q must define chain_id and caip2", n.Key)
		}
	}
	return &cat, nil
}

// LoadEmbedded parses the catalog compiled into the binary.
func LoadEmbedded() (*Catalog, error) {
	return Parse(embedded.NetworksData)
}

// MustDefault returns the embedded catalog's supported chain and panics if the
// embedded data is broken.
func MustDefault() Chain {
	cat, err := LoadEmbedded()
	if err != nil {
		panic(err)
	}
	return cat.Default()
}
