// Package gaiatypes defines transcript and storage types for gaiachat.
// This file contains the exported transcript document and the storage receipt returned to clients.
package gaiatypes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// CostCalculation explains how an estimated storage cost was derived.
type CostCalculation struct {
	Method    string  `json:"method"`
	RatePerKB float64 `json:"ratePerKB"`
	Note      string  `json:"note"`
}

// StorageInfo is the size and cost metadata embedded in a stored transcript.
type StorageInfo struct {
	FileSizeBytes     int             `json:"fileSizeBytes"`
	FileSizeKB        float64         `json:"fileSizeKB"`
	EstimatedCostTAI3 float64         `json:"estimatedCostTAI3"`
	CostCalculation   CostCalculation `json:"costCalculation"`
}

// Transcript is the JSON document uploaded for one session.
type Transcript struct {
	SessionID     string       `json:"sessionId"`
	WalletAddress string       `json:"walletAddress"`
	NetworkID     NetworkID    `json:"networkId"`
	SystemPrompt  string       `json:"systemPrompt"`
	Messages      []Message    `json:"messages"`
	TotalTokens   int64        `json:"totalTokens"`
	CreatedAt     time.Time    `json:"createdAt"`
	StoredAt      time.Time    `json:"storedAt"`
	Model         string       `json:"model"`
	GaiaNodeURL   string       `json:"gaiaNodeUrl"`
	Network       string       `json:"network"`
	Storage       *StorageInfo `json:"storage,omitempty"`
}

// StorageReceipt is returned after a transcript has been uploaded.
type StorageReceipt struct {
	Success           bool        `json:"success"`
	CID               string      `json:"cid"`
	PublicURL         *string     `json:"publicUrl"`
	GatewayURL        string      `json:"gatewayUrl"`
	FileName          string      `json:"fileName"`
	Size              int         `json:"size"`
	SizeKB            float64     `json:"sizeKB"`
	EstimatedCostTAI3 float64     `json:"estimatedCostTAI3"`
	StoredAt          time.Time   `json:"storedAt"`
	Storage           StorageInfo `json:"storage"`
	Note              string      `json:"note"`
}

// NetworkID is a chain identifier as supplied by a wallet: either a JSON number
// (490000) or a CAIP-2 string ("eip155:490000"). The zero value means absent.
type NetworkID struct {
	num    int64
	str    string
	isText bool
}

// NumericNetworkID builds a numeric network id.
func NumericNetworkID(n int64) NetworkID { return NetworkID{num: n} }

// TextNetworkID builds a string network id.
func TextNetworkID(s string) NetworkID { return NetworkID{str: s, isText: true} }

// IsZero reports whether the id is absent (null, 0 or "").
func (n NetworkID) IsZero() bool {
	if n.isText {
		return n.str == ""
	}
	return n.num == 0
}

// IsText reports whether the id was supplied as a string.
func (n NetworkID) IsText() bool { return n.isText }

// Number returns the numeric form and whether the id was numeric.
func (n NetworkID) Number() (int64, bool) { return n.num, !n.isText }

// Text returns the string form and whether the id was a string.
func (n NetworkID) Text() (string, bool) { return n.str, n.isText }

func (n NetworkID) String() string {
	if n.isText {
		return n.str
	}
	return strconv.FormatInt(n.num, 10)
}

// MarshalJSON writes the id back in the form it was supplied; absent ids become "unknown".
func (n NetworkID) MarshalJSON() ([]byte, error) {
	if n.IsZero() {
		return json.Marshal("unknown")
	}
	if n.isText {
		return json.Marshal(n.str)
	}
	return []byte(strconv.FormatInt(n.num, 10)), nil
}

// UnmarshalJSON accepts a number, a string or null.
func (n *NetworkID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*n = NetworkID{}
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "unknown" {
			*n = NetworkID{}
			return nil
		}
		*n = TextNetworkID(s)
		return nil
	case data[0] == 'f' || data[0] == 't':
		// JSON booleans are treated like the other falsy/non-id values.
		*n = NetworkID{}
		if bytes.Equal(data, []byte("true")) {
			*n = TextNetworkID("true")
		}
		return nil
	}
	var f json.Number
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("network id must be a number or string: %w", err)
	}
	i, err := f.Int64()
	if err != nil {
		// Fractional ids can never match a chain; keep them as text so validation rejects them.
		*n = TextNetworkID(f.String())
		return nil
	}
	*n = NumericNetworkID(i)
	return nil
}
