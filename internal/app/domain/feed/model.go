// Package feed defines the domain model for the destination-side feed
// registry: feed records, rounds, identities, and the error taxonomy shared
// by the registry, validator, and query services.
package feed

import (
	"math/big"
	"time"
)

// Identity is an opaque, address-like token naming either the transport a
// call arrived over or the logical deployment that originated it.
type Identity string

// ExpectedMessageVersion is the only payload schema version accepted.
// Unknown versions are rejected outright rather than best-effort parsed.
const ExpectedMessageVersion uint8 = 1

// StaleWindow is the maximum tolerated silence before a feed's data is
// considered unreliable. The upstream origin heartbeats roughly hourly, so
// three hours of silence indicates a delivery problem rather than cadence.
const StaleWindow = 3 * time.Hour

// AutoRegisteredDescription is the sentinel description given to feeds
// created implicitly by the validator.
const AutoRegisteredDescription = "auto-registered"

// Round is one accepted update to a feed. Immutable once committed.
type Round struct {
	RoundID         *big.Int `json:"round_id"`
	Answer          *big.Int `json:"answer"`
	StartedAt       uint64   `json:"started_at"`
	UpdatedAt       uint64   `json:"updated_at"`
	AnsweredInRound *big.Int `json:"answered_in_round"`
}

// Clone returns a deep copy so committed rounds stay immutable.
func (r Round) Clone() Round {
	return Round{
		RoundID:         cloneInt(r.RoundID),
		Answer:          cloneInt(r.Answer),
		StartedAt:       r.StartedAt,
		UpdatedAt:       r.UpdatedAt,
		AnsweredInRound: cloneInt(r.AnsweredInRound),
	}
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// Feed is one registered price feed: its configuration, running counters,
// and the latest accepted round. Latest is nil until the first commit.
type Feed struct {
	ID                  string `json:"id"`
	Decimals            uint8  `json:"decimals"`
	Description         string `json:"description"`
	Enabled             bool   `json:"enabled"`
	TotalUpdates        uint64 `json:"total_updates"`
	LastUpdateBlock     uint64 `json:"last_update_block"`
	LastUpdateTimestamp uint64 `json:"last_update_timestamp"`
	Latest              *Round `json:"latest,omitempty"`
}

// Clone returns a deep copy of the feed record.
func (f Feed) Clone() Feed {
	out := f
	if f.Latest != nil {
		latest := f.Latest.Clone()
		out.Latest = &latest
	}
	return out
}

// Update is the inbound payload claiming "feed F changed to round R with
// price P at time T". The transport identity is supplied by the call
// context, never by the payload itself.
type Update struct {
	Origin          Identity
	FeedID          string
	Decimals        uint8
	MessageVersion  uint8
	RoundID         *big.Int
	Answer          *big.Int
	StartedAt       uint64
	UpdatedAt       uint64
	AnsweredInRound *big.Int
}

// Round converts the payload into the round it would commit.
func (u Update) Round() Round {
	return Round{
		RoundID:         cloneInt(u.RoundID),
		Answer:          cloneInt(u.Answer),
		StartedAt:       u.StartedAt,
		UpdatedAt:       u.UpdatedAt,
		AnsweredInRound: cloneInt(u.AnsweredInRound),
	}
}

// Stats is the per-feed aggregate view exposed by the query surface.
type Stats struct {
	TotalUpdates        uint64 `json:"total_updates"`
	LastUpdateBlock     uint64 `json:"last_update_block"`
	LastUpdateTimestamp uint64 `json:"last_update_timestamp"`
	Stale               bool   `json:"stale"`
}

// PriceRow is one entry of the all-prices projection, ordered as list().
type PriceRow struct {
	FeedID    string   `json:"feed_id"`
	Answer    *big.Int `json:"answer"`
	UpdatedAt uint64   `json:"updated_at"`
	Stale     bool     `json:"stale"`
}
