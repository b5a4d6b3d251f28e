// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package indexer implements the chain read API (spec §4.G) against a
// Blockfrost-compatible HTTP indexer: UTxOs at an address, transaction
// detail (inputs, reference inputs, outputs), and asset lookups.
package indexer

import (
	"context"
	"time"

	"github.com/blinklabs-io/cnftvend/internal/common"
)

// AssetRecord is the result of Asset(asset_id): summary information
// about one native asset as reported by the indexer.
type AssetRecord struct {
	AssetId         common.AssetId
	Quantity        uint64
	InitialMintTx   string
	OnchainMetadata map[string]any
}

// ErrorKind distinguishes recoverable indexer failures from permanent
// ones (spec §7 IndexerError(Transient|Permanent)).
type ErrorKind int

const (
	Transient ErrorKind = iota
	Permanent
)

// Error wraps an indexer failure with its retry classification.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Kind == Transient {
		kind = "transient"
	}
	return e.Op + ": " + kind + " indexer error: " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Indexer is the chain read API the vending loop and whitelist
// initializer depend on.
type Indexer interface {
	// UtxosAt returns UTxOs currently at address, excluding any whose
	// TxRef.Key() is present in exclusions, in indexer-defined order.
	UtxosAt(ctx context.Context, address string, exclusions map[string]struct{}) ([]common.UTxO, error)
	// Transaction returns the full detail (inputs, reference inputs,
	// outputs, fees) of the transaction identified by txHash.
	Transaction(ctx context.Context, txHash string) (common.Transaction, error)
	// AssetsUnder enumerates every asset currently existing under
	// policyIdHex.
	AssetsUnder(ctx context.Context, policyIdHex string) ([]common.AssetId, error)
	// Asset returns summary information about a single asset id.
	Asset(ctx context.Context, assetIdHex string) (AssetRecord, error)
	// AwaitPayment blocks until a new UTxO appears at address (or,
	// when txHash is non-empty, until that specific transaction's
	// output at address is visible), or until ctx is done.
	AwaitPayment(ctx context.Context, address string, txHash string) (common.UTxO, error)
}

// AssetsUnder (context-free convenience) lets this package's own
// Client satisfy whitelist.AssetLister without forcing that package to
// depend on context.Context in its narrow interface.
type contextlessLister struct {
	inner   Indexer
	timeout time.Duration
}

func (c contextlessLister) AssetsUnder(policyIdHex string) ([]common.AssetId, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return c.inner.AssetsUnder(ctx, policyIdHex)
}

// AsAssetLister adapts an Indexer to whitelist.AssetLister, bounding
// the call with timeout.
func AsAssetLister(idx Indexer, timeout time.Duration) interface {
	AssetsUnder(policyIdHex string) ([]common.AssetId, error)
} {
	return contextlessLister{inner: idx, timeout: timeout}
}
