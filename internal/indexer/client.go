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

package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/blinklabs-io/cnftvend/internal/common"
)

const (
	mainnetBaseUrl  = "https://cardano-mainnet.blockfrost.io/api/v0"
	preprodBaseUrl  = "https://cardano-preprod.blockfrost.io/api/v0"
	previewBaseUrl  = "https://cardano-preview.blockfrost.io/api/v0"
	pollInterval    = 5 * time.Second
	retryMinBackoff = 1 * time.Second
	retryMaxBackoff = 32 * time.Second
	retryMaxRetries = 5
)

// BaseUrlForNetwork returns the Blockfrost base URL for a named
// network, matching the mainnet/preprod/preview split flowmass uses
// for its own Blockfrost calls.
func BaseUrlForNetwork(network string) string {
	switch network {
	case "preprod":
		return preprodBaseUrl
	case "preview":
		return previewBaseUrl
	default:
		return mainnetBaseUrl
	}
}

// TransactionCache is the narrow subset of internal/storage.Storage the
// client uses to avoid repeat Blockfrost round trips for the same
// tx_hash (a candidate UTxO's originating transaction is fetched once
// by the vending loop's whitelist check and again whenever an operator
// reconciles a CommitDrift by hand).
type TransactionCache interface {
	GetCachedTransaction(txHash string) ([]byte, bool, error)
	CacheTransaction(txHash string, body []byte) error
}

// Client is a Blockfrost-compatible HTTP indexer client.
type Client struct {
	BaseUrl      string
	ProjectToken string
	HttpClient   *http.Client
	Cache        TransactionCache
}

// NewClient constructs a Client. If httpClient is nil, http.DefaultClient
// is used; it has no timeout of its own, so requests are then bounded
// only by the context the caller passes in.
func NewClient(baseUrl, projectToken string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{BaseUrl: baseUrl, ProjectToken: projectToken, HttpClient: httpClient}
}

// WithCache attaches a TransactionCache to an existing Client, returning
// it for chaining.
func (c *Client) WithCache(cache TransactionCache) *Client {
	c.Cache = cache
	return c
}

var _ Indexer = (*Client)(nil)

type blockfrostAmount struct {
	Unit     string `json:"unit"`
	Quantity string `json:"quantity"`
}

type blockfrostUtxo struct {
	TxHash      string             `json:"tx_hash"`
	OutputIndex uint32             `json:"output_index"`
	Address     string             `json:"address"`
	Amount      []blockfrostAmount `json:"amount"`
}

func (u blockfrostUtxo) toUTxO() common.UTxO {
	out := common.UTxO{
		Ref:        common.TxRef{Hash: u.TxHash, Index: u.OutputIndex},
		Address:    u.Address,
		Multiasset: map[string]uint64{},
	}
	for _, a := range u.Amount {
		qty, err := strconv.ParseUint(a.Quantity, 10, 64)
		if err != nil {
			continue
		}
		if a.Unit == "lovelace" {
			out.Lovelace = qty
			continue
		}
		out.Multiasset[a.Unit] = qty
	}
	return out
}

// UtxosAt implements Indexer.
func (c *Client) UtxosAt(ctx context.Context, address string, exclusions map[string]struct{}) ([]common.UTxO, error) {
	path := fmt.Sprintf("/addresses/%s/utxos", url.PathEscape(address))
	var raw []blockfrostUtxo
	if err := c.getJSON(ctx, "UtxosAt", path, &raw); err != nil {
		return nil, err
	}
	utxos := make([]common.UTxO, 0, len(raw))
	for _, u := range raw {
		utxo := u.toUTxO()
		if exclusions != nil {
			if _, excluded := exclusions[utxo.Ref.Key()]; excluded {
				continue
			}
		}
		utxos = append(utxos, utxo)
	}
	return utxos, nil
}

type blockfrostTxUtxos struct {
	Hash    string              `json:"hash"`
	Inputs  []blockfrostTxInput `json:"inputs"`
	Outputs []blockfrostUtxo    `json:"outputs"`
}

type blockfrostTxInput struct {
	blockfrostUtxo
	Reference  bool `json:"reference"`
	Collateral bool `json:"collateral"`
}

// Transaction implements Indexer. A confirmed transaction's UTxOs never
// change, so a cached response (spec §9 is silent on this; it costs
// nothing and saves a Blockfrost round trip when the same tx_hash is
// looked up twice in one vend pass or during operator reconciliation)
// is served ahead of the network call when c.Cache is set.
func (c *Client) Transaction(ctx context.Context, txHash string) (common.Transaction, error) {
	var raw blockfrostTxUtxos
	if c.Cache != nil {
		if cached, ok, err := c.Cache.GetCachedTransaction(txHash); err == nil && ok {
			if err := json.Unmarshal(cached, &raw); err == nil {
				return toTransaction(raw), nil
			}
		}
	}

	path := fmt.Sprintf("/txs/%s/utxos", url.PathEscape(txHash))
	body, err := c.getJSONBody(ctx, "Transaction", path, &raw)
	if err != nil {
		return common.Transaction{}, err
	}
	if c.Cache != nil {
		_ = c.Cache.CacheTransaction(txHash, body)
	}
	return toTransaction(raw), nil
}

func toTransaction(raw blockfrostTxUtxos) common.Transaction {
	tx := common.Transaction{Hash: raw.Hash}
	for _, in := range raw.Inputs {
		utxo := in.blockfrostUtxo.toUTxO()
		if in.Collateral {
			continue
		}
		if in.Reference {
			tx.ReferenceInputs = append(tx.ReferenceInputs, utxo)
			continue
		}
		tx.Inputs = append(tx.Inputs, utxo)
	}
	for _, out := range raw.Outputs {
		tx.Outputs = append(tx.Outputs, out.toUTxO())
	}
	return tx
}

type blockfrostPolicyAsset struct {
	Asset    string `json:"asset"`
	Quantity string `json:"quantity"`
}

// AssetsUnder implements Indexer.
func (c *Client) AssetsUnder(ctx context.Context, policyIdHex string) ([]common.AssetId, error) {
	path := fmt.Sprintf("/assets/policy/%s", url.PathEscape(policyIdHex))
	var raw []blockfrostPolicyAsset
	if err := c.getJSON(ctx, "AssetsUnder", path, &raw); err != nil {
		return nil, err
	}
	assets := make([]common.AssetId, 0, len(raw))
	for _, a := range raw {
		asset, err := common.NewAssetIdFromHex(a.Asset)
		if err != nil {
			continue
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

type blockfrostAsset struct {
	Asset             string         `json:"asset"`
	PolicyId          string         `json:"policy_id"`
	AssetName         string         `json:"asset_name"`
	Quantity          string         `json:"quantity"`
	InitialMintTxHash string         `json:"initial_mint_tx_hash"`
	OnchainMetadata   map[string]any `json:"onchain_metadata"`
}

// Asset implements Indexer.
func (c *Client) Asset(ctx context.Context, assetIdHex string) (AssetRecord, error) {
	path := fmt.Sprintf("/assets/%s", url.PathEscape(assetIdHex))
	var raw blockfrostAsset
	if err := c.getJSON(ctx, "Asset", path, &raw); err != nil {
		return AssetRecord{}, err
	}
	assetId, err := common.NewAssetIdFromHex(raw.Asset)
	if err != nil {
		return AssetRecord{}, &Error{Kind: Permanent, Op: "Asset", Err: err}
	}
	qty, _ := strconv.ParseUint(raw.Quantity, 10, 64)
	return AssetRecord{
		AssetId:         assetId,
		Quantity:        qty,
		InitialMintTx:   raw.InitialMintTxHash,
		OnchainMetadata: raw.OnchainMetadata,
	}, nil
}

// AwaitPayment implements Indexer. It polls UtxosAt on a fixed
// interval until a matching UTxO appears or ctx is done. When txHash
// is empty it returns the first UTxO observed that was not present on
// the initial snapshot; when non-empty, it waits specifically for that
// transaction's output at address.
func (c *Client) AwaitPayment(ctx context.Context, address string, txHash string) (common.UTxO, error) {
	seen := map[string]struct{}{}
	if txHash == "" {
		initial, err := c.UtxosAt(ctx, address, nil)
		if err != nil {
			return common.UTxO{}, err
		}
		for _, u := range initial {
			seen[u.Ref.Key()] = struct{}{}
		}
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		utxos, err := c.UtxosAt(ctx, address, nil)
		if err != nil {
			return common.UTxO{}, err
		}
		for _, u := range utxos {
			if txHash != "" {
				if u.Ref.Hash == txHash {
					return u, nil
				}
				continue
			}
			if _, ok := seen[u.Ref.Key()]; !ok {
				return u, nil
			}
		}
		select {
		case <-ctx.Done():
			return common.UTxO{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// getJSON performs a GET request against the Blockfrost-compatible
// endpoint at path, retrying transient failures with exponential
// backoff from 1s to 32s over at most 5 attempts (spec §6 "Indexer
// protocol").
func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	_, err := c.getJSONBody(ctx, op, path, out)
	return err
}

// getJSONBody is getJSON but also returns the raw response body, so
// callers that cache the response (Transaction, via TransactionCache)
// can store the exact bytes instead of re-marshaling out.
func (c *Client) getJSONBody(ctx context.Context, op, path string, out any) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryMinBackoff
	policy.MaxInterval = retryMaxBackoff
	policy.Multiplier = 2
	var bounded backoff.BackOff = backoff.WithMaxRetries(policy, retryMaxRetries-1)
	bounded = backoff.WithContext(bounded, ctx)

	var resultBody []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseUrl+path, nil)
		if err != nil {
			return backoff.Permanent(&Error{Kind: Permanent, Op: op, Err: err})
		}
		req.Header.Set("project_id", c.ProjectToken)

		resp, err := c.HttpClient.Do(req)
		if err != nil {
			return &Error{Kind: Transient, Op: op, Err: err}
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return &Error{Kind: Transient, Op: op, Err: err}
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return &Error{
				Kind: Transient,
				Op:   op,
				Err:  fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
			}
		case resp.StatusCode >= 400:
			return backoff.Permanent(&Error{
				Kind: Permanent,
				Op:   op,
				Err:  fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
			})
		}

		if err := json.Unmarshal(body, out); err != nil {
			return backoff.Permanent(&Error{Kind: Permanent, Op: op, Err: err})
		}
		resultBody = body
		return nil
	}

	if err := backoff.Retry(operation, bounded); err != nil {
		return nil, err
	}
	return resultBody, nil
}
