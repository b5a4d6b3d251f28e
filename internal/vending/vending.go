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

// Package vending implements the vending loop (spec §4.E): it polls the
// payment address, classifies each candidate UTxO against the
// whitelist engine, reserves catalog items, asks the rebate calculator
// for the mint output's lovelace floor, and drives the transaction
// assembler. Grounded algorithmically on
// 36thchambersoftware/flowmass's pollDeposits/mintNFTForDeposit control
// flow (poll -> match -> reserve -> build -> sign -> submit -> mark
// processed), generalized to the full whitelist/rebate/commit-ordering
// semantics spec §4.E describes.
package vending

import (
	"context"
	"fmt"

	"github.com/blinklabs-io/cnftvend/internal/assembler"
	"github.com/blinklabs-io/cnftvend/internal/catalog"
	"github.com/blinklabs-io/cnftvend/internal/common"
	"github.com/blinklabs-io/cnftvend/internal/indexer"
	"github.com/blinklabs-io/cnftvend/internal/logging"
	"github.com/blinklabs-io/cnftvend/internal/policy"
	"github.com/blinklabs-io/cnftvend/internal/rebate"
	"github.com/blinklabs-io/cnftvend/internal/whitelist"
)

// State names the classifications a single candidate UTxO passes
// through within one vend pass (spec §4.E "State machine for one
// UTxO"). The loop neither records nor logs these values, and persists
// no state transitions beyond the exclusion set and catalog/whitelist
// side effects.
type State string

const (
	StatePending      State = "pending"
	StateDisqualified State = "disqualified"
	StateNoCredit     State = "no_credit"
	StateCredited     State = "credited"
	StateReserved     State = "reserved"
	StateSubmitted    State = "submitted"
	StateSubmitFailed State = "submit_failed"
	StateCommitted    State = "committed"
	StateCommitDrift  State = "commit_drift"
)

// CommitDriftError reports a recoverable inconsistency: the network
// accepted the mint but the catalog commit afterward failed (spec
// §4.E "Commit ordering and failure semantics"). The minted asset
// descriptor(s) remain in the metadata directory even though already
// minted on-chain; operators reconcile by moving the file(s) to the
// locked directory by hand.
type CommitDriftError struct {
	UTxO   common.TxRef
	TxHash string
	Err    error
}

func (e *CommitDriftError) Error() string {
	return fmt.Sprintf(
		"commit drift: utxo %s minted as %s but catalog commit failed: %s",
		e.UTxO, e.TxHash, e.Err,
	)
}

func (e *CommitDriftError) Unwrap() error { return e.Err }

// Machine is the Vending Machine of spec §3: an immutable bundle of the
// payment/profit addresses and policy plus the external collaborators
// it drives, and the mutable exclusion set it exclusively owns.
type Machine struct {
	PaymentAddress string
	ProfitAddress  string
	VendRandomly   bool
	SingleVendCap  int
	Mainnet        bool
	NetworkName    string

	Policy    *policy.MintPolicy
	Whitelist whitelist.Engine
	Catalog   *catalog.Catalog
	Indexer   indexer.Indexer
	Assembler assembler.Assembler
	Rebate    rebate.Formula

	Exclusions *ExclusionSet
}

// New constructs a Machine, defaulting Rebate to rebate.Default when
// the caller does not supply an injected formula (spec §4.A: the
// formula is an "injectable parameter so it can be updated when the
// ledger changes").
func New(m Machine) *Machine {
	if m.Rebate == nil {
		m.Rebate = rebate.Default
	}
	return &m
}

// minRefund is the chain's minimum lovelace for a UTxO returning only
// ada (no native assets) back to the buyer (spec §4.E step d).
func (m *Machine) minRefund() uint64 {
	return rebate.CalculateWith(m.Rebate, 0, 0, 0)
}

// Vend performs one pass over the payment address's current UTxO set
// (spec §4.E). It processes UTxOs in indexer order, stopping early if
// the catalog is exhausted mid-pass, ctx is canceled between
// iterations, or the indexer fetch itself fails.
func (m *Machine) Vend(ctx context.Context) error {
	logger := logging.GetLogger()

	utxos, err := m.Indexer.UtxosAt(ctx, m.PaymentAddress, m.Exclusions.Snapshot())
	if err != nil {
		return fmt.Errorf("vend: fetching utxos: %w", err)
	}

	for _, u := range utxos {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		exhausted, err := m.vendOne(ctx, u)
		if err != nil {
			logger.Error("vend attempt failed", "utxo", u.Ref.String(), "error", err)
		}
		if exhausted {
			return nil
		}
	}
	return nil
}

// vendOne drives the state machine for a single candidate UTxO, and
// reports exhausted=true when the catalog has no items left at all
// (spec §4.E step e: "leave the whitelist unconsumed and return from
// the pass").
func (m *Machine) vendOne(ctx context.Context, u common.UTxO) (exhausted bool, err error) {
	logger := logging.GetLogger()
	key := u.Ref.Key()

	tx, err := m.Indexer.Transaction(ctx, u.Ref.Hash)
	if err != nil {
		return false, fmt.Errorf("fetching originating transaction: %w", err)
	}

	verdict, err := m.Whitelist.RequiredInfo(tx, u.Ref)
	if err != nil {
		return false, fmt.Errorf("whitelist.RequiredInfo: %w", err)
	}

	if verdict.Kind == whitelist.Disqualified {
		logger.Info("payment disqualified: whitelist asset sent directly to payment address", "utxo", key)
		return false, m.Exclusions.Add(key)
	}

	wlBudget, err := m.Whitelist.Budget(verdict, m.SingleVendCap)
	if err != nil {
		return false, fmt.Errorf("whitelist.Budget: %w", err)
	}

	priceBudget := 0
	if u.Lovelace >= m.Policy.MinimumPrice {
		priceBudget = int((u.Lovelace - m.minRefund()) / m.Policy.MinimumPrice)
	}

	budget := minInt(m.SingleVendCap, wlBudget, priceBudget)
	if budget <= 0 {
		if u.Lovelace < m.Policy.MinimumPrice {
			logger.Info("utxo below minimum price, excluding", "utxo", key, "lovelace", u.Lovelace)
			return false, m.Exclusions.Add(key)
		}
		// A later top-up might make this UTxO eligible; leave it
		// unprocessed rather than excluding it (spec §4.E step d).
		return false, nil
	}

	seed := ""
	if m.VendRandomly {
		seed = u.Ref.String()
	}
	reserved, err := m.Catalog.Reserve(budget, m.VendRandomly, seed)
	if err != nil {
		return false, fmt.Errorf("catalog.Reserve: %w", err)
	}
	if len(reserved) == 0 {
		logger.Info("catalog exhausted, ending vend pass", "utxo", key)
		return true, nil
	}

	nameBytes := 0
	for _, d := range reserved {
		nameBytes += len(d.AssetName)
	}
	rebateLovelace := rebate.CalculateWith(m.Rebate, 1, len(reserved), nameBytes)
	if m.Policy.MinimumPrice*uint64(len(reserved)) <= rebateLovelace+m.Policy.Donation {
		// Gross price must cover the rebate and donation with profit left
		// over; a configuration where it cannot never produces a balanced
		// transaction, so don't keep retrying this UTxO.
		logger.Error("price does not cover rebate and donation", "utxo", key, "minted", len(reserved), "rebate", rebateLovelace)
		return false, m.Exclusions.Add(key)
	}

	buyerAddress := u.Address
	if len(tx.Inputs) > 0 && tx.Inputs[0].Address != "" {
		// The buyer's refund and minted assets go back to whoever funded
		// the triggering transaction, not to the payment address itself
		// (spec §4.E step g "buyer"). Mirrors flowmass's
		// fetchDepositsBlockfrost, which resolves the sender from the
		// first input of the depositing transaction.
		buyerAddress = tx.Inputs[0].Address
	}

	req := m.buildRequest(u, buyerAddress, reserved, rebateLovelace)

	txHash, err := m.Assembler.BuildAndSubmit(ctx, req)
	if err != nil {
		logger.Error("submission failed, excluding utxo", "utxo", key, "error", err)
		m.Catalog.Release(reserved)
		return false, m.Exclusions.Add(key)
	}

	if err := m.Catalog.Commit(reserved); err != nil {
		drift := &CommitDriftError{UTxO: u.Ref, TxHash: txHash, Err: err}
		logger.Error("commit drift: chain minted but catalog commit failed", "utxo", key, "txHash", txHash, "error", err)
		if exErr := m.Exclusions.Add(key); exErr != nil {
			return false, fmt.Errorf("%w (and failed to record exclusion: %s)", drift, exErr)
		}
		return false, drift
	}

	if verdict.Kind == whitelist.Eligible {
		if err := m.Whitelist.Consume(verdict.AssetIds); err != nil {
			// The mint and catalog commit already succeeded; Consume is
			// required to be idempotent (spec §4.E), so logging and
			// moving on is safe — a later retry of Consume with the
			// same ids has the same effect as doing it now.
			logger.Error("whitelist consume failed after successful commit", "utxo", key, "error", err)
		}
	}

	logger.Info("vend succeeded", "utxo", key, "txHash", txHash, "minted", len(reserved))
	return false, nil
}

// buildRequest assembles the transaction skeleton of spec §4.E step g:
// inputs = {u}; profit gets price*k - rebate - donation; the buyer
// gets the rebate plus any overpayment plus the minted assets;
// donation, if configured, goes to its own address. cmd/tx-assembler
// is responsible for the actual network fee, which it deducts from the
// profit output when completing the transaction (fee is not modeled
// here — it is opaque per spec §1).
func (m *Machine) buildRequest(u common.UTxO, buyerAddress string, reserved []catalog.Descriptor, rebateLovelace uint64) assembler.Request {
	price := m.Policy.MinimumPrice
	k := uint64(len(reserved))
	donation := m.Policy.Donation

	grossPrice := price * k
	profitLovelace := grossPrice - rebateLovelace - donation
	overpayment := u.Lovelace - grossPrice
	buyerLovelace := rebateLovelace + overpayment

	mint := make([]assembler.MintAsset, 0, len(reserved))
	buyerAssets := map[string]uint64{}
	for _, d := range reserved {
		mint = append(mint, assembler.MintAsset{
			PolicyId:  m.Policy.PolicyId,
			NameHex:   d.OnChainNameHex,
			AssetName: d.AssetName,
			Quantity:  1,
			Metadata:  d.Metadata,
		})
		buyerAssets[m.Policy.PolicyId+d.OnChainNameHex] = 1
	}

	outputs := []assembler.Output{
		{Address: m.ProfitAddress, Lovelace: profitLovelace},
		{Address: buyerAddress, Lovelace: buyerLovelace, Multiasset: buyerAssets},
	}
	if donation > 0 && m.Policy.DonationAddress != "" {
		outputs = append(outputs, assembler.Output{Address: m.Policy.DonationAddress, Lovelace: donation})
	}

	return assembler.Request{
		Network:     m.NetworkName,
		Inputs:      []common.TxRef{u.Ref},
		Outputs:     outputs,
		Mint:        mint,
		ScriptFiles: []string{m.Policy.ScriptFile},
		SigningKeys: []string{m.Policy.SigningKeyPath},
	}
}

func minInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
