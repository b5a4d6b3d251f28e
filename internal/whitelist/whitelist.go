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

// Package whitelist implements the three whitelist-engine variants
// (single-use, unlimited, none) over a pair of directories: a durable
// eligibility set and an append-only consumption ledger.
package whitelist

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/blinklabs-io/cnftvend/internal/common"
)

// VerdictKind classifies how a whitelist asset appeared (or didn't) in
// the transaction that produced a candidate payment UTxO.
type VerdictKind int

const (
	// NoCredit: no matching whitelist asset spent or present in output.
	NoCredit VerdictKind = iota
	// Eligible: the buyer spent at least one matching whitelist asset
	// as a real input alongside the payment output.
	Eligible
	// Disqualified: the buyer sent a whitelist asset directly to the
	// payment address; the pass is considered permanently lost.
	Disqualified
)

func (k VerdictKind) String() string {
	switch k {
	case Eligible:
		return "Eligible"
	case Disqualified:
		return "Disqualified"
	default:
		return "NoCredit"
	}
}

// Verdict is the result of Engine.RequiredInfo.
type Verdict struct {
	Kind     VerdictKind
	AssetIds []common.AssetId
}

// Engine is the shared contract for all three whitelist variants
// (spec §4.C).
type Engine interface {
	// IsWhitelisted reports current eligibility of a single asset id.
	IsWhitelisted(a common.AssetId) bool
	// Available returns the number of currently eligible (unconsumed)
	// assets, for operator visibility.
	Available() (int, error)
	// RequiredInfo inspects the transaction that produced the
	// candidate payment UTxO (identified by paymentRef) and returns a
	// verdict.
	RequiredInfo(tx common.Transaction, paymentRef common.TxRef) (Verdict, error)
	// Budget returns the maximum number of NFTs this verdict may mint,
	// given the engine's variant-specific rule and single_vend_cap.
	Budget(verdict Verdict, singleVendCap int) (int, error)
	// Consume records the given asset ids as spent. Idempotent: an
	// asset id already recorded consumed is not an error.
	Consume(assetIds []common.AssetId) error
}

// requiredInfo implements the verdict logic shared by SingleUse and
// Unlimited (the two variants that track a whitelist policy id).
func requiredInfo(tx common.Transaction, paymentRef common.TxRef, policyIdHex string) Verdict {
	for _, out := range tx.Outputs {
		if out.Ref != paymentRef {
			continue
		}
		for assetHex, qty := range out.Multiasset {
			if qty == 0 {
				continue
			}
			if len(assetHex) >= common.PolicyIdLen*2 && assetHex[:common.PolicyIdLen*2] == policyIdHex {
				return Verdict{Kind: Disqualified}
			}
		}
		break
	}

	spent := tx.SpentAssets(policyIdHex)
	if len(spent) == 0 {
		return Verdict{Kind: NoCredit}
	}
	return Verdict{Kind: Eligible, AssetIds: spent}
}

// dirSet is a directory of zero-byte files keyed by asset id hex,
// mirroring the durable-set idiom used elsewhere in this repo for
// badger keys: presence of the file is the fact.
type dirSet struct {
	dir string
}

func (d dirSet) has(key string) bool {
	_, err := os.Stat(filepath.Join(d.dir, key))
	return err == nil
}

func (d dirSet) put(key string) error {
	path := filepath.Join(d.dir, key)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("whitelist: writing %s: %w", path, err)
	}
	return f.Close()
}

func (d dirSet) count() (int, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return 0, fmt.Errorf("whitelist: reading %s: %w", d.dir, err)
	}
	return len(entries), nil
}

// SingleUse is the whitelist variant where each pass authorizes
// exactly one mint event ever: is_whitelisted(a) ≡ (a ∈ whitelist_dir)
// ∧ (a ∉ consumed_dir) (spec §3, fail-closed per §7 invariant 5).
type SingleUse struct {
	PolicyIdHex string
	whitelist   dirSet
	consumed    dirSet
}

// NewSingleUse constructs a SingleUse engine over the given
// directories, both of which must already exist.
func NewSingleUse(policyIdHex, whitelistDir, consumedDir string) *SingleUse {
	return &SingleUse{
		PolicyIdHex: policyIdHex,
		whitelist:   dirSet{dir: whitelistDir},
		consumed:    dirSet{dir: consumedDir},
	}
}

func (s *SingleUse) IsWhitelisted(a common.AssetId) bool {
	key := a.Hex()
	return s.whitelist.has(key) && !s.consumed.has(key)
}

func (s *SingleUse) Available() (int, error) {
	whitelisted, err := s.whitelist.count()
	if err != nil {
		return 0, err
	}
	consumed, err := s.consumed.count()
	if err != nil {
		return 0, err
	}
	available := whitelisted - consumed
	if available < 0 {
		available = 0
	}
	return available, nil
}

func (s *SingleUse) RequiredInfo(tx common.Transaction, paymentRef common.TxRef) (Verdict, error) {
	return requiredInfo(tx, paymentRef, s.PolicyIdHex), nil
}

func (s *SingleUse) Budget(verdict Verdict, singleVendCap int) (int, error) {
	if verdict.Kind != Eligible {
		return 0, nil
	}
	budget := 0
	for _, a := range verdict.AssetIds {
		if s.IsWhitelisted(a) {
			budget++
		}
	}
	if budget > singleVendCap {
		budget = singleVendCap
	}
	return budget, nil
}

func (s *SingleUse) Consume(assetIds []common.AssetId) error {
	for _, a := range assetIds {
		if err := s.consumed.put(a.Hex()); err != nil {
			return err
		}
	}
	return nil
}

// Unlimited is the whitelist variant where each pass authorizes an
// unbounded number of mint events: is_whitelisted(a) ≡ (a ∈
// whitelist_dir); consumption is a no-op.
type Unlimited struct {
	PolicyIdHex string
	whitelist   dirSet
}

// NewUnlimited constructs an Unlimited engine over the given
// directory, which must already exist.
func NewUnlimited(policyIdHex, whitelistDir string) *Unlimited {
	return &Unlimited{PolicyIdHex: policyIdHex, whitelist: dirSet{dir: whitelistDir}}
}

func (u *Unlimited) IsWhitelisted(a common.AssetId) bool {
	return u.whitelist.has(a.Hex())
}

func (u *Unlimited) Available() (int, error) {
	return u.whitelist.count()
}

func (u *Unlimited) RequiredInfo(tx common.Transaction, paymentRef common.TxRef) (Verdict, error) {
	return requiredInfo(tx, paymentRef, u.PolicyIdHex), nil
}

func (u *Unlimited) Budget(verdict Verdict, singleVendCap int) (int, error) {
	if verdict.Kind != Eligible {
		return 0, nil
	}
	return singleVendCap, nil
}

func (u *Unlimited) Consume(assetIds []common.AssetId) error {
	return nil
}

// NoWhitelist is the no-op variant: every payment is eligible and
// nothing is ever mutated.
type NoWhitelist struct{}

func (NoWhitelist) IsWhitelisted(common.AssetId) bool { return true }

func (NoWhitelist) Available() (int, error) { return 0, nil }

func (NoWhitelist) RequiredInfo(tx common.Transaction, paymentRef common.TxRef) (Verdict, error) {
	return Verdict{Kind: Eligible}, nil
}

func (NoWhitelist) Budget(verdict Verdict, singleVendCap int) (int, error) {
	return singleVendCap, nil
}

func (NoWhitelist) Consume(assetIds []common.AssetId) error { return nil }

// AssetLister is the subset of the indexer contract the initializer
// needs: enumerating assets currently existing under a policy.
type AssetLister interface {
	AssetsUnder(policyIdHex string) ([]common.AssetId, error)
}

// Initialize populates whitelistDir from every asset currently
// existing under policyIdHex, as reported by lister. It is a one-shot
// snapshot (spec §9 "whitelist initialization race": assets minted
// after this call are never whitelisted). The population is staged in
// a sibling temp directory and moved into place with a single rename,
// so an interrupted run leaves whitelistDir either absent/empty or
// fully populated, never partial. Running Initialize again when
// whitelistDir already exists and is non-empty is a no-op.
func Initialize(whitelistDir, policyIdHex string, lister AssetLister) error {
	if entries, err := os.ReadDir(whitelistDir); err == nil && len(entries) > 0 {
		return nil
	}

	assetIds, err := lister.AssetsUnder(policyIdHex)
	if err != nil {
		return fmt.Errorf("whitelist: initializing from policy %s: %w", policyIdHex, err)
	}

	staging := whitelistDir + ".staging"
	if err := os.RemoveAll(staging); err != nil {
		return fmt.Errorf("whitelist: clearing stale staging dir: %w", err)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return fmt.Errorf("whitelist: creating staging dir: %w", err)
	}
	staged := dirSet{dir: staging}
	for _, a := range assetIds {
		if err := staged.put(a.Hex()); err != nil {
			_ = os.RemoveAll(staging)
			return err
		}
	}

	if err := os.RemoveAll(whitelistDir); err != nil {
		return fmt.Errorf("whitelist: clearing partial whitelist dir: %w", err)
	}
	if err := os.Rename(staging, whitelistDir); err != nil {
		return fmt.Errorf("whitelist: committing staged whitelist dir: %w", err)
	}
	return nil
}
