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

package policy

import (
	"fmt"
	"os"
)

// WhitelistVariant names the three whitelist-engine kinds a Mint
// Policy may reference (spec §4.C).
type WhitelistVariant string

const (
	WhitelistSingleUse WhitelistVariant = "single-use"
	WhitelistUnlimited WhitelistVariant = "unlimited"
	WhitelistNone      WhitelistVariant = "none"
)

// ConfigurationError reports a failed Mint Policy validation
// precondition. It is fatal: the vending loop must never start.
type ConfigurationError struct {
	Check string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error (%s): %s", e.Check, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// MintPolicy is the immutable bundle of everything the vending loop
// needs to mint under a single policy (spec §3).
type MintPolicy struct {
	PolicyId        string
	MinimumPrice    uint64
	Donation        uint64
	MetadataDir     string
	ScriptFile      string
	SigningKeyPath  string
	DonationAddress string

	WhitelistVariant WhitelistVariant
	WhitelistDir     string
	ConsumedDir      string
}

// Validate enforces the startup preconditions of spec §4.D. The first
// failing check is wrapped in a *ConfigurationError and returned;
// validation does not attempt to report every violation at once,
// matching the "fatal at startup, loop never starts" framing.
func (p MintPolicy) Validate() error {
	if p.MinimumPrice < 5_000_000 {
		return &ConfigurationError{
			Check: "minimum_price",
			Err:   fmt.Errorf("minimum_price %d is below the 5,000,000 lovelace floor", p.MinimumPrice),
		}
	}
	if p.Donation != 0 && p.Donation < 1_000_000 {
		return &ConfigurationError{
			Check: "donation",
			Err:   fmt.Errorf("donation %d must be 0 or at least 1,000,000 lovelace", p.Donation),
		}
	}
	if err := requireReadableDir(p.MetadataDir); err != nil {
		return &ConfigurationError{Check: "metadata_directory", Err: err}
	}
	if err := requireExistingFile(p.ScriptFile); err != nil {
		return &ConfigurationError{Check: "script_file", Err: err}
	}
	if err := requireExistingFile(p.SigningKeyPath); err != nil {
		return &ConfigurationError{Check: "signing_key", Err: err}
	}
	switch p.WhitelistVariant {
	case WhitelistSingleUse, WhitelistUnlimited:
		if err := requireReadableDir(p.WhitelistDir); err != nil {
			return &ConfigurationError{Check: "whitelist_dir", Err: err}
		}
	}
	switch p.WhitelistVariant {
	case WhitelistSingleUse:
		if err := requireReadableDir(p.ConsumedDir); err != nil {
			return &ConfigurationError{Check: "consumed_dir", Err: err}
		}
	}
	return nil
}

func requireReadableDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: not a directory", path)
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("%s: not readable: %w", path, err)
	}
	_ = entries
	return nil
}

func requireExistingFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s: is a directory, want a file", path)
	}
	return nil
}
