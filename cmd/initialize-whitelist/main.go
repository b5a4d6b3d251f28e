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

// initialize-whitelist is the one-shot operator CLI of spec §6: it
// snapshots every asset currently minted under a given policy id from a
// Blockfrost-compatible indexer and populates a whitelist directory
// with one zero-byte file per asset, via whitelist.Initialize. Adapted
// from cmd/mk-script-address's standalone-flag-parsing CLI shape.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/blinklabs-io/cnftvend/internal/indexer"
	"github.com/blinklabs-io/cnftvend/internal/whitelist"
)

var cmdlineFlags struct {
	blockfrostProjectId string
	preview             bool
	mainnet             bool
	policyId            string
	whitelistDir        string
	consumedDir         string
	requestTimeout      int
}

func main() {
	flag.StringVar(&cmdlineFlags.blockfrostProjectId, "blockfrost-project", "", "Blockfrost project id (indexer auth token)")
	flag.BoolVar(&cmdlineFlags.preview, "preview", false, "snapshot the preview network (default mainnet)")
	flag.BoolVar(&cmdlineFlags.mainnet, "mainnet", false, "snapshot the mainnet network (default)")
	flag.StringVar(&cmdlineFlags.policyId, "policy-id", "", "hex-encoded policy id to snapshot")
	flag.StringVar(&cmdlineFlags.whitelistDir, "whitelist-dir", "", "directory to populate with the whitelist snapshot")
	flag.StringVar(&cmdlineFlags.consumedDir, "consumed-dir", "", "consumption-ledger directory (created if absent; not written by this tool)")
	flag.IntVar(&cmdlineFlags.requestTimeout, "request-timeout-seconds", 15, "indexer request timeout in seconds")
	flag.Parse()

	if cmdlineFlags.blockfrostProjectId == "" || cmdlineFlags.policyId == "" || cmdlineFlags.whitelistDir == "" || cmdlineFlags.consumedDir == "" {
		fmt.Println("ERROR: -blockfrost-project, -policy-id, -whitelist-dir, and -consumed-dir are all required")
		os.Exit(1)
	}
	if cmdlineFlags.preview && cmdlineFlags.mainnet {
		fmt.Println("ERROR: -preview and -mainnet are mutually exclusive")
		os.Exit(1)
	}

	if err := os.MkdirAll(cmdlineFlags.whitelistDir, 0o755); err != nil {
		fmt.Printf("ERROR: failed to create whitelist directory: %s\n", err)
		os.Exit(1)
	}
	// consumed_dir is not populated here (spec §6: the initializer only
	// writes whitelist_dir), but policy.MintPolicy.Validate requires it
	// to exist before the vending loop starts, so create it alongside.
	if err := os.MkdirAll(cmdlineFlags.consumedDir, 0o755); err != nil {
		fmt.Printf("ERROR: failed to create consumed directory: %s\n", err)
		os.Exit(1)
	}

	network := "mainnet"
	if cmdlineFlags.preview {
		network = "preview"
	}

	idx := indexer.NewClient(
		indexer.BaseUrlForNetwork(network),
		cmdlineFlags.blockfrostProjectId,
		&http.Client{Timeout: time.Duration(cmdlineFlags.requestTimeout) * time.Second},
	)
	lister := indexer.AsAssetLister(idx, time.Duration(cmdlineFlags.requestTimeout)*time.Second)

	before, _ := countEntries(cmdlineFlags.whitelistDir)
	if err := whitelist.Initialize(cmdlineFlags.whitelistDir, cmdlineFlags.policyId, lister); err != nil {
		fmt.Printf("ERROR: failed to initialize whitelist: %s\n", err)
		os.Exit(1)
	}
	after, err := countEntries(cmdlineFlags.whitelistDir)
	if err != nil {
		fmt.Printf("ERROR: failed to verify whitelist directory: %s\n", err)
		os.Exit(1)
	}

	if before > 0 {
		fmt.Printf("Whitelist directory already populated (%d entries); left unchanged.\n", before)
		return
	}
	fmt.Printf("Whitelist initialized: %d assets under policy %s written to %s\n", after, cmdlineFlags.policyId, cmdlineFlags.whitelistDir)
}

func countEntries(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}
