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

// Package catalog manages the on-disk pool of not-yet-minted asset
// descriptors: an ordered or randomized reservation over a metadata
// directory, and an atomic claim-to-lock transition once a vend attempt
// submits successfully.
package catalog

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blinklabs-io/cnftvend/internal/common"
)

// Descriptor is a single catalog entry: a not-yet-minted asset.
type Descriptor struct {
	// AssetName is the human-readable display name, and also the
	// metadata file's basename (metadata_dir/<AssetName>.json).
	AssetName string
	// OnChainNameHex is the hex-encoded asset name embedded in the mint.
	OnChainNameHex string
	// Metadata is the raw JSON blob for this asset (the value under the
	// single top-level key equal to AssetName) to embed under label 721.
	Metadata json.RawMessage
	filename string
}

// CorruptionError is returned by Commit when a reserved descriptor's
// backing file is no longer present in the metadata directory (spec
// §4.B: "If a file is missing (concurrent catalog edit), the commit
// fails with CatalogCorruption").
type CorruptionError struct {
	AssetName string
	Path      string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("catalog corruption: %s missing at %s", e.AssetName, e.Path)
}

// Catalog is a directory-backed pool of unminted asset descriptors.
// MetadataDir holds available items; LockedDir holds committed ones.
// A file never exists in both directories at once, and once moved to
// LockedDir it is never re-surfaced (spec §4.B invariant).
type Catalog struct {
	MetadataDir string
	LockedDir   string
}

// New constructs a Catalog over the given directories. Both must
// already exist.
func New(metadataDir, lockedDir string) *Catalog {
	return &Catalog{MetadataDir: metadataDir, LockedDir: lockedDir}
}

// Available returns the number of descriptors currently in the
// metadata directory.
func (c *Catalog) Available() (int, error) {
	names, err := c.listFilenames()
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

// Reserve selects up to k descriptors from the metadata directory.
// Reservation is logical only; no files are moved. When random is
// false, selection follows lexicographic-by-filename order. When
// random is true, selection is a uniform sample without replacement,
// seeded deterministically from seed (normally the triggering UTxO's
// "tx_hash#index") so that a retry of the same UTxO after a commit
// failure reselects the same descriptors (spec §9 open question on
// reproducibility).
func (c *Catalog) Reserve(k int, random bool, seed string) ([]Descriptor, error) {
	if k <= 0 {
		return nil, nil
	}
	names, err := c.listFilenames()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}

	sort.Strings(names)
	if random {
		names = shuffleDeterministic(names, seed)
	}
	if k > len(names) {
		k = len(names)
	}
	selected := names[:k]

	descriptors := make([]Descriptor, 0, len(selected))
	for _, filename := range selected {
		desc, err := c.loadDescriptor(filename)
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, desc)
	}
	return descriptors, nil
}

// Commit moves each reserved file from the metadata directory to the
// locked directory, preserving its filename. It is the last step of a
// successful vend attempt. If a reserved file is no longer present
// (concurrent catalog edit), Commit returns a *CorruptionError and the
// caller must abort the vend attempt and exclude the triggering UTxO.
func (c *Catalog) Commit(reserved []Descriptor) error {
	for _, desc := range reserved {
		src := filepath.Join(c.MetadataDir, desc.filename)
		dst := filepath.Join(c.LockedDir, desc.filename)
		if _, err := os.Stat(src); err != nil {
			if os.IsNotExist(err) {
				return &CorruptionError{AssetName: desc.AssetName, Path: src}
			}
			return fmt.Errorf("catalog commit: stat %s: %w", src, err)
		}
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("catalog commit: rename %s: %w", src, err)
		}
	}
	return nil
}

// Release is a no-op: reservation is logical only, so there is nothing
// to undo when a vend attempt abandons a reservation.
func (c *Catalog) Release(reserved []Descriptor) {
	_ = reserved
}

func (c *Catalog) listFilenames() ([]string, error) {
	entries, err := os.ReadDir(c.MetadataDir)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading metadata dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func (c *Catalog) loadDescriptor(filename string) (Descriptor, error) {
	path := filepath.Join(c.MetadataDir, filename)
	buf, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("catalog: reading %s: %w", path, err)
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(buf, &wrapper); err != nil {
		return Descriptor{}, fmt.Errorf("catalog: parsing %s: %w", path, err)
	}
	assetName := strings.TrimSuffix(filename, ".json")
	metadata, ok := wrapper[assetName]
	if !ok {
		return Descriptor{}, fmt.Errorf(
			"catalog: %s has no top-level key %q",
			path,
			assetName,
		)
	}
	return Descriptor{
		AssetName:      assetName,
		OnChainNameHex: common.AssetNameHex(assetName),
		Metadata:       metadata,
		filename:       filename,
	}, nil
}

// shuffleDeterministic returns a copy of names permuted by a PRNG
// seeded from seed, suitable for a uniform-without-replacement sample
// when truncated to the first k elements.
func shuffleDeterministic(names []string, seed string) []string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	r := rand.New(rand.NewSource(int64(h.Sum64())))

	shuffled := make([]string, len(names))
	copy(shuffled, names)
	r.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled
}
