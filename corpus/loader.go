// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/inconshreveable/log15"

	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/formatting"
)

const vectorSuffix = ".json"

var (
	errDuplicateVectorID = errors.New("duplicate vector id")
	errBlockCIDMismatch  = errors.New("block data does not hash to declared cid")
)

// vectorEnvelope is the on-disk JSON form of a test vector. All byte
// fields use the hex formatting shared with the RPC surface.
type vectorEnvelope struct {
	ID            string            `json:"id"`
	Selector      map[string]string `json:"selector"`
	CARRoot       string            `json:"carRoot"`
	Blocks        []blockEnvelope   `json:"blocks"`
	ApplyMessages []string          `json:"applyMessages"`
	Post          postEnvelope      `json:"postconditions"`
}

type blockEnvelope struct {
	CID  string `json:"cid"`
	Data string `json:"data"`
}

type postEnvelope struct {
	StateRoot string            `json:"stateRoot"`
	Receipts  []receiptEnvelope `json:"receipts"`
	Tolerance *GasTolerance     `json:"tolerance,omitempty"`
}

type receiptEnvelope struct {
	ExitCode   int64  `json:"exitCode"`
	ReturnData string `json:"returnData"`
	GasUsed    uint64 `json:"gasUsed"`
}

// Rejected records a vector that could not be decoded. Rejected vectors
// are excluded from the run but never silently dropped from the tally.
type Rejected struct {
	Path   string
	Reason string
}

// Corpus is the result of loading a vector directory.
type Corpus struct {
	Vectors  []*TestVector
	Rejected []Rejected
}

// LoadDir loads every vector file under [dir]. A vector that fails to
// decode is recorded in [Corpus.Rejected] and does not abort the load;
// only an unreadable directory is fatal. Vectors are returned sorted by
// ID.
func LoadDir(dir string) (*Corpus, error) {
	corpus := &Corpus{}
	seen := make(map[string]bool)

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, vectorSuffix) {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		defaultID := filepath.ToSlash(strings.TrimSuffix(rel, vectorSuffix))

		raw, err := os.ReadFile(p)
		if err != nil {
			corpus.Rejected = append(corpus.Rejected, Rejected{Path: rel, Reason: err.Error()})
			return nil
		}

		vec, err := ParseVector(defaultID, raw)
		if err != nil {
			log.Warn("rejected corpus vector", "path", rel, "err", err)
			corpus.Rejected = append(corpus.Rejected, Rejected{Path: rel, Reason: err.Error()})
			return nil
		}
		if seen[vec.ID] {
			log.Warn("rejected corpus vector", "path", rel, "err", errDuplicateVectorID)
			corpus.Rejected = append(corpus.Rejected, Rejected{
				Path:   rel,
				Reason: fmt.Sprintf("%s: %s", errDuplicateVectorID, vec.ID),
			})
			return nil
		}
		seen[vec.ID] = true
		corpus.Vectors = append(corpus.Vectors, vec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("couldn't read corpus directory %s: %w", dir, err)
	}

	sort.Slice(corpus.Vectors, func(i, j int) bool {
		return corpus.Vectors[i].ID < corpus.Vectors[j].ID
	})

	log.Info("loaded corpus", "dir", dir, "vectors", len(corpus.Vectors), "rejected", len(corpus.Rejected))
	return corpus, nil
}

// ParseVector decodes one vector envelope. [defaultID] is used when the
// envelope does not carry its own id. Every embedded block is verified to
// hash to its declared content identifier before it is admitted to the
// snapshot.
func ParseVector(defaultID string, raw []byte) (*TestVector, error) {
	env := vectorEnvelope{}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("couldn't decode vector envelope: %w", err)
	}

	id := env.ID
	if id == "" {
		id = defaultID
	}

	carRoot, err := decodeID(env.CARRoot)
	if err != nil {
		return nil, fmt.Errorf("couldn't decode carRoot: %w", err)
	}
	stateRoot, err := decodeID(env.Post.StateRoot)
	if err != nil {
		return nil, fmt.Errorf("couldn't decode postcondition stateRoot: %w", err)
	}

	db := memdb.New()
	for i, blk := range env.Blocks {
		cid, err := decodeID(blk.CID)
		if err != nil {
			return nil, fmt.Errorf("couldn't decode cid of block %d: %w", i, err)
		}
		data, err := formatting.Decode(formatting.Hex, blk.Data)
		if err != nil {
			return nil, fmt.Errorf("couldn't decode data of block %d: %w", i, err)
		}
		if BlockID(data) != cid {
			return nil, fmt.Errorf("block %d (%s): %w", i, cid, errBlockCIDMismatch)
		}
		if err := db.Put(cid[:], data); err != nil {
			return nil, err
		}
	}

	messages := make([][]byte, len(env.ApplyMessages))
	for i, msg := range env.ApplyMessages {
		messages[i], err = formatting.Decode(formatting.Hex, msg)
		if err != nil {
			return nil, fmt.Errorf("couldn't decode message %d: %w", i, err)
		}
	}

	receipts := make([]Receipt, len(env.Post.Receipts))
	for i, r := range env.Post.Receipts {
		ret, err := formatting.Decode(formatting.Hex, r.ReturnData)
		if err != nil {
			return nil, fmt.Errorf("couldn't decode returnData of receipt %d: %w", i, err)
		}
		receipts[i] = Receipt{
			ExitCode:   r.ExitCode,
			ReturnData: ret,
			GasUsed:    r.GasUsed,
		}
	}

	return &TestVector{
		ID:        id,
		Selectors: env.Selector,
		CARRoot:   carRoot,
		Messages:  messages,
		Post: PostConditions{
			StateRoot: stateRoot,
			Receipts:  receipts,
			Tolerance: env.Post.Tolerance,
		},
		Snapshot: db,
	}, nil
}

func decodeID(s string) (ids.ID, error) {
	raw, err := formatting.Decode(formatting.Hex, s)
	if err != nil {
		return ids.Empty, err
	}
	return ids.ToID(raw)
}
