// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package replay

import (
	"github.com/ava-labs/avalanchego/cache"
	"github.com/ava-labs/avalanchego/database/versiondb"
	"github.com/ava-labs/avalanchego/ids"

	"github.com/ava-labs/replayvm/corpus"
)

const blockCacheSize = 2048

var _ Blockstore = &blockstore{}

// Blockstore is the content-addressed key/value store the machine reads
// its state from and materializes intermediate state into. Get returns
// database.ErrNotFound for an absent block. There is no deletion and no
// partial read.
type Blockstore interface {
	Get(cid ids.ID) ([]byte, error)
	Put(cid ids.ID, data []byte) error
}

// blockstore presents a vector's embedded snapshot to one machine
// instance. Machine writes land in a versiondb overlay that is never
// committed, so the shared snapshot stays pristine and every replay of
// the vector starts from identical state.
type blockstore struct {
	overlay  *versiondb.Database
	blkCache cache.Cacher
}

// NewBlockstore returns a fresh adapter over [vec]'s snapshot. Each
// worker must construct its own adapter per replay; adapters are not
// shared.
func NewBlockstore(vec *corpus.TestVector) Blockstore {
	return &blockstore{
		overlay:  versiondb.New(vec.Snapshot),
		blkCache: &cache.LRU{Size: blockCacheSize},
	}
}

func (bs *blockstore) Get(cid ids.ID) ([]byte, error) {
	if dataIntf, ok := bs.blkCache.Get(cid); ok {
		return dataIntf.([]byte), nil
	}

	data, err := bs.overlay.Get(cid[:])
	if err != nil {
		return nil, err
	}
	bs.blkCache.Put(cid, data)
	return data, nil
}

func (bs *blockstore) Put(cid ids.ID, data []byte) error {
	bs.blkCache.Put(cid, data)
	return bs.overlay.Put(cid[:], data)
}
