// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDatabase(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	// No directory: in-memory database.
	db, err := openDatabase("")
	require.NoError(err)
	assert.NoError(db.Put([]byte("k"), []byte("v")))
	assert.NoError(db.Close())

	// Directory set: results persist across reopen.
	dir := filepath.Join(t.TempDir(), "db")
	disk, err := openDatabase(dir)
	require.NoError(err)
	require.NoError(disk.Put([]byte("k"), []byte("v")))
	require.NoError(disk.Close())

	reopened, err := openDatabase(dir)
	require.NoError(err)
	got, err := reopened.Get([]byte("k"))
	assert.NoError(err)
	assert.Equal([]byte("v"), got)
	assert.NoError(reopened.Close())
}
