// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorchain/sorcha/comm"
)

func TestParseSeeds(t *testing.T) {
	seeds, err := parseSeeds("")
	require.NoError(t, err)
	assert.Nil(t, seeds)

	seeds, err = parseSeeds("n1@10.0.0.1:8671, n2@hub.example.com:8671,")
	require.NoError(t, err)
	assert.Equal(t, []comm.Seed{
		{PeerID: "n1", Addr: "10.0.0.1:8671"},
		{PeerID: "n2", Addr: "hub.example.com:8671"},
	}, seeds)

	_, err = parseSeeds("just-an-address:8671")
	require.Error(t, err)
}

func TestLoadValidatorKey(t *testing.T) {
	key, err := loadValidatorKey("")
	require.NoError(t, err)
	assert.Nil(t, key)

	raw := []byte{0x01, 0x02, 0x03, 0x04}
	path := filepath.Join(t.TempDir(), "validator.key")
	require.NoError(t, os.WriteFile(path, []byte(hex.EncodeToString(raw)+"\n"), 0600))

	key, err = loadValidatorKey(path)
	require.NoError(t, err)
	assert.Equal(t, raw, key)

	require.NoError(t, os.WriteFile(path, []byte("not-hex"), 0600))
	_, err = loadValidatorKey(path)
	require.Error(t, err)
}
