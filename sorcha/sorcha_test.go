// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package sorcha

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBytes32(t *testing.T) {
	str := "0x00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
	b, err := ParseBytes32(str)
	require.NoError(t, err)
	assert.Equal(t, str, b.String())

	// without prefix
	_, err = ParseBytes32(str[2:])
	require.NoError(t, err)

	_, err = ParseBytes32("0x00")
	assert.Error(t, err)

	assert.True(t, Bytes32{}.IsZero())
	assert.False(t, b.IsZero())
}

func TestParseRegisterID(t *testing.T) {
	id, err := ParseRegisterID("00112233445566778899aabbccddeeff")
	require.NoError(t, err)
	assert.Equal(t, "00112233445566778899aabbccddeeff", id.String())

	_, err = ParseRegisterID("0011")
	assert.Error(t, err)

	_, err = ParseRegisterID("zz112233445566778899aabbccddeeff")
	assert.Error(t, err)

	assert.False(t, NewRegisterID().IsZero())
}

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress("did:sorcha:wallet:abc")
	require.NoError(t, err)
	assert.Equal(t, "did:sorcha:wallet:abc", a.String())

	_, err = ParseAddress("")
	assert.Error(t, err)

	_, err = ParseAddress("has space")
	assert.Error(t, err)
}

func TestSortAddresses(t *testing.T) {
	addrs := []Address{"c", "a", "b"}
	SortAddresses(addrs)
	assert.Equal(t, []Address{"a", "b", "c"}, addrs)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30, cfg.HeartbeatIntervalSec)
	assert.Equal(t, 2, cfg.MaxMissedHeartbeats)
	assert.Equal(t, 1000, cfg.MaxPeers)
	assert.Equal(t, 3, cfg.FanoutFactor)
	assert.Equal(t, 100, cfg.DocketPullBatchSize)
	assert.Equal(t, 10000, cfg.MaxQueueSize)
	assert.Equal(t, 25, cfg.MaxAttestationsPerRegister)
	assert.False(t, cfg.AutoApproveWhenNoValidators)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAttestationsPerRegister = 26
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.HeartbeatIntervalSec = 0
	assert.Error(t, cfg.Validate())
}
