// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package netprobe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSTUNFirst(t *testing.T) {
	p := New(Options{STUNServers: []string{"stun.example.com:3478"}})
	p.stunResolve = func(network, server string, _ time.Duration) (net.IP, error) {
		assert.Equal(t, "udp4", network)
		assert.Equal(t, "stun.example.com:3478", server)
		return net.ParseIP("203.0.113.9"), nil
	}

	ip, err := p.External(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.9", ip.String())
}

func TestHTTPFallback(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Write([]byte("  203.0.113.10\n"))
	}))
	defer srv.Close()

	p := New(Options{
		STUNServers:   []string{"down.example.com:3478"},
		HTTPEndpoints: []string{srv.URL},
	})
	p.stunResolve = func(string, string, time.Duration) (net.IP, error) {
		return nil, errors.New("unreachable")
	}

	ip, err := p.External(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.10", ip.String())
	assert.EqualValues(t, 1, hits.Load())

	// cached: no second request within the ttl
	_, err = p.External(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, hits.Load())
}

func TestHTTPRejectsWrongFamily(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("2001:db8::1"))
	}))
	defer srv.Close()

	p := New(Options{
		HTTPEndpoints: []string{srv.URL},
		ExternalAddr:  "203.0.113.11",
	})
	ip, err := p.External(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.11", ip.String(), "v6 answer skipped, configured fallback used")
}

func TestConfiguredFallback(t *testing.T) {
	p := New(Options{
		STUNServers:  []string{"down.example.com:3478"},
		ExternalAddr: "203.0.113.12",
	})
	p.stunResolve = func(string, string, time.Duration) (net.IP, error) {
		return nil, errors.New("unreachable")
	}

	ip, err := p.External(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.12", ip.String())
}

func TestCacheExpiry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Write([]byte("203.0.113.13"))
	}))
	defer srv.Close()

	p := New(Options{HTTPEndpoints: []string{srv.URL}, CacheTTL: time.Nanosecond})

	_, err := p.External(context.Background())
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = p.External(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
}

func TestInterfaceFallback(t *testing.T) {
	p := New(Options{})
	// no sources configured: either a local interface address or an error,
	// never a loopback result
	ip, err := p.External(context.Background())
	if err == nil {
		assert.False(t, ip.IsLoopback())
	}
}
