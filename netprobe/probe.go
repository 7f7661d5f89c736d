// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package netprobe discovers the node's externally reachable address. It
// walks an ordered ladder of sources (STUN, HTTP lookup, NAT gateway) and
// falls back to configuration or the primary interface address when every
// source fails.
package netprobe

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/p2p/nat"
	"github.com/pion/stun/v3"
	"github.com/pkg/errors"

	"github.com/sorchain/sorcha/log"
)

var logger = log.WithContext("pkg", "netprobe")

const (
	defaultCacheTTL = 5 * time.Minute
	attemptTimeout  = 5 * time.Second
	maxHTTPBody     = 256
)

// Options configures the probe. Servers and endpoints are tried in order.
type Options struct {
	STUNServers   []string
	HTTPEndpoints []string
	PreferIPv6    bool

	// ExternalAddr, when set, is returned after all sources fail.
	ExternalAddr string

	// NAT queries the local gateway (UPnP or NAT-PMP), nil disables the tier.
	NAT nat.Interface

	CacheTTL time.Duration
}

// Probe resolves and caches the external address.
type Probe struct {
	opts   Options
	client *http.Client

	// swapped out in tests
	stunResolve func(network, server string, timeout time.Duration) (net.IP, error)

	cacheLock sync.Mutex
	cachedIP  net.IP
	cachedAt  time.Time
}

// New creates a probe.
func New(opts Options) *Probe {
	if opts.CacheTTL == 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	return &Probe{
		opts:        opts,
		client:      &http.Client{Timeout: attemptTimeout},
		stunResolve: stunQuery,
	}
}

func (p *Probe) network() string {
	if p.opts.PreferIPv6 {
		return "udp6"
	}
	return "udp4"
}

// External returns the node's externally reachable IP. Results are cached;
// a fresh cache entry short-circuits the ladder.
func (p *Probe) External(ctx context.Context) (net.IP, error) {
	p.cacheLock.Lock()
	if p.cachedIP != nil && time.Since(p.cachedAt) < p.opts.CacheTTL {
		ip := p.cachedIP
		p.cacheLock.Unlock()
		return ip, nil
	}
	p.cacheLock.Unlock()

	ip := p.resolve(ctx)
	if ip == nil {
		return nil, errors.New("netprobe: no external address discoverable")
	}

	p.cacheLock.Lock()
	p.cachedIP = ip
	p.cachedAt = time.Now()
	p.cacheLock.Unlock()
	return ip, nil
}

func (p *Probe) resolve(ctx context.Context) net.IP {
	for _, server := range p.opts.STUNServers {
		if err := ctx.Err(); err != nil {
			return nil
		}
		ip, err := p.stunResolve(p.network(), server, attemptTimeout)
		if err != nil {
			logger.Debug("stun lookup failed", "server", server, "err", err)
			continue
		}
		return ip
	}

	for _, endpoint := range p.opts.HTTPEndpoints {
		ip, err := p.httpLookup(ctx, endpoint)
		if err != nil {
			logger.Debug("http lookup failed", "endpoint", endpoint, "err", err)
			continue
		}
		return ip
	}

	if p.opts.NAT != nil {
		if ip, err := p.opts.NAT.ExternalIP(); err == nil {
			return ip
		} else {
			logger.Debug("nat gateway lookup failed", "err", err)
		}
	}

	if p.opts.ExternalAddr != "" {
		if ip := net.ParseIP(p.opts.ExternalAddr); ip != nil {
			return ip
		}
		logger.Warn("configured external address is not an IP", "addr", p.opts.ExternalAddr)
	}

	return p.interfaceAddr()
}

func (p *Probe) httpLookup(ctx context.Context, endpoint string) (net.IP, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPBody))
	if err != nil {
		return nil, err
	}
	ip := net.ParseIP(strings.TrimSpace(string(body)))
	if ip == nil {
		return nil, errors.New("response is not an IP")
	}
	if err := p.checkFamily(ip); err != nil {
		return nil, err
	}
	return ip, nil
}

func (p *Probe) checkFamily(ip net.IP) error {
	if p.opts.PreferIPv6 && ip.To4() != nil {
		return errors.New("got IPv4, want IPv6")
	}
	if !p.opts.PreferIPv6 && ip.To4() == nil {
		return errors.New("got IPv6, want IPv4")
	}
	return nil
}

// interfaceAddr picks the primary non-loopback address of the preferred
// family.
func (p *Probe) interfaceAddr() net.IP {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		logger.Warn("cannot list interface addresses", "err", err)
		return nil
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if p.checkFamily(ipnet.IP) != nil {
			continue
		}
		return ipnet.IP
	}
	return nil
}

func stunQuery(network, server string, timeout time.Duration) (net.IP, error) {
	conn, err := net.DialTimeout(network, server, timeout)
	if err != nil {
		return nil, err
	}
	client, err := stun.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer client.Close()

	var (
		ip     net.IP
		cbErr  error
		mapped stun.XORMappedAddress
	)
	err = client.Do(stun.MustBuild(stun.TransactionID, stun.BindingRequest), func(res stun.Event) {
		if res.Error != nil {
			cbErr = res.Error
			return
		}
		if err := mapped.GetFrom(res.Message); err != nil {
			cbErr = err
			return
		}
		ip = mapped.IP
	})
	if err != nil {
		return nil, err
	}
	if cbErr != nil {
		return nil, cbErr
	}
	return ip, nil
}
