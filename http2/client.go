// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package http2

import (
	"context"
	"crypto/tls"
	"net"
)

// tlsTransport adapts a *tls.Conn to Transport, per spec.md section
// 1's "reliable ordered byte duplex with a peer_identity query".
type tlsTransport struct {
	*tls.Conn
}

func (t tlsTransport) PeerIdentity() *tls.ConnectionState {
	st := t.ConnectionState()
	return &st
}

// plainTransport wraps a bare net.Conn (used by tests and by clear-text
// h2c setups) with no peer identity.
type plainTransport struct {
	net.Conn
}

func (plainTransport) PeerIdentity() *tls.ConnectionState { return nil }

// StartClient implements spec.md section 6's start_client: it dials,
// completes the TLS handshake with ALPN "h2", and starts the
// connection's run loop.
func StartClient(ctx context.Context, addr string, tlsConfig *tls.Config, settings Settings, cfg Config) (*Connection, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	dctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var d tls.Dialer
	tc := tlsConfig.Clone()
	if tc == nil {
		tc = &tls.Config{}
	}
	if len(tc.NextProtos) == 0 {
		tc.NextProtos = []string{"h2"}
	}
	d.Config = tc

	conn, err := d.DialContext(dctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	tconn := conn.(*tls.Conn)
	cfg.Settings = settings
	return Become(RoleClient, tlsTransport{tconn}, cfg)
}

// Become implements spec.md section 6's become: it adopts an
// already-established socket (accepted by the caller, or dialed by
// StartClient) and launches the connection's run loop.
func Become(r Role, t Transport, cfg Config) (*Connection, error) {
	c := newConnection(r, t, cfg)
	go c.run()
	return c, nil
}

