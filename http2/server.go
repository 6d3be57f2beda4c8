// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package http2

import (
	"crypto/tls"
	"net"
)

// StartServer implements spec.md section 6's start_server: it accepts
// connections on l and adopts each one via Become(RoleServer, ...). It
// blocks until l.Accept returns an error, temporary or not, and returns
// that error; closing l is the way to stop it.
//
// Grounded on server.go's ConfigureServer/ServeConn split: accept-loop
// supervision is spec.md section 1's explicit non-goal ("process/
// acceptor supervision"), so this is a minimal convenience loop, not a
// full net/http-style Server.
func StartServer(l net.Listener, tlsConfig *tls.Config, cfg Config) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go acceptOne(conn, tlsConfig, cfg)
	}
}

func acceptOne(conn net.Conn, tlsConfig *tls.Config, cfg Config) {
	var t Transport
	if tlsConfig != nil {
		tc := tls.Server(conn, tlsConfig)
		if err := tc.Handshake(); err != nil {
			conn.Close()
			return
		}
		t = tlsTransport{tc}
	} else {
		t = plainTransport{conn}
	}
	if _, err := Become(RoleServer, t, cfg); err != nil {
		conn.Close()
	}
}
