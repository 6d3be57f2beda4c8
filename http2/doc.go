// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package http2 implements the connection core of an HTTP/2 endpoint,
// per RFC 7540: the per-connection state machine, the stream set and its
// flow-control windows, the frame dispatcher, and the HEADERS/CONTINUATION
// reassembly discipline.
//
// TLS/TCP transport, the application-layer per-stream callback, and
// process/acceptor supervision are treated as external collaborators and
// are not implemented by this package. HPACK itself is not reimplemented
// either; this package wraps golang.org/x/net/http2/hpack.
package http2
