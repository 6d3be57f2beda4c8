// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package http2

import (
	"crypto/tls"
	"io"
	"log"
	"strings"
	"time"
)

// VerboseLogs, when true, sends ordinary protocol chatter (frame
// dumps, boring disconnects) to the connection's logger. It exists for
// the same reason it does in the teacher: production servers leave it
// off, tests and debugging turn it on.
var VerboseLogs bool

// Transport is the external collaborator spec.md section 1 describes
// as "a reliable ordered byte duplex with a peer_identity query". TLS
// handshake, dialing, and accept-loop supervision all happen above
// this package; this package only reads and writes bytes.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer

	// PeerIdentity reports the transport-level identity of the remote
	// side, if any was established (e.g. by TLS client-cert auth). It
	// may return nil.
	PeerIdentity() *tls.ConnectionState
}

// Config carries connection-wide options, per spec.md section 6's
// "Configuration (connection opts)". It is a plain struct: the teacher
// configures itself the same way (Server, Transport in the pack), not
// through a functional-options library.
type Config struct {
	// HibernateAfter is the idle-hibernation timeout. This package
	// stores it but does not act on it: a connection never hibernates,
	// whatever its value.
	HibernateAfter time.Duration

	// ConnectTimeout bounds establishing the transport, for StartClient.
	ConnectTimeout time.Duration

	// HandshakeTimeout bounds the wait for the peer's first SETTINGS
	// frame; zero uses the package default (4.5s). A server's read of
	// the client preface is not bounded by it.
	HandshakeTimeout time.Duration

	// SettingsAckTimeout bounds how long an outstanding SETTINGS frame
	// may go unacknowledged before the connection is aborted with
	// SETTINGS_TIMEOUT; zero uses the package default (5s).
	SettingsAckTimeout time.Duration

	// TCPUserTimeout is passed through to the transport when it
	// supports it; this package does not itself enforce it.
	TCPUserTimeout time.Duration

	// Callback constructs the application-layer handler for every new
	// stream this connection admits or initiates.
	Callback func() StreamCallback

	// GarbageOnEnd, when true, discards response data at stream-finish
	// rather than retaining it for GetResponse (spec.md section 6).
	GarbageOnEnd bool

	// ClientFlowControl selects whether inbound DATA is acknowledged
	// automatically or left to the application to acknowledge via
	// SendWindowUpdate. Default is FlowControlAuto.
	ClientFlowControl FlowControlMode

	// Settings seeds our own advertised SETTINGS; a zero
	// HeaderTableSize, InitialWindowSize or MaxFrameSize takes the RFC
	// 7540 default. The other fields are advertised as given, so a zero
	// EnablePush advertises push as disabled.
	Settings Settings

	// Logger receives connection diagnostics; nil sends them to the
	// standard logger.
	Logger *log.Logger
}

// FlowControlMode selects the auto/manual acknowledgement policy named
// in spec.md section 6.
type FlowControlMode uint8

const (
	FlowControlAuto FlowControlMode = iota
	FlowControlManual
)

func (c *Config) settingsOrDefault() Settings {
	d := defaultSettings()
	s := c.Settings
	if s.HeaderTableSize == 0 {
		s.HeaderTableSize = d.HeaderTableSize
	}
	if s.InitialWindowSize == 0 {
		s.InitialWindowSize = d.InitialWindowSize
	}
	if s.MaxFrameSize == 0 {
		s.MaxFrameSize = d.MaxFrameSize
	}
	return s
}

const (
	defaultHandshakeTimeout   = 4500 * time.Millisecond
	defaultSettingsACKTimeout = 5 * time.Second
	defaultConnectTimeout     = 5 * time.Second
)

// logf logs unconditionally through the connection's *log.Logger, or
// the standard logger if none was configured — matching the teacher's
// serverConn.logf.
func (c *Connection) logf(format string, args ...interface{}) {
	if lg := c.cfg.Logger; lg != nil {
		lg.Printf(format, args...)
	} else {
		log.Printf(format, args...)
	}
}

// vlogf logs only when VerboseLogs is set.
func (c *Connection) vlogf(format string, args ...interface{}) {
	if VerboseLogs {
		c.logf(format, args...)
	}
}

// condlogf demotes boring, expected errors (EOF, a closed network
// connection) to vlogf so routine disconnects don't spam production
// logs, exactly as the teacher's condlogf does.
func (c *Connection) condlogf(err error, format string, args ...interface{}) {
	if err == nil {
		return
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF ||
		strings.Contains(err.Error(), "use of closed network connection") {
		c.vlogf(format, args...)
		return
	}
	c.logf(format, args...)
}
