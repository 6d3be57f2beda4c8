// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package http2

// Default parameter values, per RFC 7540 section 6.5.2 and spec.md
// section 6.
const (
	initialHeaderTableSize   = 4096
	initialWindowSize        = 65535
	defaultMaxFrameSize      = 16384
	defaultMaxHeaderListSize = 0 // 0 means "unlimited" throughout this package
)

// Settings is a snapshot of the six SETTINGS parameters tracked per
// direction (self/peer), per spec.md section 3's Connection record.
type Settings struct {
	HeaderTableSize      uint32
	EnablePush           bool
	MaxConcurrentStreams uint32 // 0 means unlimited
	InitialWindowSize    uint32
	MaxFrameSize         uint32
	MaxHeaderListSize    uint32 // 0 means unlimited
}

// defaultSettings returns the RFC 7540 defaults, used for both sides
// before any SETTINGS frame is exchanged.
func defaultSettings() Settings {
	return Settings{
		HeaderTableSize:      initialHeaderTableSize,
		EnablePush:           true,
		MaxConcurrentStreams: 0,
		InitialWindowSize:    initialWindowSize,
		MaxFrameSize:         defaultMaxFrameSize,
		MaxHeaderListSize:    defaultMaxHeaderListSize,
	}
}

// apply mutates s in place according to one Setting, per RFC 7540
// section 6.5.2. It returns the previous InitialWindowSize so the
// caller can compute Δ_iws as spec.md section 4.6 requires, and an
// error if the value is illegal.
func (s *Settings) apply(set Setting) (prevInitialWindowSize uint32, err error) {
	if err := set.Valid(); err != nil {
		return 0, err
	}
	switch set.ID {
	case SettingHeaderTableSize:
		s.HeaderTableSize = set.Val
	case SettingEnablePush:
		s.EnablePush = set.Val == 1
	case SettingMaxConcurrentStreams:
		s.MaxConcurrentStreams = set.Val
	case SettingInitialWindowSize:
		prevInitialWindowSize = s.InitialWindowSize
		s.InitialWindowSize = set.Val
		return prevInitialWindowSize, nil
	case SettingMaxFrameSize:
		s.MaxFrameSize = set.Val
	case SettingMaxHeaderListSize:
		s.MaxHeaderListSize = set.Val
	}
	return s.InitialWindowSize, nil
}

// asFrame renders s as the wire-order list of Setting entries a
// SETTINGS frame carries. Order is stable so tests can assert on it.
func (s Settings) asFrame() []Setting {
	push := uint32(0)
	if s.EnablePush {
		push = 1
	}
	return []Setting{
		{SettingHeaderTableSize, s.HeaderTableSize},
		{SettingEnablePush, push},
		{SettingMaxConcurrentStreams, s.MaxConcurrentStreams},
		{SettingInitialWindowSize, s.InitialWindowSize},
		{SettingMaxFrameSize, s.MaxFrameSize},
		{SettingMaxHeaderListSize, s.MaxHeaderListSize},
	}
}

// pendingSettings is one outstanding entry in the settings-ACK FIFO
// described in spec.md section 3 ("queue of unacknowledged outbound
// settings") and section 4.6 ("Settings ACK timeout").
type pendingSettings struct {
	sent Settings // the full snapshot sent, for Δ computation on ACK
}
