// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package http2

import "testing"

func TestSettingsApplyInitialWindowSizeDelta(t *testing.T) {
	s := defaultSettings()
	prev, err := s.apply(Setting{SettingInitialWindowSize, 100000})
	if err != nil {
		t.Fatal(err)
	}
	if prev != initialWindowSize {
		t.Errorf("prev = %d; want %d", prev, initialWindowSize)
	}
	if s.InitialWindowSize != 100000 {
		t.Errorf("InitialWindowSize = %d; want 100000", s.InitialWindowSize)
	}
}

func TestSettingsApplyRejectsIllegalValues(t *testing.T) {
	s := defaultSettings()
	cases := []Setting{
		{SettingEnablePush, 2},
		{SettingInitialWindowSize, 1 << 31},
		{SettingMaxFrameSize, 1},
		{SettingMaxFrameSize, 1 << 25},
	}
	for _, set := range cases {
		if _, err := s.apply(set); err == nil {
			t.Errorf("apply(%+v) succeeded; want an error", set)
		}
	}
}

func TestSettingsAsFrameOrderIsStable(t *testing.T) {
	s := defaultSettings()
	got := s.asFrame()
	want := []SettingID{
		SettingHeaderTableSize,
		SettingEnablePush,
		SettingMaxConcurrentStreams,
		SettingInitialWindowSize,
		SettingMaxFrameSize,
		SettingMaxHeaderListSize,
	}
	if len(got) != len(want) {
		t.Fatalf("asFrame() has %d entries; want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("entry %d has ID %s; want %s", i, got[i].ID, id)
		}
	}
}

// (P6) Settings-ACK FIFO: exercised at the pendingSettings-slice level,
// mirroring processSettingsAck's dequeue-from-head behavior.
func TestPendingSettingsFIFO(t *testing.T) {
	var pending []pendingSettings
	first := Settings{InitialWindowSize: 1000}
	second := Settings{InitialWindowSize: 2000}
	pending = append(pending, pendingSettings{sent: first}, pendingSettings{sent: second})

	applied := pending[0]
	pending = pending[1:]
	if applied.sent != first {
		t.Errorf("first ACK applied %+v; want %+v", applied.sent, first)
	}
	if len(pending) != 1 || pending[0].sent != second {
		t.Fatalf("FIFO after one ACK = %+v; want [%+v]", pending, second)
	}

	applied = pending[0]
	pending = pending[1:]
	if applied.sent != second {
		t.Errorf("second ACK applied %+v; want %+v", applied.sent, second)
	}
	if len(pending) != 0 {
		t.Fatalf("FIFO should be empty after two ACKs, got %+v", pending)
	}
}
