// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package http2

import "sort"

// streamKind tags the three stream variants described in spec.md
// section 3, represented as a proper tagged union rather than three
// record types sharing a first field (per spec.md section 9's design
// note).
type streamKind uint8

const (
	streamIdle streamKind = iota
	streamActive
	streamClosed
)

// streamRecord is a stream-set entry. Only the fields relevant to its
// Kind are meaningful; new_stream/get/update/close are the only things
// that construct or mutate one.
type streamRecord struct {
	id   uint32
	kind streamKind

	// streamActive
	st *stream

	// streamClosed
	garbage bool
	resp    *Response // set only for a client stream with a recorded response
}

// partition is one of the two halves ("mine"/"theirs") of the stream
// set described in spec.md section 3.
type partition struct {
	mine bool // true if this partition holds locally-initiated streams

	maxActive   uint32 // 0 == unlimited; see updateMyMaxActive/updateTheirMaxActive
	activeCount uint32

	lowest uint32 // ids below this are implicitly closed
	next   uint32 // ids >= this are implicitly idle

	// records holds only materialized (active or closed-but-not-yet-
	// garbage-collected) streams, keyed by id. Idle streams are never
	// materialized, per spec.md section 3.
	records map[uint32]*streamRecord
}

func newPartition(mine bool, first uint32) *partition {
	return &partition{
		mine:    mine,
		lowest:  first,
		next:    first,
		records: make(map[uint32]*streamRecord),
	}
}

// get implements (I1): ids in [lowest, next) not materialized are
// closed; ids >= next are idle; ids < lowest are closed.
func (p *partition) get(id uint32) *streamRecord {
	if r, ok := p.records[id]; ok {
		return r
	}
	if id >= p.next {
		return &streamRecord{id: id, kind: streamIdle}
	}
	return &streamRecord{id: id, kind: streamClosed, garbage: true}
}

// insertActive materializes id as active, advancing next/activeCount.
// Caller has already checked (I4).
func (p *partition) insertActive(id uint32, st *stream) {
	p.records[id] = &streamRecord{id: id, kind: streamActive, st: st}
	if id >= p.next {
		p.next = id + 2
	}
	p.activeCount++
}

// transitionClosed replaces an active record with a closed one and
// opportunistically advances lowest, per spec.md section 4.2's close
// operation.
func (p *partition) transitionClosed(id uint32, garbage bool, resp *Response) {
	if r, ok := p.records[id]; ok && r.kind == streamActive {
		p.activeCount--
	}
	if resp != nil {
		resp.Garbage = garbage
	}
	p.records[id] = &streamRecord{id: id, kind: streamClosed, garbage: garbage, resp: resp}
	p.gc()
}

// gc deletes leading garbage-closed records in id order and advances
// lowest to the first non-garbage id, or to next if none remain.
func (p *partition) gc() {
	ids := make([]uint32, 0, len(p.records))
	for id, r := range p.records {
		if r.kind == streamClosed {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if id != p.lowest {
			break
		}
		r := p.records[id]
		if !r.garbage {
			break
		}
		delete(p.records, id)
		p.lowest += 2 // a partition's ids share one parity
	}
	if p.lowest > p.next {
		p.lowest = p.next
	}
}

// streamSet is the central stream registry of spec.md section 4.2. All
// methods are called only from the connection's run loop, per the
// single-owner redesign in spec.md section 9 — no locking here.
type streamSet struct {
	role Role

	mine   *partition // locally-initiated streams
	theirs *partition // peer-initiated streams
}

func newStreamSet(r Role) *streamSet {
	var mineFirst, theirsFirst uint32
	if r == RoleClient {
		mineFirst, theirsFirst = 1, 2
	} else {
		mineFirst, theirsFirst = 2, 1
	}
	return &streamSet{
		role:   r,
		mine:   newPartition(true, mineFirst),
		theirs: newPartition(false, theirsFirst),
	}
}

func (ss *streamSet) partitionFor(id uint32) *partition {
	isMine := (id%2 == 1) == (ss.role == RoleClient)
	if isMine {
		return ss.mine
	}
	return ss.theirs
}

// get implements (I1)-(I3) lookups for any id.
func (ss *streamSet) get(id uint32) *streamRecord {
	return ss.partitionFor(id).get(id)
}

// newLocalStream allocates the next locally-initiated id and
// materializes it as active, enforcing (I4).
func (ss *streamSet) newLocalStream(st *stream) (uint32, error) {
	p := ss.mine
	if p.maxActive != 0 && p.activeCount >= p.maxActive {
		return 0, ConnectionError(ErrCodeRefusedStream)
	}
	id := p.next
	st.id = id
	p.insertActive(id, st)
	return id, nil
}

// admitRemoteStream materializes a peer-initiated id as active,
// enforcing (I4). The caller has already validated id parity and
// ordering.
func (ss *streamSet) admitRemoteStream(id uint32, st *stream) error {
	p := ss.theirs
	if p.maxActive != 0 && p.activeCount >= p.maxActive {
		return ConnectionError(ErrCodeRefusedStream)
	}
	st.id = id
	p.insertActive(id, st)
	return nil
}

// close transitions id to closed. garbage marks it immediately
// collectible (spec.md's garbage_on_end policy, or simply "nobody is
// waiting on the result").
func (ss *streamSet) close(id uint32, garbage bool) {
	ss.partitionFor(id).transitionClosed(id, garbage, nil)
}

// closeWithResponse is close, additionally recording resp for a later
// GetResponse call (spec.md section 6's get_response).
func (ss *streamSet) closeWithResponse(id uint32, garbage bool, resp *Response) {
	ss.partitionFor(id).transitionClosed(id, garbage, resp)
}

// updateAllSendWindows adds delta to every active stream's send
// window, per spec.md section 4.2's update_all_send_windows. Returns
// the ids that overflowed (I3), which the caller must RST.
func (ss *streamSet) updateAllSendWindows(delta int32) []uint32 {
	var overflowed []uint32
	for _, p := range [2]*partition{ss.mine, ss.theirs} {
		for id, r := range p.records {
			if r.kind != streamActive {
				continue
			}
			if !r.st.sendFlow.add(delta) {
				overflowed = append(overflowed, id)
			}
		}
	}
	return overflowed
}

// updateAllRecvWindows adds delta to every active stream's receive
// window, mirroring updateAllSendWindows for the ACK-side application
// of Δ_iws (spec.md section 4.6, SETTINGS ACK routing).
func (ss *streamSet) updateAllRecvWindows(delta int32) []uint32 {
	var overflowed []uint32
	for _, p := range [2]*partition{ss.mine, ss.theirs} {
		for id, r := range p.records {
			if r.kind != streamActive {
				continue
			}
			if !r.st.recvFlow.add(delta) {
				overflowed = append(overflowed, id)
			}
		}
	}
	return overflowed
}

// updateMyMaxActive / updateTheirMaxActive set partition caps from the
// peer's advertised MAX_CONCURRENT_STREAMS (mine — it limits the
// streams we may open) and our own, once ACKed (theirs — it limits the
// streams the peer may open on us), per spec.md section 4.2.
func (ss *streamSet) updateMyMaxActive(n uint32)    { ss.mine.maxActive = n }
func (ss *streamSet) updateTheirMaxActive(n uint32) { ss.theirs.maxActive = n }

// activeStreamsInOrder returns every active stream across both
// partitions, theirs first then mine, each in ascending id order —
// the iteration order spec.md section 4.3's connection-level sweep
// requires.
func (ss *streamSet) activeStreamsInOrder() []*stream {
	var out []*stream
	for _, p := range [2]*partition{ss.theirs, ss.mine} {
		ids := make([]uint32, 0, len(p.records))
		for id, r := range p.records {
			if r.kind == streamActive {
				ids = append(ids, id)
			}
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			out = append(out, p.records[id].st)
		}
	}
	return out
}
