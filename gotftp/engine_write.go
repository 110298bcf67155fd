package gotftp

import "strings"

// runWrite drives a single WRQ transfer to completion, matching the
// phase structure of spec.md §4.4, grounded in
// _examples/original_source/src/tftpud/server/writeoperation.py and
// generalized from _examples/eahydra-gotftp/src/gotftp/peer.go's
// handleWRQ/handleWRQNegotiation.
func runWrite(t *transfer, req *RequestPacket, handler FileHandler) {
	t.logf("WRQ %s file=%s options=%v", t.remote, req.Filename, req.Options)

	// Phase A: mode gate.
	if !strings.EqualFold(req.Mode, ModeOctet) {
		t.sendError(ErrNotDefined, "only octet mode is supported")
		t.logf("rejected WRQ: unsupported mode %q", req.Mode)
		return
	}

	// Phase B: file gate.
	sink, err := handler.OpenSink(req.Filename)
	if err != nil {
		code, msg := fileErrorToWire(err)
		t.sendError(code, msg)
		t.logf("WRQ failed to open %s: %s", req.Filename, err)
		return
	}

	// Phase C: option negotiation.
	oack, err := negotiateWriteOptions(t, req)
	if err != nil {
		t.sendError(ErrOptionFailure, err.Error())
		t.logf("WRQ option negotiation failed: %s", err)
		sink.Close()
		return
	}

	var handshake Packet
	if len(oack) > 0 {
		// After an OACK the client replies directly with DATA(1), not
		// an ACK (RFC 2347) — unlike RRQ, where OACK is ack'd as if
		// it were block 0.
		handshake = &OackPacket{Options: oack}
	} else {
		handshake = &AckPacket{Block: 0}
	}
	if err := t.send(handshake); err != nil {
		t.logf("failed to send %s: %s", handshake.Opcode(), err)
		sink.Close()
		return
	}

	runWritePipeline(t, sink, handshake)
	t.logf("WRQ complete")
}

// runWritePipeline receives DATA blocks starting at block 1,
// accepting either 0 or 1 as the successor to block 65535 (spec.md
// §4.4 Phase D, invariant I4 leniency) and terminating when a block
// shorter than the negotiated blksize arrives. handshake is the
// OACK/ACK(0) already sent by the caller, retransmitted verbatim if
// the first DATA block never arrives.
func runWritePipeline(t *transfer, sink BlockSink, handshake Packet) {
	defer sink.Close()

	expected := uint16(1)
	retransmit := handshake
	for {
		if t.cancelled() {
			t.logf("WRQ aborted: cancelled")
			return
		}

		data, ok := awaitDataFor(t, expected, retransmit)
		if !ok {
			return
		}

		if err := sink.WriteBlock(data.Payload); err != nil {
			t.sendError(ErrDiskFull, err.Error())
			t.logf("WRQ write failed for block %d: %s", expected, err)
			return
		}

		ack := &AckPacket{Block: data.Block}
		if err := t.send(ack); err != nil {
			t.logf("failed to send ACK(%d): %s", data.Block, err)
			return
		}
		retransmit = ack

		if len(data.Payload) < int(t.blksize) {
			return
		}

		if data.Block == 65535 {
			// A receiver must accept either 0 or 1 as the successor to
			// 65535; awaitDataFor treats both as matching "expected".
			expected = 0
		} else {
			expected = data.Block + 1
		}
	}
}

// awaitDataFor waits for DATA(wantBlock), resending retransmit on
// timeout. wantBlock of 0 also accepts 1, matching the wrap leniency
// of runWritePipeline (spec.md §4.4 Phase D, P5). Any other block
// number aborts the transfer unconditionally (spec.md §4.4 step 3;
// writeoperation.py has no duplicate-ACK leniency here either).
func awaitDataFor(t *transfer, wantBlock uint16, retransmit Packet) (*DataPacket, bool) {
	attempts := 0
	for {
		got, res := t.awaitFromPeer()
		switch res {
		case recvCancelled, recvSocketError:
			return nil, false
		case recvForeignTID:
			continue
		case recvTimeout:
			attempts++
			if attempts > t.retries {
				t.sendError(ErrNotDefined, "timed out waiting for DATA")
				t.logf("WRQ aborted: no DATA for block %d after %d retries", wantBlock, t.retries)
				return nil, false
			}
			if err := t.send(retransmit); err != nil {
				t.logf("failed to resend %s: %s", retransmit.Opcode(), err)
				return nil, false
			}
			continue
		case recvMalformed:
			t.sendError(ErrNotDefined, "malformed packet")
			return nil, false
		}

		switch p := got.(type) {
		case *DataPacket:
			if p.Block == wantBlock || (wantBlock == 0 && p.Block == 1) {
				return p, true
			}
			t.sendError(ErrNotDefined, "unexpected DATA block number")
			t.logf("WRQ aborted: DATA block %d while awaiting %d", p.Block, wantBlock)
			return nil, false
		case *ErrorPacket:
			t.logf("WRQ aborted: client sent ERROR(%d, %q)", p.Code, p.Message)
			return nil, false
		default:
			t.sendError(ErrNotDefined, "unexpected opcode")
			t.logf("WRQ aborted: unexpected opcode while awaiting DATA(%d)", wantBlock)
			return nil, false
		}
	}
}
