package gotftp

import "strings"

// runRead drives a single RRQ transfer to completion, matching the
// phase structure of spec.md §4.3, grounded in
// _examples/original_source/src/tftpud/server/readoperation.py and
// generalized from _examples/eahydra-gotftp/src/gotftp/peer.go's
// handleRRQ/handleRRQNegotiation.
func runRead(t *transfer, req *RequestPacket, handler FileHandler) {
	t.logf("RRQ %s file=%s options=%v", t.remote, req.Filename, req.Options)

	// Phase A: mode gate.
	if !strings.EqualFold(req.Mode, ModeOctet) {
		t.sendError(ErrNotDefined, "only octet mode is supported")
		t.logf("rejected RRQ: unsupported mode %q", req.Mode)
		return
	}

	// Phase B: file gate.
	source, err := handler.OpenSource(req.Filename)
	if err != nil {
		code, msg := fileErrorToWire(err)
		t.sendError(code, msg)
		t.logf("RRQ failed to open %s: %s", req.Filename, err)
		return
	}
	defer source.Close()

	fileSize, _ := source.Size()

	// Phase C: option negotiation.
	oack, err := negotiateReadOptions(t, req, fileSize)
	if err != nil {
		t.sendError(ErrOptionFailure, err.Error())
		t.logf("RRQ option negotiation failed: %s", err)
		return
	}
	if len(oack) > 0 {
		if !sendAndAwaitAck(t, &OackPacket{Options: oack}, 0) {
			t.logf("RRQ aborted: no ACK for OACK")
			return
		}
	}

	// Phase D: data pipeline.
	runReadPipeline(t, source)
	t.logf("RRQ complete")
}

// runReadPipeline sends DATA blocks starting at block number 1,
// retransmitting on timeout and wrapping the on-wire block number
// from 65535 back to 1 (spec.md §4.3 Phase D, invariant I4, P5).
func runReadPipeline(t *transfer, source BlockSource) {
	var blockNum uint16 = 1
	for {
		if t.cancelled() {
			t.logf("RRQ aborted: cancelled")
			return
		}

		payload, err := source.ReadBlock(int(t.blksize))
		if err != nil {
			t.sendError(ErrNotDefined, "read error: "+err.Error())
			t.logf("RRQ read error: %s", err)
			return
		}

		data := &DataPacket{Block: blockNum, Payload: payload}
		if !sendAndAwaitAck(t, data, blockNum) {
			return
		}

		last := len(payload) < int(t.blksize)
		if last {
			return
		}

		blockNum = nextReadBlock(blockNum)
	}
}

// sendAndAwaitAck sends pkt (an OACK or a DATA block) and waits for
// ACK(wantBlock), retransmitting pkt on timeout up to t.retries
// cumulative attempts (spec.md §4.3 Phase C/D). Foreign-TID traffic
// is handled transparently by awaitFromPeer and does not consume the
// retry budget.
func sendAndAwaitAck(t *transfer, pkt Packet, wantBlock uint16) bool {
	if err := t.send(pkt); err != nil {
		t.logf("failed to send %s: %s", pkt.Opcode(), err)
		return false
	}

	attempts := 0
	for {
		got, res := t.awaitFromPeer()
		switch res {
		case recvCancelled, recvSocketError:
			return false
		case recvForeignTID:
			continue
		case recvTimeout:
			attempts++
			if attempts > t.retries {
				t.sendError(ErrNotDefined, "timed out waiting for ACK")
				t.logf("RRQ aborted: no ACK for block %d after %d retries", wantBlock, t.retries)
				return false
			}
			if err := t.send(pkt); err != nil {
				t.logf("failed to resend %s: %s", pkt.Opcode(), err)
				return false
			}
			continue
		case recvMalformed:
			t.sendError(ErrNotDefined, "malformed packet")
			return false
		}

		switch p := got.(type) {
		case *AckPacket:
			if p.Block == wantBlock {
				return true
			}
			t.sendError(ErrNotDefined, "unexpected ACK block number")
			t.logf("RRQ aborted: ACK for block %d while awaiting %d", p.Block, wantBlock)
			return false
		case *ErrorPacket:
			t.logf("RRQ aborted: client sent ERROR(%d, %q)", p.Code, p.Message)
			return false
		default:
			t.sendError(ErrNotDefined, "unexpected opcode")
			t.logf("RRQ aborted: unexpected opcode while awaiting ACK(%d)", wantBlock)
			return false
		}
	}
}
