package gotftp

import (
	"fmt"
	"net"
	"time"
)

// maxDatagramSize is large enough to hold any negotiated block size
// (up to MaxBlockSize) plus the largest packet header.
const maxDatagramSize = int(MaxBlockSize) + 4

// transfer is the per-operation state shared by the RRQ and WRQ
// engines: a dedicated ephemeral socket, the remote TID, negotiated
// parameters, and a cooperative cancellation flag. One transfer
// instance lives for exactly one RRQ or WRQ (spec.md §3 "Transfer
// context").
type transfer struct {
	conn    net.PacketConn
	remote  net.Addr
	blksize uint16
	timeout time.Duration
	retries int
	log     *logBuffer
	done    chan struct{}
}

func newTransfer(conn net.PacketConn, remote net.Addr, cfg ServerConfig) *transfer {
	return &transfer{
		conn:    conn,
		remote:  remote,
		blksize: DefaultBlockSize,
		timeout: cfg.Timeout,
		retries: cfg.Retries,
		log:     newLogBuffer(),
		done:    make(chan struct{}),
	}
}

func (t *transfer) logf(format string, args ...interface{}) {
	t.log.append(fmt.Sprintf(format, args...))
}

// cancel requests that the transfer's wait loops abort at their next
// boundary. Safe to call more than once.
func (t *transfer) cancel() {
	select {
	case <-t.done:
	default:
		close(t.done)
	}
}

func (t *transfer) cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *transfer) send(p Packet) error {
	_, err := t.conn.WriteTo(Encode(p), t.remote)
	return err
}

func (t *transfer) sendTo(addr net.Addr, p Packet) error {
	_, err := t.conn.WriteTo(Encode(p), addr)
	return err
}

func (t *transfer) sendError(code ErrorCode, msg string) {
	if err := t.send(&ErrorPacket{Code: code, Message: msg}); err != nil {
		t.logf("failed to send ERROR(%d, %q): %s", code, msg, err)
	}
}

// nextReadBlock returns the block number following cur on the RRQ
// side, wrapping 65535 to 1 and never to 0 (spec.md §4.3 step 4).
func nextReadBlock(cur uint16) uint16 {
	if cur == 65535 {
		return 1
	}
	return cur + 1
}

// sameTID reports whether addr is the transfer's established remote
// endpoint (spec.md invariant I2).
func (t *transfer) sameTID(addr net.Addr) bool {
	return addr.String() == t.remote.String()
}

// recvResult is the outcome of one receive attempt on a transfer's
// socket.
type recvResult int

const (
	recvOK recvResult = iota
	recvTimeout
	recvForeignTID
	recvMalformed
	recvCancelled
	recvSocketError
)

// awaitFromPeer blocks for up to t.timeout for one packet from the
// established remote TID. A packet from any other source address is
// answered with ERROR(UnknownTID) and does not consume the caller's
// retry budget (spec.md §4.3 step 3 / §4.4 step 4, P4).
func (t *transfer) awaitFromPeer() (Packet, recvResult) {
	if t.cancelled() {
		return nil, recvCancelled
	}
	t.conn.SetReadDeadline(time.Now().Add(t.timeout))
	buf := make([]byte, maxDatagramSize)
	n, addr, err := t.conn.ReadFrom(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, recvTimeout
		}
		// The socket itself failed (e.g. closed out from under us
		// during shutdown): distinct from an ordinary retransmission
		// timeout so callers don't burn a retry attempt on it.
		return nil, recvSocketError
	}
	if !t.sameTID(addr) {
		t.sendTo(addr, &ErrorPacket{Code: ErrUnknownTID, Message: "unknown transfer ID"})
		t.logf("ERROR(UnknownTID) sent to foreign endpoint %s", addr)
		return nil, recvForeignTID
	}
	pkt, decErr := Decode(buf[:n])
	if decErr != nil {
		t.logf("decode failure from peer: %s", decErr)
		return nil, recvMalformed
	}
	return pkt, recvOK
}
