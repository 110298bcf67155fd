package gotftp

import (
	"io"
	"net"
	"time"
)

// ReadFile and WriteFile are a minimal, unoptioned TFTP client: no
// blksize/timeout/tsize negotiation, fixed 512-byte blocks, fixed
// 3-second timeout, no retry. They exist to exercise packet.go from
// the other side of the wire in tests and in cmd/tftpc; gotftp's
// focus is the server (spec.md §1).

const clientTimeout = 3 * time.Second

// ReadFile issues an RRQ for filename against addr and copies the
// received file into w.
func ReadFile(addr, filename string, w io.Writer) error {
	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return err
	}
	defer conn.Close()

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	var raddr net.Addr = udpAddr

	if err := sendTo(conn, raddr, &RequestPacket{Op: OpRRQ, Filename: filename, Mode: ModeOctet}); err != nil {
		return err
	}

	var blockID uint16 = 1
	for {
		pkt, from, err := recvFrom(conn, clientTimeout)
		if err != nil {
			return err
		}
		raddr = from

		data, ok := pkt.(*DataPacket)
		if !ok {
			if e, ok := pkt.(*ErrorPacket); ok {
				return &remoteError{code: e.Code, msg: e.Message}
			}
			continue
		}
		if data.Block != blockID {
			continue
		}
		if _, err := w.Write(data.Payload); err != nil {
			sendTo(conn, raddr, &ErrorPacket{Code: ErrNotDefined, Message: err.Error()})
			return err
		}
		if err := sendTo(conn, raddr, &AckPacket{Block: blockID}); err != nil {
			return err
		}
		if len(data.Payload) < int(DefaultBlockSize) {
			return nil
		}
		blockID++
	}
}

// WriteFile issues a WRQ for filename against addr and sends the
// contents of r.
func WriteFile(addr, filename string, r io.Reader) error {
	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return err
	}
	defer conn.Close()

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	var raddr net.Addr = udpAddr

	if err := sendTo(conn, raddr, &RequestPacket{Op: OpWRQ, Filename: filename, Mode: ModeOctet}); err != nil {
		return err
	}

	if err := awaitAck(conn, &raddr, 0); err != nil {
		return err
	}

	buf := make([]byte, DefaultBlockSize)
	var blockID uint16 = 1
	for {
		n, err := io.ReadFull(r, buf)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return err
		}

		if sendErr := sendTo(conn, raddr, &DataPacket{Block: blockID, Payload: buf[:n]}); sendErr != nil {
			return sendErr
		}
		if ackErr := awaitAck(conn, &raddr, blockID); ackErr != nil {
			return ackErr
		}
		if n < int(DefaultBlockSize) {
			return nil
		}
		blockID++
	}
}

func sendTo(conn net.PacketConn, addr net.Addr, p Packet) error {
	_, err := conn.WriteTo(Encode(p), addr)
	return err
}

func recvFrom(conn net.PacketConn, timeout time.Duration) (Packet, net.Addr, error) {
	conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, maxDatagramSize)
	n, from, err := conn.ReadFrom(buf)
	if err != nil {
		return nil, nil, err
	}
	pkt, err := Decode(buf[:n])
	if err != nil {
		return nil, nil, err
	}
	return pkt, from, nil
}

func awaitAck(conn net.PacketConn, raddr *net.Addr, want uint16) error {
	for {
		pkt, from, err := recvFrom(conn, clientTimeout)
		if err != nil {
			return err
		}
		*raddr = from
		if ack, ok := pkt.(*AckPacket); ok && ack.Block == want {
			return nil
		}
		if e, ok := pkt.(*ErrorPacket); ok {
			return &remoteError{code: e.Code, msg: e.Message}
		}
	}
}

// remoteError wraps an ERROR packet received from a server.
type remoteError struct {
	code ErrorCode
	msg  string
}

func (e *remoteError) Error() string { return e.msg }
