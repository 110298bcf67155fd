package gotftp

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

// freePort asks the OS for an unused UDP port by binding to :0 and
// immediately releasing it, mirroring how *_test.go files across the
// retrieved corpus pick loopback ports for integration tests.
func freePort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("freePort: %v", err)
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).Port
}

func startTestServer(t *testing.T, root string) (addr string, srv *Server) {
	t.Helper()
	port := freePort(t)
	cfg := ServerConfig{
		HostAddress:       "127.0.0.1",
		ListeningPort:     port,
		Timeout:           2 * time.Second,
		Retries:           2,
		EphemeralPortLow:  30000,
		EphemeralPortHigh: 31000,
		FileHandler:       NewFSFileHandler(root),
	}
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	go srv.Run()
	time.Sleep(50 * time.Millisecond) // give the listener goroutine time to bind
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), srv
}

func TestServerReadRoundTrip(t *testing.T) {
	root := t.TempDir()
	content := bytes.Repeat([]byte("the quick brown fox "), 100)
	if err := os.WriteFile(filepath.Join(root, "greeting.txt"), content, 0o644); err != nil {
		t.Fatal(err)
	}

	addr, srv := startTestServer(t, root)
	defer srv.Stop()

	var got bytes.Buffer
	if err := ReadFile(addr, "greeting.txt", &got); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got.Bytes(), content) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", got.Len(), len(content))
	}
}

// TestServerReadExactBlockSizeMultiple exercises invariant I5: a file
// whose size is an exact multiple of the negotiated block size must
// still end with an extra, empty final DATA block so the client can
// detect end-of-transfer.
func TestServerReadExactBlockSizeMultiple(t *testing.T) {
	root := t.TempDir()
	content := bytes.Repeat([]byte("x"), int(DefaultBlockSize)*2) // exact multiple of 512
	if err := os.WriteFile(filepath.Join(root, "exact.bin"), content, 0o644); err != nil {
		t.Fatal(err)
	}

	addr, srv := startTestServer(t, root)
	defer srv.Stop()

	var got bytes.Buffer
	if err := ReadFile(addr, "exact.bin", &got); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got.Bytes(), content) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", got.Len(), len(content))
	}
}

func TestServerWriteRoundTrip(t *testing.T) {
	root := t.TempDir()
	addr, srv := startTestServer(t, root)
	defer srv.Stop()

	content := bytes.Repeat([]byte("uploaded content "), 100)
	if err := WriteFile(addr, "uploaded.bin", bytes.NewReader(content)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(root, "uploaded.bin"))
	if err != nil {
		t.Fatalf("ReadFile from disk: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(content))
	}
}

func TestServerReadMissingFile(t *testing.T) {
	root := t.TempDir()
	addr, srv := startTestServer(t, root)
	defer srv.Stop()

	var got bytes.Buffer
	if err := ReadFile(addr, "does-not-exist.txt", &got); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestServerWriteRejectsExisting(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "locked.bin"), []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}
	addr, srv := startTestServer(t, root)
	defer srv.Stop()

	err := WriteFile(addr, "locked.bin", bytes.NewReader([]byte("overwrite")))
	if err == nil {
		t.Fatal("expected an error writing over an existing file")
	}
}

func TestServerRejectsPathTraversal(t *testing.T) {
	root := t.TempDir()
	addr, srv := startTestServer(t, root)
	defer srv.Stop()

	var got bytes.Buffer
	if err := ReadFile(addr, "../outside.txt", &got); err == nil {
		t.Fatal("expected traversal attempt to be rejected")
	}
}

func TestTransferTIDPolicing(t *testing.T) {
	// A packet from a foreign address must not be mistaken for the
	// established peer, and must not count against the retry budget.
	serverConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer serverConn.Close()

	realPeer, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer realPeer.Close()

	foreignPeer, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer foreignPeer.Close()

	cfg := ServerConfig{Timeout: 500 * time.Millisecond, Retries: 1, FileHandler: NewFSFileHandler(t.TempDir())}
	tr := newTransfer(serverConn, realPeer.LocalAddr(), cfg.withDefaults())

	foreignPeer.WriteTo(Encode(&AckPacket{Block: 0}), serverConn.LocalAddr())

	pkt, res := tr.awaitFromPeer()
	if res != recvForeignTID {
		t.Fatalf("awaitFromPeer result = %v, want recvForeignTID", res)
	}
	if pkt != nil {
		t.Fatalf("expected nil packet on foreign TID, got %+v", pkt)
	}

	buf := make([]byte, maxDatagramSize)
	foreignPeer.SetReadDeadline(time.Now().Add(time.Second))
	n, _, err := foreignPeer.ReadFrom(buf)
	if err != nil {
		t.Fatalf("expected ERROR(UnknownTID) delivered to the foreign sender: %v", err)
	}
	errPkt, err := Decode(buf[:n])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	e, ok := errPkt.(*ErrorPacket)
	if !ok || e.Code != ErrUnknownTID {
		t.Fatalf("got %+v, want ERROR(UnknownTID)", errPkt)
	}
}

// TestAwaitDataForAcceptsWrapSuccessor exercises the WRQ-side leniency
// of accepting either 0 or 1 as the successor to block 65535 (spec.md
// §4.4 Phase D, §9), mirroring the read-side TestNextReadBlockWrap.
func TestAwaitDataForAcceptsWrapSuccessor(t *testing.T) {
	serverConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer serverConn.Close()

	peer, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer peer.Close()

	cfg := ServerConfig{Timeout: 500 * time.Millisecond, Retries: 1, FileHandler: NewFSFileHandler(t.TempDir())}
	tr := newTransfer(serverConn, peer.LocalAddr(), cfg.withDefaults())

	if _, err := peer.WriteTo(Encode(&DataPacket{Block: 1, Payload: []byte("hi")}), serverConn.LocalAddr()); err != nil {
		t.Fatal(err)
	}

	data, ok := awaitDataFor(tr, 0, &AckPacket{Block: 65535})
	if !ok {
		t.Fatal("expected DATA(1) to be accepted as the successor to block 65535")
	}
	if data.Block != 1 || string(data.Payload) != "hi" {
		t.Fatalf("got %+v", data)
	}
}

func TestNextReadBlockWrap(t *testing.T) {
	cases := map[uint16]uint16{
		1:     2,
		100:   101,
		65534: 65535,
		65535: 1, // wraps to 1, never to 0
	}
	for in, want := range cases {
		if got := nextReadBlock(in); got != want {
			t.Errorf("nextReadBlock(%d) = %d, want %d", in, got, want)
		}
	}
}
