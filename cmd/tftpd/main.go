// Command tftpd runs a standalone TFTP server rooted at a single
// directory.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/javert/tftpud/gotftp"
)

func main() {
	var (
		host       string
		port       int
		root       string
		timeout    time.Duration
		retries    int
		maxXfers   int
		portLow    int
		portHigh   int
		verbose    bool
	)
	flag.StringVar(&host, "host", "", "bind address (empty means all interfaces)")
	flag.IntVar(&port, "port", 69, "listening UDP port")
	flag.StringVar(&root, "root", ".", "root directory served to clients")
	flag.DurationVar(&timeout, "timeout", 6*time.Second, "per-block ACK/DATA timeout")
	flag.IntVar(&retries, "retries", 3, "retransmission attempts per block")
	flag.IntVar(&maxXfers, "max-transfers", 0, "cap on concurrent transfers (0 = unbounded)")
	flag.IntVar(&portLow, "ephemeral-low", 2048, "low end of the ephemeral port range")
	flag.IntVar(&portHigh, "ephemeral-high", 65535, "high end of the ephemeral port range")
	flag.BoolVar(&verbose, "v", false, "log every transfer event to stdout")
	flag.Parse()

	cfg := gotftp.ServerConfig{
		HostAddress:            host,
		ListeningPort:          port,
		Timeout:                timeout,
		Retries:                retries,
		EphemeralPortLow:       portLow,
		EphemeralPortHigh:      portHigh,
		MaxConcurrentTransfers: maxXfers,
		FileHandler:            gotftp.NewFSFileHandler(root),
	}
	if verbose {
		cfg.Logger = gotftp.NewStdLogger("")
	}

	srv, err := gotftp.NewServer(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tftpd:", err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Fprintln(os.Stderr, "tftpd: shutting down")
		srv.Stop()
	}()

	fmt.Fprintf(os.Stderr, "tftpd: serving %s on :%d\n", root, port)
	if err := srv.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "tftpd:", err)
		os.Exit(1)
	}
}
