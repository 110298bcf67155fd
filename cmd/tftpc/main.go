// Command tftpc is a minimal TFTP client for manual testing against
// tftpd. It has no option negotiation; see gotftp.ReadFile/WriteFile.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/javert/tftpud/gotftp"
)

func main() {
	var addr, get, put string
	flag.StringVar(&addr, "addr", "", "server address, host:port")
	flag.StringVar(&get, "get", "", "remote filename to fetch")
	flag.StringVar(&put, "put", "", "local filename to send")
	flag.Parse()

	if addr == "" || (get == "" && put == "") {
		fmt.Fprintln(os.Stderr, "usage: tftpc -addr host:69 -get remote.file")
		fmt.Fprintln(os.Stderr, "       tftpc -addr host:69 -put local.file")
		os.Exit(2)
	}

	if get != "" {
		f, err := os.Create(get)
		if err != nil {
			fmt.Fprintln(os.Stderr, "tftpc:", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := gotftp.ReadFile(addr, get, f); err != nil {
			fmt.Fprintln(os.Stderr, "tftpc:", err)
			os.Exit(1)
		}
		return
	}

	f, err := os.Open(put)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tftpc:", err)
		os.Exit(1)
	}
	defer f.Close()
	if err := gotftp.WriteFile(addr, put, f); err != nil {
		fmt.Fprintln(os.Stderr, "tftpc:", err)
		os.Exit(1)
	}
}
