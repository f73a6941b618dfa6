//go:build windows

package ipc

import (
	"net"
	"strings"
)

// loopbackAddr is used when the configured path is a pipe name. Named
// pipes would need a dedicated library; a loopback TCP socket gives the
// same local-only reachability for editor plugins.
const loopbackAddr = "127.0.0.1:48732"

func listenAddr(path string) string {
	if strings.HasPrefix(path, `\\.\pipe\`) {
		return loopbackAddr
	}
	return path
}

func listen(path string) (net.Listener, error) {
	return net.Listen("tcp", listenAddr(path))
}

func cleanupSocket(string) {}

func dial(path string) (net.Conn, error) {
	return net.Dial("tcp", listenAddr(path))
}
