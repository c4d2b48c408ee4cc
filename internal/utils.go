package internal

import (
	"fmt"
	"net"
	"strings"
)

// ParseTarget splits a transfer target of the form host:port/name into the
// dial address and the remote file name.
func ParseTarget(target string) (addr string, name string, err error) {
	hostport, file, ok := strings.Cut(target, "/")
	if !ok || file == "" {
		return "", "", fmt.Errorf("target %q missing file name, want host:port/name", target)
	}
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return "", "", fmt.Errorf("target %q: %w", target, err)
	}
	if host == "" || port == "" {
		return "", "", fmt.Errorf("target %q missing host or port", target)
	}
	return hostport, file, nil
}

// HumanizeSize renders a byte count with a binary unit suffix.
func HumanizeSize(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
