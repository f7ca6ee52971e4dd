//go:build windows

package config

// defaultUseUnixSocket defaults to false on Windows, where loopback TCP is
// the natural local transport.
func defaultUseUnixSocket() bool { return false }
