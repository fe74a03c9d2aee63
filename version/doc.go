// Package version reports the nitai release linked into the binary.
//
// Release builds set Version through -ldflags:
//
//	go build -ldflags "-X github.com/kbukum/nitai/version.Version=1.4.0"
package version
