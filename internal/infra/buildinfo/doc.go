// Package buildinfo exposes e-charlar build information.
//
// Version, Commit and BuildTime are injected with ldflags:
//
//	go build -ldflags "-X github.com/volodymyrd/echarlar/internal/infra/buildinfo.Version=v0.3.0"
//
// When Commit or BuildTime are not injected they are read from the VCS
// stamp the go tool embeds in the binary.
package buildinfo
