// Package command provides the echarlar-cli command tree.
//
// Commands operate directly on a local store directory (or an in-process
// memory store) using urfave/cli/v2:
//
//   - root.go: application, global flags and store lifecycle
//   - user.go: user create and get
//   - room.go: room create, get and join
//   - message.go: message send and paginated history
//   - view.go: output records shared by the commands
package command
