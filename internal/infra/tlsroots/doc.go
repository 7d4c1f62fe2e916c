// Package tlsroots loads the certificates of the HTTP endpoint.
//
// A Watcher holds the server key pair and reloads it when either file
// changes on disk, so certificates can be rotated without a restart. A
// Pool holds the CAs trusted to sign client certificates when mutual TLS
// is enabled.
package tlsroots
