// Package rpc
package rpc

import "errors"

var (
	// ErrClosed fails calls on a client that was closed or lost its
	// transport.
	ErrClosed = errors.New("rpc: client closed")

	// ErrTransactionsExhausted means all 255 transaction ids are awaiting
	// completions.
	ErrTransactionsExhausted = errors.New("rpc: all transaction ids pending")
)
