// Package blocksource abstracts fetching a remote message's media in fixed
// size blocks, the unit the streaming server paces its pump loop by.
package blocksource

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the message id has no associated media, or
// the requested block index is past the end of the file.
var ErrNotFound = errors.New("blocksource: message not found")

// ErrConnection is returned when the backing transport (the chat API) could
// not be reached or returned a transient failure; callers should surface
// this as a retryable condition rather than a permanent 404.
var ErrConnection = errors.New("blocksource: upstream connection failed")

// Info is the static metadata needed to answer a stream request's headers
// before any bytes are fetched.
type Info struct {
	Size     int64
	MimeType string
	Name     string
}

// Source fetches blocks of one remote message's media on demand. An
// implementation may cache blocks it has already retrieved; the streaming
// server does not assume blocks are free to re-fetch.
type Source interface {
	// GetMessage resolves a message id to its static metadata. Returns
	// ErrNotFound if the message doesn't exist or carries no media.
	GetMessage(ctx context.Context, messageID uint64) (Info, error)

	// GetBlock fetches the block at blockIndex (0-based, block size fixed
	// for the lifetime of the source). The final block may be shorter than
	// the configured block size. Returns ErrNotFound if blockIndex is past
	// the last block.
	GetBlock(ctx context.Context, messageID uint64, blockIndex int64) ([]byte, error)

	// BlockSize returns the fixed block size blocks are fetched in.
	BlockSize() int64

	// HealthCheck reports whether the backing transport is currently
	// reachable, used by the /healthcheck endpoint and the process exit
	// code on startup failure.
	HealthCheck(ctx context.Context) error
}
