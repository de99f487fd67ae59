package campusfind

import "errors"

// Real-time connection error taxonomy. Terminal conditions (ErrAuthExpired,
// ErrMaxRetries) are never retried automatically; everything else either
// recovers locally or degrades to a logged drop.
var (
	// ErrAuthMissing means no access token was available at connect time.
	ErrAuthMissing = errors.New("no authentication token available")

	// ErrAuthExpired means the server closed the socket with the
	// policy-violation code; retrying with the same token cannot succeed.
	ErrAuthExpired = errors.New("session expired, please log in again")

	// ErrNotConnected means a send was attempted while the socket was not
	// open. The message is not queued for later delivery.
	ErrNotConnected = errors.New("websocket is not connected")

	// ErrMaxRetries means the reconnect ceiling was reached; a manual
	// Connect is required to resume.
	ErrMaxRetries = errors.New("max reconnection attempts reached")

	// ErrEmptyContent means a chat send was rejected before any frame was
	// written because the trimmed content was empty.
	ErrEmptyContent = errors.New("message content is empty")
)
