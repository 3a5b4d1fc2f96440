package protocol

import "errors"

// User-visible errors. Their messages are stable and can be matched on by
// consumers.
var (
	// ErrFileNotFound is returned by a guest when the host answered a file
	// request with found=false.
	ErrFileNotFound = errors.New("File not found on host")

	// ErrNotConnected is returned when a request is made without an open
	// connection to a host, or when the connection went away while the
	// request was outstanding.
	ErrNotConnected = errors.New("Not connected to host")

	// ErrConnectionTimeout is returned when a connection to a host could not
	// be established within the configured timeout.
	ErrConnectionTimeout = errors.New("Connection timed out")

	// ErrRequestTimeout is returned when a file request did not receive a
	// response within the configured deadline.
	ErrRequestTimeout = errors.New("Request timeout")
)

// Codec errors.
var (
	// ErrEmptyMessage is returned when decoding a zero-length buffer.
	ErrEmptyMessage = errors.New("empty message")

	// ErrUnknownMessageType is returned when the type byte of a message does
	// not correspond to any known message.
	ErrUnknownMessageType = errors.New("unknown message type")
)
