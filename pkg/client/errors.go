package client

import (
	"errors"

	"github.com/hubclient/hubclient-go/pkg/upload"
)

// Client errors.
var (
	// ErrInvalidArgument is returned for malformed arguments and unknown options.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrShuttingDown is returned by every API after Destroy.
	ErrShuttingDown = errors.New("client is shutting down")

	// ErrReentrantCall is the panic value for DoWork or Destroy called from a callback.
	ErrReentrantCall = errors.New("DoWork or Destroy called from a callback")

	// ErrIndefiniteTime is returned by GetLastMessageReceiveTime before any message arrived.
	ErrIndefiniteTime = errors.New("no message received yet")

	// ErrOperationInProgress is returned when an upload is already active.
	ErrOperationInProgress = upload.ErrOperationInProgress
)
