package client

import (
	"errors"
	"fmt"

	"github.com/hubclient/hubclient-go/pkg/log"
	"github.com/hubclient/hubclient-go/pkg/upload"
)

// UploadCompleteFunc receives the final outcome of an upload.
type UploadCompleteFunc = upload.CompleteFunc

// UploadToBlob uploads data to destination in MaxBlockSize blocks.
// cb may be nil.
func (c *Client) UploadToBlob(destination string, data []byte, cb UploadCompleteFunc, userCtx any) error {
	if c.destroyed {
		return ErrShuttingDown
	}
	if len(data) > upload.MaxBlockSize*upload.MaxBlockCount {
		return fmt.Errorf("%w: %d bytes exceeds the upload limit", ErrInvalidArgument, len(data))
	}
	return c.startUpload(destination, upload.BufferSource(data), cb, userCtx)
}

// UploadMultipleBlocksToBlob uploads blocks produced by getData, one per DoWork.
// getData is called with the previous block's result (ResultOK before the first);
// it returns an empty block at end of data or ActionAbort to cancel.
func (c *Client) UploadMultipleBlocksToBlob(destination string, getData upload.GetDataFunc, cb UploadCompleteFunc, userCtx any) error {
	if c.destroyed {
		return ErrShuttingDown
	}
	return c.startUpload(destination, getData, cb, userCtx)
}

// UploadSession returns the active or most recent upload session.
func (c *Client) UploadSession() upload.Session {
	return c.chunker.Session()
}

func (c *Client) startUpload(destination string, getData upload.GetDataFunc, cb UploadCompleteFunc, userCtx any) error {
	err := c.chunker.Start(destination, getData, cb, userCtx)
	switch {
	case err == nil:
		c.debugLog("upload started", "destination", destination)
		c.logState(log.StateEntityUpload, "", "STARTED", destination)
		return nil
	case errors.Is(err, upload.ErrOperationInProgress):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
}
