package model

import (
	"errors"
	"fmt"

	"xdao.co/ufs/cidutil"
	"xdao.co/ufs/dagpb"
	"xdao.co/ufs/dagreader"
	"xdao.co/ufs/hasher"
	"xdao.co/ufs/storage"
)

type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrInvalidCID     ErrorCode = "INVALID_CID"
	ErrMissingCAS     ErrorCode = "MISSING_CAS"
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrCIDMismatch    ErrorCode = "CID_MISMATCH"
	ErrMalformedNode  ErrorCode = "MALFORMED_NODE"
	ErrInvalidDAG     ErrorCode = "INVALID_DAG"
	ErrTooLarge       ErrorCode = "PAYLOAD_TOO_LARGE"
	ErrInternal       ErrorCode = "INTERNAL"
)

// CodedError is a stable error with a machine-readable code and a human message.
type CodedError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code ErrorCode, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

// Classify maps library errors onto stable codes. A CodedError anywhere in
// the chain is returned unchanged.
func Classify(err error) *CodedError {
	if err == nil {
		return nil
	}
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return NewError(ErrNotFound, err.Error())
	case errors.Is(err, storage.ErrCIDMismatch):
		return NewError(ErrCIDMismatch, err.Error())
	case errors.Is(err, storage.ErrInvalidCID), errors.Is(err, cidutil.ErrMalformedIdentifier):
		return NewError(ErrInvalidCID, err.Error())
	case errors.Is(err, dagpb.ErrMalformedNode):
		return NewError(ErrMalformedNode, err.Error())
	case errors.Is(err, dagreader.ErrInvalidDAG):
		return NewError(ErrInvalidDAG, err.Error())
	case errors.Is(err, hasher.ErrPayloadTooLarge):
		return NewError(ErrTooLarge, err.Error())
	default:
		return NewError(ErrInternal, err.Error())
	}
}
