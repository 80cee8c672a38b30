package grpccas

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/ufs/storage"
)

// mapRPC turns a server status back into the storage sentinel it encodes.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.NotFound:
		return storage.ErrNotFound
	case codes.InvalidArgument:
		return storage.ErrInvalidCID
	case codes.DataLoss:
		return storage.ErrCIDMismatch
	case codes.AlreadyExists:
		return storage.ErrImmutable
	default:
		return err
	}
}
