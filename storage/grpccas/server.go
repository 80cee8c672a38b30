package grpccas

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/ufs/cidutil"
	"xdao.co/ufs/storage"
)

// Server exposes a storage.CAS over the CAS gRPC service.
type Server struct {
	UnimplementedCASServer
	CAS storage.CAS
	// Logger receives per-request debug logs. Nil disables logging.
	Logger *zap.Logger
}

func (s *Server) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Server) Put(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	codec, err := codecFrom(ctx)
	if err != nil {
		return nil, err
	}
	b := in.GetValue()
	expected := cidutil.Of(codec, b)
	id, err := s.CAS.Put(codec, b)
	if err != nil {
		s.logger().Warn("put failed", zap.Stringer("cid", expected), zap.Error(err))
		return nil, mapErr(err)
	}
	if id != expected {
		return nil, status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	}
	s.logger().Debug("put", zap.Stringer("cid", id), zap.Int("bytes", len(b)))
	return wrapperspb.String(id.String()), nil
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	id, err := cidutil.Parse(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	b, err := s.CAS.Get(id)
	if err != nil {
		s.logger().Debug("get failed", zap.Stringer("cid", id), zap.Error(err))
		return nil, mapErr(err)
	}
	if err := storage.Verify(id, b); err != nil {
		return nil, status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	}
	s.logger().Debug("get", zap.Stringer("cid", id), zap.Int("bytes", len(b)))
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	id, err := cidutil.Parse(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	return wrapperspb.Bool(s.CAS.Has(id)), nil
}

// codecFrom reads the Put codec header. A missing header means raw, which
// keeps codec-unaware clients working.
func codecFrom(ctx context.Context) (cidutil.Codec, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	vals := md.Get(CodecMetadataKey)
	if len(vals) == 0 {
		return cidutil.Raw, nil
	}
	codec, err := cidutil.ParseCodec(vals[0])
	if err != nil {
		return 0, status.Errorf(codes.InvalidArgument, "unsupported codec %q", vals[0])
	}
	return codec, nil
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, storage.ErrNotFound.Error())
	case errors.Is(err, storage.ErrInvalidCID):
		return status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	case errors.Is(err, storage.ErrCIDMismatch):
		return status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	case errors.Is(err, storage.ErrImmutable):
		return status.Error(codes.AlreadyExists, storage.ErrImmutable.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
