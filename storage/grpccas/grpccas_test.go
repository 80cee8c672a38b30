package grpccas

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/ufs/cidutil"
	"xdao.co/ufs/hasher"
	"xdao.co/ufs/storage"
	"xdao.co/ufs/storage/localfs"
	"xdao.co/ufs/storage/testkit"
)

func serve(t *testing.T, cas storage.CAS) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterCASServer(srv, &Server{CAS: cas, Logger: zap.NewNop()})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.DialContext(ctx) }
	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })
	return cc
}

func TestGRPCCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		cas, err := localfs.New(t.TempDir())
		require.NoError(t, err)
		c := NewClient(serve(t, cas))
		c.Timeout = 5 * time.Second
		return c
	})
}

func TestGRPCCAS_LocalFS_RoundTrip(t *testing.T) {
	cas, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	client := NewClient(serve(t, cas))
	client.Timeout = 2 * time.Second

	payload := []byte("hello grpccas")
	id, err := client.Put(cidutil.DagNode, payload)
	require.NoError(t, err)
	require.Equal(t, cidutil.OfNode(payload), id)
	require.True(t, client.Has(id))
	require.True(t, cas.Has(id), "stored under the dag-pb id on the server")

	got, err := client.Get(id)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	_, err = client.Get(cidutil.OfNode([]byte("absent")))
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGRPCCAS_MissingCodecHeaderMeansRaw(t *testing.T) {
	mem := storage.NewMemCAS()
	raw := NewCASClient(serve(t, mem))

	reply, err := raw.Put(context.Background(), wrapperspb.Bytes([]byte("legacy")))
	require.NoError(t, err)
	require.Equal(t, cidutil.OfRaw([]byte("legacy")).String(), reply.GetValue())

	_, err = raw.Get(context.Background(), wrapperspb.String("not-a-cid"))
	require.ErrorIs(t, mapRPC(err), storage.ErrInvalidCID)
}

func TestGRPCCAS_HasherSink(t *testing.T) {
	mem := storage.NewMemCAS()
	client := NewClient(serve(t, mem))

	data := make([]byte, 2*hasher.ChunkSize+1)
	root, err := hasher.SumWith(data, hasher.WithBlockSink(storage.BlockSink(client)))
	require.NoError(t, err)
	require.Equal(t, hasher.Sum(data), root)
	// Two identical zero chunks dedupe to one leaf; plus the tail and root.
	require.Equal(t, 3, mem.Len())
}

func TestMapErr(t *testing.T) {
	for _, sentinel := range []error{storage.ErrNotFound, storage.ErrInvalidCID, storage.ErrCIDMismatch, storage.ErrImmutable} {
		require.ErrorIs(t, mapRPC(mapErr(sentinel)), sentinel)
	}
	require.NoError(t, mapErr(nil))
}
