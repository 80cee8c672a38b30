package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"xdao.co/ufs/storage"
	"xdao.co/ufs/storage/casconfig"
	"xdao.co/ufs/storage/casregistry"
	"xdao.co/ufs/storage/grpccas"

	_ "xdao.co/ufs/storage/ipfs"
	_ "xdao.co/ufs/storage/localfs"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	fs := pflag.NewFlagSet("xdao-casgrpcd", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	listen := fs.String("listen", "127.0.0.1:7777", "listen address")
	backend := fs.String("backend", "localfs", "CAS backend name")
	configPath := fs.String("cas-config", "", "YAML/JSON CAS config (overrides --backend)")
	cache := fs.Int("cache", 0, "Keep up to N blocks in an in-memory LRU")
	maxMsg := fs.Int("max-msg-bytes", 0, "Max gRPC message size in bytes (send+recv); 0 uses grpc defaults")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	verbose := fs.BoolP("verbose", "v", false, "Log every request")

	casregistry.RegisterFlags(fs, casregistry.UsageDaemon)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(out, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	log := newLogger(*verbose)
	defer func() { _ = log.Sync() }()

	cas, closeFn, err := openStore(*backend, *configPath, *cache)
	if err != nil {
		log.Error("open store", zap.Error(err))
		return 2
	}
	defer closeFn()

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Error("listen", zap.Error(err))
		return 1
	}
	defer lis.Close()

	var opts []grpc.ServerOption
	if *maxMsg > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(*maxMsg), grpc.MaxSendMsgSize(*maxMsg))
	}
	s := grpc.NewServer(opts...)
	grpccas.RegisterCASServer(s, &grpccas.Server{CAS: cas, Logger: log})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		s.GracefulStop()
	}()

	log.Info("listening", zap.String("addr", lis.Addr().String()), zap.String("backend", *backend), zap.String("config", *configPath))
	if err := s.Serve(lis); err != nil {
		log.Error("serve", zap.Error(err))
		return 1
	}
	return 0
}

func openStore(backend, configPath string, cache int) (storage.CAS, func() error, error) {
	var (
		cas     storage.CAS
		closeFn func() error
		err     error
	)
	if configPath != "" {
		cfg, lerr := casconfig.LoadFile(configPath)
		if lerr != nil {
			return nil, nil, lerr
		}
		cas, closeFn, err = cfg.Open(casregistry.UsageDaemon, "")
	} else {
		cas, closeFn, err = casregistry.Open(backend, casregistry.UsageDaemon)
	}
	if err != nil {
		return nil, nil, err
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	if cache > 0 {
		cached, cerr := storage.NewCachedCAS(cas, cache)
		if cerr != nil {
			_ = closeFn()
			return nil, nil, cerr
		}
		cas = cached
	}
	return cas, closeFn, nil
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log.Named("casgrpcd")
}
