// Command echoserver runs a minimal RPC server exposing a single Echo
// method, optionally registering itself with etcd so sessionmgr.Manager and
// client.Client can discover it.
package main

import (
	"flag"
	"log"

	"go.uber.org/zap"

	"github.com/raftkit/rpcsession/registry"
	"github.com/raftkit/rpcsession/server"
)

// Echo is the toy service echoserver exposes: Echo.Say(Args) Reply.
type Echo struct{}

type Args struct {
	Message string
}

type Reply struct {
	Message string
}

// Say returns its input unchanged; it exists to give the session/server
// stack a request type to carry end to end.
func (e *Echo) Say(args *Args, reply *Reply) error {
	reply.Message = args.Message
	return nil
}

func main() {
	listenAddr := flag.String("listen", ":7700", "address to listen on")
	advertiseAddr := flag.String("advertise", "127.0.0.1:7700", "address to advertise via etcd")
	etcdEndpoints := flag.String("etcd", "", "comma-separated etcd endpoints; empty disables registration")
	flag.Parse()

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zapLogger.Sync()
	server.SetLogger(zapLogger)

	svr := server.NewServer()
	if err := svr.Register(&Echo{}); err != nil {
		zapLogger.Sugar().Fatalw("failed to register service", "error", err)
	}

	var reg registry.Registry
	if *etcdEndpoints != "" {
		etcdReg, err := registry.NewEtcdRegistry([]string{*etcdEndpoints})
		if err != nil {
			zapLogger.Sugar().Fatalw("failed to connect to etcd", "error", err)
		}
		reg = etcdReg
	}

	zapLogger.Sugar().Infow("echoserver starting", "listen", *listenAddr, "advertise", *advertiseAddr)
	if err := svr.Serve("tcp", *listenAddr, *advertiseAddr, reg); err != nil {
		zapLogger.Sugar().Fatalw("server exited", "error", err)
	}
}
