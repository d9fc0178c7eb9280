// Command pingclient drives a single session.Session directly against a
// peer (bypassing client.Client's registry/balancer layer), to exercise and
// demonstrate the liveness ping/pong path end to end.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/raftkit/rpcsession/addr"
	"github.com/raftkit/rpcsession/codec"
	"github.com/raftkit/rpcsession/message"
	"github.com/raftkit/rpcsession/session"
)

type echoArgs struct {
	Message string
}

type echoReply struct {
	Message string
}

func main() {
	target := flag.String("addr", "127.0.0.1:7700", "peer address to connect to")
	interval := flag.Duration("interval", 2*time.Second, "delay between requests")
	count := flag.Int("count", 5, "number of requests to send (0 = forever)")
	flag.Parse()

	zapLogger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()
	session.SetLogger(zapLogger)
	sugar := zapLogger.Sugar()

	resolved := addr.Resolve(*target)
	s := session.MakeSession(context.Background(), resolved, 0, time.Now().Add(session.ConnectMaxDeadline))
	if errMsg := s.ErrorMessage(); errMsg != "" {
		sugar.Fatalw("failed to connect", "error", errMsg)
	}
	sugar.Infow("connected", "session", s.String())

	cdc := codec.GetCodec(codec.CodecTypeJSON)
	for i := 0; *count == 0 || i < *count; i++ {
		argPayload, err := json.Marshal(&echoArgs{Message: fmt.Sprintf("ping #%d", i)})
		if err != nil {
			sugar.Fatalw("failed to marshal request", "error", err)
		}
		body, err := cdc.Encode(&message.RPCMessage{ServiceMethod: "Echo.Say", Payload: argPayload})
		if err != nil {
			sugar.Fatalw("failed to encode request", "error", err)
		}

		rpc := s.SendRequest(body)
		s.Wait(rpc, time.Now().Add(5*time.Second))
		s.Update(rpc)

		switch rpc.Status {
		case session.OK:
			var resp message.RPCMessage
			if err := cdc.Decode(rpc.Reply, &resp); err != nil {
				sugar.Errorw("failed to decode reply", "seq", i, "error", err)
				continue
			}
			if resp.Error != "" {
				sugar.Errorw("server returned an error", "seq", i, "error", resp.Error)
				continue
			}
			var reply echoReply
			if err := json.Unmarshal(resp.Payload, &reply); err != nil {
				sugar.Errorw("failed to unmarshal reply payload", "seq", i, "error", err)
				continue
			}
			sugar.Infow("reply received", "seq", i, "message", reply.Message)
		case session.Error:
			sugar.Errorw("session failed", "seq", i, "error", rpc.ErrorMessage)
			return
		default:
			sugar.Warnw("request did not complete in time", "seq", i)
		}

		time.Sleep(*interval)
	}

	if err := s.Close(); err != nil {
		sugar.Warnw("error closing session", "error", err)
	}
}
