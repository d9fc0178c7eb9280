// Package client discovers service instances via registry, picks one with
// loadbalance, and dispatches calls over a session.Session instead of a pool
// of single-use transport.ClientTransport connections: one multiplexed,
// liveness-monitored session per instance address, reused across calls.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/raftkit/rpcsession/addr"
	"github.com/raftkit/rpcsession/codec"
	"github.com/raftkit/rpcsession/loadbalance"
	"github.com/raftkit/rpcsession/message"
	"github.com/raftkit/rpcsession/registry"
	"github.com/raftkit/rpcsession/session"
)

// Client is the caller-facing RPC handle: Call looks up ServiceMethod's
// service name in the registry, picks an instance via the balancer, and
// reuses (or lazily builds) the session.Session to that instance's address.
type Client struct {
	registry  registry.Registry
	balancer  loadbalance.Balancer
	codecType codec.CodecType

	// callTimeout bounds Session.Wait for each call; it has nothing to do
	// with the session's own liveness timer (session.TimeoutMS), which
	// keeps running underneath regardless of how long any one call waits.
	callTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*session.Session // one multiplexed session per instance address
}

// NewClient builds a Client. codecType selects the wire serialization for
// RPCMessage bodies (see codec.CodecType); callTimeout bounds how long a
// single Call will wait for its reply before giving up.
func NewClient(reg registry.Registry, bal loadbalance.Balancer, codecType byte, callTimeout time.Duration) *Client {
	return &Client{
		registry:    reg,
		balancer:    bal,
		codecType:   codec.CodecType(codecType),
		callTimeout: callTimeout,
		sessions:    make(map[string]*session.Session),
	}
}

// getSession returns the cached session for addrStr, building a fresh one if
// there is none yet or the cached one has already failed.
func (c *Client) getSession(addrStr string) (*session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.sessions[addrStr]; ok {
		if s.ErrorMessage() == "" {
			return s, nil
		}
		delete(c.sessions, addrStr)
	}

	resolved := addr.Resolve(addrStr)
	s := session.MakeSession(context.Background(), resolved, 0, time.Now().Add(session.ConnectMaxDeadline))
	if s.ErrorMessage() != "" {
		return nil, fmt.Errorf("%s", s.ErrorMessage())
	}
	c.sessions[addrStr] = s
	return s, nil
}

// Call invokes serviceMethod ("Service.Method") on a discovered instance and
// unmarshals its reply into reply. It blocks for at most callTimeout waiting
// for the response.
func (c *Client) Call(serviceMethod string, args any, reply any) error {
	split := strings.Split(serviceMethod, ".")
	if len(split) != 2 {
		return fmt.Errorf("invalid serviceMethod format: %v", serviceMethod)
	}
	serviceName := split[0]

	instances, err := c.registry.Discover(serviceName)
	if err != nil {
		return err
	}

	instance, err := c.balancer.Pick(instances)
	if err != nil {
		return err
	}

	s, err := c.getSession(instance.Addr)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(args)
	if err != nil {
		return err
	}
	rpcMessage := message.RPCMessage{ServiceMethod: serviceMethod, Payload: payload}

	cdc := codec.GetCodec(c.codecType)
	body, err := cdc.Encode(&rpcMessage)
	if err != nil {
		return err
	}

	rpc := s.SendRequest(body)
	s.Wait(rpc, time.Now().Add(c.callTimeout))
	s.Update(rpc)

	switch rpc.Status {
	case session.OK:
		var resp message.RPCMessage
		if err := cdc.Decode(rpc.Reply, &resp); err != nil {
			return err
		}
		if resp.Error != "" {
			return fmt.Errorf("server error: %v", resp.Error)
		}
		return json.Unmarshal(resp.Payload, reply)
	case session.Canceled:
		return fmt.Errorf("call to %s canceled", instance.Addr)
	case session.Error:
		return fmt.Errorf("%s", rpc.ErrorMessage)
	default:
		s.Cancel(rpc) // NotReady: Wait's deadline elapsed, give up this slot
		return fmt.Errorf("call to %s timed out after %s", instance.Addr, c.callTimeout)
	}
}

// Close closes every session this client has opened.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for addrStr, s := range c.sessions {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.sessions, addrStr)
	}
	return firstErr
}
