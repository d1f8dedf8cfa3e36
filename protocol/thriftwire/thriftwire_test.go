package thriftwire

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guileen/rpcpool/lifecycle"
	"github.com/guileen/rpcpool/network"
)

// pingServer answers "ping" with an empty reply, ignores "hang" and rejects
// every other method with UNKNOWN_METHOD.
type pingServer struct {
	ln       net.Listener
	layering *Layering
	wg       sync.WaitGroup
}

func startPingServer(t *testing.T, transport TransportKind, protocol ProtocolKind) *pingServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &pingServer{ln: ln, layering: NewLayering(transport, protocol, nil)}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(func() {
		ln.Close()
		s.wg.Wait()
	})
	return s
}

func (s *pingServer) Addr() string { return s.ln.Addr().String() }

func (s *pingServer) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *pingServer) handle(conn net.Conn) {
	defer conn.Close()
	ctx := context.Background()
	in, out, err := s.layering.Wrap(ctx, conn)
	if err != nil {
		return
	}
	for {
		name, _, seqID, err := in.ReadMessageBegin(ctx)
		if err != nil {
			return
		}
		if err := (&Void{}).Read(ctx, in); err != nil {
			return
		}
		if err := in.ReadMessageEnd(ctx); err != nil {
			return
		}

		switch name {
		case PingMethod:
			out.WriteMessageBegin(ctx, name, thrift.REPLY, seqID)
			(&Void{Name: "ping_result"}).Write(ctx, out)
		case "hang":
			continue
		default:
			out.WriteMessageBegin(ctx, name, thrift.EXCEPTION, seqID)
			thrift.NewTApplicationException(thrift.UNKNOWN_METHOD, "unknown method "+name).Write(ctx, out)
		}
		out.WriteMessageEnd(ctx)
		if err := out.Flush(ctx); err != nil {
			return
		}
	}
}

func dialPingClient(t *testing.T, addr string, transport TransportKind, protocol ProtocolKind) *PingClient {
	t.Helper()
	factory, err := network.NewAddressFailoverFactory([]string{addr},
		NewLayering(transport, protocol, nil), NewPingClient,
		network.WithConnectTimeout(time.Second))
	require.NoError(t, err)

	client, err := factory.Create(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestParseKinds(t *testing.T) {
	tk, err := ParseTransportKind("Framed")
	require.NoError(t, err)
	assert.Equal(t, Framed, tk)
	assert.Equal(t, "framed", tk.String())

	pk, err := ParseProtocolKind("compact")
	require.NoError(t, err)
	assert.Equal(t, Compact, pk)
	assert.Equal(t, "compact", pk.String())

	_, err = ParseTransportKind("http")
	assert.Error(t, err)
	_, err = ParseProtocolKind("json")
	assert.Error(t, err)
}

func TestPingClientIsValid(t *testing.T) {
	cases := []struct {
		name      string
		transport TransportKind
		protocol  ProtocolKind
	}{
		{"buffered binary", Buffered, Binary},
		{"buffered compact", Buffered, Compact},
		{"framed binary", Framed, Binary},
		{"framed compact", Framed, Compact},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := startPingServer(t, tc.transport, tc.protocol)
			client := dialPingClient(t, server.Addr(), tc.transport, tc.protocol)

			for i := 0; i < 3; i++ {
				assert.NoError(t, client.IsValid(context.Background()))
			}
			assert.False(t, client.HasBroken())
		})
	}
}

func TestApplicationExceptionKeepsConnection(t *testing.T) {
	server := startPingServer(t, Framed, Binary)
	client := dialPingClient(t, server.Addr(), Framed, Binary)

	_, err := client.Call(context.Background(), "missing", &Void{}, &Void{})
	require.Error(t, err)

	var appErr thrift.TApplicationException
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, int32(thrift.UNKNOWN_METHOD), appErr.TypeId())
	assert.False(t, client.HasBroken())

	assert.NoError(t, client.IsValid(context.Background()))
}

func TestCanceledCallMarksBroken(t *testing.T) {
	server := startPingServer(t, Buffered, Binary)
	client := dialPingClient(t, server.Addr(), Buffered, Binary)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Call(ctx, "hang", &Void{}, &Void{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, client.HasBroken())

	err = client.IsValid(context.Background())
	assert.True(t, lifecycle.IsValidationError(err))
}

func TestPeerCloseMarksBroken(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	client := dialPingClient(t, ln.Addr().String(), Buffered, Binary)

	err = client.IsValid(context.Background())
	require.Error(t, err)

	var verr *lifecycle.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, PingMethod, verr.Probe)
	assert.True(t, client.HasBroken())
}

func TestFailoverSkipsDeadEndpoint(t *testing.T) {
	dead, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := dead.Addr().String()
	dead.Close()

	server := startPingServer(t, Framed, Compact)

	factory, err := network.NewAddressFailoverFactory([]string{deadAddr, server.Addr()},
		NewLayering(Framed, Compact, nil), NewPingClient,
		network.WithConnectTimeout(time.Second))
	require.NoError(t, err)

	client, err := factory.Create(context.Background())
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.IsValid(context.Background()))
}
