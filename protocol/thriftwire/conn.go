package thriftwire

import (
	"context"
	"errors"
	"net"
	"sync/atomic"

	"github.com/apache/thrift/lib/go/thrift"
)

// Conn is an embeddable base for pooled Thrift clients. It implements
// thrift.TClient, so generated clients can be built on top of it:
//
//	func build(in, out thrift.TProtocol) *FooConn {
//		c := thriftwire.NewConn(in, out)
//		return &FooConn{Conn: c, FooClient: gen.NewFooClient(c)}
//	}
//
// Conn latches a broken flag when a call fails below the application layer,
// since the stream position is then unknown.
type Conn struct {
	client *thrift.TStandardClient
	in     thrift.TProtocol
	out    thrift.TProtocol
	broken atomic.Bool
}

var _ thrift.TClient = (*Conn)(nil)

// NewConn builds a Conn from a protocol pair. It performs no I/O.
func NewConn(in, out thrift.TProtocol) *Conn {
	return &Conn{
		client: thrift.NewTStandardClient(in, out),
		in:     in,
		out:    out,
	}
}

// Call implements thrift.TClient. If ctx is done before the call returns,
// the transport is closed to unblock it and the connection is marked broken.
func (c *Conn) Call(ctx context.Context, method string, args, result thrift.TStruct) (thrift.ResponseMeta, error) {
	if c.broken.Load() {
		return thrift.ResponseMeta{}, thrift.NewTTransportException(thrift.NOT_OPEN, "connection is broken")
	}

	stop := context.AfterFunc(ctx, func() {
		c.broken.Store(true)
		c.in.Transport().Close()
	})
	meta, err := c.client.Call(ctx, method, args, result)
	if !stop() && err != nil {
		err = errors.Join(ctx.Err(), err)
	}

	if err != nil && breaksStream(err) {
		c.broken.Store(true)
	}
	return meta, err
}

// HasBroken reports whether an earlier call left the stream unusable.
func (c *Conn) HasBroken() bool {
	return c.broken.Load()
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	c.broken.Store(true)
	err := c.in.Transport().Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// breaksStream reports whether err leaves the request/response stream out of
// sync. Exceptions sent by the server arrive on a well-formed reply and do not.
func breaksStream(err error) bool {
	var appErr thrift.TApplicationException
	if !errors.As(err, &appErr) {
		return true
	}
	switch appErr.TypeId() {
	case thrift.WRONG_METHOD_NAME, thrift.BAD_SEQUENCE_ID, thrift.INVALID_MESSAGE_TYPE_EXCEPTION:
		return true
	}
	return false
}
