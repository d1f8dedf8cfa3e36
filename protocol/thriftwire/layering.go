// Package thriftwire layers Apache Thrift transports and protocols over a
// dialed socket so generated Thrift clients can be pooled.
package thriftwire

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/apache/thrift/lib/go/thrift"

	"github.com/guileen/rpcpool/network"
)

// TransportKind selects the framing applied on top of the socket.
type TransportKind int

const (
	Buffered TransportKind = iota
	Framed
)

func (k TransportKind) String() string {
	switch k {
	case Buffered:
		return "buffered"
	case Framed:
		return "framed"
	}
	return fmt.Sprintf("TransportKind(%d)", int(k))
}

// ParseTransportKind parses "buffered" or "framed".
func ParseTransportKind(s string) (TransportKind, error) {
	switch strings.ToLower(s) {
	case "buffered":
		return Buffered, nil
	case "framed":
		return Framed, nil
	}
	return 0, fmt.Errorf("unknown thrift transport %q", s)
}

// ProtocolKind selects the Thrift serialization format.
type ProtocolKind int

const (
	Binary ProtocolKind = iota
	Compact
)

func (k ProtocolKind) String() string {
	switch k {
	case Binary:
		return "binary"
	case Compact:
		return "compact"
	}
	return fmt.Sprintf("ProtocolKind(%d)", int(k))
}

// ParseProtocolKind parses "binary" or "compact".
func ParseProtocolKind(s string) (ProtocolKind, error) {
	switch strings.ToLower(s) {
	case "binary":
		return Binary, nil
	case "compact":
		return Compact, nil
	}
	return 0, fmt.Errorf("unknown thrift protocol %q", s)
}

// DefaultBufferSize is the buffered transport's buffer size.
const DefaultBufferSize = 8192

// Layering wraps a socket as thrift.TSocket, then builds the input and
// output sides independently: one transport and one protocol per direction.
type Layering struct {
	conf              *thrift.TConfiguration
	inTrans, outTrans thrift.TTransportFactory
	inProto, outProto thrift.TProtocolFactory
}

var _ network.Layering[thrift.TProtocol, thrift.TProtocol] = (*Layering)(nil)

// NewLayering returns the layering for the given transport and protocol.
// conf may be nil; its SocketTimeout bounds every read and write.
func NewLayering(transport TransportKind, protocol ProtocolKind, conf *thrift.TConfiguration) *Layering {
	if conf == nil {
		conf = &thrift.TConfiguration{}
	}
	l := &Layering{conf: conf}

	switch transport {
	case Framed:
		l.inTrans = thrift.NewTFramedTransportFactoryConf(thrift.NewTTransportFactory(), conf)
		l.outTrans = thrift.NewTFramedTransportFactoryConf(thrift.NewTTransportFactory(), conf)
	default:
		l.inTrans = thrift.NewTBufferedTransportFactory(DefaultBufferSize)
		l.outTrans = thrift.NewTBufferedTransportFactory(DefaultBufferSize)
	}

	switch protocol {
	case Compact:
		l.inProto = thrift.NewTCompactProtocolFactoryConf(conf)
		l.outProto = thrift.NewTCompactProtocolFactoryConf(conf)
	default:
		l.inProto = thrift.NewTBinaryProtocolFactoryConf(conf)
		l.outProto = thrift.NewTBinaryProtocolFactoryConf(conf)
	}
	return l
}

// Wrap builds the input/output protocol pair over conn. It performs no I/O.
func (l *Layering) Wrap(ctx context.Context, conn net.Conn) (thrift.TProtocol, thrift.TProtocol, error) {
	socket := thrift.NewTSocketFromConnConf(conn, l.conf)

	inTrans, err := l.inTrans.GetTransport(socket)
	if err != nil {
		return nil, nil, fmt.Errorf("input transport: %w", err)
	}
	outTrans, err := l.outTrans.GetTransport(socket)
	if err != nil {
		return nil, nil, fmt.Errorf("output transport: %w", err)
	}

	return l.inProto.GetProtocol(inTrans), l.outProto.GetProtocol(outTrans), nil
}
