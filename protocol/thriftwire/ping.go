package thriftwire

import (
	"context"

	"github.com/apache/thrift/lib/go/thrift"

	"github.com/guileen/rpcpool/lifecycle"
)

// PingMethod is the conventional health-check method: `void ping()`.
const PingMethod = "ping"

// Void is an empty Thrift struct, used as args and result of void methods
// that take no parameters.
type Void struct {
	Name string
}

func (v *Void) Write(ctx context.Context, p thrift.TProtocol) error {
	if err := p.WriteStructBegin(ctx, v.Name); err != nil {
		return err
	}
	if err := p.WriteFieldStop(ctx); err != nil {
		return err
	}
	return p.WriteStructEnd(ctx)
}

func (v *Void) Read(ctx context.Context, p thrift.TProtocol) error {
	if _, err := p.ReadStructBegin(ctx); err != nil {
		return err
	}
	for {
		_, typeID, _, err := p.ReadFieldBegin(ctx)
		if err != nil {
			return err
		}
		if typeID == thrift.STOP {
			break
		}
		if err := p.Skip(ctx, typeID); err != nil {
			return err
		}
		if err := p.ReadFieldEnd(ctx); err != nil {
			return err
		}
	}
	return p.ReadStructEnd(ctx)
}

// PingClient is a pooled client for any service exposing `void ping()`.
type PingClient struct {
	*Conn
}

var _ lifecycle.Connection = (*PingClient)(nil)

// NewPingClient is a lifecycle.Builder for PingClient.
func NewPingClient(in, out thrift.TProtocol) *PingClient {
	return &PingClient{Conn: NewConn(in, out)}
}

// Ping calls the remote ping method.
func (c *PingClient) Ping(ctx context.Context) error {
	_, err := c.Call(ctx, PingMethod, &Void{Name: "ping_args"}, &Void{Name: "ping_result"})
	return err
}

// IsValid probes the connection with a ping round trip.
func (c *PingClient) IsValid(ctx context.Context) error {
	if err := c.Ping(ctx); err != nil {
		return lifecycle.NewValidationError(PingMethod, err)
	}
	return nil
}
