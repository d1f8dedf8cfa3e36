package pgwire

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/guileen/rpcpool/lifecycle"
)

// ErrBroken is returned by calls on a connection whose stream is unusable.
var ErrBroken = errors.New("pgwire connection is broken")

// ValidationProbe names the probe in validation errors.
const ValidationProbe = "empty_query"

// Client is a pooled PostgreSQL frontend connection. It is not safe for
// concurrent use; the pool hands it to one caller at a time.
type Client struct {
	in     Receiver
	out    Sender
	broken atomic.Bool
}

var _ lifecycle.Connection = (*Client)(nil)

// NewClient is a lifecycle.Builder for Client.
func NewClient(in Receiver, out Sender) *Client {
	return &Client{in: in, out: out}
}

// Exec runs a simple query and discards any rows. A server error leaves the
// connection usable; a stream error marks it broken.
func (c *Client) Exec(ctx context.Context, sql string) error {
	if c.broken.Load() {
		return ErrBroken
	}

	stop := context.AfterFunc(ctx, func() {
		c.broken.Store(true)
		c.in.Close()
	})
	err := c.roundTrip(sql)
	if !stop() && err != nil {
		err = errors.Join(ctx.Err(), err)
	}
	return err
}

func (c *Client) roundTrip(sql string) error {
	c.out.Send(&pgproto3.Query{String: sql})
	if err := c.out.Flush(); err != nil {
		c.broken.Store(true)
		return fmt.Errorf("send query: %w", err)
	}

	var serverErr error
	for {
		msg, err := c.in.Receive()
		if err != nil {
			c.broken.Store(true)
			return fmt.Errorf("receive: %w", err)
		}

		switch msg := msg.(type) {
		case *pgproto3.ReadyForQuery:
			return serverErr
		case *pgproto3.ErrorResponse:
			serverErr = serverError(msg)
		}
	}
}

// IsValid runs an empty statement round trip.
func (c *Client) IsValid(ctx context.Context) error {
	if err := c.Exec(ctx, ""); err != nil {
		return lifecycle.NewValidationError(ValidationProbe, err)
	}
	return nil
}

func (c *Client) HasBroken() bool {
	return c.broken.Load()
}

// Close sends Terminate and closes the socket.
func (c *Client) Close() error {
	if !c.broken.Swap(true) {
		c.out.Send(&pgproto3.Terminate{})
		c.out.Flush()
	}
	err := c.in.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
