// Package network builds pooled RPC connections over TCP with ordered address
// failover and pluggable transport/protocol layering.
package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/guileen/rpcpool/lifecycle"
	"github.com/guileen/rpcpool/logger"
)

// DefaultConnectTimeout bounds a single endpoint attempt when no timeout is configured.
const DefaultConnectTimeout = 30 * time.Second

// Dialer opens the raw byte stream to one endpoint.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Layering wraps an open socket in the configured framing and codec layers and
// returns the input/output codec pair. Wrap may perform a handshake; it must
// honor ctx and must not close conn itself.
type Layering[I, O any] interface {
	Wrap(ctx context.Context, conn net.Conn) (I, O, error)
}

// LayeringFunc adapts a plain function to Layering.
type LayeringFunc[I, O any] func(ctx context.Context, conn net.Conn) (I, O, error)

// Wrap calls f(ctx, conn).
func (f LayeringFunc[I, O]) Wrap(ctx context.Context, conn net.Conn) (I, O, error) {
	return f(ctx, conn)
}

// Option configures an AddressFailoverFactory.
type Option func(*factoryOptions)

type factoryOptions struct {
	connectTimeout time.Duration
	dialer         Dialer
	logger         *slog.Logger
}

// WithConnectTimeout sets the per-endpoint connect timeout, which also bounds
// the layering handshake.
func WithConnectTimeout(timeout time.Duration) Option {
	return func(o *factoryOptions) {
		o.connectTimeout = timeout
	}
}

// WithDialer replaces the default net.Dialer.
func WithDialer(d Dialer) Option {
	return func(o *factoryOptions) {
		o.dialer = d
	}
}

// WithLogger sets the logger used for attempt diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *factoryOptions) {
		o.logger = l
	}
}

// AddressFailoverFactory implements lifecycle.Factory over an ordered list of
// endpoints. All fields are read-only after construction, so one factory may
// serve any number of concurrent Create calls.
type AddressFailoverFactory[I, O any, C lifecycle.Connection] struct {
	endpoints []string
	layering  Layering[I, O]
	build     lifecycle.Builder[I, O, C]
	timeout   time.Duration
	dialer    Dialer
	log       *slog.Logger
}

var _ lifecycle.Factory[lifecycle.Connection] = (*AddressFailoverFactory[any, any, lifecycle.Connection])(nil)

// NewAddressFailoverFactory creates a factory that tries endpoints in order.
func NewAddressFailoverFactory[I, O any, C lifecycle.Connection](
	endpoints []string,
	layering Layering[I, O],
	build lifecycle.Builder[I, O, C],
	opts ...Option,
) (*AddressFailoverFactory[I, O, C], error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	if layering == nil || build == nil {
		return nil, errors.New("layering and builder are required")
	}
	for _, ep := range endpoints {
		if _, _, err := net.SplitHostPort(ep); err != nil {
			return nil, fmt.Errorf("invalid endpoint %q: %w", ep, err)
		}
	}

	o := factoryOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.connectTimeout <= 0 {
		o.connectTimeout = DefaultConnectTimeout
	}
	if o.dialer == nil {
		o.dialer = &net.Dialer{}
	}
	if o.logger == nil {
		o.logger = logger.Logger
	}

	eps := make([]string, len(endpoints))
	copy(eps, endpoints)

	return &AddressFailoverFactory[I, O, C]{
		endpoints: eps,
		layering:  layering,
		build:     build,
		timeout:   o.connectTimeout,
		dialer:    o.dialer,
		log:       o.logger.With(logger.Component("address_failover_factory")),
	}, nil
}

// Endpoints returns a copy of the configured endpoint list.
func (f *AddressFailoverFactory[I, O, C]) Endpoints() []string {
	eps := make([]string, len(f.endpoints))
	copy(eps, f.endpoints)
	return eps
}

// ConnectTimeout returns the per-endpoint connect timeout.
func (f *AddressFailoverFactory[I, O, C]) ConnectTimeout() time.Duration {
	return f.timeout
}

// Create returns a connection built against the first endpoint that accepts
// a connection and completes layering. Later endpoints are never tried once
// one succeeds. If every endpoint fails the error is an
// *AddressesExhaustedError holding one cause per endpoint, in order.
func (f *AddressFailoverFactory[I, O, C]) Create(ctx context.Context) (C, error) {
	var zero C
	attemptID := uuid.NewString()
	causes := make([]error, 0, len(f.endpoints))

	for _, endpoint := range f.endpoints {
		if err := ctx.Err(); err != nil {
			return zero, canceledError(err, causes, len(f.endpoints))
		}

		f.log.Log(ctx, logger.LevelTrace, "dialing endpoint",
			logger.String("attempt_id", attemptID),
			logger.Endpoint(endpoint))

		conn, err := f.connect(ctx, endpoint)
		if err != nil {
			f.log.Warn("endpoint attempt failed",
				logger.String("attempt_id", attemptID),
				logger.Endpoint(endpoint),
				logger.ErrorField(err))
			causes = append(causes, err)
			continue
		}

		f.log.Debug("connection established",
			logger.String("attempt_id", attemptID),
			logger.Endpoint(endpoint),
			logger.Int("failed_before", len(causes)))
		return conn, nil
	}

	if err := ctx.Err(); err != nil {
		return zero, canceledError(err, causes, len(f.endpoints))
	}
	return zero, &AddressesExhaustedError{Causes: causes}
}

// connect runs one attempt: open transport, wrap codecs, build client.
// Any socket opened by a failed attempt is closed before returning.
func (f *AddressFailoverFactory[I, O, C]) connect(ctx context.Context, endpoint string) (C, error) {
	var zero C

	attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	conn, err := f.dialer.DialContext(attemptCtx, "tcp", endpoint)
	if err != nil {
		return zero, &TransportError{Endpoint: endpoint, Err: err}
	}

	in, out, err := wrapWithContext(attemptCtx, conn, f.layering)
	if err != nil {
		conn.Close()
		if ctxErr := attemptCtx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return zero, &ProtocolError{Endpoint: endpoint, Err: err}
	}

	return f.build(in, out), nil
}

// aLongTimeAgo is a non-zero time far in the past, used to unblock pending I/O.
var aLongTimeAgo = time.Unix(1, 0)

// wrapWithContext runs the layering with the socket deadline tied to ctx so a
// blocked handshake returns promptly once ctx is done.
func wrapWithContext[I, O any](ctx context.Context, conn net.Conn, layering Layering[I, O]) (I, O, error) {
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(aLongTimeAgo)
	})

	in, out, err := layering.Wrap(ctx, conn)

	if !stop() {
		// ctx fired while wrapping; whatever the layering returned rides on a
		// socket with an expired deadline.
		var zi I
		var zo O
		if err == nil {
			err = ctx.Err()
		}
		return zi, zo, err
	}
	if err != nil {
		return in, out, err
	}
	conn.SetDeadline(time.Time{})
	return in, out, nil
}

func canceledError(ctxErr error, causes []error, total int) error {
	if len(causes) == 0 {
		return fmt.Errorf("connect canceled before any endpoint succeeded: %w", ctxErr)
	}
	return fmt.Errorf("connect canceled after %d of %d endpoints failed: %w",
		len(causes), total, errors.Join(append([]error{ctxErr}, causes...)...))
}
