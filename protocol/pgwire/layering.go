// Package pgwire layers the PostgreSQL frontend protocol over a dialed socket.
// The startup handshake runs during layering, so a connection handed to the
// pool is already past ReadyForQuery.
package pgwire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/guileen/rpcpool/network"
)

// Receiver is the input half of a frontend connection.
type Receiver interface {
	Receive() (pgproto3.BackendMessage, error)
	io.Closer
}

// Sender is the output half of a frontend connection.
type Sender interface {
	Send(msg pgproto3.FrontendMessage)
	Flush() error
}

// Params are the startup parameters sent to the server.
type Params struct {
	User     string
	Database string
	// Extra holds additional runtime parameters such as application_name.
	Extra map[string]string
}

func (p Params) startup() *pgproto3.StartupMessage {
	parameters := make(map[string]string, len(p.Extra)+2)
	for k, v := range p.Extra {
		parameters[k] = v
	}
	if p.User != "" {
		parameters["user"] = p.User
	}
	if p.Database != "" {
		parameters["database"] = p.Database
	}
	return &pgproto3.StartupMessage{
		ProtocolVersion: pgproto3.ProtocolVersionNumber,
		Parameters:      parameters,
	}
}

// ErrUnsupportedAuth is returned when the server asks for any
// authentication other than trust.
var ErrUnsupportedAuth = errors.New("unsupported authentication method")

// ServerError is an ErrorResponse received from the server.
type ServerError struct {
	Severity string
	Code     string
	Message  string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s (SQLSTATE %s)", e.Severity, e.Message, e.Code)
}

func serverError(msg *pgproto3.ErrorResponse) *ServerError {
	return &ServerError{Severity: msg.Severity, Code: msg.Code, Message: msg.Message}
}

// Layering performs the startup handshake and exposes the frontend as a
// Receiver/Sender pair.
type Layering struct {
	params Params
}

var _ network.Layering[Receiver, Sender] = (*Layering)(nil)

func NewLayering(params Params) *Layering {
	return &Layering{params: params}
}

// frontend binds a pgproto3.Frontend to the socket it reads from so the
// input half can release it.
type frontend struct {
	*pgproto3.Frontend
	conn net.Conn
}

func (f *frontend) Close() error {
	return f.conn.Close()
}

// Wrap sends the StartupMessage and reads until ReadyForQuery. The socket
// deadline is managed by the caller.
func (l *Layering) Wrap(ctx context.Context, conn net.Conn) (Receiver, Sender, error) {
	fe := &frontend{Frontend: pgproto3.NewFrontend(conn, conn), conn: conn}

	fe.Send(l.params.startup())
	if err := fe.Flush(); err != nil {
		return nil, nil, fmt.Errorf("send startup: %w", err)
	}

	for {
		msg, err := fe.Receive()
		if err != nil {
			return nil, nil, fmt.Errorf("startup: %w", err)
		}

		switch msg := msg.(type) {
		case *pgproto3.AuthenticationOk, *pgproto3.ParameterStatus, *pgproto3.BackendKeyData, *pgproto3.NoticeResponse:
		case *pgproto3.ReadyForQuery:
			return fe, fe, nil
		case *pgproto3.ErrorResponse:
			return nil, nil, fmt.Errorf("startup rejected: %w", serverError(msg))
		default:
			return nil, nil, fmt.Errorf("%w: %T", ErrUnsupportedAuth, msg)
		}
	}
}
