// Package online runs one request/response exchange with an acquirer
// host over a transport.Client: wait for the link, send the request
// behind its TPDU, receive, strip the TPDU and hand the parsed response
// to a validator.
package online

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"go-pos-hostswitch/internal/iso8583"
	"go-pos-hostswitch/internal/transport"
)

const (
	// DefaultTimeout bounds the wait for the link before a request is sent.
	DefaultTimeout = 30 * time.Second
	// TPDULength is the size of the transport header in front of every message.
	TPDULength = 5
	// MaxResponse is the largest response accepted from a host.
	MaxResponse = 99999
)

// Result is the outcome of one exchange.
type Result int

const (
	Completed Result = iota
	TransientFailure
	PermFailure
)

func (r Result) String() string {
	switch r {
	case Completed:
		return "COMPLETED"
	case TransientFailure:
		return "TRANSIENT_FAILURE"
	case PermFailure:
		return "PERM_FAILURE"
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

// Reader validates a parsed response and copies its data onto the
// caller's record. A non-nil error rejects the response.
type Reader func(resp *iso8583.Apdu) error

// Session owns the transport client of one acquirer host.
type Session struct {
	factory transport.Factory
	client  transport.Client
	timeout time.Duration
	log     zerolog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewSession(factory transport.Factory, log zerolog.Logger, opts ...Option) *Session {
	s := &Session{factory: factory, timeout: DefaultTimeout, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PreConnect binds the session to the named host and starts the link.
func (s *Session) PreConnect(hostName string) bool {
	if s.client != nil {
		s.client.Disconnect()
	}
	s.client = s.factory(hostName)
	if s.client == nil {
		s.log.Error().Str("host", hostName).Msg("no transport for host")
		return false
	}
	if st := s.client.PreConnect(); st != transport.StatusOK {
		s.log.Error().Str("host", hostName).Stringer("status", st).Msg("pre-connect failed")
		return false
	}
	return true
}

// WaitForConnection blocks until the link is up or timeout elapses.
func (s *Session) WaitForConnection(timeout time.Duration) bool {
	if s.client == nil {
		return false
	}
	if st := s.client.WaitConnected(timeout); st != transport.StatusConnected {
		s.log.Warn().Stringer("status", st).Dur("timeout", timeout).Msg("link not up")
		s.client.Disconnect()
		return false
	}
	return true
}

// Disconnect tears the link down. Calling it twice is harmless.
func (s *Session) Disconnect() bool {
	if s.client == nil {
		return true
	}
	return s.client.Disconnect() == transport.StatusOK
}

// Exchange sends req behind tpdu (10 hex digits) and passes the response
// to read. Transport problems are TransientFailure and leave the link
// disconnected; an unencodable request, an unparseable response or one
// rejected by read is PermFailure.
func (s *Session) Exchange(req *iso8583.Apdu, tpdu string, read Reader) Result {
	log := s.log.With().Str("exchange_id", uuid.NewString()).Logger()

	body, err := req.Pack()
	if err != nil {
		log.Error().Err(err).Msg("encode request")
		return PermFailure
	}
	header, err := hex.DecodeString(tpdu)
	if err != nil || len(header) != TPDULength {
		log.Error().Str("tpdu", tpdu).Msg("invalid TPDU")
		return PermFailure
	}
	if s.client == nil {
		log.Error().Msg("exchange without pre-connect")
		return TransientFailure
	}
	if e := log.Debug(); e.Enabled() {
		e.Msg(iso8583.Describe(req))
	}

	if st := s.client.WaitConnected(s.timeout); st != transport.StatusConnected {
		log.Error().Stringer("status", st).Msg("link not up")
		s.client.Disconnect()
		return TransientFailure
	}

	msg := append(header, body...)
	sent, st := s.client.Send(msg)
	if st != transport.StatusOK {
		log.Error().Stringer("status", st).Msg("send failed")
		s.client.Disconnect()
		return TransientFailure
	}
	if sent != len(msg) {
		log.Error().Int("sent", sent).Int("len", len(msg)).Msg("message not fully sent")
		s.client.Disconnect()
		return TransientFailure
	}

	data, st := s.client.Receive(MaxResponse)
	if st != transport.StatusOK {
		log.Error().Stringer("status", st).Msg("receive failed")
		s.client.Disconnect()
		return TransientFailure
	}
	if len(data) < TPDULength {
		log.Error().Int("len", len(data)).Msg("response shorter than TPDU")
		s.client.Disconnect()
		return TransientFailure
	}

	resp, err := iso8583.Parse(req.Spec(), data[TPDULength:])
	if err != nil {
		log.Warn().Err(err).Msg("unparseable response")
		return PermFailure
	}
	if e := log.Debug(); e.Enabled() {
		e.Msg(iso8583.Describe(resp))
	}
	if err := read(resp); err != nil {
		log.Warn().Err(err).Msg("response rejected")
		return PermFailure
	}
	return Completed
}
