package transport

import (
	"bufio"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	mliSize    = 2
	maxFrame   = 0xFFFF
	maxBackoff = 30 * time.Second
)

var errNotConnected = errors.New("not connected")

// DialConfig holds connection options.
type DialConfig struct {
	Endpoint     string        // host:port
	TLS          bool          // enable TLS
	Timeout      time.Duration // dial timeout
	KeepAlive    time.Duration // TCP keepalive
	ReadTimeout  time.Duration // deadline for one Receive
	WriteTimeout time.Duration // deadline for one Send
	RetryBackoff time.Duration // base backoff between dial attempts
}

// TCPClient is a Client over one TCP (optionally TLS) connection. Messages
// are framed with a 2-byte big-endian length (MLI). PreConnect dials in
// the background, retrying with exponential backoff until the link is up
// or Disconnect is called.
type TCPClient struct {
	cfg DialConfig
	log zerolog.Logger

	mu      sync.Mutex
	conn    net.Conn
	reader  *bufio.Reader
	up      chan struct{}
	stop    chan struct{}
	running bool

	onUp   func()
	onDown func(error)
}

func NewTCPClient(cfg DialConfig, log zerolog.Logger) *TCPClient {
	return &TCPClient{
		cfg: cfg,
		log: log.With().Str("component", "transport").Str("endpoint", cfg.Endpoint).Logger(),
	}
}

// SetCallbacks registers link state hooks. Call before PreConnect.
func (c *TCPClient) SetCallbacks(onUp func(), onDown func(error)) {
	c.onUp, c.onDown = onUp, onDown
}

func (c *TCPClient) PreConnect() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.Endpoint == "" {
		return StatusError
	}
	if c.running {
		return StatusOK
	}
	c.running = true
	c.up = make(chan struct{})
	c.stop = make(chan struct{})
	go c.loop(c.up, c.stop)
	return StatusOK
}

func (c *TCPClient) baseBackoff() time.Duration {
	if c.cfg.RetryBackoff <= 0 {
		return 2 * time.Second
	}
	return c.cfg.RetryBackoff
}

func (c *TCPClient) loop(up, stop chan struct{}) {
	backoff := c.baseBackoff()
	for {
		conn, err := c.dial()
		if err == nil {
			c.mu.Lock()
			select {
			case <-stop:
				c.mu.Unlock()
				_ = conn.Close()
				return
			default:
			}
			c.conn = conn
			c.reader = bufio.NewReader(conn)
			c.mu.Unlock()

			close(up)
			c.log.Info().Msg("link up")
			if c.onUp != nil {
				c.onUp()
			}
			return
		}

		c.log.Warn().Err(err).Dur("retry_in", backoff).Msg("dial failed")
		if c.onDown != nil {
			c.onDown(err)
		}
		select {
		case <-stop:
			return
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

func (c *TCPClient) dial() (net.Conn, error) {
	d := &net.Dialer{Timeout: c.cfg.Timeout, KeepAlive: c.cfg.KeepAlive}
	if c.cfg.TLS {
		return tls.DialWithDialer(d, "tcp", c.cfg.Endpoint, &tls.Config{InsecureSkipVerify: true})
	}
	return d.Dial("tcp", c.cfg.Endpoint)
}

func (c *TCPClient) WaitConnected(timeout time.Duration) Status {
	c.mu.Lock()
	up, running := c.up, c.running
	c.mu.Unlock()
	if !running {
		return StatusNotConnected
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-up:
		return StatusConnected
	case <-timer.C:
		return StatusTimeout
	}
}

func (c *TCPClient) current() (net.Conn, *bufio.Reader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn, c.reader
}

func (c *TCPClient) Send(msg []byte) (int, Status) {
	conn, _ := c.current()
	if conn == nil {
		c.log.Error().Err(errNotConnected).Msg("send")
		return 0, StatusNotConnected
	}
	if len(msg) == 0 || len(msg) > maxFrame {
		c.log.Error().Int("len", len(msg)).Msg("message does not fit an MLI frame")
		return 0, StatusError
	}
	frame := make([]byte, mliSize+len(msg))
	binary.BigEndian.PutUint16(frame, uint16(len(msg)))
	copy(frame[mliSize:], msg)

	_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout()))
	n, err := conn.Write(frame)
	sent := n - mliSize
	if sent < 0 {
		sent = 0
	}
	if err != nil {
		c.log.Error().Err(err).Int("sent", sent).Msg("send")
		return sent, StatusError
	}
	return sent, StatusOK
}

func (c *TCPClient) Receive(max int) ([]byte, Status) {
	conn, reader := c.current()
	if conn == nil {
		return nil, StatusNotConnected
	}
	_ = conn.SetReadDeadline(time.Now().Add(c.readTimeout()))

	var mli [mliSize]byte
	if _, err := io.ReadFull(reader, mli[:]); err != nil {
		return nil, c.readFailure(err)
	}
	n := int(binary.BigEndian.Uint16(mli[:]))
	if n == 0 || n > max {
		c.log.Error().Int("mli", n).Int("max", max).Msg("invalid MLI")
		return nil, StatusError
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(reader, payload); err != nil {
		return nil, c.readFailure(err)
	}
	return payload, StatusOK
}

func (c *TCPClient) readFailure(err error) Status {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		c.log.Error().Err(err).Msg("receive timed out")
		return StatusTimeout
	}
	c.log.Error().Err(err).Msg("receive")
	return StatusError
}

func (c *TCPClient) readTimeout() time.Duration {
	if c.cfg.ReadTimeout <= 0 {
		return 30 * time.Second
	}
	return c.cfg.ReadTimeout
}

func (c *TCPClient) writeTimeout() time.Duration {
	if c.cfg.WriteTimeout <= 0 {
		return 5 * time.Second
	}
	return c.cfg.WriteTimeout
}

func (c *TCPClient) Disconnect() Status {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return StatusOK
	}
	close(c.stop)
	c.running = false
	conn := c.conn
	c.conn, c.reader = nil, nil
	c.mu.Unlock()

	if conn == nil {
		return StatusOK
	}
	if err := conn.Close(); err != nil {
		c.log.Warn().Err(err).Msg("close")
	}
	c.log.Info().Msg("link down")
	if c.onDown != nil {
		c.onDown(nil)
	}
	return StatusOK
}

// String identifies the client in logs.
func (c *TCPClient) String() string { return fmt.Sprintf("tcp(%s)", c.cfg.Endpoint) }
