package replication

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/raniellyferreira/redis-replicator/protocol"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultReadTimeout    = 30 * time.Second
	defaultWriteTimeout   = 10 * time.Second
)

// Dialer connects to a Redis master and performs the replica handshake up
// to the start of the full resynchronization payload.
type Dialer struct {
	addr          string
	username      string
	password      string
	tlsConfig     *tls.Config
	listeningPort int

	connectTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration

	logger  Logger
	metrics MetricsCollector
}

// NewDialer creates a dialer for the master at addr
func NewDialer(addr string) *Dialer {
	return &Dialer{
		addr:           addr,
		connectTimeout: defaultConnectTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		logger:         &nopLogger{},
		metrics:        &nopMetrics{},
	}
}

// SetAuth sets the credentials sent with AUTH. An empty username uses the
// legacy single-password form.
func (d *Dialer) SetAuth(username, password string) {
	d.username = username
	d.password = password
}

// SetTLS enables TLS with the given configuration
func (d *Dialer) SetTLS(config *tls.Config) {
	d.tlsConfig = config
}

// SetListeningPort sets the port announced with REPLCONF listening-port
func (d *Dialer) SetListeningPort(port int) {
	d.listeningPort = port
}

// SetLogger sets the logger
func (d *Dialer) SetLogger(logger Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// SetMetrics sets the metrics collector
func (d *Dialer) SetMetrics(metrics MetricsCollector) {
	if metrics != nil {
		d.metrics = metrics
	}
}

// SetConnectTimeout sets the dial timeout
func (d *Dialer) SetConnectTimeout(timeout time.Duration) {
	d.connectTimeout = timeout
}

// SetReadTimeout sets the idle read timeout. A live master sends a PING
// every few seconds, so the timeout is reset by every read.
func (d *Dialer) SetReadTimeout(timeout time.Duration) {
	d.readTimeout = timeout
}

// SetWriteTimeout sets the timeout of handshake commands and ACKs
func (d *Dialer) SetWriteTimeout(timeout time.Duration) {
	d.writeTimeout = timeout
}

// Open dials the master. It is an Opener.
func (d *Dialer) Open(ctx context.Context) (Source, error) {
	return d.Dial(ctx)
}

// Dial connects, authenticates and requests a full resynchronization. The
// returned source is positioned at the first byte of the snapshot.
func (d *Dialer) Dial(ctx context.Context) (*MasterSource, error) {
	d.logger.Debug("Connecting to master", "addr", d.addr)

	netDialer := &net.Dialer{Timeout: d.connectTimeout}
	var (
		conn net.Conn
		err  error
	)
	if d.tlsConfig != nil {
		td := &tls.Dialer{NetDialer: netDialer, Config: d.tlsConfig}
		conn, err = td.DialContext(ctx, "tcp", d.addr)
	} else {
		conn, err = netDialer.DialContext(ctx, "tcp", d.addr)
	}
	if err != nil {
		return nil, errors.Wrap(err, "dial failed")
	}

	dc := &deadlineConn{Conn: conn, timeout: d.readTimeout}
	src := &MasterSource{
		conn:         conn,
		reader:       protocol.NewReader(dc),
		writer:       protocol.NewWriter(conn),
		writeTimeout: d.writeTimeout,
	}

	// Unblock the handshake when ctx ends
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	err = d.handshake(src)
	if !stop() {
		_ = src.Close()
		return nil, ctx.Err()
	}
	if err != nil {
		_ = src.Close()
		return nil, err
	}

	d.metrics.RecordReconnection()
	d.logger.Info("Full resynchronization started",
		"master", d.addr,
		"replid", src.replID,
		"offset", src.info.BaseOffset,
		"diskless", len(src.info.EOFMark) > 0)
	return src, nil
}

func (d *Dialer) handshake(src *MasterSource) error {
	if d.password != "" {
		args := []string{d.password}
		if d.username != "" {
			args = []string{d.username, d.password}
		}
		if _, err := src.call("AUTH", args...); err != nil {
			return errors.Wrap(err, "authentication failed")
		}
	}

	if _, err := src.call("PING"); err != nil {
		return errors.Wrap(err, "PING failed")
	}

	if d.listeningPort > 0 {
		if _, err := src.call("REPLCONF", "listening-port", strconv.Itoa(d.listeningPort)); err != nil {
			d.logger.Debug("Master rejected listening-port", "error", err)
		}
	}

	// Older masters reject capabilities, then fall back to a sized payload
	if _, err := src.call("REPLCONF", "capa", "eof", "capa", "psync2"); err != nil {
		d.logger.Debug("Master rejected capabilities", "error", err)
	}

	reply, err := src.call("PSYNC", "?", "-1")
	if err != nil {
		return errors.Wrap(err, "PSYNC failed")
	}
	parts := strings.Fields(reply.String())
	if len(parts) < 3 || parts[0] != "FULLRESYNC" {
		return errors.Errorf("unsupported PSYNC response: %s", reply.String())
	}
	offset, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return errors.Errorf("invalid PSYNC offset: %s", parts[2])
	}

	header, err := src.reader.ReadPayloadHeader()
	if err != nil {
		return errors.Wrap(err, "read snapshot header")
	}

	src.replID = parts[1]
	src.info = SourceInfo{
		Name:          d.addr,
		Live:          true,
		BaseOffset:    offset,
		PayloadLength: header.Length,
		EOFMark:       header.EOFMark,
	}
	return nil
}

// MasterSource is a live master connection after a successful handshake
type MasterSource struct {
	conn   net.Conn
	reader *protocol.Reader
	info   SourceInfo
	replID string

	wmu          sync.Mutex
	writer       *protocol.Writer
	writeTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// Read reads the snapshot and the operation stream
func (m *MasterSource) Read(p []byte) (int, error) {
	return m.reader.Read(p)
}

// Info describes the payload announced by the master
func (m *MasterSource) Info() SourceInfo {
	return m.info
}

// ReplID returns the replication ID announced with FULLRESYNC
func (m *MasterSource) ReplID() string {
	return m.replID
}

// Ack sends REPLCONF ACK with the processed offset
func (m *MasterSource) Ack(offset int64) error {
	m.wmu.Lock()
	defer m.wmu.Unlock()
	if err := m.setWriteDeadline(); err != nil {
		return err
	}
	if err := m.writer.WriteCommand("REPLCONF", "ACK", strconv.FormatInt(offset, 10)); err != nil {
		return err
	}
	return m.writer.Flush()
}

// Close closes the connection. It is safe to call more than once.
func (m *MasterSource) Close() error {
	m.closeOnce.Do(func() {
		m.closeErr = m.conn.Close()
	})
	return m.closeErr
}

// call sends a command and reads its reply
func (m *MasterSource) call(cmd string, args ...string) (protocol.Value, error) {
	m.wmu.Lock()
	err := m.setWriteDeadline()
	if err == nil {
		err = m.writer.WriteCommand(cmd, args...)
	}
	if err == nil {
		err = m.writer.Flush()
	}
	m.wmu.Unlock()
	if err != nil {
		return protocol.Value{}, err
	}

	reply, err := m.reader.ReadNext()
	if err != nil {
		return protocol.Value{}, err
	}
	if reply.IsError() {
		return reply, errors.Errorf("master replied: %s", reply.Error())
	}
	return reply, nil
}

func (m *MasterSource) setWriteDeadline() error {
	if m.writeTimeout <= 0 {
		return nil
	}
	return m.conn.SetWriteDeadline(time.Now().Add(m.writeTimeout))
}

// deadlineConn moves the read deadline forward before every read
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(p)
}
