package pgconn

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/flowpg/flowpg/pgproto"
	"github.com/flowpg/flowpg/pgtype"
)

// TxStatus mirrors pgproto.TransactionStatus for callers that don't want
// to import the wire-protocol package directly.
type TxStatus = pgproto.TransactionStatus

// zeroTime clears a previously set read deadline.
var zeroTime time.Time

// NoticeHandler receives asynchronous NOTICE/WARNING output.
type NoticeHandler func(severity, message string)

// NotificationHandler receives LISTEN/NOTIFY payloads.
type NotificationHandler func(channel, payload string, pid uint32)

// Conn owns one socket, one protocol engine, its prepared-statement cache,
// and the server's current parameter/transaction state. It is not safe for
// concurrent use by multiple goroutines; callers serialize access via mu,
// matching §5's "at most one in-flight operation against the backend."
type Conn struct {
	netConn net.Conn
	fe      *pgproto.Frontend
	cfg     *Config

	mu     sync.Mutex
	closed bool

	pid, secretKey uint32
	params         map[string]string
	txStatus       TxStatus

	registry  *pgtype.Registry
	stmtCache *statementCache

	onNotice       NoticeHandler
	onNotification NotificationHandler
	listeners      *listenerRegistry
}

// Connect establishes a new connection, performing TCP/Unix dial, optional
// TLS negotiation, the startup handshake, and authentication. dsn may be a
// URI, a key=value string, or empty (meaning "use environment variables
// only").
func Connect(ctx context.Context, dsn string) (*Conn, error) {
	cfg, err := ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	return ConnectConfig(ctx, cfg)
}

// ConnectConfig is Connect for callers that already built a Config.
func ConnectConfig(ctx context.Context, cfg *Config) (*Conn, error) {
	nc, err := dial(ctx, cfg)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Err: err}
	}

	c := &Conn{
		netConn:  nc,
		cfg:      cfg,
		params:   make(map[string]string),
		registry: pgtype.Global.LayerOver(),
	}
	c.stmtCache = newStatementCache(cfg.StatementCacheSize, cfg.MaxCachedStatementLifetime)
	c.fe = pgproto.NewFrontend(nc, 16*1024)

	if cfg.SSLMode != SSLDisable {
		if err := c.negotiateTLS(cfg); err != nil {
			nc.Close()
			return nil, err
		}
	}

	if err := c.startup(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

// ConnectRaw wraps an already-connected, already-authenticated transport as
// a Conn, skipping dial, TLS negotiation, and the startup handshake. It
// exists for callers that manage the transport and authentication
// themselves, such as driving a fake backend in tests.
func ConnectRaw(nc net.Conn, cfg *Config, pid, secretKey uint32) *Conn {
	if cfg == nil {
		cfg = defaultConfig()
	}
	c := &Conn{
		netConn:   nc,
		cfg:       cfg,
		params:    make(map[string]string),
		registry:  pgtype.Global.LayerOver(),
		pid:       pid,
		secretKey: secretKey,
		txStatus:  pgproto.TxIdle,
	}
	c.stmtCache = newStatementCache(cfg.StatementCacheSize, cfg.MaxCachedStatementLifetime)
	c.fe = pgproto.NewFrontend(nc, 16*1024)
	return c
}

func dial(ctx context.Context, cfg *Config) (net.Conn, error) {
	d := net.Dialer{Timeout: cfg.ConnectTimeout}
	if cfg.IsUnixSocket() {
		sockPath := cfg.Host
		if !hasSuffixSock(sockPath) {
			sockPath = sockPath + fmt.Sprintf("/.s.PGSQL.%d", cfg.Port)
		}
		return d.DialContext(ctx, "unix", sockPath)
	}
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	return d.DialContext(ctx, "tcp", addr)
}

func hasSuffixSock(p string) bool {
	const suffix = ".s.PGSQL."
	if len(p) < len(suffix) {
		return false
	}
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return len(p)-i-1 >= len(suffix) && p[i+1:i+1+len(suffix)] == suffix
		}
	}
	return false
}

// negotiateTLS drives the SSLRequest/response exchange and, on a positive
// reply, upgrades the connection to TLS. sslmode policy: disable never
// gets here; allow/prefer fall back to cleartext on a negative reply;
// require/verify-ca/verify-full fail the connection outright.
func (c *Conn) negotiateTLS(cfg *Config) error {
	if err := c.fe.SendNow(&pgproto.SSLRequest{}); err != nil {
		return &ConnectionError{Op: "sending SSLRequest", Err: err}
	}
	reply, err := c.fe.ReceiveSSLResponse()
	if err != nil {
		return &ConnectionError{Op: "reading SSL negotiation reply", Err: err}
	}
	switch reply {
	case 'N':
		if cfg.SSLMode == SSLRequire || cfg.SSLMode == SSLVerifyCA || cfg.SSLMode == SSLVerifyFull {
			return &ConnectionError{Op: "TLS", Err: fmt.Errorf("server rejected SSLRequest but sslmode=%s requires TLS", cfg.SSLMode)}
		}
		return nil
	case 'S':
		tlsConfig, err := buildTLSConfig(cfg)
		if err != nil {
			return err
		}
		tlsConn := tls.Client(c.netConn, tlsConfig)
		if err := tlsConn.Handshake(); err != nil {
			return &ConnectionError{Op: "TLS handshake", Err: err}
		}
		c.netConn = tlsConn
		c.fe.SetReadWriter(tlsConn)
		return nil
	default:
		return &ProtocolError{Detail: fmt.Sprintf("unexpected SSL negotiation reply %q", reply)}
	}
}

func buildTLSConfig(cfg *Config) (*tls.Config, error) {
	tc := &tls.Config{ServerName: cfg.Host}
	if cfg.SSLMode == SSLRequire {
		tc.InsecureSkipVerify = true
	}
	if cfg.SSLCert != "" && cfg.SSLKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.SSLCert, cfg.SSLKey)
		if err != nil {
			return nil, &ConnectionError{Op: "loading client certificate", Err: err}
		}
		tc.Certificates = []tls.Certificate{cert}
	}
	return tc, nil
}

func (c *Conn) startup(ctx context.Context) error {
	params := map[string]string{
		"user":     c.cfg.User,
		"database": c.cfg.Database,
	}
	if c.cfg.ApplicationName != "" {
		params["application_name"] = c.cfg.ApplicationName
	}
	for k, v := range c.cfg.ServerSettings {
		params[k] = v
	}
	if err := c.fe.SendNow(&pgproto.StartupMessage{
		ProtocolVersion: pgproto.ProtocolVersion30,
		Parameters:      params,
	}); err != nil {
		return &ConnectionError{Op: "sending StartupMessage", Err: err}
	}

	for {
		if deadline, ok := ctx.Deadline(); ok {
			c.netConn.SetReadDeadline(deadline)
		}
		msg, err := c.fe.Receive()
		if err != nil {
			return &ConnectionError{Op: "reading startup response", Err: err}
		}
		switch m := msg.(type) {
		case *pgproto.Authentication:
			if err := c.handleAuth(m); err != nil {
				return err
			}
		case *pgproto.ParameterStatus:
			c.params[m.Name] = m.Value
		case *pgproto.BackendKeyData:
			c.pid, c.secretKey = m.ProcessID, m.SecretKey
		case *pgproto.ReadyForQuery:
			c.txStatus = m.TxStatus
			c.netConn.SetReadDeadline(time.Time{})
			return nil
		case *pgproto.ErrorResponse:
			return newPostgresError(m)
		case *pgproto.NoticeResponse:
			c.deliverNotice(m)
		default:
			return &ProtocolError{Detail: fmt.Sprintf("unexpected message during startup: %T", msg)}
		}
	}
}

func (c *Conn) handleAuth(m *pgproto.Authentication) error {
	switch {
	case m.Ok != nil:
		return nil
	case m.CleartextPassword != nil:
		return c.fe.SendNow(&pgproto.PasswordMessage{Password: c.cfg.Password})
	case m.MD5Password != nil:
		hashed := computeMD5Password(c.cfg.User, c.cfg.Password, m.MD5Password.Salt)
		return c.fe.SendNow(&pgproto.PasswordMessage{Password: hashed})
	case m.SASL != nil:
		return scramSHA256(c.fe, c.cfg.User, c.cfg.Password, m.SASL.Mechanisms)
	default:
		return &AuthenticationError{Detail: fmt.Sprintf("unsupported authentication type %d", m.Type)}
	}
}

func (c *Conn) deliverNotice(m *pgproto.NoticeResponse) {
	if c.onNotice != nil {
		c.onNotice(m.Severity(), m.Message())
	}
}

func (c *Conn) deliverNotification(m *pgproto.NotificationResponse) {
	if c.onNotification != nil {
		c.onNotification(m.Channel, m.Payload, m.ProcessID)
	}
}

// OnNotice registers a handler for asynchronous NOTICE/WARNING messages.
func (c *Conn) OnNotice(h NoticeHandler) { c.onNotice = h }

// OnNotification registers a handler for LISTEN/NOTIFY payloads. See
// Listen for subscribing to a channel.
func (c *Conn) OnNotification(h NotificationHandler) { c.onNotification = h }

// BackendPID returns the server process ID, used to build a CancelRequest.
func (c *Conn) BackendPID() uint32 { return c.pid }

// Parameter returns a server runtime parameter's last known value
// (server_version, TimeZone, client_encoding, ...).
func (c *Conn) Parameter(name string) (string, bool) {
	v, ok := c.params[name]
	return v, ok
}

// TxStatus returns the transaction status last reported by ReadyForQuery.
func (c *Conn) TxStatus() TxStatus { return c.txStatus }

// Registry returns this connection's type codec registry, layered over
// pgtype.Global. Register custom or introspected codecs on it directly.
func (c *Conn) Registry() *pgtype.Registry { return c.registry }

// IsClosed reports whether Close/Terminate has been called.
func (c *Conn) IsClosed() bool { return c.closed }

// Close sends Terminate and closes the socket. It does not wait for any
// in-flight operation; callers needing a graceful drain should let
// outstanding operations finish first (the pool does this via Release).
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.fe.SendNow(&pgproto.Terminate{})
	return c.netConn.Close()
}

// lock/unlock serialize calls against this connection; they are the
// Go-idiomatic stand-in for §5's "connection-mutex acquisition" suspension
// point.
func (c *Conn) lock() { c.mu.Lock() }
func (c *Conn) unlock() { c.mu.Unlock() }

// poison marks the connection unusable and closes its socket without
// sending Terminate, for paths where the wire is already in an unknown
// state (a write interrupted mid-flight, a failed cancel-drain). The
// caller already holds c.mu.
func (c *Conn) poison() {
	if c.closed {
		return
	}
	c.closed = true
	c.netConn.Close()
}
