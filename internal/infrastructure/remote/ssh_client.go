package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

var (
	ErrSSHConnection     = errors.New("ssh: connection failed")
	ErrSSHAuthentication = errors.New("ssh: authentication failed")
	ErrSSHCommandFailed  = errors.New("ssh: command execution failed")
	ErrSSHTimeout        = errors.New("ssh: connection timeout")
)

type SSHConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	PrivateKey string
	Timeout    time.Duration
	MaxRetries int
}

type SSHClient struct {
	config SSHConfig
}

func NewSSHClient(cfg SSHConfig) *SSHClient {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	return &SSHClient{config: cfg}
}

func (c *SSHClient) address() string {
	return net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
}

func (c *SSHClient) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if c.config.PrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(c.config.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid private key", ErrSSHAuthentication)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if c.config.Password != "" {
		methods = append(methods, ssh.Password(c.config.Password))
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("%w: no credentials provided", ErrSSHAuthentication)
	}
	return methods, nil
}

func (c *SSHClient) clientConfig() (*ssh.ClientConfig, error) {
	methods, err := c.authMethods()
	if err != nil {
		return nil, err
	}
	return &ssh.ClientConfig{
		User:            c.config.User,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.config.Timeout,
	}, nil
}

func (c *SSHClient) dial(ctx context.Context, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	dialer := net.Dialer{Timeout: c.config.Timeout, KeepAlive: 60 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", c.address())
	if err != nil {
		return nil, err
	}
	_ = conn.SetDeadline(time.Now().Add(c.config.Timeout))

	sc, chans, reqs, err := ssh.NewClientConn(conn, c.address(), cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(sc, chans, reqs), nil
}

// ConnectWithRetry dials with linear backoff. Authentication failures are
// not retried.
func (c *SSHClient) ConnectWithRetry(ctx context.Context) (*ssh.Client, error) {
	cfg, err := c.clientConfig()
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		client, err := c.dial(ctx, cfg)
		if err == nil {
			return client, nil
		}
		lastErr = err
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fmt.Errorf("%w: %v", ErrSSHAuthentication, err)
		}
		if attempt < c.config.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrSSHTimeout, ctx.Err())
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}

	if isTimeout(lastErr) {
		return nil, fmt.Errorf("%w: %v (after %d attempts)", ErrSSHTimeout, lastErr, c.config.MaxRetries)
	}
	return nil, fmt.Errorf("%w: %v (after %d attempts)", ErrSSHConnection, lastErr, c.config.MaxRetries)
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "timeout")
}

// Handshake opens a single SSH session and closes it, returning how long the
// handshake took. Used by reachability probes.
func (c *SSHClient) Handshake(ctx context.Context) (time.Duration, error) {
	cfg, err := c.clientConfig()
	if err != nil {
		return 0, err
	}
	start := time.Now()
	client, err := c.dial(ctx, cfg)
	if err != nil {
		if isTimeout(err) {
			return 0, fmt.Errorf("%w: %v", ErrSSHTimeout, err)
		}
		return 0, fmt.Errorf("%w: %v", ErrSSHConnection, err)
	}
	elapsed := time.Since(start)
	client.Close()
	return elapsed, nil
}

// Execute runs cmd on an existing connection, killing the session when ctx ends.
func (c *SSHClient) Execute(ctx context.Context, client *ssh.Client, cmd string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("%w: failed to create session", ErrSSHConnection)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return "", fmt.Errorf("%w: command cancelled", ctx.Err())
	case err := <-done:
		if err != nil {
			msg := stderr.String()
			if msg == "" {
				msg = err.Error()
			}
			return stdout.String(), fmt.Errorf("%w: %s", ErrSSHCommandFailed, strings.TrimSpace(msg))
		}
	}
	return stdout.String(), nil
}

// RunCommand connects, runs cmd and disconnects.
func (c *SSHClient) RunCommand(ctx context.Context, cmd string) (string, error) {
	client, err := c.ConnectWithRetry(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()
	return c.Execute(ctx, client, cmd)
}
