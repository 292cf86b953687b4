package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/internal/config"
)

// sessionTimeout bounds a whole send, message upload included
const sessionTimeout = 2 * time.Minute

// SMTPClient sends each message over its own short-lived SMTP session
type SMTPClient struct {
	cfg       config.ConnectionConfig
	creds     *credentials
	timeout   time.Duration
	tlsConfig *tls.Config
	logger    *logrus.Entry
}

// NewSMTPClient creates a new SMTP client
func NewSMTPClient(cfg config.ConnectionConfig, creds *credentials, timeout time.Duration, logger *logrus.Entry) *SMTPClient {
	return &SMTPClient{
		cfg:     cfg,
		creds:   creds,
		timeout: timeout,
		tlsConfig: &tls.Config{
			ServerName: cfg.Host,
			MinVersion: tls.VersionTLS12,
		},
		logger: logger.WithField("component", "smtp"),
	}
}

// Send delivers raw to recipients
func (c *SMTPClient) Send(ctx context.Context, from string, recipients []string, raw []byte) error {
	// Credentials first so a settings problem never opens a socket
	auth, err := c.creds.smtpAuth(ctx)
	if err != nil {
		return err
	}

	client, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	// Auth
	if err := client.Auth(auth); err != nil {
		c.creds.rejected(auth)
		return fmt.Errorf("failed to authenticate: %w", err)
	}

	// Set sender
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}

	// Set recipients
	for _, to := range recipients {
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", to, err)
		}
	}

	// Send data
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to send data command: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	c.logger.WithField("recipients", len(recipients)).Debug("Message accepted by SMTP server")
	return client.Quit()
}

// dial opens an implicit TLS session when SSL is set, otherwise a plain session
// upgraded with STARTTLS when TLS is set
func (c *SMTPClient) dial(ctx context.Context) (*smtp.Client, error) {
	dialer := &net.Dialer{Timeout: c.timeout}
	tlsConfig := c.tlsConfig.Clone()

	var (
		conn net.Conn
		err  error
	)
	if c.cfg.SSL {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", c.cfg.Address())
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", c.cfg.Address())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	conn.SetDeadline(time.Now().Add(sessionTimeout)) //nolint:errcheck

	client, err := smtp.NewClient(conn, c.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	if c.cfg.TLS && !c.cfg.SSL {
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to start TLS: %w", err)
		}
	}
	return client, nil
}
