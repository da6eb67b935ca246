package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"notification-pipeline/internal/domain/entity"
)

// SMTPConfig configures the email transport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	// StartTLS upgrades the connection when the server supports it.
	StartTLS bool
	// Timeout bounds the whole SMTP conversation.
	Timeout time.Duration
	// RateLimit is messages per second; zero disables limiting.
	RateLimit float64
}

// Validate checks required fields.
func (c SMTPConfig) Validate() error {
	if c.Host == "" {
		return errors.New("SMTP_HOST is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("SMTP_PORT out of range: %d", c.Port)
	}
	if c.From == "" {
		return errors.New("SMTP_FROM is required")
	}
	return nil
}

// SMTPSender delivers email over SMTP.
type SMTPSender struct {
	cfg     SMTPConfig
	limiter *RateLimiter
	dial    func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewSMTPSender creates a sender. A zero Timeout defaults to 30s.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	d := &net.Dialer{Timeout: cfg.Timeout}
	return &SMTPSender{
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RateLimit, 1),
		dial:    d.DialContext,
	}
}

// Send delivers one message to destination. The data map is ignored for email.
func (s *SMTPSender) Send(ctx context.Context, destination string, content *entity.RenderedContent, _ map[string]any) (*Receipt, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("smtp rate limit: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	conn, err := s.dial(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set smtp deadline: %w", err)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp handshake: %w", err)
	}
	defer func() { _ = c.Close() }()

	if s.cfg.StartTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
				return nil, fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}
	if s.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
				return nil, fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	if err := c.Mail(s.cfg.From); err != nil {
		return nil, fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := c.Rcpt(destination); err != nil {
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) && tpErr.Code >= 500 {
			return nil, &BounceError{Recipient: destination, Code: tpErr.Code, Message: tpErr.Msg}
		}
		return nil, fmt.Errorf("smtp RCPT TO: %w", err)
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.cfg.Host)
	w, err := c.Data()
	if err != nil {
		return nil, fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(s.buildMessage(destination, messageID, content)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("smtp write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("smtp end DATA: %w", err)
	}
	if err := c.Quit(); err != nil {
		// the message is already accepted at this point
		return &Receipt{MessageID: messageID, Response: "accepted; quit failed: " + err.Error()}, nil
	}
	return &Receipt{MessageID: messageID, Response: "250 accepted"}, nil
}

func (s *SMTPSender) buildMessage(to, messageID string, content *entity.RenderedContent) []byte {
	from := s.cfg.From
	if s.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.cfg.FromName), s.cfg.From)
	}
	contentType := "text/plain; charset=UTF-8"
	if looksLikeHTML(content.Body) {
		contentType = "text/html; charset=UTF-8"
	}

	var b bytes.Buffer
	header := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}
	header("From", from)
	header("To", to)
	header("Subject", mime.QEncoding.Encode("utf-8", content.Subject))
	header("Message-ID", messageID)
	header("Date", time.Now().UTC().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", contentType)
	header("Content-Transfer-Encoding", "8bit")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(content.Body, "\r\n", "\n"), "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes()
}

func looksLikeHTML(body string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(body))
	return strings.HasPrefix(trimmed, "<!doctype html") || strings.HasPrefix(trimmed, "<html") ||
		(strings.Contains(trimmed, "</") && strings.Contains(trimmed, ">"))
}
