// Package email delivers plain text mail over SMTP or a local sendmail binary.
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Message is a plain text email.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Transport sends a Message.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// Format renders msg as an RFC 5322 message with a UTF-8 body.
func Format(msg Message) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ","))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes()
}

func validate(msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("no recipients")
	}
	for _, to := range msg.To {
		if !strings.Contains(to, "@") {
			return fmt.Errorf("invalid email address: %s", to)
		}
	}
	return nil
}

// DefaultTimeout bounds an SMTP session when ctx carries no deadline.
const DefaultTimeout = 30 * time.Second

// SMTP sends through an SMTP server. Secure selects implicit TLS (usually
// port 465); otherwise STARTTLS is used when the server offers it.
type SMTP struct {
	Host     string
	Port     int
	Secure   bool
	Username string
	Password string
	// Timeout caps the whole session. Zero means DefaultTimeout.
	Timeout time.Duration
}

func (s SMTP) Send(ctx context.Context, msg Message) error {
	if err := validate(msg); err != nil {
		return err
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	conn, err := s.dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return err
	}
	// unblock any pending read or write once ctx is cancelled early
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	c, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open smtp session: %w", err)
	}
	defer c.Close()

	if !s.Secure {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: s.Host}); err != nil {
				return fmt.Errorf("smtp STARTTLS failed: %w", err)
			}
		}
	}
	if s.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", s.Username, s.Password, s.Host)); err != nil {
			return fmt.Errorf("smtp auth failed: %w", err)
		}
	}
	if err := c.Mail(msg.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM failed: %w", err)
	}
	for _, to := range msg.To {
		if err := c.Rcpt(to); err != nil {
			return fmt.Errorf("smtp RCPT TO %s failed: %w", to, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA failed: %w", err)
	}
	if _, err := w.Write(Format(msg)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}
	return c.Quit()
}

func (s SMTP) dial(ctx context.Context, addr string) (net.Conn, error) {
	if s.Secure {
		dialer := &tls.Dialer{Config: &tls.Config{ServerName: s.Host}}
		return dialer.DialContext(ctx, "tcp", addr)
	}
	var dialer net.Dialer
	return dialer.DialContext(ctx, "tcp", addr)
}

// Sendmail pipes the message to a local sendmail compatible binary.
type Sendmail struct {
	Path string
}

func (s Sendmail) Send(ctx context.Context, msg Message) error {
	if err := validate(msg); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, s.Path, "-t", "-i")
	cmd.Stdin = bytes.NewReader(Format(msg))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("sendmail failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
