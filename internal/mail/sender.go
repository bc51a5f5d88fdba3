// Package mail sends transactional email over SMTP. The auth flows depend on
// it for two-factor codes and password reset links.
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	gosmtp "net/smtp"
	"strings"
	"time"
)

// Sender is the interface auth flows use to deliver email.
type Sender interface {
	// Send2FACode delivers a two-factor verification code.
	Send2FACode(ctx context.Context, to, code string) error

	// SendPasswordReset delivers a password reset link built from the token.
	SendPasswordReset(ctx context.Context, to, token string) error
}

// Config holds SMTP connection settings for the sender.
type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string

	// Encryption selects the transport: "starttls" (default), "ssl", or "none".
	Encryption string

	// FrontendURL is the base URL of the web frontend, used to build
	// password reset links.
	FrontendURL string
}

// SMTPSender implements Sender using net/smtp.
type SMTPSender struct {
	cfg Config
}

// NewSMTPSender creates a sender with the given settings. Host may be empty;
// sends then fail with a configuration error, which callers handle per flow
// (2FA codes survive a failed send, reset requests roll back).
func NewSMTPSender(cfg Config) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send2FACode(ctx context.Context, to, code string) error {
	body := "Your verification code is: " + code + "\n\n" +
		"This code will expire in 10 minutes.\n\n" +
		"If you did not request this code, please ignore this email.\n\n" +
		"Best regards,\n" +
		"Supply Gate Platform Team"

	return s.send(ctx, to, "Your Verification Code - Supply Gate Platform", body)
}

func (s *SMTPSender) SendPasswordReset(ctx context.Context, to, token string) error {
	resetLink := strings.TrimRight(s.cfg.FrontendURL, "/") + "/reset-password?token=" + token

	body := "You requested a password reset for your Supply Gate Platform account.\n\n" +
		"Click the link below to reset your password:\n" +
		resetLink + "\n\n" +
		"This link will expire in 1 hour.\n\n" +
		"If you did not request this reset, please ignore this email.\n\n" +
		"Best regards,\n" +
		"Supply Gate Platform Team"

	return s.send(ctx, to, "Password Reset Request - Supply Gate Platform", body)
}

// send builds an RFC 2822 message and delivers it using the configured
// encryption mode.
func (s *SMTPSender) send(_ context.Context, to, subject, body string) error {
	if s.cfg.Host == "" {
		return fmt.Errorf("smtp is not configured")
	}

	from := mail.Address{Name: s.cfg.FromName, Address: s.cfg.FromAddress}

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", from.String()))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z)))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	recipients := []string{to}

	switch s.cfg.Encryption {
	case "ssl":
		return s.sendSSL(addr, from.Address, recipients, msg.String())
	case "none":
		return s.sendPlain(addr, from.Address, recipients, msg.String())
	default: // "starttls"
		return s.sendStartTLS(addr, from.Address, recipients, msg.String())
	}
}

// sendStartTLS sends email using STARTTLS (port 587 typical).
func (s *SMTPSender) sendStartTLS(addr, from string, to []string, msg string) error {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	client, err := gosmtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	defer client.Close()

	tlsConfig := &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
	if err := client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("starting TLS: %w", err)
	}

	if s.cfg.Username != "" {
		auth := gosmtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("authenticating: %w", err)
		}
	}

	return s.sendMessage(client, from, to, msg)
}

// sendSSL sends email using implicit SSL/TLS (port 465 typical).
func (s *SMTPSender) sendSSL(addr, from string, to []string, msg string) error {
	tlsConfig := &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
	conn, err := tls.DialWithDialer(&net.Dialer{Timeout: 10 * time.Second}, "tcp", addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("connecting to %s (SSL): %w", addr, err)
	}
	defer conn.Close()

	client, err := gosmtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	defer client.Close()

	if s.cfg.Username != "" {
		auth := gosmtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("authenticating: %w", err)
		}
	}

	return s.sendMessage(client, from, to, msg)
}

// sendPlain sends email without encryption.
func (s *SMTPSender) sendPlain(addr, from string, to []string, msg string) error {
	var auth gosmtp.Auth
	if s.cfg.Username != "" {
		auth = gosmtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := gosmtp.SendMail(addr, auth, from, to, []byte(msg)); err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}
	return nil
}

// sendMessage handles MAIL FROM, RCPT TO, DATA for an existing SMTP client.
func (s *SMTPSender) sendMessage(client *gosmtp.Client, from string, to []string, msg string) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, recipient := range to {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", recipient, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing data: %w", err)
	}
	return client.Quit()
}
