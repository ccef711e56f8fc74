package email

import (
	"bytes"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"time"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/config"
)

// Service delivers notification emails. It is disabled entirely when no SMTP
// host is configured; Send* calls then log and return nil.
type Service struct {
	config *config.EmailConfig
}

// NewService creates a new email service
func NewService(cfg *config.EmailConfig) *Service {
	return &Service{config: cfg}
}

// Enabled reports whether an SMTP host is configured
func (s *Service) Enabled() bool {
	return s.config.SMTPHost != ""
}

// SendInvitationCode delivers a freshly issued invitation code
func (s *Service) SendInvitationCode(to, code string, expiresAt time.Time) error {
	if !s.Enabled() {
		slog.Debug("Email disabled, skipping invitation delivery", "to", to)
		return nil
	}

	subject := "Your registration invitation"
	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Invitation</title></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2>You have been invited</h2>
        <p>Use the following code to register your account:</p>
        <p style="font-size: 24px; font-weight: bold; letter-spacing: 4px;">%s</p>
        <p>The code is valid until %s and can be used once.</p>
        <hr style="border: none; border-top: 1px solid #eee; margin: 20px 0;">
        <p style="color: #999; font-size: 12px;">This is an automated email. Please do not reply.</p>
    </div>
</body>
</html>
`, code, expiresAt.Format("2006-01-02 15:04 MST"))

	return s.sendEmail(to, subject, body)
}

func (s *Service) sendEmail(to, subject, body string) error {
	headers := map[string]string{
		"From":         s.config.SMTPFrom,
		"To":           to,
		"Subject":      subject,
		"MIME-Version": "1.0",
		"Content-Type": "text/html; charset=UTF-8",
	}

	var message bytes.Buffer
	for k, v := range headers {
		message.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	message.WriteString("\r\n")
	message.WriteString(body)

	addr := net.JoinHostPort(s.config.SMTPHost, s.config.SMTPPort)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		slog.Error("Failed to connect to SMTP server", "address", addr, "error", err)
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer func(conn net.Conn) {
		if err := conn.Close(); err != nil {
			slog.Error("Failed to close SMTP connection", "error", err)
		}
	}(conn)

	client, err := smtp.NewClient(conn, s.config.SMTPHost)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer func(client *smtp.Client) {
		if err := client.Close(); err != nil {
			slog.Error("Failed to close SMTP client", "error", err)
		}
	}(client)

	// Local relays like Mailpit accept mail without authentication
	if s.config.SMTPUsername != "" && s.config.SMTPPassword != "" {
		auth := smtp.PlainAuth("", s.config.SMTPUsername, s.config.SMTPPassword, s.config.SMTPHost)
		_ = client.Auth(auth)
	}

	if err := client.Mail(s.config.SMTPFrom); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open message body: %w", err)
	}
	if _, err := w.Write(message.Bytes()); err != nil {
		return fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close message body: %w", err)
	}

	if err := client.Quit(); err != nil {
		return fmt.Errorf("failed to finish SMTP session: %w", err)
	}

	slog.Info("Email sent", "to", to, "subject", subject)
	return nil
}
