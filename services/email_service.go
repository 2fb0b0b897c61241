package services

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html/template"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
)

// InviteMailer delivers team invitation mail. Satisfied by
// EmailService; tests substitute a fake.
type InviteMailer interface {
	SendTeamInviteEmail(toEmail, teamName, inviteLink string) error
}

type EmailConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

type EmailService struct {
	cfg EmailConfig
}

func NewEmailService(cfg EmailConfig) *EmailService {
	return &EmailService{cfg: cfg}
}

var inviteHTMLTemplate = template.Must(template.New("team_invite").Parse(`<html>
<body>
<p>You have been invited to join the team <strong>{{.TeamName}}</strong>.</p>
<p><a href="{{.InviteLink}}">Accept your invitation</a></p>
<p>This link expires in 7 days. If you were not expecting this invitation you can ignore this email.</p>
</body>
</html>
`))

// SendTeamInviteEmail sends a multipart/alternative message with a
// plain-text part and an HTML part, both carrying the invite deep link.
func (s *EmailService) SendTeamInviteEmail(toEmail, teamName, inviteLink string) error {
	data := struct {
		TeamName   string
		InviteLink string
	}{TeamName: teamName, InviteLink: inviteLink}

	var htmlBody bytes.Buffer
	if err := inviteHTMLTemplate.Execute(&htmlBody, data); err != nil {
		return fmt.Errorf("failed to render invite email: %w", err)
	}

	textBody := fmt.Sprintf(
		"You have been invited to join the team %q.\r\n\r\nAccept your invitation: %s\r\n\r\nThis link expires in 7 days.\r\n",
		teamName, inviteLink)

	subject := fmt.Sprintf("Invitation to join %s", teamName)
	msg, err := buildAlternativeMessage(s.cfg.From, toEmail, subject, textBody, htmlBody.String())
	if err != nil {
		return err
	}

	return s.send([]string{toEmail}, msg)
}

func buildAlternativeMessage(from, to, subject, textBody, htmlBody string) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", writer.Boundary())

	textPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {`text/plain; charset="UTF-8"`},
	})
	if err != nil {
		return nil, err
	}
	if _, err := textPart.Write([]byte(textBody)); err != nil {
		return nil, err
	}

	htmlPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {`text/html; charset="UTF-8"`},
	})
	if err != nil {
		return nil, err
	}
	if _, err := htmlPart.Write([]byte(htmlBody)); err != nil {
		return nil, err
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *EmailService) send(to []string, msg []byte) error {
	auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	tlsConfig := &tls.Config{ServerName: s.cfg.Host}

	var client *smtp.Client
	if s.cfg.Port == 465 {
		// Implicit TLS.
		conn, err := tls.Dial("tcp", addr, tlsConfig)
		if err != nil {
			return fmt.Errorf("smtp tls dial failed: %w", err)
		}
		defer conn.Close()
		client, err = smtp.NewClient(conn, s.cfg.Host)
		if err != nil {
			return fmt.Errorf("smtp client setup failed: %w", err)
		}
	} else {
		// STARTTLS.
		c, err := smtp.Dial(addr)
		if err != nil {
			return fmt.Errorf("smtp dial failed: %w", err)
		}
		client = c
		if err = client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return fmt.Errorf("smtp starttls failed: %w", err)
		}
	}
	defer client.Quit()

	if s.cfg.User != "" {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth failed: %w", err)
		}
	}

	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM failed: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO failed: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA failed: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("smtp message write failed: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("smtp DATA close failed: %w", err)
	}

	return nil
}
