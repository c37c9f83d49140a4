package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"
)

// SMTPProvider delivers mail over SMTP. A connection is opened per message
// and closed on every exit path; the instance pool bounds how many messages
// are in flight at once.
type SMTPProvider struct {
	host      string
	port      int
	username  string
	password  string
	useTLS    bool
	fromEmail string
}

func NewSMTPProvider(host string, port int, username, password string, useTLS bool, fromEmail string) *SMTPProvider {
	return &SMTPProvider{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		useTLS:    useTLS,
		fromEmail: fromEmail,
	}
}

func (p *SMTPProvider) Name() string { return "SmtpEmailProvider" }

func (p *SMTPProvider) Send(ctx context.Context, recipient, subject, plainText, htmlText string) error {
	if err := validateMessage(recipient, subject, plainText, htmlText); err != nil {
		return err
	}

	msg, err := buildMessage(p.fromEmail, recipient, subject, plainText, htmlText)
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}
	return p.transmit(ctx, recipient, msg)
}

func (p *SMTPProvider) transmit(ctx context.Context, recipient string, msg []byte) error {
	addr := net.JoinHostPort(p.host, strconv.Itoa(p.port))
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, p.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if p.useTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return fmt.Errorf("server %s does not support STARTTLS", p.host)
		}
		if err := client.StartTLS(&tls.Config{ServerName: p.host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if p.username != "" {
		auth := smtp.PlainAuth("", p.username, p.password, p.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	from, err := envelopeAddress(p.fromEmail)
	if err != nil {
		return err
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(recipient); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}

	return client.Quit()
}

// envelopeAddress extracts the bare address from a possibly display-named
// sender like "Support <support@example.com>".
func envelopeAddress(from string) (string, error) {
	parsed, err := mail.ParseAddress(from)
	if err != nil {
		return "", fmt.Errorf("parse from address %q: %w", from, err)
	}
	return parsed.Address, nil
}

// buildMessage assembles the RFC 5322 message bytes. With both bodies
// present it emits multipart/alternative with the plain part first, per
// RFC 2046 least-preferred-first ordering. Every part and the subject
// header are UTF-8.
func buildMessage(from, to, subject, plainText, htmlText string) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")

	switch {
	case plainText != "" && htmlText != "":
		mw := multipart.NewWriter(&buf)
		fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())
		if err := writePart(mw, "text/plain", plainText); err != nil {
			return nil, err
		}
		if err := writePart(mw, "text/html", htmlText); err != nil {
			return nil, err
		}
		if err := mw.Close(); err != nil {
			return nil, err
		}
	case htmlText != "":
		if err := writeSinglePart(&buf, "text/html", htmlText); err != nil {
			return nil, err
		}
	default:
		if err := writeSinglePart(&buf, "text/plain", plainText); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func writePart(mw *multipart.Writer, contentType, body string) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Type", contentType+`; charset="utf-8"`)
	header.Set("Content-Transfer-Encoding", "quoted-printable")
	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	return writeQuotedPrintable(part, body)
}

func writeSinglePart(buf *bytes.Buffer, contentType, body string) error {
	fmt.Fprintf(buf, "Content-Type: %s; charset=\"utf-8\"\r\n", contentType)
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
	return writeQuotedPrintable(buf, body)
}

func writeQuotedPrintable(w io.Writer, body string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(body)); err != nil {
		return err
	}
	return qp.Close()
}

var _ Provider = (*SMTPProvider)(nil)
