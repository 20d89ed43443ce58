/**
 * @description
 * This package implements the outbound mail transport used for email
 * forwarding. Messages are assembled as multipart/alternative MIME with
 * go-message and handed to an SMTP relay with go-smtp.
 */
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	netmail "net/mail"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// Mailer sends messages through a single configured SMTP relay.
type Mailer struct {
	addr     string // host:port
	username string
	password string
	from     string // display form, e.g. `KeepSafe <no-reply@example.com>`
}

// New creates a mailer for the given relay. Credentials may be empty for
// relays that accept unauthenticated submission.
func New(host, port, username, password, from string) *Mailer {
	return &Mailer{
		addr:     host + ":" + port,
		username: username,
		password: password,
		from:     from,
	}
}

// buildMessage assembles the MIME body: a text part always, plus an HTML
// alternative when present.
func (m *Mailer) buildMessage(to, subject, text, html string) ([]byte, error) {
	fromAddr, err := netmail.ParseAddress(m.from)
	if err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", m.from, err)
	}

	var b bytes.Buffer
	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Name: fromAddr.Name, Address: fromAddr.Address}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject(subject)

	mw, err := mail.CreateWriter(&b, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}
	iw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("failed to create inline writer: %w", err)
	}

	var th mail.InlineHeader
	th.Set("Content-Type", "text/plain; charset=utf-8")
	tw, err := iw.CreatePart(th)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(tw, text); err != nil {
		return nil, err
	}
	tw.Close()

	if html != "" {
		var hh mail.InlineHeader
		hh.Set("Content-Type", "text/html; charset=utf-8")
		hw, err := iw.CreatePart(hh)
		if err != nil {
			return nil, err
		}
		if _, err := io.WriteString(hw, html); err != nil {
			return nil, err
		}
		hw.Close()
	}

	iw.Close()
	mw.Close()
	return b.Bytes(), nil
}

// Send delivers one message to a single recipient.
func (m *Mailer) Send(ctx context.Context, to, subject, text, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := m.buildMessage(to, subject, text, html)
	if err != nil {
		return err
	}

	fromAddr, err := netmail.ParseAddress(m.from)
	if err != nil {
		return fmt.Errorf("invalid from address %q: %w", m.from, err)
	}

	var auth sasl.Client
	if m.username != "" {
		auth = sasl.NewPlainClient("", m.username, m.password)
	}
	if err := smtp.SendMail(m.addr, auth, fromAddr.Address, []string{to}, bytes.NewReader(body)); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}
