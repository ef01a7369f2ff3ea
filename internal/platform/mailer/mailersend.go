package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"
)

type MailerSendClient struct {
	client  *mailersend.Mailersend
	from    mailersend.From
	enabled bool
}

func NewMailerSend(apiKey, fromName, fromEmail string) *MailerSendClient {
	m := &MailerSendClient{
		enabled: apiKey != "" && fromEmail != "",
		from: mailersend.From{
			Name:  fromName,
			Email: fromEmail,
		},
	}

	if m.enabled {
		m.client = mailersend.NewMailersend(apiKey)
	}

	return m
}

func (m *MailerSendClient) SendPassApproved(toEmail, toName, passID, visitingDate, visitingTime string) error {
	if !m.enabled {
		return fmt.Errorf("MailerSend not configured")
	}

	subject := "Your visitor pass has been approved"
	slot := visitingDate
	if visitingTime != "" {
		slot += " at " + visitingTime
	}
	html := fmt.Sprintf(`
		<h2>Visitor Pass Approved</h2>
		<p>Hi %s,</p>
		<p>Your visitor pass <strong>%s</strong> has been approved.</p>
		<p>Please arrive on <strong>%s</strong> and carry a photo ID.</p>
		<p>Show this pass number at the gate to check in.</p>
	`, toName, passID, slot)

	text := fmt.Sprintf("Hi %s, your visitor pass %s has been approved for %s. Show the pass number at the gate to check in.", toName, passID, slot)

	return m.sendEmail(toEmail, toName, subject, text, html)
}

func (m *MailerSendClient) SendPassRejected(toEmail, toName, passID string) error {
	if !m.enabled {
		return fmt.Errorf("MailerSend not configured")
	}

	subject := "Your visitor pass request was declined"
	html := fmt.Sprintf(`
		<h2>Visitor Pass Declined</h2>
		<p>Hi %s,</p>
		<p>Unfortunately your visitor pass request <strong>%s</strong> was declined.</p>
		<p>Please contact the front desk if you believe this is a mistake.</p>
	`, toName, passID)

	text := fmt.Sprintf("Hi %s, your visitor pass request %s was declined. Please contact the front desk with any questions.", toName, passID)

	return m.sendEmail(toEmail, toName, subject, text, html)
}

func (m *MailerSendClient) sendEmail(toEmail, toName, subject, text, html string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg := m.client.Email.NewMessage()
	msg.SetFrom(m.from)
	msg.SetRecipients([]mailersend.Recipient{{Name: toName, Email: toEmail}})
	msg.SetSubject(subject)

	if strings.TrimSpace(text) != "" {
		msg.SetText(text)
	}
	if strings.TrimSpace(html) != "" {
		msg.SetHTML(html)
	}

	_, err := m.client.Email.Send(ctx, msg)
	return err
}
