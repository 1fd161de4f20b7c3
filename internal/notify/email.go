package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"html"

	"github.com/d9705996/commune/internal/config"
	"github.com/d9705996/commune/internal/model"
	"gopkg.in/gomail.v2"
	"gorm.io/gorm"
)

// Sender abstracts the SMTP transport so tests can capture messages.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Email delivers events to the recipient's address over SMTP.
type Email struct {
	db     *gorm.DB
	sender Sender
	from   string
}

// NewEmail builds an Email notifier from SMTP settings.
func NewEmail(db *gorm.DB, cfg config.SMTPConfig) *Email {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	return NewEmailWithSender(db, d, cfg.From)
}

// NewEmailWithSender builds an Email notifier over an arbitrary transport.
func NewEmailWithSender(db *gorm.DB, sender Sender, from string) *Email {
	return &Email{db: db, sender: sender, from: from}
}

// Notify implements Notifier.
func (e *Email) Notify(ctx context.Context, ev Event) error {
	var u model.User
	if err := e.db.WithContext(ctx).
		Select("email", "name").
		Where("id = ? AND deactivated_at IS NULL", ev.RecipientID).
		First(&u).Error; err != nil {
		return fmt.Errorf("resolve recipient %s: %w", ev.RecipientID, err)
	}

	name, err := e.communityName(ctx, ev)
	if err != nil {
		return err
	}
	subject, body := render(ev, html.EscapeString(name))
	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", u.Email)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)
	if err := e.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("send %s mail: %w", ev.Type, err)
	}
	return nil
}

// communityName prefers the name carried in the payload and otherwise
// looks the community up, whether or not it is still active.
func (e *Email) communityName(ctx context.Context, ev Event) (string, error) {
	if name, _ := ev.Payload["community_name"].(string); name != "" {
		return name, nil
	}
	if ev.CommunityID == "" {
		return "your community", nil
	}
	var c model.Community
	if err := e.db.WithContext(ctx).
		Select("name").
		Where("id = ?", ev.CommunityID).
		First(&c).Error; err != nil {
		return "", fmt.Errorf("resolve community %s: %w", ev.CommunityID, err)
	}
	return c.Name, nil
}

// render expects name already escaped for HTML.
func render(ev Event, name string) (subject, body string) {
	switch ev.Type {
	case EventTransferInitiated:
		return "Ownership transfer started",
			fmt.Sprintf("<p>You offered ownership of <b>%s</b>. The offer expires at %v.</p>", name, ev.Payload["expires_at"])
	case EventTransferOffered:
		return "You have been offered ownership",
			fmt.Sprintf("<p>You have been offered ownership of <b>%s</b>. The offer expires at %v.</p>", name, ev.Payload["expires_at"])
	case EventTransferAccepted:
		return "Ownership transfer accepted", fmt.Sprintf("<p>The ownership transfer of <b>%s</b> was accepted.</p>", name)
	case EventTransferRejected:
		return "Ownership transfer rejected", fmt.Sprintf("<p>The ownership transfer of <b>%s</b> was rejected.</p>", name)
	case EventTransferCanceled:
		return "Ownership transfer canceled", fmt.Sprintf("<p>The ownership transfer of <b>%s</b> was canceled.</p>", name)
	case EventJoinRequestCreated:
		return "New join request", fmt.Sprintf("<p>Someone asked to join <b>%s</b>.</p>", name)
	case EventJoinRequestAnswer:
		return "Your join request was answered",
			fmt.Sprintf("<p>Your request to join <b>%s</b> was %v.</p>", name, ev.Payload["status"])
	}
	return "Community notification", fmt.Sprintf("<p>%s</p>", html.EscapeString(ev.Type))
}
