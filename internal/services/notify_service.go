package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"coinscope/internal/catalog"
	"coinscope/internal/repositories"
	"coinscope/pkg/logger"
)

// SMTPConfig holds the mail relay credentials and branding.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	AppName  string
	// RenewURL is the deep link placed in reminder mails.
	RenewURL string
}

// INotifyService fans subscription state changes out to the user.
// Every method is best effort: a failed send never rolls payment state back.
type INotifyService interface {
	SubscriptionActivated(ctx context.Context, userID uuid.UUID, planID string) error
	SubscriptionPastDue(ctx context.Context, userID uuid.UUID, planID string) error
	SubscriptionCancelled(ctx context.Context, userID uuid.UUID, planID string) error
	SubscriptionExpiring(ctx context.Context, userID uuid.UUID, planID string, daysLeft int) error
}

type smtpNotifyService struct {
	cfg     SMTPConfig
	catalog *catalog.Catalog
	users   repositories.IUserRepository
	tpl     *template.Template
	log     *zap.Logger
}

func NewNotifyService(cfg SMTPConfig, cat *catalog.Catalog, users repositories.IUserRepository) INotifyService {
	return &smtpNotifyService{
		cfg:     cfg,
		catalog: cat,
		users:   users,
		tpl:     template.Must(template.New("mail").Parse(mailTemplate)),
		log:     logger.Get(),
	}
}

type mailData struct {
	Title   string
	Body    string
	AppName string
	LinkURL string
	Year    int
}

const mailTemplate = `<!doctype html>
<html>
<head><meta charset="UTF-8"><title>{{.Title}}</title></head>
<body style="font-family:-apple-system,Segoe UI,Roboto,Arial,sans-serif;background:#0f172a;color:#e2e8f0;padding:32px">
  <div style="max-width:600px;margin:0 auto;background:#1e293b;border-radius:12px;padding:32px">
    <h2 style="color:#60a5fa;margin-top:0">{{.AppName}}</h2>
    <h1 style="font-size:22px">{{.Title}}</h1>
    <p style="line-height:1.6">{{.Body}}</p>
    {{if .LinkURL}}<p><a href="{{.LinkURL}}" style="color:#60a5fa">Manage subscription</a></p>{{end}}
    <p style="color:#64748b;font-size:12px">&copy; {{.Year}} {{.AppName}}</p>
  </div>
</body>
</html>`

func (s *smtpNotifyService) planName(planID string) string {
	if plan, err := s.catalog.GetPlan(planID); err == nil {
		return plan.DisplayName
	}
	return planID
}

func (s *smtpNotifyService) sendToUser(ctx context.Context, userID uuid.UUID, title, body string, withLink bool) error {
	user, err := s.users.FindById(ctx, userID.String())
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("no user %s for notification", userID)
	}

	link := ""
	if withLink {
		link = s.cfg.RenewURL
	}

	var html bytes.Buffer
	if err := s.tpl.Execute(&html, mailData{
		Title:   title,
		Body:    body,
		AppName: s.cfg.AppName,
		LinkURL: link,
		Year:    time.Now().Year(),
	}); err != nil {
		return err
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", user.Email)
	fmt.Fprintf(&msg, "Subject: %s\r\n", title)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n")
	msg.Write(html.Bytes())

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{user.Email}, msg.Bytes()); err != nil {
		return err
	}

	s.log.Info("notification sent", zap.String("user_id", userID.String()), zap.String("title", title))
	return nil
}

func (s *smtpNotifyService) SubscriptionActivated(ctx context.Context, userID uuid.UUID, planID string) error {
	return s.sendToUser(ctx, userID,
		"Subscription activated",
		fmt.Sprintf("Your %s plan is now active. Enjoy!", s.planName(planID)),
		false)
}

func (s *smtpNotifyService) SubscriptionPastDue(ctx context.Context, userID uuid.UUID, planID string) error {
	return s.sendToUser(ctx, userID,
		"Payment failed",
		fmt.Sprintf("The latest payment for your %s plan failed. Update your payment method to keep your access.", s.planName(planID)),
		true)
}

func (s *smtpNotifyService) SubscriptionCancelled(ctx context.Context, userID uuid.UUID, planID string) error {
	return s.sendToUser(ctx, userID,
		"Subscription cancelled",
		fmt.Sprintf("Your %s plan has been cancelled. You can resubscribe any time.", s.planName(planID)),
		true)
}

func (s *smtpNotifyService) SubscriptionExpiring(ctx context.Context, userID uuid.UUID, planID string, daysLeft int) error {
	return s.sendToUser(ctx, userID,
		"Subscription expiring soon",
		fmt.Sprintf("Your %s plan expires in %d day(s). Renew now to keep your access, multi-month renewals come with a discount.", s.planName(planID), daysLeft),
		true)
}
