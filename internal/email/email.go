package email

import (
	"context"
	"fmt"
	"time"

	"lendery/internal/config"
	"lendery/internal/logger"
	"lendery/internal/models"

	"github.com/mailgun/mailgun-go/v5"
)

type Service struct {
	client      mailgun.Mailgun
	domain      string
	senderEmail string
	senderName  string
	enabled     bool
}

func NewService(cfg *config.Config) *Service {
	enabled := cfg.MailgunDomain != "" && cfg.MailgunAPIKey != ""

	var client mailgun.Mailgun
	if enabled {
		client = mailgun.NewMailgun(cfg.MailgunAPIKey)
	}

	return &Service{
		client:      client,
		domain:      cfg.MailgunDomain,
		senderEmail: cfg.MailgunSenderEmail,
		senderName:  cfg.MailgunSenderName,
		enabled:     enabled,
	}
}

func (s *Service) IsEnabled() bool {
	return s != nil && s.enabled
}

func (s *Service) send(to, subject, textBody, htmlBody string) error {
	if !s.IsEnabled() {
		return fmt.Errorf("email service is not configured")
	}

	message := mailgun.NewMessage(
		s.domain,
		fmt.Sprintf("%s <%s>", s.senderName, s.senderEmail),
		subject,
		textBody,
		to,
	)
	message.SetHTML(htmlBody)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := s.client.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send %q email to %s: %w", subject, to, err)
	}

	logger.Info("Email sent", "email", to, "subject", subject, "response", resp)
	return nil
}

func (s *Service) SendWelcomeEmail(user *models.User) error {
	subject := fmt.Sprintf("Welcome to Lendery, %s!", user.Name)
	return s.send(user.Email, subject, welcomeText(user), welcomeHTML(user))
}

func (s *Service) SendAdminNotificationEmail(admin *models.User, newUser *models.User) error {
	subject := fmt.Sprintf("New Lendery member: %s", newUser.Name)
	return s.send(admin.Email, subject, adminNotificationText(admin, newUser), adminNotificationHTML(admin, newUser))
}

// SendRentalDecisionEmail tells the renter whether their request was approved.
// Rejections mention the refund.
func (s *Service) SendRentalDecisionEmail(user *models.User, rental *models.Rental) error {
	subject := "Your rental was approved"
	if rental.Status == models.RentalRejected {
		subject = "Your rental was not approved"
	}
	return s.send(user.Email, subject, rentalDecisionText(user, rental), rentalDecisionHTML(user, rental))
}

// SendReturnCodeEmail sends a pending return's code to an admin, who reads it
// to the renter at hand-over. Renters never receive the code.
func (s *Service) SendReturnCodeEmail(admin *models.User, rental *models.Rental) error {
	subject := fmt.Sprintf("Return code for rental #%d", rental.ID)
	return s.send(admin.Email, subject, returnCodeText(admin, rental), returnCodeHTML(admin, rental))
}

func (s *Service) SendPurchaseDecisionEmail(user *models.User, txn *models.Transaction) error {
	subject := "Your token purchase was approved"
	if txn.Status == models.TransactionCancelled {
		subject = "Your token purchase was not approved"
	}
	return s.send(user.Email, subject, purchaseDecisionText(user, txn), purchaseDecisionHTML(user, txn))
}
