// The notify worker emails visitors when their pass is decided. It consumes
// pass lifecycle events off NATS so the console never blocks on delivery.
package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/securelane/gatepass/internal/platform/mailer"
	"github.com/securelane/gatepass/pkg/config"
	"github.com/securelane/gatepass/pkg/events"
	"github.com/securelane/gatepass/pkg/logger"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	svc := buildMailer(cfg)

	subscribe := func(subject string) {
		err := eventBus.QueueSubscribe(subject, "notify-workers", func(msg *events.Message) {
			handleDecision(svc, msg)
		})
		if err != nil {
			logger.Error("Failed to subscribe", "subject", subject, "error", err)
			os.Exit(1)
		}
	}
	subscribe(events.PassApproved)
	subscribe(events.PassRejected)

	logger.Info("Notify worker running")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down notify worker...")
}

func buildMailer(cfg *config.Config) mailer.Service {
	if cfg.Email.DevMode {
		return mailer.NewDevMailer()
	}
	if cfg.Email.MailerSendKey != "" {
		return mailer.NewMailerSend(cfg.Email.MailerSendKey, cfg.Email.SMTPFromName, cfg.Email.SMTPFrom)
	}
	return mailer.NewSMTPMailer(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPFrom,
		cfg.Email.SMTPUser, cfg.Email.SMTPPass, cfg.Email.SMTPUseTLS)
}

func handleDecision(svc mailer.Service, msg *events.Message) {
	var ev events.PassDecisionEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		logger.Error("Malformed decision event", "subject", msg.Subject, "error", err)
		return
	}
	if ev.VisitorEmail == "" {
		return
	}

	var err error
	if msg.Subject == events.PassApproved {
		err = svc.SendPassApproved(ev.VisitorEmail, ev.VisitorName, ev.PassID, ev.VisitingDate, ev.VisitingTime)
	} else {
		err = svc.SendPassRejected(ev.VisitorEmail, ev.VisitorName, ev.PassID)
	}
	if err != nil {
		logger.Error("Failed to send decision email", "subject", msg.Subject, "pass_id", ev.PassID, "error", err)
		return
	}
	logger.Info("Decision email sent", "subject", msg.Subject, "pass_id", ev.PassID)
}
