package mailer

import (
	"github.com/securelane/gatepass/pkg/logger"
)

// DevMailer logs instead of sending; used when EMAIL_DEV_MODE is on.
type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) SendPassApproved(toEmail, toName, passID, visitingDate, visitingTime string) error {
	logger.Info("[DEV MAIL] Pass approved",
		"to", toEmail,
		"name", toName,
		"pass_id", passID,
		"visiting_date", visitingDate,
		"visiting_time", visitingTime,
	)
	return nil
}

func (d *DevMailer) SendPassRejected(toEmail, toName, passID string) error {
	logger.Info("[DEV MAIL] Pass rejected",
		"to", toEmail,
		"name", toName,
		"pass_id", passID,
	)
	return nil
}
