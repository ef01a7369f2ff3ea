package mailer

// Service delivers visitor-facing pass notifications. Implementations must
// be safe for concurrent use.
type Service interface {
	SendPassApproved(toEmail, toName, passID, visitingDate, visitingTime string) error
	SendPassRejected(toEmail, toName, passID string) error
}
