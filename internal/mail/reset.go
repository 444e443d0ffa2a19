package mail

import (
	"context"
	"fmt"
)

const resetSubject = "Password reset"

// ResetMailer renders and dispatches password-reset messages through a
// Sender. It satisfies the auth service's mailer interface.
type ResetMailer struct {
	sender Sender
}

func NewResetMailer(sender Sender) *ResetMailer {
	return &ResetMailer{sender: sender}
}

func (m *ResetMailer) SendPasswordReset(ctx context.Context, recipient, link string) error {
	body := fmt.Sprintf(`<p>A password reset was requested for this address.</p>
<p><a href="%s">Reset your password</a></p>
<p>The link is valid for 15 minutes. If you did not request this, ignore this message.</p>`, link)
	return m.sender.Send(ctx, recipient, resetSubject, body)
}
