package notify

import (
	"gopkg.in/gomail.v2"

	domain "github.com/bryanwahyu/auditron-ci/internal/domain/pipelines"
)

// Mailer dispatches rendered pipeline notifications over SMTP. The caller
// owns the failure policy: dispatch errors are returned for logging and
// must never alter a finished outcome.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewMailer(host string, port int, username, password, from string) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (m *Mailer) Notify(outcome domain.PipelineOutcome, gate domain.QualityGateResult, recipients []string) error {
	if len(recipients) == 0 {
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", recipients...)
	msg.SetHeader("Subject", Subject(outcome, gate))

	if StatusClass(outcome, gate) == ClassSuccess {
		msg.SetBody("text/plain", RenderText(outcome))
	} else {
		msg.SetBody("text/html", RenderHTML(outcome, gate))
	}
	return m.dialer.DialAndSend(msg)
}
