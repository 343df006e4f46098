package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"go.uber.org/zap"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/amount"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/events"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/logging"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/openpayments"
)

var awaitingTpl = template.Must(template.New("awaiting").Parse(`
<h2>Authorize your payment</h2>
<p>Amount: <b>{{.Amount}}</b></p>
{{if .Description}}<p>For: {{.Description}}</p>{{end}}
<p>Approve it in your wallet: <a href="{{.AuthorizationURL}}">{{.AuthorizationURL}}</a></p>
`))

var completedTpl = template.Must(template.New("completed").Parse(`
<h2>Payment sent</h2>
<p>Payment: <b>{{.PaymentID}}</b></p>
<p>Debited: <b>{{.Amount}}</b></p>
{{if .Received}}<p>Delivered: <b>{{.Received}}</b></p>{{end}}
`))

var failedTpl = template.Must(template.New("failed").Parse(`
<h2>Payment failed</h2>
{{if .QuoteID}}<p>Quote: {{.QuoteID}}</p>{{end}}
<p>Reason: {{.Reason}}</p>
`))

type view struct {
	Amount           string
	Received         string
	Description      string
	AuthorizationURL string
	PaymentID        string
	QuoteID          string
	Reason           string
}

func render(tpl *template.Template, v view) (string, error) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("render %s email: %w", tpl.Name(), err)
	}
	return buf.String(), nil
}

func formatted(a *openpayments.Amount) string {
	if a == nil {
		return ""
	}
	s, err := amount.Format(a.Value, a.AssetScale, a.AssetCode)
	if err != nil {
		return a.Value + " " + a.AssetCode
	}
	return s
}

// Notifier emails the payer about payments.v1 events.
type Notifier struct {
	sender Sender
	to     string
}

func NewNotifier(sender Sender, to string) *Notifier {
	return &Notifier{sender: sender, to: to}
}

// Handle renders and sends the email for one event. Unknown event types are
// ignored.
func (n *Notifier) Handle(ctx context.Context, env events.Envelope) error {
	var subject string
	var tpl *template.Template
	switch env.EventType {
	case events.EventPaymentAwaitingAuthorization:
		subject, tpl = "Authorize your payment", awaitingTpl
	case events.EventPaymentCompleted:
		subject, tpl = "Your payment confirmation", completedTpl
	case events.EventPaymentFailed:
		subject, tpl = "Your payment failed", failedTpl
	default:
		return nil
	}

	var evt events.PaymentEvent
	if err := env.Decode(&evt); err != nil {
		return fmt.Errorf("decode %s: %w", env.EventType, err)
	}
	body, err := render(tpl, view{
		Amount:           formatted(evt.DebitAmount),
		Received:         formatted(evt.ReceiveAmount),
		Description:      evt.Description,
		AuthorizationURL: evt.AuthorizationURL,
		PaymentID:        evt.PaymentID,
		QuoteID:          evt.QuoteID,
		Reason:           evt.Reason,
	})
	if err != nil {
		return err
	}
	if err := n.sender.Send(n.to, subject, body); err != nil {
		return err
	}
	logging.FromContext(ctx).Info("payment_email_sent",
		zap.String("event_type", env.EventType),
		zap.String("session_id", evt.SessionID),
		zap.String("to", n.to),
	)
	return nil
}
