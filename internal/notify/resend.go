package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"
)

const resendEndpoint = "https://api.resend.com/emails"

// ResendNotifier delivers notices through the Resend transactional email API.
type ResendNotifier struct {
	apiKey   string
	from     string
	inbox    string // bookkeeper inbox receiving submission notices
	client   *http.Client
	endpoint string
}

var _ Notifier = (*ResendNotifier)(nil)

// NewResendNotifier constructs a ResendNotifier. inbox is the address
// submission notices are sent to; completion notices go to the client.
func NewResendNotifier(apiKey, from, inbox string) *ResendNotifier {
	return &ResendNotifier{
		apiKey:   apiKey,
		from:     from,
		inbox:    inbox,
		client:   &http.Client{Timeout: 10 * time.Second},
		endpoint: resendEndpoint,
	}
}

// SendSubmissionNotice emails the bookkeeper inbox that a client handed off
// a month of statements.
func (r *ResendNotifier) SendSubmissionNotice(ctx context.Context, n Notification) error {
	var rows strings.Builder
	for _, s := range n.Statements {
		fmt.Fprintf(&rows,
			`<tr><td style="padding:8px;border:1px solid #e5e7eb">%s</td><td style="padding:8px;border:1px solid #e5e7eb">&bull;&bull;&bull;&bull;%s</td><td style="padding:8px;border:1px solid #e5e7eb">%s</td><td style="padding:8px;border:1px solid #e5e7eb">%s</td></tr>`,
			html.EscapeString(s.InstitutionName),
			html.EscapeString(s.AccountLast4),
			html.EscapeString(s.InstitutionType),
			html.EscapeString(s.FileName),
		)
	}

	body := fmt.Sprintf(`<div style="font-family:sans-serif;max-width:600px;margin:0 auto">
<h2 style="color:#991b1b">New Monthly Statements Submitted</h2>
<p><strong>Client:</strong> %s (%s)</p>
<p><strong>Company:</strong> %s</p>
<p><strong>Period:</strong> %s %d</p>
<p><strong>Statements (%d):</strong></p>
<table style="border-collapse:collapse;width:100%%">
<thead><tr style="background:#f3f4f6">
<th style="padding:8px;border:1px solid #e5e7eb;text-align:left">Institution</th>
<th style="padding:8px;border:1px solid #e5e7eb;text-align:left">Acct #</th>
<th style="padding:8px;border:1px solid #e5e7eb;text-align:left">Type</th>
<th style="padding:8px;border:1px solid #e5e7eb;text-align:left">File</th>
</tr></thead>
<tbody>%s</tbody>
</table>
<p style="margin-top:16px;color:#6b7280;font-size:14px">Log in to your dashboard to begin categorization.</p>
</div>`,
		html.EscapeString(n.ClientName),
		html.EscapeString(n.ClientEmail),
		html.EscapeString(n.CompanyName),
		n.Month, n.Year,
		len(n.Statements),
		rows.String(),
	)

	subject := fmt.Sprintf("%s — %s %d Statements Ready", n.CompanyName, n.Month, n.Year)
	return r.send(ctx, r.inbox, subject, body)
}

// SendCompletionNotice emails the client that their month is finished.
func (r *ResendNotifier) SendCompletionNotice(ctx context.Context, n Notification) error {
	name := n.ClientName
	if name == "" {
		name = "there"
	}
	body := fmt.Sprintf(`<div style="font-family:sans-serif;max-width:600px;margin:0 auto">
<h2 style="color:#991b1b">Your Bookkeeping is Complete!</h2>
<p>Hi %s,</p>
<p>Great news! Your bookkeeping for <strong>%s %d</strong> has been completed by the MyBookkeepers.com team.</p>
<p><strong>Company:</strong> %s</p>
<p><strong>Period:</strong> %s %d</p>
<p>If you have any questions, please don't hesitate to reach out.</p>
<p style="margin-top:24px">Thank you for choosing MyBookkeepers.com!</p>
<p style="margin-top:16px;color:#6b7280;font-size:14px">&mdash; The MyBookkeepers.com Team</p>
</div>`,
		html.EscapeString(name),
		n.Month, n.Year,
		html.EscapeString(n.CompanyName),
		n.Month, n.Year,
	)

	subject := fmt.Sprintf("Your bookkeeping for %s %d is complete — %s", n.Month, n.Year, n.CompanyName)
	return r.send(ctx, n.ClientEmail, subject, body)
}

func (r *ResendNotifier) send(ctx context.Context, to, subject, htmlBody string) error {
	if to == "" {
		return fmt.Errorf("no recipient address")
	}
	payload, err := json.Marshal(map[string]any{
		"from":    r.from,
		"to":      to,
		"subject": subject,
		"html":    htmlBody,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("resend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
