package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"time"
)

type Mailer interface {
	SendOrderPaid(ctx context.Context, evt Event) error
}

func Subject(evt Event) string {
	return fmt.Sprintf("Order nr. %d", evt.OrderID)
}

var orderPaidTemplate = template.Must(template.New("order_paid").Parse(`<p>Dear {{.BuyerName}},</p>
<p>You have successfully placed an order. Your order id is {{.OrderID}}.</p>
<ul>
{{- range .Lines}}
<li>{{.Title}} x {{.Count}}: {{.Price.StringFixed 2}}</li>
{{- end}}
</ul>
<p>Total: {{.TotalCost.StringFixed 2}}</p>`))

func RenderOrderPaid(evt Event) (string, error) {
	var buf bytes.Buffer
	if err := orderPaidTemplate.Execute(&buf, evt); err != nil {
		return "", fmt.Errorf("render order email: %w", err)
	}
	return buf.String(), nil
}

type ResendMailer struct {
	apiKey  string
	from    string
	client  *http.Client
	baseURL string
}

func NewResendMailer(apiKey, from, baseURL string) (*ResendMailer, error) {
	if apiKey == "" {
		return nil, errors.New("RESEND_API_KEY not set")
	}

	return &ResendMailer{
		apiKey: apiKey,
		from:   from,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		baseURL: baseURL,
	}, nil
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (m *ResendMailer) SendOrderPaid(ctx context.Context, evt Event) error {
	html, err := RenderOrderPaid(evt)
	if err != nil {
		return err
	}

	b, err := json.Marshal(sendRequest{
		From:    m.from,
		To:      []string{evt.BuyerEmail},
		Subject: Subject(evt),
		HTML:    html,
	})
	if err != nil {
		return fmt.Errorf("encode email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/emails", bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("send email: status %d: %s", resp.StatusCode, body)
	}

	return nil
}

type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendOrderPaid(ctx context.Context, evt Event) error {
	m.logger.InfoContext(ctx, "order email",
		"to", evt.BuyerEmail,
		"subject", Subject(evt),
		"order_id", evt.OrderID,
		"total", evt.TotalCost.StringFixed(2),
	)
	return nil
}
