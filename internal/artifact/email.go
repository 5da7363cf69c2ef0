package artifact

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"
)

// Branding is the studio identity printed on tickets and emails.
type Branding struct {
	StudioName   string
	StudioURL    string
	SupportEmail string
	// TimeZone is an IANA name used for show dates. Empty means UTC.
	TimeZone string
}

func (b Branding) location() *time.Location {
	if b.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(b.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type emailTicket struct {
	Code    string
	Section string
	Row     string
	Number  uint32
	PDFURL  string
}

type confirmationData struct {
	Brand        Branding
	CustomerName string
	OrderNumber  string
	ShowTitle    string
	VenueName    string
	ShowDate     string
	ShowTime     string
	Total        string
	Tickets      []emailTicket
}

type refundData struct {
	Brand        Branding
	CustomerName string
	OrderNumber  string
	ShowTitle    string
	Amount       string
	FullRefund   bool
}

var confirmationHTML = htmltemplate.Must(htmltemplate.New("confirmation").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Helvetica, Arial, sans-serif; color: #212529;">
  <h1 style="margin-bottom: 4px;">{{.Brand.StudioName}}</h1>
  <p>Hi {{.CustomerName}},</p>
  <p>Thank you for your order. Your tickets for <strong>{{.ShowTitle}}</strong> are ready.</p>
  <table cellpadding="4">
    <tr><td>Order</td><td>{{.OrderNumber}}</td></tr>
    <tr><td>Date</td><td>{{.ShowDate}}</td></tr>
    <tr><td>Time</td><td>{{.ShowTime}}</td></tr>
    <tr><td>Venue</td><td>{{.VenueName}}</td></tr>
    <tr><td>Total</td><td>{{.Total}}</td></tr>
  </table>
  <h2>Your seats</h2>
  <table cellpadding="4" border="1" style="border-collapse: collapse;">
    <tr><th>Section</th><th>Row</th><th>Seat</th><th>Ticket</th><th></th></tr>
    {{- range .Tickets}}
    <tr>
      <td>{{.Section}}</td><td>{{.Row}}</td><td>{{.Number}}</td><td><code>{{.Code}}</code></td>
      <td>{{if .PDFURL}}<a href="{{.PDFURL}}">Download PDF</a>{{end}}</td>
    </tr>
    {{- end}}
  </table>
  <p>Show the QR code on each ticket at the door.</p>
  <p style="color: #6c757d; font-size: 12px;">Questions? Write to {{.Brand.SupportEmail}}{{if .Brand.StudioURL}} or visit <a href="{{.Brand.StudioURL}}">{{.Brand.StudioURL}}</a>{{end}}.</p>
</body>
</html>
`))

var confirmationText = texttemplate.Must(texttemplate.New("confirmation").Parse(`{{.Brand.StudioName}}

Hi {{.CustomerName}},

Thank you for your order. Your tickets for {{.ShowTitle}} are ready.

Order: {{.OrderNumber}}
Date:  {{.ShowDate}}
Time:  {{.ShowTime}}
Venue: {{.VenueName}}
Total: {{.Total}}

Your seats:
{{range .Tickets}}- Section {{.Section}}, row {{.Row}}, seat {{.Number}}: {{.Code}}{{if .PDFURL}}
  {{.PDFURL}}{{end}}
{{end}}
Show the QR code on each ticket at the door.

Questions? Write to {{.Brand.SupportEmail}}.
`))

var refundHTML = htmltemplate.Must(htmltemplate.New("refund").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Helvetica, Arial, sans-serif; color: #212529;">
  <h1>{{.Brand.StudioName}}</h1>
  <p>Hi {{.CustomerName}},</p>
  <p>We have issued a refund of <strong>{{.Amount}}</strong> for order {{.OrderNumber}} ({{.ShowTitle}}).</p>
  {{if .FullRefund}}<p>Your tickets for this order are no longer valid.</p>{{end}}
  <p>Depending on your bank it can take a few days to appear on your statement.</p>
  <p style="color: #6c757d; font-size: 12px;">Questions? Write to {{.Brand.SupportEmail}}.</p>
</body>
</html>
`))

var refundText = texttemplate.Must(texttemplate.New("refund").Parse(`{{.Brand.StudioName}}

Hi {{.CustomerName}},

We have issued a refund of {{.Amount}} for order {{.OrderNumber}} ({{.ShowTitle}}).
{{if .FullRefund}}Your tickets for this order are no longer valid.
{{end}}
Depending on your bank it can take a few days to appear on your statement.

Questions? Write to {{.Brand.SupportEmail}}.
`))

func render(html *htmltemplate.Template, text *texttemplate.Template, data any) (string, string, error) {
	var h, t bytes.Buffer
	if err := html.Execute(&h, data); err != nil {
		return "", "", fmt.Errorf("render %s html: %w", html.Name(), err)
	}
	if err := text.Execute(&t, data); err != nil {
		return "", "", fmt.Errorf("render %s text: %w", text.Name(), err)
	}
	return h.String(), t.String(), nil
}

// formatCents renders an amount in dollars, e.g. 4500 -> "$45.00".
func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign, cents = "-", -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
