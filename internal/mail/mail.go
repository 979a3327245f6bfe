package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"log"
	"strconv"

	gomail "github.com/wneessen/go-mail"

	"github.com/shopspring/decimal"
	"github.com/twojapodobizna/api/internal/config"
	"github.com/twojapodobizna/api/internal/database"
)

// Mailer sends transactional mail for orders and contact messages. Without
// SMTP configuration it degrades to logging, so local development never
// needs a mail server.
type Mailer struct {
	client *gomail.Client
	from   string
	admin  string
}

// New builds a Mailer from the SMTP settings in cfg. A missing SMTP_HOST
// leaves the client nil and every send becomes a log line.
func New(cfg *config.Config) *Mailer {
	m := &Mailer{from: cfg.MailFrom, admin: cfg.MailAdmin}
	if cfg.SMTPHost == "" {
		log.Println("mail: SMTP_HOST not set, falling back to log output")
		return m
	}

	port, err := strconv.Atoi(cfg.SMTPPort)
	if err != nil {
		port = 587
	}
	opts := []gomail.Option{gomail.WithPort(port)}
	if cfg.SMTPUser != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.SMTPUser),
			gomail.WithPassword(cfg.SMTPPass),
		)
	}
	client, err := gomail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		log.Printf("ERROR: mail client setup failed, falling back to log output: %v", err)
		return m
	}
	m.client = client
	return m
}

// OrderConfirmation mails the customer their order summary and status link,
// with an optional copy to MAIL_ADMIN. Failures are logged, never returned;
// the order already exists and must not be affected by mail trouble.
func (m *Mailer) OrderConfirmation(order database.Order, items []database.OrderItem, statusURL string) {
	data := orderMailData{
		ID:        order.ID.String(),
		Status:    string(order.Status),
		Subtotal:  pln(order.Subtotal),
		StatusURL: statusURL,
		Items:     make([]itemMailData, 0, len(items)),
	}
	for _, it := range items {
		data.Items = append(data.Items, itemMailData{
			Title:     it.Title,
			Qty:       it.Qty,
			UnitPrice: pln(it.UnitPrice),
			LinePrice: pln(it.UnitPrice * int64(it.Qty)),
		})
	}

	subject := fmt.Sprintf("Potwierdzenie zamówienia %s", shortID(data.ID))
	m.send(order.Email, subject, confirmationTmpl, data)
	if m.admin != "" {
		m.send(m.admin, "Nowe zamówienie "+shortID(data.ID), adminCopyTmpl, data)
	}
}

// StatusUpdate mails the customer when an admin moves their order.
func (m *Mailer) StatusUpdate(order database.Order, statusURL string) {
	data := orderMailData{
		ID:        order.ID.String(),
		Status:    string(order.Status),
		Subtotal:  pln(order.Subtotal),
		StatusURL: statusURL,
	}
	subject := fmt.Sprintf("Zamówienie %s: %s", shortID(data.ID), data.Status)
	m.send(order.Email, subject, statusTmpl, data)
}

// ContactNotification forwards a contact form message to MAIL_ADMIN.
func (m *Mailer) ContactNotification(email, message string) {
	if m.admin == "" {
		return
	}
	m.send(m.admin, "Nowa wiadomość z formularza kontaktowego", contactTmpl, contactMailData{
		Email:   email,
		Message: message,
	})
}

func (m *Mailer) send(to, subject string, tmpl *template.Template, data any) {
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		log.Printf("ERROR: mail template %s: %v", tmpl.Name(), err)
		return
	}

	if m.client == nil {
		log.Printf("mail (dev): to=%s subject=%q", to, subject)
		return
	}

	msg := gomail.NewMsg()
	if err := msg.From(m.from); err != nil {
		log.Printf("ERROR: mail from %q: %v", m.from, err)
		return
	}
	if err := msg.To(to); err != nil {
		log.Printf("ERROR: mail to %q: %v", to, err)
		return
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, body.String())

	if err := m.client.DialAndSend(msg); err != nil {
		log.Printf("ERROR: mail send to %s: %v", to, err)
	}
}

// pln renders grosze as a PLN amount with two decimals.
func pln(grosze int64) string {
	return decimal.NewFromInt(grosze).Div(decimal.NewFromInt(100)).StringFixed(2) + " zł"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type orderMailData struct {
	ID        string
	Status    string
	Subtotal  string
	StatusURL string
	Items     []itemMailData
}

type itemMailData struct {
	Title     string
	Qty       int32
	UnitPrice string
	LinePrice string
}

type contactMailData struct {
	Email   string
	Message string
}

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`<html><body>
<h2>Dziękujemy za zamówienie!</h2>
<p>Numer zamówienia: <strong>{{.ID}}</strong></p>
{{if .Items}}<table border="0" cellpadding="4">
<tr><th align="left">Produkt</th><th align="right">Ilość</th><th align="right">Cena</th></tr>
{{range .Items}}<tr><td>{{.Title}}</td><td align="right">{{.Qty}}</td><td align="right">{{.LinePrice}}</td></tr>
{{end}}</table>{{end}}
<p>Razem: <strong>{{.Subtotal}}</strong></p>
{{if .StatusURL}}<p>Status zamówienia: <a href="{{.StatusURL}}">{{.StatusURL}}</a></p>{{end}}
</body></html>`))

var adminCopyTmpl = template.Must(template.New("admin-copy").Parse(`<html><body>
<h2>Nowe zamówienie {{.ID}}</h2>
<p>Status: {{.Status}}, razem: {{.Subtotal}}</p>
{{if .Items}}<ul>{{range .Items}}<li>{{.Title}} × {{.Qty}} ({{.LinePrice}})</li>{{end}}</ul>{{end}}
</body></html>`))

var statusTmpl = template.Must(template.New("status").Parse(`<html><body>
<p>Status Twojego zamówienia <strong>{{.ID}}</strong> zmienił się na: <strong>{{.Status}}</strong>.</p>
{{if .StatusURL}}<p>Szczegóły: <a href="{{.StatusURL}}">{{.StatusURL}}</a></p>{{end}}
</body></html>`))

var contactTmpl = template.Must(template.New("contact").Parse(`<html><body>
<p>Od: {{.Email}}</p>
<blockquote>{{.Message}}</blockquote>
</body></html>`))
