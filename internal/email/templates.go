package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"leadgen_backend/internal/delivery"
)

//go:embed templates/*.html
var templateFS embed.FS

const subjectLeadNotificationFmt = "New lead #%d from %s"

type baseEmailData struct {
	Title   string
	Heading string
}

type leadNotificationData struct {
	baseEmailData
	LeadID     int64
	Name       string
	Email      string
	Phone      string
	Location   string
	Message    string
	Source     string
	ReceivedAt string
}

// renderLeadNotification builds the subject and HTML body for one
// delivered lead.
func renderLeadNotification(p delivery.Payload) (string, string, error) {
	location := p.Location.PostalCode
	if p.Location.City != "" {
		if location != "" {
			location += " "
		}
		location += p.Location.City
	}

	data := leadNotificationData{
		baseEmailData: baseEmailData{
			Title:   "New lead",
			Heading: "New lead",
		},
		LeadID:     p.LeadID,
		Name:       p.Contact.Name,
		Email:      p.Contact.Email,
		Phone:      p.Contact.Phone,
		Location:   location,
		Message:    p.Message,
		Source:     p.Source,
		ReceivedAt: p.Timestamp,
	}

	content, err := renderEmailTemplate("lead_notification.html", data)
	if err != nil {
		return "", "", err
	}
	subject := fmt.Sprintf(subjectLeadNotificationFmt, p.LeadID, p.Source)
	return subject, content, nil
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}
