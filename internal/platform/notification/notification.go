// Package notification delivers availability alert emails with template
// rendering, in-memory delivery history, retry logic, and Echo HTTP handlers
// for inspecting what was sent.
package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/smtp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// Alert
// ---------------------------------------------------------------------------

// Alert represents one outbound alert email.
type Alert struct {
	ID           string            `json:"id"`
	Recipient    string            `json:"recipient"`
	Subject      string            `json:"subject"`
	Body         string            `json:"body"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	Status       string            `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// ---------------------------------------------------------------------------
// Sender interface and implementations
// ---------------------------------------------------------------------------

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMTPSender sends mail through a plain SMTP endpoint.
type SMTPSender struct {
	Addr string // host:port
	From string
}

// SendEmail delivers one message via SMTP.
func (s *SMTPSender) SendEmail(_ context.Context, to, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + s.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	if err := smtp.SendMail(s.Addr, nil, s.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// ---------------------------------------------------------------------------
// Template engine
// ---------------------------------------------------------------------------

// TemplateAvailabilityAlert is the built-in alert template id.
const TemplateAvailabilityAlert = "availability-alert"

// Template defines a reusable alert template.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine manages alert templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates
// pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	e.RegisterTemplate(Template{
		ID:      TemplateAvailabilityAlert,
		Name:    "Availability Alert",
		Subject: "Alert: New Appointments Available on {{provider_name}}",
		Body: "To book any of these appointments head over to {{booking_url}}.\n\n" +
			"{{availability}}\n\n" +
			"Visit {{dashboard_url}} for a snapshot of availability.",
	})
	return e
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are
// left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// Notifier
// ---------------------------------------------------------------------------

// MaxSendAttempts bounds delivery retries per alert.
const MaxSendAttempts = 3

// Notifier orchestrates rendering, sending, and in-memory history of alerts.
type Notifier struct {
	sender    EmailSender
	templates *TemplateEngine
	mu        sync.RWMutex
	alerts    map[string]*Alert
}

// NewNotifier constructs a Notifier.
func NewNotifier(sender EmailSender, templates *TemplateEngine) *Notifier {
	return &Notifier{
		sender:    sender,
		templates: templates,
		alerts:    make(map[string]*Alert),
	}
}

// Send dispatches an alert, retrying transient failures up to
// MaxSendAttempts, and records the outcome.
func (n *Notifier) Send(ctx context.Context, a *Alert) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = time.Now().UTC()
	a.Status = "pending"

	var sendErr error
	for attempt := 1; attempt <= MaxSendAttempts; attempt++ {
		sendErr = n.sender.SendEmail(ctx, a.Recipient, a.Subject, a.Body)
		if sendErr == nil {
			break
		}
		if ctx.Err() != nil {
			sendErr = ctx.Err()
			break
		}
	}

	if sendErr != nil {
		a.Status = "failed"
		a.Error = sendErr.Error()
	} else {
		a.Status = "sent"
		sentAt := time.Now().UTC()
		a.SentAt = &sentAt
	}

	n.mu.Lock()
	n.alerts[a.ID] = a
	n.mu.Unlock()

	return sendErr
}

// SendFromTemplate renders a template and sends the resulting alert.
func (n *Notifier) SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*Alert, error) {
	subject, body, err := n.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	a := &Alert{
		Recipient:    recipient,
		Subject:      subject,
		Body:         body,
		TemplateID:   templateID,
		TemplateData: data,
	}
	if err := n.Send(ctx, a); err != nil {
		return a, err
	}
	return a, nil
}

// Get retrieves an alert by ID.
func (n *Notifier) Get(id string) (*Alert, error) {
	n.mu.RLock()
	a, ok := n.alerts[id]
	n.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("alert %q not found", id)
	}
	return a, nil
}

// Recent returns up to limit alerts, newest first.
func (n *Notifier) Recent(limit int) []*Alert {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]*Alert, 0, len(n.alerts))
	for _, a := range n.alerts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Stats returns alert counts by status.
func (n *Notifier) Stats() map[string]int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	stats := map[string]int{"sent": 0, "failed": 0, "total": 0}
	for _, a := range n.alerts {
		stats[a.Status]++
		stats["total"]++
	}
	return stats
}

// ---------------------------------------------------------------------------
// HTTP handlers
// ---------------------------------------------------------------------------

// Handler exposes alert history over HTTP.
type Handler struct {
	notifier *Notifier
}

// NewHandler constructs a Handler.
func NewHandler(n *Notifier) *Handler {
	return &Handler{notifier: n}
}

// RegisterRoutes mounts the alert endpoints on g.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/alerts", h.HandleList)
	g.GET("/alerts/stats", h.HandleStats)
	g.GET("/alerts/:id", h.HandleGet)
}

// HandleList returns recent alerts.
func (h *Handler) HandleList(c echo.Context) error {
	return c.JSON(http.StatusOK, h.notifier.Recent(50))
}

// HandleGet returns one alert by id.
func (h *Handler) HandleGet(c echo.Context) error {
	a, err := h.notifier.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

// HandleStats returns alert counts by status.
func (h *Handler) HandleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.notifier.Stats())
}
