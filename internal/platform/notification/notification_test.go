package notification

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

// ---------- Template engine ----------

func TestTemplateEngine_RenderBuiltIn(t *testing.T) {
	e := NewTemplateEngine()

	subject, body, err := e.Render(TemplateAvailabilityAlert, map[string]string{
		"provider_name": "Example Clinic",
		"booking_url":   "https://book.example.org",
		"dashboard_url": "https://dash.example.org",
		"availability":  "Clinic A\n - Mar 10 - 5 appointments (+5)",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	if subject != "Alert: New Appointments Available on Example Clinic" {
		t.Errorf("unexpected subject: %q", subject)
	}
	for _, want := range []string{"https://book.example.org", "https://dash.example.org", "Clinic A"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "{{") {
		t.Errorf("unreplaced placeholder left in body:\n%s", body)
	}
}

func TestTemplateEngine_UnknownTemplate(t *testing.T) {
	e := NewTemplateEngine()
	if _, _, err := e.Render("no-such-template", nil); err == nil {
		t.Fatal("want error for unknown template")
	}
}

func TestTemplateEngine_MissingKeysLeftAsIs(t *testing.T) {
	e := NewTemplateEngine()
	_, body, err := e.Render(TemplateAvailabilityAlert, map[string]string{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(body, "{{booking_url}}") {
		t.Error("absent keys should stay as placeholders")
	}
}

func TestTemplateEngine_RegisterOverrides(t *testing.T) {
	e := NewTemplateEngine()
	e.RegisterTemplate(Template{ID: TemplateAvailabilityAlert, Subject: "custom", Body: "custom body"})

	subject, body, err := e.Render(TemplateAvailabilityAlert, nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if subject != "custom" || body != "custom body" {
		t.Errorf("override not applied: %q / %q", subject, body)
	}
}

// ---------- Notifier ----------

func TestNotifier_SendRecordsHistory(t *testing.T) {
	sender := &MockEmailSender{}
	n := NewNotifier(sender, NewTemplateEngine())

	a := &Alert{Recipient: "ops@example.org", Subject: "s", Body: "b"}
	if err := n.Send(context.Background(), a); err != nil {
		t.Fatalf("send: %v", err)
	}

	if a.Status != "sent" || a.SentAt == nil {
		t.Errorf("alert not marked sent: %+v", a)
	}
	stored, err := n.Get(a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Recipient != "ops@example.org" {
		t.Errorf("stored alert mismatch: %+v", stored)
	}
	if calls := sender.Calls(); len(calls) != 1 || calls[0].To != "ops@example.org" {
		t.Errorf("unexpected sender calls: %+v", calls)
	}
}

func TestNotifier_RetriesThenFails(t *testing.T) {
	sender := &MockEmailSender{ShouldFail: true, FailError: "smtp down"}
	n := NewNotifier(sender, NewTemplateEngine())

	a := &Alert{Recipient: "ops@example.org", Subject: "s", Body: "b"}
	if err := n.Send(context.Background(), a); err == nil {
		t.Fatal("want error when every attempt fails")
	}

	if got := len(sender.Calls()); got != MaxSendAttempts {
		t.Errorf("want %d attempts, got %d", MaxSendAttempts, got)
	}
	if a.Status != "failed" || a.Error == "" {
		t.Errorf("alert not marked failed: %+v", a)
	}
}

func TestNotifier_SendFromTemplate(t *testing.T) {
	sender := &MockEmailSender{}
	n := NewNotifier(sender, NewTemplateEngine())

	a, err := n.SendFromTemplate(context.Background(), TemplateAvailabilityAlert, map[string]string{
		"provider_name": "Example Clinic",
	}, "ops@example.org")
	if err != nil {
		t.Fatalf("send from template: %v", err)
	}

	if !strings.Contains(a.Subject, "Example Clinic") {
		t.Errorf("rendered subject expected, got %q", a.Subject)
	}
	if a.TemplateID != TemplateAvailabilityAlert {
		t.Errorf("template id not recorded: %+v", a)
	}
}

func TestNotifier_Stats(t *testing.T) {
	sender := &MockEmailSender{}
	n := NewNotifier(sender, NewTemplateEngine())
	ctx := context.Background()

	if err := n.Send(ctx, &Alert{Recipient: "a@example.org"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := n.Send(ctx, &Alert{Recipient: "b@example.org"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	stats := n.Stats()
	if stats["sent"] != 2 || stats["total"] != 2 || stats["failed"] != 0 {
		t.Errorf("unexpected stats: %v", stats)
	}
}

func TestNotifier_RecentNewestFirst(t *testing.T) {
	n := NewNotifier(&MockEmailSender{}, NewTemplateEngine())
	ctx := context.Background()

	for _, r := range []string{"a@example.org", "b@example.org", "c@example.org"} {
		if err := n.Send(ctx, &Alert{Recipient: r}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	recent := n.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("want 2 alerts, got %d", len(recent))
	}
	if recent[0].CreatedAt.Before(recent[1].CreatedAt) {
		t.Error("recent alerts must be newest first")
	}
}

// ---------- HTTP handlers ----------

func alertServer(n *Notifier) *echo.Echo {
	e := echo.New()
	NewHandler(n).RegisterRoutes(e.Group("/admin"))
	return e
}

func TestHandler_ListAndGet(t *testing.T) {
	n := NewNotifier(&MockEmailSender{}, NewTemplateEngine())
	a := &Alert{Recipient: "ops@example.org", Subject: "s"}
	if err := n.Send(context.Background(), a); err != nil {
		t.Fatalf("send: %v", err)
	}

	e := alertServer(n)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/alerts", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), a.ID) {
		t.Errorf("list: code %d body %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/alerts/"+a.ID, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("get: want 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/alerts/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("get unknown: want 404, got %d", rec.Code)
	}
}

func TestHandler_Stats(t *testing.T) {
	n := NewNotifier(&MockEmailSender{}, NewTemplateEngine())
	e := alertServer(n)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/alerts/stats", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "total") {
		t.Errorf("stats: code %d body %s", rec.Code, rec.Body.String())
	}
}
