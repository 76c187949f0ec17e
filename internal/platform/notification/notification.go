// Package notification renders and delivers user notifications such as
// missed-dose reminders, and keeps a bounded in-memory history per user.
package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/coelhotv/meus-remedios/internal/platform/auth"
)

var (
	ErrTemplateNotFound = errors.New("notification template not found")
	ErrNotFound         = errors.New("notification not found")
	ErrNotFailed        = errors.New("notification is not in failed status")
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

const TemplateMissedDose = "missed-dose"

type Notification struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	TemplateID string            `json:"template_id,omitempty"`
	Subject    string            `json:"subject"`
	Body       string            `json:"body"`
	Data       map[string]string `json:"data,omitempty"`
	Status     string            `json:"status"`
	Error      string            `json:"error,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	SentAt     *time.Time        `json:"sent_at,omitempty"`
}

// Sender delivers a rendered notification over some channel.
type Sender interface {
	Send(ctx context.Context, n *Notification) error
}

// LogSender writes notifications to the log instead of delivering them.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) Send(_ context.Context, n *Notification) error {
	s.Logger.Info().
		Str("notification_id", n.ID).
		Str("user_id", n.UserID).
		Str("template", n.TemplateID).
		Str("subject", n.Subject).
		Msg(n.Body)
	return nil
}

// MultiSender delivers through every sender in order. Delivery fails when
// any sender fails; the errors are joined.
type MultiSender []Sender

func (m MultiSender) Send(ctx context.Context, n *Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Template struct {
	ID      string
	Subject string
	Body    string
}

// TemplateEngine renders {{key}} placeholders from a data map.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	e.Register(Template{
		ID:      TemplateMissedDose,
		Subject: "Dose perdida: {{medicine}}",
		Body:    "Você não registrou a dose de {{medicine}} das {{time}} ({{protocol}}).",
	})
	return e
}

func (e *TemplateEngine) Register(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = t
}

func (e *TemplateEngine) Render(id string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[id]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(t.Subject), r.Replace(t.Body), nil
}

// Manager sends notifications and remembers the most recent ones per user.
type Manager struct {
	sender    Sender
	templates *TemplateEngine
	keep      int
	now       func() time.Time

	mu      sync.RWMutex
	byID    map[string]*Notification
	history map[string][]string
}

func NewManager(sender Sender, templates *TemplateEngine, keepPerUser int) *Manager {
	if keepPerUser <= 0 {
		keepPerUser = 100
	}
	return &Manager{
		sender:    sender,
		templates: templates,
		keep:      keepPerUser,
		now:       time.Now,
		byID:      make(map[string]*Notification),
		history:   make(map[string][]string),
	}
}

func (m *Manager) deliver(ctx context.Context, n *Notification) error {
	err := m.sender.Send(ctx, n)
	if err != nil {
		n.Status = StatusFailed
		n.Error = err.Error()
		return err
	}
	sentAt := m.now().UTC()
	n.Status = StatusSent
	n.Error = ""
	n.SentAt = &sentAt
	return nil
}

func (m *Manager) store(n *Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[n.ID] = n
	ids := append(m.history[n.UserID], n.ID)
	if len(ids) > m.keep {
		for _, old := range ids[:len(ids)-m.keep] {
			delete(m.byID, old)
		}
		ids = ids[len(ids)-m.keep:]
	}
	m.history[n.UserID] = ids
}

// Send delivers n and records it whether or not delivery succeeded.
func (m *Manager) Send(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = m.now().UTC()
	n.Status = StatusPending
	err := m.deliver(ctx, n)
	m.store(n)
	return err
}

func (m *Manager) SendFromTemplate(ctx context.Context, userID, templateID string, data map[string]string) (*Notification, error) {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, err
	}
	n := &Notification{UserID: userID, TemplateID: templateID, Subject: subject, Body: body, Data: data}
	return n, m.Send(ctx, n)
}

func (m *Manager) Get(userID, id string) (*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.byID[id]
	if !ok || n.UserID != userID {
		return nil, ErrNotFound
	}
	return n, nil
}

// ListByUser returns up to limit notifications, newest first.
func (m *Manager) ListByUser(userID string, limit int) []*Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.history[userID]
	out := make([]*Notification, 0, min(len(ids), max(limit, 0)))
	for i := len(ids) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.byID[ids[i]])
	}
	return out
}

// Retry re-sends a failed notification.
func (m *Manager) Retry(ctx context.Context, userID, id string) (*Notification, error) {
	n, err := m.Get(userID, id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	if n.Status != StatusFailed {
		m.mu.Unlock()
		return nil, ErrNotFailed
	}
	n.Status = StatusPending
	m.mu.Unlock()

	err = m.deliver(ctx, n)
	return n, err
}

type Handler struct {
	mgr *Manager
}

func NewHandler(mgr *Manager) *Handler {
	return &Handler{mgr: mgr}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/notifications", h.List)
	api.POST("/notifications/:id/retry", h.Retry)
}

func (h *Handler) List(c echo.Context) error {
	uid, err := auth.RequireUser(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.mgr.ListByUser(uid, 50))
}

func (h *Handler) Retry(c echo.Context) error {
	uid, err := auth.RequireUser(c)
	if err != nil {
		return err
	}
	n, err := h.mgr.Retry(c.Request().Context(), uid, c.Param("id"))
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotFailed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, n)
}
