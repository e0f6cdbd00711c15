// Package contact handles the waitlist form: validation, a record of each
// submission, delivery to the form collector and a lead event.
package contact

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/mail"
	"sort"
	"strings"
	"time"

	"coralbricks/internal/config"
	"coralbricks/internal/models"
)

var ErrDeliveryFailed = errors.New("contact form delivery failed")

// Form is the visitor's input.
type Form struct {
	Name    string `json:"name" form:"name"`
	Email   string `json:"email" form:"email"`
	Company string `json:"company" form:"company"`
	Phone   string `json:"phone" form:"phone"`
	Message string `json:"message" form:"message"`
}

// ValidationError maps field names to messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid contact form: " + strings.Join(parts, ", ")
}

// Normalize trims every field.
func (f Form) Normalize() Form {
	return Form{
		Name:    strings.TrimSpace(f.Name),
		Email:   strings.TrimSpace(f.Email),
		Company: strings.TrimSpace(f.Company),
		Phone:   strings.TrimSpace(f.Phone),
		Message: strings.TrimSpace(f.Message),
	}
}

// Validate requires a name, a parseable email and a message.
func (f Form) Validate() error {
	f = f.Normalize()
	fields := map[string]string{}
	if f.Name == "" {
		fields["name"] = "Name is required"
	}
	if f.Email == "" {
		fields["email"] = "Email is required"
	} else if addr, err := mail.ParseAddress(f.Email); err != nil || addr.Address != f.Email {
		fields["email"] = "Enter a valid email address"
	}
	if f.Message == "" {
		fields["message"] = "Message is required"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Service submits contact forms.
type Service struct {
	db        *sql.DB
	formURL   string
	client    *http.Client
	publisher Publisher
}

// NewService builds a contact service. db and publisher may be nil.
func NewService(db *sql.DB, cfg config.ContactConfig, publisher Publisher) *Service {
	return &Service{
		db:        db,
		formURL:   cfg.FormURL,
		client:    &http.Client{Timeout: cfg.Timeout()},
		publisher: publisher,
	}
}

// Submit validates the form and sends it to the collector exactly once.
// Storage and the lead event are best effort.
func (s *Service) Submit(ctx context.Context, form Form) (*models.ContactSubmission, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}
	form = form.Normalize()
	sub := &models.ContactSubmission{
		Name:      form.Name,
		Email:     form.Email,
		Company:   form.Company,
		Phone:     form.Phone,
		Message:   form.Message,
		CreatedAt: time.Now().UTC(),
	}
	s.record(ctx, sub)

	if s.formURL != "" {
		if err := s.deliver(ctx, form); err != nil {
			log.Printf("[contact] delivery failed for %s: %v", sub.Email, err)
			return sub, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
		}
		sub.Delivered = true
		s.markDelivered(ctx, sub)
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, NewSubmittedEvent(sub)); err != nil {
			log.Printf("[contact] publish lead event: %v", err)
		}
	}
	return sub, nil
}

func (s *Service) deliver(ctx context.Context, form Form) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, field := range [][2]string{
		{"name", form.Name},
		{"email", form.Email},
		{"company", form.Company},
		{"phone", form.Phone},
		{"message", form.Message},
	} {
		if err := w.WriteField(field[0], field[1]); err != nil {
			return fmt.Errorf("write field %s: %w", field[0], err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.formURL, &body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("collector responded %s", resp.Status)
	}
	return nil
}

func (s *Service) record(ctx context.Context, sub *models.ContactSubmission) {
	if s.db == nil {
		return
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO contact_submissions (name, email, company, phone, message, delivered, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.Name, sub.Email, sub.Company, sub.Phone, sub.Message, false, sub.CreatedAt,
	)
	if err != nil {
		log.Printf("[contact] store submission: %v", err)
		return
	}
	if id, err := res.LastInsertId(); err == nil {
		sub.ID = id
	}
}

func (s *Service) markDelivered(ctx context.Context, sub *models.ContactSubmission) {
	if s.db == nil || sub.ID == 0 {
		return
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE contact_submissions SET delivered = ? WHERE id = ?`, true, sub.ID); err != nil {
		log.Printf("[contact] mark submission %d delivered: %v", sub.ID, err)
	}
}
