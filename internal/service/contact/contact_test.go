package contact

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coralbricks/internal/config"
	"coralbricks/internal/models"
	"coralbricks/internal/storage"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}}}
	db, err := storage.Open("sqlite3", cfg)
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(db, "sqlite3"))
	t.Cleanup(func() { db.Close() })
	return db
}

func validForm() Form {
	return Form{Name: " Ada ", Email: "ada@example.com", Company: "Engines", Message: "Put me on the list"}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validForm().Validate())

	err := Form{Email: "nope"}.Validate()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Fields, 3)
	assert.Contains(t, verr.Fields, "name")
	assert.Equal(t, "Enter a valid email address", verr.Fields["email"])
	assert.Contains(t, verr.Error(), "message: Message is required")

	err = Form{Name: "x", Email: "Ada <ada@example.com>", Message: "m"}.Validate()
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "email")
}

func TestSubmitSendsExactlyOneRequest(t *testing.T) {
	var hits int32
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		got = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			got[k] = v[0]
		}
		_, _ = w.Write([]byte(`{"result":"success"}`))
	}))
	defer srv.Close()

	db := openTestDB(t)
	pub := &recordingPublisher{}
	svc := NewService(db, config.ContactConfig{FormURL: srv.URL, TimeoutSeconds: 5}, pub)

	sub, err := svc.Submit(context.Background(), validForm())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, "Ada", got["name"])
	assert.Equal(t, "ada@example.com", got["email"])
	assert.Equal(t, "", got["phone"])
	assert.True(t, sub.Delivered)
	assert.NotZero(t, sub.ID)

	var delivered bool
	require.NoError(t, db.QueryRow(`SELECT delivered FROM contact_submissions WHERE id = ?`, sub.ID).Scan(&delivered))
	assert.True(t, delivered)

	require.Len(t, pub.events, 1)
	assert.Equal(t, EventSubmitted, pub.events[0].Type)
	assert.Equal(t, "Ada", pub.events[0].Submission.Name)
}

func TestSubmitInvalidFormSendsNothing(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	db := openTestDB(t)
	svc := NewService(db, config.ContactConfig{FormURL: srv.URL}, nil)
	form := validForm()
	form.Message = "   "
	_, err := svc.Submit(context.Background(), form)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Zero(t, atomic.LoadInt32(&hits))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM contact_submissions`).Scan(&count))
	assert.Zero(t, count)
}

func TestSubmitDeliveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	pub := &recordingPublisher{}
	svc := NewService(nil, config.ContactConfig{FormURL: srv.URL}, pub)
	_, err := svc.Submit(context.Background(), validForm())
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Empty(t, pub.events)

	srv.Close()
	_, err = svc.Submit(context.Background(), validForm())
	assert.ErrorIs(t, err, ErrDeliveryFailed)
}

func TestSubmitIgnoresClientErrorsAndPublisherFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	svc := NewService(nil, config.ContactConfig{FormURL: srv.URL}, &recordingPublisher{err: errors.New("broker down")})
	sub, err := svc.Submit(context.Background(), validForm())
	require.NoError(t, err)
	assert.True(t, sub.Delivered)
}

func TestSubmitWithoutCollectorStoresOnly(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, config.ContactConfig{}, nil)
	sub, err := svc.Submit(context.Background(), validForm())
	require.NoError(t, err)
	assert.False(t, sub.Delivered)
	assert.NotZero(t, sub.ID)
}

func TestRabbitPublisher(t *testing.T) {
	url := os.Getenv("TEST_RABBITMQ_URL")
	if url == "" {
		t.Skip("set TEST_RABBITMQ_URL to run rabbitmq-backed contact tests")
	}
	queue := "coralbricks.contact.test"
	pub, err := NewRabbitPublisher(config.RabbitMQConfig{URL: url, Queue: queue})
	require.NoError(t, err)
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sub := validForm()
	require.NoError(t, pub.Publish(ctx, NewSubmittedEvent(&models.ContactSubmission{Name: sub.Name, Email: sub.Email})))

	msg, ok, err := pub.ch.Get(queue, true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, EventSubmitted, msg.Type)
	assert.Contains(t, string(msg.Body), `"email":"ada@example.com"`)
}
