package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/zackweld/crAPI/internal/devotp"
)

func testJob() OTPJob {
	return OTPJob{
		RequestID: "req-1",
		UserID:    "user-1",
		Email:     "victim@example.com",
		Name:      "Victim",
		OTP:       "4821",
		ExpiresAt: time.Now().Add(10 * time.Minute).UTC(),
		CreatedAt: time.Now().UTC(),
	}
}

func TestOTPJob_Validate(t *testing.T) {
	if err := testJob().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	for _, mutate := range []func(*OTPJob){
		func(j *OTPJob) { j.UserID = "" },
		func(j *OTPJob) { j.Email = "" },
		func(j *OTPJob) { j.OTP = "" },
	} {
		j := testJob()
		mutate(&j)
		if err := j.Validate(); !errors.Is(err, ErrInvalidJob) {
			t.Errorf("Validate(%+v) = %v, want ErrInvalidJob", j, err)
		}
	}
}

func TestDecodeJob(t *testing.T) {
	raw, _ := json.Marshal(testJob())
	j, err := DecodeJob(raw)
	if err != nil {
		t.Fatalf("DecodeJob: %v", err)
	}
	if j.OTP != "4821" || j.Email != "victim@example.com" {
		t.Errorf("job = %+v", j)
	}
	if _, err := DecodeJob([]byte("{")); err == nil {
		t.Error("DecodeJob should reject malformed JSON")
	}
	if _, err := DecodeJob([]byte(`{"user_id":"u"}`)); !errors.Is(err, ErrInvalidJob) {
		t.Errorf("DecodeJob incomplete = %v, want ErrInvalidJob", err)
	}
}

func TestEmailClient_SendOTP(t *testing.T) {
	var got sendEmailRequest
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("api-key")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewEmailClient("key-123", srv.URL, "no-reply@crapi.local", "crAPI")
	if err := c.SendOTP(context.Background(), testJob()); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	if apiKey != "key-123" {
		t.Errorf("api-key header = %q", apiKey)
	}
	if len(got.To) != 1 || got.To[0].Email != "victim@example.com" {
		t.Errorf("to = %+v", got.To)
	}
	if got.Sender.Email != "no-reply@crapi.local" || got.Subject == "" {
		t.Errorf("request = %+v", got)
	}
	if !strings.Contains(got.HTMLContent, "4821") || !strings.Contains(got.HTMLContent, "Victim") {
		t.Errorf("html = %q", got.HTMLContent)
	}
}

func TestEmailClient_Errors(t *testing.T) {
	if err := NewEmailClient("", "", "a@b", "").SendOTP(context.Background(), testJob()); !errors.Is(err, ErrEmailNotConfigured) {
		t.Errorf("no api key err = %v, want ErrEmailNotConfigured", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad sender", http.StatusBadRequest)
	}))
	defer srv.Close()
	err := NewEmailClient("key", srv.URL, "a@b", "").SendOTP(context.Background(), testJob())
	if err == nil || !strings.Contains(err.Error(), "status=400") {
		t.Errorf("err = %v, want status=400", err)
	}
	if NewEmailClient("key", "", "a@b", "").BaseURL != DefaultEmailAPIURL {
		t.Error("empty base URL should default")
	}
}

// fakeWriter implements messageWriter.
type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaDispatcher(t *testing.T) {
	if NewKafkaDispatcher(nil, "topic") != nil || NewKafkaDispatcher([]string{"localhost:9092"}, "") != nil {
		t.Error("dispatcher should be nil without brokers or topic")
	}
	var nilDispatcher *KafkaDispatcher
	if err := nilDispatcher.Close(); err != nil {
		t.Errorf("nil Close: %v", err)
	}

	w := &fakeWriter{}
	d := &KafkaDispatcher{writer: w}
	if err := d.SendOTP(context.Background(), testJob()); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "user-1" {
		t.Fatalf("msgs = %+v", w.msgs)
	}
	j, err := DecodeJob(w.msgs[0].Value)
	if err != nil || j.RequestID != "req-1" {
		t.Errorf("payload = %+v, %v", j, err)
	}
	if err := d.SendOTP(context.Background(), OTPJob{}); !errors.Is(err, ErrInvalidJob) {
		t.Errorf("invalid job err = %v", err)
	}
	w.err = errors.New("broker down")
	if err := d.SendOTP(context.Background(), testJob()); err == nil {
		t.Error("writer error should propagate")
	}
}

func TestDevStoreSender(t *testing.T) {
	store := devotp.NewMemoryStore()
	s := NewDevStoreSender(store, time.Minute)
	if err := s.SendOTP(context.Background(), testJob()); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	if otp, ok := store.Get(context.Background(), "user-1"); !ok || otp != "4821" {
		t.Errorf("store = (%q, %v), want 4821", otp, ok)
	}
	job := testJob()
	job.UserID, job.ExpiresAt = "user-2", time.Time{}
	if err := s.SendOTP(context.Background(), job); err != nil {
		t.Fatalf("SendOTP without expiry: %v", err)
	}
	if _, ok := store.Get(context.Background(), "user-2"); !ok {
		t.Error("job without expiry should use the sender ttl")
	}
}

// captureSender records delivered jobs.
type captureSender struct {
	mu    sync.Mutex
	jobs  []OTPJob
	errs  []error
	calls int
}

func (c *captureSender) SendOTP(ctx context.Context, job OTPJob) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		if err != nil {
			return err
		}
	}
	c.jobs = append(c.jobs, job)
	return nil
}

func TestProcessor_Handle(t *testing.T) {
	sender := &captureSender{}
	p := NewProcessor(sender, zap.NewNop())
	raw, _ := json.Marshal(testJob())

	if err := p.Handle(context.Background(), raw); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(sender.jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(sender.jobs))
	}
	if err := p.Handle(context.Background(), []byte("garbage")); err != nil {
		t.Errorf("malformed payload should be dropped, got %v", err)
	}

	expired := testJob()
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	raw, _ = json.Marshal(expired)
	if err := p.Handle(context.Background(), raw); err != nil {
		t.Errorf("expired job should be dropped, got %v", err)
	}
	if len(sender.jobs) != 1 {
		t.Errorf("dropped jobs must not be sent; jobs = %d", len(sender.jobs))
	}

	sender.errs = []error{errors.New("smtp down")}
	raw, _ = json.Marshal(testJob())
	if err := p.Handle(context.Background(), raw); err == nil {
		t.Error("delivery failure should be returned")
	}
}

// fakeReader implements messageReader over a fixed slice of messages.
type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	done      chan struct{}
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.msgs) > 0 {
		m := f.msgs[0]
		f.msgs = f.msgs[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	select {
	case f.done <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error { return nil }

func TestConsumer_Run(t *testing.T) {
	good, _ := json.Marshal(testJob())
	reader := &fakeReader{
		msgs: []kafka.Message{
			{Offset: 1, Value: good},
			{Offset: 2, Value: []byte("garbage")},
			{Offset: 3, Value: good},
		},
		done: make(chan struct{}, 1),
	}
	// First delivery of offset 3 fails once, then succeeds on retry.
	sender := &captureSender{errs: []error{nil, errors.New("temporary")}}
	c := newConsumer(reader, NewProcessor(sender, nil), nil)
	c.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	select {
	case <-reader.done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not drain messages")
	}
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(sender.jobs) != 2 {
		t.Errorf("delivered = %d, want 2", len(sender.jobs))
	}
	if sender.calls != 3 {
		t.Errorf("send calls = %d, want 3 (one retry)", sender.calls)
	}
	if len(reader.committed) != 3 {
		t.Errorf("committed = %v, want all three offsets", reader.committed)
	}
}

func TestConsumer_GivesUpAfterMaxAttempts(t *testing.T) {
	good, _ := json.Marshal(testJob())
	reader := &fakeReader{msgs: []kafka.Message{{Offset: 7, Value: good}}, done: make(chan struct{}, 1)}
	fail := errors.New("down")
	sender := &captureSender{errs: []error{fail, fail, fail, fail}}
	c := newConsumer(reader, NewProcessor(sender, nil), nil)
	c.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()
	select {
	case <-reader.done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not finish")
	}
	cancel()
	<-errCh

	if sender.calls != maxDeliveryAttempts {
		t.Errorf("send calls = %d, want %d", sender.calls, maxDeliveryAttempts)
	}
	reader.mu.Lock()
	defer reader.mu.Unlock()
	if len(reader.committed) != 1 || reader.committed[0] != 7 {
		t.Errorf("committed = %v, want [7]", reader.committed)
	}
}
