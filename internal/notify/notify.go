// Package notify delivers push messages to participants with a device token
// on file. Delivery is fire-and-forget: failures are logged, recorded, and
// never propagated to callers.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/devsharmatech/easy-rasta-sub001/internal/store"
)

// Sender delivers a push message to a participant.
type Sender interface {
	Notify(participantID, title, body string)
}

// Delivery records one delivery attempt.
type Delivery struct {
	ParticipantID string    `json:"participant_id"`
	Title         string    `json:"title"`
	StatusCode    int       `json:"status_code"`
	Error         string    `json:"error,omitempty"`
	Attempt       int       `json:"attempt"`
	Timestamp     time.Time `json:"timestamp"`
}

// Config configures the push dispatcher.
type Config struct {
	URL        string
	Secret     string
	Logger     *slog.Logger
	MaxRetries int
	RetryDelay time.Duration
	// Async delivers in a background goroutine. Tests run synchronously.
	Async bool
}

// Dispatcher sends push messages over HTTP with bounded retries and
// HMAC-signed payloads.
type Dispatcher struct {
	mu         sync.RWMutex
	url        string
	secret     string
	logger     *slog.Logger
	deliveries []Delivery
	maxRetries int
	retryDelay time.Duration
	client     *http.Client
	async      bool
	devices    *store.MemoryStore
	wg         sync.WaitGroup
}

// NewDispatcher creates a push dispatcher reading device tokens from st.
func NewDispatcher(st *store.MemoryStore, cfg Config) *Dispatcher {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 1 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Dispatcher{
		url:        cfg.URL,
		secret:     cfg.Secret,
		logger:     cfg.Logger,
		deliveries: make([]Delivery, 0),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		client:     &http.Client{Timeout: 30 * time.Second},
		async:      cfg.Async,
		devices:    st,
	}
}

// Notify implements Sender. It never blocks the caller on delivery failures;
// all errors end in the delivery log only.
func (d *Dispatcher) Notify(participantID, title, body string) {
	token, ok := d.devices.Devices.Get(participantID)
	if !ok {
		d.logger.Debug("no device token on file, skipping push", "participant_id", participantID)
		return
	}

	if d.async {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.deliver(participantID, token.Token, title, body)
		}()
		return
	}
	d.deliver(participantID, token.Token, title, body)
}

// Wait blocks until in-flight async deliveries finish. Test hook.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(participantID, token, title, body string) {
	d.mu.RLock()
	url := d.url
	secret := d.secret
	d.mu.RUnlock()

	if url == "" {
		d.logger.Debug("no push URL configured, skipping delivery", "participant_id", participantID)
		return
	}

	payload, err := json.Marshal(map[string]string{
		"token": token,
		"title": title,
		"body":  body,
	})
	if err != nil {
		d.logger.Error("marshal push payload", "err", err)
		return
	}

	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			d.logger.Error("create push request", "err", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		if secret != "" {
			mac := hmac.New(sha256.New, []byte(secret))
			mac.Write(payload)
			req.Header.Set("X-Push-Signature", hex.EncodeToString(mac.Sum(nil)))
		}

		resp, err := d.client.Do(req)
		delivery := Delivery{
			ParticipantID: participantID,
			Title:         title,
			Attempt:       attempt,
			Timestamp:     time.Now(),
		}

		if err != nil {
			delivery.Error = err.Error()
		} else {
			io.ReadAll(resp.Body)
			resp.Body.Close()
			delivery.StatusCode = resp.StatusCode
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				d.record(delivery)
				return
			}
			delivery.Error = fmt.Sprintf("push delivery failed: status %d", resp.StatusCode)
		}

		d.record(delivery)
		if attempt < d.maxRetries {
			time.Sleep(d.retryDelay)
		}
	}

	d.logger.Warn("push delivery exhausted retries", "participant_id", participantID, "title", title)
}

func (d *Dispatcher) record(delivery Delivery) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deliveries = append(d.deliveries, delivery)
}

// Deliveries returns all delivery records.
func (d *Dispatcher) Deliveries() []Delivery {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Delivery, len(d.deliveries))
	copy(out, d.deliveries)
	return out
}

// Reset clears the delivery log.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deliveries = d.deliveries[:0]
}
