package notify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/devsharmatech/easy-rasta-sub001/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyDeliversSignedPayload(t *testing.T) {
	var gotSig string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Push-Signature")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)

		mac := hmac.New(sha256.New, []byte("push_secret"))
		mac.Write(body)
		if gotSig != hex.EncodeToString(mac.Sum(nil)) {
			t.Errorf("signature mismatch")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st := store.New()
	st.Devices.Set("rider_1", store.DeviceToken{ParticipantID: "rider_1", Token: "tok_abc"})

	d := NewDispatcher(st, Config{URL: srv.URL, Secret: "push_secret", Logger: discardLogger()})
	d.Notify("rider_1", "Level Up", "You reached level 2")

	if gotBody["token"] != "tok_abc" {
		t.Errorf("expected token tok_abc, got %s", gotBody["token"])
	}
	if gotBody["title"] != "Level Up" {
		t.Errorf("expected title Level Up, got %s", gotBody["title"])
	}

	deliveries := d.Deliveries()
	if len(deliveries) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(deliveries))
	}
	if deliveries[0].StatusCode != 200 {
		t.Errorf("expected status 200, got %d", deliveries[0].StatusCode)
	}
}

func TestNotifySkipsWithoutDeviceToken(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	st := store.New()
	d := NewDispatcher(st, Config{URL: srv.URL, Logger: discardLogger()})
	d.Notify("rider_without_device", "Level Up", "body")

	if calls.Load() != 0 {
		t.Errorf("expected no delivery, got %d calls", calls.Load())
	}
	if len(d.Deliveries()) != 0 {
		t.Errorf("expected no delivery records")
	}
}

func TestNotifyRetriesAndSwallowsFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	st := store.New()
	st.Devices.Set("rider_1", store.DeviceToken{ParticipantID: "rider_1", Token: "tok"})

	d := NewDispatcher(st, Config{
		URL:        srv.URL,
		Logger:     discardLogger(),
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	})
	// Must not panic or propagate anything.
	d.Notify("rider_1", "t", "b")

	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
	deliveries := d.Deliveries()
	if len(deliveries) != 2 {
		t.Fatalf("expected 2 delivery records, got %d", len(deliveries))
	}
	if deliveries[1].Error == "" {
		t.Error("expected recorded error on failed delivery")
	}
}

func TestNotifyAsync(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	st := store.New()
	st.Devices.Set("rider_1", store.DeviceToken{ParticipantID: "rider_1", Token: "tok"})

	d := NewDispatcher(st, Config{URL: srv.URL, Logger: discardLogger(), Async: true})
	d.Notify("rider_1", "t", "b")
	d.Wait()

	if calls.Load() != 1 {
		t.Errorf("expected 1 delivery, got %d", calls.Load())
	}
}
