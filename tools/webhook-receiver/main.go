// webhook-receiver is a local endpoint for exercising hookline
// deliveries. It records incoming webhooks and, when WEBHOOK_SECRET is
// set, verifies the X-Signature-256 header against the raw body.
package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

type request struct {
	Timestamp      string            `json:"timestamp"`
	EventID        string            `json:"event_id"`
	EventType      string            `json:"event_type"`
	SignatureValid *bool             `json:"signature_valid,omitempty"`
	Headers        map[string]string `json:"headers"`
	Body           string            `json:"body"`
}

type stats struct {
	Count         int64     `json:"count"`
	BadSignatures int64     `json:"bad_signatures"`
	LastRequests  []request `json:"last_requests"`
	Since         string    `json:"since"`
}

var (
	mu            sync.Mutex
	count         int64
	badSignatures int64
	lastRequests  []request
	since         time.Time
	maxStored     = 50

	secret = os.Getenv("WEBHOOK_SECRET")
)

func main() {
	since = time.Now().UTC()

	addr := ":8081"
	if v := os.Getenv("ADDR"); v != "" {
		addr = v
	}

	if secret == "" {
		log.Println("WEBHOOK_SECRET not set; signature verification disabled")
	}

	http.HandleFunc("/hook", hookHandler)
	http.HandleFunc("/stats", statsHandler)
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	http.HandleFunc("/reset", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		count = 0
		badSignatures = 0
		lastRequests = nil
		since = time.Now().UTC()
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "reset")
	})

	log.Printf("webhook-receiver listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

func hookHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	headers := make(map[string]string)
	for k, v := range r.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}

	req := request{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		EventID:   r.Header.Get("X-Event-Id"),
		EventType: r.Header.Get("X-Event-Type"),
		Headers:   headers,
		Body:      string(body),
	}

	if secret != "" {
		valid := verifySignature(secret, body, r.Header.Get("X-Signature-256"))
		req.SignatureValid = &valid
	}

	mu.Lock()
	count++
	if req.SignatureValid != nil && !*req.SignatureValid {
		badSignatures++
	}
	lastRequests = append(lastRequests, req)
	if len(lastRequests) > maxStored {
		lastRequests = lastRequests[len(lastRequests)-maxStored:]
	}
	current := count
	mu.Unlock()

	if req.SignatureValid != nil && !*req.SignatureValid {
		log.Printf("hook received #%d: event=%s type=%s BAD SIGNATURE", current, req.EventID, req.EventType)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprintf(w, `{"received":%d,"error":"bad signature"}`, current)
		return
	}

	log.Printf("hook received #%d: event=%s type=%s body=%s", current, req.EventID, req.EventType, string(body))
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"received":%d}`, current)
}

func verifySignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func statsHandler(w http.ResponseWriter, _ *http.Request) {
	mu.Lock()
	s := stats{
		Count:         count,
		BadSignatures: badSignatures,
		LastRequests:  lastRequests,
		Since:         since.Format(time.RFC3339),
	}
	mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}
