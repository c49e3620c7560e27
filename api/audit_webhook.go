package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	webhookQueueSize  = 1024
	webhookAttempts   = 2
	webhookRetryDelay = time.Second
	webhookTimeout    = 10 * time.Second
	webhookUserAgent  = "quill-audit/1"

	// webhookEventHeader names the audit event so receivers can route
	// without decoding the body.
	webhookEventHeader = "X-Quill-Event"
)

var errWebhookHeader = errors.New(`audit webhook auth must look like "Name: value"`)

// webhookConfig is the delivery target set by WithAuditWebhook. The
// dispatcher starts in New once the logger is known.
type webhookConfig struct {
	url        string
	auth       string
	attempts   int
	retryDelay time.Duration
	queueSize  int
}

// parseWebhookAuth splits an optional "Name: value" header pair. An empty
// string yields an empty name and no error.
func parseWebhookAuth(s string) (name, value string, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", nil
	}
	name, value, ok := strings.Cut(s, ":")
	name, value = strings.TrimSpace(name), strings.TrimSpace(value)
	if !ok || name == "" || value == "" || strings.ContainsAny(name, " \t") {
		return "", "", errWebhookHeader
	}
	return name, value, nil
}

// auditWebhook forwards audit records to an external endpoint. Records
// queue without blocking the request that produced them; when the queue
// is full they are dropped and counted.
type auditWebhook struct {
	cfg         webhookConfig
	headerName  string
	headerValue string
	client      *http.Client
	logger      *slog.Logger

	mu      sync.RWMutex
	closed  bool
	records chan auditRecord
	dropped atomic.Int64
	wg      sync.WaitGroup
}

func newAuditWebhook(cfg webhookConfig, logger *slog.Logger) *auditWebhook {
	if cfg.attempts <= 0 {
		cfg.attempts = 1
	}
	if cfg.queueSize <= 0 {
		cfg.queueSize = webhookQueueSize
	}
	w := &auditWebhook{
		cfg:     cfg,
		client:  &http.Client{},
		logger:  logger,
		records: make(chan auditRecord, cfg.queueSize),
	}
	name, value, err := parseWebhookAuth(cfg.auth)
	if err != nil {
		logger.Warn("audit webhook auth header ignored", "error", err)
	}
	w.headerName, w.headerValue = name, value

	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *auditWebhook) enqueue(rec auditRecord) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	select {
	case w.records <- rec:
	default:
		if w.dropped.Add(1) == 1 {
			w.logger.Warn("audit webhook queue full, dropping records", "event", string(rec.Event))
		}
	}
}

// close delivers what is already queued and stops the dispatcher. Records
// arriving afterwards are discarded. It is safe to call more than once.
func (w *auditWebhook) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.records)
	w.mu.Unlock()

	w.wg.Wait()
	if n := w.dropped.Load(); n > 0 {
		w.logger.Warn("audit webhook dropped records", "count", n)
	}
}

func (w *auditWebhook) loop() {
	defer w.wg.Done()
	for rec := range w.records {
		w.deliver(rec)
	}
}

// deliver POSTs rec, retrying transport errors and 5xx answers. Any other
// non-2xx answer is final.
func (w *auditWebhook) deliver(rec auditRecord) {
	body, err := json.Marshal(rec)
	if err != nil {
		w.logger.Warn("audit webhook encode failed", "event", string(rec.Event), "error", err)
		return
	}

	for attempt := 1; attempt <= w.cfg.attempts; attempt++ {
		if attempt > 1 {
			time.Sleep(w.cfg.retryDelay)
		}
		status, err := w.post(rec.Event, body)
		switch {
		case err != nil:
			w.logger.Warn("audit webhook delivery failed", "event", string(rec.Event), "attempt", attempt, "error", err)
		case status >= 200 && status < 300:
			return
		case status >= 500:
			w.logger.Warn("audit webhook server error", "event", string(rec.Event), "attempt", attempt, "status", status)
		default:
			w.logger.Warn("audit webhook rejected record", "event", string(rec.Event), "status", status)
			return
		}
	}
}

func (w *auditWebhook) post(event AuditEvent, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", webhookUserAgent)
	req.Header.Set(webhookEventHeader, string(event))
	if w.headerName != "" {
		req.Header.Set(w.headerName, w.headerValue)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	return resp.StatusCode, nil
}
