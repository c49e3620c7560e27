package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditLoginSuccess     AuditEvent = "login_success"
	AuditLoginFailure     AuditEvent = "login_failure"
	AuditLoginRateLimited AuditEvent = "login_rate_limited"
	AuditLogout           AuditEvent = "logout"
	AuditActionRejected   AuditEvent = "action_rejected"
	AuditPostCreated      AuditEvent = "post_created"
	AuditPostUpdated      AuditEvent = "post_updated"
	AuditPostDeleted      AuditEvent = "post_deleted"
	AuditProjectCreated   AuditEvent = "project_created"
	AuditProjectUpdated   AuditEvent = "project_updated"
	AuditProjectDeleted   AuditEvent = "project_deleted"
	AuditCategoryCreated  AuditEvent = "category_created"
	AuditCategoryUpdated  AuditEvent = "category_updated"
	AuditCategoryDeleted  AuditEvent = "category_deleted"
	AuditUserCreated      AuditEvent = "user_created"
	AuditUserUpdated      AuditEvent = "user_updated"
	AuditUserPasswordSet  AuditEvent = "user_password_changed"
	AuditUserDeleted      AuditEvent = "user_deleted"
	AuditFileUploaded     AuditEvent = "file_uploaded"
)

// persisted reports whether the event is a content or account mutation
// worth keeping in the audit trail. Authentication noise only goes to the
// log and the webhook.
func (e AuditEvent) persisted() bool {
	switch e {
	case AuditLoginSuccess, AuditLoginFailure, AuditLoginRateLimited, AuditLogout, AuditActionRejected:
		return false
	}
	return true
}

// auditLogger writes structured audit entries and fans them out to the
// anomaly detector, the webhook and the audit store when configured.
type auditLogger struct {
	logger  *slog.Logger
	metrics *metricsCollector
	webhook *auditWebhook
	store   *auditStore
}

// auditRecord is one audit event as it is logged, forwarded to the
// webhook and, for mutations, kept in the audit trail. Attributes other
// than the actor, target and reason travel in Details.
type auditRecord struct {
	Event      AuditEvent        `json:"event"`
	ActorID    string            `json:"actor_id,omitempty"`
	Actor      string            `json:"actor,omitempty"`
	Target     string            `json:"target,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	RemoteAddr string            `json:"remote_addr,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Details    map[string]string `json:"details,omitempty"`
}

func newAuditRecord(event AuditEvent, r *http.Request, at time.Time, attrs []slog.Attr) auditRecord {
	rec := auditRecord{Event: event, RemoteAddr: r.RemoteAddr, Timestamp: at}
	for _, a := range attrs {
		v := a.Value.String()
		switch a.Key {
		case "actor_id":
			rec.ActorID = v
		case "actor":
			rec.Actor = v
		case "target":
			rec.Target = v
		case "reason":
			rec.Reason = v
		default:
			if rec.Details == nil {
				rec.Details = make(map[string]string, len(attrs))
			}
			rec.Details[a.Key] = v
		}
	}
	return rec
}

// entry is the audit trail form of the record.
func (rec auditRecord) entry() AuditEntry {
	return AuditEntry{
		Event:      rec.Event,
		ActorID:    rec.ActorID,
		Actor:      rec.Actor,
		Target:     rec.Target,
		RemoteAddr: rec.RemoteAddr,
	}
}

func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) auditRecord {
	now := time.Now().UTC()
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", now.Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)
	if al.logger != nil {
		al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
	}
	if al.metrics != nil {
		al.metrics.recordEvent(event)
	}
	rec := newAuditRecord(event, r, now, attrs)
	if al.webhook != nil {
		al.webhook.enqueue(rec)
	}
	return rec
}

// logEvent records an event performed by actorID. A target attribute, if
// present, names the record the event touched.
func (al *auditLogger) logEvent(event AuditEvent, r *http.Request, actorID string, extra ...slog.Attr) {
	attrs := []slog.Attr{slog.String("actor_id", actorID)}
	attrs = append(attrs, extra...)
	rec := al.log(event, r, attrs...)

	if al.store == nil || !event.persisted() {
		return
	}
	// The request may already be finishing; the entry should still land.
	ctx := context.WithoutCancel(r.Context())
	if err := al.store.append(ctx, rec.entry()); err != nil && al.logger != nil {
		al.logger.WarnContext(ctx, "persisting audit entry failed", "event", string(event), "error", err)
	}
}

// logFailure logs a rejected attempt.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{slog.String("reason", reason)}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}
