package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/moodtrail/tracker/internal/app/auth"
	"github.com/moodtrail/tracker/internal/app/domain/audit"
	"github.com/moodtrail/tracker/internal/app/storage"
	"github.com/moodtrail/tracker/pkg/logger"
)

const defaultAuditSize = 200

// AuditSink persists audit entries beyond the in-memory window.
type AuditSink interface {
	Write(ctx context.Context, entry audit.Entry) error
}

type auditLog struct {
	mu      sync.Mutex
	entries []audit.Entry
	max     int
	sinks   []AuditSink
	log     *logger.Logger
	now     func() time.Time
}

func newAuditLog(max int, log *logger.Logger, sinks ...AuditSink) *auditLog {
	if max <= 0 {
		max = defaultAuditSize
	}
	return &auditLog{max: max, sinks: sinks, log: log, now: time.Now}
}

func (l *auditLog) add(ctx context.Context, entry audit.Entry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	l.mu.Unlock()

	for _, sink := range l.sinks {
		if err := sink.Write(ctx, entry); err != nil {
			l.log.WithContext(ctx).WithError(err).Warn("persist audit entry")
		}
	}
}

func (l *auditLog) list() []audit.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]audit.Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *auditLog) listLimit(limit int) []audit.Entry {
	if limit <= 0 || limit > l.max {
		limit = l.max
	}
	all := l.list()
	if len(all) <= limit {
		return all
	}
	return all[len(all)-limit:]
}

// middleware records every authenticated request once it has been answered.
func (l *auditLog) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		id, ok := auth.FromContext(r.Context())
		if !ok {
			return
		}
		l.add(r.Context(), audit.Entry{
			Time:       l.now().UTC(),
			User:       id.UserID,
			Role:       id.Role,
			Path:       r.URL.Path,
			Method:     r.Method,
			Status:     rec.status,
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent(),
		})
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	w.wroteHeader = true
	return h.Hijack()
}

// FileAuditSink appends audit entries as JSONL.
type FileAuditSink struct {
	mu   sync.Mutex
	file *os.File
}

func NewFileAuditSink(path string) (*FileAuditSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, err
	}
	return &FileAuditSink{file: f}, nil
}

func (s *FileAuditSink) Write(_ context.Context, entry audit.Entry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.file.Write(append(b, '\n'))
	return err
}

func (s *FileAuditSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// StoreAuditSink writes audit entries to the http_audit_log table.
type StoreAuditSink struct {
	store storage.AuditStore
}

func NewStoreAuditSink(store storage.AuditStore) *StoreAuditSink {
	return &StoreAuditSink{store: store}
}

func (s *StoreAuditSink) Write(ctx context.Context, entry audit.Entry) error {
	return s.store.AppendAudit(ctx, entry)
}
