package service

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"lootcase-api/internal/model"
	"lootcase-api/internal/repository"
)

// Audit actions.
const (
	ActionSellItem         = "sell_item"
	ActionSellSelected     = "sell_selected"
	ActionSellByRarity     = "sell_by_rarity"
	ActionUpgradeCapacity  = "upgrade_capacity"
	ActionUpgradeRejected  = "upgrade_rejected"
	ActionAuthFailed       = "auth_failed"
	ActionRateLimited      = "rate_limited"
	ActionItemNotFound     = "sale_item_not_found"
	ActionNoItemsMatched   = "sale_no_items_matched"
	ActionNoValidItems     = "sale_no_valid_items"
	ActionCorruptItem      = "corrupt_item_value"
	ActionSaleCompensated  = "sale_compensated"
	ActionSaleFatal        = "sale_fatal_inconsistency"
	ActionCommissionFailed = "commission_failed"
)

// AuditRecorder accepts audit events without ever blocking or failing the
// caller.
type AuditRecorder interface {
	Record(userID, action string, detail map[string]interface{}, ip string)
}

// AuditStats is a snapshot of the logger's counters.
type AuditStats struct {
	Queued  int   `json:"queued"`
	Written int64 `json:"written"`
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
}

// AuditLogger writes audit entries from a bounded queue on a single
// background worker. A full queue drops the entry.
type AuditLogger struct {
	repo  repository.AuditRepository
	queue chan model.AuditEntry
	done  chan struct{}
	wg    sync.WaitGroup

	// mu orders enqueues against Close so nothing lands after the drain.
	mu     sync.RWMutex
	closed bool

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

var _ AuditRecorder = (*AuditLogger)(nil)

// NewAuditLogger starts the worker.
func NewAuditLogger(repo repository.AuditRepository, queueSize int) *AuditLogger {
	if queueSize <= 0 {
		queueSize = 1024
	}

	l := &AuditLogger{
		repo:  repo,
		queue: make(chan model.AuditEntry, queueSize),
		done:  make(chan struct{}),
	}

	l.wg.Add(1)
	go l.run()

	return l
}

// Record enqueues an entry and returns immediately.
func (l *AuditLogger) Record(userID, action string, detail map[string]interface{}, ip string) {
	entry := model.AuditEntry{
		UserID:    userID,
		Action:    action,
		IPAddress: ip,
		CreatedAt: time.Now().UTC(),
	}
	if len(detail) > 0 {
		raw, err := json.Marshal(detail)
		if err != nil {
			raw, _ = json.Marshal(map[string]string{"marshal_error": err.Error()})
		}
		entry.Detail = raw
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		l.dropped.Add(1)
		return
	}

	select {
	case l.queue <- entry:
	default:
		l.dropped.Add(1)
		log.WithFields(log.Fields{
			"component": "audit",
			"action":    action,
			"user_id":   userID,
		}).Warn("Audit queue full, entry dropped")
	}
}

// Stats returns the current counters.
func (l *AuditLogger) Stats() AuditStats {
	return AuditStats{
		Queued:  len(l.queue),
		Written: l.written.Load(),
		Dropped: l.dropped.Load(),
		Failed:  l.failed.Load(),
	}
}

// Close stops accepting entries and waits for the queue to drain, or for
// ctx to end.
func (l *AuditLogger) Close(ctx context.Context) error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.done)
	}
	l.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *AuditLogger) run() {
	defer l.wg.Done()

	for {
		select {
		case entry := <-l.queue:
			l.write(entry)
		case <-l.done:
			for {
				select {
				case entry := <-l.queue:
					l.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (l *AuditLogger) write(entry model.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.repo.InsertAuditEntry(ctx, &entry); err != nil {
		l.failed.Add(1)
		log.WithFields(log.Fields{
			"component": "audit",
			"action":    entry.Action,
			"user_id":   entry.UserID,
		}).WithError(err).Warn("Failed to write audit entry")
		return
	}
	l.written.Add(1)
}
