package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/document-autopilot/internal/core/domain"
	"github.com/kirillkom/document-autopilot/internal/core/ports"
)

type MonitorConfig struct {
	// Prefix limits the listing to the intake location.
	Prefix   string
	Interval time.Duration
}

func (c MonitorConfig) normalize() MonitorConfig {
	out := c
	if out.Interval <= 0 {
		out.Interval = 60 * time.Second
	}
	return out
}

// DiscoveryObserver receives discovery counts for metrics.
type DiscoveryObserver interface {
	Discovered(count int)
}

type nopDiscoveryObserver struct{}

func (nopDiscoveryObserver) Discovered(int) {}

// Monitor periodically lists the repository and diffs it against the ledger.
// The conditional ledger insert is the idempotency backbone: duplicate
// listings and overlapping cycles can never double-process an identity.
type Monitor struct {
	storage ports.StorageGateway
	ledger  ports.ProcessingLedger
	queue   ports.DiscoveryQueue

	cfg      MonitorConfig
	logger   *slog.Logger
	observer DiscoveryObserver
}

func NewMonitor(
	storage ports.StorageGateway,
	ledger ports.ProcessingLedger,
	queue ports.DiscoveryQueue,
	cfg MonitorConfig,
	logger *slog.Logger,
	observer DiscoveryObserver,
) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = nopDiscoveryObserver{}
	}
	return &Monitor{
		storage:  storage,
		ledger:   ledger,
		queue:    queue,
		cfg:      cfg.normalize(),
		logger:   logger,
		observer: observer,
	}
}

// Run resumes interrupted records, then polls on the configured interval
// until the context is cancelled. A ledger consistency error stops the loop
// rather than risk double-processing.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Resume(ctx); err != nil {
		return err
	}
	if err := m.Scan(ctx); err != nil {
		if domain.IsKind(err, domain.ErrLedgerConsistency) {
			return err
		}
		m.logger.Error("monitor scan failed", "error", err)
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.Scan(ctx); err != nil {
				if domain.IsKind(err, domain.ErrLedgerConsistency) {
					return err
				}
				m.logger.Error("monitor scan failed", "error", err)
			}
		}
	}
}

// Resume republishes every non-terminal record so workers pick interrupted
// documents up from their last recorded stage.
func (m *Monitor) Resume(ctx context.Context) error {
	ids, err := m.ledger.ListResumable(ctx)
	if err != nil {
		return fmt.Errorf("scan resumable records: %w", err)
	}
	for _, id := range ids {
		if err := m.queue.PublishDiscovered(ctx, id); err != nil {
			return fmt.Errorf("republish %s: %w", id.Key(), err)
		}
	}
	if len(ids) > 0 {
		m.logger.Info("resumed interrupted documents", "count", len(ids))
	}
	return nil
}

// Scan lists the intake location once and enqueues unseen identities.
func (m *Monitor) Scan(ctx context.Context) error {
	objects, err := m.storage.List(ctx, m.cfg.Prefix)
	if err != nil {
		return fmt.Errorf("list repository: %w", err)
	}

	discovered := 0
	for _, obj := range objects {
		if !m.intake(obj.Location) {
			continue
		}

		created, err := m.ledger.CreateDiscovered(ctx, obj)
		if err != nil {
			return fmt.Errorf("record discovery of %s: %w", obj.Location, err)
		}
		if !created {
			// Identity already known: in flight, completed, or
			// dead-lettered. A changed fingerprint is a new identity and
			// inserts its own row.
			continue
		}

		id := domain.DocumentIdentity{Location: obj.Location, Fingerprint: obj.Fingerprint}
		if err := m.queue.PublishDiscovered(ctx, id); err != nil {
			return fmt.Errorf("enqueue %s: %w", id.Key(), err)
		}
		m.logger.Info("document discovered", "document", id.Key(), "size", obj.Size)
		discovered++
	}

	if discovered > 0 {
		m.observer.Discovered(discovered)
	}
	return nil
}

// intake reports whether an object sits at the intake root. Filed documents
// live under category prefixes and parked text under .autopilot/; both are
// skipped so a moved object is not rediscovered as new content.
func (m *Monitor) intake(location string) bool {
	rel := strings.TrimPrefix(location, m.cfg.Prefix)
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" || strings.HasSuffix(rel, "/") {
		return false
	}
	return !strings.Contains(rel, "/")
}
