package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/workflowkit/engine/internal/domain/repository"
	"github.com/workflowkit/engine/internal/infrastructure/storage/models"
)

var _ repository.EventRepository = (*EventRepository)(nil)

// EventRepository implements repository.EventRepository using Bun ORM.
// The event log is append-only (§C7): rows are never updated or deleted.
type EventRepository struct {
	db *bun.DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *bun.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append appends a new event to the event log.
func (r *EventRepository) Append(ctx context.Context, event *models.EventModel) error {
	if _, err := r.db.NewInsert().Model(event).Exec(ctx); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// AppendBatch appends multiple events atomically, preserving sequence order.
func (r *EventRepository) AppendBatch(ctx context.Context, events []*models.EventModel) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&events).Exec(ctx); err != nil {
			return fmt.Errorf("failed to append event batch: %w", err)
		}
		return nil
	})
}

// FindByExecutionID retrieves all events for an execution ordered by sequence.
func (r *EventRepository) FindByExecutionID(ctx context.Context, executionID uuid.UUID) ([]*models.EventModel, error) {
	var events []*models.EventModel
	err := r.db.NewSelect().
		Model(&events).
		Where("execution_id = ?", executionID).
		OrderExpr("sequence ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find events: %w", err)
	}
	return events, nil
}

// FindByExecutionIDSince retrieves events since a specific sequence number;
// Stream polls with it.
func (r *EventRepository) FindByExecutionIDSince(ctx context.Context, executionID uuid.UUID, sinceSequence int64) ([]*models.EventModel, error) {
	var events []*models.EventModel
	err := r.db.NewSelect().
		Model(&events).
		Where("execution_id = ? AND sequence > ?", executionID, sinceSequence).
		OrderExpr("sequence ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find events since sequence: %w", err)
	}
	return events, nil
}

// FindByType retrieves events by type with pagination.
func (r *EventRepository) FindByType(ctx context.Context, eventType string, limit, offset int) ([]*models.EventModel, error) {
	var events []*models.EventModel
	err := r.db.NewSelect().
		Model(&events).
		Where("event_type = ?", eventType).
		OrderExpr("created_at DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find events by type: %w", err)
	}
	return events, nil
}

// FindByTimeRange retrieves events within a time range.
func (r *EventRepository) FindByTimeRange(ctx context.Context, from, to time.Time, limit, offset int) ([]*models.EventModel, error) {
	var events []*models.EventModel
	err := r.db.NewSelect().
		Model(&events).
		Where("created_at BETWEEN ? AND ?", from, to).
		OrderExpr("created_at ASC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find events by time range: %w", err)
	}
	return events, nil
}

// FindLatestByExecutionID retrieves the latest event for an execution.
func (r *EventRepository) FindLatestByExecutionID(ctx context.Context, executionID uuid.UUID) (*models.EventModel, error) {
	event := new(models.EventModel)
	err := r.db.NewSelect().
		Model(event).
		Where("execution_id = ?", executionID).
		OrderExpr("sequence DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find latest event: %w", err)
	}
	return event, nil
}

// Count returns the total count of events.
func (r *EventRepository) Count(ctx context.Context) (int, error) {
	count, err := r.db.NewSelect().Model((*models.EventModel)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// CountByExecutionID returns the count of events for an execution.
func (r *EventRepository) CountByExecutionID(ctx context.Context, executionID uuid.UUID) (int, error) {
	count, err := r.db.NewSelect().
		Model((*models.EventModel)(nil)).
		Where("execution_id = ?", executionID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count events by execution: %w", err)
	}
	return count, nil
}

// CountByType returns the count of events by type.
func (r *EventRepository) CountByType(ctx context.Context, eventType string) (int, error) {
	count, err := r.db.NewSelect().
		Model((*models.EventModel)(nil)).
		Where("event_type = ?", eventType).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count events by type: %w", err)
	}
	return count, nil
}

// Stream polls every 500ms for new events since fromSequence and pushes them
// onto a channel until ctx is cancelled or a query fails. No observer or
// websocket handler in this repository calls it.
func (r *EventRepository) Stream(ctx context.Context, executionID uuid.UUID, fromSequence int64) (<-chan *models.EventModel, <-chan error) {
	out := make(chan *models.EventModel, 64)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()

		last := fromSequence
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				events, err := r.FindByExecutionIDSince(ctx, executionID, last)
				if err != nil {
					errc <- err
					return
				}
				for _, e := range events {
					select {
					case out <- e:
						last = e.Sequence
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out, errc
}
