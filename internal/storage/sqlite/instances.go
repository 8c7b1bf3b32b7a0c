package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/reposcout/reposcout/internal/types"
)

// RegisterInstance records a running pipeline worker
func (s *SQLiteStorage) RegisterInstance(ctx context.Context, instance *types.WorkerInstance) error {
	if instance.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}

	now := time.Now()
	if instance.StartedAt.IsZero() {
		instance.StartedAt = now
	}
	instance.LastHeartbeat = now
	if instance.Status == "" {
		instance.Status = "running"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO worker_instances (instance_id, hostname, pid, status, version, started_at, last_heartbeat)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(instance_id) DO UPDATE SET
			status = excluded.status,
			last_heartbeat = excluded.last_heartbeat
	`, instance.InstanceID, instance.Hostname, instance.PID, instance.Status,
		instance.Version, instance.StartedAt, instance.LastHeartbeat)
	if err != nil {
		return fmt.Errorf("failed to register instance: %w", err)
	}
	return nil
}

// UpdateHeartbeat refreshes a worker's heartbeat timestamp
func (s *SQLiteStorage) UpdateHeartbeat(ctx context.Context, instanceID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE worker_instances SET last_heartbeat = ? WHERE instance_id = ?
	`, time.Now(), instanceID)
	if err != nil {
		return fmt.Errorf("failed to update heartbeat: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("instance %s not registered", instanceID)
	}
	return nil
}

// MarkInstanceStopped records a clean worker shutdown
func (s *SQLiteStorage) MarkInstanceStopped(ctx context.Context, instanceID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE worker_instances SET status = 'stopped', last_heartbeat = ? WHERE instance_id = ?
	`, time.Now(), instanceID)
	if err != nil {
		return fmt.Errorf("failed to mark instance stopped: %w", err)
	}
	return nil
}

// GetActiveInstances returns workers currently marked running
func (s *SQLiteStorage) GetActiveInstances(ctx context.Context) ([]*types.WorkerInstance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instance_id, hostname, pid, status, version, started_at, last_heartbeat
		FROM worker_instances
		WHERE status = 'running'
		ORDER BY started_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get active instances: %w", err)
	}
	defer rows.Close()

	var instances []*types.WorkerInstance
	for rows.Next() {
		var inst types.WorkerInstance
		if err := rows.Scan(&inst.InstanceID, &inst.Hostname, &inst.PID, &inst.Status,
			&inst.Version, &inst.StartedAt, &inst.LastHeartbeat); err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instances = append(instances, &inst)
	}
	return instances, rows.Err()
}
