// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tombee/areas/internal/store"
	areaserrors "github.com/tombee/areas/pkg/errors"
)

const executionColumns = `id, area_id, status, trigger_data, execution_result, error_message,
	started_at, completed_at, execution_time_ms, created_at`

// CreateExecution inserts an execution.
func (s *Store) CreateExecution(ctx context.Context, exec *store.Execution) error {
	if exec.ID == "" {
		exec.ID = store.NewID()
	}
	exec.CreatedAt = store.OrNow(exec.CreatedAt)

	triggerData, err := encodeJSON(exec.TriggerData)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger data: %w", err)
	}
	result, err := encodeJSON(exec.ExecutionResult)
	if err != nil {
		return fmt.Errorf("failed to marshal execution result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO area_executions (`+executionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		exec.ID, exec.AreaID, string(exec.Status), triggerData, result, exec.ErrorMessage,
		millis(exec.StartedAt), nullMillis(exec.CompletedAt), nullInt64(exec.ExecutionTimeMs), millis(exec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}
	return nil
}

func scanExecution(row scanner) (*store.Execution, error) {
	var e store.Execution
	var status string
	var triggerData, result sql.NullString
	var started, created int64
	var completed, execTime sql.NullInt64

	if err := row.Scan(&e.ID, &e.AreaID, &status, &triggerData, &result, &e.ErrorMessage,
		&started, &completed, &execTime, &created); err != nil {
		return nil, err
	}

	e.Status = store.ExecutionStatus(status)
	e.StartedAt = fromMillis(started)
	e.CompletedAt = fromNullMillis(completed)
	e.CreatedAt = fromMillis(created)
	if execTime.Valid {
		v := execTime.Int64
		e.ExecutionTimeMs = &v
	}

	var err error
	if e.TriggerData, err = decodeJSON(triggerData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger data: %w", err)
	}
	if e.ExecutionResult, err = decodeJSON(result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution result: %w", err)
	}
	return &e, nil
}

// GetExecution returns an execution by id.
func (s *Store) GetExecution(ctx context.Context, id string) (*store.Execution, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+executionColumns+` FROM area_executions WHERE id = ?`), id)
	e, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &areaserrors.NotFoundError{Resource: "execution", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return e, nil
}

// UpdateExecution writes exec only if the stored status equals from.
func (s *Store) UpdateExecution(ctx context.Context, exec *store.Execution, from store.ExecutionStatus) error {
	triggerData, err := encodeJSON(exec.TriggerData)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger data: %w", err)
	}
	result, err := encodeJSON(exec.ExecutionResult)
	if err != nil {
		return fmt.Errorf("failed to marshal execution result: %w", err)
	}

	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE area_executions
		SET status = ?, trigger_data = ?, execution_result = ?, error_message = ?,
			started_at = ?, completed_at = ?, execution_time_ms = ?
		WHERE id = ? AND status = ?`),
		string(exec.Status), triggerData, result, exec.ErrorMessage,
		millis(exec.StartedAt), nullMillis(exec.CompletedAt), nullInt64(exec.ExecutionTimeMs),
		exec.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Nothing matched: either the row is gone or its status moved on.
	current, err := s.GetExecution(ctx, exec.ID)
	if err != nil {
		return err
	}
	return &areaserrors.TransitionError{
		ExecutionID: exec.ID,
		From:        string(current.Status),
		To:          string(exec.Status),
	}
}

// ListExecutions returns executions newest first.
func (s *Store) ListExecutions(ctx context.Context, f store.ExecutionFilter) ([]*store.Execution, error) {
	var (
		where []string
		args  []any
	)
	if f.AreaID != "" {
		where = append(where, "area_id = ?")
		args = append(args, f.AreaID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.StartedBefore != nil {
		where = append(where, "started_at < ?")
		args = append(args, millis(*f.StartedBefore))
	}

	query := `SELECT ` + executionColumns + ` FROM area_executions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	} else if f.Offset > 0 && s.dialect == DialectSQLite {
		// SQLite only accepts OFFSET after a LIMIT clause.
		query += " LIMIT -1"
	}
	if f.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var out []*store.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteExecution removes an execution.
func (s *Store) DeleteExecution(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM area_executions WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete execution: %w", err)
	}
	return requireAffected(res, "execution", id)
}

// DeleteTerminalExecutionsBefore removes old terminal executions.
func (s *Store) DeleteTerminalExecutionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		DELETE FROM area_executions
		WHERE created_at < ? AND status IN (?, ?, ?)`),
		millis(cutoff), string(store.StatusSuccess), string(store.StatusFailed), string(store.StatusCancelled),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete executions: %w", err)
	}
	return res.RowsAffected()
}

// ExecutionStats aggregates executions, optionally for one Area.
func (s *Store) ExecutionStats(ctx context.Context, areaID string) (*store.ExecutionStats, error) {
	filter, args := "", []any{}
	if areaID != "" {
		filter = " WHERE area_id = ?"
		args = append(args, areaID)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT status, COUNT(*) FROM area_executions`+filter+` GROUP BY status`), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count executions: %w", err)
	}
	defer rows.Close()

	stats := &store.ExecutionStats{ByStatus: make(map[store.ExecutionStatus]int64)}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan execution count: %w", err)
		}
		stats.ByStatus[store.ExecutionStatus(status)] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	avgQuery := `SELECT CAST(AVG(execution_time_ms) AS DOUBLE PRECISION) FROM area_executions
		WHERE status = ? AND execution_time_ms IS NOT NULL`
	avgArgs := []any{string(store.StatusSuccess)}
	if areaID != "" {
		avgQuery += " AND area_id = ?"
		avgArgs = append(avgArgs, areaID)
	}
	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, s.rebind(avgQuery), avgArgs...).Scan(&avg); err != nil {
		return nil, fmt.Errorf("failed to average execution time: %w", err)
	}
	if avg.Valid {
		stats.AvgExecutionTimeMs = avg.Float64
	}
	return stats, nil
}

func encodeJSON(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeJSON(ns sql.NullString) (map[string]any, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(ns.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
