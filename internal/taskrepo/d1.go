// Package taskrepo implements the Task Repository (persisted task CRUD
// plus a write-coalescing status buffer) against Cloudflare D1's HTTP
// query API, grounded on the same retryablehttp REST-client shape as
// internal/kvproviders/cloudflare.
package taskrepo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/mediarelay/botcore/internal/logging"
	"github.com/mediarelay/botcore/internal/models"
)

const baseURL = "https://api.cloudflare.com/client/v4"

type retryLogger struct{ log *logging.Logger }

func (l *retryLogger) Error(msg string, kv ...interface{}) {
	l.log.Error().Interface("details", kv).Msg(msg)
}
func (l *retryLogger) Info(msg string, kv ...interface{})  {}
func (l *retryLogger) Debug(msg string, kv ...interface{}) {}
func (l *retryLogger) Warn(msg string, kv ...interface{}) {
	l.log.Warn().Interface("details", kv).Msg(msg)
}

// D1Store executes parameterized SQL against a Cloudflare D1 database
// over its REST query endpoint.
type D1Store struct {
	httpClient *http.Client
	log        *logging.Logger
	accountID  string
	databaseID string
	token      string
}

// NewD1Store builds a Task Repository backend against Cloudflare D1.
func NewD1Store(log *logging.Logger, accountID, databaseID, token string) *D1Store {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 5
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = &retryLogger{log: log}

	return &D1Store{
		httpClient: retryClient.StandardClient(),
		log:        log,
		accountID:  accountID,
		databaseID: databaseID,
		token:      token,
	}
}

type queryRequest struct {
	SQL    string        `json:"sql"`
	Params []interface{} `json:"params"`
}

type queryResponse struct {
	Success bool `json:"success"`
	Result  []struct {
		Results []map[string]interface{} `json:"results"`
	} `json:"result"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// query executes sql against the D1 database and returns raw row maps.
func (s *D1Store) query(ctx context.Context, sql string, params ...interface{}) ([]map[string]interface{}, error) {
	payload, err := json.Marshal(queryRequest{SQL: sql, Params: params})
	if err != nil {
		return nil, fmt.Errorf("taskrepo: marshal query: %w", err)
	}

	url := fmt.Sprintf("%s/accounts/%s/d1/database/%s/query", baseURL, s.accountID, s.databaseID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("taskrepo: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("taskrepo: execute query: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("taskrepo: read response: %w", err)
	}

	var qr queryResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return nil, fmt.Errorf("taskrepo: decode response: %w", err)
	}
	if !qr.Success {
		msg := "unknown error"
		if len(qr.Errors) > 0 {
			msg = qr.Errors[0].Message
		}
		return nil, fmt.Errorf("taskrepo: d1 query failed: %s", msg)
	}
	if len(qr.Result) == 0 {
		return nil, nil
	}
	return qr.Result[0].Results, nil
}

func rowToTask(row map[string]interface{}) (*models.Task, error) {
	raw, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	var t models.Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts a new task row.
func (s *D1Store) Create(ctx context.Context, t *models.Task) error {
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	_, err := s.query(ctx,
		`INSERT INTO tasks (id, type, status, user_id, chat_id, message_id, drive_id, remote_path, local_path, file_name, file_size, group_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Type, t.Status, t.UserID, t.ChatID, t.MessageID, t.DriveID, t.RemotePath, t.LocalPath, t.FileName, t.FileSize, t.GroupID, now, now,
	)
	return err
}

// CreateBatch inserts every task in tasks, stopping at the first failure.
func (s *D1Store) CreateBatch(ctx context.Context, tasks []*models.Task) error {
	for _, t := range tasks {
		if err := s.Create(ctx, t); err != nil {
			return fmt.Errorf("taskrepo: batch create %s: %w", t.ID, err)
		}
	}
	return nil
}

// FindByID loads a single task by primary key.
func (s *D1Store) FindByID(ctx context.Context, id string) (*models.Task, error) {
	rows, err := s.query(ctx, `SELECT * FROM tasks WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rowToTask(rows[0])
}

// FindByMsgID loads the task created for a given chat message, if any.
func (s *D1Store) FindByMsgID(ctx context.Context, chatID, messageID string) (*models.Task, error) {
	rows, err := s.query(ctx, `SELECT * FROM tasks WHERE chat_id = ? AND message_id = ?`, chatID, messageID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rowToTask(rows[0])
}

// FindByUserID lists every task belonging to userID.
func (s *D1Store) FindByUserID(ctx context.Context, userID string) ([]*models.Task, error) {
	rows, err := s.query(ctx, `SELECT * FROM tasks WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return rowsToTasks(rows)
}

// FindPendingTasks lists non-terminal tasks created at or after since,
// optionally filtered to a single status.
func (s *D1Store) FindPendingTasks(ctx context.Context, since time.Time, status models.TaskStatus) ([]*models.Task, error) {
	if status != "" {
		rows, err := s.query(ctx,
			`SELECT * FROM tasks WHERE status = ? AND created_at >= ? AND status NOT IN ('completed','failed','cancelled')`,
			status, since)
		if err != nil {
			return nil, err
		}
		return rowsToTasks(rows)
	}
	rows, err := s.query(ctx,
		`SELECT * FROM tasks WHERE created_at >= ? AND status NOT IN ('completed','failed','cancelled')`,
		since)
	if err != nil {
		return nil, err
	}
	return rowsToTasks(rows)
}

// FindCompletedByFile looks up a prior completed transfer for the same
// user/filename/size, the sec-transfer dedup lookup.
func (s *D1Store) FindCompletedByFile(ctx context.Context, userID, fileName string, fileSize int64) (*models.Task, error) {
	rows, err := s.query(ctx,
		`SELECT * FROM tasks WHERE user_id = ? AND file_name = ? AND file_size = ? AND status = 'completed' ORDER BY updated_at DESC LIMIT 1`,
		userID, fileName, fileSize)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rowToTask(rows[0])
}

// UpdateStatus writes a new status (and optional error message) directly,
// bypassing the write-coalescing buffer. Callers driving non-terminal
// transitions should prefer Buffer.Enqueue instead.
func (s *D1Store) UpdateStatus(ctx context.Context, id string, status models.TaskStatus, errorMsg string) error {
	_, err := s.query(ctx,
		`UPDATE tasks SET status = ?, error_reason = ?, updated_at = ? WHERE id = ?`,
		status, errorMsg, time.Now().UTC(), id)
	return err
}

// MarkCancelled sets status to cancelled unconditionally.
func (s *D1Store) MarkCancelled(ctx context.Context, id string) error {
	return s.UpdateStatus(ctx, id, models.StatusCancelled, "")
}

// ClaimTask performs a compare-and-set status transition from queued to
// an in-flight status, scoped to instanceID, so at most one instance
// claims a given task.
func (s *D1Store) ClaimTask(ctx context.Context, id, instanceID string, inFlightStatus models.TaskStatus) (bool, error) {
	rows, err := s.query(ctx,
		`UPDATE tasks SET status = ?, claimed_by = ?, updated_at = ? WHERE id = ? AND status = 'queued' RETURNING id`,
		inFlightStatus, instanceID, time.Now().UTC(), id)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func rowsToTasks(rows []map[string]interface{}) ([]*models.Task, error) {
	tasks := make([]*models.Task, 0, len(rows))
	for _, row := range rows {
		t, err := rowToTask(row)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
