// Package gateway обращается к REST бэкенду турниров от имени движка групп.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/marmotkit/Gold/grouping"
	"github.com/marmotkit/Gold/metrics"
	"github.com/marmotkit/Gold/models"
)

const maxErrorBody = 64 << 10

// Client реализует grouping.Gateway поверх HTTP.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *slog.Logger
	now     func() time.Time
}

var _ grouping.Gateway = (*Client)(nil)

// NewClient создает клиента для API с корнем baseURL
// (например "http://localhost:8000/api/v1").
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend URL %q: scheme must be http or https", baseURL)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: u,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (c *Client) FetchParticipants(ctx context.Context, tournamentID int) ([]models.Participant, error) {
	var participants []models.Participant
	path := fmt.Sprintf("/tournaments/%d/participants", tournamentID)
	if err := c.do(ctx, "fetch_participants", http.MethodGet, path, nil, &participants); err != nil {
		return nil, err
	}
	if participants == nil {
		participants = []models.Participant{}
	}
	return participants, nil
}

type saveGroupsRequest struct {
	Groups     []models.GroupAssignment `json:"groups"`
	GroupOrder []string                 `json:"group_order"`
}

func (c *Client) SaveGroups(ctx context.Context, tournamentID int, layout models.GroupLayout) error {
	body := saveGroupsRequest{Groups: layout.Groups, GroupOrder: layout.GroupOrder}
	if body.Groups == nil {
		body.Groups = []models.GroupAssignment{}
	}
	path := fmt.Sprintf("/tournaments/%d/groups/save", tournamentID)
	return c.do(ctx, "save_groups", http.MethodPut, path, body, nil)
}

func (c *Client) AutoGroup(ctx context.Context, tournamentID int) error {
	path := fmt.Sprintf("/tournaments/%d/auto-group", tournamentID)
	return c.do(ctx, "auto_group", http.MethodPost, path, nil, nil)
}

type participantEnvelope struct {
	Participant *models.Participant `json:"participant"`
}

func (c *Client) UpdateField(ctx context.Context, tournamentID, participantID int, field models.Field, value string) (string, error) {
	var (
		path string
		body map[string]interface{}
	)
	switch field {
	case models.FieldNotes:
		path = fmt.Sprintf("/tournaments/%d/participants/%d/notes", tournamentID, participantID)
		body = map[string]interface{}{"notes": value}
	case models.FieldCheckInStatus:
		path = fmt.Sprintf("/participants/%d/check-in", participantID)
		body = map[string]interface{}{"check_in_status": value, "check_in_time": nil}
		if models.CheckInStatus(value) == models.CheckInCheckedIn {
			body["check_in_time"] = c.now().UTC().Format(time.RFC3339)
		}
	case models.FieldHandicap:
		path = fmt.Sprintf("/tournaments/%d/participants/%d", tournamentID, participantID)
		body = map[string]interface{}{"handicap": models.ParseHandicap(value)}
	case models.FieldGender:
		path = fmt.Sprintf("/tournaments/%d/participants/%d", tournamentID, participantID)
		body = map[string]interface{}{"gender": value}
	case models.FieldGroupCode:
		path = fmt.Sprintf("/tournaments/%d/participants/%d", tournamentID, participantID)
		body = map[string]interface{}{"group_code": nil}
		if !models.IsUngrouped(value) {
			body["group_code"] = value
		}
	default:
		return "", fmt.Errorf("update field: unsupported field %q", field)
	}

	var env participantEnvelope
	if err := c.do(ctx, "update_"+string(field), http.MethodPut, path, body, &env); err != nil {
		return "", err
	}
	if env.Participant == nil {
		return value, nil
	}
	return field.Value(*env.Participant), nil
}

func (c *Client) DeleteParticipant(ctx context.Context, tournamentID, participantID int) error {
	path := fmt.Sprintf("/tournaments/%d/participants/%d", tournamentID, participantID)
	return c.do(ctx, "delete_participant", http.MethodDelete, path, nil, nil)
}

func (c *Client) ExportGroups(ctx context.Context, tournamentID int) (*models.ExportFile, error) {
	path := fmt.Sprintf("/tournaments/%d/export_groups", tournamentID)
	resp, err := c.send(ctx, "export_groups", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: "export_groups", Err: err}
	}
	name := fmt.Sprintf("tournament_%d_groups.xlsx", tournamentID)
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		if fn := params["filename"]; fn != "" {
			name = fn
		}
	}
	return &models.ExportFile{
		Name:        name,
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// do отправляет JSON запрос и декодирует JSON ответ в out.
func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	resp, err := c.send(ctx, op, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	if msg := errorMessage(raw); msg != "" {
		return &RemoteError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &RemoteError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: %v", ErrMalformedPayload, err)}
	}
	return nil
}

// send выполняет запрос и превращает сбои транспорта и ответы вне 2xx в
// типизированные ошибки. Тело возвращённого ответа закрывает вызывающий.
func (c *Client) send(ctx context.Context, op, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.GatewayRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GatewayRequestCounter.WithLabelValues(op, "network_error").Inc()
		c.logger.Warn("backend request failed", slog.String("op", op), slog.String("path", path), slog.Any("error", err))
		return nil, &NetworkError{Op: op, Err: err}
	}
	metrics.GatewayRequestCounter.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := errorMessage(raw)
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		c.logger.Warn("backend rejected request",
			slog.String("op", op),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.String("message", msg),
		)
		return nil, &RemoteError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}
	return resp, nil
}

// errorMessage достаёт текст ошибки бэкенда из JSON тела. Бэкенд отвечает
// {"error": "..."}, а для заметок {"error": true, "message": "..."}.
func errorMessage(raw []byte) string {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		return ""
	}
	rawErr, ok := env["error"]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(rawErr, &s); err == nil {
		return s
	}
	var flag bool
	if err := json.Unmarshal(rawErr, &flag); err == nil && flag {
		var msg string
		if m, ok := env["message"]; ok && json.Unmarshal(m, &msg) == nil && msg != "" {
			return msg
		}
		return "request failed"
	}
	return ""
}

// IsNotFound сообщает, ответил ли бэкенд 404.
func IsNotFound(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.StatusCode == http.StatusNotFound
}
