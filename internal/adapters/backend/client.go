// Package backend is the HTTP client of the external REST collaborator that
// owns hierarchy data, evaluations, results and signatures.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/skillcert/internal/domain/failure"
	"github.com/okian/skillcert/internal/domain/model"
	"github.com/okian/skillcert/pkg/logger"
	"github.com/okian/skillcert/pkg/metrics"
)

// Header names sent on every request.
const (
	HeaderRequestID   = "X-Request-ID"
	HeaderIdempotency = "Idempotency-Key"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultMaxPages = 50
)

// Client talks to the backend. It is safe for concurrent use.
type Client struct {
	base       *url.URL
	token      string
	timeout    time.Duration
	maxPages   int
	httpClient *http.Client
	logger     logger.Logger
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	c := &Client{
		base:     u,
		timeout:  defaultTimeout,
		maxPages: defaultMaxPages,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("backend")
	}
	return c, nil
}

type idempotencyKey struct{}

// WithIdempotencyKey attaches the key sent when a result is created with ctx.
// Signature commits made with the same ctx never carry it.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, key)
}

func idempotencyFrom(ctx context.Context) string {
	key, _ := ctx.Value(idempotencyKey{}).(string)
	return key
}

// ListAreas returns every area.
func (c *Client) ListAreas(ctx context.Context) ([]model.Area, error) {
	return listAll[model.Area](ctx, c, "areas", c.resolve("areas/", nil))
}

// ListGroups returns the groups of an area in backend order.
func (c *Client) ListGroups(ctx context.Context, areaID int64) ([]model.Group, error) {
	q := url.Values{"area_id": {id(areaID)}}
	return listAll[model.Group](ctx, c, "groups", c.resolve("groups/", q))
}

// ListPositions returns the positions of an area, narrowed to a group when
// groupID is set.
func (c *Client) ListPositions(ctx context.Context, areaID, groupID int64) ([]model.Position, error) {
	q := url.Values{"area_id": {id(areaID)}}
	if groupID != 0 {
		q.Set("grupo_id", id(groupID))
	}
	return listAll[model.Position](ctx, c, "positions", c.resolve("positions/", q))
}

// ListEmployees returns the employees holding a position.
func (c *Client) ListEmployees(ctx context.Context, positionID int64) ([]model.Employee, error) {
	q := url.Values{"posicion_id": {id(positionID)}}
	return listAll[model.Employee](ctx, c, "users", c.resolve("users/", q))
}

// ListSupervisors returns the users eligible to supervise in an area.
func (c *Client) ListSupervisors(ctx context.Context, areaID int64) ([]model.Supervisor, error) {
	q := url.Values{"area_id": {id(areaID)}}
	return listAll[model.Supervisor](ctx, c, "supervisors", c.resolve("users/supervisors/", q))
}

// ListEvaluations returns the evaluation instances of a position. Templates
// are excluded.
func (c *Client) ListEvaluations(ctx context.Context, areaID, positionID int64) ([]model.EvaluationInstance, error) {
	q := url.Values{
		"area_id":      {id(areaID)},
		"posicion_id":  {id(positionID)},
		"es_plantilla": {"false"},
	}
	return listAll[model.EvaluationInstance](ctx, c, "evaluations", c.resolve("evaluations/", q))
}

// ListResults returns every saved result of a user, following pagination.
func (c *Client) ListResults(ctx context.Context, userID int64) ([]model.EvaluationResult, error) {
	q := url.Values{"usuario": {id(userID)}}
	return listAll[model.EvaluationResult](ctx, c, "evaluation_results", c.resolve("evaluation-results/", q))
}

// LevelProgress returns the backend's precomputed level completion for a
// position.
func (c *Client) LevelProgress(ctx context.Context, positionID int64) ([]model.LevelProgress, error) {
	q := url.Values{"posicion": {id(positionID)}}
	return listAll[model.LevelProgress](ctx, c, "level_progress", c.resolve("level-progress/", q))
}

// CreateResult saves a submitted evaluation. The returned result carries the
// authoritative final percentage.
func (c *Client) CreateResult(ctx context.Context, sub model.ResultSubmission) (model.EvaluationResult, error) {
	var out model.EvaluationResult
	body, err := c.do(ctx, "evaluation_results", http.MethodPost, c.resolve("evaluation-results/", nil), sub, idempotencyFrom(ctx))
	if err != nil {
		return out, err
	}
	if err := decode(body, &out); err != nil {
		return out, err
	}
	return out, nil
}

// CommitSignature sends one signature of a saved result. Sending the same
// slot again updates it.
func (c *Client) CommitSignature(ctx context.Context, resultID int64, req model.SignatureRequest) (model.SignatureRecord, error) {
	var out model.SignatureRecord
	path := "evaluation-results/" + id(resultID) + "/firmar/"
	body, err := c.do(ctx, "sign", http.MethodPost, c.resolve(path, nil), req, "")
	if err != nil {
		return out, err
	}
	if err := decode(body, &out); err != nil {
		return out, err
	}
	return out, nil
}

func (c *Client) resolve(path string, q url.Values) string {
	ref := &url.URL{Path: path}
	if q != nil {
		ref.RawQuery = q.Encode()
	}
	return c.base.ResolveReference(ref).String()
}

func (c *Client) do(ctx context.Context, endpoint, method, target string, payload any, idempotency string) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, failure.Fatal(fmt.Errorf("marshal %s request: %w", endpoint, err))
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, failure.Fatal(fmt.Errorf("build %s request: %w", endpoint, err))
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequestID, requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}
	if idempotency != "" {
		req.Header.Set(HeaderIdempotency, idempotency)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := float64(time.Since(start).Milliseconds())
	if err != nil {
		metrics.RecordBackendRequest(endpoint, method, "error", elapsed)
		c.logger.Warn(ctx, "backend request failed",
			logger.String("endpoint", endpoint),
			logger.String("request_id", requestID),
			logger.Error(err))
		return nil, failure.Transport(0, "", fmt.Errorf("%s %s: %w", method, endpoint, err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	metrics.RecordBackendRequest(endpoint, method, strconv.Itoa(resp.StatusCode), elapsed)
	if err != nil {
		return nil, failure.Transport(resp.StatusCode, "", fmt.Errorf("read %s response: %w", endpoint, err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug(ctx, "backend rejected request",
			logger.String("endpoint", endpoint),
			logger.String("request_id", requestID),
			logger.Int("status", resp.StatusCode))
		return nil, normalize(resp.StatusCode, respBody)
	}
	return respBody, nil
}

// page is the paginated list envelope.
type page[T any] struct {
	Results []T     `json:"results"`
	Next    *string `json:"next"`
}

// listAll follows next links until the last page. A body may also be a bare
// list, which ends pagination.
func listAll[T any](ctx context.Context, c *Client, endpoint, target string) ([]T, error) {
	var all []T
	for pages := 0; target != ""; pages++ {
		if pages >= c.maxPages {
			return nil, failure.Fatal(fmt.Errorf("%w: %s after %d pages", ErrTooManyPages, endpoint, pages))
		}
		body, err := c.do(ctx, endpoint, http.MethodGet, target, nil, "")
		if err != nil {
			return nil, err
		}
		items, next, err := decodeList[T](body)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		target, err = c.next(next)
		if err != nil {
			return nil, err
		}
	}
	return all, nil
}

func (c *Client) next(next string) (string, error) {
	if next == "" {
		return "", nil
	}
	u, err := url.Parse(next)
	if err != nil {
		return "", failure.Fatal(fmt.Errorf("%w: next %q", ErrUnexpectedBody, next))
	}
	return c.base.ResolveReference(u).String(), nil
}

func decodeList[T any](body []byte) ([]T, string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, "", nil
	}
	if trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, "", failure.Fatal(fmt.Errorf("%w: %v", ErrUnexpectedBody, err))
		}
		return items, "", nil
	}
	var p page[T]
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, "", failure.Fatal(fmt.Errorf("%w: %v", ErrUnexpectedBody, err))
	}
	next := ""
	if p.Next != nil {
		next = *p.Next
	}
	return p.Results, next, nil
}

func decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return failure.Fatal(fmt.Errorf("%w: %v", ErrUnexpectedBody, err))
	}
	return nil
}

func id(v int64) string { return strconv.FormatInt(v, 10) }
