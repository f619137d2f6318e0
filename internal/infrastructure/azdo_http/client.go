package azdo_http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/davarch/pipeline-lineage/internal/domain"
	"github.com/davarch/pipeline-lineage/internal/infrastructure/metrics"
	"golang.org/x/sync/semaphore"
)

const apiVersion = "7.1"

type StatusError struct {
	Op     string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("azure devops %s: %s", e.Op, e.Status)
}

// Client talks to the Azure DevOps REST API. Every request holds one slot of
// a shared semaphore, so recursive resolution cannot exceed maxConcurrency
// in-flight calls.
type Client struct {
	baseUrl string
	token   string
	hc      *http.Client
	sem     *semaphore.Weighted

	retryMaxElapsed time.Duration
}

var _ domain.DefinitionFetcher = (*Client)(nil)

func New(baseUrl string, token string, timeout time.Duration, maxConcurrency int64) *Client {
	tr := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}

	if maxConcurrency <= 0 {
		maxConcurrency = 200
	}

	return &Client{
		baseUrl:         trimSlash(baseUrl),
		token:           token,
		hc:              &http.Client{Transport: tr, Timeout: timeout},
		sem:             semaphore.NewWeighted(maxConcurrency),
		retryMaxElapsed: 10 * time.Second,
	}
}

func (c *Client) GetProject(ctx context.Context, org, nameOrID string) (*domain.ProjectRef, error) {
	var dto projectDTO
	q := url.Values{"api-version": {apiVersion}}
	u := fmt.Sprintf("%s/%s/_apis/projects/%s?%s", c.baseUrl, url.PathEscape(org), url.PathEscape(nameOrID), q.Encode())
	found, _, err := c.do(ctx, "get_project", http.MethodGet, u, nil, notFound, &dto)
	if err != nil || !found {
		return nil, err
	}
	return &domain.ProjectRef{ID: dto.ID, Name: dto.Name}, nil
}

func (c *Client) GetPipelineDefinition(ctx context.Context, org, project, id string) (*domain.PipelineDefinition, error) {
	var dto definitionDTO
	u := c.url(org, project, "_apis/build/definitions/"+url.PathEscape(id), nil)
	found, _, err := c.do(ctx, "get_definition", http.MethodGet, u, nil, notFound, &dto)
	if err != nil || !found {
		return nil, err
	}
	p := dto.toDomain()
	return &p, nil
}

func (c *Client) GetRenderedYaml(ctx context.Context, org, project, pipelineID string) (string, error) {
	var out struct {
		FinalYaml string `json:"finalYaml"`
	}
	u := c.url(org, project, "_apis/pipelines/"+url.PathEscape(pipelineID)+"/preview", nil)
	body := map[string]any{"previewRun": true}

	// pipelines that fail to render are reported as having no YAML
	unrenderable := func(code int) bool {
		return code == http.StatusBadRequest || code == http.StatusNotFound || code >= 500
	}

	found, _, err := c.do(ctx, "render_yaml", http.MethodPost, u, body, unrenderable, &out)
	if err != nil || !found {
		return "", err
	}
	return out.FinalYaml, nil
}

func (c *Client) ListPipelines(ctx context.Context, org, project string) ([]domain.PipelineDefinition, error) {
	var out []domain.PipelineDefinition
	token := ""
	for {
		q := url.Values{"includeAllProperties": {"true"}}
		if token != "" {
			q.Set("continuationToken", token)
		}

		var page struct {
			Value []definitionDTO `json:"value"`
		}
		u := c.url(org, project, "_apis/build/definitions", q)
		found, hdr, err := c.do(ctx, "list_definitions", http.MethodGet, u, nil, notFound, &page)
		if err != nil {
			return nil, err
		}
		if !found {
			return out, nil
		}

		for _, d := range page.Value {
			out = append(out, d.toDomain())
		}

		token = hdr.Get("x-ms-continuationtoken")
		if token == "" {
			return out, nil
		}
	}
}

func (c *Client) GetRepository(ctx context.Context, org, project, nameOrID string) (*domain.RepositoryDefinition, error) {
	var dto repositoryDTO
	u := c.url(org, project, "_apis/git/repositories/"+url.PathEscape(nameOrID), nil)
	found, _, err := c.do(ctx, "get_repository", http.MethodGet, u, nil, notFound, &dto)
	if err != nil || !found {
		return nil, err
	}
	r := dto.toDomain()
	return &r, nil
}

func (c *Client) GetTaskGroup(ctx context.Context, org, project, id, versionSpec string) (*domain.TaskGroup, error) {
	var out struct {
		Value []taskGroupDTO `json:"value"`
	}
	u := c.url(org, project, "_apis/distributedtask/taskgroups/"+url.PathEscape(id), nil)
	found, _, err := c.do(ctx, "get_task_group", http.MethodGet, u, nil, notFound, &out)
	if err != nil || !found {
		return nil, err
	}
	dto, ok := pickTaskGroup(out.Value, versionSpec)
	if !ok {
		return nil, nil
	}
	g := dto.toDomain()
	return &g, nil
}

func notFound(code int) bool { return code == http.StatusNotFound }

func (c *Client) url(org, project, path string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	q.Set("api-version", apiVersion)
	return fmt.Sprintf("%s/%s/%s/%s?%s", c.baseUrl, url.PathEscape(org), url.PathEscape(project), path, q.Encode())
}

// do runs one request with retries. Status codes for which absent returns
// true end the call with found=false and no error.
func (c *Client) do(ctx context.Context, op, method, u string, body any, absent func(int) bool, out any) (bool, http.Header, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return false, nil, fmt.Errorf("%s: encode body: %w", op, err)
		}
		payload = b
	}

	var (
		found bool
		hdr   http.Header
	)

	operation := func() error {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return backoff.Permanent(err)
		}
		defer c.sem.Release(1)

		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, rd)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.SetBasicAuth("", c.token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		resp, err := c.hc.Do(req)
		metrics.APIRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.APIRequests.WithLabelValues(op, "error").Inc()
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}

		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()
		metrics.APIRequests.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()

		if absent != nil && absent(resp.StatusCode) {
			found = false
			return nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if sec, _ := strconv.Atoi(ra); sec > 0 {
					select {
					case <-time.After(time.Duration(sec) * time.Second):
					case <-ctx.Done():
						return backoff.Permanent(ctx.Err())
					}
					return fmt.Errorf("retry after due to 429")
				}
			}

			return fmt.Errorf("azure devops 429")
		}

		if resp.StatusCode >= 500 {
			return &StatusError{Op: op, Code: resp.StatusCode, Status: resp.Status}
		}

		if resp.StatusCode >= 300 {
			return backoff.Permanent(&StatusError{Op: op, Code: resp.StatusCode, Status: resp.Status})
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode response: %w", err))
			}
		}

		found = true
		hdr = resp.Header
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 300 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = c.retryMaxElapsed

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return false, nil, fmt.Errorf("%s %s: %w", op, strings.TrimPrefix(u, c.baseUrl), err)
	}
	return found, hdr, nil
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
