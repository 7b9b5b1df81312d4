// Copyright 2026 The Ontofs Authors
// SPDX-License-Identifier: Apache-2.0

package kg

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ontograph/ontofs/lib/clock"
)

// DefaultPageLimit is the page size for document listings when the
// options leave it unset.
const DefaultPageLimit = 100

// DefaultRequestTimeout bounds every backend request.
const DefaultRequestTimeout = 30 * time.Second

// Options configures a Client.
type Options struct {
	// BaseURL is the service base URL (e.g. https://kg.example.com).
	BaseURL string

	// ClientID and ClientSecret authenticate via the
	// client-credentials grant.
	ClientID     string
	ClientSecret string

	// Timeout bounds each request. Zero uses DefaultRequestTimeout.
	Timeout time.Duration

	// PageLimit is the document listing page size. Zero uses
	// DefaultPageLimit.
	PageLimit int

	// HTTPClient overrides the transport. If nil, http.DefaultClient.
	HTTPClient *http.Client

	// Clock provides time for token expiry. If nil, clock.Real().
	Clock clock.Clock

	// Logger receives diagnostic messages. If nil, logging is
	// disabled.
	Logger *slog.Logger
}

// Client calls the knowledge-graph service. It is safe for concurrent
// use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	pageLimit  int
	session    *Session
	logger     *slog.Logger
}

// New creates a Client. The session is lazy: no token exchange happens
// until the first request.
func New(options Options) (*Client, error) {
	if options.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if options.Timeout == 0 {
		options.Timeout = DefaultRequestTimeout
	}
	if options.PageLimit == 0 {
		options.PageLimit = DefaultPageLimit
	}
	if options.HTTPClient == nil {
		options.HTTPClient = http.DefaultClient
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}

	baseURL := strings.TrimSuffix(options.BaseURL, "/")
	return &Client{
		httpClient: options.HTTPClient,
		baseURL:    baseURL,
		timeout:    options.Timeout,
		pageLimit:  options.PageLimit,
		session: NewSession(baseURL, options.ClientID, options.ClientSecret,
			options.HTTPClient, options.Clock),
		logger: options.Logger,
	}, nil
}

// ListOntologies returns the names of all ontologies.
func (c *Client) ListOntologies(ctx context.Context) ([]string, error) {
	var parsed struct {
		Ontologies []string `json:"ontologies"`
	}
	if err := c.get(ctx, "/v1/ontologies", nil, &parsed); err != nil {
		return nil, fmt.Errorf("listing ontologies: %w", err)
	}
	return parsed.Ontologies, nil
}

// ListDocuments returns all documents in an ontology, paging through
// the listing endpoint until a short page signals exhaustion.
func (c *Client) ListDocuments(ctx context.Context, ontology string) ([]DocumentRef, error) {
	var documents []DocumentRef
	for offset := 0; ; offset += c.pageLimit {
		var parsed struct {
			Documents []DocumentRef `json:"documents"`
		}
		query := url.Values{
			"limit":  {fmt.Sprint(c.pageLimit)},
			"offset": {fmt.Sprint(offset)},
		}
		path := "/v1/ontologies/" + url.PathEscape(ontology) + "/documents"
		if err := c.get(ctx, path, query, &parsed); err != nil {
			return nil, fmt.Errorf("listing documents in %s: %w", ontology, err)
		}
		documents = append(documents, parsed.Documents...)
		if len(parsed.Documents) < c.pageLimit {
			return documents, nil
		}
	}
}

// GetDocument fetches a document's metadata and full content segments.
func (c *Client) GetDocument(ctx context.Context, id string) (*Document, error) {
	var document Document
	if err := c.get(ctx, "/v1/documents/"+url.PathEscape(id), nil, &document); err != nil {
		return nil, fmt.Errorf("fetching document %s: %w", id, err)
	}
	return &document, nil
}

// GetJob fetches one ingestion job's status.
func (c *Client) GetJob(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := c.get(ctx, "/v1/jobs/"+url.PathEscape(id), nil, &job); err != nil {
		return nil, fmt.Errorf("fetching job %s: %w", id, err)
	}
	return &job, nil
}

// ListJobs returns the ingestion jobs currently reported for an
// ontology, including recently finished ones still in the service's
// job window.
func (c *Client) ListJobs(ctx context.Context, ontology string) ([]Job, error) {
	var parsed struct {
		Jobs []Job `json:"jobs"`
	}
	path := "/v1/ontologies/" + url.PathEscape(ontology) + "/jobs"
	if err := c.get(ctx, path, nil, &parsed); err != nil {
		return nil, fmt.Errorf("listing jobs in %s: %w", ontology, err)
	}
	return parsed.Jobs, nil
}

// get performs an authenticated GET and decodes the JSON response
// into v. Each call is bounded by the client timeout; a slow backend
// fails the operation rather than hanging it indefinitely.
func (c *Client) get(ctx context.Context, path string, query url.Values, v any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	token, err := c.session.Token(ctx)
	if err != nil {
		return err
	}

	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+token)
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if response.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("%s %s: %s: %s", http.MethodGet, path,
			response.Status, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(response.Body).Decode(v); err != nil {
		return fmt.Errorf("parsing response for %s: %w", path, err)
	}
	return nil
}
