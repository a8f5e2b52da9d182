package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/oaf-platform/leo/internal/types"
)

// HTTPStore talks to a collection-based vector store over its REST API.
type HTTPStore struct {
	baseURL string
	client  *http.Client
}

// NewHTTPStore creates a store client. A zero timeout defaults to 10s.
func NewHTTPStore(baseURL string, timeout time.Duration) *HTTPStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type upsertRequest struct {
	Documents []Document `json:"documents"`
}

type queryRequest struct {
	Text   string `json:"text,omitempty"`
	Limit  int    `json:"limit"`
	Filter Filter `json:"filter,omitempty"`
}

type queryResult struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
	Distance float64           `json:"distance"`
}

type queryResponse struct {
	Results []queryResult `json:"results"`
}

type countResponse struct {
	Count int `json:"count"`
}

// Upsert implements Store.
func (s *HTTPStore) Upsert(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	return s.post(ctx, fmt.Sprintf("/collections/%s/upsert", collection), upsertRequest{Documents: docs}, nil)
}

// Query implements Store.
func (s *HTTPStore) Query(ctx context.Context, collection, text string, limit int, filter Filter) ([]types.SearchHit, error) {
	var resp queryResponse
	err := s.post(ctx, fmt.Sprintf("/collections/%s/query", collection), queryRequest{
		Text:   text,
		Limit:  limit,
		Filter: filter,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return s.toHits(collection, resp.Results), nil
}

// Sample implements Store. The store treats an empty query text as a broad
// sample of the collection.
func (s *HTTPStore) Sample(ctx context.Context, collection string, limit int, filter Filter) ([]types.SearchHit, error) {
	var resp queryResponse
	err := s.post(ctx, fmt.Sprintf("/collections/%s/sample", collection), queryRequest{
		Limit:  limit,
		Filter: filter,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return s.toHits(collection, resp.Results), nil
}

// Get implements Store. Returns nil without error when the id is absent.
func (s *HTTPStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	url := fmt.Sprintf("%s/collections/%s/documents/%s", s.baseURL, collection, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building get request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vector store get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("vector store get: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return &doc, nil
}

// Count implements Store.
func (s *HTTPStore) Count(ctx context.Context, collection string) (int, error) {
	url := fmt.Sprintf("%s/collections/%s/count", s.baseURL, collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("building count request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("vector store count: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("vector store count: status %d", resp.StatusCode)
	}

	var out countResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decoding count: %w", err)
	}
	return out.Count, nil
}

// Healthy implements Store.
func (s *HTTPStore) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("building health request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("vector store unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vector store unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func (s *HTTPStore) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("vector store request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("vector store %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (s *HTTPStore) toHits(collection string, results []queryResult) []types.SearchHit {
	hits := make([]types.SearchHit, 0, len(results))
	for _, r := range results {
		sim := 1 - r.Distance
		if sim < 0 {
			sim = 0
		}
		hit := types.SearchHit{
			ID:         r.ID,
			Collection: collection,
			Content:    r.Content,
			Metadata:   r.Metadata,
			Similarity: sim,
			Item:       ItemFromMetadata(r.ID, r.Metadata),
		}
		hits = append(hits, hit)
	}
	if len(hits) > 0 {
		slog.Debug("vector store query returned hits", "collection", collection, "count", len(hits))
	}
	return hits
}
