package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Database wraps one document database (project), addressed by a path such
// as "account/name" below the API root.
type Database struct {
	client *Client
	path   string
	meta   map[string]any
}

// Topic is a topic definition as returned by the API.
type Topic struct {
	ID            string          `json:"_id"`
	Name          string          `json:"name"`
	Role          string          `json:"role,omitempty"`
	Color         string          `json:"color,omitempty"`
	WeightedTerms json.RawMessage `json:"weighted_terms,omitempty"`
}

// TopicParams describes a topic to create. WeightedTerms is sent as JSON.
type TopicParams struct {
	Name          string
	Role          string
	Color         string
	WeightedTerms any
}

// SearchStyle selects how Search interprets its query.
type SearchStyle string

const (
	SearchText  SearchStyle = "text"
	SearchTerms SearchStyle = "terms"
	SearchTopic SearchStyle = "topic"
)

// SearchQuery configures Search. Limit defaults to 10.
type SearchQuery struct {
	Query   string
	Style   SearchStyle
	Limit   int
	Near    string
	StartAt int
}

// OpenDatabase returns a wrapper for path and loads its metadata. The path is
// resolved against the client's root URL.
func OpenDatabase(ctx context.Context, c *Client, path string) (*Database, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, fmt.Errorf("open database: path is empty")
	}
	sub, err := c.ChangePath("/" + path)
	if err != nil {
		return nil, err
	}

	db := &Database{client: sub, path: path}
	if err := sub.Get(ctx, "meta", nil, &db.meta); err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	return db, nil
}

// Path returns the database path below the API root.
func (d *Database) Path() string { return d.path }

// Client returns the client scoped to this database.
func (d *Database) Client() *Client { return d.client }

// Meta returns the metadata loaded by OpenDatabase.
func (d *Database) Meta() map[string]any { return d.meta }

func (d *Database) String() string { return fmt.Sprintf("database %q", d.path) }

// Relevance returns the most relevant terms.
func (d *Database) Relevance(ctx context.Context, limit int) (json.RawMessage, error) {
	var out struct {
		Result json.RawMessage `json:"result"`
	}
	if err := d.client.Get(ctx, "get_relevance", intParam("limit", limit, 10), &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// UploadDocuments posts docs as a JSON array.
func (d *Database) UploadDocuments(ctx context.Context, docs any) (json.RawMessage, error) {
	return d.client.UploadDocuments(ctx, docs)
}

func (d *Database) DocVectors(ctx context.Context) (json.RawMessage, error) {
	return d.raw(ctx, "docvectors", nil)
}

// DocIDs lists the IDs of every document in the database.
func (d *Database) DocIDs(ctx context.Context) ([]string, error) {
	var out struct {
		IDs []string `json:"ids"`
	}
	if err := d.client.Get(ctx, "docs", nil, &out); err != nil {
		return nil, err
	}
	return out.IDs, nil
}

// Doc fetches one document. The ID is path-escaped, slashes included.
func (d *Database) Doc(ctx context.Context, id string) (map[string]any, error) {
	var out map[string]any
	if err := d.client.Get(ctx, "docs/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Database) Topics(ctx context.Context) ([]Topic, error) {
	var out struct {
		Topics []Topic `json:"topics"`
	}
	if err := d.client.Get(ctx, "topics", nil, &out); err != nil {
		return nil, err
	}
	return out.Topics, nil
}

func (d *Database) RecalculateTopics(ctx context.Context) (json.RawMessage, error) {
	return d.raw(ctx, "topics/.calculate", nil)
}

// CreateTopic creates a topic. Values that are not already JSON text are
// JSON-encoded before they are sent.
func (d *Database) CreateTopic(ctx context.Context, p TopicParams) (Topic, error) {
	params := url.Values{}
	params.Set("name", p.Name)
	if p.Role != "" {
		params.Set("role", p.Role)
	}
	if p.Color != "" {
		params.Set("color", p.Color)
	}
	if p.WeightedTerms != nil {
		terms, err := jsonParam(p.WeightedTerms)
		if err != nil {
			return Topic{}, fmt.Errorf("encode weighted_terms: %w", err)
		}
		params.Set("weighted_terms", terms)
	}

	var out Topic
	if err := d.client.Post(ctx, "topics/create", params, &out); err != nil {
		return Topic{}, err
	}
	return out, nil
}

func (d *Database) DeleteTopic(ctx context.Context, id string) (json.RawMessage, error) {
	var out json.RawMessage
	err := d.client.Post(ctx, "topics/.delete", url.Values{"topic_id": {id}}, &out)
	return out, err
}

func (d *Database) Topic(ctx context.Context, id string) (Topic, error) {
	var out Topic
	if err := d.client.Get(ctx, "topics/"+url.PathEscape(id), nil, &out); err != nil {
		return Topic{}, err
	}
	if out.ID == "" {
		out.ID = id
	}
	return out, nil
}

func (d *Database) TopicStats(ctx context.Context) (json.RawMessage, error) {
	return d.raw(ctx, "topic_stats", nil)
}

func (d *Database) TopicHistograms(ctx context.Context, bins int) (json.RawMessage, error) {
	return d.raw(ctx, "topic_histograms", intParam("bins", bins, 10))
}

func (d *Database) TopicCorrelation(ctx context.Context, text string) (json.RawMessage, error) {
	return d.raw(ctx, "topic_correlation", url.Values{"text": {text}})
}

// BatchTopicCorrelation sends texts as a JSON list.
func (d *Database) BatchTopicCorrelation(ctx context.Context, texts []string) (json.RawMessage, error) {
	encoded, err := json.Marshal(texts)
	if err != nil {
		return nil, fmt.Errorf("encode texts: %w", err)
	}
	return d.raw(ctx, "batch_topic_correlation", url.Values{"texts": {string(encoded)}})
}

func (d *Database) AllDocumentCorrelations(ctx context.Context) (json.RawMessage, error) {
	return d.raw(ctx, "all_document_correlations", nil)
}

func (d *Database) Timeline(ctx context.Context, bins int) (json.RawMessage, error) {
	return d.raw(ctx, "timeline", intParam("bins", bins, 10))
}

func (d *Database) TermSearch(ctx context.Context, text string, limit int, domain bool) (json.RawMessage, error) {
	params := intParam("limit", limit, 10)
	params.Set("text", text)
	params.Set("domain", strconv.FormatBool(domain))
	return d.raw(ctx, "term_search", params)
}

// Search runs a text, terms or topic search.
func (d *Database) Search(ctx context.Context, q SearchQuery) (json.RawMessage, error) {
	params := intParam("limit", q.Limit, 10)
	switch q.Style {
	case SearchTerms:
		params.Set("terms", q.Query)
	case SearchTopic:
		params.Set("topic", q.Query)
	case SearchText, "":
		params.Set("text", q.Query)
	default:
		return nil, fmt.Errorf("search: unknown style %q", q.Style)
	}
	if q.Near != "" {
		params.Set("near", q.Near)
	}
	params.Set("start_at", strconv.Itoa(q.StartAt))
	return d.raw(ctx, "search", params)
}

func (d *Database) raw(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	var out json.RawMessage
	if err := d.client.Get(ctx, path, params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func intParam(name string, v, fallback int) url.Values {
	if v <= 0 {
		v = fallback
	}
	return url.Values{name: {strconv.Itoa(v)}}
}

// jsonParam passes strings that already hold JSON through unchanged and
// encodes everything else.
func jsonParam(v any) (string, error) {
	if s, ok := v.(string); ok && json.Valid([]byte(s)) {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
