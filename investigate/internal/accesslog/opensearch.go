// Package accesslog reads and writes the HTTP access log kept in
// OpenSearch. Timelines show the significant entries as action_taken events.
package accesslog

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

// Config addresses the OpenSearch cluster. Index is a search pattern such
// as "access-logs-*"; writes go to the daily index it names.
type Config struct {
	URL      string
	Username string
	Password string
	Insecure bool
	Index    string
}

// OpenSearchStore implements the timeline access-log source and Recorder.
type OpenSearchStore struct {
	client *opensearch.Client
	index  string
	now    func() time.Time
}

func NewOpenSearchStore(cfg Config) (*OpenSearchStore, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.Insecure,
			},
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpClient.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	index := cfg.Index
	if index == "" {
		index = "access-logs-*"
	}
	return &OpenSearchStore{client: client, index: index, now: time.Now}, nil
}

// Ping checks the cluster is reachable.
func (s *OpenSearchStore) Ping(ctx context.Context) error {
	res, err := s.client.Info(s.client.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to ping opensearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("opensearch returned error: %s", res.Status())
	}
	return nil
}

func (s *OpenSearchStore) prefix() string {
	return strings.TrimSuffix(strings.TrimSuffix(s.index, "*"), "-")
}

// writeIndex is the daily index for t, e.g. access-logs-2024.05.06.
func (s *OpenSearchStore) writeIndex(t time.Time) string {
	return s.prefix() + "-" + t.UTC().Format("2006.01.02")
}

func accessLogMappings() map[string]interface{} {
	return map[string]interface{}{
		"properties": map[string]interface{}{
			"method":    map[string]interface{}{"type": "keyword"},
			"path":      map[string]interface{}{"type": "keyword"},
			"user":      map[string]interface{}{"type": "keyword"},
			"ip":        map[string]interface{}{"type": "keyword"},
			"timestamp": map[string]interface{}{"type": "date"},
		},
	}
}

// EnsureTemplate installs the index template for the daily indices so that
// method and path are indexed verbatim. Indices created before the template
// keep their dynamic mapping.
func (s *OpenSearchStore) EnsureTemplate(ctx context.Context) error {
	template := map[string]interface{}{
		"index_patterns": []string{s.prefix() + "-*"},
		"template": map[string]interface{}{
			"mappings": accessLogMappings(),
		},
		"priority": 100,
	}

	body, err := json.Marshal(template)
	if err != nil {
		return fmt.Errorf("failed to marshal index template: %w", err)
	}

	res, err := s.client.Indices.PutIndexTemplate(
		s.prefix()+"-template",
		bytes.NewReader(body),
		s.client.Indices.PutIndexTemplate.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create index template: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return fmt.Errorf("failed to create index template: %s - %s", res.Status(), string(msg))
	}
	return nil
}

// Record indexes one access-log entry.
func (s *OpenSearchStore) Record(ctx context.Context, l models.AccessLog) error {
	if l.Timestamp.IsZero() {
		l.Timestamp = s.now()
	}
	body, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to marshal access log: %w", err)
	}

	res, err := s.client.Index(
		s.writeIndex(l.Timestamp),
		bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to index access log: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return fmt.Errorf("opensearch error: %s - %s", res.Status(), string(msg))
	}
	return nil
}

var writeMethods = []string{"POST", "PUT", "PATCH", "DELETE"}

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

// buildSignificantQuery matches writes or sensitive paths, restricted to
// paths mentioning one of terms when any are given. method and path are
// keyword fields (see EnsureTemplate), so whole paths are matched.
func buildSignificantQuery(terms []string, limit int) map[string]interface{} {
	filter := []map[string]interface{}{
		{
			"bool": map[string]interface{}{
				"should": []map[string]interface{}{
					{"terms": map[string]interface{}{"method": writeMethods}},
					{"regexp": map[string]interface{}{
						"path": map[string]interface{}{
							"value":            ".*(evidence|escalate|reports|risk|admin).*",
							"case_insensitive": true,
						},
					}},
				},
				"minimum_should_match": 1,
			},
		},
	}

	if len(terms) > 0 {
		should := make([]map[string]interface{}, 0, len(terms))
		for _, t := range terms {
			should = append(should, map[string]interface{}{
				"wildcard": map[string]interface{}{
					"path": map[string]interface{}{
						"value":            "*" + wildcardEscaper.Replace(t) + "*",
						"case_insensitive": true,
					},
				},
			})
		}
		filter = append(filter, map[string]interface{}{
			"bool": map[string]interface{}{
				"should":               should,
				"minimum_should_match": 1,
			},
		})
	}

	return map[string]interface{}{
		"size": limit,
		"sort": []map[string]interface{}{
			{"timestamp": map[string]string{"order": "desc"}},
		},
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": filter,
			},
		},
	}
}

// SearchSignificant returns up to limit significant entries whose path
// mentions any of terms, most recent first.
func (s *OpenSearchStore) SearchSignificant(ctx context.Context, terms []string, limit int) ([]models.AccessLog, error) {
	bodyBytes, err := json.Marshal(buildSignificantQuery(terms, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search body: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(bytes.NewReader(bodyBytes)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search access logs: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("opensearch error: %s - %s", res.Status(), string(body))
	}

	var searchResult struct {
		Hits struct {
			Hits []struct {
				ID     string          `json:"_id"`
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&searchResult); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	logs := make([]models.AccessLog, 0, len(searchResult.Hits.Hits))
	for _, hit := range searchResult.Hits.Hits {
		var l models.AccessLog
		if err := json.Unmarshal(hit.Source, &l); err != nil {
			// malformed documents are skipped
			continue
		}
		l.ID = hit.ID
		logs = append(logs, l)
	}
	return logs, nil
}
