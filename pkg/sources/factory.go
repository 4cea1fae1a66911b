package sources

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// New creates a source from its kind and a generic configuration map.
// This is the central extension point for adding new source types.
//
// Supported kinds:
//   - "csv":  local CSV file
//   - "http": REST API with a JSON response
//
// The client is used for outbound requests by sources that make them; nil
// selects a default client. Callers that fetch over mTLS pass a client
// built with httpx.NewClient.
//
// Returns an error if kind is unknown or required fields are missing.
func New(kind string, config map[string]string, client *http.Client) (Source, error) {
	switch kind {
	case "csv":
		return newCSV(config)
	case "http":
		return newHTTP(config, client)
	default:
		return nil, fmt.Errorf("unknown source kind: %s (must be csv or http)", kind)
	}
}

func newCSV(config map[string]string) (Source, error) {
	path := config["path"]
	if path == "" {
		return nil, fmt.Errorf("csv source requires 'path' config")
	}

	return &CSVSource{
		Path:        path,
		SeriesName:  config["series"],
		DateColumn:  config["dateColumn"],
		ValueColumn: config["valueColumn"],
	}, nil
}

func newHTTP(config map[string]string, client *http.Client) (Source, error) {
	url := config["url"]
	if url == "" {
		return nil, fmt.Errorf("http source requires 'url' config")
	}
	name := config["series"]
	if name == "" {
		return nil, fmt.Errorf("http source requires 'series' config")
	}
	valuePath := config["valuePath"]
	datePath := config["datePath"]
	if valuePath == "" || datePath == "" {
		return nil, fmt.Errorf("http source requires 'valuePath' and 'datePath' config")
	}

	var headers map[string]string
	if headersJSON := config["headers"]; headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}

	return &HTTPSource{
		URL:        url,
		SeriesName: name,
		ValuePath:  valuePath,
		DatePath:   datePath,
		DateFormat: config["dateFormat"],
		Headers:    headers,
		HTTPClient: client,
	}, nil
}
