package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultClientTimeout is the default timeout for API requests. Workflow
// calls block while agents run, so they use a longer one.
const (
	DefaultClientTimeout  = 10 * time.Second
	WorkflowClientTimeout = 10 * time.Minute
)

var (
	apiClient      = &http.Client{Timeout: DefaultClientTimeout}
	workflowClient = &http.Client{Timeout: WorkflowClientTimeout}
)

// apiGet performs a GET request to the API with timeout.
func apiGet(path string) ([]byte, error) {
	resp, err := apiClient.Get(apiAddr + path)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	return readBody(resp, false)
}

// apiPost performs a POST request to the API with timeout.
func apiPost(path string, data interface{}) ([]byte, error) {
	return post(apiClient, path, data, false)
}

// workflowPost posts a workflow operation. Coordinator outcomes such as
// a blocked or failed workflow come back as a body, not an error.
func workflowPost(path string, data interface{}) ([]byte, error) {
	return post(workflowClient, path, data, true)
}

func post(client *http.Client, path string, data interface{}, acceptBadGateway bool) ([]byte, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	resp, err := client.Post(apiAddr+path, "application/json", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	return readBody(resp, acceptBadGateway)
}

func readBody(resp *http.Response, acceptBadGateway bool) ([]byte, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 && !(acceptBadGateway && resp.StatusCode == http.StatusBadGateway) {
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}
