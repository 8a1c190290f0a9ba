package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// apiClient talks to the bot's REST API so the bot process stays the only writer.
type apiClient struct {
	baseURL  string
	username string
	password string
	http     *http.Client
}

func newAPIClient(baseURL, username, password string) *apiClient {
	return &apiClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *apiClient) get(path string) (string, bool) {
	return c.request(http.MethodGet, path, nil)
}

func (c *apiClient) post(path string, body interface{}) (string, bool) {
	return c.request(http.MethodPost, path, body)
}

// request returns the pretty-printed data field of the API response, or an
// error text and true.
func (c *apiClient) request(method, path string, body interface{}) (string, bool) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Sprintf("Error encoding request: %v", err), true
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Sprintf("Error creating request: %v", err), true
	}

	req.SetBasicAuth(c.username, c.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Sprintf("Error making request: %v", err), true
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("Error reading response: %v", err), true
	}

	var apiResp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}

	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return strings.TrimSpace(string(respBody)), resp.StatusCode >= 400
	}

	if !apiResp.Success {
		return fmt.Sprintf("API Error: %s", apiResp.Error), true
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, apiResp.Data, "", "  "); err != nil {
		return string(apiResp.Data), false
	}
	return pretty.String(), false
}
