// Package directory is a thin client for the platform REST API: friend
// listing and group seeding. The engine consumes it once per group
// creation; it is not part of the sync loop.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	authorizationHeader = "Authorization"
	contentTypeHeader   = "Content-Type"
	contentTypeJSON     = "application/json"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
	}
}

type Friend struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type friendsResponse struct {
	Data []Friend `json:"data"`
}

// Friends lists the current user's friends, the candidate pool for
// group creation and AddMember.
func (c *Client) Friends(ctx context.Context) ([]Friend, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/friends", http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Add(authorizationHeader, c.apiKey)
	req.Header.Add(contentTypeHeader, contentTypeJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var friends friendsResponse
	if err := json.Unmarshal(body, &friends); err != nil {
		return nil, err
	}
	return friends.Data, nil
}

type createGroupRequest struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids"`
}

type createGroupResponse struct {
	ID string `json:"id"`
}

// CreateGroup seeds a new group conversation with an initial member
// set and returns its conversation id.
func (c *Client) CreateGroup(ctx context.Context, name string, memberIDs []string) (string, error) {
	payload, err := json.Marshal(createGroupRequest{Name: name, MemberIDs: memberIDs})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/groups", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Add(authorizationHeader, c.apiKey)
	req.Header.Add(contentTypeHeader, contentTypeJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	var created createGroupResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}
