package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"engagement-engine/utils"
)

// RoleGranter is the capability the role evaluator needs from the chat
// platform.
type RoleGranter interface {
	HasRole(ctx context.Context, userID, role string) (bool, error)
	GrantRole(ctx context.Context, userID, role string) error
}

// MembershipClient talks to the chat bridge's membership API.
type MembershipClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewMembershipClient(baseURL, token string) *MembershipClient {
	return &MembershipClient{
		BaseURL: baseURL,
		Token:   token,
		Client:  utils.HTTPClient,
	}
}

type memberRolesResponse struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
}

// HasRole calls GET /members/{user}/roles on the bridge.
func (c *MembershipClient) HasRole(ctx context.Context, userID, role string) (bool, error) {
	endpoint := fmt.Sprintf("%s/members/%s/roles", c.BaseURL, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	c.authorize(req)

	resp, err := c.Client.Do(req)
	if err != nil {
		return false, fmt.Errorf("lookup member roles: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("membership lookup returned %d: %s", resp.StatusCode, string(body))
	}

	var out memberRolesResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return false, fmt.Errorf("decode member roles: %w", err)
	}
	for _, r := range out.Roles {
		if r == role {
			return true, nil
		}
	}
	return false, nil
}

// GrantRole calls POST /members/{user}/roles on the bridge.
func (c *MembershipClient) GrantRole(ctx context.Context, userID, role string) error {
	endpoint := fmt.Sprintf("%s/members/%s/roles", c.BaseURL, url.PathEscape(userID))
	payload, _ := json.Marshal(map[string]string{"role": role})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("role grant returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (c *MembershipClient) authorize(req *http.Request) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}

// MemoryGranter keeps role membership in process. Used when no bridge is
// configured and in tests.
type MemoryGranter struct {
	mu    sync.Mutex
	roles map[string]map[string]bool
}

func NewMemoryGranter() *MemoryGranter {
	return &MemoryGranter{roles: map[string]map[string]bool{}}
}

func (g *MemoryGranter) HasRole(_ context.Context, userID, role string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.roles[userID][role], nil
}

func (g *MemoryGranter) GrantRole(_ context.Context, userID, role string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.roles[userID] == nil {
		g.roles[userID] = map[string]bool{}
	}
	g.roles[userID][role] = true
	return nil
}

// Roles returns the roles held by userID.
func (g *MemoryGranter) Roles(userID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for r := range g.roles[userID] {
		out = append(out, r)
	}
	return out
}
