package api

import (
	"context"
	"fmt"
	"net/url"
)

// ListAgents fetches a page of agents.
func (c *Client) ListAgents(ctx context.Context, page Page) (*AgentsResponse, error) {
	page = page.normalize(DefaultPageLimit, MaxPageLimit)

	var resp AgentsResponse
	if err := c.get(ctx, "/agents", page.values(), &resp); err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return &resp, nil
}

// ListAllAgents fetches every agent by paging through results.
func (c *Client) ListAllAgents(ctx context.Context, pageSize int) (*AgentsResponse, error) {
	page := Page{Limit: pageSize}.normalize(DefaultPageLimit, MaxPageLimit)
	all := &AgentsResponse{}

	for {
		resp, err := c.ListAgents(ctx, page)
		if err != nil {
			return nil, err
		}

		all.Agents = append(all.Agents, resp.Agents...)
		all.Total = resp.Total

		next, more := page.Next(len(resp.Agents), resp.Total)
		if !more {
			break
		}
		page = next
	}

	return all, nil
}

// GetAgent fetches a single agent by id.
func (c *Client) GetAgent(ctx context.Context, id string) (*SingleAgentResponse, error) {
	var resp SingleAgentResponse
	if err := c.get(ctx, "/agents/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, fmt.Errorf("get agent %s: %w", id, err)
	}
	return &resp, nil
}

// ListPositions fetches a page of an agent's positions.
func (c *Client) ListPositions(ctx context.Context, agentID string, page Page) (*PositionsResponse, error) {
	page = page.normalize(DefaultPageLimit, MaxPageLimit)

	var resp PositionsResponse
	if err := c.get(ctx, "/agents/"+url.PathEscape(agentID)+"/positions", page.values(), &resp); err != nil {
		return nil, fmt.Errorf("list positions %s: %w", agentID, err)
	}
	return &resp, nil
}
