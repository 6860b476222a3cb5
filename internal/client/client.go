// Package client is a typed HTTP client for the agency API, used by
// integration tests and command-line tooling.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Yuzori/l-Agence/internal/agency"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		blob, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(blob)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	blob, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		var envelope struct {
			Error apiError `json:"error"`
		}
		if json.Unmarshal(blob, &envelope) == nil && envelope.Error.Code != "" {
			return blob, fmt.Errorf("%s %s failed status=%d code=%s: %s",
				method, path, resp.StatusCode, envelope.Error.Code, envelope.Error.Message)
		}
		return blob, fmt.Errorf("%s %s failed status=%d body=%s", method, path, resp.StatusCode, string(blob))
	}
	return blob, nil
}

func (c *Client) RequestContact(ctx context.Context, sender, recipient string) error {
	_, err := c.doJSON(ctx, http.MethodPost, "/api/contacts/request", map[string]any{
		"sender":    sender,
		"recipient": recipient,
	})
	return err
}

func (c *Client) AcceptContact(ctx context.Context, contactID int64, agentName string) error {
	_, err := c.doJSON(ctx, http.MethodPost, "/api/contacts/accept", map[string]any{
		"contactId": contactID,
		"agentName": agentName,
	})
	return err
}

func (c *Client) DeclineContact(ctx context.Context, contactID int64, agentName string) error {
	_, err := c.doJSON(ctx, http.MethodPost, "/api/contacts/decline", map[string]any{
		"contactId": contactID,
		"agentName": agentName,
	})
	return err
}

func (c *Client) ListContacts(ctx context.Context, agent string) ([]agency.ContactRecord, error) {
	out, err := c.doJSON(ctx, http.MethodGet, "/api/contacts/"+url.PathEscape(agent), nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Contacts []agency.ContactRecord `json:"contacts"`
	}
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, err
	}
	return resp.Contacts, nil
}

func (c *Client) GetConversation(ctx context.Context, a, b string) ([]agency.Message, error) {
	out, err := c.doJSON(ctx, http.MethodGet,
		"/api/conversations/"+url.PathEscape(a)+"/"+url.PathEscape(b), nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Messages []agency.Message `json:"messages"`
	}
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (c *Client) SendMessage(ctx context.Context, sender, recipient, text string, media *agency.Media) (*agency.Message, error) {
	out, err := c.doJSON(ctx, http.MethodPost, "/api/messages", map[string]any{
		"sender":    sender,
		"recipient": recipient,
		"text":      text,
		"media":     media,
	})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Message agency.Message `json:"message"`
	}
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, err
	}
	return &resp.Message, nil
}

func (c *Client) React(ctx context.Context, messageID int64, agentName, emoji string) ([]agency.Reaction, error) {
	out, err := c.doJSON(ctx, http.MethodPost,
		"/api/messages/"+strconv.FormatInt(messageID, 10)+"/reactions", map[string]any{
			"agentName": agentName,
			"emoji":     emoji,
		})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Reactions []agency.Reaction `json:"reactions"`
	}
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, err
	}
	return resp.Reactions, nil
}

func (c *Client) ListNotifications(ctx context.Context, agent string) ([]agency.NotificationView, error) {
	out, err := c.doJSON(ctx, http.MethodGet, "/api/notifications/"+url.PathEscape(agent), nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Notifications []agency.NotificationView `json:"notifications"`
	}
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, err
	}
	return resp.Notifications, nil
}

func (c *Client) MarkRead(ctx context.Context, notificationID int64, agentName string) error {
	_, err := c.doJSON(ctx, http.MethodPost,
		"/api/notifications/"+strconv.FormatInt(notificationID, 10)+"/read",
		map[string]any{"agentName": agentName})
	return err
}

func (c *Client) MarkAllRead(ctx context.Context, agent string) error {
	_, err := c.doJSON(ctx, http.MethodPost, "/api/notifications/read-all/"+url.PathEscape(agent), nil)
	return err
}

func (c *Client) DeleteNotification(ctx context.Context, notificationID int64) error {
	_, err := c.doJSON(ctx, http.MethodDelete,
		"/api/notifications/"+strconv.FormatInt(notificationID, 10), nil)
	return err
}

func (c *Client) CreateDossier(ctx context.Context, author, title, description string, media *agency.Media) (*agency.Dossier, error) {
	out, err := c.doJSON(ctx, http.MethodPost, "/api/dossiers", map[string]any{
		"author":      author,
		"title":       title,
		"description": description,
		"media":       media,
	})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Dossier agency.Dossier `json:"dossier"`
	}
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, err
	}
	return &resp.Dossier, nil
}

func (c *Client) ListDossiers(ctx context.Context) ([]agency.Dossier, error) {
	out, err := c.doJSON(ctx, http.MethodGet, "/api/dossiers", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Dossiers []agency.Dossier `json:"dossiers"`
	}
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, err
	}
	return resp.Dossiers, nil
}

func (c *Client) GetDossier(ctx context.Context, id int64) (*agency.Dossier, error) {
	out, err := c.doJSON(ctx, http.MethodGet, "/api/dossiers/"+strconv.FormatInt(id, 10), nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Dossier agency.Dossier `json:"dossier"`
	}
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, err
	}
	return &resp.Dossier, nil
}

func (c *Client) LikeDossier(ctx context.Context, id int64, agentName string) error {
	_, err := c.doJSON(ctx, http.MethodPost,
		"/api/dossiers/"+strconv.FormatInt(id, 10)+"/like",
		map[string]any{"agentName": agentName})
	return err
}

func (c *Client) RepostDossier(ctx context.Context, id int64, agentName string) error {
	_, err := c.doJSON(ctx, http.MethodPost,
		"/api/dossiers/"+strconv.FormatInt(id, 10)+"/repost",
		map[string]any{"agentName": agentName})
	return err
}

func (c *Client) AddComment(ctx context.Context, dossierID int64, author, text string) (*agency.Comment, error) {
	out, err := c.doJSON(ctx, http.MethodPost,
		"/api/dossiers/"+strconv.FormatInt(dossierID, 10)+"/comments",
		map[string]any{"author": author, "text": text})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Comment agency.Comment `json:"comment"`
	}
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, err
	}
	return &resp.Comment, nil
}

func (c *Client) ListAgents(ctx context.Context) ([]agency.Agent, error) {
	out, err := c.doJSON(ctx, http.MethodGet, "/api/agents", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Agents []agency.Agent `json:"agents"`
	}
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, err
	}
	return resp.Agents, nil
}
