// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package client talks to the conversation API and runs the client half of
// the protocol: key resolution, rotation and message decryption.
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

	"github.com/gorilla/websocket"

	apperrors "github.com/efchatnet/efepoch/backend/errors"
	"github.com/efchatnet/efepoch/backend/models"
)

const apiPrefix = "/api/e2e"

// Client is an authenticated HTTP client for one user.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	dialer  *websocket.Dialer
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		dialer:  websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func conversationPath(conversationID string, parts ...string) string {
	p := "/conversations/" + url.PathEscape(conversationID)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

func (c *Client) CreateConversation(ctx context.Context, req models.CreateConversationRequest) (*models.CreateConversationResponse, error) {
	var out models.CreateConversationResponse
	if err := c.do(ctx, http.MethodPost, "/conversations", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	var out models.Conversation
	if err := c.do(ctx, http.MethodGet, conversationPath(conversationID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) FetchKeyChain(ctx context.Context, conversationID string) (*models.KeyChainResponse, error) {
	var out models.KeyChainResponse
	if err := c.do(ctx, http.MethodGet, conversationPath(conversationID, "keychain"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) FetchMemberKeys(ctx context.Context, conversationID string) ([]models.MemberKey, error) {
	var out models.MemberKeysResponse
	if err := c.do(ctx, http.MethodGet, conversationPath(conversationID, "members", "keys"), nil, &out); err != nil {
		return nil, err
	}
	return out.Members, nil
}

// SubmitRotation returns errors.ErrStaleEpoch when another rotation won.
func (c *Client) SubmitRotation(ctx context.Context, conversationID string, req models.RotationRequest) (*models.RotationResult, error) {
	var out models.RotationResult
	if err := c.do(ctx, http.MethodPost, conversationPath(conversationID, "rotations"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AddMember(ctx context.Context, conversationID string, req models.AddMemberRequest) (*models.Membership, error) {
	var out models.Membership
	if err := c.do(ctx, http.MethodPost, conversationPath(conversationID, "members"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RemoveMember(ctx context.Context, conversationID, memberID string) error {
	return c.do(ctx, http.MethodDelete, conversationPath(conversationID, "members", memberID), nil, nil)
}

func (c *Client) ChangePrivilege(ctx context.Context, conversationID, memberID string, privilege models.Privilege) error {
	return c.do(ctx, http.MethodPut, conversationPath(conversationID, "members", memberID, "privilege"),
		models.ChangePrivilegeRequest{Privilege: privilege}, nil)
}

func (c *Client) AcceptInvitation(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodPost, conversationPath(conversationID, "accept"), nil, nil)
}

func (c *Client) CreateLink(ctx context.Context, conversationID string, req models.CreateLinkRequest) (*models.Membership, error) {
	var out models.Membership
	if err := c.do(ctx, http.MethodPost, conversationPath(conversationID, "links"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RevokeLink(ctx context.Context, conversationID, linkID string) error {
	return c.do(ctx, http.MethodDelete, conversationPath(conversationID, "links", linkID), nil, nil)
}

func (c *Client) SendMessage(ctx context.Context, conversationID string, req models.SendMessageRequest) (*models.Message, error) {
	var out models.Message
	if err := c.do(ctx, http.MethodPost, conversationPath(conversationID, "messages"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMessages pages through history; limit 0 takes the server's page size.
func (c *Client) GetMessages(ctx context.Context, conversationID string, after int64, limit int) ([]models.Message, error) {
	q := url.Values{}
	if after > 0 {
		q.Set("after", strconv.FormatInt(after, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := conversationPath(conversationID, "messages")
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out models.MessageList
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// SubscribeRotations streams rotation events until ctx ends or the server
// closes the stream; the channel is closed either way.
func (c *Client) SubscribeRotations(ctx context.Context, conversationID string) (<-chan models.RotationEvent, error) {
	u, err := url.Parse(c.baseURL + apiPrefix + conversationPath(conversationID, "events"))
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)
	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, responseError(resp)
		}
		return nil, err
	}

	out := make(chan models.RotationEvent, 16)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var event models.RotationEvent
			if err := conn.ReadJSON(&event); err != nil {
				return
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return responseError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// responseError rebuilds the server's AppError so sentinels still match
// with errors.Is on this side of the wire.
func responseError(resp *http.Response) error {
	var app apperrors.AppError
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &app); err != nil || app.Code == "" {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return apperrors.New(apperrors.CodeFromStatus(resp.StatusCode), msg)
	}
	return &app
}
