// Package provider wraps the opaque upstream WhatsApp messaging API:
// instance lifecycle, session state, and message send. The wire protocol is
// the upstream's concern; this package only normalizes responses and
// records every call in the audit trail.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zapgate/zapgate/internal/audit"
	"github.com/zapgate/zapgate/internal/model"
)

// ErrUpstream marks a failed provider call. Internal detail is logged,
// never surfaced verbatim to gateway callers.
var ErrUpstream = errors.New("upstream provider error")

const httpTimeout = 30 * time.Second

// Client calls the upstream provider. Each request is addressed to one
// provider account's base URL with either the account admin token (instance
// lifecycle) or the per-connection instance token (messaging).
type Client struct {
	http *http.Client
}

// NewClient creates a provider client with a bounded HTTP timeout.
func NewClient() *Client {
	return &Client{http: &http.Client{Timeout: httpTimeout}}
}

// SendTextRequest is the normalized message-send payload.
type SendTextRequest struct {
	Number                 string   `json:"number"`
	Text                   string   `json:"text"`
	Delay                  int      `json:"delay,omitempty"`
	Forward                bool     `json:"forward,omitempty"`
	LinkPreview            bool     `json:"linkPreview,omitempty"`
	LinkPreviewTitle       string   `json:"linkPreviewTitle,omitempty"`
	LinkPreviewDescription string   `json:"linkPreviewDescription,omitempty"`
	LinkPreviewImage       string   `json:"linkPreviewImage,omitempty"`
	LinkPreviewLarge       bool     `json:"linkPreviewLarge,omitempty"`
	Mentioned              []string `json:"mentioned,omitempty"`
	Read                   bool     `json:"read,omitempty"`
	ReadMessages           bool     `json:"readMessages,omitempty"`
}

// SendTextResult is the normalized result of a message send.
type SendTextResult struct {
	MessageID string
	Status    string
}

// CreateInstance provisions a new instance on the account and returns its
// id and secret token.
func (c *Client) CreateInstance(ctx context.Context, rec *audit.Recorder, acct Account, name string) (id, token string, err error) {
	payload := map[string]string{"instanceName": name}
	capture, err := c.do(ctx, rec, nil, http.MethodPost,
		acct.BaseURL+"/instance/create", acct.AdminToken, payload, "provider.create_instance")
	if err != nil {
		return "", "", err
	}

	var resp struct {
		Instance struct {
			InstanceName string `json:"instanceName"`
			InstanceID   string `json:"instanceId"`
		} `json:"instance"`
		Hash struct {
			APIKey string `json:"apikey"`
		} `json:"hash"`
	}
	if err := json.Unmarshal(capture.Body, &resp); err != nil {
		return "", "", fmt.Errorf("%w: decode create response: %v", ErrUpstream, err)
	}
	if resp.Instance.InstanceID == "" {
		resp.Instance.InstanceID = resp.Instance.InstanceName
	}
	return resp.Instance.InstanceID, resp.Hash.APIKey, nil
}

// InstanceStatus fetches the session state for a connection's instance,
// mapped to the local status vocabulary, plus the bound phone number when
// known.
func (c *Client) InstanceStatus(ctx context.Context, rec *audit.Recorder, acct Account, conn *model.Connection) (status, phone string, err error) {
	capture, err := c.do(ctx, rec, conn, http.MethodGet,
		acct.BaseURL+"/instance/connectionState/"+conn.InstanceID, conn.InstanceToken, nil, "provider.instance_status")
	if err != nil {
		return "", "", err
	}

	var resp struct {
		Instance struct {
			State string `json:"state"`
			Owner string `json:"owner"`
		} `json:"instance"`
	}
	if err := json.Unmarshal(capture.Body, &resp); err != nil {
		return "", "", fmt.Errorf("%w: decode status response: %v", ErrUpstream, err)
	}
	return mapState(resp.Instance.State), resp.Instance.Owner, nil
}

// ConnectQR requests a pairing QR code for an instance.
func (c *Client) ConnectQR(ctx context.Context, rec *audit.Recorder, acct Account, conn *model.Connection) (string, error) {
	capture, err := c.do(ctx, rec, conn, http.MethodGet,
		acct.BaseURL+"/instance/connect/"+conn.InstanceID, conn.InstanceToken, nil, "provider.connect_qr")
	if err != nil {
		return "", err
	}

	var resp struct {
		Code   string `json:"code"`
		Base64 string `json:"base64"`
	}
	if err := json.Unmarshal(capture.Body, &resp); err != nil {
		return "", fmt.Errorf("%w: decode connect response: %v", ErrUpstream, err)
	}
	if resp.Base64 != "" {
		return resp.Base64, nil
	}
	return resp.Code, nil
}

// Disconnect logs the instance's session out upstream.
func (c *Client) Disconnect(ctx context.Context, rec *audit.Recorder, acct Account, conn *model.Connection) error {
	_, err := c.do(ctx, rec, conn, http.MethodDelete,
		acct.BaseURL+"/instance/logout/"+conn.InstanceID, conn.InstanceToken, nil, "provider.disconnect")
	return err
}

// DeleteInstance removes the instance upstream entirely.
func (c *Client) DeleteInstance(ctx context.Context, rec *audit.Recorder, acct Account, conn *model.Connection) error {
	_, err := c.do(ctx, rec, conn, http.MethodDelete,
		acct.BaseURL+"/instance/delete/"+conn.InstanceID, acct.AdminToken, nil, "provider.delete_instance")
	return err
}

// SendText delivers a text message through the connection's instance.
func (c *Client) SendText(ctx context.Context, rec *audit.Recorder, acct Account, conn *model.Connection, req SendTextRequest) (*SendTextResult, error) {
	capture, err := c.do(ctx, rec, conn, http.MethodPost,
		acct.BaseURL+"/message/sendText/"+conn.InstanceID, conn.InstanceToken, req, "provider.send_text")
	if err != nil {
		return nil, err
	}

	var resp struct {
		Key struct {
			ID string `json:"id"`
		} `json:"key"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(capture.Body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode send response: %v", ErrUpstream, err)
	}
	if resp.Status == "" {
		resp.Status = "sent"
	}
	return &SendTextResult{MessageID: resp.Key.ID, Status: resp.Status}, nil
}

// MessageStatus fetches the delivery status of a previously sent message.
func (c *Client) MessageStatus(ctx context.Context, rec *audit.Recorder, acct Account, conn *model.Connection, messageID string) (string, error) {
	capture, err := c.do(ctx, rec, conn, http.MethodGet,
		acct.BaseURL+"/message/status/"+conn.InstanceID+"/"+messageID, conn.InstanceToken, nil, "provider.message_status")
	if err != nil {
		return "", err
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(capture.Body, &resp); err != nil {
		return "", fmt.Errorf("%w: decode message status: %v", ErrUpstream, err)
	}
	return resp.Status, nil
}

// do executes one upstream call and records it under the recorder's trace.
// rec may be nil when no audit context exists.
func (c *Client) do(ctx context.Context, rec *audit.Recorder, conn *model.Connection, method, url, apikey string, payload interface{}, action string) (audit.ResponseCapture, error) {
	var body []byte
	var err error
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return audit.ResponseCapture{}, fmt.Errorf("marshal %s payload: %w", action, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return audit.ResponseCapture{}, fmt.Errorf("build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", apikey)

	resp, err := c.http.Do(req)
	if err != nil {
		if rec != nil {
			rec.LogException(ctx, model.DirectionOutbound, method, url, req.Header, body, err, action, conn, "")
		}
		return audit.ResponseCapture{}, fmt.Errorf("%w: %s: %v", ErrUpstream, action, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	capture := audit.ResponseCapture{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}
	if rec != nil {
		rec.LogOutbound(ctx, method, url, req.Header, body, capture, action, conn, "")
	}

	if resp.StatusCode >= 400 {
		return capture, fmt.Errorf("%w: %s returned %d", ErrUpstream, action, resp.StatusCode)
	}
	return capture, nil
}

// mapState translates upstream session states to the local status
// vocabulary.
func mapState(state string) string {
	switch state {
	case "open":
		return model.StatusConnected
	case "connecting":
		return model.StatusConnecting
	case "close", "closed":
		return model.StatusDisconnected
	default:
		return model.StatusError
	}
}
