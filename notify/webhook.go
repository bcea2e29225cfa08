package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/quartzbi/beacon/config"
	"github.com/quartzbi/beacon/errors"
	"github.com/quartzbi/beacon/internal/httpclient"
	"github.com/quartzbi/beacon/report"
)

// SignatureHeader carries the hex HMAC-SHA256 of the JSON payload.
const SignatureHeader = "X-Beacon-Signature"

// payloadField is the multipart form field holding the JSON payload when
// artifacts are attached.
const payloadField = "payload"

// WebhookChannel POSTs the envelope to a recipient URL. The JSON payload
// is always signed; artifacts ride along as multipart file parts.
// Targets are user-supplied, so the client blocks private address space
// unless allow_private_networks is set.
type WebhookChannel struct {
	secret       string
	allowPrivate bool
	client       *http.Client
}

func NewWebhookChannel(cfg config.WebhookConfig) *WebhookChannel {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebhookChannel{
		secret:       cfg.Secret,
		allowPrivate: cfg.AllowPrivateNetworks,
		client:       httpclient.NewOutbound(timeout, cfg.AllowPrivateNetworks),
	}
}

type webhookPayload struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	URL         string         `json:"url,omitempty"`
	Header      map[string]any `json:"header,omitempty"`
}

func (c *WebhookChannel) Deliver(ctx context.Context, recipient report.Recipient, env *Envelope) error {
	rcfg, err := recipient.Config()
	if err != nil {
		return &StatusError{Code: 422, Err: err}
	}
	if err := httpclient.ValidateTarget(rcfg.Target, c.allowPrivate); err != nil {
		return &StatusError{Code: 422, Err: err}
	}

	payload, err := json.Marshal(webhookPayload{
		Name:        env.Name,
		Description: env.Description,
		URL:         env.URL,
		Header:      env.Header,
	})
	if err != nil {
		return errors.Wrap(err, "encoding webhook payload")
	}

	req, err := c.buildRequest(ctx, rcfg.Target, payload, env)
	if err != nil {
		return err
	}
	req.Header.Set(SignatureHeader, Sign(c.secret, payload))

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "posting webhook to %s", rcfg.Target)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return &StatusError{Code: resp.StatusCode, Err: errors.Newf("webhook returned %s", resp.Status)}
	}
	return nil
}

func (c *WebhookChannel) buildRequest(ctx context.Context, target string, payload []byte, env *Envelope) (*http.Request, error) {
	files := slackFiles(env)
	if len(files) == 0 {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
		if err != nil {
			return nil, errors.Wrap(err, "building webhook request")
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField(payloadField, string(payload)); err != nil {
		return nil, errors.Wrap(err, "writing payload part")
	}
	for i, file := range files {
		part, err := writer.CreateFormFile(fmt.Sprintf("artifact-%d", i+1), file.name)
		if err != nil {
			return nil, errors.Wrap(err, "creating artifact part")
		}
		if _, err := part.Write(file.data); err != nil {
			return nil, errors.Wrap(err, "writing artifact part")
		}
	}
	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(err, "closing multipart body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &body)
	if err != nil {
		return nil, errors.Wrap(err, "building webhook request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req, nil
}

// Sign computes the hex HMAC-SHA256 of the payload under the shared secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
