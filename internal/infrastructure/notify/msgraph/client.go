package msgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/document-autopilot/internal/core/domain"
)

// Client talks to Microsoft Graph with the client-credentials flow. Tokens
// are cached until shortly before expiry; one refresh at a time.
type Client struct {
	tenantID     string
	clientID     string
	clientSecret string
	sender       string

	baseURL  string
	tokenURL string

	httpClient *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

type Options struct {
	BaseURL  string
	TokenURL string
	Timeout  time.Duration
}

func New(tenantID, clientID, clientSecret, sender string, options Options) *Client {
	baseURL := options.BaseURL
	if baseURL == "" {
		baseURL = "https://graph.microsoft.com/v1.0"
	}
	tokenURL := options.TokenURL
	if tokenURL == "" {
		tokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenantID)
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		tenantID:     tenantID,
		clientID:     clientID,
		clientSecret: clientSecret,
		sender:       sender,
		baseURL:      strings.TrimRight(baseURL, "/"),
		tokenURL:     tokenURL,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// Send delivers an email through the sender mailbox. Graph answers 202 on
// acceptance.
func (c *Client) Send(ctx context.Context, target, subject, body string) error {
	payload := map[string]any{
		"message": map[string]any{
			"subject": subject,
			"body": map[string]any{
				"contentType": "Text",
				"content":     body,
			},
			"toRecipients": []map[string]any{
				{"emailAddress": map[string]any{"address": target}},
			},
		},
		"saveToSentItems": true,
	}
	path := fmt.Sprintf("/users/%s/sendMail", url.PathEscape(c.sender))
	if err := c.post(ctx, path, payload, http.StatusAccepted); err != nil {
		return domain.WrapError(domain.ErrWorkflowDispatch, "graph send mail", err)
	}
	return nil
}

// Schedule books a calendar event on the target mailbox at the review time.
func (c *Client) Schedule(ctx context.Context, target string, when time.Time, payload string) error {
	event := map[string]any{
		"subject": payload,
		"start": map[string]any{
			"dateTime": when.UTC().Format("2006-01-02T15:04:05"),
			"timeZone": "UTC",
		},
		"end": map[string]any{
			"dateTime": when.UTC().Add(30 * time.Minute).Format("2006-01-02T15:04:05"),
			"timeZone": "UTC",
		},
		"isReminderOn":              true,
		"reminderMinutesBeforeStart": 60,
	}
	path := fmt.Sprintf("/users/%s/events", url.PathEscape(target))
	if err := c.post(ctx, path, event, http.StatusCreated); err != nil {
		return domain.WrapError(domain.ErrWorkflowDispatch, "graph create event", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any, wantStatus int) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("graph request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("graph status %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	return nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"scope":         {"https://graph.microsoft.com/.default"},
		"grant_type":    {"client_credentials"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("token status %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("token response has no access_token")
	}

	c.token = tokenResp.AccessToken
	// Refresh a minute early so in-flight requests never carry a stale token.
	c.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn)*time.Second - time.Minute)
	return c.token, nil
}
