package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"time"
)

const postmarkURL = "https://api.postmarkapp.com/email"

var ErrNotConfigured = errors.New("email client not configured: missing server token")

type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// NewClient returns a Postmark client. baseURL is the web client's address
// and is used to build links in outgoing mail.
func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

// InviteURL is the web client link that accepts a household invitation.
func (c *Client) InviteURL(token string) string {
	return fmt.Sprintf("%s/join-household/%s", c.baseURL, token)
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// SendInvite invites toEmail to join inviterName's household as a co-parent.
func (c *Client) SendInvite(ctx context.Context, toEmail, inviterName, token string) error {
	link := c.InviteURL(token)
	text := fmt.Sprintf(
		"Hello!\n\n%s has invited you to join their household on ChoreChamp.\n\nAccept the invitation here:\n%s\n\nThis invitation expires in 48 hours.",
		inviterName, link,
	)
	body := fmt.Sprintf(
		`<h2>Welcome to ChoreChamp!</h2><p><strong>%s</strong> has invited you to join their household.</p><p><a href="%s">Accept Invitation</a></p><p><small>This invitation expires in 48 hours.</small></p>`,
		html.EscapeString(inviterName), link,
	)
	return c.send(ctx, toEmail, "Invitation to Join ChoreChamp Household", body, text)
}

// SendWelcome greets a newly registered account.
func (c *Client) SendWelcome(ctx context.Context, toEmail, name string) error {
	text := fmt.Sprintf(
		"Hi %s,\n\nWelcome to ChoreChamp! Log in to see the chores assigned to you and start earning points.",
		name,
	)
	body := fmt.Sprintf(
		`<h1>Welcome to ChoreChamp!</h1><p>Hi %s,</p><p>Log in to see the chores assigned to you and start earning points.</p>`,
		html.EscapeString(name),
	)
	return c.send(ctx, toEmail, "Welcome to ChoreChamp!", body, text)
}

// SendChoreAssigned tells an assignee about a new chore. due may be nil for
// recurring chores.
func (c *Client) SendChoreAssigned(ctx context.Context, toEmail, name, chore string, points int, due *time.Time) error {
	dueText := "recurring"
	if due != nil {
		dueText = due.Format("Jan 2, 2006")
	}
	text := fmt.Sprintf(
		"Hi %s,\n\nYou have been assigned a new chore: %s\nPoints: %d\nDue: %s",
		name, chore, points, dueText,
	)
	body := fmt.Sprintf(
		`<h1>New Chore Assigned!</h1><p>Hi %s,</p><h2>%s</h2><p><strong>Points:</strong> %d</p><p><strong>Due:</strong> %s</p>`,
		html.EscapeString(name), html.EscapeString(chore), points, dueText,
	)
	return c.send(ctx, toEmail, fmt.Sprintf("New Chore Assigned: %s", chore), body, text)
}

// SendChoreCompleted asks a parent to verify a chore someone completed.
func (c *Client) SendChoreCompleted(ctx context.Context, toEmail, parentName, completedBy, chore string) error {
	text := fmt.Sprintf(
		"Hi %s,\n\n%s has completed the chore %q. Please verify it.",
		parentName, completedBy, chore,
	)
	body := fmt.Sprintf(
		`<h1>Chore Completed!</h1><p>Hi %s,</p><p>%s has completed the following chore:</p><h2>%s</h2><p>Please verify the completion of this chore.</p>`,
		html.EscapeString(parentName), html.EscapeString(completedBy), html.EscapeString(chore),
	)
	return c.send(ctx, toEmail, fmt.Sprintf("Chore Completed by %s", completedBy), body, text)
}

func (c *Client) send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	payload := postmarkEmail{
		From:     c.fromEmail,
		To:       to,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", postmarkURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
