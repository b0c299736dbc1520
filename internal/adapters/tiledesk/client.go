package tiledesk

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/models"
	"github.com/visioninhope/tiledesk-whatsapp-connector/pkg/httputil"
)

// Asset categories of the upload API.
const (
	CategoryImages = "images"
	CategoryFiles  = "files"
)

// Client struct holds the configuration for the Tiledesk client.
type Client struct {
	httpClient *resty.Client
	apiURL     string
}

// NewClient creates a new Tiledesk client.
func NewClient(apiURL string, timeout time.Duration) (*Client, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("Tiledesk apiURL cannot be empty")
	}
	apiURL = strings.TrimRight(apiURL, "/")

	log.Info().Str("apiURL", apiURL).Msg("Tiledesk client configured")
	return &Client{
		httpClient: httputil.NewClient(apiURL, timeout),
		apiURL:     apiURL,
	}, nil
}

// customToken signs the external-user token accepted by /auth/signinWithCustomToken.
func customToken(settings *models.ChannelSettings, info MessageInfo) (string, error) {
	if settings.Secret == "" {
		return "", fmt.Errorf("no subscription secret for project %s", settings.ProjectID)
	}
	claims := jwt.MapClaims{
		"_id":        SenderTag + "-" + info.Whatsapp.From,
		"first_name": info.Whatsapp.Firstname,
		"last_name":  info.Whatsapp.Lastname,
		"email":      "na@whatsapp.com",
		"sub":        "userexternal",
		"aud":        "https://tiledesk.com/subscriptions/" + settings.SubscriptionID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(settings.Secret))
}

// SignIn exchanges a custom token for a Tiledesk session token.
func (c *Client) SignIn(ctx context.Context, settings *models.ChannelSettings, info MessageInfo) (string, error) {
	token, err := customToken(settings, info)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Authorization", "JWT "+token).
		SetResult(&signinResponse{}).
		Post("/auth/signinWithCustomToken")
	if err != nil {
		return "", fmt.Errorf("Tiledesk API signin request failed: %w", err)
	}
	if resp.IsError() {
		log.Error().Str("projectID", settings.ProjectID).Int("statusCode", resp.StatusCode()).Msg("Tiledesk API: signin returned an error")
		return "", fmt.Errorf("Tiledesk API signin error: status %s", resp.Status())
	}
	return resp.Result().(*signinResponse).Token, nil
}

// Send delivers a message to the Tiledesk conversation of a WhatsApp user,
// reusing the user's open request when there is one.
func (c *Client) Send(ctx context.Context, settings *models.ChannelSettings, msg *Message, info MessageInfo, departmentID string) (*SentMessage, error) {
	token, err := c.SignIn(ctx, settings, info)
	if err != nil {
		return nil, err
	}

	requestID, err := c.findRequestID(ctx, settings.ProjectID, token, info)
	if err != nil {
		return nil, err
	}

	if departmentID != "" {
		msg.DepartmentID = departmentID
	}

	url := fmt.Sprintf("/%s/requests/%s/messages", settings.ProjectID, requestID)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Authorization", token).
		SetBody(msg).
		SetResult(&SentMessage{}).
		Post(url)
	if err != nil {
		log.Error().Err(err).Str("url", url).Msg("Tiledesk API: Send request failed")
		return nil, fmt.Errorf("Tiledesk API Send request failed: %w", err)
	}
	if resp.IsError() {
		log.Error().
			Str("url", url).
			Int("statusCode", resp.StatusCode()).
			Str("responseBody", string(resp.Body())).
			Msg("Tiledesk API: Send returned an error")
		return nil, fmt.Errorf("Tiledesk API Send error: status %s, body: %s", resp.Status(), resp.String())
	}

	sent := resp.Result().(*SentMessage)
	log.Info().Str("projectID", settings.ProjectID).Str("requestID", requestID).Str("messageID", sent.ID).Msg("Message sent to Tiledesk")
	return sent, nil
}

func (c *Client) findRequestID(ctx context.Context, projectID, token string, info MessageInfo) (string, error) {
	suffix := RequestIDSuffix(info)

	var found requestsResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Authorization", token).
		SetQueryParam("channel", info.Channel).
		SetResult(&found).
		Get(fmt.Sprintf("/%s/requests/me", projectID))
	if err != nil {
		return "", fmt.Errorf("Tiledesk API requests lookup failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("Tiledesk API requests lookup error: status %s", resp.Status())
	}

	for _, r := range found.Requests {
		if strings.HasSuffix(r.RequestID, suffix) {
			return r.RequestID, nil
		}
	}

	uid := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return "support-group-" + projectID + "-" + uid + suffix, nil
}

// Upload stores a file on the Tiledesk asset API and returns its public URL.
func (c *Client) Upload(ctx context.Context, settings *models.ChannelSettings, category, fileName string, r io.Reader) (string, error) {
	token := settings.Token
	if token == "" {
		var err error
		token, err = c.SignIn(ctx, settings, MessageInfo{Channel: "whatsapp", Whatsapp: WhatsappInfo{From: settings.ProjectID}})
		if err != nil {
			return "", err
		}
	}

	url := "/" + category + "/users"
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Authorization", token).
		SetFileReader("file", fileName, r).
		SetResult(&uploadResponse{}).
		Post(url)
	if err != nil {
		log.Error().Err(err).Str("url", url).Str("fileName", fileName).Msg("Tiledesk API: Upload request failed")
		return "", fmt.Errorf("Tiledesk API Upload request failed for %s: %w", fileName, err)
	}
	if resp.IsError() {
		log.Error().Str("url", url).Str("fileName", fileName).Int("statusCode", resp.StatusCode()).Msg("Tiledesk API: Upload returned an error")
		return "", fmt.Errorf("Tiledesk API Upload error for %s: status %s", fileName, resp.Status())
	}

	uploaded := resp.Result().(*uploadResponse)
	if uploaded.Filename == "" {
		return "", fmt.Errorf("Tiledesk API Upload for %s returned no filename", fileName)
	}

	if category == CategoryImages {
		return c.apiURL + "/images/?path=" + uploaded.Filename, nil
	}
	return c.apiURL + "/files/download?path=" + uploaded.Filename, nil
}
