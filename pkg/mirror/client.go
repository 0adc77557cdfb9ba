package mirror

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashgraph-online/poetry-registry-go/pkg/shared"
)

type Config struct {
	Network    string
	BaseURL    string
	HTTPClient *http.Client
	APIKey     string
	Headers    map[string]string
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	headers    map[string]string
}

type MessageQueryOptions struct {
	SequenceNumber string
	Limit          int
	Order          string
}

// NewClient creates a new Client.
func NewClient(config Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		defaultURL, err := shared.MirrorBaseURL(config.Network)
		if err != nil {
			return nil, err
		}
		baseURL = defaultURL
	}
	parsedBaseURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid mirror base URL: %w", err)
	}
	if parsedBaseURL.Scheme != "http" && parsedBaseURL.Scheme != "https" {
		return nil, fmt.Errorf("invalid mirror base URL: scheme must be http or https")
	}
	if strings.TrimSpace(parsedBaseURL.Host) == "" {
		return nil, fmt.Errorf("invalid mirror base URL: host is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	headers := map[string]string{}
	for key, value := range config.Headers {
		headers[key] = value
	}

	return &Client{
		baseURL:    strings.TrimRight(parsedBaseURL.String(), "/"),
		httpClient: httpClient,
		apiKey:     strings.TrimSpace(config.APIKey),
		headers:    headers,
	}, nil
}

// BaseURL returns the resolved mirror node base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetTopicInfo returns the topic resource for topicID.
func (c *Client) GetTopicInfo(ctx context.Context, topicID string) (TopicInfo, error) {
	var topicInfo TopicInfo
	if strings.TrimSpace(topicID) == "" {
		return topicInfo, fmt.Errorf("topic ID is required")
	}

	path := fmt.Sprintf("/api/v1/topics/%s", url.PathEscape(strings.TrimSpace(topicID)))
	if err := c.getJSON(ctx, path, &topicInfo); err != nil {
		return topicInfo, err
	}
	return topicInfo, nil
}

// GetTopicMessagesAfter returns a single page of messages with a sequence
// number above after, oldest first. more reports whether the mirror node has
// another page; callers continue from the last sequence they received.
func (c *Client) GetTopicMessagesAfter(
	ctx context.Context,
	topicID string,
	after int64,
	limit int,
) (messages []TopicMessage, more bool, err error) {
	options := MessageQueryOptions{Order: "asc", Limit: limit}
	if after > 0 {
		options.SequenceNumber = fmt.Sprintf("gt:%d", after)
	}
	endpoint, err := messagesEndpoint(topicID, options)
	if err != nil {
		return nil, false, err
	}

	var response topicMessagesResponse
	if err := c.getJSON(ctx, endpoint, &response); err != nil {
		return nil, false, err
	}
	more = strings.TrimSpace(response.Links.Next) != "" && len(response.Messages) > 0
	return response.Messages, more, nil
}

func messagesEndpoint(topicID string, options MessageQueryOptions) (string, error) {
	if strings.TrimSpace(topicID) == "" {
		return "", fmt.Errorf("topic ID is required")
	}

	values := url.Values{}
	if options.SequenceNumber != "" {
		values.Set("sequencenumber", options.SequenceNumber)
	}
	if options.Limit > 0 {
		values.Set("limit", fmt.Sprintf("%d", options.Limit))
	}
	if options.Order != "" {
		values.Set("order", options.Order)
	}

	endpoint := fmt.Sprintf("/api/v1/topics/%s/messages", url.PathEscape(strings.TrimSpace(topicID)))
	if encoded := values.Encode(); encoded != "" {
		endpoint = fmt.Sprintf("%s?%s", endpoint, encoded)
	}
	return endpoint, nil
}

// DecodeMessageData base64-decodes the message payload.
func DecodeMessageData(message TopicMessage) ([]byte, error) {
	if strings.TrimSpace(message.Message) == "" {
		return nil, fmt.Errorf("message payload is empty")
	}
	return base64.StdEncoding.DecodeString(message.Message)
}

// ChunkGroupKey identifies the submission a chunked message belongs to.
// Unchunked messages return "".
func ChunkGroupKey(message TopicMessage) string {
	if message.ChunkInfo == nil || message.ChunkInfo.Total <= 1 {
		return ""
	}
	switch initial := message.ChunkInfo.InitialTransactionID.(type) {
	case string:
		return initial
	case map[string]any:
		return fmt.Sprintf("%v@%v#%v", initial["account_id"], initial["transaction_valid_start"], initial["nonce"])
	case nil:
		return ""
	default:
		encoded, _ := json.Marshal(initial)
		return string(encoded)
	}
}

func (c *Client) getJSON(ctx context.Context, pathOrURL string, target any) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolveURL(pathOrURL), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	request.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		request.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}
	for key, value := range c.headers {
		request.Header.Set(key, value)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("mirror node request failed: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("failed to read mirror node response: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf(
			"mirror node request failed with status %d: %s",
			response.StatusCode,
			strings.TrimSpace(string(body)),
		)
	}

	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("failed to decode mirror node response: %w", err)
	}
	return nil
}

func (c *Client) resolveURL(pathOrURL string) string {
	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		return pathOrURL
	}
	path := pathOrURL
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}
