package poster

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"herald/pkg/logging"
)

const defaultTwitterAPIURL = "https://api.twitter.com"

type TwitterConfig struct {
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
	APIURL            string
	Logger            logging.Logger
}

// TwitterPoster publishes tweets through the v2 API using OAuth 1.0a
// user-context credentials.
type TwitterPoster struct {
	client            *http.Client
	apiURL            string
	apiKey            string
	apiSecret         string
	accessToken       string
	accessTokenSecret string
	logger            logging.Logger
}

func NewTwitterPoster(cfg TwitterConfig) (*TwitterPoster, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" || cfg.AccessToken == "" || cfg.AccessTokenSecret == "" {
		return nil, errors.New("twitter credentials are required")
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultTwitterAPIURL
	}
	return &TwitterPoster{
		client:            &http.Client{Timeout: 30 * time.Second},
		apiURL:            apiURL,
		apiKey:            cfg.APIKey,
		apiSecret:         cfg.APISecret,
		accessToken:       cfg.AccessToken,
		accessTokenSecret: cfg.AccessTokenSecret,
		logger:            cfg.Logger,
	}, nil
}

type tweetRequest struct {
	Text string `json:"text"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
	Detail string `json:"detail"`
	Title  string `json:"title"`
}

func (p *TwitterPoster) Post(ctx context.Context, text string) (string, error) {
	endpoint := p.apiURL + "/2/tweets"

	payload, err := json.Marshal(tweetRequest{Text: text})
	if err != nil {
		return "", fmt.Errorf("twitter: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("twitter: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	auth, err := p.authorizationHeader(http.MethodPost, endpoint)
	if err != nil {
		return "", fmt.Errorf("twitter: sign request: %w", err)
	}
	req.Header.Set("Authorization", auth)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("twitter: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrRateLimited
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var apiErr tweetResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Detail != "" {
			return "", fmt.Errorf("twitter: %s: %s", apiErr.Title, apiErr.Detail)
		}
		return "", fmt.Errorf("twitter: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var tweet tweetResponse
	if err := json.NewDecoder(resp.Body).Decode(&tweet); err != nil {
		return "", fmt.Errorf("twitter: decode response: %w", err)
	}
	if tweet.Data.ID == "" {
		return "", errors.New("twitter: response missing tweet id")
	}

	p.logger.WithField("tweet_id", tweet.Data.ID).Info("Tweet published")
	return tweet.Data.ID, nil
}

// authorizationHeader builds the OAuth 1.0a header for a request. The v2
// tweet endpoint takes a JSON body, so only the OAuth parameters
// participate in the signature base string.
func (p *TwitterPoster) authorizationHeader(method, endpoint string) (string, error) {
	nonce, err := generateNonce()
	if err != nil {
		return "", err
	}

	params := map[string]string{
		"oauth_consumer_key":     p.apiKey,
		"oauth_nonce":            nonce,
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(time.Now().Unix(), 10),
		"oauth_token":            p.accessToken,
		"oauth_version":          "1.0",
	}
	params["oauth_signature"] = p.sign(method, endpoint, params)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("OAuth ")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%q", percentEncode(k), percentEncode(params[k]))
	}
	return b.String(), nil
}

func (p *TwitterPoster) sign(method, endpoint string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var paramPairs []string
	for _, k := range keys {
		paramPairs = append(paramPairs, percentEncode(k)+"="+percentEncode(params[k]))
	}

	base := strings.Join([]string{
		method,
		percentEncode(endpoint),
		percentEncode(strings.Join(paramPairs, "&")),
	}, "&")

	signingKey := percentEncode(p.apiSecret) + "&" + percentEncode(p.accessTokenSecret)
	mac := hmac.New(sha1.New, []byte(signingKey))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func generateNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// percentEncode applies the stricter RFC 3986 escaping OAuth requires.
func percentEncode(s string) string {
	encoded := url.QueryEscape(s)
	encoded = strings.ReplaceAll(encoded, "+", "%20")
	encoded = strings.ReplaceAll(encoded, "%7E", "~")
	return encoded
}
