package gorgias

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// DefaultBaseURL is the helpdesk API root used when none is configured.
const DefaultBaseURL = "https://petstoredirect.gorgias.com/api/"

const minAPIKeyLength = 10

// ErrInvalidConfig reports a configuration that fails validation.
var ErrInvalidConfig = errors.New("invalid gorgias config")

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Config holds backend credentials and client tuning. Loaded with the
// GORGIAS prefix, e.g. GORGIAS_API_KEY.
type Config struct {
	APIKey    string        `envconfig:"API_KEY" required:"true"`
	Username  string        `envconfig:"USERNAME" required:"true"`
	BaseURL   string        `envconfig:"BASE_URL" default:"https://petstoredirect.gorgias.com/api/"`
	Timeout   time.Duration `envconfig:"TIMEOUT" default:"30s"`
	RateLimit float64       `envconfig:"RATE_LIMIT" default:"0"`
	RateBurst int           `envconfig:"RATE_BURST" default:"1"`
}

// Validate checks the credentials and base URL before any request is made.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.APIKey) == "" {
		errs = append(errs, errors.New("api key is required"))
	} else if len(strings.TrimSpace(c.APIKey)) < minAPIKeyLength {
		errs = append(errs, fmt.Errorf("api key must be at least %d characters", minAPIKeyLength))
	}

	username := strings.TrimSpace(c.Username)
	if username == "" {
		errs = append(errs, errors.New("username is required"))
	} else if !emailPattern.MatchString(username) {
		errs = append(errs, errors.New("username must be a valid email address"))
	}

	baseURL := strings.TrimSpace(c.BaseURL)
	if baseURL == "" {
		errs = append(errs, errors.New("base url is required"))
	} else if u, err := url.Parse(baseURL); err != nil {
		errs = append(errs, fmt.Errorf("base url: %w", err))
	} else if u.Scheme != "https" || u.Host == "" {
		errs = append(errs, errors.New("base url must be an https url"))
	}

	if c.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("rate limit must be >= 0"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// AuthHeader returns the Basic authorization header value.
func (c Config) AuthHeader() string {
	creds := strings.TrimSpace(c.Username) + ":" + strings.TrimSpace(c.APIKey)
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
}
