package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/marinapark/booking-backend/internal/domain"
)

// Verifier checks that an anonymous booking attempt came from a human.
// Authenticated requests skip verification entirely.
type Verifier interface {
	Verify(ctx context.Context, token, action, remoteIP string) error
}

// Config holds reCAPTCHA verification settings
type Config struct {
	VerifyURL string
	Secret    string
	MinScore  float64
	Timeout   time.Duration
}

type httpVerifier struct {
	cfg    Config
	client *http.Client
}

// NewHTTPVerifier returns a Verifier that calls the reCAPTCHA
// siteverify endpoint.
func NewHTTPVerifier(cfg Config) Verifier {
	if cfg.VerifyURL == "" {
		cfg.VerifyURL = "https://www.google.com/recaptcha/api/siteverify"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &httpVerifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	Score      float64  `json:"score"`
	Action     string   `json:"action"`
	ErrorCodes []string `json:"error-codes"`
}

func (v *httpVerifier) Verify(ctx context.Context, token, action, remoteIP string) error {
	if strings.TrimSpace(token) == "" {
		return domain.ErrCaptchaRequired
	}

	form := url.Values{}
	form.Set("secret", v.cfg.Secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build captcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("captcha verification request failed: %w", err)
	}
	defer resp.Body.Close()

	var body verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("failed to decode captcha response: %w", err)
	}

	if !body.Success {
		return fmt.Errorf("%w: %s", domain.ErrCaptchaFailed, strings.Join(body.ErrorCodes, ", "))
	}
	if v.cfg.MinScore > 0 && body.Score < v.cfg.MinScore {
		return fmt.Errorf("%w: score %.2f below threshold", domain.ErrCaptchaFailed, body.Score)
	}
	if action != "" && body.Action != "" && body.Action != action {
		return fmt.Errorf("%w: unexpected action %q", domain.ErrCaptchaFailed, body.Action)
	}

	return nil
}

// NoopVerifier accepts every token. Used in development and tests.
type NoopVerifier struct{}

func (NoopVerifier) Verify(ctx context.Context, token, action, remoteIP string) error {
	return nil
}
