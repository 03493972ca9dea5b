package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/domain/failure"
	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/logging"
)

const (
	DefaultModel    = "gemini-1.5-flash-latest"
	DefaultLanguage = "Hebrew"
	MaxAttempts     = 3

	requestTimeout = 90 * time.Second
	maxErrorBody   = 64 << 10

	minRedactedKeyLen = 8
)

type Adapter struct {
	model       string
	baseURL     string
	language    string
	maxAttempts int
	backoffUnit time.Duration
	client      *http.Client
	limiter     *rate.Limiter
	sleep       func(ctx context.Context, d time.Duration) error
	log         logrus.FieldLogger
}

type Option func(*Adapter)

func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.client = c }
}

// WithLimiter paces outgoing requests. A nil limiter disables pacing.
func WithLimiter(l *rate.Limiter) Option {
	return func(a *Adapter) { a.limiter = l }
}

// WithSleep replaces the backoff sleep; tests use it to record delays.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(a *Adapter) { a.sleep = fn }
}

// WithBackoffUnit scales the 2^attempt backoff (default one second).
func WithBackoffUnit(d time.Duration) Option {
	return func(a *Adapter) { a.backoffUnit = d }
}

func WithLanguage(lang string) Option {
	return func(a *Adapter) {
		if strings.TrimSpace(lang) != "" {
			a.language = strings.TrimSpace(lang)
		}
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(a *Adapter) { a.log = logging.OrDiscard(l) }
}

func New(model, baseURL string, opts ...Option) *Adapter {
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	a := &Adapter{
		model:       strings.TrimSpace(model),
		baseURL:     cleanOrigin(baseURL),
		language:    DefaultLanguage,
		maxAttempts: MaxAttempts,
		backoffUnit: time.Second,
		client:      &http.Client{Timeout: 5 * time.Minute},
		limiter:     rate.NewLimiter(rate.Every(time.Second), 1),
		sleep:       sleepContext,
		log:         logging.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RetryState is the immutable view of one attempt inside Generate.
type RetryState struct {
	Attempt     int
	MaxAttempts int
}

// Last reports whether no attempt follows this one.
func (s RetryState) Last() bool { return s.Attempt >= s.MaxAttempts }

// Backoff is 2^Attempt units: 2 and 4 units before the second and third attempts.
func (s RetryState) Backoff(unit time.Duration) time.Duration {
	return unit * time.Duration(1<<uint(s.Attempt))
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeOverloaded
	outcomeFailed
)

type attemptResult struct {
	outcome outcome
	text    string
	err     error
}

// Generate asks the model for a short narration script about description.
func (a *Adapter) Generate(ctx context.Context, description, apiKey string) (string, error) {
	const op = "gemini.Generate"

	if strings.TrimSpace(apiKey) == "" {
		return "", failure.Validation(op, "an API key is required")
	}
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: BuildPrompt(description, a.language)}}}},
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal request")
	}

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		st := RetryState{Attempt: attempt, MaxAttempts: a.maxAttempts}

		res := a.attempt(ctx, op, body, apiKey)
		switch res.outcome {
		case outcomeSuccess:
			return res.text, nil
		case outcomeFailed:
			return "", res.err
		}

		if st.Last() {
			break
		}
		wait := st.Backoff(a.backoffUnit)
		a.log.WithFields(logrus.Fields{
			"attempt": attempt,
			"max":     a.maxAttempts,
			"backoff": wait,
		}).Warn("text generation overloaded, retrying")
		if err := a.sleep(ctx, wait); err != nil {
			return "", failure.Wrap(failure.KindCanceled, op, err, "script generation canceled")
		}
	}

	return "", failure.New(failure.KindOverloaded, op,
		"the model is overloaded; please try again in a few moments")
}

func (a *Adapter) attempt(ctx context.Context, op string, body []byte, apiKey string) attemptResult {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return failed(failure.Wrap(failure.KindCanceled, op, err, "script generation canceled"))
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, generateURL(a.baseURL, a.model), bytes.NewReader(body))
	if err != nil {
		return failed(failure.Wrap(failure.KindNetwork, op, err, "could not build request"))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return failed(failure.Wrap(failure.KindCanceled, op, ctx.Err(), "script generation canceled"))
		}
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return failed(failure.New(failure.KindNetwork, op,
				fmt.Sprintf("text generation timed out after %s (model=%s)", requestTimeout, a.model)))
		}
		cause := errors.New(redactSecrets(err.Error(), apiKey))
		return failed(failure.Wrap(failure.KindNetwork, op, cause, "could not reach the text generation service"))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return attemptResult{outcome: outcomeOverloaded}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if readErr != nil {
			return failed(failure.Wrap(failure.KindAPI, op, readErr,
				fmt.Sprintf("status %d and the error body could not be read", resp.StatusCode)))
		}
		return failed(apiFailure(op, resp.StatusCode, raw, apiKey))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return failed(failure.Wrap(failure.KindMalformedResponse, op, err, "failed to decode the API response"))
	}
	text, ok := out.firstText()
	if !ok {
		return failed(failure.New(failure.KindMalformedResponse, op, "failed to extract script from API response"))
	}
	return attemptResult{outcome: outcomeSuccess, text: text}
}

func failed(err error) attemptResult {
	return attemptResult{outcome: outcomeFailed, err: err}
}

func apiFailure(op string, status int, raw []byte, apiKey string) error {
	var body errorResponse
	_ = json.Unmarshal(raw, &body)

	msg := strings.TrimSpace(redactSecrets(body.Error.Message, apiKey))
	if msg == "" {
		msg = "An unknown API error occurred."
	}
	kind := failure.KindAPI
	if invalidKey(status, body.Error) {
		kind = failure.KindInvalidAPIKey
	}
	cause := errors.Errorf("status %d: %s", status, truncate(redactSecrets(string(raw), apiKey), 400))
	return failure.Wrap(kind, op, cause, msg)
}

func invalidKey(status int, e apiError) bool {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return true
	}
	for _, d := range e.Details {
		if d.Reason == "API_KEY_INVALID" {
			return true
		}
	}
	return e.Status == "INVALID_ARGUMENT" && strings.Contains(strings.ToLower(e.Message), "api key")
}

// BuildPrompt embeds description in the fixed narration prompt.
func BuildPrompt(description, language string) string {
	if strings.TrimSpace(language) == "" {
		language = DefaultLanguage
	}
	return "You are a professional video scriptwriter. Write a short, engaging voice-over script for a video recap.\n" +
		fmt.Sprintf("The video is about: %q.\n", strings.TrimSpace(description)) +
		fmt.Sprintf("The script must be in %s.\n", language) +
		"Keep it concise, around 3-4 sentences.\n" +
		"The tone should be exciting and cinematic.\n" +
		"Do not add any introductory or closing remarks such as \"Here is the script:\". Reply with the script text only."
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (r generateResponse) firstText() (string, bool) {
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return "", false
	}
	text := strings.TrimSpace(r.Candidates[0].Content.Parts[0].Text)
	return text, text != ""
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
	Details []struct {
		Reason string `json:"reason"`
	} `json:"details"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	keyParamRE    = regexp.MustCompile(`(?i)([?&]key=)[^&;\s"]+`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)((?:x-goog-)?api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	// short values would mangle ordinary words
	if len(apiKey) >= minRedactedKeyLen {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = keyParamRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}
