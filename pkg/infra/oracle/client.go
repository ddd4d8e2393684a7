package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/juttuchat/modguard/pkg/domain"
	"github.com/juttuchat/modguard/pkg/domain/verdict"
	"github.com/juttuchat/modguard/pkg/infra/httpx"
	"github.com/juttuchat/modguard/pkg/infra/metrics"
	"github.com/juttuchat/modguard/pkg/policy"
	"github.com/sirupsen/logrus"
)

const (
	DefaultModerationURL = "https://api.openai.com/v1/moderations"
	DefaultModel         = "omni-moderation-latest"
)

// Content is one message payload to classify. At least one of Text or
// ImageRef must be present.
type Content struct {
	Text     string
	ImageRef string
}

func (c Content) Empty() bool {
	return c.Text == "" && c.ImageRef == ""
}

// Classifier sends content to the external moderation oracle and normalizes
// the response. It must never mutate the ledger.
type Classifier interface {
	Classify(ctx context.Context, content Content) (verdict.Classification, error)
}

type Config struct {
	APIKey        string
	URL           string
	Model         string
	MaxTextLength int
}

type ModerationRequest struct {
	Input []ModerationInput `json:"input"`
	Model string            `json:"model,omitempty"`
}

type ModerationInput struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type ModerationResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Results []ModerationResult `json:"results"`
}

type ModerationResult struct {
	Flagged        bool               `json:"flagged"`
	Categories     map[string]bool    `json:"categories"`
	CategoryScores map[string]float64 `json:"category_scores"`
}

type classifier struct {
	client     httpx.Client
	breaker    httpx.CircuitBreaker
	logger     *logrus.Logger
	config     Config
	thresholds map[string]float64
}

// NewClassifier builds the gateway. Flag thresholds come from the active
// sensitivity profile so flagging stays decoupled from the oracle's own
// built-in flags.
func NewClassifier(
	config Config,
	profile policy.Profile,
	client httpx.Client,
	breaker httpx.CircuitBreaker,
	logger *logrus.Logger,
) Classifier {
	if client == nil {
		client = &http.Client{}
	}
	if config.URL == "" {
		config.URL = DefaultModerationURL
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.MaxTextLength == 0 {
		config.MaxTextLength = profile.MaxTextLength
	}
	return &classifier{
		client:     client,
		breaker:    breaker,
		logger:     logger,
		config:     config,
		thresholds: profile.FlagThresholds,
	}
}

// Classify validates the payload, calls the oracle and normalizes the result.
// Any transport or shape failure resolves to the fail-open verdict: refusing
// service on a classifier outage is worse than occasionally missing a
// violation. Only argument errors are surfaced.
func (c *classifier) Classify(ctx context.Context, content Content) (verdict.Classification, error) {
	if content.Empty() {
		return verdict.Classification{}, domain.ErrInvalidArgument
	}
	if len([]rune(content.Text)) > c.config.MaxTextLength {
		return verdict.Classification{}, fmt.Errorf("%w: text exceeds %d characters", domain.ErrInvalidArgument, c.config.MaxTextLength)
	}

	body, err := json.Marshal(ModerationRequest{
		Input: buildInputs(content),
		Model: c.config.Model,
	})
	if err != nil {
		return verdict.Classification{}, fmt.Errorf("failed to marshal moderation request: %w", err)
	}

	result, err := c.callOracle(ctx, body)
	if err != nil {
		c.logger.WithError(err).Warn("oracle classification failed, failing open")
		return verdict.FailOpen(), nil
	}

	flagged := policy.FlaggedCategories(result.CategoryScores, c.thresholds)
	return verdict.Classification{
		Source:            verdict.SourceOracle,
		IsFlagged:         len(flagged) > 0,
		CategoryScores:    result.CategoryScores,
		FlaggedCategories: flagged,
	}, nil
}

func (c *classifier) callOracle(ctx context.Context, body []byte) (*ModerationResult, error) {
	var result *ModerationResult

	call := func() error {
		start := time.Now()
		resp, err := c.send(ctx, body)
		metrics.OracleLatency.Observe(float64(time.Since(start).Milliseconds()))
		if err != nil {
			metrics.OracleFailureTotal.WithLabelValues("transport").Inc()
			return fmt.Errorf("%w: %v", domain.ErrClassifierUnavailable, err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			metrics.OracleFailureTotal.WithLabelValues("transport").Inc()
			return fmt.Errorf("%w: reading response: %v", domain.ErrClassifierUnavailable, err)
		}

		if resp.StatusCode != http.StatusOK {
			metrics.OracleFailureTotal.WithLabelValues("status").Inc()
			return fmt.Errorf("%w: oracle returned status %d", domain.ErrClassifierUnavailable, resp.StatusCode)
		}

		parsed, err := parseResult(raw)
		if err != nil {
			metrics.OracleFailureTotal.WithLabelValues("malformed").Inc()
			return err
		}
		result = parsed
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *classifier) send(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	return c.client.Do(req)
}

// parseResult validates the response shape explicitly before use. A missing
// or empty results array is a failure, not a crash.
func parseResult(raw []byte) (*ModerationResult, error) {
	var resp ModerationResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedClassifierResponse, err)
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("%w: empty results", domain.ErrMalformedClassifierResponse)
	}
	result := resp.Results[0]
	if result.CategoryScores == nil {
		return nil, fmt.Errorf("%w: missing category scores", domain.ErrMalformedClassifierResponse)
	}
	return &result, nil
}

func buildInputs(content Content) []ModerationInput {
	var inputs []ModerationInput
	if content.Text != "" {
		inputs = append(inputs, ModerationInput{Type: "text", Text: content.Text})
	}
	if content.ImageRef != "" {
		inputs = append(inputs, ModerationInput{Type: "image_url", ImageURL: &ImageURL{URL: content.ImageRef}})
	}
	return inputs
}
