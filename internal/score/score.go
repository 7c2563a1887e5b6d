// Package score runs attachment text through the pretrained compliance
// classifier and composes the notice-level verdict.
package score

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/solwatch/internal/config"
	"github.com/sells-group/solwatch/internal/model"
	"github.com/sells-group/solwatch/internal/resilience"
)

// Result is one classifier verdict.
type Result struct {
	// Prediction is 0 (non-compliant/flagged) or 1 (compliant).
	Prediction int `json:"prediction"`
	// Confidence is the magnitude of the decision-boundary distance.
	Confidence float64 `json:"confidence"`
}

// Scorer classifies normalized attachment text.
type Scorer interface {
	Score(ctx context.Context, text string) (Result, error)
}

// Client calls the classifier inference endpoint. A circuit breaker stops
// hammering the endpoint when it goes down mid-batch; attachments scored
// while the circuit is open stay unscored and are picked up on the next run.
type Client struct {
	http    *resty.Client
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	log     *zap.Logger
}

// NewClient creates a classifier client.
func NewClient(cfg config.ScorerConfig) *Client {
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(time.Duration(cfg.TimeoutSecs) * time.Second)

	retry := resilience.FromRetryConfig(cfg.MaxAttempts, cfg.RetryBackoffMs, 0, 0, -1)
	retry.OnRetry = resilience.RetryLogger("classifier", "predict")

	return &Client{
		http:    client,
		breaker: resilience.NewCircuitBreaker(resilience.FromCircuitConfig(cfg.BreakerThreshold, cfg.BreakerResetSecs)),
		retry:   retry,
		log:     zap.L().With(zap.String("component", "score")),
	}
}

type scoreRequest struct {
	Text string `json:"text"`
}

// Score normalizes the text and asks the classifier for a verdict.
// Transient failures are retried with backoff; an open circuit fails
// immediately instead of burning attempts.
func (c *Client) Score(ctx context.Context, text string) (Result, error) {
	normalized := Normalize(text)
	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (Result, error) {
		return c.scoreOnce(ctx, normalized)
	})
}

func (c *Client) scoreOnce(ctx context.Context, normalized string) (Result, error) {
	var result Result
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(scoreRequest{Text: normalized}).
			SetResult(&result).
			// Some inference servers answer JSON without a Content-Type header.
			ForceContentType("application/json").
			Post("/predict")
		if err != nil {
			return resilience.NewTransientError(eris.Wrap(err, "score: call classifier"), 0)
		}
		if resp.IsError() {
			err := eris.Errorf("score: classifier returned %d", resp.StatusCode())
			if resilience.IsTransientHTTPStatus(resp.StatusCode()) {
				return resilience.NewTransientError(err, resp.StatusCode())
			}
			return err
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// ScoreAttachments fills in prediction and decision-boundary fields for every
// machine-readable attachment. Attachments that fail to score keep nil
// predictions; the verdict composition treats them as unreadable.
func ScoreAttachments(ctx context.Context, s Scorer, attachments []model.Attachment) {
	for i := range attachments {
		att := &attachments[i]
		if !att.MachineReadable || att.Text == "" {
			continue
		}
		res, err := s.Score(ctx, att.Text)
		if err != nil {
			zap.L().Warn("score: attachment scoring failed",
				zap.String("filename", att.Filename),
				zap.Error(err),
			)
			continue
		}
		prediction := res.Prediction
		confidence := res.Confidence
		att.Prediction = &prediction
		att.DecisionBoundary = &confidence
	}
}

// Normalize prepares text for the classifier: punctuation becomes single
// spaces and control whitespace collapses. Case is left alone; the
// vectorizer downstream lowercases.
func Normalize(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	lastWasSpace := false
	for _, r := range text {
		switch {
		case isPunct(r), r == '\t', r == '\n', r == '\f', r == '\v', r == '\r', r == ' ':
			if !lastWasSpace {
				sb.WriteRune(' ')
				lastWasSpace = true
			}
		default:
			sb.WriteRune(r)
			lastWasSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}

func isPunct(r rune) bool {
	switch r {
	case '.', ',', ';', ':', '!', '?', '"', '\'', '(', ')', '[', ']', '{', '}',
		'<', '>', '/', '\\', '|', '@', '#', '$', '%', '^', '&', '*', '-', '_',
		'+', '=', '~', '`':
		return true
	}
	return false
}
