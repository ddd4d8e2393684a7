package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/juttuchat/modguard/pkg/domain"
	"github.com/juttuchat/modguard/pkg/domain/verdict"
	"github.com/juttuchat/modguard/pkg/infra/httpx"
	"github.com/juttuchat/modguard/pkg/infra/httpx/mocks"
	"github.com/juttuchat/modguard/pkg/policy"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testClassifier(t *testing.T, client *mocks.MockHTTPClient, breaker httpx.CircuitBreaker) Classifier {
	t.Helper()
	profile, err := policy.ProfileByName(policy.ProfileNormal)
	require.NoError(t, err)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewClassifier(Config{APIKey: "test-key", URL: "https://oracle.test/v1/moderations"}, profile, client, breaker, logger)
}

func moderationResponse(t *testing.T, scores map[string]float64, flagged bool) *http.Response {
	t.Helper()
	body, err := json.Marshal(ModerationResponse{
		ID:    "modr-1",
		Model: "omni-moderation-latest",
		Results: []ModerationResult{{
			Flagged:        flagged,
			Categories:     map[string]bool{},
			CategoryScores: scores,
		}},
	})
	require.NoError(t, err)
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(body)),
	}
}

func TestClassify_FlagsByProfileThresholds(t *testing.T) {
	client := new(mocks.MockHTTPClient)
	// Oracle itself did not flag; local thresholds do.
	client.On("Do", mock.Anything).Return(moderationResponse(t, map[string]float64{
		verdict.CategorySexual:   0.4,
		verdict.CategoryViolence: 0.001,
	}, false), nil)

	c := testClassifier(t, client, nil)
	v, err := c.Classify(context.Background(), Content{Text: "some message"})

	require.NoError(t, err)
	assert.Equal(t, verdict.SourceOracle, v.Source)
	assert.True(t, v.IsFlagged)
	assert.Equal(t, []string{verdict.CategorySexual}, v.FlaggedCategories)
	assert.Equal(t, 0.4, v.CategoryScores[verdict.CategorySexual])
	client.AssertExpectations(t)
}

func TestClassify_CleanBelowThresholds(t *testing.T) {
	client := new(mocks.MockHTTPClient)
	client.On("Do", mock.Anything).Return(moderationResponse(t, map[string]float64{
		verdict.CategorySexual: 0.001,
	}, true), nil)

	c := testClassifier(t, client, nil)
	v, err := c.Classify(context.Background(), Content{Text: "hello"})

	require.NoError(t, err)
	assert.False(t, v.IsFlagged)
	assert.Empty(t, v.FlaggedCategories)
}

func TestClassify_EmptyContent(t *testing.T) {
	c := testClassifier(t, new(mocks.MockHTTPClient), nil)
	_, err := c.Classify(context.Background(), Content{})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestClassify_OversizeText(t *testing.T) {
	c := testClassifier(t, new(mocks.MockHTTPClient), nil)

	long := make([]rune, 2001)
	for i := range long {
		long[i] = 'a'
	}
	_, err := c.Classify(context.Background(), Content{Text: string(long)})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestClassify_FailsOpenOnTransportError(t *testing.T) {
	client := new(mocks.MockHTTPClient)
	client.On("Do", mock.Anything).Return(nil, errors.New("connection refused"))

	c := testClassifier(t, client, nil)
	v, err := c.Classify(context.Background(), Content{Text: "hello"})

	require.NoError(t, err)
	assert.Equal(t, verdict.SourceFallbackError, v.Source)
	assert.False(t, v.IsFlagged)
}

func TestClassify_FailsOpenOnErrorStatus(t *testing.T) {
	client := new(mocks.MockHTTPClient)
	client.On("Do", mock.Anything).Return(&http.Response{
		StatusCode: http.StatusInternalServerError,
		Body:       io.NopCloser(bytes.NewReader([]byte(`{"error":"overloaded"}`))),
	}, nil)

	c := testClassifier(t, client, nil)
	v, err := c.Classify(context.Background(), Content{Text: "hello"})

	require.NoError(t, err)
	assert.Equal(t, verdict.SourceFallbackError, v.Source)
	assert.False(t, v.IsFlagged)
}

func TestClassify_FailsOpenOnMalformedBody(t *testing.T) {
	for name, body := range map[string]string{
		"not json":      "this is not json",
		"empty object":  "{}",
		"empty results": `{"results":[]}`,
		"no scores":     `{"results":[{"flagged":true}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			client := new(mocks.MockHTTPClient)
			client.On("Do", mock.Anything).Return(&http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(bytes.NewReader([]byte(body))),
			}, nil)

			c := testClassifier(t, client, nil)
			v, err := c.Classify(context.Background(), Content{Text: "hello"})

			require.NoError(t, err)
			assert.Equal(t, verdict.SourceFallbackError, v.Source)
			assert.False(t, v.IsFlagged)
		})
	}
}

func TestClassify_RequestShape(t *testing.T) {
	var captured ModerationRequest
	client := new(mocks.MockHTTPClient)
	client.On("Do", mock.MatchedBy(func(req *http.Request) bool {
		if req.Header.Get("Authorization") != "Bearer test-key" {
			return false
		}
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			return false
		}
		return json.Unmarshal(raw, &captured) == nil
	})).Return(moderationResponse(t, map[string]float64{}, false), nil)

	c := testClassifier(t, client, nil)
	_, err := c.Classify(context.Background(), Content{Text: "hei", ImageRef: "https://img.test/a.png"})
	require.NoError(t, err)

	require.Len(t, captured.Input, 2)
	assert.Equal(t, "text", captured.Input[0].Type)
	assert.Equal(t, "hei", captured.Input[0].Text)
	assert.Equal(t, "image_url", captured.Input[1].Type)
	require.NotNil(t, captured.Input[1].ImageURL)
	assert.Equal(t, "https://img.test/a.png", captured.Input[1].ImageURL.URL)
	assert.Equal(t, "omni-moderation-latest", captured.Model)
}

func TestClassify_WorksThroughBreaker(t *testing.T) {
	client := new(mocks.MockHTTPClient)
	client.On("Do", mock.Anything).Return(moderationResponse(t, map[string]float64{
		verdict.CategoryHate: 0.5,
	}, true), nil)

	breaker := httpx.NewCircuitBreaker("oracle-test", 30*time.Second, 5)
	c := testClassifier(t, client, breaker)

	v, err := c.Classify(context.Background(), Content{Text: "hello"})
	require.NoError(t, err)
	assert.True(t, v.IsFlagged)
	assert.Contains(t, v.FlaggedCategories, verdict.CategoryHate)
}
