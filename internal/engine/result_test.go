package engine

import (
	"testing"

	"github.com/signkeeper/signkeeper/models"
	"github.com/stretchr/testify/assert"
)

func demoRecord(loginURL string) *models.TaskRecord {
	rec := &models.TaskRecord{
		TaskDefinition: models.TaskDefinition{
			Name:    "demo",
			Author:  "alice",
			Domains: []string{"example.com", "other.com"},
		},
	}
	if loginURL != "" {
		rec.Extra = map[string]models.Directive{"loginURL": {Latest: loginURL}}
	}
	return rec
}

func TestNormalize_StringResult(t *testing.T) {
	rec := demoRecord("")
	result := Normalize(rec, "all good")

	assert.Equal(t, "all good", result.Summary)
	assert.Len(t, result.Detail, 1)
	assert.Equal(t, "example.com", result.Detail[0].Domain)
	assert.Equal(t, "all good", result.Detail[0].Message)
	assert.Equal(t, "#", result.Detail[0].URL)
	assert.False(t, result.Detail[0].Errno)
	assert.Same(t, result, rec.State.Result)
}

func TestNormalize_LoginURLSelection(t *testing.T) {
	// Online state: the URL collapses to the origin.
	rec := demoRecord("https://example.com/login?next=home")
	rec.State.SuccessAt = 200
	rec.State.FailureAt = 100
	result := Normalize(rec, "ok")
	assert.False(t, result.Detail[0].Errno)
	assert.Equal(t, "https://example.com", result.Detail[0].URL)

	// Offline state: the full login URL is kept.
	rec = demoRecord("https://example.com/login?next=home")
	rec.State.SuccessAt = 100
	rec.State.FailureAt = 200
	result = Normalize(rec, "expired")
	assert.True(t, result.Detail[0].Errno)
	assert.Equal(t, "https://example.com/login?next=home", result.Detail[0].URL)
}

func TestNormalize_StructuredResultMerges(t *testing.T) {
	rec := demoRecord("")
	structured := &models.Result{
		Summary: "earned 5 points",
		Detail: []models.ResultDetail{
			{Domain: "example.com", URL: "https://example.com", Message: "daily bonus"},
		},
	}
	result := Normalize(rec, structured)
	assert.Equal(t, "earned 5 points", result.Summary)
	assert.Equal(t, "daily bonus", result.Detail[0].Message)
}

func TestNormalize_StructuredWithoutSummaryIsStringified(t *testing.T) {
	rec := demoRecord("")
	result := Normalize(rec, &models.Result{})
	// An empty structured result falls through to stringification and the
	// empty-summary fallback.
	assert.Equal(t, "NO_SUMMARY", result.Summary)
}

func TestNormalize_EmptySummaryFallback(t *testing.T) {
	rec := demoRecord("")
	result := Normalize(rec, "")
	assert.Equal(t, "NO_SUMMARY", result.Summary)
	assert.Equal(t, "", result.Detail[0].Message)
}
