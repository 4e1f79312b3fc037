package engine

import (
	"fmt"
	"regexp"

	"github.com/signkeeper/signkeeper/models"
)

// originPathRe splits a URL into its origin and the remainder of the path.
var originPathRe = regexp.MustCompile(`^([^:]+://[^/]+)(.*)$`)

// Normalize shapes a script's raw return value into the stored Result.
// A structured result carrying a non-empty summary is merged over the
// base shape; anything else is stringified into the summary and the first
// detail line. The errno flag reflects the task's state before the current
// outcome is applied, so callers normalize first and then stamp
// timestamps.
func Normalize(rec *models.TaskRecord, raw any) *models.Result {
	base := &models.Result{
		Summary: "",
		Detail: []models.ResultDetail{{
			Domain:  rec.Domains[0],
			URL:     "#",
			Message: "NO_MESSAGE",
			Errno:   rec.State.SuccessAt < rec.State.FailureAt,
		}},
	}

	if structured := structuredResult(raw); structured != nil && structured.Summary != "" {
		base.Summary = structured.Summary
		if structured.Detail != nil {
			base.Detail = structured.Detail
		}
	} else {
		text := stringify(raw)
		base.Summary = text
		base.Detail[0].Message = text
		if loginURL := rec.LoginURL(); loginURL != "" {
			if m := originPathRe.FindStringSubmatch(loginURL); m != nil {
				if base.Detail[0].Errno {
					// Offline: send the user to the full login URL.
					base.Detail[0].URL = loginURL
				} else {
					base.Detail[0].URL = m[1]
				}
			}
		}
	}

	if base.Summary == "" {
		base.Summary = "NO_SUMMARY"
	}
	rec.State.Result = base
	return base
}

// stringify renders the loose half of the raw result shape. A structured
// result that reached this path has an empty summary, which the caller's
// NO_SUMMARY fallback covers.
func stringify(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case error:
		return v.Error()
	case *models.Result:
		return v.Summary
	case models.Result:
		return v.Summary
	}
	return fmt.Sprint(raw)
}

// structuredResult recognizes the structured half of the raw result shape.
func structuredResult(raw any) *models.Result {
	switch v := raw.(type) {
	case *models.Result:
		return v
	case models.Result:
		return &v
	}
	return nil
}
