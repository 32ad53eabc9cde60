package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// File is one document attached to a multipart upload.
type File struct {
	// Name is the filename reported to the server.
	Name string

	// Content is read once during the upload.
	Content io.Reader
}

// JDUpload is the response of POST /upload-jd.
type JDUpload struct {
	Message  string `json:"message"`
	Pages    int    `json:"pages"`
	Filename string `json:"filename"`
}

// CVUpload is the response of POST /upload-cvs.
type CVUpload struct {
	Message string       `json:"message"`
	CVCount int          `json:"cv_count"`
	Files   []UploadedCV `json:"files"`
}

// UploadedCV describes one CV accepted by POST /upload-cvs.
type UploadedCV struct {
	Filename string `json:"filename"`
	Pages    int    `json:"pages"`
}

// Comparison is the response of POST /compare-cvs. Matches are ranked by the
// server, best first.
type Comparison struct {
	Matches         []Match `json:"matches"`
	TotalCandidates int     `json:"total_candidates"`
}

// Match scores one CV against the uploaded job description.
type Match struct {
	CVName           string   `json:"cv_name"`
	MatchPercentage  float64  `json:"match_percentage"`
	MatchingSkills   []string `json:"matching_skills"`
	MissingSkills    []string `json:"missing_skills"`
	ExperienceMatch  bool     `json:"experience_match"`
	EducationMatch   bool     `json:"education_match"`
	OverallSummary   string   `json:"overall_summary,omitempty"`
	DetailedAnalysis string   `json:"detailed_analysis"`
}

// Grade buckets a match percentage for display.
type Grade int

const (
	GradeLow Grade = iota
	GradeMedium
	GradeHigh
)

// Grade returns GradeHigh from 80%, GradeMedium from 60%, GradeLow otherwise.
func (m Match) Grade() Grade {
	switch {
	case m.MatchPercentage >= 80:
		return GradeHigh
	case m.MatchPercentage >= 60:
		return GradeMedium
	default:
		return GradeLow
	}
}

// StatusError is returned for every non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Status int

	// Detail is the server-provided message from a {"detail": ...} or
	// {"error": ...} body, or empty.
	Detail string

	// Body is the raw response body.
	Body []byte
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("backend: %s %s returned status %d", e.Method, e.Path, e.Status)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Message returns the server's explanation, falling back to the status text.
func (e *StatusError) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	if t := http.StatusText(e.Status); t != "" {
		return t
	}
	return fmt.Sprintf("status %d", e.Status)
}

// newStatusError extracts Detail from a FastAPI style error body. FastAPI
// validation errors carry a list under "detail"; those are flattened to their
// "msg" fields.
func newStatusError(method, path string, status int, body []byte) *StatusError {
	e := &StatusError{Method: method, Path: path, Status: status, Body: body}
	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return e
	}
	switch {
	case len(payload.Detail) > 0:
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil {
			e.Detail = s
			break
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if json.Unmarshal(payload.Detail, &items) == nil {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				if it.Msg != "" {
					msgs = append(msgs, it.Msg)
				}
			}
			e.Detail = strings.Join(msgs, "; ")
		}
	case payload.Error != "":
		e.Detail = payload.Error
	}
	return e
}
