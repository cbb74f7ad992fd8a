package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Course is an active enrollment.
type Course struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Assignment is a course assignment summary.
type Assignment struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	DueAt       string `json:"due_at"`
	PointsTotal float64 `json:"points_possible"`
}

// File is a downloadable course file.
type File struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	URL         string `json:"url"`
	ContentType string `json:"content-type"`
}

// Client talks to the Canvas LMS REST API with a per-student bearer token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a Canvas client. baseURL is the API root, e.g.
// https://canvas.instructure.com/api/v1.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

var nextLinkRe = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// getPaged fetches url and every rel="next" page after it, decoding each
// page into a slice of T and appending.
func getPaged[T any](ctx context.Context, c *Client, url string) ([]T, error) {
	var all []T
	for url != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("canvas request failed: %w", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read canvas response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("canvas returned status %d: %s", resp.StatusCode, string(body))
		}

		var page []T
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("failed to decode canvas response: %w", err)
		}
		all = append(all, page...)

		url = ""
		if m := nextLinkRe.FindStringSubmatch(resp.Header.Get("Link")); m != nil {
			url = m[1]
		}
	}
	return all, nil
}

// ActiveCourses lists the student's active enrollments. Errors degrade to an
// empty list so one failing call does not abort ingestion.
func (c *Client) ActiveCourses(ctx context.Context) []Course {
	courses, err := getPaged[Course](ctx, c, c.baseURL+"/courses?enrollment_state=active&per_page=50")
	if err != nil {
		log.Printf("ERROR: failed to list courses: %v", err)
		return nil
	}
	return courses
}

// Assignments lists assignments for a course.
func (c *Client) Assignments(ctx context.Context, courseID int64) []Assignment {
	as, err := getPaged[Assignment](ctx, c, fmt.Sprintf("%s/courses/%d/assignments?per_page=50", c.baseURL, courseID))
	if err != nil {
		log.Printf("ERROR: failed to list assignments for course %d: %v", courseID, err)
		return nil
	}
	return as
}

// Files lists files for a course.
func (c *Client) Files(ctx context.Context, courseID int64) []File {
	fs, err := getPaged[File](ctx, c, fmt.Sprintf("%s/courses/%d/files?per_page=50", c.baseURL, courseID))
	if err != nil {
		log.Printf("ERROR: failed to list files for course %d: %v", courseID, err)
		return nil
	}
	return fs
}

// DownloadFile fetches one course file into dir and returns the local path.
func (c *Client) DownloadFile(ctx context.Context, f File, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("file download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("file download returned status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download dir: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(f.DisplayName))
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return path, nil
}
