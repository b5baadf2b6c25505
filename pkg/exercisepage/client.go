// Package exercisepage talks to external exercise services: it fetches exercise
// instructions and posts submissions for grading, returning the parsed pages.
package exercisepage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
)

const maxPageBytes = 8 << 20

// FetchError reports a failed request to an exercise service. It is never retried.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("exercise service %s responded with status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("exercise service %s unreachable: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Attachment is a file sent to the grader together with the form values.
type Attachment struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

// Client fetches pages from exercise services.
type Client struct {
	http      *http.Client
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// New constructs a client whose requests are bounded by the given timeout.
func New(timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		sanitizer: ContentPolicy(),
		logger:    logger.With().Str("component", "exercise_page_client").Logger(),
	}
}

// Fetch loads the exercise page found at pageURL.
func (c *Client) Fetch(ctx context.Context, pageURL string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Page{}, &FetchError{URL: pageURL, Err: err}
	}
	return c.do(req)
}

// Post sends the submission form values and files to pageURL and parses the feedback page.
func (c *Client) Post(ctx context.Context, pageURL string, data url.Values, files []Attachment) (Page, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, values := range data {
		for _, value := range values {
			if err := writer.WriteField(key, value); err != nil {
				return Page{}, fmt.Errorf("failed to encode field %s: %w", key, err)
			}
		}
	}
	for _, file := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, file.Field, file.Filename))
		contentType := file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			return Page{}, fmt.Errorf("failed to encode file %s: %w", file.Field, err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return Page{}, fmt.Errorf("failed to encode file %s: %w", file.Field, err)
		}
	}
	if err := writer.Close(); err != nil {
		return Page{}, fmt.Errorf("failed to finalise form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pageURL, &body)
	if err != nil {
		return Page{}, &FetchError{URL: pageURL, Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req)
}

// Download returns the raw bytes found at fileURL.
func (c *Client) Download(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, &FetchError{URL: fileURL, Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{URL: fileURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &FetchError{URL: fileURL, StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, &FetchError{URL: fileURL, Err: err}
	}
	return data, nil
}

func (c *Client) do(req *http.Request) (Page, error) {
	target := req.URL.String()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("method", req.Method).Msg("exercise service request failed")
		return Page{}, &FetchError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		c.logger.Warn().Int("status", resp.StatusCode).Str("method", req.Method).Msg("exercise service returned error status")
		return Page{}, &FetchError{URL: target, StatusCode: resp.StatusCode}
	}

	page, err := Parse(io.LimitReader(resp.Body, maxPageBytes), c.sanitizer)
	if err != nil {
		return Page{}, &FetchError{URL: target, Err: err}
	}
	page.URL = target
	return page, nil
}
