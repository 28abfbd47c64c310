package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// WebClient talks to the scribe web service over HTTP. Every Register call
// creates a throwaway account with its own cookie jar, so sessions never
// share identity.
type WebClient struct {
	baseURL string
	timeout time.Duration
}

// NewWebClient returns a client for the service at baseURL.
func NewWebClient(baseURL string, requestTimeout time.Duration) *WebClient {
	if requestTimeout <= 0 {
		requestTimeout = 2 * time.Minute
	}
	return &WebClient{baseURL: baseURL, timeout: requestTimeout}
}

// Register creates a fresh account and returns the authenticated session.
func (c *WebClient) Register(ctx context.Context, creds Credentials) (Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, &RegistrationError{Err: err}
	}
	hc := &http.Client{Timeout: c.timeout, Jar: jar}

	payload, err := json.Marshal(map[string]string{
		"email":    creds.Email,
		"password": creds.Password,
	})
	if err != nil {
		return nil, &RegistrationError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/register", bytes.NewReader(payload))
	if err != nil {
		return nil, &RegistrationError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, &RegistrationError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &RegistrationError{Err: fmt.Errorf("http %d: %s", resp.StatusCode, body)}
	}

	return &webSession{baseURL: c.baseURL, hc: hc}, nil
}

// webSession is one authenticated account session, identified by its cookies.
type webSession struct {
	baseURL string
	hc      *http.Client

	closeOnce sync.Once
	closeErr  error
}

// Configure sets language, diarization, and restoration for the next upload.
func (s *webSession) Configure(ctx context.Context, opts Options) error {
	payload, err := json.Marshal(map[string]any{
		"language": opts.Language,
		"diarize":  opts.Diarize,
		"restore":  opts.Restore,
	})
	if err != nil {
		return fmt.Errorf("configure session: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/settings", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("configure session: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.hc.Do(req)
	if err != nil {
		return fmt.Errorf("configure session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("configure session: http %d: %s", resp.StatusCode, body)
	}
	return nil
}

// Upload submits the audio file as a multipart form.
func (s *webSession) Upload(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &UploadError{Path: path, Err: err}
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return &UploadError{Path: path, Err: err}
	}
	if _, err := io.Copy(fw, f); err != nil {
		return &UploadError{Path: path, Err: err}
	}
	if err := mw.Close(); err != nil {
		return &UploadError{Path: path, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/transcriptions", &body)
	if err != nil {
		return &UploadError{Path: path, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.hc.Do(req)
	if err != nil {
		return &UploadError{Path: path, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &UploadError{Path: path, Err: fmt.Errorf("http %d: %s", resp.StatusCode, b)}
	}
	return nil
}

// ListEntries fetches the account's transcription listing.
func (s *webSession) ListEntries(ctx context.Context) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/transcriptions", nil)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	resp, err := s.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("list entries: http %d", resp.StatusCode)
	}

	var listed []struct {
		Name string `json:"name"`
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		return nil, fmt.Errorf("list entries: decode: %w", err)
	}

	entries := make([]Entry, 0, len(listed))
	for _, e := range listed {
		entries = append(entries, Entry{Name: e.Name, ResultText: e.Text})
	}
	return entries, nil
}

// Close logs the throwaway account out. Safe to call more than once.
func (s *webSession) Close() error {
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/logout", nil)
		if err != nil {
			s.closeErr = fmt.Errorf("close session: %w", err)
			return
		}
		resp, err := s.hc.Do(req)
		if err != nil {
			s.closeErr = fmt.Errorf("close session: %w", err)
			return
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			s.closeErr = fmt.Errorf("close session: http %d", resp.StatusCode)
		}
	})
	return s.closeErr
}
