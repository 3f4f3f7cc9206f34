package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	logger "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Logger"
	attmodels "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Models"
)

// APIClient handles communication with the attendance server
type APIClient struct {
	baseURL        string
	loginPath      string
	attendancePath string
	userAgent      string
	httpClient     *http.Client
	logger         *logger.Logger
}

// Options configures the endpoints and transport of an APIClient
type Options struct {
	BaseURL        string
	LoginPath      string
	AttendancePath string
	UserAgent      string
	Timeout        time.Duration
	HTTPClient     *http.Client
	Logger         *logger.Logger
}

// NewAPIClient creates a new API client
func NewAPIClient(opts Options) *APIClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.LoginPath == "" {
		opts.LoginPath = "/login"
	}
	if opts.AttendancePath == "" {
		opts.AttendancePath = "/registrar_asistencia"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "attendance-agent"
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	return &APIClient{
		baseURL:        opts.BaseURL,
		loginPath:      opts.LoginPath,
		attendancePath: opts.AttendancePath,
		userAgent:      opts.UserAgent,
		httpClient:     httpClient,
		logger:         opts.Logger.WithComponent("api_client"),
	}
}

// Login performs the device login. The status field of the response decides
// success; the HTTP status code is only logged by callers.
func (c *APIClient) Login(ctx context.Context, telefonoID string) (*attmodels.LoginResponse, error) {
	req := attmodels.LoginRequest{TelefonoID: telefonoID}

	resp, err := c.makeRequest(ctx, http.MethodPost, c.loginPath, req)
	if err != nil {
		return nil, fmt.Errorf("failed to login: %w", err)
	}
	defer resp.Body.Close()

	var response attmodels.LoginResponse
	if err := decodeBody(resp, &response); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}

	return &response, nil
}

// RegisterAttendance posts one attendance submission. Business rejections come
// back as Success=false with a message, usually with a 4xx status, and are not errors.
func (c *APIClient) RegisterAttendance(ctx context.Context, submission attmodels.AttendanceSubmission) (*attmodels.AttendanceResponse, error) {
	resp, err := c.makeRequest(ctx, http.MethodPost, c.attendancePath, submission)
	if err != nil {
		return nil, fmt.Errorf("failed to register attendance: %w", err)
	}
	defer resp.Body.Close()

	var response attmodels.AttendanceResponse
	if err := decodeBody(resp, &response); err != nil {
		return nil, fmt.Errorf("failed to decode attendance response: %w", err)
	}

	return &response, nil
}

// Health checks if the attendance server answers
func (c *APIClient) Health(ctx context.Context) error {
	resp, err := c.makeRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return fmt.Errorf("failed to check API health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API health check failed with status %d", resp.StatusCode)
	}

	return nil
}

// makeRequest makes an HTTP request to the attendance server
func (c *APIClient) makeRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	log := c.logger.WithRequestID(requestID).WithField("path", path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.ErrorWithError(err, "API request failed")
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		log.Logger.Warn().Int("status", resp.StatusCode).Msg("API request answered with error status")
	} else {
		log.Debug("API request completed")
	}
	return resp, nil
}

// decodeBody decodes a JSON body whatever the status code; a non-JSON body is reported with its status
func decodeBody(resp *http.Response, dst interface{}) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("status %d, invalid JSON body %q: %w", resp.StatusCode, truncate(data, 120), err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
