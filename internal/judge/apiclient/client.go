// Package apiclient talks to the front-office judge API. The worker
// authenticates with a long-lived service token and reports grading
// progress through PATCH calls as each granularity resolves.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"treadmill/internal/judge/model"
	"treadmill/pkg/errors"
)

// Gateway is the judge API surface the pipeline depends on
type Gateway interface {
	GetSubmission(ctx context.Context, problemID, submissionID int64) (*model.Submission, error)
	SetJudgeResult(ctx context.Context, requestID int64, result model.JudgeResult) error
	SetTestSetResult(ctx context.Context, requestID, testSetID int64, result model.TestSetResult) error
	SetTestCaseResult(ctx context.Context, requestID, testSetID, testCaseID int64, result model.TestCaseResult) error
}

// Client implements Gateway over HTTP
type Client struct {
	endpoint string
	token    string
	http     *http.Client
}

// NewClient mints the service token and returns a ready client
func NewClient(endpoint, secretKey string, timeout time.Duration) (*Client, error) {
	token, err := serviceToken(secretKey)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidConfig).WithMessage("sign service token")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		http:     &http.Client{Timeout: timeout},
	}, nil
}

// serviceToken signs the worker identity claim. 10000 days matches the
// horizon the issuing API checks against.
func serviceToken(secretKey string) (string, error) {
	claims := jwt.MapClaims{
		"internal": "treadmill",
		"exp":      time.Now().UTC().Add(10_000 * 24 * time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secretKey))
}

// GetSubmission fetches submission metadata with its judge spec
func (c *Client) GetSubmission(ctx context.Context, problemID, submissionID int64) (*model.Submission, error) {
	var subm model.Submission
	path := fmt.Sprintf("/problems/%d/submissions/%d/detail", problemID, submissionID)
	if err := c.get(ctx, path, &subm); err != nil {
		return nil, err
	}
	return &subm, nil
}

// SetJudgeResult patches the overall verdict
func (c *Client) SetJudgeResult(ctx context.Context, requestID int64, result model.JudgeResult) error {
	return c.patch(ctx, fmt.Sprintf("/judge/%d/", requestID), result)
}

// SetTestSetResult patches one set's score
func (c *Client) SetTestSetResult(ctx context.Context, requestID, testSetID int64, result model.TestSetResult) error {
	return c.patch(ctx, fmt.Sprintf("/judge/%d/testset/%d/", requestID, testSetID), result)
}

// SetTestCaseResult patches one case's verdict
func (c *Client) SetTestCaseResult(ctx context.Context, requestID, testSetID, testCaseID int64, result model.TestCaseResult) error {
	return c.patch(ctx, fmt.Sprintf("/judge/%d/testset/%d/testcase/%d/", requestID, testSetID, testCaseID), result)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return errors.Wrapf(err, errors.InternalAPIError, "GET %s", path)
	}
	req.Header.Set("Authorization", "JWT "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, errors.InternalAPIError, "GET %s", path)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "GET", path); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, errors.APIDecodeFailed, "GET %s", path)
	}
	return nil
}

func (c *Client) patch(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, errors.InternalAPIError, "PATCH %s", path)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, errors.InternalAPIError, "PATCH %s", path)
	}
	req.Header.Set("Authorization", "JWT "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, errors.InternalAPIError, "PATCH %s", path)
	}
	defer resp.Body.Close()

	return checkStatus(resp, "PATCH", path)
}

func checkStatus(resp *http.Response, method, path string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return errors.Newf(errors.InternalAPIError, "%s %s: %s: %s",
		method, path, resp.Status, strings.TrimSpace(string(excerpt)))
}
