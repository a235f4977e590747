// Package asaas is a minimal client for the Asaas payment provider REST
// API: payment status confirmation plus the customer operations the
// checkout flow needs. The client is constructed explicitly and passed
// around; there is no package-level instance.
package asaas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	ProductionBaseURL = "https://www.asaas.com/api/v2"
	SandboxBaseURL    = "https://homolog.asaas.com/api/v2"

	defaultTimeout = 60 * time.Second
	// listPageLimit caps how many pages a paginated lookup will walk
	// before giving up; the provider signals more pages via hasMore.
	listPageLimit = 50
)

var (
	// ErrProviderUnavailable covers timeouts, connection errors, 429 and
	// 5xx responses. Callers may retry the whole operation later.
	ErrProviderUnavailable = errors.New("asaas: provider unavailable")
	// ErrProviderRejected covers 4xx responses other than 429, bad
	// credentials included. Retrying will not help; an operator has to look.
	ErrProviderRejected = errors.New("asaas: provider rejected request")
	// ErrNotFound is returned for lookups of objects the provider does
	// not know.
	ErrNotFound = errors.New("asaas: object not found")
)

// ProviderStatus is the canonical answer from the provider for one
// payment, fetched via the confirmation GET.
type ProviderStatus struct {
	TransactionID string
	StatusCode    int
	PaymentLink   string
}

// Customer mirrors the provider's customer object.
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = ProductionBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type paymentResponse struct {
	Object      string      `json:"object"`
	ID          string      `json:"id"`
	Status      json.Number `json:"status"`
	PaymentLink string      `json:"paymentLink"`
}

// ConfirmStatus fetches the canonical status of a payment from the
// provider. Used when the inbound push payload is treated as a hint
// rather than ground truth.
func (c *Client) ConfirmStatus(ctx context.Context, transactionID string) (*ProviderStatus, error) {
	body, err := c.get(ctx, "/payments/"+url.PathEscape(transactionID), nil)
	if err != nil {
		return nil, err
	}

	var resp paymentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("asaas: failed to decode payment response: %w", err)
	}
	code, err := strconv.Atoi(resp.Status.String())
	if err != nil {
		return nil, fmt.Errorf("asaas: non-numeric payment status %q: %w", resp.Status.String(), err)
	}

	return &ProviderStatus{
		TransactionID: resp.ID,
		StatusCode:    code,
		PaymentLink:   resp.PaymentLink,
	}, nil
}

type customerListResponse struct {
	Object     string     `json:"object"`
	HasMore    bool       `json:"hasMore"`
	TotalCount int        `json:"totalCount"`
	Offset     int        `json:"offset"`
	Data       []Customer `json:"data"`
}

// FindCustomerByEmail walks the customer collection page by page until a
// matching email is found or hasMore goes false.
func (c *Client) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	offset := 0
	for page := 0; page < listPageLimit; page++ {
		params := url.Values{}
		params.Set("email", email)
		if offset > 0 {
			params.Set("offset", strconv.Itoa(offset))
		}

		body, err := c.get(ctx, "/customers", params)
		if err != nil {
			return nil, err
		}

		var resp customerListResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("asaas: failed to decode customer list: %w", err)
		}
		for i := range resp.Data {
			if resp.Data[i].Email == email {
				return &resp.Data[i], nil
			}
		}
		if !resp.HasMore {
			return nil, ErrNotFound
		}
		offset += len(resp.Data)
		if len(resp.Data) == 0 {
			return nil, ErrNotFound
		}
	}
	return nil, ErrNotFound
}

// CreateCustomer registers a customer with the provider.
func (c *Client) CreateCustomer(ctx context.Context, customer Customer) (*Customer, error) {
	payload, err := json.Marshal(customer)
	if err != nil {
		return nil, fmt.Errorf("asaas: failed to encode customer: %w", err)
	}
	body, err := c.do(ctx, http.MethodPost, "/customers", nil, payload)
	if err != nil {
		return nil, err
	}
	created := &Customer{}
	if err := json.Unmarshal(body, created); err != nil {
		return nil, fmt.Errorf("asaas: failed to decode created customer: %w", err)
	}
	return created, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, endpoint, params, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, params url.Values, payload []byte) ([]byte, error) {
	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("asaas: failed to build request: %w", err)
	}
	req.Header.Set("access_token", c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Asaas request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %v", ErrProviderUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		c.logger.Warn("Asaas returned retryable status",
			zap.String("endpoint", endpoint),
			zap.Int("status_code", resp.StatusCode))
		return nil, fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	default:
		c.logger.Error("Asaas rejected request",
			zap.String("endpoint", endpoint),
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("body", body))
		return nil, fmt.Errorf("%w: status %d", ErrProviderRejected, resp.StatusCode)
	}
}
