package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/escrow-backend/pkg/errors"
)

const (
	defaultBaseURL        = "https://api.paystack.co"
	defaultTimeout        = 15 * time.Second
	responseBodyReadLimit = int64(1 << 20)
)

var errSecretKeyRequired = errors.New("paystack secret key is required")

// Client talks to the payment and transfer endpoints of a Paystack-style
// gateway. Every call is bounded by the http client timeout and by ctx.
type Client struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout bounds every request.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds a client authenticated with the secret key.
func NewClient(secretKey string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(secretKey)
	if trimmed == "" {
		return nil, errSecretKeyRequired
	}

	client := &Client{
		secretKey:  trimmed,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// SecretKey returns the key webhooks are signed with.
func (c *Client) SecretKey() string {
	return c.secretKey
}

// InitializeTransaction starts a hosted payment and returns where to send
// the payer.
func (c *Client) InitializeTransaction(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	if strings.TrimSpace(req.Email) == "" || req.Amount <= 0 || strings.TrimSpace(req.Reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email, amount and reference are required")
	}
	var out InitializeResponse
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyTransaction fetches the gateway's view of a payment.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	trimmed := strings.TrimSpace(reference)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	var out Transaction
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(trimmed), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateTransferRecipient registers a bank account as a transfer target.
func (c *Client) CreateTransferRecipient(ctx context.Context, req RecipientRequest) (*Recipient, error) {
	if req.AccountNumber == "" || req.BankCode == "" || req.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account number, bank code and name are required")
	}
	if req.Type == "" {
		req.Type = "nuban"
	}
	var out Recipient
	if err := c.do(ctx, http.MethodPost, "/transferrecipient", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InitiateTransfer sends money from the platform balance to a recipient.
func (c *Client) InitiateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	if req.Recipient == "" || req.Amount <= 0 || req.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient, amount and reference are required")
	}
	if req.Source == "" {
		req.Source = "balance"
	}
	var out Transfer
	if err := c.do(ctx, http.MethodPost, "/transfer", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResolveAccount looks up the registered name on a bank account.
func (c *Client) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*ResolvedAccount, error) {
	if accountNumber == "" || bankCode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account number and bank code are required")
	}
	q := url.Values{}
	q.Set("account_number", accountNumber)
	q.Set("bank_code", bankCode)
	var out ResolvedAccount
	if err := c.do(ctx, http.MethodGet, "/bank/resolve?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListBanks returns the banks supported for transfers in a country.
func (c *Client) ListBanks(ctx context.Context, country string) ([]Bank, error) {
	path := "/bank"
	if country != "" {
		path += "?country=" + url.QueryEscape(country)
	}
	var out []Bank
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "paystack client not configured")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal paystack request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build paystack request")
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute paystack request").
			WithDetails(map[string]any{"reason": reasonFor(err)})
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read paystack response")
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %w", resp.StatusCode, err), "decode paystack response")
	}
	if resp.StatusCode >= http.StatusBadRequest || !env.Status {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: env.Message}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, apiErr, "paystack request failed").
			WithDetails(map[string]any{"reason": apiErr.Message, "provider_status": resp.StatusCode})
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode paystack data")
		}
	}
	return nil
}

func (c *Client) buildURL(path string) string {
	return strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func reasonFor(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "payment partner timed out"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return "payment partner timed out"
	}
	return "payment partner unreachable"
}
