package mercadopago

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

	"github.com/shopspring/decimal"

	"github.com/j1myx/kiwishaproject/pkg/config"
	pkgerrors "github.com/j1myx/kiwishaproject/pkg/errors"
	"github.com/j1myx/kiwishaproject/pkg/logger"
)

const (
	testEnv = "test"
	prodEnv = "prod"
	autoEnv = "auto"

	defaultBaseURL = "https://api.mercadopago.com"
)

var (
	errAccessTokenRequired = errors.New("mercadopago access token is required")
	errInvalidEnv          = fmt.Errorf("mercadopago environment must be %q, %q or %q", autoEnv, testEnv, prodEnv)
	errLoggerRequired      = errors.New("mercadopago logger is required")
)

// Client exposes MercadoPago primitives with centralized auth, logging, and error mapping.
type Client struct {
	httpClient  *http.Client
	accessToken string
	environment string
	baseURL     string
	currency    string
	logger      *logger.Logger
}

// NewClient initializes the MercadoPago wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.MercadoPagoConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}

	accessToken := strings.TrimSpace(cfg.AccessToken)
	if accessToken == "" {
		return nil, errAccessTokenRequired
	}

	env, err := normalizeEnv(cfg.Environment, accessToken)
	if err != nil {
		return nil, err
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	currency := strings.TrimSpace(cfg.Currency)
	if currency == "" {
		currency = "PEN"
	}

	c := &Client{
		httpClient:  &http.Client{Timeout: timeout},
		accessToken: accessToken,
		environment: env,
		baseURL:     baseURL,
		currency:    currency,
		logger:      logg,
	}

	logg.Info(ctx, fmt.Sprintf("mercadopago client initialized (%s)", env))
	return c, nil
}

// Environment reports the normalized MercadoPago environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// UseSandbox reports whether checkout should hand out the sandbox init point.
func (c *Client) UseSandbox() bool {
	return c != nil && c.environment == testEnv
}

// Currency returns the configured currency code for preference items.
func (c *Client) Currency() string {
	if c == nil {
		return ""
	}
	return c.currency
}

// PreferenceItem is one purchasable line inside a checkout preference.
type PreferenceItem struct {
	Title     string
	Quantity  int
	UnitPrice decimal.Decimal
}

// BackURLs tells the gateway where to send the buyer after paying.
type BackURLs struct {
	Success string
	Failure string
	Pending string
}

// PreferenceRequest describes the checkout preference to create.
type PreferenceRequest struct {
	Items             []PreferenceItem
	ExternalReference string
	BackURLs          BackURLs
	// AutoReturn is only honored by the gateway for https back URLs.
	AutoReturn bool
}

// Preference is the created checkout session.
type Preference struct {
	ID                string `json:"id"`
	InitPoint         string `json:"init_point"`
	SandboxInitPoint  string `json:"sandbox_init_point"`
	ExternalReference string `json:"external_reference"`
}

// Payment is one gateway-side payment attempt.
type Payment struct {
	ID                int64   `json:"id"`
	Status            string  `json:"status"`
	StatusDetail      string  `json:"status_detail"`
	ExternalReference string  `json:"external_reference"`
	DateCreated       string  `json:"date_created"`
	TransactionAmount float64 `json:"transaction_amount"`
}

type wireItem struct {
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

type wireBackURLs struct {
	Success string `json:"success,omitempty"`
	Failure string `json:"failure,omitempty"`
	Pending string `json:"pending,omitempty"`
}

type wirePreferenceRequest struct {
	Items             []wireItem   `json:"items"`
	ExternalReference string       `json:"external_reference"`
	BackURLs          wireBackURLs `json:"back_urls"`
	AutoReturn        string       `json:"auto_return,omitempty"`
}

// CreatePreference opens a checkout session at the gateway.
func (c *Client) CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error) {
	if len(req.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "preference requires at least one item")
	}

	wire := wirePreferenceRequest{
		Items:             make([]wireItem, 0, len(req.Items)),
		ExternalReference: req.ExternalReference,
		BackURLs: wireBackURLs{
			Success: req.BackURLs.Success,
			Failure: req.BackURLs.Failure,
			Pending: req.BackURLs.Pending,
		},
	}
	for _, item := range req.Items {
		wire.Items = append(wire.Items, wireItem{
			Title:      item.Title,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice.InexactFloat64(),
			CurrencyID: c.currency,
		})
	}
	if req.AutoReturn && strings.HasPrefix(req.BackURLs.Success, "https://") {
		wire.AutoReturn = "approved"
	}

	c.log(ctx, "request", "create_preference", map[string]any{
		"external_reference": req.ExternalReference,
		"items":              len(req.Items),
	})

	var pref Preference
	if err := c.do(ctx, http.MethodPost, "/checkout/preferences", wire, &pref); err != nil {
		c.log(ctx, "error", "create_preference", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "create_preference", map[string]any{
		"preference_id":      pref.ID,
		"external_reference": pref.ExternalReference,
	})
	return &pref, nil
}

// SearchPaymentsByReference looks up payments tied to the given external reference,
// newest first.
func (c *Client) SearchPaymentsByReference(ctx context.Context, externalReference string) ([]Payment, error) {
	if strings.TrimSpace(externalReference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external reference is required")
	}

	query := url.Values{}
	query.Set("external_reference", externalReference)
	query.Set("sort", "date_created")
	query.Set("criteria", "desc")

	c.log(ctx, "request", "search_payments", map[string]any{
		"external_reference": externalReference,
	})

	var payload struct {
		Results []Payment `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/payments/search?"+query.Encode(), nil, &payload); err != nil {
		c.log(ctx, "error", "search_payments", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "search_payments", map[string]any{
		"external_reference": externalReference,
		"results":            len(payload.Results),
	})
	return payload.Results, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding gateway request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building gateway request")
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "calling payment gateway")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading gateway response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.mapStatusError(resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding gateway response")
	}
	return nil
}

func (c *Client) mapStatusError(status int, raw []byte) error {
	var payload struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(raw, &payload)
	message := strings.TrimSpace(payload.Message)
	if message == "" {
		message = fmt.Sprintf("gateway returned status %d", status)
	}

	err := fmt.Errorf("mercadopago: %s", message)
	switch {
	case status == http.StatusNotFound:
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "gateway resource not found")
	case status == http.StatusConflict:
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "gateway rejected duplicate request")
	case status >= 400 && status < 500:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "gateway rejected request")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "gateway unavailable")
	}
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("mercadopago %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("mercadopago %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"token", "secret", "email", "phone", "card"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func normalizeEnv(raw, accessToken string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	switch env {
	case "", autoEnv:
		if strings.HasPrefix(accessToken, "TEST-") {
			return testEnv, nil
		}
		if strings.HasPrefix(accessToken, "APP_USR-") {
			return prodEnv, nil
		}
		return testEnv, nil
	case testEnv, prodEnv:
		return env, nil
	default:
		return "", errInvalidEnv
	}
}
