package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	sandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	productionBaseURL = "https://api.safaricom.co.ke"

	// Daraja tokens live for an hour; refresh early.
	tokenTTL = 50 * time.Minute

	maxAccountReference = 12
	maxTransactionDesc  = 13

	// Returned by stkpushquery until the customer answers the prompt.
	errStillProcessing = "500.001.1001"
)

// East Africa Time, fixed so the binary needs no tzdata.
var nairobi = time.FixedZone("EAT", 3*60*60)

// MpesaConfig holds Daraja credentials.
type MpesaConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	Passkey        string
	Shortcode      string
	Environment    string // sandbox or production
	CallbackURL    string
	Timeout        time.Duration
	BaseURL        string // overrides Environment when set
}

// Configured reports whether every credential needed for a live push is present.
func (c MpesaConfig) Configured() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != "" && c.Passkey != "" && c.Shortcode != "" && c.CallbackURL != ""
}

// MpesaClient talks to the Safaricom Daraja API.
type MpesaClient struct {
	cfg     MpesaConfig
	baseURL string
	http    *http.Client
	now     func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewMpesaClient creates a Daraja client.
func NewMpesaClient(cfg MpesaConfig) *MpesaClient {
	base := cfg.BaseURL
	if base == "" {
		base = sandboxBaseURL
		if cfg.Environment == "production" {
			base = productionBaseURL
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &MpesaClient{
		cfg:     cfg,
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

type stkPushBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkQueryBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

// darajaResponse covers both success and error shapes of the STK endpoints.
type darajaResponse struct {
	MerchantRequestID   string          `json:"MerchantRequestID"`
	CheckoutRequestID   string          `json:"CheckoutRequestID"`
	ResponseCode        string          `json:"ResponseCode"`
	ResponseDescription string          `json:"ResponseDescription"`
	CustomerMessage     string          `json:"CustomerMessage"`
	ResultCode          json.RawMessage `json:"ResultCode"`
	ResultDesc          string          `json:"ResultDesc"`
	ErrorCode           string          `json:"errorCode"`
	ErrorMessage        string          `json:"errorMessage"`
}

// STKPush initiates a Lipa Na M-Pesa Online prompt.
func (c *MpesaClient) STKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error) {
	const op = "mpesa.STKPush"

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	password, timestamp := c.password()
	phone := NormalizePhone(req.PhoneNumber)
	body := stkPushBody{
		BusinessShortCode: c.cfg.Shortcode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            req.Amount,
		PartyA:            phone,
		PartyB:            c.cfg.Shortcode,
		PhoneNumber:       phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  truncate(req.AccountReference, maxAccountReference),
		TransactionDesc:   truncate(req.TransactionDesc, maxTransactionDesc),
	}

	var resp darajaResponse
	status, err := c.postJSON(ctx, "/mpesa/stkpush/v1/processrequest", token, body, &resp)
	if err != nil {
		return nil, &GatewayError{Op: op, StatusCode: status, Err: err}
	}
	if status/100 != 2 || resp.ResponseCode != "0" {
		return nil, &GatewayError{
			Op:         op,
			StatusCode: status,
			Code:       firstNonEmpty(resp.ResponseCode, resp.ErrorCode),
			Message:    firstNonEmpty(resp.ResponseDescription, resp.ErrorMessage, "STK push rejected"),
		}
	}

	return &STKPushResponse{
		MerchantRequestID:   resp.MerchantRequestID,
		CheckoutRequestID:   resp.CheckoutRequestID,
		ResponseCode:        resp.ResponseCode,
		ResponseDescription: resp.ResponseDescription,
		CustomerMessage:     resp.CustomerMessage,
	}, nil
}

// QueryStatus fetches the outcome of a previous push.
func (c *MpesaClient) QueryStatus(ctx context.Context, checkoutRequestID string) (*CallbackResult, error) {
	const op = "mpesa.QueryStatus"

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	password, timestamp := c.password()
	body := stkQueryBody{
		BusinessShortCode: c.cfg.Shortcode,
		Password:          password,
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	}

	var resp darajaResponse
	status, err := c.postJSON(ctx, "/mpesa/stkpushquery/v1/query", token, body, &resp)
	if err != nil {
		return nil, &GatewayError{Op: op, StatusCode: status, Err: err}
	}

	code, ok := parseResultCode(resp.ResultCode)
	if !ok {
		if resp.ErrorCode == errStillProcessing || (status/100 == 2 && resp.ErrorCode == "") {
			return nil, nil
		}
		return nil, &GatewayError{
			Op:         op,
			StatusCode: status,
			Code:       resp.ErrorCode,
			Message:    firstNonEmpty(resp.ErrorMessage, "unexpected query response"),
		}
	}

	return &CallbackResult{
		MerchantRequestID: resp.MerchantRequestID,
		CheckoutRequestID: firstNonEmpty(resp.CheckoutRequestID, checkoutRequestID),
		ResultCode:        code,
		ResultDesc:        resp.ResultDesc,
	}, nil
}

// accessToken returns a cached OAuth token, fetching a new one when stale.
func (c *MpesaClient) accessToken(ctx context.Context) (string, error) {
	const op = "mpesa.accessToken"

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", &GatewayError{Op: op, Err: err}
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	res, err := c.http.Do(req)
	if err != nil {
		return "", &GatewayError{Op: op, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", &GatewayError{Op: op, StatusCode: res.StatusCode, Message: "authentication failed"}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", &GatewayError{Op: op, StatusCode: res.StatusCode, Err: err}
	}
	if payload.AccessToken == "" {
		return "", &GatewayError{Op: op, StatusCode: res.StatusCode, Message: "empty access token"}
	}

	c.token = payload.AccessToken
	c.tokenExpiry = c.now().Add(tokenTTL)
	return c.token, nil
}

func (c *MpesaClient) password() (password, timestamp string) {
	timestamp = c.now().In(nairobi).Format("20060102150405")
	password = base64.StdEncoding.EncodeToString([]byte(c.cfg.Shortcode + c.cfg.Passkey + timestamp))
	return password, timestamp
}

func (c *MpesaClient) postJSON(ctx context.Context, path, token string, in, out any) (int, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return res.StatusCode, err
	}
	if len(data) == 0 {
		return res.StatusCode, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return res.StatusCode, fmt.Errorf("decode response (status %d): %w", res.StatusCode, err)
	}
	return res.StatusCode, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
