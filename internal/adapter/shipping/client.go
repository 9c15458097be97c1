package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/polkiloo/bookshop/internal/domain/model"
)

const (
	tokenPath  = "/cgi-bin/token"
	uploadPath = "/wxa/sec/order/upload_shipping_info"

	// tokenSafetyMargin is subtracted from expires_in before a cached token is reused.
	tokenSafetyMargin = 200 * time.Second

	orderNumberByOutTradeNo = 1
	deliveryModeUnified     = 1
	uploadTimeLayout        = "2006-01-02T15:04:05.000Z07:00"
)

var shanghai = time.FixedZone("CST", 8*60*60)

// Error codes meaning the cached access token is no longer accepted.
var tokenErrCodes = map[int]bool{40001: true, 40014: true, 42001: true}

// APIError is a non-zero errcode answer from the mini-program API.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wechat api errcode %d: %s", e.Code, e.Message)
}

// ErrTokenUnavailable is returned when no access token could be obtained.
var ErrTokenUnavailable = errors.New("access token unavailable")

// HTTPClient uploads shipping information through the mini-program API.
type HTTPClient struct {
	baseURL    *url.URL
	appID      string
	secret     string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	ErrCode     int    `json:"errcode"`
	ErrMsg      string `json:"errmsg"`
}

type apiResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

type uploadRequest struct {
	OrderKey       orderKey       `json:"order_key"`
	LogisticsType  int            `json:"logistics_type"`
	DeliveryMode   int            `json:"delivery_mode"`
	IsAllDelivered bool           `json:"is_all_delivered"`
	ShippingList   []shippingItem `json:"shipping_list"`
	UploadTime     string         `json:"upload_time"`
	Payer          payer          `json:"payer"`
}

type orderKey struct {
	OrderNumberType int    `json:"order_number_type"`
	TransactionID   string `json:"transaction_id"`
	MchID           string `json:"mchid"`
	OutTradeNo      string `json:"out_trade_no"`
}

type shippingItem struct {
	ItemDesc string `json:"item_desc"`
}

type payer struct {
	OpenID string `json:"openid"`
}

// NewHTTPClient creates the shipping client with a default timeout.
func NewHTTPClient(baseURL, appID, secret string, logger *slog.Logger) (*HTTPClient, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse wechat api url: %w", err)
	}
	if !parsed.IsAbs() {
		return nil, fmt.Errorf("wechat api url must be absolute")
	}
	return &HTTPClient{
		baseURL: parsed,
		appID:   appID,
		secret:  secret,
		logger:  logger,
		now:     time.Now,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

// Notify uploads the shipping notice. A non-zero errcode is returned as *APIError.
func (c *HTTPClient) Notify(ctx context.Context, notice model.ShippingNotice) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	uploadTime := notice.UploadTime
	if uploadTime.IsZero() {
		uploadTime = c.now()
	}
	payload := uploadRequest{
		OrderKey: orderKey{
			OrderNumberType: orderNumberByOutTradeNo,
			TransactionID:   notice.TransactionID,
			MchID:           notice.MchID,
			OutTradeNo:      notice.OutTradeNo,
		},
		LogisticsType:  notice.LogisticsType,
		DeliveryMode:   deliveryModeUnified,
		IsAllDelivered: true,
		ShippingList:   []shippingItem{{ItemDesc: notice.ItemDesc}},
		UploadTime:     uploadTime.In(shanghai).Format(uploadTimeLayout),
		Payer:          payer{OpenID: notice.PayerOpenID},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	endpoint := c.endpoint(uploadPath, url.Values{"access_token": {token}})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	var out apiResponse
	if err := c.do(req, &out); err != nil {
		return err
	}
	if out.ErrCode != 0 {
		if tokenErrCodes[out.ErrCode] {
			c.invalidateToken()
		}
		return &APIError{Code: out.ErrCode, Message: out.ErrMsg}
	}
	return nil
}

func (c *HTTPClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	endpoint := c.endpoint(tokenPath, url.Values{
		"grant_type": {"client_credential"},
		"appid":      {c.appID},
		"secret":     {c.secret},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	var out tokenResponse
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if out.ErrCode != 0 || out.AccessToken == "" {
		c.logger.Error("access token request rejected", slog.Int("errcode", out.ErrCode), slog.String("errmsg", out.ErrMsg))
		return "", fmt.Errorf("%w: errcode %d: %s", ErrTokenUnavailable, out.ErrCode, out.ErrMsg)
	}

	c.token = out.AccessToken
	c.expiresAt = c.now().Add(time.Duration(out.ExpiresIn)*time.Second - tokenSafetyMargin)
	return c.token, nil
}

func (c *HTTPClient) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

func (c *HTTPClient) endpoint(p string, query url.Values) string {
	u := *c.baseURL
	u.Path = path.Join(u.Path, p)
	u.RawQuery = query.Encode()
	return u.String()
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("wechat api request failed", slog.Int("status", resp.StatusCode), slog.String("body", string(body)))
		return fmt.Errorf("wechat api error: %s", resp.Status)
	}
	return json.Unmarshal(body, out)
}
