package wechatpay

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/polkiloo/bookshop/internal/domain/model"
)

const (
	jsapiPath  = "/v3/pay/transactions/jsapi"
	refundPath = "/v3/refund/domestic/refunds"

	defaultBaseURL     = "https://api.mch.weixin.qq.com"
	defaultDescription = "bookshop order"
)

// Config holds the merchant credentials. PrivateKey and PlatformCert accept inline PEM or a file path.
type Config struct {
	AppID        string
	MchID        string
	MchSerial    string
	PrivateKey   string
	PlatformCert string
	APIv3Key     string
	BaseURL      string
	Tolerance    time.Duration
	HTTP         *http.Client
}

// Client talks to WeChat Pay API v3 and verifies its notifications.
type Client struct {
	appID          string
	mchID          string
	mchSerial      string
	privateKey     *rsa.PrivateKey
	apiV3Key       string
	platformCert   *x509.Certificate
	platformSerial string
	baseURL        string
	tolerance      time.Duration
	http           *http.Client
	now            func() time.Time
}

// NewClient parses keys and certificates from cfg.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.AppID) == "" || strings.TrimSpace(cfg.MchID) == "" || strings.TrimSpace(cfg.MchSerial) == "" ||
		strings.TrimSpace(cfg.PrivateKey) == "" || strings.TrimSpace(cfg.APIv3Key) == "" || strings.TrimSpace(cfg.PlatformCert) == "" {
		return nil, fmt.Errorf("wechat pay config incomplete")
	}
	if len(cfg.APIv3Key) != 32 {
		return nil, fmt.Errorf("api v3 key must be 32 bytes")
	}
	pemKey, err := loadPEM(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}
	priv, err := parsePrivateKey(pemKey)
	if err != nil {
		return nil, err
	}
	pemCert, err := loadPEM(cfg.PlatformCert)
	if err != nil {
		return nil, fmt.Errorf("load platform cert: %w", err)
	}
	cert, err := parseCert(pemCert)
	if err != nil {
		return nil, err
	}
	if _, ok := cert.PublicKey.(*rsa.PublicKey); !ok {
		return nil, fmt.Errorf("platform cert must carry an RSA key")
	}
	hc := cfg.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		appID:          cfg.AppID,
		mchID:          cfg.MchID,
		mchSerial:      cfg.MchSerial,
		privateKey:     priv,
		apiV3Key:       cfg.APIv3Key,
		platformCert:   cert,
		platformSerial: strings.ToUpper(cert.SerialNumber.Text(16)),
		baseURL:        baseURL,
		tolerance:      cfg.Tolerance,
		http:           hc,
		now:            time.Now,
	}, nil
}

type jsapiPrepayReq struct {
	AppID       string      `json:"appid"`
	MchID       string      `json:"mchid"`
	Description string      `json:"description"`
	OutTradeNo  string      `json:"out_trade_no"`
	NotifyURL   string      `json:"notify_url"`
	Amount      jsapiAmount `json:"amount"`
	Payer       jsapiPayer  `json:"payer"`
}

type jsapiAmount struct {
	Total    int64  `json:"total"`
	Currency string `json:"currency"`
}

type jsapiPayer struct {
	OpenID string `json:"openid"`
}

type jsapiPrepayResp struct {
	PrepayID string `json:"prepay_id"`
}

// CreatePaymentIntent places a JSAPI prepay order and signs the client payment parameters.
func (c *Client) CreatePaymentIntent(ctx context.Context, req model.PaymentIntentRequest) (*model.PaymentIntent, error) {
	if strings.TrimSpace(req.BuyerRef) == "" {
		return nil, fmt.Errorf("openid required")
	}
	if strings.TrimSpace(req.NotifyURL) == "" {
		return nil, fmt.Errorf("notify_url required")
	}
	description := req.Description
	if strings.TrimSpace(description) == "" {
		description = defaultDescription
	}
	body := jsapiPrepayReq{
		AppID:       c.appID,
		MchID:       c.mchID,
		Description: description,
		OutTradeNo:  req.OutTradeNo,
		NotifyURL:   req.NotifyURL,
		Amount:      jsapiAmount{Total: req.Amount, Currency: "CNY"},
		Payer:       jsapiPayer{OpenID: req.BuyerRef},
	}
	var out jsapiPrepayResp
	if err := c.post(ctx, jsapiPath, body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.PrepayID) == "" {
		return nil, fmt.Errorf("missing prepay_id")
	}
	params, err := c.buildPayParams(out.PrepayID)
	if err != nil {
		return nil, err
	}
	return &model.PaymentIntent{PrepayID: out.PrepayID, PayParams: params}, nil
}

type refundReq struct {
	OutTradeNo  string       `json:"out_trade_no"`
	OutRefundNo string       `json:"out_refund_no"`
	Reason      string       `json:"reason,omitempty"`
	NotifyURL   string       `json:"notify_url"`
	Amount      refundAmount `json:"amount"`
}

type refundAmount struct {
	Refund   int64  `json:"refund"`
	Total    int64  `json:"total"`
	Currency string `json:"currency"`
}

type refundResp struct {
	RefundID string `json:"refund_id"`
	Status   string `json:"status"`
}

// CreateRefund requests a domestic refund. Repeating the same OutRefundNo is idempotent at the gateway.
func (c *Client) CreateRefund(ctx context.Context, req model.RefundRequest) (*model.RefundReceipt, error) {
	if req.OutRefundNo == "" {
		return nil, fmt.Errorf("out_refund_no required")
	}
	body := refundReq{
		OutTradeNo:  req.OutTradeNo,
		OutRefundNo: req.OutRefundNo,
		Reason:      req.Reason,
		NotifyURL:   req.NotifyURL,
		Amount:      refundAmount{Refund: req.RefundAmount, Total: req.TotalAmount, Currency: "CNY"},
	}
	var out refundResp
	if err := c.post(ctx, refundPath, body, &out); err != nil {
		return nil, err
	}
	return &model.RefundReceipt{RefundID: out.RefundID, Status: out.Status}, nil
}

// VerifyAndDecrypt checks serial, freshness and signature, then opens the encrypted resource.
func (c *Client) VerifyAndDecrypt(_ context.Context, headers model.NotificationHeaders, body []byte) (*model.Notification, error) {
	if !headers.Complete() {
		return nil, verificationError("signature headers required")
	}
	if !strings.EqualFold(headers.Serial, c.platformSerial) {
		return nil, verificationError("platform cert serial mismatch")
	}
	if err := checkFreshness(headers.Timestamp, c.now(), c.tolerance); err != nil {
		return nil, err
	}
	message := headers.Timestamp + "\n" + headers.Nonce + "\n" + string(body) + "\n"
	if err := verifySHA256(c.platformCert.PublicKey.(*rsa.PublicKey), message, headers.Signature); err != nil {
		return nil, verificationError("signature mismatch: %v", err)
	}

	env, err := decodeEnvelope(body)
	if err != nil {
		return nil, err
	}
	if env.Resource.Algorithm != algorithmAESGCM {
		return nil, verificationError("unsupported algorithm %q", env.Resource.Algorithm)
	}
	plain, err := decryptAESGCM(c.apiV3Key, env.Resource.Nonce, env.Resource.AssociatedData, env.Resource.Ciphertext)
	if err != nil {
		return nil, verificationError("decrypt resource: %v", err)
	}
	return env.notification(plain), nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	u := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	auth, err := c.buildAuthorization(http.MethodPost, u, raw)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", auth)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wechat pay error: status %d: %s", e.StatusCode, e.Body)
}

func (c *Client) buildAuthorization(method, rawURL string, body []byte) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	nonce := randomString(32)
	message := method + "\n" + u.RequestURI() + "\n" + timestamp + "\n" + nonce + "\n" + string(body) + "\n"
	signature, err := signSHA256(c.privateKey, message)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`WECHATPAY2-SHA256-RSA2048 mchid="%s",nonce_str="%s",timestamp="%s",serial_no="%s",signature="%s"`,
		c.mchID, nonce, timestamp, c.mchSerial, signature), nil
}

func (c *Client) buildPayParams(prepayID string) (map[string]string, error) {
	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	nonce := randomString(32)
	pkg := "prepay_id=" + prepayID
	message := c.appID + "\n" + timestamp + "\n" + nonce + "\n" + pkg + "\n"
	signature, err := signSHA256(c.privateKey, message)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"appId":     c.appID,
		"timeStamp": timestamp,
		"nonceStr":  nonce,
		"package":   pkg,
		"signType":  "RSA",
		"paySign":   signature,
	}, nil
}
