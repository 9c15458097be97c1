package wechatpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/polkiloo/bookshop/internal/domain/model"
)

const (
	mockSerial  = "MOCK"
	mockSignAlg = "HMAC-SHA256"
)

// MockClient stands in for the gateway in local and test deployments.
// Notifications carry a plain JSON resource signed with HMAC-SHA256 under the API v3 key.
type MockClient struct {
	appID     string
	apiV3Key  string
	tolerance time.Duration
	now       func() time.Time
}

func NewMockClient(appID, apiV3Key string, tolerance time.Duration) *MockClient {
	return &MockClient{appID: appID, apiV3Key: apiV3Key, tolerance: tolerance, now: time.Now}
}

func (m *MockClient) CreatePaymentIntent(_ context.Context, req model.PaymentIntentRequest) (*model.PaymentIntent, error) {
	prepayID := "mock_prepay_" + req.OutTradeNo
	timestamp := strconv.FormatInt(m.now().Unix(), 10)
	nonce := randomString(32)
	pkg := "prepay_id=" + prepayID
	return &model.PaymentIntent{
		PrepayID: prepayID,
		PayParams: map[string]string{
			"appId":     m.appID,
			"timeStamp": timestamp,
			"nonceStr":  nonce,
			"package":   pkg,
			"signType":  mockSignAlg,
			"paySign":   hex.EncodeToString(m.mac(m.appID + "\n" + timestamp + "\n" + nonce + "\n" + pkg + "\n")),
		},
	}, nil
}

func (m *MockClient) CreateRefund(_ context.Context, req model.RefundRequest) (*model.RefundReceipt, error) {
	return &model.RefundReceipt{RefundID: "mock_" + req.OutRefundNo, Status: "PROCESSING"}, nil
}

type mockEnvelope struct {
	ID           string          `json:"id"`
	CreateTime   string          `json:"create_time"`
	ResourceType string          `json:"resource_type"`
	EventType    string          `json:"event_type"`
	Summary      string          `json:"summary"`
	Resource     json.RawMessage `json:"resource"`
}

func (m *MockClient) VerifyAndDecrypt(_ context.Context, headers model.NotificationHeaders, body []byte) (*model.Notification, error) {
	if !headers.Complete() {
		return nil, verificationError("signature headers required")
	}
	if err := checkFreshness(headers.Timestamp, m.now(), m.tolerance); err != nil {
		return nil, err
	}
	expected := MockSignature(m.apiV3Key, headers.Timestamp, headers.Nonce, body)
	if !hmac.Equal([]byte(expected), []byte(headers.Signature)) {
		return nil, verificationError("signature mismatch")
	}

	var env mockEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, verificationError("malformed envelope: %v", err)
	}
	if env.ID == "" || env.EventType == "" || len(env.Resource) == 0 {
		return nil, verificationError("envelope missing id, event_type or resource")
	}
	n := &model.Notification{
		ID:           env.ID,
		EventType:    env.EventType,
		ResourceType: env.ResourceType,
		Summary:      env.Summary,
		Resource:     []byte(env.Resource),
	}
	if t, err := time.Parse(time.RFC3339, env.CreateTime); err == nil {
		n.CreateTime = t
	}
	return n, nil
}

// MockHeaders signs body the way MockClient expects, for local tooling and tests.
func MockHeaders(apiV3Key string, at time.Time, body []byte) model.NotificationHeaders {
	timestamp := strconv.FormatInt(at.Unix(), 10)
	nonce := randomString(32)
	return model.NotificationHeaders{
		Serial:    mockSerial,
		Nonce:     nonce,
		Timestamp: timestamp,
		Signature: MockSignature(apiV3Key, timestamp, nonce, body),
	}
}

// MockSignature returns base64(HMAC-SHA256(key, "ts\nnonce\nbody\n")).
func MockSignature(apiV3Key, timestamp, nonce string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(apiV3Key))
	mac.Write([]byte(timestamp + "\n" + nonce + "\n" + string(body) + "\n"))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (m *MockClient) mac(message string) []byte {
	mac := hmac.New(sha256.New, []byte(m.apiV3Key))
	mac.Write([]byte(message))
	return mac.Sum(nil)
}
