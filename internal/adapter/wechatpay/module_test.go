package wechatpay

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/polkiloo/bookshop/internal/config"
)

func TestNewFromConfig(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	mock, err := NewFromConfig(&config.Config{
		PayMode:          config.PayModeMock,
		WeChat:           config.WeChat{AppID: "wx", APIv3Key: testAPIv3Key},
		WebhookTolerance: time.Minute,
	}, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := mock.(*MockClient); !ok {
		t.Fatalf("expected mock client, got %T", mock)
	}

	keys := newTestKeys(t)
	prod, err := NewFromConfig(&config.Config{
		PayMode: config.PayModeProd,
		WeChat: config.WeChat{
			AppID: "wx", MchID: "mch", MchSerial: "serial",
			PrivateKey: keys.merchantPEM, PlatformCert: keys.platformCert, APIv3Key: testAPIv3Key,
			PayBaseURL: "https://pay.example",
		},
	}, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client, ok := prod.(*Client)
	if !ok || client.baseURL != "https://pay.example" {
		t.Fatalf("expected configured client, got %#v", prod)
	}

	if _, err := NewFromConfig(&config.Config{PayMode: config.PayModeProd}, logger); err == nil {
		t.Fatal("expected error for missing credentials")
	}
	if _, err := NewFromConfig(&config.Config{PayMode: "sandbox"}, logger); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
