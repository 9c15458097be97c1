package wechatpay

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	domainErrors "github.com/polkiloo/bookshop/internal/domain/errors"
	"github.com/polkiloo/bookshop/internal/domain/model"
)

const algorithmAESGCM = "AEAD_AES_256_GCM"

type notifyEnvelope struct {
	ID           string         `json:"id"`
	CreateTime   string         `json:"create_time"`
	ResourceType string         `json:"resource_type"`
	EventType    string         `json:"event_type"`
	Summary      string         `json:"summary"`
	Resource     notifyResource `json:"resource"`
}

type notifyResource struct {
	OriginalType   string `json:"original_type"`
	Algorithm      string `json:"algorithm"`
	Ciphertext     string `json:"ciphertext"`
	Nonce          string `json:"nonce"`
	AssociatedData string `json:"associated_data"`
}

func verificationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domainErrors.ErrVerification, fmt.Sprintf(format, args...))
}

// checkFreshness rejects headers whose timestamp is further than tolerance from now.
func checkFreshness(timestamp string, now time.Time, tolerance time.Duration) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return verificationError("invalid timestamp %q", timestamp)
	}
	if tolerance <= 0 {
		return nil
	}
	skew := math.Abs(float64(now.Unix() - ts))
	if skew > tolerance.Seconds() {
		return verificationError("timestamp outside tolerance")
	}
	return nil
}

func decodeEnvelope(body []byte) (*notifyEnvelope, error) {
	var env notifyEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, verificationError("malformed envelope: %v", err)
	}
	if env.ID == "" || env.EventType == "" {
		return nil, verificationError("envelope missing id or event_type")
	}
	return &env, nil
}

func (e *notifyEnvelope) notification(resource []byte) *model.Notification {
	n := &model.Notification{
		ID:           e.ID,
		EventType:    e.EventType,
		ResourceType: e.ResourceType,
		Summary:      e.Summary,
		Resource:     resource,
	}
	if t, err := time.Parse(time.RFC3339, e.CreateTime); err == nil {
		n.CreateTime = t
	}
	return n
}
