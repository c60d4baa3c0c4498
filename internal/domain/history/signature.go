package history

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"time"
)

type signaturePayload struct {
	EntryID       string `json:"entryId"`
	WalletID      string `json:"walletId"`
	Type          string `json:"type"`
	DemoID        string `json:"demoId,omitempty"`
	BadgeID       string `json:"badgeId,omitempty"`
	SessionID     string `json:"sessionId,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	Points        int64  `json:"points"`
	Experience    int64  `json:"experience"`
	Detail        string `json:"detail,omitempty"`
	CreatedAt     string `json:"createdAt"`
}

func buildSignaturePayload(e *Entry) signaturePayload {
	payload := signaturePayload{
		EntryID:    e.EntryID.String(),
		WalletID:   e.WalletID,
		Type:       string(e.Type),
		DemoID:     e.DemoID,
		BadgeID:    e.BadgeID,
		Points:     e.Points,
		Experience: e.Experience,
		CreatedAt:  e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if e.SessionID != nil {
		payload.SessionID = e.SessionID.String()
	}
	if e.TransactionID != nil {
		payload.TransactionID = e.TransactionID.String()
	}
	if len(e.Detail) > 0 {
		payload.Detail = base64.StdEncoding.EncodeToString(e.Detail)
	}
	return payload
}

// Sign generates an HMAC signature for the entry.
func Sign(e *Entry, key []byte) ([]byte, error) {
	data, err := json.Marshal(buildSignaturePayload(e))
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(data)
	return mac.Sum(nil), nil
}

// Verify checks the HMAC signature of the entry.
func Verify(e *Entry, key []byte) (bool, error) {
	if len(e.Signature) == 0 {
		return false, nil
	}
	expected, err := Sign(e, key)
	if err != nil {
		return false, err
	}
	return hmac.Equal(expected, e.Signature), nil
}
