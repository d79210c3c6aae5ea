package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/amirasaad/remittance/pkg/domain/payment"
	"github.com/amirasaad/remittance/pkg/money"
)

// OzowHashField holds the signature in Ozow notifications and requests.
const OzowHashField = "Hash"

var ozowStatuses = map[string]payment.Status{
	"Complete":             payment.StatusCompleted,
	"Cancelled":            payment.StatusCancelled,
	"Abandoned":            payment.StatusCancelled,
	"Error":                payment.StatusFailed,
	"Pending":              payment.StatusProcessing,
	"PendingInvestigation": payment.StatusProcessing,
}

// Ozow handles instant-EFT notifications posted as form fields.
type Ozow struct {
	privateKey string
}

func NewOzow(privateKey string) *Ozow {
	return &Ozow{privateKey: privateKey}
}

func (o *Ozow) Provider() payment.Gateway { return payment.GatewayOzow }

// SignOzow computes the lowercase hex HMAC-SHA512, keyed by privateKey, of
// the field values concatenated in key order. The Hash field is excluded.
func SignOzow(fields url.Values, privateKey string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k != OzowHashField {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(fields.Get(k))
	}
	mac := hmac.New(sha512.New, []byte(privateKey))
	mac.Write([]byte(strings.ToLower(b.String())))
	return hex.EncodeToString(mac.Sum(nil))
}

func (o *Ozow) Verify(payload []byte, _ http.Header) error {
	fields, err := url.ParseQuery(string(payload))
	if err != nil {
		return signatureError("ozow: unreadable form: %v", err)
	}
	got := strings.ToLower(fields.Get(OzowHashField))
	if got == "" {
		return signatureError("ozow: missing %s", OzowHashField)
	}
	want := SignOzow(fields, o.privateKey)
	if !hmac.Equal([]byte(got), []byte(want)) {
		return signatureError("ozow: hash mismatch")
	}
	return nil
}

func (o *Ozow) Normalize(payload []byte) (*PaymentEvent, error) {
	fields, err := url.ParseQuery(string(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	txID := fields.Get("TransactionId")
	if txID == "" {
		return nil, fmt.Errorf("%w: missing TransactionId", ErrMalformedPayload)
	}

	ev := &PaymentEvent{
		Provider:    payment.GatewayOzow,
		EventType:   "notification",
		GatewayTxID: txID,
		Reference:   fields.Get("TransactionReference"),
		Status:      mapStatus(ozowStatuses, fields.Get("Status")),
		Metadata:    map[string]string{},
		RawPayload:  payload,
	}
	for opt, key := range map[string]string{
		"Optional1": MetaPayerID,
		"Optional2": MetaRecipientID,
		"Optional3": MetaRecipientEmail,
	} {
		if v := fields.Get(opt); v != "" {
			ev.Metadata[key] = v
		}
	}
	if msg := fields.Get("StatusMessage"); msg != "" {
		ev.Metadata["status_message"] = msg
	}

	if raw := fields.Get("Amount"); raw != "" {
		code := money.Code(fields.Get("CurrencyCode"))
		if code == "" {
			code = money.ZAR
		}
		amount, err := money.ParseMajor(raw, code)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		ev.Amount = &amount
	}
	return ev, nil
}

var _ Gateway = (*Ozow)(nil)
