package gateway

import (
	"crypto/md5" //nolint:gosec
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/amirasaad/remittance/pkg/domain/payment"
	"github.com/amirasaad/remittance/pkg/money"
)

// PayFastSignatureField holds the signature in PayFast ITN posts and forms.
const PayFastSignatureField = "signature"

var payfastStatuses = map[string]payment.Status{
	"COMPLETE":  payment.StatusCompleted,
	"FAILED":    payment.StatusFailed,
	"CANCELLED": payment.StatusCancelled,
	"PENDING":   payment.StatusProcessing,
}

// PayFast handles Instant Transaction Notifications. m_payment_id is our
// reference and pf_payment_id the gateway transaction id.
type PayFast struct {
	passphrase string
}

func NewPayFast(passphrase string) *PayFast {
	return &PayFast{passphrase: passphrase}
}

func (p *PayFast) Provider() payment.Gateway { return payment.GatewayPayFast }

// SignPayFast returns the lowercase hex MD5 of the non-empty fields as a
// key-sorted URL-encoded query string, with the passphrase appended last.
func SignPayFast(fields url.Values, passphrase string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k != PayFastSignatureField && strings.TrimSpace(fields.Get(k)) != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		parts = append(parts, k+"="+url.QueryEscape(strings.TrimSpace(fields.Get(k))))
	}
	if passphrase != "" {
		parts = append(parts, "passphrase="+url.QueryEscape(passphrase))
	}
	sum := md5.Sum([]byte(strings.Join(parts, "&"))) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

func (p *PayFast) Verify(payload []byte, _ http.Header) error {
	fields, err := url.ParseQuery(string(payload))
	if err != nil {
		return signatureError("payfast: unreadable form: %v", err)
	}
	got := strings.ToLower(fields.Get(PayFastSignatureField))
	if got == "" {
		return signatureError("payfast: missing %s", PayFastSignatureField)
	}
	want := SignPayFast(fields, p.passphrase)
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return signatureError("payfast: signature mismatch")
	}
	return nil
}

func (p *PayFast) Normalize(payload []byte) (*PaymentEvent, error) {
	fields, err := url.ParseQuery(string(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	txID := fields.Get("pf_payment_id")
	if txID == "" {
		return nil, fmt.Errorf("%w: missing pf_payment_id", ErrMalformedPayload)
	}

	ev := &PaymentEvent{
		Provider:    payment.GatewayPayFast,
		EventType:   "itn",
		GatewayTxID: txID,
		Reference:   fields.Get("m_payment_id"),
		Status:      mapStatus(payfastStatuses, fields.Get("payment_status")),
		Metadata:    map[string]string{},
		RawPayload:  payload,
	}
	for custom, key := range map[string]string{
		"custom_str1": MetaPayerID,
		"custom_str2": MetaRecipientID,
		"custom_str3": MetaRecipientEmail,
		"item_name":   MetaDescription,
	} {
		if v := fields.Get(custom); v != "" {
			ev.Metadata[key] = v
		}
	}

	// PayFast settles in rand only.
	if raw := fields.Get("amount_gross"); raw != "" {
		amount, err := money.ParseMajor(raw, money.ZAR)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		ev.Amount = &amount
	}
	return ev, nil
}

var _ Gateway = (*PayFast)(nil)
