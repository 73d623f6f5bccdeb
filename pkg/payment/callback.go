package payment

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

type stkCallbackEnvelope struct {
	Body struct {
		StkCallback *struct {
			MerchantRequestID string          `json:"MerchantRequestID"`
			CheckoutRequestID string          `json:"CheckoutRequestID"`
			ResultCode        json.RawMessage `json:"ResultCode"`
			ResultDesc        string          `json:"ResultDesc"`
			CallbackMetadata  *struct {
				Item []struct {
					Name  string          `json:"Name"`
					Value json.RawMessage `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ParseCallback extracts the STK push outcome from a Daraja webhook body.
// It returns nil when the body is not a recognisable STK callback.
func ParseCallback(raw []byte) *CallbackResult {
	var env stkCallbackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil
	}
	cb := env.Body.StkCallback
	if cb == nil || cb.CheckoutRequestID == "" {
		return nil
	}
	code, ok := parseResultCode(cb.ResultCode)
	if !ok {
		return nil
	}

	res := &CallbackResult{
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        code,
		ResultDesc:        cb.ResultDesc,
	}
	if cb.CallbackMetadata == nil {
		return res
	}

	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			if f, err := strconv.ParseFloat(rawScalar(item.Value), 64); err == nil {
				amount := int64(math.Round(f))
				res.Amount = &amount
			}
		case "MpesaReceiptNumber":
			res.ReceiptNumber = nonEmpty(rawScalar(item.Value))
		case "TransactionDate":
			res.TransactionDate = nonEmpty(rawScalar(item.Value))
		case "PhoneNumber":
			res.PhoneNumber = nonEmpty(rawScalar(item.Value))
		}
	}
	return res
}

// parseResultCode accepts a JSON number or a numeric string.
func parseResultCode(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	code, err := strconv.Atoi(rawScalar(raw))
	if err != nil {
		return 0, false
	}
	return code, true
}

// rawScalar renders a JSON string or number without quotes.
func rawScalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		return n.String()
	}
	return ""
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
