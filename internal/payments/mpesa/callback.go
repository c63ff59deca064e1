package mpesa

import (
	"fmt"
	"strconv"

	"rental-service/internal/models"
)

// Callback is the body Daraja posts to CallBackURL
type Callback struct {
	Body struct {
		STKCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

// STKCallback is the result of one STK push
type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

// CallbackMetadata lists the details of a successful payment
type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

// MetadataItem values are numbers or strings depending on Name
type MetadataItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value,omitempty"`
}

// Status maps the result code to a transaction status
func (c *STKCallback) Status() string {
	return statusForResult(c.ResultCode)
}

func statusForResult(code int) string {
	switch code {
	case ResultSuccess:
		return models.TransactionStatusCompleted
	case ResultCancelled:
		return models.TransactionStatusCancelled
	default:
		return models.TransactionStatusFailed
	}
}

// Metadata returns the named metadata value as a string
func (c *STKCallback) Metadata(name string) string {
	if c.CallbackMetadata == nil {
		return ""
	}
	for _, item := range c.CallbackMetadata.Item {
		if item.Name != name {
			continue
		}
		switch v := item.Value.(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case nil:
			return ""
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}

// Amount is the paid amount in whole units. ok is false when the callback
// carries no parsable amount.
func (c *STKCallback) Amount() (amount float64, ok bool) {
	v := c.Metadata("Amount")
	if v == "" {
		return 0, false
	}
	amount, err := strconv.ParseFloat(v, 64)
	return amount, err == nil
}

// ReceiptNumber is the M-Pesa confirmation code of a successful payment
func (c *STKCallback) ReceiptNumber() string {
	return c.Metadata("MpesaReceiptNumber")
}

// Ack is the acknowledgement Daraja expects for every callback
type Ack struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// Accepted acknowledges a callback
var Accepted = Ack{ResultCode: 0, ResultDesc: "Accepted"}
