// Package gateway abstracts the online payment gateway's redirect+webhook
// protocol. Offline (bank transfer) payments never touch this package; they
// settle through admin verification instead.
package gateway

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/pkg/errors"

	"example.com/eventreg/config"
	"example.com/eventreg/internal/currency"
	"example.com/eventreg/internal/models"
)

// Order is a created gateway order the school is redirected to.
type Order struct {
	OrderID     string
	Token       string
	RedirectURL string
}

// Notification is a parsed gateway webhook payload.
type Notification struct {
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"transaction_status"`
	StatusCode    string `json:"status_code"`
	GrossAmount   string `json:"gross_amount"`
	SignatureKey  string `json:"signature_key"`
	FraudStatus   string `json:"fraud_status"`
	Raw           []byte `json:"-"`
}

// Adapter is the online gateway contract.
type Adapter interface {
	// CreateOrder registers a payment attempt with the gateway and returns
	// the redirect the school completes payment through.
	CreateOrder(ctx context.Context, payment *models.Payment, school *models.School, event *models.Event) (*Order, error)
	// ParseNotification decodes a raw webhook body.
	ParseNotification(payload []byte) (*Notification, error)
	// VerifySignature checks the notification's signature. Must be called
	// before any state transition.
	VerifySignature(n *Notification) bool
	// MapStatus translates a gateway transaction status into the payment
	// state machine's vocabulary.
	MapStatus(n *Notification) models.PaymentStatus
}

// MidtransAdapter implements Adapter against the Midtrans Snap API.
type MidtransAdapter struct {
	client    snap.Client
	serverKey string
}

// NewMidtransAdapter creates the gateway adapter from configuration.
func NewMidtransAdapter(cfg config.GatewayConfig) *MidtransAdapter {
	env := midtrans.Sandbox
	if cfg.Production {
		env = midtrans.Production
	}

	var client snap.Client
	client.New(cfg.ServerKey, env)

	return &MidtransAdapter{
		client:    client,
		serverKey: cfg.ServerKey,
	}
}

// CreateOrder registers the payment with the gateway.
func (a *MidtransAdapter) CreateOrder(ctx context.Context, payment *models.Payment, school *models.School, event *models.Event) (*Order, error) {
	if payment.GatewayOrderID == nil || *payment.GatewayOrderID == "" {
		return nil, errors.New("payment has no gateway order ID")
	}

	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  *payment.GatewayOrderID,
			GrossAmt: currency.ToMajorUnit(payment.Amount),
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: school.Name,
			Email: school.Email,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    event.ID.String(),
				Name:  fmt.Sprintf("Registration: %s", event.Name),
				Price: currency.ToMajorUnit(payment.Amount),
				Qty:   1,
			},
		},
	}

	resp, midErr := a.client.CreateTransaction(req)
	if midErr != nil {
		return nil, errors.Wrap(midErr, "gateway order creation failed")
	}

	return &Order{
		OrderID:     *payment.GatewayOrderID,
		Token:       resp.Token,
		RedirectURL: resp.RedirectURL,
	}, nil
}

// ParseNotification decodes a raw webhook body.
func (a *MidtransAdapter) ParseNotification(payload []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, errors.Wrap(err, "failed to decode gateway notification")
	}
	if n.OrderID == "" || n.Status == "" {
		return nil, errors.New("gateway notification missing order_id or transaction_status")
	}
	n.Raw = payload
	return &n, nil
}

// VerifySignature checks the SHA512 signature the gateway attaches to each
// notification: sha512(order_id + status_code + gross_amount + server_key).
func (a *MidtransAdapter) VerifySignature(n *Notification) bool {
	if n.SignatureKey == "" {
		return false
	}
	sum := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + a.serverKey))
	return hex.EncodeToString(sum[:]) == n.SignatureKey
}

// MapStatus translates the gateway's transaction status vocabulary.
func (a *MidtransAdapter) MapStatus(n *Notification) models.PaymentStatus {
	switch n.Status {
	case "capture":
		if n.FraudStatus == "challenge" {
			return models.PaymentProcessing
		}
		return models.PaymentCompleted
	case "settlement":
		return models.PaymentCompleted
	case "pending":
		return models.PaymentProcessing
	case "deny", "cancel", "expire", "failure":
		return models.PaymentFailed
	case "refund", "partial_refund":
		return models.PaymentRefunded
	default:
		return models.PaymentProcessing
	}
}
