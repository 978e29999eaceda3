package fines

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"campusdesk_go/models"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/pkg/errors"
)

var ErrCheckoutDisabled = errors.New("online payment is not configured")

// CheckoutSession is what the browser needs to open the payment page.
type CheckoutSession struct {
	OrderID     string  `json:"order_id"`
	Amount      float64 `json:"amount"`
	Token       string  `json:"token"`
	RedirectURL string  `json:"redirect_url"`
}

// Checkout starts an online payment for an amount.
type Checkout interface {
	Create(ctx context.Context, orderID string, amount int64, fine *models.Fine) (token, redirectURL string, err error)
}

type snapClient interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
}

// MidtransCheckout creates snap transactions.
type MidtransCheckout struct {
	client    snapClient
	serverKey string
}

func NewMidtransCheckout(serverKey string, production bool) *MidtransCheckout {
	var c snap.Client
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}
	c.New(serverKey, env)
	return &MidtransCheckout{client: &c, serverKey: serverKey}
}

func (m *MidtransCheckout) Create(_ context.Context, orderID string, amount int64, fine *models.Fine) (string, string, error) {
	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: amount,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: fine.Enrollment,
		},
		Items: &[]midtrans.ItemDetails{{
			ID:       orderID,
			Price:    amount,
			Qty:      1,
			Name:     truncate("Fine: "+fine.Reason, 50),
			Category: "FINE",
		}},
		CustomField1: fine.Enrollment,
	}
	resp, merr := m.client.CreateTransaction(req)
	if merr != nil {
		return "", "", errors.Wrap(merr, "midtrans create transaction")
	}
	return resp.Token, resp.RedirectURL, nil
}

// ServerKey is used to verify notification signatures.
func (m *MidtransCheckout) ServerKey() string {
	return m.serverKey
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// StartCheckout opens an online payment for the outstanding amount of a fine.
// The order id is FINE-{id}-{unix}.
func (s *Service) StartCheckout(ctx context.Context, fineID uint) (*CheckoutSession, error) {
	if s.checkout == nil {
		return nil, ErrCheckoutDisabled
	}
	fine, err := s.store.Get(ctx, fineID)
	if err != nil {
		return nil, err
	}
	left := Outstanding(fine)
	if left <= 0 || fine.Status == models.FineStatusPaid {
		return nil, ErrAlreadyPaid
	}

	orderID := OrderID(fine.ID, time.Now())
	token, redirect, err := s.checkout.Create(ctx, orderID, int64(math.Ceil(left)), fine)
	if err != nil {
		return nil, err
	}
	return &CheckoutSession{OrderID: orderID, Amount: left, Token: token, RedirectURL: redirect}, nil
}

// OrderID builds the gateway order id of a fine.
func OrderID(fineID uint, at time.Time) string {
	return fmt.Sprintf("FINE-%d-%d", fineID, at.Unix())
}

// ParseOrderID extracts the fine id from FINE-{id}-{unix}.
func ParseOrderID(orderID string) (uint, bool) {
	parts := strings.Split(orderID, "-")
	if len(parts) != 3 || parts[0] != "FINE" {
		return 0, false
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// MidtransSignature is sha512(order_id + status_code + gross_amount + server_key) in hex.
func MidtransSignature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// VerifyMidtransSignature compares in constant time.
func VerifyMidtransSignature(orderID, statusCode, grossAmount, serverKey, signature string) bool {
	if signature == "" || serverKey == "" {
		return false
	}
	want := MidtransSignature(orderID, statusCode, grossAmount, serverKey)
	return subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToLower(signature))) == 1
}
