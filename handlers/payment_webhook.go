package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"

	"campusdesk_go/models"
	"campusdesk_go/services/fines"
	"campusdesk_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// PaymentApplier applies a confirmed payment to a fine.
type PaymentApplier interface {
	ApplyPayment(ctx context.Context, p fines.Payment) (*models.Fine, bool, error)
}

// PaymentWebhookHandler receives payment confirmations from the gateway and from Midtrans.
type PaymentWebhookHandler struct {
	fines             PaymentApplier
	secret            string
	midtransServerKey string
}

func NewPaymentWebhookHandler(applier PaymentApplier, secret, midtransServerKey string) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{fines: applier, secret: secret, midtransServerKey: midtransServerKey}
}

type paymentEvent struct {
	FineID        uint    `json:"fine_id"`
	TransactionID string  `json:"transaction_id"`
	Amount        float64 `json:"amount"`
	Status        string  `json:"status"`
}

var paidStatuses = map[string]bool{"success": true, "settlement": true, "capture": true, "paid": true}

// Sign returns the hex HMAC-SHA256 of body, the value expected in X-Signature.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares a hex signature to the HMAC of body in constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(Sign(secret, body))
	return hmac.Equal(got, want)
}

// Handle serves POST /api/payments/webhook.
func (h *PaymentWebhookHandler) Handle(c *fiber.Ctx) error {
	signature := c.Get("X-Signature")
	if signature == "" {
		return utils.Error(c, fiber.StatusBadRequest, "Missing signature")
	}
	if h.secret == "" || !VerifySignature(h.secret, c.Body(), signature) {
		return utils.Error(c, fiber.StatusUnauthorized, "Invalid signature")
	}

	var evt paymentEvent
	if err := json.Unmarshal(c.Body(), &evt); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if evt.FineID == 0 || evt.TransactionID == "" {
		return utils.Error(c, fiber.StatusBadRequest, "fine_id and transaction_id are required")
	}

	status := strings.ToLower(strings.TrimSpace(evt.Status))
	if !paidStatuses[status] {
		return c.JSON(fiber.Map{"success": true, "message": "Event ignored", "fine": nil})
	}

	raw := append([]byte(nil), c.Body()...)
	return h.apply(c, fines.Payment{
		FineID:        evt.FineID,
		TransactionID: evt.TransactionID,
		Amount:        evt.Amount,
		Provider:      fines.ProviderWebhook,
		Status:        status,
		Raw:           raw,
	})
}

type midtransNotification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
}

// HandleMidtrans serves POST /api/payments/midtrans.
func (h *PaymentWebhookHandler) HandleMidtrans(c *fiber.Ctx) error {
	if h.midtransServerKey == "" {
		return utils.Error(c, fiber.StatusServiceUnavailable, "Midtrans is not configured")
	}

	var n midtransNotification
	if err := json.Unmarshal(c.Body(), &n); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if n.SignatureKey == "" {
		return utils.Error(c, fiber.StatusBadRequest, "Missing signature")
	}
	if !fines.VerifyMidtransSignature(n.OrderID, n.StatusCode, n.GrossAmount, h.midtransServerKey, n.SignatureKey) {
		return utils.Error(c, fiber.StatusUnauthorized, "Invalid signature")
	}

	fineID, ok := fines.ParseOrderID(n.OrderID)
	if !ok {
		return utils.Error(c, fiber.StatusBadRequest, "Unknown order id")
	}

	status := strings.ToLower(n.TransactionStatus)
	settled := status == "settlement" || (status == "capture" && (n.FraudStatus == "" || n.FraudStatus == "accept"))
	if !settled {
		return c.JSON(fiber.Map{"success": true, "message": "Event ignored", "fine": nil})
	}

	amount, err := strconv.ParseFloat(n.GrossAmount, 64)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "Invalid gross_amount")
	}
	txID := n.TransactionID
	if txID == "" {
		txID = n.OrderID
	}

	raw := append([]byte(nil), c.Body()...)
	return h.apply(c, fines.Payment{
		FineID:        fineID,
		TransactionID: txID,
		Amount:        amount,
		Provider:      fines.ProviderMidtrans,
		Status:        status,
		Raw:           raw,
	})
}

func (h *PaymentWebhookHandler) apply(c *fiber.Ctx, p fines.Payment) error {
	fine, applied, err := h.fines.ApplyPayment(c.UserContext(), p)
	switch {
	case errors.Is(err, fines.ErrNotFound):
		return utils.Error(c, fiber.StatusNotFound, "Fine not found")
	case errors.Is(err, fines.ErrInvalidPayment):
		return utils.Error(c, fiber.StatusBadRequest, "Invalid payment")
	case err != nil:
		logrus.WithError(err).WithFields(logrus.Fields{
			"fine_id":        p.FineID,
			"transaction_id": p.TransactionID,
			"provider":       p.Provider,
		}).Error("failed to apply payment")
		return utils.Error(c, fiber.StatusInternalServerError, "Failed to apply payment")
	}

	msg := "Payment applied"
	if !applied {
		msg = "Payment already recorded"
	}
	return c.JSON(fiber.Map{"success": true, "message": msg, "fine": fine})
}
