package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/metinatakli/hostel-booking/internal/domain"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type MobileMoneyConfig struct {
	BaseUrl     string
	ApiKey      string
	CallbackUrl string
	Timeout     time.Duration
}

// MobileMoneyGateway talks to a mobile money aggregator that pushes a payment
// prompt to the customer's phone and reports the collection status.
type MobileMoneyGateway struct {
	cfg    MobileMoneyConfig
	client *http.Client
}

func NewMobileMoneyGateway(cfg MobileMoneyConfig) *MobileMoneyGateway {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &MobileMoneyGateway{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type collectionRequest struct {
	TransactionId string          `json:"transactionId"`
	Msisdn        string          `json:"msisdn"`
	Network       string          `json:"network,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Description   string          `json:"description"`
	CallbackUrl   string          `json:"callbackUrl,omitempty"`
	CallbackToken string          `json:"callbackToken"`
}

type collectionResponse struct {
	Reference  string           `json:"reference"`
	Status     string           `json:"status"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	ReceiptUrl string           `json:"receiptUrl,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

func (g *MobileMoneyGateway) Initiate(
	ctx context.Context,
	payment *domain.Payment,
	booking *domain.Booking) (*domain.GatewayCheckout, error) {

	if payment.PhoneNumber == nil {
		return nil, fmt.Errorf("payment %s has no phone number", payment.TransactionID)
	}

	body := collectionRequest{
		TransactionId: payment.TransactionID,
		Msisdn:        *payment.PhoneNumber,
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		Description:   fmt.Sprintf("%s - %s", booking.HostelName, booking.RoomLabel),
		CallbackUrl:   g.cfg.CallbackUrl,
		CallbackToken: payment.VerificationToken,
	}

	if payment.PhoneGateway != nil {
		body.Network = *payment.PhoneGateway
	}

	var resp collectionResponse

	err := g.do(ctx, http.MethodPost, "/collections", body, &resp)
	if err != nil {
		return nil, err
	}

	return &domain.GatewayCheckout{Reference: resp.Reference}, nil
}

func (g *MobileMoneyGateway) Verify(ctx context.Context, transactionID string) (*domain.VerificationResult, error) {
	var resp collectionResponse

	err := g.do(ctx, http.MethodGet, "/collections/"+url.PathEscape(transactionID), nil, &resp)
	if err != nil {
		return nil, err
	}

	return collectionResult(resp), nil
}

func collectionResult(resp collectionResponse) *domain.VerificationResult {
	result := &domain.VerificationResult{Amount: resp.Amount}

	if resp.ReceiptUrl != "" {
		result.ReceiptUrl = &resp.ReceiptUrl
	}

	if resp.Reason != "" {
		result.GatewayResponse = &resp.Reason
	}

	switch strings.ToUpper(resp.Status) {
	case "SUCCESSFUL", "SUCCESS", "COMPLETED":
		result.Status = domain.VerificationStatusCompleted
	case "FAILED", "REJECTED", "EXPIRED", "CANCELLED":
		result.Status = domain.VerificationStatusFailed
	default:
		result.Status = domain.VerificationStatusPending
	}

	return result
}

func (g *MobileMoneyGateway) CheckAvailability(ctx context.Context) domain.Availability {
	err := g.do(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return domain.Availability{Available: false, Message: "Mobile money payments are temporarily unavailable"}
	}

	return domain.Availability{Available: true, Message: "Mobile money payments are available"}
}

func (g *MobileMoneyGateway) do(ctx context.Context, method, path string, in, out any) error {
	var reqBody io.Reader

	if in != nil {
		js, err := json.Marshal(in)
		if err != nil {
			return err
		}

		reqBody = bytes.NewReader(js)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(g.cfg.BaseUrl, "/")+path, reqBody)
	if err != nil {
		return err
	}

	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.cfg.ApiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.ApiKey)
	}

	res, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", domain.ErrGatewayUnavailable, method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusMultipleChoices {
		// keep the connection reusable
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))

		return fmt.Errorf("%w: %s %s: unexpected status %d", domain.ErrGatewayUnavailable, method, path, res.StatusCode)
	}

	if out == nil {
		return nil
	}

	err = json.NewDecoder(res.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("%w: decode %s response: %w", domain.ErrGatewayUnavailable, path, err)
	}

	return nil
}
