package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"warimas-checkout/internal/logger"
	"warimas-checkout/internal/money"

	"go.uber.org/zap"
)

const (
	xenditBaseURL = "https://api.xendit.co"
	apiVersion    = "2024-11-11"
)

type xenditGateway struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	autoCapture bool
}

type xenditAction struct {
	Type       string `json:"type"`
	Descriptor string `json:"descriptor"`
	Value      string `json:"value"`
}

type xenditPaymentRequest struct {
	PaymentRequestID string         `json:"payment_request_id"`
	ReferenceID      string         `json:"reference_id"`
	Status           string         `json:"status"`
	RequestAmount    float64        `json:"request_amount"`
	CaptureAmount    float64        `json:"captured_amount"`
	ChannelCode      string         `json:"channel_code"`
	Actions          []xenditAction `json:"actions"`
	FailureCode      string         `json:"failure_code"`
}

type xenditRefund struct {
	ID          string  `json:"id"`
	Status      string  `json:"status"`
	Amount      float64 `json:"amount"`
	FailureCode string  `json:"failure_code"`
}

// ----------------- Constructor -----------------

func NewXenditGateway(apiKey string, autoCapture bool) Gateway {
	if apiKey == "" {
		logger.L().Warn("Xendit API key is empty")
	}

	return &xenditGateway{
		apiKey:  apiKey,
		baseURL: xenditBaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		autoCapture: autoCapture,
	}
}

func (x *xenditGateway) ID() string        { return GatewayXendit }
func (x *xenditGateway) AutoCapture() bool { return x.autoCapture }

// ----------------- Authorize -----------------

func (x *xenditGateway) Authorize(ctx context.Context, data PaymentData) (*GatewayResponse, error) {
	channel, _ := data.Data["channel_code"].(string)
	if channel == "" {
		channel = data.Payment.Token
	}
	if !supportedChannel(channel) {
		return nil, &PaymentError{Message: fmt.Sprintf("unsupported Xendit channel %q", channel)}
	}

	referenceID := fmt.Sprintf("payment-%d", data.Payment.ID)
	if data.Payment.CheckoutToken != nil {
		referenceID = data.Payment.CheckoutToken.String()
	}

	captureMethod := "MANUAL"
	if x.autoCapture {
		captureMethod = "AUTOMATIC"
	}

	body := map[string]interface{}{
		"reference_id":   referenceID,
		"type":           "PAY",
		"currency":       data.Currency,
		"request_amount": x.amount(data),
		"capture_method": captureMethod,
		"channel_code":   channel,
		"channel_properties": map[string]interface{}{
			"success_return_url": data.Payment.ReturnURL,
			"failure_return_url": data.Payment.ReturnURL,
		},
	}
	if data.CustomerID != "" {
		body["customer_id"] = data.CustomerID
	}

	raw, err := x.do(ctx, http.MethodPost, "/v3/payment_requests", body, idempotencyKey(data.Payment, "authorize"))
	if err != nil {
		return nil, err
	}

	var res xenditPaymentRequest
	if err := json.Unmarshal(raw, &res); err != nil {
		logger.FromCtx(ctx).Error("Failed decoding Xendit response", zap.Error(err))
		return nil, err
	}
	return x.fromPaymentRequest(res, raw, data), nil
}

// ----------------- Confirm -----------------

func (x *xenditGateway) Confirm(ctx context.Context, data PaymentData) (*GatewayResponse, error) {
	raw, err := x.do(ctx, http.MethodGet, "/v3/payment_requests/"+data.Payment.PSPReference, nil, "")
	if err != nil {
		return nil, err
	}

	var res xenditPaymentRequest
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, err
	}
	return x.fromPaymentRequest(res, raw, data), nil
}

// ----------------- Capture -----------------

func (x *xenditGateway) Capture(ctx context.Context, data PaymentData) (*GatewayResponse, error) {
	raw, err := x.do(ctx, http.MethodPost,
		"/v3/payment_requests/"+data.Payment.PSPReference+"/captures",
		map[string]interface{}{"capture_amount": x.amount(data)},
		idempotencyKey(data.Payment, "capture"),
	)
	if err != nil {
		return nil, err
	}

	var res xenditPaymentRequest
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, err
	}
	return x.fromPaymentRequest(res, raw, data), nil
}

// ----------------- Void -----------------

func (x *xenditGateway) Void(ctx context.Context, data PaymentData) (*GatewayResponse, error) {
	raw, err := x.do(ctx, http.MethodPost, "/v3/payment_requests/"+data.Payment.PSPReference+"/cancel", nil, "")
	if err != nil {
		return nil, err
	}

	var res xenditPaymentRequest
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, err
	}

	return &GatewayResponse{
		IsSuccess:    res.Status == "CANCELED",
		Kind:         KindVoid,
		Amount:       data.Amount,
		Currency:     data.Currency,
		PSPReference: data.Payment.PSPReference,
		Error:        res.FailureCode,
		Raw:          raw,
	}, nil
}

// ----------------- Refund -----------------

func (x *xenditGateway) Refund(ctx context.Context, data PaymentData) (*GatewayResponse, error) {
	raw, err := x.do(ctx, http.MethodPost, "/refunds", map[string]interface{}{
		"payment_request_id": data.Payment.PSPReference,
		"amount":             x.amount(data),
		"currency":           data.Currency,
		"reason":             "CANCELLATION",
	}, idempotencyKey(data.Payment, "refund"))
	if err != nil {
		return nil, err
	}

	var res xenditRefund
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, err
	}

	ok := res.Status == "SUCCEEDED" || res.Status == "PENDING"
	resp := &GatewayResponse{
		IsSuccess:    ok,
		Kind:         KindRefund,
		Amount:       data.Amount,
		Currency:     data.Currency,
		PSPReference: data.Payment.PSPReference,
		Raw:          raw,
	}
	if !ok {
		resp.Error = res.FailureCode
	}
	return resp, nil
}

// ----------------- helpers -----------------

func (x *xenditGateway) amount(data PaymentData) json.Number {
	return json.Number(money.Quantize(data.Amount, data.Currency).String())
}

// do sends one API request. A non-empty key is sent as the Idempotency-key
// header so a repeated call returns the first result.
func (x *xenditGateway) do(ctx context.Context, method, path string, body interface{}, key string) ([]byte, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("gateway", GatewayXendit),
		zap.String("method", method),
		zap.String("path", path),
	)

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			log.Error("Failed to marshal request", zap.Error(err))
			return nil, err
		}
		reader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, x.baseURL+path, reader)
	if err != nil {
		log.Error("Failed creating request", zap.Error(err))
		return nil, err
	}

	req.SetBasicAuth(x.apiKey, "")
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("api-version", apiVersion)
	if key != "" {
		req.Header.Add("Idempotency-key", key)
	}

	resp, err := x.httpClient.Do(req)
	if err != nil {
		log.Error("Xendit request failed", zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("Failed to read response body", zap.Error(err))
		return nil, fmt.Errorf("failed to read xendit response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		log.Error("Xendit returned non-success status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", bodyBytes),
		)
		return nil, fmt.Errorf("xendit error: %s", string(bodyBytes))
	}

	return bodyBytes, nil
}

func (x *xenditGateway) fromPaymentRequest(res xenditPaymentRequest, raw []byte, data PaymentData) *GatewayResponse {
	resp := &GatewayResponse{
		Amount:       data.Amount,
		Currency:     data.Currency,
		PSPReference: res.PaymentRequestID,
		CustomerID:   data.CustomerID,
		Raw:          json.RawMessage(raw),
	}

	switch res.Status {
	case "REQUIRES_ACTION", "ACCEPTING_PAYMENTS":
		resp.IsSuccess = true
		resp.Kind = KindActionToConfirm
		resp.ActionRequired = true
		resp.ActionRequiredData = actionData(res, data)
	case "AUTHORIZED":
		resp.IsSuccess = true
		resp.Kind = KindAuth
	case "SUCCEEDED":
		resp.IsSuccess = true
		resp.Kind = KindCapture
	case "PENDING":
		resp.IsSuccess = true
		resp.Kind = KindPending
	default:
		resp.IsSuccess = false
		resp.Kind = KindAuth
		resp.Error = "payment failed"
		if res.FailureCode != "" {
			resp.Error = res.FailureCode
		}
	}
	return resp
}

// actionData extracts what the storefront shows the customer: a code to pay with
// or a URL to redirect to, plus localized steps.
func actionData(res xenditPaymentRequest, data PaymentData) map[string]any {
	var paymentCode, redirectURL string
	for _, action := range res.Actions {
		switch action.Descriptor {
		case "VIRTUAL_ACCOUNT_NUMBER", "PAYMENT_CODE", "QR_STRING":
			if paymentCode == "" {
				paymentCode = action.Value
			}
		case "WEB_URL", "DEEPLINK_URL":
			if redirectURL == "" {
				redirectURL = action.Value
			}
		}
	}

	out := map[string]any{
		"id":           res.PaymentRequestID,
		"channel_code": res.ChannelCode,
		"instructions": InjectVariables(GetInstructions(res.ChannelCode), InstructionVars{
			"payment_code": paymentCode,
			"amount":       data.Currency + " " + money.Quantize(data.Amount, data.Currency).String(),
		}),
	}
	if paymentCode != "" {
		out["payment_code"] = paymentCode
	}
	if redirectURL != "" {
		out["redirect_url"] = redirectURL
	}
	return out
}
