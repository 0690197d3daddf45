package saferpay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBase = "https://test.saferpay.com/api"

func newTestClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()
	mock := httpmock.NewMockTransport()
	client := New(paymentdomain.GatewayConfig{
		CustomerID:  "245294",
		TerminalID:  "17952187",
		APIUsername: "API_245294_08700063",
		APIPassword: "secret",
		TestMode:    true,
		HTTPClient:  &http.Client{Transport: mock},
	})
	return client, mock
}

func decodeBody(t *testing.T, req *http.Request) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestInitializeSessionSendsHeadersAndBody(t *testing.T) {
	client, mock := newTestClient(t)

	var captured map[string]any
	mock.RegisterResponder(http.MethodPost, testBase+pathInitialize, func(req *http.Request) (*http.Response, error) {
		user, pass, ok := req.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "API_245294_08700063", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "application/json; charset=utf-8", req.Header.Get("Content-Type"))
		assert.Equal(t, "application/json", req.Header.Get("Accept"))
		captured = decodeBody(t, req)
		return httpmock.NewJsonResponse(200, map[string]any{
			"Token":       "tok_234",
			"Expiration":  "2026-10-16T12:00:00Z",
			"RedirectUrl": "https://test.saferpay.com/vt2/api/PaymentPage/1",
		})
	})

	session, err := client.InitializeSession(context.Background(), paymentdomain.InitializeRequest{
		AmountMinor:    12950,
		Currency:       "eur",
		OrderReference: "R123456789",
		Description:    "Order R123456789",
		ReturnURL:      "https://shop.test/saferpay/success?order_number=R123456789",
		FailURL:        "https://shop.test/saferpay/fail?order_number=R123456789",
		NotifyURL:      "https://shop.test/saferpay/notify?order_number=R123456789",
	})
	require.NoError(t, err)
	assert.Equal(t, "tok_234", session.Token)
	assert.Equal(t, "https://test.saferpay.com/vt2/api/PaymentPage/1", session.RedirectURL)

	header := captured["RequestHeader"].(map[string]any)
	assert.Equal(t, "1.20", header["SpecVersion"])
	assert.Equal(t, "245294", header["CustomerId"])
	assert.Equal(t, float64(0), header["RetryIndicator"])
	assert.NotEmpty(t, header["RequestId"])
	assert.Equal(t, "17952187", captured["TerminalId"])

	payment := captured["Payment"].(map[string]any)
	amount := payment["Amount"].(map[string]any)
	assert.Equal(t, "12950", amount["Value"])
	assert.Equal(t, "EUR", amount["CurrencyCode"])
	assert.Equal(t, "R123456789", payment["OrderId"])

	urls := captured["ReturnUrls"].(map[string]any)
	assert.Equal(t, urls["Fail"], urls["Abort"])
	assert.Equal(t, "https://shop.test/saferpay/notify?order_number=R123456789",
		captured["Notification"].(map[string]any)["NotifyUrl"])
}

func TestRequestIDIsFreshPerCall(t *testing.T) {
	client, mock := newTestClient(t)

	seen := map[string]struct{}{}
	mock.RegisterResponder(http.MethodPost, testBase+pathCapture, func(req *http.Request) (*http.Response, error) {
		body := decodeBody(t, req)
		id := body["RequestHeader"].(map[string]any)["RequestId"].(string)
		seen[id] = struct{}{}
		return httpmock.NewJsonResponse(200, map[string]any{"CaptureId": "cap_1", "Status": "CAPTURED"})
	})

	for i := 0; i < 3; i++ {
		_, err := client.CaptureTransaction(context.Background(), "txn_1")
		require.NoError(t, err)
	}
	assert.Len(t, seen, 3)
	assert.Equal(t, 3, mock.GetTotalCallCount())
}

func TestAssertTransactionParsesPaymentMeans(t *testing.T) {
	client, mock := newTestClient(t)
	mock.RegisterResponder(http.MethodPost, testBase+pathAssert, httpmock.NewStringResponder(200, `{
		"Transaction": {"Type": "PAYMENT", "Status": "AUTHORIZED", "Id": "txn_9", "Amount": {"Value": "12950", "CurrencyCode": "EUR"}},
		"PaymentMeans": {
			"Brand": {"PaymentMethod": "VISA", "Name": "VISA Saferpay Test"},
			"DisplayText": "xxxx xxxx xxxx 0007",
			"Card": {"MaskedNumber": "xxxxxxxxxxxx0007", "ExpYear": 2027, "ExpMonth": 3, "HolderName": "Kai Lenny"}
		}
	}`))

	txn, err := client.AssertTransaction(context.Background(), "tok_234")
	require.NoError(t, err)
	assert.Equal(t, "txn_9", txn.ID)
	assert.Equal(t, paymentdomain.TransactionStatusAuthorized, txn.Status)
	assert.Equal(t, int64(12950), txn.AmountMinor)
	require.NotNil(t, txn.PaymentMeans)
	assert.Equal(t, "VISA", txn.PaymentMeans.PaymentMethod)
	require.NotNil(t, txn.PaymentMeans.Card)
	assert.Equal(t, 3, txn.PaymentMeans.Card.ExpMonth)

	_, err = client.AssertTransaction(context.Background(), " ")
	assert.ErrorIs(t, err, paymentdomain.ErrMissingToken)
}

func TestCaptureUsesCaptureIDAsReference(t *testing.T) {
	client, mock := newTestClient(t)
	mock.RegisterResponder(http.MethodPost, testBase+pathCapture, httpmock.NewStringResponder(200, `{"CaptureId":"cap_77","Status":"CAPTURED"}`))

	result, err := client.CaptureTransaction(context.Background(), "txn_9")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "cap_77", result.AuthorizationReference)
	assert.Equal(t, "CAPTURED", result.RawDetail["Status"])
}

func TestRefundDefaultsCurrencyAndUsesRefundTransaction(t *testing.T) {
	client, mock := newTestClient(t)

	var captured map[string]any
	mock.RegisterResponder(http.MethodPost, testBase+pathRefund, func(req *http.Request) (*http.Response, error) {
		captured = decodeBody(t, req)
		return httpmock.NewStringResponse(200, `{"Transaction":{"Id":"ref_5","Status":"AUTHORIZED"}}`), nil
	})

	result, err := client.Refund(context.Background(), "txn_9", 500, "")
	require.NoError(t, err)
	assert.Equal(t, "ref_5", result.AuthorizationReference)

	amount := captured["Refund"].(map[string]any)["Amount"].(map[string]any)
	assert.Equal(t, "500", amount["Value"])
	assert.Equal(t, "EUR", amount["CurrencyCode"])
	assert.Equal(t, "txn_9", captured["CaptureReference"].(map[string]any)["TransactionId"])
}

func TestCancelReturnsTransactionReference(t *testing.T) {
	client, mock := newTestClient(t)
	mock.RegisterResponder(http.MethodPost, testBase+pathCancel, httpmock.NewStringResponder(200, `{"TransactionId":"txn_9"}`))

	result, err := client.Cancel(context.Background(), "txn_9")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "txn_9", result.AuthorizationReference)
}

func TestProtocolErrorMapping(t *testing.T) {
	client, mock := newTestClient(t)
	mock.RegisterResponder(http.MethodPost, testBase+pathCapture,
		httpmock.NewStringResponder(402, `{"ErrorName":"TRANSACTION_DECLINED","ErrorMessage":"Transaction declined by acquirer"}`))
	mock.RegisterResponder(http.MethodPost, testBase+pathCancel,
		httpmock.NewStringResponder(500, `<html>gateway down</html>`))

	result, err := client.CaptureTransaction(context.Background(), "txn_9")
	var perr *paymentdomain.GatewayProtocolError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "TRANSACTION_DECLINED", perr.Code)
	assert.Equal(t, "Transaction declined by acquirer", perr.Message)
	assert.Equal(t, 402, perr.HTTPStatus)
	assert.False(t, result.Success)
	assert.Equal(t, "Transaction declined by acquirer", result.Message)

	_, err = client.Cancel(context.Background(), "txn_9")
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "UNKNOWN_ERROR", perr.Code)
	assert.Equal(t, "Unknown error", perr.Message)
}

func TestMalformedSuccessBodyIsProtocolError(t *testing.T) {
	client, mock := newTestClient(t)
	mock.RegisterResponder(http.MethodPost, testBase+pathAssert, httpmock.NewStringResponder(200, `not json`))

	_, err := client.AssertTransaction(context.Background(), "tok_1")
	var perr *paymentdomain.GatewayProtocolError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "INVALID_RESPONSE", perr.Code)
}

func TestInitializeSessionRequiresTokenAndRedirect(t *testing.T) {
	cases := []struct {
		name string
		body map[string]any
	}{
		{name: "empty body", body: map[string]any{}},
		{name: "missing redirect", body: map[string]any{"Token": "tok_1"}},
		{name: "missing token", body: map[string]any{"RedirectUrl": "https://test.saferpay.com/vt2/api/PaymentPage/1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, mock := newTestClient(t)
			mock.RegisterResponder(http.MethodPost, testBase+pathInitialize, httpmock.NewJsonResponderOrPanic(200, tc.body))

			session, err := client.InitializeSession(context.Background(), paymentdomain.InitializeRequest{
				AmountMinor:    1000,
				Currency:       "CHF",
				OrderReference: "R1001",
			})
			require.Nil(t, session)
			var perr *paymentdomain.GatewayProtocolError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, "INVALID_RESPONSE", perr.Code)
		})
	}
}

func TestTransportErrorWrapsCause(t *testing.T) {
	client, mock := newTestClient(t)
	cause := errors.New("connection reset by peer")
	mock.RegisterResponder(http.MethodPost, testBase+pathAssert, httpmock.NewErrorResponder(cause))

	_, err := client.AssertTransaction(context.Background(), "tok_1")
	var terr *paymentdomain.GatewayTransportError
	require.True(t, errors.As(err, &terr))
	assert.ErrorIs(t, err, cause)
}

func TestBaseURLFollowsTestMode(t *testing.T) {
	assert.Equal(t, TestBaseURL, New(paymentdomain.GatewayConfig{TestMode: true}).baseURL)
	assert.Equal(t, ProductionBaseURL, New(paymentdomain.GatewayConfig{TestMode: false}).baseURL)

	_, err := NewFactory().NewGateway(paymentdomain.GatewayConfig{})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)
}
