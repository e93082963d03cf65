package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainstore/checkout/types"
)

func TestNewClientPicksEnvironmentFromKey(t *testing.T) {
	staging := NewClient(&Config{APIKey: "sk_staging_abc"})
	assert.False(t, staging.IsProduction())
	assert.Equal(t, DefaultStagingURL, staging.baseURL)

	prod := NewClient(&Config{APIKey: "sk_production_abc"})
	assert.True(t, prod.IsProduction())
	assert.Equal(t, DefaultProductionURL, prod.baseURL)

	override := NewClient(&Config{APIKey: "sk_production_abc", BaseURL: "http://localhost:9"})
	assert.Equal(t, "http://localhost:9", override.baseURL)
}

func TestCreateSendsExpectedBody(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		assert.Equal(t, "sk_staging_test", r.Header.Get("X-API-KEY"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"order":{"orderId":"ord_1","phase":"quote","quote":{"status":"valid"}}}`))
	}))
	defer srv.Close()

	client := NewClient(&Config{APIKey: "sk_staging_test", BaseURL: srv.URL})
	ord, err := client.Create(context.Background(), CreateOrderRequest{
		ProductLocator: "amazon:B01DFKC2SO",
		PaymentMethod:  types.ChainPolygonAmoy,
		Currency:       "usdc",
		PayerAddress:   "0xabc",
		RecipientEmail: "buyer@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "ord_1", ord.OrderID)

	lineItems := gotBody["lineItems"].([]interface{})
	require.Len(t, lineItems, 1)
	assert.Equal(t, "amazon:B01DFKC2SO", lineItems[0].(map[string]interface{})["productLocator"])

	payment := gotBody["payment"].(map[string]interface{})
	assert.Equal(t, "polygon-amoy", payment["method"])
	assert.Equal(t, "usdc", payment["currency"])
	assert.Equal(t, "0xabc", payment["payerAddress"])

	recipient := gotBody["recipient"].(map[string]interface{})
	assert.Equal(t, "buyer@example.com", recipient["email"])
}

func TestPatchShippingAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/orders/ord_1", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		addr := body["recipient"].(map[string]interface{})["physicalAddress"].(map[string]interface{})
		assert.Equal(t, "US", addr["country"])

		w.Write([]byte(`{"orderId":"ord_1","phase":"quote","quote":{"status":"valid"}}`))
	}))
	defer srv.Close()

	client := NewClient(&Config{APIKey: "sk_staging_test", BaseURL: srv.URL})
	ord, err := client.PatchShippingAddress(context.Background(), "ord_1", types.ShippingAddress{
		Name:       "Ada Lovelace",
		Line1:      "1 Analytical Way",
		City:       "London",
		State:      "LDN",
		PostalCode: "12345",
		Country:    "US",
	})
	require.NoError(t, err)
	assert.Equal(t, types.QuoteStatusValid, ord.Quote.Status)
}

func TestGetStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/orders/ord_9", r.URL.Path)
		w.Write([]byte(`{"orderId":"ord_9","phase":"payment","payment":{"status":"awaiting-payment"}}`))
	}))
	defer srv.Close()

	client := NewClient(&Config{APIKey: "sk_staging_test", BaseURL: srv.URL})
	ord, err := client.GetStatus(context.Background(), "ord_9")
	require.NoError(t, err)
	assert.Equal(t, types.PhasePayment, ord.Phase)
	assert.Equal(t, types.PaymentStatusAwaitingPayment, ord.Payment.Status)
}

func TestNon2xxMapsToRemoteRequestFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"message":"insufficient balance"}`))
	}))
	defer srv.Close()

	client := NewClient(&Config{APIKey: "sk_staging_test", BaseURL: srv.URL})
	_, err := client.GetStatus(context.Background(), "ord_1")
	require.Error(t, err)

	var ce *types.CheckoutError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, types.ErrCodeRemoteRequestFailed, ce.Code)
	assert.Equal(t, http.StatusPaymentRequired, ce.StatusCode)
	assert.Contains(t, ce.Body, "insufficient balance")
}

func TestTransportFailureMapsToRemoteUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	client := NewClient(&Config{APIKey: "sk_staging_test", BaseURL: srv.URL})
	_, err := client.GetStatus(context.Background(), "ord_1")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeRemoteUnreachable))
}

func TestParseOrderResponseNormalizesBothShapes(t *testing.T) {
	nested := []byte(`{"order":{"orderId":"ord_1","phase":"payment","quote":{"status":"valid","totalPrice":{"amount":"19.99","currency":"usdc"}},"payment":{"method":"base","currency":"usdc","status":"awaiting-payment","preparation":{"serializedTransaction":"0x02ef","chain":"base"}}}}`)
	flattened := []byte(`{"orderId":"ord_1","phase":"payment","quote":{"status":"valid","totalPrice":{"amount":"19.99","currency":"usdc"}},"payment":{"method":"base","currency":"usdc","status":"awaiting-payment","preparation":{"serializedTransaction":"0x02ef","chain":"base"}}}`)

	for name, body := range map[string][]byte{"nested": nested, "flattened": flattened} {
		ord, err := ParseOrderResponse(body)
		require.NoError(t, err, name)
		assert.Equal(t, "ord_1", ord.OrderID, name)
		assert.Equal(t, types.PhasePayment, ord.Phase, name)
		assert.Equal(t, "19.99", ord.Quote.TotalPrice.Amount.String(), name)
		require.NotNil(t, ord.Payment.Preparation, name)
		assert.Equal(t, "0x02ef", ord.Payment.Preparation.SerializedTransaction, name)
		assert.Equal(t, "base", ord.Payment.Preparation.Extra["chain"], name)
		assert.NotEmpty(t, ord.Raw, name)
	}
}

func TestParseOrderResponseTopLevelOrderID(t *testing.T) {
	// Creation responses sometimes keep orderId beside the nested order.
	body := []byte(`{"orderId":"ord_77","order":{"phase":"quote","quote":{"status":"requires-physical-address"}}}`)
	ord, err := ParseOrderResponse(body)
	require.NoError(t, err)
	assert.Equal(t, "ord_77", ord.OrderID)
	assert.Equal(t, types.QuoteStatusRequiresPhysicalAddress, ord.Quote.Status)
}

func TestParseOrderResponseMalformed(t *testing.T) {
	_, err := ParseOrderResponse([]byte(`not json`))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeRemoteRequestFailed))
}
