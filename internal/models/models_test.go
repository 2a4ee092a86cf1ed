package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingAction_JSON(t *testing.T) {
	created := time.UnixMilli(1_700_000_000_123)
	price := 9.5

	t.Run("TypedPayload", func(t *testing.T) {
		action := PendingAction{
			ID:         "abc-1",
			Operation:  OperationCreate,
			Entity:     EntityProduct,
			Endpoint:   "/api/inventory/products",
			Payload:    ProductPayload{SKU: Ptr("X1"), Name: Ptr("Widget"), UnitPrice: &price},
			CreatedAt:  created,
			RetryCount: 2,
		}

		data, err := json.Marshal(action)
		require.NoError(t, err)

		var wire map[string]any
		require.NoError(t, json.Unmarshal(data, &wire))
		assert.Equal(t, "CREATE", wire["operation"])
		assert.Equal(t, float64(1_700_000_000_123), wire["created_at"])
		assert.Equal(t, map[string]any{"sku": "X1", "name": "Widget", "unit_price": 9.5}, wire["payload"])
		assert.NotContains(t, wire, "next_attempt_at")

		var got PendingAction
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, action.ID, got.ID)
		assert.Equal(t, action.Payload, got.Payload)
		assert.True(t, got.CreatedAt.Equal(created))
		assert.Equal(t, 2, got.RetryCount)
	})

	t.Run("UnknownEntityKeepsFields", func(t *testing.T) {
		raw := `{"id":"x","operation":"UPDATE","entity":"warehouse","endpoint":"/w/1","payload":{"code":"W1","capacity":10},"created_at":1,"retry_count":0}`

		var got PendingAction
		require.NoError(t, json.Unmarshal([]byte(raw), &got))
		payload, ok := got.Payload.(RawPayload)
		require.True(t, ok)
		assert.Equal(t, EntityKind("warehouse"), payload.Entity())
		assert.Equal(t, "W1", payload.Fields["code"])

		data, err := json.Marshal(got)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"payload":{"capacity":10,"code":"W1"}`)
	})

	t.Run("DeleteWithoutPayload", func(t *testing.T) {
		action := PendingAction{ID: "d", Operation: OperationDelete, Entity: EntityOrder, Endpoint: "/orders/7", CreatedAt: created}
		data, err := json.Marshal(action)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "payload")

		var got PendingAction
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Nil(t, got.Payload)
	})

	t.Run("PayloadTypeMismatch", func(t *testing.T) {
		raw := `{"id":"x","operation":"CREATE","entity":"order","endpoint":"/o","payload":{"lines":"nope"},"created_at":1}`
		var got PendingAction
		assert.Error(t, json.Unmarshal([]byte(raw), &got))
	})
}

func TestDecodePayload(t *testing.T) {
	t.Run("UnknownFieldRejected", func(t *testing.T) {
		_, err := DecodePayload(EntityProduct, []byte(`{"sku":"X1","name":"Widget","barcode":"7790001"}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "barcode")

		_, err = DecodePayload(EntityOrder, []byte(`{"lines":[{"product_id":"p1","quantity":1,"unit_price":2,"discount":5}]}`))
		assert.Error(t, err)
	})

	t.Run("TrailingDataRejected", func(t *testing.T) {
		_, err := DecodePayload(EntityCustomer, []byte(`{"name":"ACME"} {"name":"other"}`))
		assert.Error(t, err)
	})

	t.Run("ClearedFieldSurvivesRoundTrip", func(t *testing.T) {
		p, err := DecodePayload(EntityProduct, []byte(`{"name":"Widget","description":""}`))
		require.NoError(t, err)
		assert.Equal(t, ProductPayload{Name: Ptr("Widget"), Description: Ptr("")}, p)

		action := PendingAction{ID: "u1", Operation: OperationUpdate, Entity: EntityProduct, Endpoint: "/inventory/products/5", Payload: p, CreatedAt: time.UnixMilli(1)}
		data, err := json.Marshal(action)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"payload":{"name":"Widget","description":""}`)

		var got PendingAction
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, p, got.Payload)

		body, err := json.Marshal(got.Payload)
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"Widget","description":""}`, string(body))
	})

	t.Run("EmptyOrderLinesKept", func(t *testing.T) {
		p, err := DecodePayload(EntityOrder, []byte(`{"lines":[]}`))
		require.NoError(t, err)
		body, err := json.Marshal(p)
		require.NoError(t, err)
		assert.JSONEq(t, `{"lines":[]}`, string(body))
	})
}

func TestNewActionID(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id := NewActionID(now)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
		assert.True(t, strings.Contains(id, "-"))
	}
}

func TestParseOperation(t *testing.T) {
	op, err := ParseOperation(" patch ")
	assert.Error(t, err)
	assert.Empty(t, op)

	op, err = ParseOperation("update")
	require.NoError(t, err)
	assert.Equal(t, OperationUpdate, op)
}
