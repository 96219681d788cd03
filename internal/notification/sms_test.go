package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mfadomain "identity-core/internal/mfa/domain"
)

func smsMsg() OneTimeCode {
	return OneTimeCode{PrincipalID: "alice", ChallengeID: "c1", Factor: mfadomain.FactorSMSOTP, Destination: "1234567890", Code: "123456"}
}

func TestNewSMSGateway_Defaults(t *testing.T) {
	g := NewSMSGateway("api-key", "", "", 0)
	assert.Equal(t, defaultSMSBaseURL, g.BaseURL)
	require.NotNil(t, g.HTTPClient)
	assert.Equal(t, defaultSMSTimeout, g.HTTPClient.Timeout)
	assert.Equal(t, gobreaker.StateClosed, g.State())
}

func TestSMSGateway_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "test-api-key", r.Header.Get("Authorization"))
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "otp", body["route"])
		assert.Equal(t, "1234567890", body["numbers"])
		assert.Equal(t, "123456", body["variables"])
		assert.Equal(t, "BANK", body["sender_id"])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := NewSMSGateway("test-api-key", srv.URL, "BANK", 100)
	require.NoError(t, g.Send(context.Background(), smsMsg()))
}

func TestSMSGateway_NotConfigured(t *testing.T) {
	g := NewSMSGateway("", "http://127.0.0.1:1", "", 0)
	assert.ErrorIs(t, g.Send(context.Background(), smsMsg()), ErrSMSNotConfigured)
}

func TestSMSGateway_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid number"}`))
	}))
	defer srv.Close()

	err := NewSMSGateway("k", srv.URL, "", 0).Send(context.Background(), smsMsg())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=400")
	assert.Contains(t, err.Error(), "invalid number")
}

func TestSMSGateway_BreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := NewSMSGateway("k", srv.URL, "", 0)
	for i := 0; i < 5; i++ {
		require.Error(t, g.Send(context.Background(), smsMsg()))
	}
	assert.Equal(t, gobreaker.StateOpen, g.State())
	assert.ErrorIs(t, g.Send(context.Background(), smsMsg()), gobreaker.ErrOpenState)
	assert.Equal(t, int32(5), hits.Load())
}

func TestSMSGateway_CancelledWhileThrottled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := NewSMSGateway("k", srv.URL, "", 0.001)
	require.NoError(t, g.Send(context.Background(), smsMsg()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, g.Send(ctx, smsMsg()))
}
