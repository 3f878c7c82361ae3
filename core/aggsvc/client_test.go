// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

package aggsvc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/threshnet/attestor/core"
	"github.com/threshnet/attestor/core/aggsvc"
)

func TestInitTask(t *testing.T) {
	ctx := context.Background()

	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/tasks/init", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	client := aggsvc.NewClient(srv.URL + "/") // Trailing slash is trimmed.
	require.Equal(t, srv.URL, client.Address())

	err := client.InitTask(ctx, 7, 42, []byte{0x01, 0x02}, 3, core.CountPlan(2))
	require.NoError(t, err)

	require.Equal(t, float64(7), gotBody["service_id"])
	require.Equal(t, float64(42), gotBody["call_id"])
	require.Equal(t, float64(3), gotBody["operator_count"])
	require.Equal(t, "0x0102", gotBody["output"])

	threshold, ok := gotBody["threshold"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "count_based", threshold["type"])
	require.Equal(t, float64(2), threshold["required_signers"])
}

func TestInitTaskStakeWeighted(t *testing.T) {
	ctx := context.Background()

	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	plan := core.StakePlan(6700, []core.OperatorStake{
		{OperatorIndex: 0, Stake: 5000},
		{OperatorIndex: 2, Stake: 3000},
	})

	err := aggsvc.NewClient(srv.URL).InitTask(ctx, 1, 1, []byte{0xff}, 3, plan)
	require.NoError(t, err)

	threshold, ok := gotBody["threshold"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "stake_weighted", threshold["type"])
	require.Equal(t, float64(6700), threshold["threshold_bps"])

	stakes, ok := threshold["operator_stakes"].([]any)
	require.True(t, ok)
	require.Len(t, stakes, 2)
}

func TestInitTaskRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "task exists"})
	}))
	defer srv.Close()

	err := aggsvc.NewClient(srv.URL).InitTask(context.Background(), 1, 1, nil, 1, core.CountPlan(1))
	require.ErrorIs(t, err, core.ErrAggregationService)
}

func TestSubmitSignature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/tasks/submit", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, float64(1), body["operator_index"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"accepted":             true,
			"signatures_collected": 2,
			"threshold_required":   2,
			"threshold_met":        true,
		})
	}))
	defer srv.Close()

	status, err := aggsvc.NewClient(srv.URL).SubmitSignature(context.Background(), core.SignatureSubmission{
		ServiceID:     7,
		CallID:        42,
		OperatorIndex: 1,
		Output:        []byte{0x01},
		Signature:     make([]byte, 96),
		PublicKey:     make([]byte, 48),
	})
	require.NoError(t, err)
	require.True(t, status.ThresholdMet)
	require.Equal(t, 2, status.SignaturesCollected)
	require.Equal(t, 2, status.ThresholdRequired)
}

func TestSubmitSignatureRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"accepted": false, "error": "bad signature"})
	}))
	defer srv.Close()

	_, err := aggsvc.NewClient(srv.URL).SubmitSignature(context.Background(), core.SignatureSubmission{})
	require.ErrorIs(t, err, core.ErrAggregationService)
}

func TestAggregatedResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/tasks/aggregate", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"service_id":           7,
			"call_id":              42,
			"output":               "0x0102",
			"signer_bitmap":        "0x07",
			"aggregated_signature": "0xaa",
			"aggregated_pubkey":    "0xbb",
		})
	}))
	defer srv.Close()

	proof, err := aggsvc.NewClient(srv.URL).AggregatedResult(context.Background(), 7, 42)
	require.NoError(t, err)
	require.NotNil(t, proof)
	require.Equal(t, uint64(7), proof.ServiceID)
	require.Equal(t, uint64(42), proof.CallID)
	require.Equal(t, []byte{0x01, 0x02}, proof.Output)
	require.Equal(t, []byte{0x07}, proof.SignerBitmap)
}

func TestAggregatedResultNotReady(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
		},
		{
			name: "null body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("null"))
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			srv := httptest.NewServer(test.handler)
			defer srv.Close()

			proof, err := aggsvc.NewClient(srv.URL).AggregatedResult(context.Background(), 1, 1)
			require.NoError(t, err)
			require.Nil(t, proof)
		})
	}
}

func TestMarkSubmitted(t *testing.T) {
	var called bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/tasks/mark-submitted", r.URL.Path)

		called = true

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := aggsvc.NewClient(srv.URL).MarkSubmitted(context.Background(), 7, 42)
	require.NoError(t, err)
	require.True(t, called)
}

func TestServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := aggsvc.NewClient(srv.URL)

	err := client.InitTask(context.Background(), 1, 1, nil, 1, core.CountPlan(1))
	require.ErrorIs(t, err, core.ErrAggregationService)

	_, err = client.AggregatedResult(context.Background(), 1, 1)
	require.ErrorIs(t, err, core.ErrAggregationService)

	err = client.MarkSubmitted(context.Background(), 1, 1)
	require.ErrorIs(t, err, core.ErrAggregationService)
}

func TestUnreachableEndpoint(t *testing.T) {
	client := aggsvc.NewClient("http://127.0.0.1:1") // Reserved port, nothing listens.

	_, err := client.SubmitSignature(context.Background(), core.SignatureSubmission{})
	require.ErrorIs(t, err, core.ErrAggregationService)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ok, err := aggsvc.NewClient(srv.URL).Health(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
}
