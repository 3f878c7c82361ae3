// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

package aggsvc_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/threshnet/attestor/core"
	"github.com/threshnet/attestor/core/aggsvc"
	"github.com/threshnet/attestor/core/confcache"
	"github.com/threshnet/attestor/testutil"
)

func TestConvertRPCURL(t *testing.T) {
	tests := []struct {
		name   string
		rpcURL string
		suffix string
		want   string
		wantOK bool
	}{
		{
			name:   "port suffix replaces port",
			rpcURL: "http://localhost:8545",
			suffix: ":9090",
			want:   "http://localhost:9090",
			wantOK: true,
		},
		{
			name:   "port suffix without existing port",
			rpcURL: "localhost",
			suffix: ":9090",
			want:   "localhost:9090",
			wantOK: true,
		},
		{
			name:   "path suffix appended",
			rpcURL: "http://localhost:8545",
			suffix: "/aggregation",
			want:   "http://localhost:8545/aggregation",
			wantOK: true,
		},
		{
			name:   "path suffix after trailing slash",
			rpcURL: "http://localhost:8545/",
			suffix: "/aggregation",
			want:   "http://localhost:8545/aggregation",
			wantOK: true,
		},
		{
			name:   "port suffix on path-bearing url",
			rpcURL: "https://rpc.example.com:8545/node",
			suffix: ":9090",
			want:   "https://rpc.example.com:9090",
			wantOK: true,
		},
		{
			name:   "empty rpc url",
			rpcURL: "",
			suffix: ":9090",
			wantOK: false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, ok := aggsvc.ConvertRPCURL(test.rpcURL, test.suffix)
			require.Equal(t, test.wantOK, ok)
			require.Equal(t, test.want, got)
		})
	}
}

func TestDiscoverServiceURLs(t *testing.T) {
	ctx := context.Background()

	ops := []common.Address{
		testutil.RandomAddress(t),
		testutil.RandomAddress(t),
		testutil.RandomAddress(t),
	}

	endpoints := map[common.Address]string{
		ops[0]: "http://operator-a:8545",
		ops[1]: "", // Not registered, skipped.
		ops[2]: "http://operator-c:8545",
	}

	ledger := &testutil.LedgerMock{
		ServiceOperatorsFunc: func(context.Context, uint64) ([]common.Address, error) {
			return ops, nil
		},
		OperatorMetadataFunc: func(_ context.Context, _ uint64, operator common.Address) (core.OperatorMetadata, error) {
			return core.OperatorMetadata{RPCEndpoint: endpoints[operator]}, nil
		},
	}

	cache := confcache.New(ledger)

	urls, err := aggsvc.DiscoverServiceURLs(ctx, cache, 1, 7, ":9090")
	require.NoError(t, err)
	require.Equal(t, []string{"http://operator-a:9090", "http://operator-c:9090"}, urls)

	clients, err := aggsvc.DiscoverServices(ctx, cache, 1, 7, ":9090")
	require.NoError(t, err)
	require.Len(t, clients, 2)
	require.Equal(t, "http://operator-a:9090", clients[0].Address())
}
