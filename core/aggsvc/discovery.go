// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

package aggsvc

import (
	"context"
	"sort"
	"strings"

	"github.com/threshnet/attestor/app/errors"
	"github.com/threshnet/attestor/app/log"
	"github.com/threshnet/attestor/app/z"
	"github.com/threshnet/attestor/core/confcache"
)

// ConvertRPCURL derives an aggregation-service URL from an operator's
// registered RPC endpoint and a location suffix. A suffix starting with ":"
// replaces the port of the RPC endpoint, any other suffix is appended as a
// path. Returns false if the RPC endpoint is empty.
func ConvertRPCURL(rpcURL, suffix string) (string, bool) {
	if rpcURL == "" {
		return "", false
	}

	if strings.HasPrefix(suffix, ":") {
		idx := strings.LastIndex(rpcURL, ":")
		if idx >= 0 && strings.Contains(rpcURL[:idx], "://") {
			return rpcURL[:idx] + suffix, true
		}

		return rpcURL + suffix, true
	}

	return strings.TrimRight(rpcURL, "/") + suffix, true
}

// DiscoverServiceURLs resolves aggregation-service URLs for all operators of
// the service from their on-chain metadata. Operators without a usable RPC
// endpoint are skipped. The returned URLs are deduplicated and sorted.
func DiscoverServiceURLs(ctx context.Context, cache *confcache.Cache, blueprintID, serviceID uint64,
	suffix string,
) ([]string, error) {
	meta, err := cache.ServiceOperatorMetadata(ctx, blueprintID, serviceID)
	if err != nil {
		return nil, errors.Wrap(err, "resolve operator metadata")
	}

	seen := make(map[string]bool)

	var urls []string

	for operator, m := range meta {
		url, ok := ConvertRPCURL(m.RPCEndpoint, suffix)
		if !ok {
			log.Debug(ctx, "Operator has no RPC endpoint registered",
				z.Str("operator", operator.Hex()),
				z.U64("service_id", serviceID))

			continue
		}

		if seen[url] {
			continue
		}
		seen[url] = true

		urls = append(urls, url)
	}

	sort.Strings(urls)

	return urls, nil
}

// DiscoverServices resolves aggregation-service clients for all operators of
// the service.
func DiscoverServices(ctx context.Context, cache *confcache.Cache, blueprintID, serviceID uint64,
	suffix string,
) ([]*Client, error) {
	urls, err := DiscoverServiceURLs(ctx, cache, blueprintID, serviceID, suffix)
	if err != nil {
		return nil, err
	}

	clients := make([]*Client, 0, len(urls))
	for _, url := range urls {
		clients = append(clients, NewClient(url))
	}

	return clients, nil
}
