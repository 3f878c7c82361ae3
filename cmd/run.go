// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

package cmd

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/threshnet/attestor/app/errors"
	"github.com/threshnet/attestor/app/log"
	"github.com/threshnet/attestor/app/z"
	"github.com/threshnet/attestor/core"
	"github.com/threshnet/attestor/core/aggsvc"
	"github.com/threshnet/attestor/core/confcache"
	"github.com/threshnet/attestor/core/consumer"
	"github.com/threshnet/attestor/core/submit"
	"github.com/threshnet/attestor/ledger/evm"
	"github.com/threshnet/attestor/tbls"
)

// Config is the attestor run configuration.
type Config struct {
	Log log.Config

	LedgerRPC    string
	ContractAddr string
	PrivateKey   string

	BlueprintID uint64
	ServiceID   uint64

	BLSSecret     string
	OperatorIndex uint32

	AggEndpoints      []string
	AggEndpointSuffix string
	WaitForThreshold  bool
	ThresholdTimeout  time.Duration
	PollInterval      time.Duration
	SubmitToChain     bool

	CacheTTL       time.Duration
	DryRun         bool
	MonitoringAddr string
}

func newRunCmd(runFunc func(context.Context, Config) error) *cobra.Command {
	var config Config

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the attestor client",
		Long:  "Consumes finished job results from stdin as JSON lines and attests them on chain, aggregating BLS signatures when the service requires a quorum.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFunc(cmd.Context(), config)
		},
	}

	bindRunFlags(cmd.Flags(), &config)
	bindLogFlags(cmd.Flags(), &config.Log)
	wrapPreRunE(cmd)

	return cmd
}

func bindRunFlags(flags *pflag.FlagSet, config *Config) {
	flags.StringVar(&config.LedgerRPC, "ledger-rpc", "http://localhost:8545", "EVM RPC endpoint of the ledger chain.")
	flags.StringVar(&config.ContractAddr, "contract-address", "", "Address of the services contract.")
	flags.StringVar(&config.PrivateKey, "private-key", "", "Hex encoded ECDSA private key used to sign transactions.")
	flags.Uint64Var(&config.BlueprintID, "blueprint-id", 0, "Blueprint ID of this service.")
	flags.Uint64Var(&config.ServiceID, "service-id", 0, "Service instance ID this operator attests for.")
	flags.StringVar(&config.BLSSecret, "bls-secret", "", "Hex encoded BLS secret key used to sign results for aggregation.")
	flags.Uint32Var(&config.OperatorIndex, "operator-index", 0, "This operator's index in the service roster.")
	flags.StringSliceVar(&config.AggEndpoints, "agg-endpoints", nil, "Static aggregation service URLs. Overrides discovery.")
	flags.StringVar(&config.AggEndpointSuffix, "agg-endpoint-suffix", "", "Suffix applied to operator RPC endpoints to discover aggregation services, e.g. \":9090\" or \"/aggregation\".")
	flags.BoolVar(&config.WaitForThreshold, "wait-for-threshold", false, "Block each submission until the aggregation quorum is met.")
	flags.DurationVar(&config.ThresholdTimeout, "threshold-timeout", submit.DefaultThresholdTimeout, "Timeout waiting for the aggregation quorum.")
	flags.DurationVar(&config.PollInterval, "poll-interval", submit.DefaultPollInterval, "Delay between aggregated result polls.")
	flags.BoolVar(&config.SubmitToChain, "submit-to-chain", true, "Finalise aggregated results on chain.")
	flags.DurationVar(&config.CacheTTL, "cache-ttl", confcache.DefaultTTL, "Staleness window of cached on-chain configuration.")
	flags.BoolVar(&config.DryRun, "dry-run", false, "Disable all state-mutating chain calls.")
	flags.StringVar(&config.MonitoringAddr, "monitoring-address", "", "Listen address of the prometheus metrics endpoint. Disabled if empty.")
}

func bindLogFlags(flags *pflag.FlagSet, config *log.Config) {
	flags.StringVar(&config.Format, "log-format", "console", "Log format; console, logfmt or json")
	flags.StringVar(&config.Level, "log-level", "info", "Log level; debug, info, warn or error")
}

// Run runs the attestor client until ctx is cancelled or the result input closes.
func Run(ctx context.Context, config Config) error {
	if err := log.InitLogger(config.Log); err != nil {
		return err
	}

	ctx = log.WithTopic(ctx, "app")

	log.Info(ctx, "Starting attestor",
		z.Str("version", version),
		z.U64("blueprint_id", config.BlueprintID),
		z.U64("service_id", config.ServiceID),
		z.Bool("dry_run", config.DryRun))

	if !common.IsHexAddress(config.ContractAddr) {
		return errors.New("invalid contract address", z.Str("address", config.ContractAddr))
	}

	ledger, err := evm.New(ctx, config.LedgerRPC, common.HexToAddress(config.ContractAddr),
		config.PrivateKey, config.DryRun)
	if err != nil {
		return err
	}
	defer ledger.Close()

	cache := confcache.New(ledger, confcache.WithTTL(config.CacheTTL))

	agg, err := newAggConfig(ctx, config, cache)
	if err != nil {
		return err
	}

	cons := consumer.New(submit.New(ledger, cache, agg))

	results := make(chan core.JobResult)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return readResults(ctx, os.Stdin, results)
	})
	eg.Go(func() error {
		return cons.Run(ctx, results)
	})

	if config.MonitoringAddr != "" {
		eg.Go(func() error {
			return serveMonitoring(ctx, config.MonitoringAddr)
		})
	}

	err = eg.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	return err
}

// newAggConfig resolves the aggregation side of the submission workflow, or
// nil if no BLS secret is configured.
func newAggConfig(ctx context.Context, config Config, cache *confcache.Cache) (*submit.ServiceConfig, error) {
	if config.BLSSecret == "" {
		log.Info(ctx, "No BLS secret configured, jobs requiring aggregation will fail")
		return nil, nil
	}

	secretBytes, err := hex.DecodeString(strings.TrimPrefix(config.BLSSecret, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "decode bls secret")
	}

	var secret tbls.PrivateKey
	if len(secretBytes) != len(secret) {
		return nil, errors.New("invalid bls secret length", z.Int("length", len(secretBytes)))
	}
	copy(secret[:], secretBytes)

	var clients []core.AggregationService

	if len(config.AggEndpoints) > 0 {
		for _, url := range config.AggEndpoints {
			clients = append(clients, aggsvc.NewClient(url))
		}
	} else if config.AggEndpointSuffix != "" {
		discovered, err := aggsvc.DiscoverServices(ctx, cache, config.BlueprintID, config.ServiceID,
			config.AggEndpointSuffix)
		if err != nil {
			return nil, err
		}

		for _, client := range discovered {
			clients = append(clients, client)
		}

		log.Info(ctx, "Discovered aggregation service endpoints", z.Int("count", len(clients)))
	}

	if len(clients) == 0 {
		log.Warn(ctx, "BLS secret configured but no aggregation endpoints available", nil)
		return nil, nil
	}

	agg, err := submit.NewServiceConfig(clients, secret, config.OperatorIndex)
	if err != nil {
		return nil, err
	}

	agg.WaitForThreshold = config.WaitForThreshold
	agg.ThresholdTimeout = config.ThresholdTimeout
	agg.PollInterval = config.PollInterval
	agg.SubmitToChain = config.SubmitToChain

	return agg, nil
}

// readResults reads newline-delimited JSON job results from r into the channel,
// closing it when the input ends. Malformed lines are logged and skipped.
// The scan runs in its own goroutine so cancellation is not blocked on a read.
func readResults(ctx context.Context, r io.Reader, results chan<- core.JobResult) error {
	defer close(results)

	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 1024), 10*1024*1024)

		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}

		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return errors.Wrap(err, "read job results")
					}
				default:
				}

				return nil
			}

			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			var result core.JobResult
			if err := json.Unmarshal([]byte(line), &result); err != nil {
				log.Warn(ctx, "Skipping malformed job result line", err)
				continue
			}

			select {
			case results <- result:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// serveMonitoring serves the prometheus metrics endpoint until ctx is cancelled.
func serveMonitoring(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info(ctx, "Serving metrics", z.Str("address", addr))

	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return errors.Wrap(err, "serve monitoring")
}
