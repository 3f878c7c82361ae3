// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

// Package evm implements the ledger client against the on-chain services
// contract of an EVM chain. Reads are plain contract calls, writes are signed
// transactions waited to inclusion. With dry run enabled all writes are
// logged no-ops.
package evm

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/threshnet/attestor/app/errors"
	"github.com/threshnet/attestor/app/log"
	"github.com/threshnet/attestor/app/z"
	"github.com/threshnet/attestor/core"
)

// servicesABI is the subset of the services contract used by the attestor.
const servicesABI = `[
  {"name":"getAggregationConfig","type":"function","stateMutability":"view",
   "inputs":[{"name":"serviceId","type":"uint64"},{"name":"jobIndex","type":"uint8"}],
   "outputs":[{"name":"required","type":"bool"},{"name":"thresholdBps","type":"uint16"},{"name":"thresholdType","type":"uint8"}]},
  {"name":"getServiceOperators","type":"function","stateMutability":"view",
   "inputs":[{"name":"serviceId","type":"uint64"}],
   "outputs":[{"name":"operators","type":"address[]"}]},
  {"name":"getServiceOperator","type":"function","stateMutability":"view",
   "inputs":[{"name":"serviceId","type":"uint64"},{"name":"operator","type":"address"}],
   "outputs":[{"name":"exposureBps","type":"uint16"},{"name":"active","type":"bool"}]},
  {"name":"getOperatorMetadata","type":"function","stateMutability":"view",
   "inputs":[{"name":"blueprintId","type":"uint64"},{"name":"operator","type":"address"}],
   "outputs":[{"name":"rpcEndpoint","type":"string"}]},
  {"name":"submitResult","type":"function","stateMutability":"nonpayable",
   "inputs":[{"name":"serviceId","type":"uint64"},{"name":"callId","type":"uint64"},{"name":"output","type":"bytes"}],
   "outputs":[]},
  {"name":"submitAggregatedResult","type":"function","stateMutability":"nonpayable",
   "inputs":[{"name":"serviceId","type":"uint64"},{"name":"callId","type":"uint64"},{"name":"output","type":"bytes"},
             {"name":"signerBitmap","type":"bytes"},{"name":"signature","type":"bytes"},{"name":"publicKey","type":"bytes"}],
   "outputs":[]}
]`

// Client is the EVM ledger client. It implements core.Ledger.
type Client struct {
	eth      *ethclient.Client
	abi      abi.ABI
	contract common.Address
	privKey  *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	dryRun   bool
}

// New dials the EVM RPC endpoint and returns a ledger client for the services
// contract. privKeyHex may be empty with dry run enabled.
func New(ctx context.Context, rpcURL string, contract common.Address, privKeyHex string, dryRun bool) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Wrap(core.ErrClient, "dial evm rpc", z.Err(err), z.Str("url", rpcURL))
	}

	parsedABI, err := abi.JSON(strings.NewReader(servicesABI))
	if err != nil {
		return nil, errors.Wrap(err, "parse services abi")
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(core.ErrClient, "fetch chain id", z.Err(err))
	}

	c := &Client{
		eth:      eth,
		abi:      parsedABI,
		contract: contract,
		chainID:  chainID,
		dryRun:   dryRun,
	}

	if privKeyHex == "" {
		if !dryRun {
			return nil, errors.New("private key required without dry run")
		}

		return c, nil
	}

	privKey, err := crypto.HexToECDSA(strings.TrimPrefix(privKeyHex, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "parse private key")
	}

	c.privKey = privKey
	c.from = crypto.PubkeyToAddress(privKey.PublicKey)

	return c, nil
}

// Close closes the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// DryRun returns true if state-mutating calls are disabled.
func (c *Client) DryRun() bool {
	return c.dryRun
}

// SubmitResult submits a non-aggregated job result.
func (c *Client) SubmitResult(ctx context.Context, serviceID, callID uint64, output []byte) (core.SubmitReceipt, error) {
	return c.transact(ctx, "submitResult", serviceID, callID, output)
}

// SubmitAggregatedResult submits an aggregated job result with its BLS proof.
func (c *Client) SubmitAggregatedResult(ctx context.Context, result core.AggregatedResult) (core.SubmitReceipt, error) {
	return c.transact(ctx, "submitAggregatedResult",
		result.ServiceID,
		result.CallID,
		result.Output,
		[]byte(result.SignerBitmap),
		result.Signature[:],
		result.PublicKey[:],
	)
}

// AggregationConfig returns the aggregation policy of the (service, job) pair.
func (c *Client) AggregationConfig(ctx context.Context, serviceID uint64, jobIndex uint8) (core.AggregationConfig, error) {
	outputs, err := c.call(ctx, "getAggregationConfig", serviceID, jobIndex)
	if err != nil {
		return core.AggregationConfig{}, err
	}

	required, ok := outputs[0].(bool)
	if !ok {
		return core.AggregationConfig{}, errors.New("unexpected aggregation config encoding")
	}

	thresholdBps, ok := outputs[1].(uint16)
	if !ok {
		return core.AggregationConfig{}, errors.New("unexpected aggregation config encoding")
	}

	thresholdType, ok := outputs[2].(uint8)
	if !ok {
		return core.AggregationConfig{}, errors.New("unexpected aggregation config encoding")
	}

	config := core.AggregationConfig{
		Required:      required,
		ThresholdBps:  thresholdBps,
		ThresholdType: core.ThresholdCountBased,
	}
	if thresholdType == 1 {
		config.ThresholdType = core.ThresholdStakeWeighted
	}

	return config, nil
}

// ServiceOperators returns the registered operator roster of the service.
func (c *Client) ServiceOperators(ctx context.Context, serviceID uint64) ([]common.Address, error) {
	outputs, err := c.call(ctx, "getServiceOperators", serviceID)
	if err != nil {
		return nil, err
	}

	operators, ok := outputs[0].([]common.Address)
	if !ok {
		return nil, errors.New("unexpected operator roster encoding")
	}

	return operators, nil
}

// OperatorWeight returns the weight record of one operator in the service.
func (c *Client) OperatorWeight(ctx context.Context, serviceID uint64, operator common.Address) (core.OperatorWeight, error) {
	outputs, err := c.call(ctx, "getServiceOperator", serviceID, operator)
	if err != nil {
		return core.OperatorWeight{}, err
	}

	exposureBps, ok := outputs[0].(uint16)
	if !ok {
		return core.OperatorWeight{}, errors.New("unexpected operator weight encoding")
	}

	active, ok := outputs[1].(bool)
	if !ok {
		return core.OperatorWeight{}, errors.New("unexpected operator weight encoding")
	}

	return core.OperatorWeight{ExposureBps: exposureBps, Active: active}, nil
}

// OperatorMetadata returns the reachability metadata an operator registered for
// the blueprint.
func (c *Client) OperatorMetadata(ctx context.Context, blueprintID uint64, operator common.Address) (core.OperatorMetadata, error) {
	outputs, err := c.call(ctx, "getOperatorMetadata", blueprintID, operator)
	if err != nil {
		return core.OperatorMetadata{}, err
	}

	endpoint, ok := outputs[0].(string)
	if !ok {
		return core.OperatorMetadata{}, errors.New("unexpected operator metadata encoding")
	}

	return core.OperatorMetadata{RPCEndpoint: endpoint}, nil
}

// call executes a read-only contract call and unpacks its outputs.
func (c *Client) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrap(err, "pack call", z.Str("method", method))
	}

	resp, err := c.eth.CallContract(ctx, ethereum.CallMsg{
		To:   &c.contract,
		Data: data,
	}, nil)
	if err != nil {
		return nil, errors.Wrap(core.ErrClient, "contract call", z.Err(err), z.Str("method", method))
	}

	outputs, err := c.abi.Unpack(method, resp)
	if err != nil {
		return nil, errors.Wrap(core.ErrClient, "unpack call response", z.Err(err), z.Str("method", method))
	}

	return outputs, nil
}

// transact signs and sends a contract transaction and waits for inclusion.
func (c *Client) transact(ctx context.Context, method string, args ...any) (core.SubmitReceipt, error) {
	if c.dryRun {
		log.Info(ctx, "Dry run, skipping transaction", z.Str("method", method))
		return core.SubmitReceipt{Success: true}, nil
	}

	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return core.SubmitReceipt{}, errors.Wrap(err, "pack transaction", z.Str("method", method))
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return core.SubmitReceipt{}, errors.Wrap(core.ErrClient, "fetch nonce", z.Err(err))
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return core.SubmitReceipt{}, errors.Wrap(core.ErrClient, "suggest gas price", z.Err(err))
	}

	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:     c.from,
		To:       &c.contract,
		GasPrice: gasPrice,
		Data:     data,
	})
	if err != nil {
		return core.SubmitReceipt{}, errors.Wrap(core.ErrClient, "estimate gas", z.Err(err), z.Str("method", method))
	}

	tx := types.NewTransaction(nonce, c.contract, big.NewInt(0), gas, gasPrice, data)

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.privKey)
	if err != nil {
		return core.SubmitReceipt{}, errors.Wrap(err, "sign transaction")
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return core.SubmitReceipt{}, errors.Wrap(core.ErrClient, "send transaction",
			z.Err(err), z.Str("method", method))
	}

	log.Debug(ctx, "Sent transaction, waiting for inclusion",
		z.Str("method", method), z.Str("tx", signed.Hash().Hex()))

	receipt, err := bind.WaitMined(ctx, c.eth, signed)
	if err != nil {
		return core.SubmitReceipt{}, errors.Wrap(core.ErrClient, "wait for transaction",
			z.Err(err), z.Str("tx", signed.Hash().Hex()))
	}

	return core.SubmitReceipt{
		Success: receipt.Status == types.ReceiptStatusSuccessful,
		TxHash:  signed.Hash(),
	}, nil
}
