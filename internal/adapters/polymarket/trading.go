package polymarket

// trading.go — Real order execution via Polymarket CLOB API.
//
// Implements ports.OrderExecutor using AuthClient for L1/L2 auth.
// All orders are submitted as FAK (fill-and-kill): whatever crosses the book
// fills immediately, the remainder is cancelled by the exchange. Nothing this
// client sends ever rests on the book.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	gomodel "github.com/polymarket/go-order-utils/pkg/model"

	"github.com/alejandrodnm/pairbot/internal/ports"
)

// clobOrderRequest is the JSON body sent to POST /order.
type clobOrderRequest struct {
	Order     clobOrderBody `json:"order"`
	Owner     string        `json:"owner"`
	OrderType string        `json:"orderType"`
}

type clobOrderBody struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

type clobOrderResponse struct {
	ErrorMsg     string `json:"errorMsg"`
	OrderID      string `json:"orderID"`
	TakingAmount string `json:"takingAmount"`
	MakingAmount string `json:"makingAmount"`
	Status       string `json:"status"`
	Success      bool   `json:"success"`
}

type clobNegRiskResponse struct {
	NegRisk bool `json:"neg_risk"`
}

const (
	usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	ctfAddress   = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"
)

var (
	balanceOfABI     abi.ABI
	balanceOfERC1155 abi.ABI
)

func init() {
	var err error
	balanceOfABI, err = abi.JSON(strings.NewReader(`[{
		"name":"balanceOf","type":"function",
		"inputs":[{"name":"account","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]
	}]`))
	if err != nil {
		panic("balanceOf abi: " + err.Error())
	}
	balanceOfERC1155, err = abi.JSON(strings.NewReader(`[{
		"name":"balanceOf","type":"function",
		"inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],
		"outputs":[{"name":"","type":"uint256"}]
	}]`))
	if err != nil {
		panic("balanceOf erc1155 abi: " + err.Error())
	}
}

// TradingClient implements ports.OrderExecutor.
type TradingClient struct {
	auth      *AuthClient
	rpcClient *ethclient.Client

	// negRisk answers are immutable per token; cache them for the process lifetime.
	negRiskMu    sync.Mutex
	negRiskCache map[string]bool
}

// NewTradingClient creates a TradingClient. rpcURL is used for on-chain balance checks.
func NewTradingClient(auth *AuthClient, rpcURL string) (*TradingClient, error) {
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("trading: dial rpc: %w", err)
	}
	return &TradingClient{
		auth:         auth,
		rpcClient:    rpc,
		negRiskCache: make(map[string]bool),
	}, nil
}

// BuyFAK signs and submits a marketable BUY for amountUSD notional at the
// given limit price. Returns what actually filled; zero fill is not an error.
func (tc *TradingClient) BuyFAK(ctx context.Context, tokenID string, price, amountUSD float64) (ports.FillResult, error) {
	return tc.submitFAK(ctx, tokenID, gomodel.BUY, price, amountUSD)
}

// SellFAK signs and submits a marketable SELL for size shares at the given
// limit price.
func (tc *TradingClient) SellFAK(ctx context.Context, tokenID string, price, size float64) (ports.FillResult, error) {
	return tc.submitFAK(ctx, tokenID, gomodel.SELL, price, size)
}

func (tc *TradingClient) submitFAK(ctx context.Context, tokenID string, side gomodel.Side, price, size float64) (ports.FillResult, error) {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return ports.FillResult{}, fmt.Errorf("submit order: creds: %w", err)
	}

	negRisk, err := tc.isNegRisk(ctx, tokenID)
	if err != nil {
		return ports.FillResult{}, fmt.Errorf("submit order: %w", err)
	}

	signed, err := tc.auth.buildSignedOrder(tokenID, side, price, size, negRisk)
	if err != nil {
		return ports.FillResult{}, fmt.Errorf("submit order: sign: %w", err)
	}

	sideStr := "BUY"
	if side == gomodel.SELL {
		sideStr = "SELL"
	}
	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       tokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          sideStr,
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     tc.auth.creds.APIKey,
		OrderType: "FAK",
	}

	var resp clobOrderResponse
	if err := tc.auth.doL2(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return ports.FillResult{}, fmt.Errorf("submit order: post: %w", err)
	}

	if !resp.Success || resp.ErrorMsg != "" {
		return ports.FillResult{}, fmt.Errorf("submit order: clob error: %s", resp.ErrorMsg)
	}

	// Para BUY: making = USDC gastados, taking = shares recibidas.
	// Para SELL: making = shares entregadas, taking = USDC recibidos.
	made := parseUSDC(resp.MakingAmount)
	taken := parseUSDC(resp.TakingAmount)

	result := ports.FillResult{OrderID: resp.OrderID}
	if side == gomodel.BUY {
		result.AmountUSD = made
		result.FilledSize = taken
	} else {
		result.AmountUSD = taken
		result.FilledSize = made
	}
	if result.FilledSize > 0 {
		result.FilledPrice = result.AmountUSD / result.FilledSize
	}
	return result, nil
}

// GetBalance returns the on-chain USDC.e balance of the wallet address.
func (tc *TradingClient) GetBalance(ctx context.Context) (float64, error) {
	callData, err := balanceOfABI.Pack("balanceOf", tc.auth.address)
	if err != nil {
		return 0, fmt.Errorf("get balance: pack: %w", err)
	}

	token := common.HexToAddress(usdcEAddress)
	result, err := tc.rpcClient.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: callData,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("get balance: rpc call: %w", err)
	}

	vals, err := balanceOfABI.Unpack("balanceOf", result)
	if err != nil || len(vals) == 0 {
		return 0, fmt.Errorf("get balance: unpack: %w", err)
	}

	raw := vals[0].(*big.Int)
	bal, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), new(big.Float).SetFloat64(1e6)).Float64()
	return bal, nil
}

// TokenBalance returns the on-chain ERC-1155 balance for a conditional token.
// Returns shares (not micro-units), e.g. 13.51 means 13.51 shares.
func (tc *TradingClient) TokenBalance(ctx context.Context, tokenID string) (float64, error) {
	tid := new(big.Int)
	if _, ok := tid.SetString(tokenID, 10); !ok {
		tidBytes, err := hex.DecodeString(strings.TrimPrefix(tokenID, "0x"))
		if err != nil {
			return 0, fmt.Errorf("token balance: invalid token ID: %s", tokenID)
		}
		tid.SetBytes(tidBytes)
	}

	callData, err := balanceOfERC1155.Pack("balanceOf", tc.auth.address, tid)
	if err != nil {
		return 0, fmt.Errorf("token balance: pack: %w", err)
	}

	ctf := common.HexToAddress(ctfAddress)
	result, err := tc.rpcClient.CallContract(ctx, ethereum.CallMsg{
		To:   &ctf,
		Data: callData,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("token balance: call: %w", err)
	}

	vals, err := balanceOfERC1155.Unpack("balanceOf", result)
	if err != nil || len(vals) == 0 {
		return 0, fmt.Errorf("token balance: unpack: %w", err)
	}

	raw := vals[0].(*big.Int)
	shares := new(big.Float).SetInt(raw)
	shares.Quo(shares, big.NewFloat(1e6))
	f, _ := shares.Float64()
	return f, nil
}

// isNegRisk queries the CLOB to determine if a token uses the NegRisk adapter.
func (tc *TradingClient) isNegRisk(ctx context.Context, tokenID string) (bool, error) {
	tc.negRiskMu.Lock()
	if v, ok := tc.negRiskCache[tokenID]; ok {
		tc.negRiskMu.Unlock()
		return v, nil
	}
	tc.negRiskMu.Unlock()

	url := fmt.Sprintf("%s/neg-risk?token_id=%s", tc.auth.clobBase, tokenID)

	var resp clobNegRiskResponse
	if err := tc.auth.get(ctx, tc.auth.clobLimiter, url, &resp); err != nil {
		return false, fmt.Errorf("neg-risk check: %w", err)
	}

	tc.negRiskMu.Lock()
	tc.negRiskCache[tokenID] = resp.NegRisk
	tc.negRiskMu.Unlock()
	return resp.NegRisk, nil
}

// parseUSDC converts a micro-USDC string (e.g., "1000000") to USDC float.
func parseUSDC(s string) float64 {
	if s == "" {
		return 0
	}
	n := new(big.Int)
	n.SetString(s, 10)
	f, _ := new(big.Float).SetInt(n).Float64()
	return f / 1_000_000
}
