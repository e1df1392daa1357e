package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"coinscope/pkg/utils"
)

// ChainTransfer is the normalized view of an on-chain payment: where the
// funds landed, how much (in whole token units), and whether the
// transaction is mined and not reverted.
type ChainTransfer struct {
	To        string
	Amount    float64
	Confirmed bool
}

// TokenConfig describes how to read amounts for a network key. An empty
// Contract means the chain's native coin.
type TokenConfig struct {
	Contract string
	Decimals int
}

type ChainConfig struct {
	RPCURL   string
	Networks map[string]TokenConfig
}

// EthRPCClient reads transactions over plain JSON-RPC. Only the two read
// methods needed for payment verification are used.
type EthRPCClient struct {
	cfg  ChainConfig
	http *http.Client
}

func NewEthRPCClient(cfg ChainConfig) *EthRPCClient {
	return &EthRPCClient{
		cfg:  cfg,
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type rpcTransaction struct {
	Hash        string `json:"hash"`
	To          string `json:"to"`
	Value       string `json:"value"`
	Input       string `json:"input"`
	BlockNumber string `json:"blockNumber"`
}

type rpcReceipt struct {
	Status      string `json:"status"`
	BlockNumber string `json:"blockNumber"`
}

func (c *EthRPCClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RPCURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("%w: %v", utils.ErrUpstreamUnavailable, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%w: rpc error %d: %s", utils.ErrUpstreamUnavailable, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if string(rpcResp.Result) == "null" || len(rpcResp.Result) == 0 {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, result)
}

// LookupTransfer returns nil, nil when the transaction is unknown to the node.
func (c *EthRPCClient) LookupTransfer(ctx context.Context, network, txHash string) (*ChainTransfer, error) {
	token, ok := c.cfg.Networks[network]
	if !ok {
		return nil, fmt.Errorf("unsupported network: %s", network)
	}

	var tx rpcTransaction
	if err := c.call(ctx, "eth_getTransactionByHash", []interface{}{txHash}, &tx); err != nil {
		return nil, err
	}
	if tx.Hash == "" {
		return nil, nil
	}

	confirmed := false
	if tx.BlockNumber != "" {
		var receipt rpcReceipt
		if err := c.call(ctx, "eth_getTransactionReceipt", []interface{}{txHash}, &receipt); err != nil {
			return nil, err
		}
		confirmed = receipt.Status == "0x1"
	}

	if token.Contract == "" {
		// Native coin transfer: recipient and value come straight off the tx.
		amount, err := hexToUnits(tx.Value, 18)
		if err != nil {
			return nil, err
		}
		return &ChainTransfer{To: tx.To, Amount: amount, Confirmed: confirmed}, nil
	}

	// ERC-20: tx.To is the token contract, the real recipient and amount
	// are in the transfer(address,uint256) calldata.
	if !strings.EqualFold(tx.To, token.Contract) {
		return &ChainTransfer{To: tx.To, Amount: 0, Confirmed: confirmed}, nil
	}
	to, amount, err := decodeERC20Transfer(tx.Input, token.Decimals)
	if err != nil {
		return nil, err
	}
	return &ChainTransfer{To: to, Amount: amount, Confirmed: confirmed}, nil
}

const erc20TransferSelector = "a9059cbb"

func decodeERC20Transfer(input string, decimals int) (string, float64, error) {
	data := strings.TrimPrefix(input, "0x")
	if len(data) < 8+64+64 || !strings.EqualFold(data[:8], erc20TransferSelector) {
		return "", 0, fmt.Errorf("not an erc20 transfer call")
	}
	to := "0x" + data[8+24:8+64]
	amount, err := hexToUnits("0x"+data[8+64:8+128], decimals)
	if err != nil {
		return "", 0, err
	}
	return to, amount, nil
}

func hexToUnits(hexVal string, decimals int) (float64, error) {
	raw, ok := new(big.Int).SetString(strings.TrimPrefix(hexVal, "0x"), 16)
	if !ok {
		return 0, fmt.Errorf("invalid hex amount: %s", hexVal)
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	units, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), scale).Float64()
	return units, nil
}
