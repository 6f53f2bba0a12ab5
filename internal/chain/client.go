// Package chain wraps the go-ethereum RPC stack behind the narrow surface
// the wallet and session layers need. zkSync-era endpoints speak the same
// JSON-RPC dialect for everything used here, so one client covers both.
package chain

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name    string
	RPCURL  string
	WSURL   string
	ChainID uint64
	Notes   string
}

// Client is a thin connection wrapper over one chain endpoint.
type Client struct {
	name        string
	notes       string
	chainID     uint64
	rpcClient   *gethrpc.Client
	eth         *ethclient.Client
	eventClient logSubscriber
	mu          sync.Mutex
}

// logSubscriber mirrors the subset of methods required for log subscriptions.
type logSubscriber interface {
	SubscribeFilterLogs(ctx context.Context, q gethcore.FilterQuery, ch chan<- coretypes.Log) (gethcore.Subscription, error)
}

// NewClient dials the configured RPC endpoints and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置链的 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接链节点失败: %w", err)
	}

	eth := ethclient.NewClient(rpcClient)

	eventClient := logSubscriber(eth)
	if wsURL := strings.TrimSpace(cfg.WSURL); wsURL != "" {
		if wsRPC, wsErr := gethrpc.DialContext(ctx, wsURL); wsErr == nil {
			eventClient = ethclient.NewClient(wsRPC)
		}
	}

	return &Client{
		name:        cfg.Name,
		notes:       cfg.Notes,
		chainID:     cfg.ChainID,
		rpcClient:   rpcClient,
		eth:         eth,
		eventClient: eventClient,
	}, nil
}

// Name returns the configured chain name.
func (c *Client) Name() string { return c.name }

// ChainID returns the configured chain identifier. It is taken from config
// rather than queried so signing keeps working while the endpoint flaps.
func (c *Client) ChainID() uint64 { return c.chainID }

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eventClient != nil {
		if ec, ok := c.eventClient.(*ethclient.Client); ok && ec != c.eth {
			ec.Close()
		}
		c.eventClient = nil
	}
	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}

// PendingNonceAt returns the next usable nonce of the account.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if c == nil || c.eth == nil {
		return 0, errors.New("未初始化的链客户端")
	}
	nonce, err := c.eth.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("查询交易计数失败: %w", err)
	}
	return nonce, nil
}

// BaseFee reads the base fee of the latest block.
func (c *Client) BaseFee(ctx context.Context) (*big.Int, error) {
	if c == nil || c.eth == nil {
		return nil, errors.New("未初始化的链客户端")
	}
	header, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("获取最新区块头失败: %w", err)
	}
	if header.BaseFee == nil {
		return nil, errors.New("链未启用 base fee")
	}
	return header.BaseFee, nil
}

// BlockNumber returns the current chain head height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	if c == nil || c.eth == nil {
		return 0, errors.New("未初始化的链客户端")
	}
	head, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("获取最新区块高度失败: %w", err)
	}
	return head, nil
}

// FilterLogs forwards an eth_getLogs query.
func (c *Client) FilterLogs(ctx context.Context, q gethcore.FilterQuery) ([]coretypes.Log, error) {
	if c == nil || c.eth == nil {
		return nil, errors.New("未初始化的链客户端")
	}
	return c.eth.FilterLogs(ctx, q)
}

// SendRawTransaction broadcasts a pre-serialized transaction envelope and
// returns the transaction hash the node assigns to it. The envelope goes out
// verbatim; nonstandard type bytes pass through untouched.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	if c == nil || c.rpcClient == nil {
		return common.Hash{}, errors.New("未初始化的链客户端")
	}
	var txHash common.Hash
	payload := "0x" + hex.EncodeToString(raw)
	if err := c.rpcClient.CallContext(ctx, &txHash, "eth_sendRawTransaction", payload); err != nil {
		return common.Hash{}, fmt.Errorf("广播交易失败: %w", err)
	}
	return txHash, nil
}

// TransactionReceipt fetches the receipt of a mined transaction. Callers see
// ethereum.NotFound while the transaction is still pending.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error) {
	if c == nil || c.eth == nil {
		return nil, errors.New("未初始化的链客户端")
	}
	return c.eth.TransactionReceipt(ctx, txHash)
}

// SubscribeFilterLogs attaches a log subscription, preferring the websocket
// endpoint when one was configured.
func (c *Client) SubscribeFilterLogs(ctx context.Context, q gethcore.FilterQuery, ch chan<- coretypes.Log) (gethcore.Subscription, error) {
	if c == nil || c.eventClient == nil {
		return nil, errors.New("当前客户端不支持事件订阅")
	}
	sub, err := c.eventClient.SubscribeFilterLogs(ctx, q, ch)
	if err != nil {
		return nil, fmt.Errorf("订阅事件失败: %w", err)
	}
	return sub, nil
}
