package token

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"trustify/internal/log"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	ErrInvalidTokenID      = errors.New("invalid token id")
	ErrTransactionReverted = errors.New("transaction reverted")
)

const defaultPollInterval = time.Second

// EthClient calls the Trustify contract through a JSON-RPC node.
// The chain id is only needed to sign, so it is resolved on the first mint
// and reads work against a node that was down at startup.
type EthClient struct {
	client       *ethclient.Client
	contract     *bind.BoundContract
	address      common.Address
	key          *ecdsa.PrivateKey
	pollInterval time.Duration

	signerMu  sync.Mutex
	chainID   *big.Int
	transacts *bind.TransactOpts
}

type EthClientConfig struct {
	RPCURL              string
	PrivateKeyHex       string
	ContractAddress     string
	ReceiptPollInterval time.Duration
}

func NewEthClient(ctx context.Context, cfg EthClientConfig) (*EthClient, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("contract address is required and must be hex: %q", cfg.ContractAddress)
	}
	if cfg.PrivateKeyHex == "" {
		return nil, fmt.Errorf("private key is required for minting")
	}
	pk, err := parsePrivateKey(cfg.PrivateKeyHex)
	if err != nil {
		return nil, err
	}

	parsedABI, err := abi.JSON(strings.NewReader(TrustifyABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	// Dialing an http endpoint does not contact the node.
	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	address := common.HexToAddress(cfg.ContractAddress)
	interval := cfg.ReceiptPollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	from := crypto.PubkeyToAddress(pk.PublicKey)

	log.L(ctx).Infof("Contract client configured: rpc=%s contract=%s signer=%s", cfg.RPCURL, address.Hex(), from.Hex())
	return &EthClient{
		client:       cli,
		contract:     bind.NewBoundContract(address, parsedABI, cli, cli, cli),
		address:      address,
		key:          pk,
		pollInterval: interval,
	}, nil
}

// transactor builds the signing options once the node has reported its chain id.
// A failed lookup is not cached, the next mint asks again.
func (c *EthClient) transactor(ctx context.Context) (*bind.TransactOpts, error) {
	c.signerMu.Lock()
	defer c.signerMu.Unlock()

	if c.transacts != nil {
		return c.transacts, nil
	}
	chainID, err := c.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	txOpts, err := bind.NewKeyedTransactorWithChainID(c.key, chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}
	txOpts.GasLimit = 0 // let node estimate

	log.L(ctx).Infof("Signer ready: chain=%s signer=%s", chainID, txOpts.From.Hex())
	c.chainID, c.transacts = chainID, txOpts
	return txOpts, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func (c *EthClient) Mint(ctx context.Context, buyer, orderID string) (*types.Receipt, error) {
	if !common.IsHexAddress(buyer) {
		return nil, fmt.Errorf("invalid buyer address %q", buyer)
	}

	signer, err := c.transactor(ctx)
	if err != nil {
		return nil, err
	}
	opts := *signer
	opts.Context = ctx

	tx, err := c.contract.Transact(&opts, "mint", common.HexToAddress(buyer), orderID)
	if err != nil {
		return nil, fmt.Errorf("mint tx: %w", err)
	}
	log.L(ctx).Infof("Transaction sent: %s", tx.Hash().Hex())

	receipt, err := WaitForReceipt(ctx, c.client, tx.Hash(), c.pollInterval)
	if err != nil {
		return nil, fmt.Errorf("wait for %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: %s", ErrTransactionReverted, tx.Hash().Hex())
	}
	log.L(ctx).Infof("Transaction confirmed: %s block=%s", tx.Hash().Hex(), receipt.BlockNumber)
	return receipt, nil
}

func (c *EthClient) OwnerOf(ctx context.Context, tokenID string) (string, error) {
	id, err := ParseTokenID(tokenID)
	if err != nil {
		return "", err
	}
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "ownerOf", id); err != nil {
		return "", err
	}
	owner := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	return owner.Hex(), nil
}

func (c *EthClient) TokenMetadata(ctx context.Context, tokenID string) (string, error) {
	id, err := ParseTokenID(tokenID)
	if err != nil {
		return "", err
	}
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "tokenMetadata", id); err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

func (c *EthClient) Ping(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("rpc client not configured")
	}
	_, err := c.client.BlockNumber(ctx)
	return err
}

func (c *EthClient) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// ParseTokenID accepts a decimal or 0x-prefixed hex uint256.
func ParseTokenID(raw string) (*big.Int, error) {
	s := strings.TrimSpace(raw)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTokenID, raw)
	}
	id, ok := new(big.Int).SetString(s, base)
	if !ok || id.BitLen() > 256 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTokenID, raw)
	}
	return id, nil
}

// ReceiptReader is the part of ethclient.Client that WaitForReceipt needs.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// WaitForReceipt polls until the transaction is mined or context cancelled.
func WaitForReceipt(ctx context.Context, client ReceiptReader, txHash common.Hash, interval time.Duration) (*types.Receipt, error) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, txHash)
		if receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
