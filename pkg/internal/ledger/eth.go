package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// TicketRegistryABI is the interface of the ticketing contract. Resource ids
// are chosen by the caller so they are known before the transaction lands.
const TicketRegistryABI = `[
	{"type":"function","name":"createResource","stateMutability":"nonpayable","inputs":[
		{"name":"id","type":"bytes32"},{"name":"capacity","type":"uint256"},
		{"name":"price","type":"uint256"},{"name":"metadata","type":"string"}],"outputs":[]},
	{"type":"function","name":"purchase","stateMutability":"payable","inputs":[
		{"name":"id","type":"bytes32"},{"name":"quantity","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"cancel","stateMutability":"nonpayable","inputs":[
		{"name":"id","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[
		{"name":"id","type":"bytes32"},{"name":"holder","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"priceOf","stateMutability":"view","inputs":[
		{"name":"id","type":"bytes32"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// Prices are expressed in the chain's native unit and sent in its smallest
// denomination.
const priceDecimals = 18

type Backend interface {
	bind.ContractBackend
	ReceiptSource
	ChainID(ctx context.Context) (*big.Int, error)
}

type Config struct {
	Endpoint       string
	Contract       string
	PrivateKey     string
	PollInterval   time.Duration
	ConfirmTimeout time.Duration
}

type EthLedger struct {
	contract *bind.BoundContract
	signer   *bind.TransactOpts
	chainID  *big.Int
	watcher  *Watcher

	// Sends share the signer's nonce sequence.
	sendLock sync.Mutex
}

func DialEthLedger(ctx context.Context, cfg Config) (*EthLedger, error) {
	client, err := ethclient.DialContext(ctx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("unable to dial ledger endpoint: %v", err)
	}
	return NewEthLedger(ctx, client, cfg)
}

func NewEthLedger(ctx context.Context, backend Backend, cfg Config) (*EthLedger, error) {
	if !common.IsHexAddress(cfg.Contract) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.Contract)
	}
	parsed, err := abi.JSON(strings.NewReader(TicketRegistryABI))
	if err != nil {
		return nil, err
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid ledger private key: %v", err)
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to query chain id: %v", err)
	}
	signer, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, err
	}

	address := common.HexToAddress(cfg.Contract)
	return &EthLedger{
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		signer:   signer,
		chainID:  chainID,
		watcher:  NewWatcher(backend, cfg.PollInterval, cfg.ConfirmTimeout),
	}, nil
}

func (l *EthLedger) ChainID() int64 {
	return l.chainID.Int64()
}

func (l *EthLedger) Confirmations() <-chan Confirmation {
	return l.watcher.Confirmations()
}

func (l *EthLedger) Close() {
	l.watcher.Close()
}

// CreateTicketedResource sends the creation transaction and returns without
// waiting for it to be mined, the outcome arrives on Confirmations.
func (l *EthLedger) CreateTicketedResource(ctx context.Context, req ResourceRequest) (Receipt, error) {
	if req.Capacity == 0 {
		return Receipt{}, fmt.Errorf("capacity must be positive")
	}
	if req.Price.IsNegative() {
		return Receipt{}, fmt.Errorf("price must not be negative")
	}
	metadata, err := jsoniter.MarshalToString(req.Metadata)
	if err != nil {
		return Receipt{}, err
	}

	id := NewResourceID(l.signer.From)
	tx, err := l.transact(ctx, nil, "createResource", [32]byte(id), new(big.Int).SetUint64(req.Capacity), ToBaseUnits(req.Price), metadata)
	if err != nil {
		return Receipt{}, err
	}

	txRef := tx.Hash().Hex()
	l.watcher.Watch(txRef, OpCreate)
	log.Info().Str("resource", id.Hex()).Str("tx", txRef).Uint64("capacity", req.Capacity).Msg("Ticketed resource creation sent...")
	return Receipt{ResourceID: id.Hex(), TxRef: txRef}, nil
}

func (l *EthLedger) GetTicketBalance(ctx context.Context, resourceID string, holder string) (uint64, error) {
	id, err := ParseResourceID(resourceID)
	if err != nil {
		return 0, err
	}
	if !common.IsHexAddress(holder) {
		return 0, fmt.Errorf("invalid holder address %q", holder)
	}
	out, err := l.call(ctx, "balanceOf", [32]byte(id), common.HexToAddress(holder))
	if err != nil {
		return 0, err
	}
	if !out.IsUint64() {
		return 0, fmt.Errorf("balance of %s overflows", resourceID)
	}
	return out.Uint64(), nil
}

func (l *EthLedger) Purchase(ctx context.Context, resourceID string, quantity uint64) (string, error) {
	id, err := ParseResourceID(resourceID)
	if err != nil {
		return "", err
	}
	if quantity == 0 {
		return "", fmt.Errorf("quantity must be positive")
	}
	price, err := l.call(ctx, "priceOf", [32]byte(id))
	if err != nil {
		return "", err
	}
	amount := new(big.Int).SetUint64(quantity)
	value := new(big.Int).Mul(price, amount)

	tx, err := l.transact(ctx, value, "purchase", [32]byte(id), amount)
	if err != nil {
		return "", err
	}
	txRef := tx.Hash().Hex()
	l.watcher.Watch(txRef, OpPurchase)
	return txRef, nil
}

func (l *EthLedger) Cancel(ctx context.Context, resourceID string) (string, error) {
	id, err := ParseResourceID(resourceID)
	if err != nil {
		return "", err
	}
	tx, err := l.transact(ctx, nil, "cancel", [32]byte(id))
	if err != nil {
		return "", err
	}
	txRef := tx.Hash().Hex()
	l.watcher.Watch(txRef, OpCancel)
	return txRef, nil
}

func (l *EthLedger) transact(ctx context.Context, value *big.Int, method string, params ...any) (*types.Transaction, error) {
	l.sendLock.Lock()
	defer l.sendLock.Unlock()

	opts := *l.signer
	opts.Context = ctx
	opts.Value = value
	tx, err := l.contract.Transact(&opts, method, params...)
	if err != nil {
		return nil, fmt.Errorf("unable to send %s: %v", method, err)
	}
	return tx, nil
}

func (l *EthLedger) call(ctx context.Context, method string, params ...any) (*big.Int, error) {
	var out []any
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, fmt.Errorf("unable to call %s: %v", method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unexpected %s result", method)
	}
	val, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s result type %T", method, out[0])
	}
	return val, nil
}

// NewResourceID derives a fresh resource id scoped to the creating account.
func NewResourceID(creator common.Address) common.Hash {
	salt := uuid.New()
	return crypto.Keccak256Hash(creator.Bytes(), salt[:])
}

func ParseResourceID(in string) (common.Hash, error) {
	raw := strings.TrimPrefix(strings.ToLower(in), "0x")
	if len(raw) != 64 {
		return common.Hash{}, fmt.Errorf("%w: %q", ErrUnknownTicket, in)
	}
	for _, ch := range raw {
		if !strings.ContainsRune("0123456789abcdef", ch) {
			return common.Hash{}, fmt.Errorf("%w: %q", ErrUnknownTicket, in)
		}
	}
	return common.HexToHash(raw), nil
}

func ToBaseUnits(price decimal.Decimal) *big.Int {
	return price.Shift(priceDecimals).BigInt()
}

func FromBaseUnits(in *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(in, -priceDecimals)
}
