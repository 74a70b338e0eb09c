package fetcher

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Aave V3 Pool.getReserveData returns the ReserveData struct. Every field is
// statically sized, so the tuple encodes identically to flat outputs and the
// supply rate can be unpacked positionally.
const aaveV3PoolABIJSON = `[{"inputs":[{"internalType":"address","name":"asset","type":"address"}],"name":"getReserveData","outputs":[{"internalType":"uint256","name":"configuration","type":"uint256"},{"internalType":"uint128","name":"liquidityIndex","type":"uint128"},{"internalType":"uint128","name":"currentLiquidityRate","type":"uint128"},{"internalType":"uint128","name":"variableBorrowIndex","type":"uint128"},{"internalType":"uint128","name":"currentVariableBorrowRate","type":"uint128"},{"internalType":"uint128","name":"currentStableBorrowRate","type":"uint128"},{"internalType":"uint40","name":"lastUpdateTimestamp","type":"uint40"},{"internalType":"uint16","name":"id","type":"uint16"},{"internalType":"address","name":"aTokenAddress","type":"address"},{"internalType":"address","name":"stableDebtTokenAddress","type":"address"},{"internalType":"address","name":"variableDebtTokenAddress","type":"address"},{"internalType":"address","name":"interestRateStrategyAddress","type":"address"},{"internalType":"uint128","name":"accruedToTreasury","type":"uint128"},{"internalType":"uint128","name":"unbacked","type":"uint128"},{"internalType":"uint128","name":"isolationModeTotalDebt","type":"uint128"}],"stateMutability":"view","type":"function"}]`

const liquidityRateIndex = 2

var aaveV3PoolABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(aaveV3PoolABIJSON))
	if err != nil {
		panic("failed to parse Aave V3 Pool ABI: " + err.Error())
	}
	aaveV3PoolABI = parsed
}

// OnchainOptions parameterise the on-chain fetcher.
type OnchainOptions struct {
	RPCURL      string
	PoolAddress string
	Timeout     time.Duration
}

// Onchain reads the live Aave supply rate via Ethereum RPC.
type Onchain struct {
	opts      OnchainOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewOnchain builds a new on-chain supply rate fetcher.
func NewOnchain(opts OnchainOptions, logger zerolog.Logger) *Onchain {
	return &Onchain{opts: opts, logger: logger.With().Str("component", "onchain_fetcher").Logger()}
}

// FetchSupplyRate returns the reserve's current supply APR in percent,
// converted from the ray-scaled (1e27) rate, plus the block number it was
// read at.
func (o *Onchain) FetchSupplyRate(ctx context.Context, asset string) (decimal.Decimal, uint64, error) {
	if o.opts.RPCURL == "" {
		return decimal.Decimal{}, 0, errors.New("ethereum rpc url not configured")
	}
	if o.opts.PoolAddress == "" {
		return decimal.Decimal{}, 0, errors.New("aave pool contract address not configured")
	}
	if !common.IsHexAddress(asset) {
		return decimal.Decimal{}, 0, errors.New("asset address is not a valid hex address")
	}

	timeout := o.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := o.getClient(ctx)
	if err != nil {
		return decimal.Decimal{}, 0, err
	}

	poolAddr := common.HexToAddress(o.opts.PoolAddress)

	payload, err := aaveV3PoolABI.Pack("getReserveData", common.HexToAddress(asset))
	if err != nil {
		return decimal.Decimal{}, 0, err
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &poolAddr, Data: payload}, nil)
	if err != nil {
		return decimal.Decimal{}, 0, err
	}

	outputs, err := aaveV3PoolABI.Unpack("getReserveData", res)
	if err != nil {
		return decimal.Decimal{}, 0, err
	}

	if len(outputs) <= liquidityRateIndex {
		return decimal.Decimal{}, 0, errors.New("unexpected getReserveData response")
	}

	rayRate, ok := outputs[liquidityRateIndex].(*big.Int)
	if !ok {
		return decimal.Decimal{}, 0, errors.New("failed to decode currentLiquidityRate")
	}

	aprPct := decimal.NewFromBigInt(rayRate, -27).Mul(decimal.NewFromInt(100))

	blockNumber, err := client.BlockNumber(ctx)
	if err != nil {
		return decimal.Decimal{}, 0, err
	}

	return aprPct, blockNumber, nil
}

func (o *Onchain) getClient(ctx context.Context) (*ethclient.Client, error) {
	o.clientMux.Lock()
	defer o.clientMux.Unlock()

	if o.client != nil {
		return o.client, nil
	}

	client, err := ethclient.DialContext(ctx, o.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	o.client = client
	return client, nil
}

var _ SupplyRateFetcher = (*Onchain)(nil)
