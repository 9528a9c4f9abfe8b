package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/windingtree/orgid-migrator/internal/domain"
)

// registryABI covers the two destination registry calls the pipeline
// needs: the migrated-identity lookup and the registration write.
const registryABI = `[
	{"name":"getTokenId","type":"function","stateMutability":"view","inputs":[{"name":"orgId","type":"bytes32"}],"outputs":[{"name":"tokenId","type":"uint256"}]},
	{"name":"createOrgIdFor","type":"function","stateMutability":"nonpayable","inputs":[{"name":"orgId","type":"bytes32"},{"name":"orgJsonUri","type":"string"},{"name":"owner","type":"address"},{"name":"dids","type":"string[]"}],"outputs":[]}
]`

// EVMGateway talks to one destination ORGiD registry contract over
// JSON-RPC. Reads go through eth_call; the registration is a signed
// transaction broadcast from the migrator account.
type EVMGateway struct {
	chainID     int64
	contract    common.Address
	client      *ethclient.Client
	abi         abi.ABI
	key         *ecdsa.PrivateKey
	from        common.Address
	callTimeout time.Duration
	logger      *slog.Logger
}

// DialEVM connects a gateway for one allow-listed chain. The migrator key
// signs registration transactions; a nil key yields a read-only gateway.
func DialEVM(cfg Config, key *ecdsa.PrivateKey, callTimeout time.Duration, logger *slog.Logger) (*EVMGateway, error) {
	if !common.IsHexAddress(cfg.ContractHex) {
		return nil, fmt.Errorf("invalid contract address for chain %d: %q", cfg.ChainID, cfg.ContractHex)
	}

	client, err := ethclient.Dial(cfg.ProviderURI)
	if err != nil {
		return nil, fmt.Errorf("failed to dial provider for chain %d: %w", cfg.ChainID, err)
	}

	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry ABI: %w", err)
	}

	gw := &EVMGateway{
		chainID:     cfg.ChainID,
		contract:    common.HexToAddress(cfg.ContractHex),
		client:      client,
		abi:         parsed,
		key:         key,
		callTimeout: callTimeout,
		logger:      logger,
	}
	if key != nil {
		gw.from = crypto.PubkeyToAddress(key.PublicKey)
	}

	logger.Info("Destination chain gateway connected",
		slog.Int64("chain_id", cfg.ChainID),
		slog.String("contract", gw.contract.Hex()),
	)

	return gw, nil
}

// ChainID identifies the destination network.
func (g *EVMGateway) ChainID() int64 {
	return g.chainID
}

// Exists reports whether the identity already has a token on the
// destination registry.
func (g *EVMGateway) Exists(ctx context.Context, orgID common.Hash) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	data, err := g.abi.Pack("getTokenId", orgID)
	if err != nil {
		return false, fmt.Errorf("failed to pack getTokenId: %w", err)
	}

	out, err := g.client.CallContract(ctx, ethereum.CallMsg{To: &g.contract, Data: data}, nil)
	if err != nil {
		return false, domain.NewRetryableError(fmt.Errorf("getTokenId call on chain %d failed: %w", g.chainID, err))
	}

	values, err := g.abi.Unpack("getTokenId", out)
	if err != nil {
		return false, fmt.Errorf("failed to unpack getTokenId result: %w", err)
	}

	tokenID, ok := values[0].(*big.Int)
	if !ok {
		return false, fmt.Errorf("unexpected getTokenId result type %T", values[0])
	}

	return tokenID.Sign() > 0, nil
}

// Register broadcasts createOrgIdFor(orgId, orgJsonUri, owner, []).
func (g *EVMGateway) Register(ctx context.Context, orgID common.Hash, orgJSONURI string, owner common.Address) (common.Hash, error) {
	if g.key == nil {
		return common.Hash{}, fmt.Errorf("chain %d gateway has no migrator key", g.chainID)
	}

	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	data, err := g.abi.Pack("createOrgIdFor", orgID, orgJSONURI, owner, []string{})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack createOrgIdFor: %w", err)
	}

	nonce, err := g.client.PendingNonceAt(ctx, g.from)
	if err != nil {
		return common.Hash{}, domain.NewRetryableError(fmt.Errorf("nonce fetch on chain %d failed: %w", g.chainID, err))
	}

	gasPrice, err := g.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, domain.NewRetryableError(fmt.Errorf("gas price fetch on chain %d failed: %w", g.chainID, err))
	}

	gasLimit, err := g.client.EstimateGas(ctx, ethereum.CallMsg{
		From: g.from,
		To:   &g.contract,
		Data: data,
	})
	if err != nil {
		return common.Hash{}, classifySubmission(err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &g.contract,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(g.chainID)), g.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign registration tx: %w", err)
	}

	if err := g.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, classifySubmission(err)
	}

	g.logger.Info("Registration transaction broadcast",
		slog.Int64("chain_id", g.chainID),
		slog.String("org_id", orgID.Hex()),
		slog.String("tx", signed.Hash().Hex()),
	)

	return signed.Hash(), nil
}

// Close releases the RPC connection.
func (g *EVMGateway) Close() {
	g.client.Close()
}

// classifySubmission sorts a tx submission failure into a definitive
// revert versus a transient network condition.
func classifySubmission(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "revert") {
		return &RevertError{Reason: err.Error()}
	}
	for _, s := range transientReverts {
		if strings.Contains(msg, s) {
			return &RevertError{Reason: err.Error()}
		}
	}
	return domain.NewRetryableError(fmt.Errorf("transaction submission failed: %w", err))
}
