// services/evm_reward_client.go
package services

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// RewardContractABI covers the single method the service calls:
//
//	function gradeSubmission(address student, bool approved) external;
const RewardContractABI = `[
	{
		"type": "function",
		"name": "gradeSubmission",
		"inputs": [
			{"name": "student", "type": "address"},
			{"name": "approved", "type": "bool"}
		],
		"outputs": [],
		"stateMutability": "nonpayable"
	}
]`

type EVMRewardConfig struct {
	RPCURL         string
	ChainID        int64
	Contract       string
	PrivateKey     string
	GasLimit       uint64
	WaitForReceipt bool
}

func (c EVMRewardConfig) validate() error {
	if c.ChainID <= 0 {
		return errors.New("evm reward: chain id must be positive")
	}
	if !common.IsHexAddress(c.Contract) {
		return fmt.Errorf("evm reward: invalid contract address %q", c.Contract)
	}
	if c.PrivateKey == "" {
		return errors.New("evm reward: private key is required")
	}
	return nil
}

// EVMBackend is what the distributor needs from a node connection; *ethclient.Client satisfies it
type EVMBackend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// EVMRewardDistributor signs and sends gradeSubmission transactions itself
type EVMRewardDistributor struct {
	backend   EVMBackend
	contract  *bind.BoundContract
	key       *ecdsa.PrivateKey
	chainID   *big.Int
	gasLimit  uint64
	waitMined bool
	log       *zap.Logger
}

// DialEVMRewardDistributor connects to cfg.RPCURL and builds a distributor on it
func DialEVMRewardDistributor(ctx context.Context, cfg EVMRewardConfig, log *zap.Logger) (*EVMRewardDistributor, *ethclient.Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial evm rpc: %w", err)
	}
	d, err := NewEVMRewardDistributor(cfg, client, log)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return d, client, nil
}

func NewEVMRewardDistributor(cfg EVMRewardConfig, backend EVMBackend, log *zap.Logger) (*EVMRewardDistributor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("evm reward: parse private key: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(RewardContractABI))
	if err != nil {
		return nil, fmt.Errorf("evm reward: parse abi: %w", err)
	}

	address := common.HexToAddress(cfg.Contract)
	return &EVMRewardDistributor{
		backend:   backend,
		contract:  bind.NewBoundContract(address, parsed, backend, backend, backend),
		key:       key,
		chainID:   big.NewInt(cfg.ChainID),
		gasLimit:  cfg.GasLimit,
		waitMined: cfg.WaitForReceipt,
		log:       log.Named("reward_evm"),
	}, nil
}

// Sender is the account paying for reward transactions
func (d *EVMRewardDistributor) Sender() common.Address {
	return crypto.PubkeyToAddress(d.key.PublicKey)
}

func (d *EVMRewardDistributor) DistributeReward(ctx context.Context, wallet string, approve bool) (DistributionResult, error) {
	if !common.IsHexAddress(wallet) {
		return DistributionResult{Success: false, Error: fmt.Sprintf("invalid wallet address %q", wallet)}, nil
	}

	opts, err := bind.NewKeyedTransactorWithChainID(d.key, d.chainID)
	if err != nil {
		return DistributionResult{}, fmt.Errorf("build transactor: %w", err)
	}
	opts.Context = ctx
	opts.GasLimit = d.gasLimit

	tx, err := d.contract.Transact(opts, "gradeSubmission", common.HexToAddress(wallet), approve)
	if err != nil {
		return DistributionResult{Success: false, Error: err.Error()}, nil
	}

	txID := tx.Hash().Hex()
	if !d.waitMined {
		return DistributionResult{Success: true, TxID: txID}, nil
	}

	receipt, err := bind.WaitMined(ctx, d.backend, tx)
	if err != nil {
		// broadcast already happened; report it so the claim is recorded rather than retried
		d.log.Warn("reward transaction sent but receipt not observed",
			zap.String("wallet", wallet),
			zap.String("tx_hash", txID),
			zap.Error(err),
		)
		return DistributionResult{Success: true, TxID: txID}, nil
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return DistributionResult{Success: false, Error: fmt.Sprintf("transaction %s reverted", txID)}, nil
	}
	return DistributionResult{Success: true, TxID: txID}, nil
}
