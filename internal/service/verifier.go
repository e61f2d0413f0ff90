package service

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dexgrad/internal/chain"
	"dexgrad/internal/config"
	"dexgrad/internal/models"
	"dexgrad/pkg/crypto"
	"dexgrad/pkg/utils"
)

// TransferEventTopic - topic0 события ERC-20 Transfer(address,address,uint256)
var TransferEventTopic = crypto.EventTopic("Transfer(address,address,uint256)")

// VerificationResult - подтвержденный платеж
type VerificationResult struct {
	TxHash          string
	Chain           models.Chain
	From            string   // адрес отправителя (lowercase)
	Amount          *big.Int // сумма подходящих переводов в минимальных единицах
	FormattedAmount string   // сумма в целых токенах для ответа
	Transfers       int
}

// transfer - декодированный ERC-20 перевод
type transfer struct {
	from   string
	to     string
	amount *big.Int
}

// Verifier проверяет платеж градуации в сети
//
// Только чтение: ничего не записывает и может вызываться повторно
// с тем же результатом для той же транзакции.
type Verifier struct {
	client   ChainClient
	chains   map[models.Chain]config.ChainConfig
	decimals int32
	timeout  time.Duration
	log      *utils.Logger
}

// NewVerifier создает верификатор
func NewVerifier(client ChainClient, chains map[models.Chain]config.ChainConfig, tokenDecimals int32, rpcTimeout time.Duration) *Verifier {
	if rpcTimeout <= 0 {
		rpcTimeout = 10 * time.Second
	}
	return &Verifier{
		client:   client,
		chains:   chains,
		decimals: tokenDecimals,
		timeout:  rpcTimeout,
		log:      utils.L().WithComponent("verifier"),
	}
}

// Verify проверяет, что txHash - успешный перевод токена на адрес получателя
// от expectedSender на сумму не меньше requiredAmount
//
// Порядок проверок: формат хеша, сеть, конфигурация сети, RPC, статус,
// переводы на получателя, отправитель, сумма.
func (v *Verifier) Verify(ctx context.Context, txHash string, c models.Chain, expectedSender string, requiredAmount *big.Int) (*VerificationResult, error) {
	if err := utils.ValidateTxHash(txHash); err != nil {
		return nil, newError(CodeInvalidTxHash, err)
	}
	txHash = utils.NormalizeTxHash(txHash)

	c, ok := models.ParseChain(string(c))
	if !ok {
		return nil, newErrorf(CodeChainNotSupported, nil, "Chain %q is not supported", c)
	}

	cc, ok := v.chains[c]
	if !ok || !cc.Configured() {
		v.log.Error("graduation receiver or token not configured",
			utils.Chain(c.String()),
			utils.Code(string(CodeConfigurationError)),
		)
		return nil, newError(CodeConfigurationError, nil)
	}

	receipt, err := v.fetchReceipt(ctx, c, txHash)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, newError(CodeTransactionNotFound, nil)
	}
	if !receipt.Succeeded() {
		return nil, newError(CodeTransactionFailed, nil)
	}

	token := utils.NormalizeAddress(cc.TokenAddress)
	receiver := utils.NormalizeAddress(cc.ReceiverAddress)
	sender := utils.NormalizeAddress(expectedSender)

	var toReceiver []transfer
	for _, lg := range receipt.Logs {
		if utils.NormalizeAddress(lg.Address) != token {
			continue
		}
		t, ok := decodeTransfer(lg)
		if !ok || t.to != receiver {
			continue
		}
		toReceiver = append(toReceiver, t)
	}
	if len(toReceiver) == 0 {
		return nil, newError(CodeNoTransfersFound, nil)
	}

	total := new(big.Int)
	var matched int
	for _, t := range toReceiver {
		if t.from != sender {
			continue
		}
		total.Add(total, t.amount)
		matched++
	}
	if matched == 0 {
		return nil, newError(CodeWrongSender, nil)
	}

	if total.Cmp(requiredAmount) < 0 {
		return nil, newErrorf(CodeInsufficientAmount, nil,
			"Transferred %s, required %s",
			v.format(total), v.format(requiredAmount))
	}

	return &VerificationResult{
		TxHash:          txHash,
		Chain:           c,
		From:            sender,
		Amount:          total,
		FormattedAmount: v.format(total),
		Transfers:       matched,
	}, nil
}

// fetchReceipt читает receipt с собственным таймаутом
//
// Таймаут и сбой узла - RPC_UNAVAILABLE, а не TRANSACTION_NOT_FOUND.
func (v *Verifier) fetchReceipt(ctx context.Context, c models.Chain, txHash string) (*chain.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	start := time.Now()
	receipt, err := v.client.TransactionReceipt(ctx, c, txHash)
	RPCLatency.WithLabelValues(c.String()).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, chain.ErrEndpointNotConfigured) {
			v.log.Error("rpc endpoint not configured", utils.Chain(c.String()))
			return nil, newError(CodeConfigurationError, err)
		}
		v.log.Warn("rpc call failed",
			utils.Chain(c.String()),
			utils.TxHash(txHash),
			utils.Latency(time.Since(start)),
			utils.Err(err),
		)
		return nil, newError(CodeRPCUnavailable, err)
	}
	return receipt, nil
}

// format переводит минимальные единицы в целые токены
func (v *Verifier) format(amount *big.Int) string {
	return decimal.NewFromBigInt(amount, -v.decimals).String()
}

// decodeTransfer разбирает лог ERC-20 Transfer
//
// topics: [topic0, from, to] (адреса дополнены до 32 байт), data: uint256.
func decodeTransfer(lg chain.Log) (transfer, bool) {
	if len(lg.Topics) != 3 || !strings.EqualFold(lg.Topics[0], TransferEventTopic) {
		return transfer{}, false
	}
	from, ok := topicAddress(lg.Topics[1])
	if !ok {
		return transfer{}, false
	}
	to, ok := topicAddress(lg.Topics[2])
	if !ok {
		return transfer{}, false
	}

	data := strings.TrimPrefix(strings.ToLower(lg.Data), "0x")
	if len(data) == 0 || len(data) > 64 {
		return transfer{}, false
	}
	amount, ok := new(big.Int).SetString(data, 16)
	if !ok {
		return transfer{}, false
	}
	return transfer{from: from, to: to, amount: amount}, true
}

// topicAddress извлекает адрес из 32-байтного topic
func topicAddress(topic string) (string, bool) {
	t := strings.TrimPrefix(strings.ToLower(topic), "0x")
	// Адрес занимает младшие 20 байт, старшие 12 должны быть нулевыми
	if len(t) != 64 || strings.Trim(t[:24], "0") != "" {
		return "", false
	}
	addr := "0x" + t[24:]
	if utils.ValidateEVMAddress(addr) != nil {
		return "", false
	}
	return addr, true
}
