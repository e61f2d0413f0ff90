package service

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"dexgrad/internal/chain"
	"dexgrad/internal/models"
)

func newTestVerifier(client ChainClient) *Verifier {
	return NewVerifier(client, testChains(), 6, time.Second)
}

func TestVerifier_Verify(t *testing.T) {
	required := tokens(1000)

	tests := []struct {
		name      string
		txHash    string
		chain     models.Chain
		sender    string
		receipt   *chain.Receipt
		clientErr error
		wantCode  ErrorCode
		wantTotal *big.Int
		wantFmt   string
		noRPC     bool
	}{
		{
			name:     "неверный формат хеша",
			txHash:   "0x1234",
			chain:    models.ChainArbitrum,
			sender:   testSender,
			wantCode: CodeInvalidTxHash,
			noRPC:    true,
		},
		{
			name:     "неподдерживаемая сеть",
			txHash:   testTxHash,
			chain:    "solana",
			sender:   testSender,
			wantCode: CodeChainNotSupported,
			noRPC:    true,
		},
		{
			name:     "сеть без получателя",
			txHash:   testTxHash,
			chain:    models.ChainEthereum,
			sender:   testSender,
			wantCode: CodeConfigurationError,
			noRPC:    true,
		},
		{
			name:      "узел недоступен",
			txHash:    testTxHash,
			chain:     models.ChainArbitrum,
			sender:    testSender,
			clientErr: &chain.UnavailableError{Chain: models.ChainArbitrum, Err: errors.New("connection refused")},
			wantCode:  CodeRPCUnavailable,
		},
		{
			name:      "таймаут узла не считается отсутствием транзакции",
			txHash:    testTxHash,
			chain:     models.ChainArbitrum,
			sender:    testSender,
			clientErr: context.DeadlineExceeded,
			wantCode:  CodeRPCUnavailable,
		},
		{
			name:      "endpoint сети не настроен",
			txHash:    testTxHash,
			chain:     models.ChainArbitrum,
			sender:    testSender,
			clientErr: chain.ErrEndpointNotConfigured,
			wantCode:  CodeConfigurationError,
		},
		{
			name:     "транзакция не найдена",
			txHash:   testTxHash,
			chain:    models.ChainArbitrum,
			sender:   testSender,
			wantCode: CodeTransactionNotFound,
		},
		{
			name:     "транзакция упала",
			txHash:   testTxHash,
			chain:    models.ChainArbitrum,
			sender:   testSender,
			receipt:  &chain.Receipt{Status: "0x0", Logs: []chain.Log{transferLog(testToken, testSender, testReceiver, required)}},
			wantCode: CodeTransactionFailed,
		},
		{
			name:     "перевод не на адрес получателя",
			txHash:   testTxHash,
			chain:    models.ChainArbitrum,
			sender:   testSender,
			receipt:  successReceipt(transferLog(testToken, testSender, testOther, required)),
			wantCode: CodeNoTransfersFound,
		},
		{
			name:     "перевод другого токена",
			txHash:   testTxHash,
			chain:    models.ChainArbitrum,
			sender:   testSender,
			receipt:  successReceipt(transferLog(testOther, testSender, testReceiver, required)),
			wantCode: CodeNoTransfersFound,
		},
		{
			name:     "отправитель не владелец аккаунта",
			txHash:   testTxHash,
			chain:    models.ChainArbitrum,
			sender:   testSender,
			receipt:  successReceipt(transferLog(testToken, testOther, testReceiver, required)),
			wantCode: CodeWrongSender,
		},
		{
			name:     "сумма меньше требуемой",
			txHash:   testTxHash,
			chain:    models.ChainArbitrum,
			sender:   testSender,
			receipt:  successReceipt(transferLog(testToken, testSender, testReceiver, tokens(999))),
			wantCode: CodeInsufficientAmount,
		},
		{
			name:      "ровно требуемая сумма",
			txHash:    testTxHash,
			chain:     models.ChainArbitrum,
			sender:    testSender,
			receipt:   successReceipt(transferLog(testToken, testSender, testReceiver, required)),
			wantTotal: required,
			wantFmt:   "1000",
		},
		{
			name:   "несколько переводов суммируются",
			txHash: testTxHash,
			chain:  models.ChainArbitrum,
			sender: testSender,
			receipt: successReceipt(
				transferLog(testToken, testSender, testReceiver, tokens(600)),
				transferLog(testToken, testSender, testReceiver, tokens(400)),
				transferLog(testToken, testOther, testReceiver, tokens(5000)),
			),
			wantTotal: required,
			wantFmt:   "1000",
		},
		{
			name:      "дробная сумма",
			txHash:    testTxHash,
			chain:     models.ChainArbitrum,
			sender:    testSender,
			receipt:   successReceipt(transferLog(testToken, testSender, testReceiver, big.NewInt(1_000_500_000))),
			wantTotal: big.NewInt(1_000_500_000),
			wantFmt:   "1000.5",
		},
		{
			name:      "регистр адресов и сети не важен",
			txHash:    "0x" + strings.ToUpper(testTxHash[2:]),
			chain:     "ARBITRUM",
			sender:    strings.ToUpper(testSender),
			receipt:   successReceipt(transferLog(strings.ToUpper(testToken), testSender, testReceiver, required)),
			wantTotal: required,
			wantFmt:   "1000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewMockChainClient()
			client.err = tt.clientErr
			if tt.receipt != nil {
				client.receipts[testTxHash] = tt.receipt
			}
			v := newTestVerifier(client)

			res, err := v.Verify(context.Background(), tt.txHash, tt.chain, tt.sender, required)

			if tt.noRPC && client.calls != 0 {
				t.Errorf("RPC вызван %d раз, ожидалось 0", client.calls)
			}
			if tt.wantCode != "" {
				if !IsCode(err, tt.wantCode) {
					t.Fatalf("ожидался код %s, получено %v", tt.wantCode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("неожиданная ошибка: %v", err)
			}
			if res.Amount.Cmp(tt.wantTotal) != 0 {
				t.Errorf("сумма %s, ожидалось %s", res.Amount, tt.wantTotal)
			}
			if res.FormattedAmount != tt.wantFmt {
				t.Errorf("форматированная сумма %q, ожидалось %q", res.FormattedAmount, tt.wantFmt)
			}
			if res.TxHash != testTxHash {
				t.Errorf("хеш не нормализован: %s", res.TxHash)
			}
			if res.From != testSender {
				t.Errorf("отправитель %s, ожидался %s", res.From, testSender)
			}
		})
	}
}

func TestVerifier_VerifyIsRepeatable(t *testing.T) {
	client := NewMockChainClient()
	client.receipts[testTxHash] = successReceipt(transferLog(testToken, testSender, testReceiver, tokens(1000)))
	v := newTestVerifier(client)

	for i := 0; i < 3; i++ {
		if _, err := v.Verify(context.Background(), testTxHash, models.ChainArbitrum, testSender, tokens(1000)); err != nil {
			t.Fatalf("попытка %d: %v", i+1, err)
		}
	}
}

func TestDecodeTransfer(t *testing.T) {
	valid := transferLog(testToken, testSender, testReceiver, big.NewInt(42))

	tests := []struct {
		name string
		log  chain.Log
		ok   bool
	}{
		{name: "валидный Transfer", log: valid, ok: true},
		{
			name: "другое событие",
			log:  chain.Log{Address: testToken, Topics: []string{"0x" + strings.Repeat("1", 64), valid.Topics[1], valid.Topics[2]}, Data: valid.Data},
		},
		{
			name: "ERC-721 Transfer с индексированным tokenId",
			log:  chain.Log{Address: testToken, Topics: append(append([]string{}, valid.Topics...), valid.Topics[1]), Data: "0x"},
		},
		{
			name: "пустые данные",
			log:  chain.Log{Address: testToken, Topics: valid.Topics, Data: "0x"},
		},
		{
			name: "ненулевые старшие байты в topic отправителя",
			log: chain.Log{
				Address: testToken,
				Topics:  []string{TransferEventTopic, "0x" + strings.Repeat("f", 24) + strings.TrimPrefix(testSender, "0x"), valid.Topics[2]},
				Data:    valid.Data,
			},
		},
		{
			name: "ненулевые старшие байты в topic получателя",
			log: chain.Log{
				Address: testToken,
				Topics:  []string{TransferEventTopic, valid.Topics[1], "0x" + strings.Repeat("0", 23) + "1" + strings.TrimPrefix(testReceiver, "0x")},
				Data:    valid.Data,
			},
		},
		{
			name: "короткий topic",
			log:  chain.Log{Address: testToken, Topics: []string{TransferEventTopic, "0x1234", valid.Topics[2]}, Data: valid.Data},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, ok := decodeTransfer(tt.log)
			if ok != tt.ok {
				t.Fatalf("ok = %v, ожидалось %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if tr.from != testSender || tr.to != testReceiver || tr.amount.Int64() != 42 {
				t.Errorf("неверный разбор: %+v", tr)
			}
		})
	}
}
