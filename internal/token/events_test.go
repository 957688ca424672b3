package token

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transferLog(tokenID int64) *types.Log {
	return &types.Log{
		Topics: []common.Hash{
			TransferEventSignature,
			common.Hash{},
			common.BytesToHash(common.HexToAddress("0x00000000000000000000000000000000000000b1").Bytes()),
			common.BigToHash(big.NewInt(tokenID)),
		},
	}
}

func TestTransferSignatureMatchesABI(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(TrustifyABI))
	require.NoError(t, err)
	assert.Equal(t, parsed.Events["Transfer"].ID, TransferEventSignature)
	assert.Equal(t, "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef", TransferEventSignature.Hex())
}

func TestExtractTokenID(t *testing.T) {
	receipt := &types.Receipt{Logs: []*types.Log{
		{Topics: []common.Hash{common.HexToHash("0x01")}},
		transferLog(42),
	}}

	res := ExtractTokenID(receipt)
	assert.True(t, res.Found())
	assert.Equal(t, "42", res.TokenID)
}

func TestExtractTokenIDFirstMatchWins(t *testing.T) {
	receipt := &types.Receipt{Logs: []*types.Log{transferLog(7), transferLog(8)}}
	assert.Equal(t, "7", ExtractTokenID(receipt).TokenID)
}

func TestExtractTokenIDLargeValue(t *testing.T) {
	l := transferLog(0)
	l.Topics[3] = common.HexToHash("0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	res := ExtractTokenID(&types.Receipt{Logs: []*types.Log{l}})
	assert.Equal(t, "115792089237316195423570985008687907853269984665640564039457584007913129639935", res.TokenID)
}

func TestExtractTokenIDNoTransfer(t *testing.T) {
	receipt := &types.Receipt{Logs: []*types.Log{
		nil,
		{},
		{Topics: []common.Hash{common.HexToHash("0x01"), common.HexToHash("0x02")}},
	}}

	res := ExtractTokenID(receipt)
	assert.False(t, res.Found())
	assert.Equal(t, UnknownTokenID, res.TokenID)
	assert.ErrorIs(t, res.Reason, ErrTransferNotFound)
}

func TestExtractTokenIDMalformedTransfer(t *testing.T) {
	// ERC-20 style Transfer with the amount in data rather than a topic
	l := transferLog(1)
	l.Topics = l.Topics[:3]

	res := ExtractTokenID(&types.Receipt{Logs: []*types.Log{l}})
	assert.Equal(t, UnknownTokenID, res.TokenID)
	assert.ErrorIs(t, res.Reason, ErrMalformedTransfer)
}

func TestExtractTokenIDNilReceipt(t *testing.T) {
	res := ExtractTokenID(nil)
	assert.Equal(t, UnknownTokenID, res.TokenID)
	assert.ErrorIs(t, res.Reason, ErrTransferNotFound)
}
