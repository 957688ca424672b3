package token

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// UnknownTokenID is reported when a mined mint carries no usable Transfer event.
const UnknownTokenID = "unknown"

// TransferEventSignature is topic[0] of Transfer(address,address,uint256).
var TransferEventSignature = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

var (
	ErrTransferNotFound  = errors.New("no Transfer event in receipt logs")
	ErrMalformedTransfer = errors.New("malformed Transfer event")
)

// Extraction is the outcome of reading a token id out of a receipt.
// TokenID is always set; it is UnknownTokenID whenever Reason is non-nil.
type Extraction struct {
	TokenID string
	Reason  error
}

func (e Extraction) Found() bool {
	return e.Reason == nil
}

// ExtractTokenID looks for the first Transfer log and decodes its third indexed argument.
func ExtractTokenID(receipt *types.Receipt) Extraction {
	if receipt == nil {
		return Extraction{TokenID: UnknownTokenID, Reason: ErrTransferNotFound}
	}
	for _, l := range receipt.Logs {
		if l == nil || len(l.Topics) == 0 || l.Topics[0] != TransferEventSignature {
			continue
		}
		if len(l.Topics) < 4 {
			return Extraction{
				TokenID: UnknownTokenID,
				Reason:  fmt.Errorf("%w: expected 4 topics, got %d", ErrMalformedTransfer, len(l.Topics)),
			}
		}
		return Extraction{TokenID: new(big.Int).SetBytes(l.Topics[3].Bytes()).String()}
	}
	return Extraction{TokenID: UnknownTokenID, Reason: ErrTransferNotFound}
}
