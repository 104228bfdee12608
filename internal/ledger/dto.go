package ledger

import (
	"time"

	"github.com/luxeledger/inventory-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// AppendRecordRequest is the payload for recording a new inventory block.
// UID is optional; when omitted the next free uid is allocated.
type AppendRecordRequest struct {
	UID      *uint64          `json:"uid,omitempty" validate:"omitempty,gt=0"`
	Brand    string           `json:"brand" validate:"required,max=120"`
	ItemName string           `json:"item_name" validate:"required,max=200"`
	Price    int64            `json:"price" validate:"gte=0"`
	Status   enums.ItemStatus `json:"status" validate:"omitempty,oneof=available reserved sold"`
}

type SellRequest struct {
	CustomerEmail string `json:"customer_email" validate:"required,email"`
}

type ReserveRequest struct {
	ReservedUntil time.Time `json:"reserved_until" validate:"required"`
}

// BlockDTO is the public shape of a block. Price is in minor units; PriceDisplay
// renders it in major units with two decimals.
type BlockDTO struct {
	UID           uint64           `json:"uid"`
	Brand         string           `json:"brand"`
	ItemName      string           `json:"item_name"`
	Price         int64            `json:"price"`
	PriceDisplay  string           `json:"price_display"`
	Status        enums.ItemStatus `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	Next          *uint64          `json:"next,omitempty"`
	Supersedes    *uint64          `json:"supersedes,omitempty"`
	CustomerEmail string           `json:"customer_email,omitempty"`
	ReservedUntil *time.Time       `json:"reserved_until,omitempty"`
	Hash          string           `json:"hash"`
	PrevHash      string           `json:"prev_hash,omitempty"`
}

type VerifyReport struct {
	Valid    bool     `json:"valid"`
	Records  int      `json:"records"`
	Problems []string `json:"problems,omitempty"`
}

// FormatPrice renders minor units as a fixed two-decimal amount.
func FormatPrice(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

func FromBlock(b Block) BlockDTO {
	dto := BlockDTO{
		UID:           b.UID,
		Brand:         b.Brand,
		ItemName:      b.ItemName,
		Price:         b.Price,
		PriceDisplay:  FormatPrice(b.Price),
		Status:        b.Status,
		CreatedAt:     b.CreatedAt,
		CustomerEmail: b.CustomerEmail,
		ReservedUntil: b.ReservedUntil,
		Hash:          b.Hash,
		PrevHash:      b.PrevHash,
	}
	if b.HasNext {
		next := b.NextUID
		dto.Next = &next
	}
	if b.HasSupersedes {
		sup := b.Supersedes
		dto.Supersedes = &sup
	}
	return dto
}

func fromBlocks(blocks []Block) []BlockDTO {
	out := make([]BlockDTO, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, FromBlock(b))
	}
	return out
}
