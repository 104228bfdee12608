package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/luxeledger/inventory-backend/pkg/db/models"
	"github.com/luxeledger/inventory-backend/pkg/enums"
)

const (
	// SentinelUID is reserved for genesis records.
	SentinelUID  uint64 = 0
	sentinelMark        = "genesis"
)

// Block is one immutable inventory record. NextUID points at the record that was
// the brand's head when this one was appended; HasNext is false at the chain tail.
type Block struct {
	UID           uint64
	Brand         string
	ItemName      string
	Price         int64
	Status        enums.ItemStatus
	CreatedAt     time.Time
	NextUID       uint64
	HasNext       bool
	Supersedes    uint64
	HasSupersedes bool
	CustomerEmail string
	ReservedUntil *time.Time
	PrevHash      string
	Hash          string

	position int64
}

// IsSentinel reports whether the block is a structural placeholder that callers never see.
func (b Block) IsSentinel() bool {
	return b.UID == SentinelUID || IsSentinelBrand(b.Brand)
}

// IsSentinelBrand reports whether brand carries the genesis marker.
func IsSentinelBrand(brand string) bool {
	return strings.Contains(strings.ToLower(brand), sentinelMark)
}

type hashInput struct {
	UID           uint64  `json:"uid"`
	Brand         string  `json:"brand"`
	ItemName      string  `json:"item_name"`
	Price         int64   `json:"price"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"created_at"`
	Next          *uint64 `json:"next"`
	Supersedes    *uint64 `json:"supersedes"`
	CustomerEmail string  `json:"customer_email"`
	ReservedUntil string  `json:"reserved_until"`
	PrevHash      string  `json:"prev_hash"`
}

// ComputeHash returns the SHA-256 digest over the block content and PrevHash.
func (b Block) ComputeHash() string {
	in := hashInput{
		UID:           b.UID,
		Brand:         b.Brand,
		ItemName:      b.ItemName,
		Price:         b.Price,
		Status:        string(b.Status),
		CreatedAt:     b.CreatedAt.UTC().Format(time.RFC3339Nano),
		CustomerEmail: b.CustomerEmail,
		PrevHash:      b.PrevHash,
	}
	if b.HasNext {
		next := b.NextUID
		in.Next = &next
	}
	if b.HasSupersedes {
		sup := b.Supersedes
		in.Supersedes = &sup
	}
	if b.ReservedUntil != nil {
		in.ReservedUntil = b.ReservedUntil.UTC().Format(time.RFC3339Nano)
	}
	payload, _ := json.Marshal(in)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// normalizeTime drops precision Postgres cannot store so hashes survive a round trip.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func (b Block) toModel() *models.Block {
	m := &models.Block{
		UID:        b.UID,
		Position:   b.position,
		Brand:      b.Brand,
		ItemName:   b.ItemName,
		PriceCents: b.Price,
		Status:     b.Status,
		PrevHash:   b.PrevHash,
		Hash:       b.Hash,
		CreatedAt:  b.CreatedAt,
	}
	if b.HasNext {
		next := b.NextUID
		m.NextUID = &next
	}
	if b.HasSupersedes {
		sup := b.Supersedes
		m.Supersedes = &sup
	}
	if b.CustomerEmail != "" {
		email := b.CustomerEmail
		m.CustomerEmail = &email
	}
	if b.ReservedUntil != nil {
		until := *b.ReservedUntil
		m.ReservedUntil = &until
	}
	return m
}

func blockFromModel(m models.Block) Block {
	b := Block{
		UID:       m.UID,
		Brand:     m.Brand,
		ItemName:  m.ItemName,
		Price:     m.PriceCents,
		Status:    m.Status,
		CreatedAt: normalizeTime(m.CreatedAt),
		PrevHash:  m.PrevHash,
		Hash:      m.Hash,
		position:  m.Position,
	}
	if m.NextUID != nil {
		b.NextUID, b.HasNext = *m.NextUID, true
	}
	if m.Supersedes != nil {
		b.Supersedes, b.HasSupersedes = *m.Supersedes, true
	}
	if m.CustomerEmail != nil {
		b.CustomerEmail = *m.CustomerEmail
	}
	if m.ReservedUntil != nil {
		until := normalizeTime(*m.ReservedUntil)
		b.ReservedUntil = &until
	}
	return b
}
