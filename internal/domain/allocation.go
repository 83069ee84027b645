package domain

import "time"

// AllocationMode selects how a follower's copy size is derived from the
// leader's trade.
type AllocationMode string

const (
	// AllocationModeProportional mirrors the fraction of bankroll the leader
	// risked onto the follower's allocated budget.
	AllocationModeProportional AllocationMode = "proportional"
	// AllocationModeFixed copies a flat dollar amount per leader trade.
	AllocationModeFixed AllocationMode = "fixed_amount"
)

// AllocationType describes how AllocationValue is interpreted when deriving
// the allocated budget from the follower's balance.
type AllocationType string

const (
	AllocationTypePercentage  AllocationType = "percentage"
	AllocationTypeFixedAmount AllocationType = "fixed_amount"
)

// CopyTradingAllocation is a follower's subscription to a leader. One active
// allocation per (UserID, LeaderAddressID) pair is expected; additional rows
// are tolerated and processed independently.
type CopyTradingAllocation struct {
	ID                string
	UserID            string
	LeaderAddressID   string
	Mode              AllocationMode
	AllocationType    AllocationType
	AllocationValue   float64
	FixedAmount       float64
	AllocatedBudget   float64 // derived, refreshed from the follower's live balance
	IsActive          bool
	TotalCopiedTrades int64
	TotalInvested     float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AddressType classifies a watched on-chain address. Only copy leaders drive
// copy-trade execution; smart traders exist for alerting alone.
type AddressType string

const (
	AddressTypeCopyLeader  AddressType = "copy_leader"
	AddressTypeSmartTrader AddressType = "smart_trader"
)

// WatchedAddress is an on-chain address being monitored for trades.
// Address is stored in EIP-55 checksum form.
type WatchedAddress struct {
	ID        string
	Address   string
	Type      AddressType
	Label     string
	IsActive  bool
	CreatedAt time.Time
}
