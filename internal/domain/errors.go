package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrMarketUnresolved = errors.New("market identifier unresolved")
	ErrInvalidPrices    = errors.New("invalid price vector")
	ErrMarketResolved   = errors.New("market already resolved")
	ErrInvalidExitRules = errors.New("stop loss must be below take profit")
	ErrWSDisconnect     = errors.New("websocket disconnected")
)
