package rewards

import "errors"

var (
	ErrUnauthorized        = errors.New("caller is not authorized")
	ErrUnknownPool         = errors.New("unknown pool")
	ErrPoolExists          = errors.New("pool already registered")
	ErrUnknownPosition     = errors.New("unknown position")
	ErrNotPositionOwner    = errors.New("caller does not own position")
	ErrLiquidityUnderflow  = errors.New("liquidity delta exceeds available liquidity")
	ErrTimestampRegression = errors.New("sync timestamp precedes last sync")
	ErrInvalidTickRange    = errors.New("invalid tick range")
	ErrTokenNotWhitelisted = errors.New("reward token is not whitelisted")
	ErrTooManyRewardTokens = errors.New("reward token limit reached")
	ErrZeroAmount          = errors.New("amount must be positive")
	ErrOperationInProgress = errors.New("operation in progress")
	ErrInsufficientBalance = errors.New("claim exceeds held reward balance")
	ErrAccrualRegression   = errors.New("position snapshot exceeds range value")
)
