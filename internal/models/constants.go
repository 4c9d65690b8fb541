package models

const (
	ProviderPassword = "password"
	ProviderGoogle   = "google"
	ProviderApple    = "apple"
	ProviderGuest    = "guest"
)

const (
	// DefaultPackingCategory is assigned when a packing item has no category.
	DefaultPackingCategory = "general"

	// DefaultLockTTLSeconds время жизни секционной блокировки
	DefaultLockTTLSeconds = 90

	// LockHeartbeatDivisor: heartbeat runs at TTL / divisor
	LockHeartbeatDivisor = 3

	// InviteCodeDigits длина пригласительного кода
	InviteCodeDigits = 6

	// RateLimitRequests количество запросов в окне
	RateLimitRequests = 30

	// RateLimitWindow окно ограничения частоты запросов (секунды)
	RateLimitWindow = 60
)
