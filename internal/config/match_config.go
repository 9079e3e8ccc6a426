package config

import "time"

const (
	// DevJWTSecret is the development default; production refuses to start with it.
	DevJWTSecret = "dev-secret-change-me"

	// Queue
	DefaultQueueTTL = 300 * time.Second

	// Room
	DefaultHandshakeTimeout = 45 * time.Second
	RoomCapacity            = 2

	// Transport
	WriteWait      = 10 * time.Second
	PongWait       = 60 * time.Second
	PingPeriod     = (PongWait * 9) / 10
	MaxMessageSize = 64 * 1024
)
