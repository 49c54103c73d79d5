package model

import "time"

// PeerRecord is one remote instance seen through a beacon or manual entry.
type PeerRecord struct {
	Address    string    `json:"address"`
	Port       int       `json:"port"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// ServerSet maps a peer address to its control-channel port.
type ServerSet map[string]int
