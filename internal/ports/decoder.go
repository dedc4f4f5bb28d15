package ports

import "github.com/ObserveRTC/connector-sub000/internal/domain"

type Decoder interface {
	Decode(frame []byte) (*domain.Record, error)
}
