package ports

import (
	"context"

	"github.com/ObserveRTC/connector-sub000/internal/domain"
)

// Column is a destination column definition.
type Column struct {
	Name     string
	Type     string
	Nullable bool
}

// TableSchema describes the destination table of one record kind.
type TableSchema struct {
	Kind             domain.RecordType
	Name             string
	Columns          []Column
	PrimaryKey       []string
	AutoIncrementKey string
}

// Provisioner prepares a destination before any write.
type Provisioner interface {
	DatabaseExists(ctx context.Context) (bool, error)
	CreateDatabase(ctx context.Context) error
	TableExists(ctx context.Context, table TableSchema) (bool, error)
	CreateTable(ctx context.Context, table TableSchema) error
	DropTable(ctx context.Context, table TableSchema) error
}
