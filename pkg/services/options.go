package services

import (
	"context"
	"time"

	"github.com/ekaya-inc/ekaya-schema/pkg/config"
	"github.com/ekaya-inc/ekaya-schema/pkg/models"
)

// SchemaOptions carries the schema engine settings into service
// constructors.
type SchemaOptions struct {
	DefaultStrategy      models.ConversionStrategy
	RegistryCacheMaxCost int64
	ImportBatchSize      int
	DetectionSampleSize  int
	LockWait             time.Duration
	MigrationRetries     int
}

// DefaultSchemaOptions returns the settings used when nothing is configured.
func DefaultSchemaOptions() SchemaOptions {
	return SchemaOptions{
		DefaultStrategy:      models.StrategyClearInvalid,
		RegistryCacheMaxCost: 1000,
		ImportBatchSize:      500,
		DetectionSampleSize:  100,
		MigrationRetries:     3,
	}
}

// SchemaOptionsFromConfig converts the loaded configuration.
func SchemaOptionsFromConfig(cfg *config.SchemaConfig) SchemaOptions {
	return SchemaOptions{
		DefaultStrategy:      models.ConversionStrategy(cfg.DefaultConversionStrategy),
		RegistryCacheMaxCost: cfg.RegistryCacheMaxCost,
		ImportBatchSize:      cfg.ImportBatchSize,
		DetectionSampleSize:  cfg.DetectionSampleSize,
		LockWait:             time.Duration(cfg.LockWaitMS) * time.Millisecond,
		MigrationRetries:     cfg.MigrationRetries,
	}.withDefaults()
}

func (o SchemaOptions) withDefaults() SchemaOptions {
	d := DefaultSchemaOptions()
	if !o.DefaultStrategy.Valid() {
		o.DefaultStrategy = d.DefaultStrategy
	}
	if o.RegistryCacheMaxCost <= 0 {
		o.RegistryCacheMaxCost = d.RegistryCacheMaxCost
	}
	if o.ImportBatchSize <= 0 {
		o.ImportBatchSize = d.ImportBatchSize
	}
	if o.DetectionSampleSize <= 0 {
		o.DetectionSampleSize = d.DetectionSampleSize
	}
	if o.MigrationRetries < 0 {
		o.MigrationRetries = 0
	}
	return o
}

// MetadataTx runs a function inside one engine metadata transaction.
// *database.DB implements it.
type MetadataTx interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
