package datasource

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-schema/pkg/apperrors"
)

// DatasourceAdapterFactory opens datasources from the registry.
type DatasourceAdapterFactory interface {
	// Open connects to a datasource of the given type.
	Open(ctx context.Context, dsType string, config map[string]any) (Datasource, error)

	// ListTypes returns info for all registered adapter types.
	ListTypes() []DatasourceAdapterInfo
}

type registryFactory struct {
	logger *zap.Logger
}

// NewDatasourceAdapterFactory returns a factory that uses the global registry.
func NewDatasourceAdapterFactory(logger *zap.Logger) DatasourceAdapterFactory {
	return &registryFactory{
		logger: logger.Named("datasource"),
	}
}

func (f *registryFactory) Open(ctx context.Context, dsType string, config map[string]any) (Datasource, error) {
	factory := GetFactory(dsType)
	if factory == nil {
		return nil, fmt.Errorf("%w: %s (not compiled in)", apperrors.ErrUnsupportedDialect, dsType)
	}
	ds, err := factory(ctx, config, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s datasource: %w", dsType, err)
	}
	return ds, nil
}

func (f *registryFactory) ListTypes() []DatasourceAdapterInfo {
	return RegisteredAdapters()
}

// Ensure registryFactory implements DatasourceAdapterFactory at compile time.
var _ DatasourceAdapterFactory = (*registryFactory)(nil)
