package datasource

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-schema/pkg/apperrors"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	Register(DatasourceAdapterRegistration{
		Info: DatasourceAdapterInfo{Type: "fake_test", DisplayName: "Fake"},
		Factory: func(ctx context.Context, config map[string]any, logger *zap.Logger) (Datasource, error) {
			return newFakeDatasource(), nil
		},
	})

	assert.True(t, IsRegistered("fake_test"))
	assert.False(t, IsRegistered("nope"))
	assert.NotNil(t, GetFactory("fake_test"))
	assert.Nil(t, GetFactory("nope"))

	var found bool
	for _, info := range RegisteredAdapters() {
		if info.Type == "fake_test" {
			found = true
			assert.Equal(t, "Fake", info.DisplayName)
		}
	}
	assert.True(t, found)
}

func TestFactory_Open(t *testing.T) {
	Register(DatasourceAdapterRegistration{
		Info: DatasourceAdapterInfo{Type: "fake_open"},
		Factory: func(ctx context.Context, config map[string]any, logger *zap.Logger) (Datasource, error) {
			if config["fail"] == true {
				return nil, errors.New("boom")
			}
			return newFakeDatasource(), nil
		},
	})
	f := NewDatasourceAdapterFactory(zap.NewNop())

	ds, err := f.Open(context.Background(), "fake_open", map[string]any{})
	require.NoError(t, err)
	assert.NotNil(t, ds)

	_, err = f.Open(context.Background(), "fake_open", map[string]any{"fail": true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	_, err = f.Open(context.Background(), "oracle", nil)
	assert.True(t, errors.Is(err, apperrors.ErrUnsupportedDialect))
}
