package cart

import (
	"context"
	"errors"

	"github.com/spirithubcafe/spirithubcafe-sub004/internal/domain"
	"github.com/spirithubcafe/spirithubcafe-sub004/internal/region"
	"github.com/spirithubcafe/spirithubcafe-sub004/internal/storage"
	"go.uber.org/zap"
)

const migratedFlag = "true"

// MigrateLegacy copies the pre-region cart slot into the slot of the region
// path resolves to, once. The marker slot records that it ran; when the
// marker is present, or storage can't be read, nothing is touched.
func MigrateLegacy(ctx context.Context, s storage.Storage, path string, logger *zap.Logger) {
	_, err := s.Get(ctx, domain.MigrationMarker)
	if err == nil {
		return
	}
	if !errors.Is(err, storage.ErrNotFound) {
		logger.Debug("legacy cart migration skipped", zap.Error(err))
		return
	}

	legacy, err := s.Get(ctx, domain.LegacyCartKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Debug("legacy cart migration skipped", zap.Error(err))
		}
		return
	}

	r := region.FromPath(path)
	if err := s.Set(ctx, domain.CartKey(r), legacy); err != nil {
		logger.Debug("legacy cart copy failed", zap.String("region", string(r)), zap.Error(err))
		return
	}
	if err := s.Set(ctx, domain.MigrationMarker, []byte(migratedFlag)); err != nil {
		logger.Debug("legacy cart marker write failed", zap.Error(err))
		return
	}

	logger.Info("legacy cart migrated", zap.String("region", string(r)))
}
