package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

func TestCacheRepositoryWithoutClientIsDisabled(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	var dest map[string]string
	assert.ErrorIs(t, repo.Get(ctx, "timetable:1", &dest), appErrors.ErrCacheMiss)
	written, err := repo.SetIfNewer(ctx, "timetable:1", 2, map[string]string{"id": "1"}, time.Minute)
	assert.NoError(t, err)
	assert.False(t, written)
	assert.NoError(t, repo.Delete(ctx, "timetable:1"))
	assert.NoError(t, repo.Ping(ctx))
	assert.NoError(t, repo.Close())
}
