package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, "campus_timetable", cfg.Database.Name)
	assert.True(t, cfg.Database.RunMigrations)
	assert.False(t, cfg.Timetable.CacheEnabled)
	assert.Equal(t, 5*time.Minute, cfg.Timetable.CacheTTL)
	assert.Equal(t, 1, cfg.Audit.Workers)
	assert.Equal(t, time.Second, cfg.Audit.RetryDelay)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("TIMETABLE_CACHE_TTL", "90s")
	v.Set("AUDIT_RETRY_DELAY", "not-a-duration")
	v.Set("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg := fromViper(v)

	assert.Equal(t, 90*time.Second, cfg.Timetable.CacheTTL)
	assert.Equal(t, time.Second, cfg.Audit.RetryDelay)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}
