package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`database:
  host: localhost
  port: 5432
`))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, 5*time.Minute, cfg.Booking.SlotStep())
	assert.Equal(t, 10*time.Minute, cfg.Booking.ReservationTTL())
	assert.Equal(t, 3, cfg.Booking.MaxCallAttempts)
	assert.Equal(t, "UTC", cfg.Booking.DisplayTimezone)
	assert.False(t, cfg.Booking.StrictReserveLock)
	assert.Equal(t, "host=localhost port=5432 user= password= dbname= sslmode=disable", cfg.Database.DSN())
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("TELECONSULT_DB_PASSWORD", "s3cret")

	cfg, err := Parse([]byte(`database:
  password: ${TELECONSULT_DB_PASSWORD}
booking:
  display_timezone: Europe/London
  strict_reserve_lock: true
`))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.True(t, cfg.Booking.StrictReserveLock)

	loc, err := cfg.Booking.DisplayLocation()
	require.NoError(t, err)
	assert.Equal(t, "Europe/London", loc.String())
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte(`booking:
  slot_minutes: 7
  display_timezone: Nowhere/Special
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slot_minutes")
	assert.Contains(t, err.Error(), "display_timezone")
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  address: \":9090\"\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Address)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
