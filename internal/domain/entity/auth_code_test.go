package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAuthCodeIsUsed(t *testing.T) {
	used := true
	notUsed := false

	assert.False(t, (&AuthCode{Used: nil}).IsUsed(), "NULL counts as not used")
	assert.False(t, (&AuthCode{Used: &notUsed}).IsUsed())
	assert.True(t, (&AuthCode{Used: &used}).IsUsed())
}

func TestAuthCodeIsExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, (&AuthCode{ExpiresAt: now.Add(time.Second)}).IsExpired(now))
	assert.True(t, (&AuthCode{ExpiresAt: now}).IsExpired(now), "expiry instant itself is expired")
	assert.True(t, (&AuthCode{ExpiresAt: now.Add(-time.Second)}).IsExpired(now))
}

func TestAuthCodeIsLive(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	used := true

	assert.True(t, (&AuthCode{ExpiresAt: now.Add(time.Minute)}).IsLive(now))
	assert.False(t, (&AuthCode{ExpiresAt: now.Add(time.Minute), Used: &used}).IsLive(now))
	assert.False(t, (&AuthCode{ExpiresAt: now.Add(-time.Minute)}).IsLive(now))
}
