package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseClassification(t *testing.T) {
	c, ok := ParseClassification(" vip ")
	assert.True(t, ok)
	assert.Equal(t, ClassificationVIP, c)

	_, ok = ParseClassification("gold")
	assert.False(t, ok)
}

func TestConfigMissingErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("channel: revoke: %w", MissingConfig("CLUB_CHANNEL_ID"))
	assert.True(t, errors.Is(err, ErrConfigMissing))

	var cfgErr *ConfigMissingError
	assert.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "CLUB_CHANNEL_ID", cfgErr.Setting)
	assert.Contains(t, err.Error(), "CLUB_CHANNEL_ID")
}

func TestScratchCloneDoesNotShareSlice(t *testing.T) {
	s := Scratch{PainPoints: []string{"хаос"}}
	c := s.Clone()
	c.PainPoints[0] = "changed"
	assert.Equal(t, "хаос", s.PainPoints[0])
}

func TestLeadDisplayName(t *testing.T) {
	assert.Equal(t, "Ann Lee", Lead{FirstName: "Ann", LastName: "Lee"}.DisplayName())
	assert.Equal(t, "@ann", Lead{Username: "ann"}.DisplayName())
}

func TestSubscriptionStatusEntitled(t *testing.T) {
	assert.True(t, SubscriptionActive.Entitled())
	assert.True(t, SubscriptionPastDue.Entitled())
	assert.False(t, SubscriptionCanceled.Entitled())
	assert.False(t, SubscriptionIncomplete.Entitled())
}
