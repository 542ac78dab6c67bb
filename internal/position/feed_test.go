package position

import (
	"testing"
	"time"

	"ride-engagement/internal/engagement/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedEmptyUntilFirstFix(t *testing.T) {
	f := NewFeed(time.Minute)
	assert.Nil(t, f.Current())

	f.Update(model.Position{Latitude: 40.7128, Longitude: -74.0060})
	pos := f.Current()
	require.NotNil(t, pos)
	assert.Equal(t, 40.7128, pos.Latitude)
	assert.False(t, pos.Timestamp.IsZero(), "missing timestamps are filled in on update")
}

func TestFeedDropsStaleFixes(t *testing.T) {
	f := NewFeed(50 * time.Millisecond)

	f.Update(model.Position{
		Latitude:  40.7128,
		Longitude: -74.0060,
		Timestamp: time.Now().Add(-time.Second),
	})
	assert.Nil(t, f.Current(), "a fix older than maxAge is unusable")

	f.Update(model.Position{Latitude: 40.7129, Longitude: -74.0061, Timestamp: time.Now()})
	require.NotNil(t, f.Current())
}

func TestFeedZeroMaxAgeKeepsEverything(t *testing.T) {
	f := NewFeed(0)
	f.Update(model.Position{
		Latitude:  40.7128,
		Longitude: -74.0060,
		Timestamp: time.Now().Add(-time.Hour),
	})
	require.NotNil(t, f.Current())
}

func TestFeedCurrentReturnsCopy(t *testing.T) {
	f := NewFeed(time.Minute)
	f.Update(model.Position{Latitude: 40.7128, Longitude: -74.0060, Timestamp: time.Now()})

	pos := f.Current()
	pos.Latitude = 0

	assert.Equal(t, 40.7128, f.Current().Latitude)
}
