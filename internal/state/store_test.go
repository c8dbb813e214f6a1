package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterCamera(t *testing.T) {
	s := New()

	assert.True(t, s.RegisterCamera("cam-2"))
	assert.True(t, s.RegisterCamera("cam-1"))
	assert.False(t, s.RegisterCamera("cam-1"))

	assert.Equal(t, []string{"cam-1", "cam-2"}, s.Snapshot().Cameras)
}

func TestMergeCameras(t *testing.T) {
	s := New()
	s.RegisterCamera("live")

	assert.Equal(t, 2, s.MergeCameras([]string{"a", "", "b", "live"}))

	assert.Equal(t, []string{"a", "b", "live"}, s.Snapshot().Cameras)
}

func TestSetLocation(t *testing.T) {
	s := New()
	_, ok := s.Location()
	assert.False(t, ok)

	require.NoError(t, s.SetLocation(Location{Lat: 12.97, Lon: 77.59, Name: "Bengaluru"}))
	loc, ok := s.Location()
	require.True(t, ok)
	assert.Equal(t, "Bengaluru", loc.String())

	assert.Error(t, s.SetLocation(Location{Lat: 120, Lon: 0}))
	loc, _ = s.Location()
	assert.Equal(t, 12.97, loc.Lat)

	s.ClearLocation()
	_, ok = s.Location()
	assert.False(t, ok)
}

func TestSnapshotIsCopy(t *testing.T) {
	s := New()
	require.NoError(t, s.SetLocation(Location{Lat: 1, Lon: 2}))
	s.RegisterCamera("cam")

	snap := s.Snapshot()
	snap.Location.Lat = 50
	snap.Cameras[0] = "mutated"

	loc, _ := s.Location()
	assert.Equal(t, 1.0, loc.Lat)
	assert.Equal(t, []string{"cam"}, s.Snapshot().Cameras)
}

func TestObservers(t *testing.T) {
	s := New()
	var seen []string
	s.Subscribe(func(snap Snapshot) { seen = append(seen, snap.Connection.Status) })

	s.SetConnection(Connection{Status: "connecting"})
	s.SetConnection(Connection{Status: "connected"})
	s.Close()
	s.SetConnection(Connection{Status: "failed"})

	assert.Equal(t, []string{"connecting", "connected"}, seen)
	assert.Equal(t, "connected", s.Snapshot().Connection.Status)
}

func TestLocationStringFallsBackToCoordinates(t *testing.T) {
	loc := Location{Lat: 20.5937, Lon: 78.9629}
	assert.Equal(t, "20.5937, 78.9629", loc.String())
}
