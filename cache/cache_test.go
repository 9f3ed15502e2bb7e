package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	c := New(0)
	defer c.Close()

	c.Put("example.com.", "A", []string{"93.184.216.34"}, time.Second)

	got, ok := c.Get("example.com.", "A")
	require.True(t, ok)
	assert.Equal(t, []string{"93.184.216.34"}, got)
}

func TestGetIsCaseAndTypeInsensitiveToLookupKey(t *testing.T) {
	c := New(0)
	defer c.Close()

	c.Put("Example.COM.", "a", []string{"93.184.216.34"}, time.Minute)

	got, ok := c.Get("example.com.", "A")
	require.True(t, ok)
	assert.Equal(t, []string{"93.184.216.34"}, got)
}

func TestTTLExpiry(t *testing.T) {
	c := New(0)
	defer c.Close()

	c.Put("example.com.", "A", []string{"93.184.216.34"}, 1*time.Second)

	_, ok := c.Get("example.com.", "A")
	require.True(t, ok)

	time.Sleep(1100 * time.Millisecond)

	_, ok = c.Get("example.com.", "A")
	assert.False(t, ok)
}

func TestZeroTTLExpiresImmediately(t *testing.T) {
	c := New(0)
	defer c.Close()

	c.Put("example.com.", "A", []string{"93.184.216.34"}, 0)

	time.Sleep(time.Millisecond)

	_, ok := c.Get("example.com.", "A")
	assert.False(t, ok)
}

func TestTTLIsClampedToCap(t *testing.T) {
	c := New(50 * time.Millisecond)
	defer c.Close()

	c.Put("example.com.", "A", []string{"93.184.216.34"}, time.Hour)

	time.Sleep(100 * time.Millisecond)

	_, ok := c.Get("example.com.", "A")
	assert.False(t, ok, "ttl should have been clamped to the configured cap")
}

func TestPositiveAndNegativeAreMutuallyExclusive(t *testing.T) {
	c := New(0)
	defer c.Close()

	c.Put("example.com.", "A", []string{"93.184.216.34"}, time.Minute)
	assert.False(t, c.IsNegative("example.com.", "A"))

	c.PutNegative("example.com.", "A", time.Minute)
	_, ok := c.Get("example.com.", "A")
	assert.False(t, ok, "negative write should supersede the positive entry")
	assert.True(t, c.IsNegative("example.com.", "A"))

	c.Put("example.com.", "A", []string{"93.184.216.34"}, time.Minute)
	assert.False(t, c.IsNegative("example.com.", "A"), "positive write should supersede the negative entry")
}

func TestDelegationRoundTrip(t *testing.T) {
	c := New(0)
	defer c.Close()

	c.PutDelegation("com.", []string{"192.0.2.1", "192.0.2.2"}, time.Minute)

	got, ok := c.GetDelegation("com.")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"192.0.2.1", "192.0.2.2"}, got)
}

func TestMissReturnsFalse(t *testing.T) {
	c := New(0)
	defer c.Close()

	_, ok := c.Get("nowhere.invalid.", "A")
	assert.False(t, ok)

	_, ok = c.GetDelegation("nowhere.invalid.")
	assert.False(t, ok)

	assert.False(t, c.IsNegative("nowhere.invalid.", "A"))
}

func TestReclaimRemovesExpiredEntriesWithoutClobberingFreshWrites(t *testing.T) {
	c := New(0)
	defer c.Close()

	start := time.Now()
	var now time.Time = start
	c.now = func() time.Time { return now }

	c.Put("old.example.", "A", []string{"192.0.2.1"}, time.Second)
	now = start.Add(2 * time.Second)

	c.reclaimOnce()
	_, ok := c.Get("old.example.", "A")
	assert.False(t, ok)

	c.Put("fresh.example.", "A", []string{"192.0.2.2"}, time.Minute)
	c.reclaimOnce()

	got, ok := c.Get("fresh.example.", "A")
	require.True(t, ok)
	assert.Equal(t, []string{"192.0.2.2"}, got)
}
