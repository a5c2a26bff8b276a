package id

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorFormat(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 9, 26, 53, 589_000_000, time.UTC)
	g := NewGenerator(WithClock(func() time.Time { return fixed }))

	got, err := g.NewID()
	require.NoError(t, err)

	prefix, suffix, found := strings.Cut(got, "-")
	require.True(t, found)
	assert.Equal(t, strconv.FormatInt(fixed.UnixMilli(), 10), prefix)
	_, err = uuid.Parse(suffix)
	assert.NoError(t, err, "suffix must be a uuid: %s", got)
	assert.False(t, IsFallbackID(got))
}

func TestGeneratorUniqueness(t *testing.T) {
	n := 1_000_000
	if testing.Short() {
		n = 50_000
	}

	g := NewGenerator()
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		id, err := g.NewID()
		require.NoError(t, err)
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate message id after %d generations: %s", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestGeneratorIDsRoughlySortable(t *testing.T) {
	g := NewGenerator()
	first, err := g.NewID()
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := g.NewID()
	require.NoError(t, err)

	firstMs, _ := strconv.ParseInt(strings.SplitN(first, "-", 2)[0], 10, 64)
	secondMs, _ := strconv.ParseInt(strings.SplitN(second, "-", 2)[0], 10, 64)
	assert.Less(t, firstMs, secondMs)
}

func TestPackageLevelNewID(t *testing.T) {
	id, err := NewID()
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "fallback", ModeFallback.String())
	assert.Equal(t, "strict", ModeStrict.String())
	assert.Equal(t, "unknown", Mode(9).String())
}

func TestMustNewID(t *testing.T) {
	g := NewGenerator()
	assert.NotEmpty(t, g.MustNewID())
}

func TestIsFallbackID(t *testing.T) {
	assert.True(t, IsFallbackID("1700000000000-fb-1a-42"))
	assert.False(t, IsFallbackID("1700000000000-8f3a91c2-0000-4000-8000-000000000000"))
}
