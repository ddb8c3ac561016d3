package resorts

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ski-report-service/internal/domain"
)

func resort(label string) domain.Resort {
	return domain.NewResort(domain.Location{Label: label, Path: "wa.php?location=" + label})
}

func names(rs []domain.Resort) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Name())
	}
	return out
}

func TestList_NewSortsAndDedupes(t *testing.T) {
	l := New([]domain.Resort{resort("Stevens"), resort("Alpental"), resort("Stevens"), resort("Crystal")})

	assert.Equal(t, []string{"Alpental", "Crystal", "Stevens"}, names(l.Resorts()))
	assert.Equal(t, 3, l.Len())
}

func TestList_AddRemove(t *testing.T) {
	ctx := context.Background()
	l := New(nil)

	added, err := l.Add(ctx, resort("Crystal"))
	require.NoError(t, err)
	assert.True(t, added)
	added, err = l.Add(ctx, resort("Alpental"))
	require.NoError(t, err)
	assert.True(t, added)
	added, err = l.Add(ctx, resort("Crystal"))
	require.NoError(t, err)
	assert.False(t, added, "duplicate label")

	r, ok := l.Find("Alpental")
	require.True(t, ok)
	assert.Equal(t, "wa.php?location=Alpental", r.Location.Path)

	removed, ok, err := l.Remove(ctx, domain.Location{Label: "Alpental"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Alpental", removed.Name())

	_, ok, err = l.Remove(ctx, domain.Location{Label: "Alpental"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"Crystal"}, names(l.Resorts()))
}

func TestList_SetWakeup(t *testing.T) {
	ctx := context.Background()
	l := New([]domain.Resort{resort("Alpental")})

	r, ok, err := l.SetWakeup(ctx, "Alpental", true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, r.WakeupEnabled)

	found, _ := l.Find("Alpental")
	assert.True(t, found.WakeupEnabled)

	_, ok, err = l.SetWakeup(ctx, "Crystal", true)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestList_ResortsReturnsCopy(t *testing.T) {
	l := New([]domain.Resort{resort("Alpental")})

	got := l.Resorts()
	got[0].WakeupEnabled = true

	assert.False(t, l.Resorts()[0].WakeupEnabled)
}

func TestList_ConcurrentAdd(t *testing.T) {
	l := New(nil)
	labels := []string{"A", "B", "C", "D", "E", "F", "G", "H"}

	var wg sync.WaitGroup
	for range 4 {
		for _, label := range labels {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = l.Add(context.Background(), resort(label))
			}()
		}
	}
	wg.Wait()

	assert.Equal(t, labels, names(l.Resorts()))
}
