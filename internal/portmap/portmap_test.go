package portmap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdelston0/pixelpusher/internal/portmap"
)

func TestDefaultTable(t *testing.T) {
	table := portmap.Default()

	ch, ok := table.Channel(2)
	assert.True(t, ok)
	assert.Equal(t, 1, ch)

	ch, ok = table.Channel(4)
	assert.True(t, ok)
	assert.Equal(t, 0, ch)

	_, ok = table.Channel(1)
	assert.False(t, ok)
	_, ok = table.Channel(3)
	assert.False(t, ok)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		wantErr bool
		port    int
		channel int
	}{
		{"single pair", []string{"1=3"}, false, 1, 3},
		{"whitespace tolerated", []string{" 2 = 5 "}, false, 2, 5},
		{"missing separator", []string{"2:5"}, true, 0, 0},
		{"bad port", []string{"x=5"}, true, 0, 0},
		{"bad channel", []string{"2=y"}, true, 0, 0},
		{"duplicate port", []string{"2=0", "2=1"}, true, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := portmap.Parse(tt.pairs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			ch, ok := table.Channel(tt.port)
			assert.True(t, ok)
			assert.Equal(t, tt.channel, ch)
		})
	}
}

func TestParseEmptyIsEmptyTable(t *testing.T) {
	table, err := portmap.Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
	_, ok := table.Channel(2)
	assert.False(t, ok)
}
