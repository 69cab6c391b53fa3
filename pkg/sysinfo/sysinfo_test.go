package sysinfo

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatUptime(0))
	assert.Equal(t, "01:01:01", FormatUptime(time.Hour+time.Minute+time.Second))
	assert.Equal(t, "100:00:05", FormatUptime(100*time.Hour+5*time.Second))
	assert.Equal(t, "00:00:00", FormatUptime(-time.Second))
}

func TestMemoryPercent(t *testing.T) {
	const meminfo = `MemTotal:        1000 kB
MemFree:          100 kB
MemAvailable:     250 kB
Buffers:           10 kB
`
	pct, err := MemoryPercent(strings.NewReader(meminfo))
	require.NoError(t, err)
	assert.InDelta(t, 75.0, pct, 0.001)

	_, err = MemoryPercent(strings.NewReader("MemFree: 1 kB\n"))
	assert.Error(t, err)
}

func TestSmallCaps(t *testing.T) {
	assert.Equal(t, "ᴜᴘᴛɪᴍᴇ", SmallCaps("Uptime"))
	assert.Equal(t, "ʀᴀᴍ 𝟤", SmallCaps("RAM 2"))
	assert.Equal(t, "Юзер", SmallCaps("Юзер"))
}

func TestRender(t *testing.T) {
	out := Render("NewEraV4Fix", Labels{Uptime: "uptime", User: "user", RAM: "ram", Host: "host"}, "@me",
		Info{Uptime: "00:01:00", RAM: "42.0%", Host: "box"})

	assert.True(t, strings.HasPrefix(out, "`╭"))
	assert.True(t, strings.HasSuffix(out, "`"))
	assert.Contains(t, out, "│ ᴜꜱᴇʀ: @me\n")
	assert.Contains(t, out, "│ ʀᴀᴍ: 42.0%\n")
	assert.Contains(t, out, "│ ʜᴏꜱᴛ: box\n")
}

func TestCollect(t *testing.T) {
	info := Collect(time.Now().Add(-2 * time.Second))
	assert.NotEmpty(t, info.Uptime)
	assert.NotEmpty(t, info.RAM)
	assert.NotEmpty(t, info.Host)
}
