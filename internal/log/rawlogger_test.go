package log_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cdelston0/pixelpusher/internal/log"
)

func TestRawLoggerHexDump(t *testing.T) {
	var buf bytes.Buffer
	r := log.NewRaw(&buf)

	r.Log(true, []byte{0x00, 0x7f, 0xff})
	out := buf.String()
	assert.Contains(t, out, "OUT")
	assert.Contains(t, out, "3 bytes")
	assert.Contains(t, out, "00 7f ff")

	buf.Reset()
	r.Log(false, []byte{0xab})
	assert.Contains(t, buf.String(), "IN ")
}

func TestRawLoggerNoopCases(t *testing.T) {
	var buf bytes.Buffer
	r := log.NewRaw(&buf)
	r.Log(true, nil)
	assert.Zero(t, buf.Len())

	// nil writer must not panic
	log.NewRaw(nil).Log(true, []byte{1, 2, 3})
}
