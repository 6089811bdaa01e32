package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type captured struct {
	errs []error
	tags []map[string]string
}

func (c *captured) CaptureException(err error, tags map[string]string) {
	c.errs = append(c.errs, err)
	c.tags = append(c.tags, tags)
}

func (c *captured) Flush(time.Duration) bool { return true }

func TestCaptureUsesInstalledMonitor(t *testing.T) {
	c := &captured{}
	Init(c)
	t.Cleanup(func() { Init(nil) })

	boom := errors.New("boom")
	CaptureException(boom, map[string]string{"room_id": "r1"})
	CaptureException(nil, nil)

	assert.Equal(t, []error{boom}, c.errs)
	assert.Equal(t, "r1", c.tags[0]["room_id"])
	assert.True(t, Flush(time.Millisecond))
}

func TestInitNilRestoresNop(t *testing.T) {
	Init(&captured{})
	Init(nil)
	assert.IsType(t, NopMonitor{}, get())
}
