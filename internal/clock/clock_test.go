package clock

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSkewAppliesToNow(t *testing.T) {
	defer SetSkew(0)

	SetSkew(2 * time.Hour)
	assert.InDelta(t, time.Now().Add(2*time.Hour).Unix(), Now().Unix(), 2)
	assert.Equal(t, 2*time.Hour, Skew())

	SetSkew(-30 * time.Second)
	assert.InDelta(t, time.Now().Add(-30*time.Second).Unix(), Now().Unix(), 2)
}

func TestLocalTimestampFormat(t *testing.T) {
	defer SetSkew(0)
	ts := LocalTimestamp()
	// RFC 3339 with millisecond precision.
	assert.Regexp(t, regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}(Z|[+-]\d{2}:\d{2})$`), ts)
}
