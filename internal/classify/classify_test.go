package classify

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Header(t *testing.T) {
	c := New(time.UTC)

	tests := []struct {
		name  string
		raw   string
		ok    bool
		level string
	}{
		{"info", "20240115143000123 INFO - R req1 sendMessage extra", true, "INFO"},
		{"debug", "20240115143000123 DEBUG something", true, "DEBUG"},
		{"warn", "20240115143000123 WARN disk low", true, "WARN"},
		{"crlf", "20240115143000123 ERROR boom\r\n", true, "ERROR"},
		{"lowercase level", "20240115143000123 info nope", false, ""},
		{"short token", "2024011514300012 INFO x", false, ""},
		{"no level", "20240115143000123 - R x", false, ""},
		{"bad calendar", "20241315143000123 INFO x", false, ""},
		{"continuation", "\tat com.example.Foo.bar(Foo.java:10)", false, ""},
		{"empty", "", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, ok := c.Parse(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				require.NotNil(t, line)
				assert.Equal(t, tt.level, line.Level)
				assert.Equal(t, "20240115143000123", line.Token)
			}
		})
	}
}

func TestLine_Keys(t *testing.T) {
	line, ok := New(time.UTC).Parse("20240115143000123 INFO - R req1 sendMessage extra")
	require.True(t, ok)

	assert.Equal(t, int64(2024011514), line.HourKey())
	assert.Equal(t, int64(20240115), line.DayKey())
	assert.Equal(t, int64(20240115143000123), line.TokenKey())
	assert.Equal(t, time.Date(2024, 1, 15, 14, 30, 0, 123*int(time.Millisecond), time.UTC), line.Time)
}

func TestLine_Method(t *testing.T) {
	c := New(time.UTC)

	line, ok := c.Parse("20240115143000123 INFO - R req1 sendMessage extra")
	require.True(t, ok)
	method, ok := line.Method()
	assert.True(t, ok)
	assert.Equal(t, "sendMessage", method)

	// No trailing text after the method.
	line, ok = c.Parse("20240115143000123 INFO - R req1 sendMessage")
	require.True(t, ok)
	_, ok = line.Method()
	assert.False(t, ok)

	line, ok = c.Parse("20240115143000123 ERROR - R req1 sendMessage extra")
	require.True(t, ok)
	_, ok = line.Method()
	assert.False(t, ok)
}

func TestLine_Payload(t *testing.T) {
	c := New(time.UTC)

	line, ok := c.Parse(`20240115143000123 INFO - R req1 userOnlineStatus - {"userId":7,"status":1}`)
	require.True(t, ok)

	method, payload, ok := line.Payload()
	assert.True(t, ok)
	assert.Equal(t, "userOnlineStatus", method)
	assert.Equal(t, `{"userId":7,"status":1}`, payload)

	// The method pattern also matches payload lines.
	m, ok := line.Method()
	assert.True(t, ok)
	assert.Equal(t, "userOnlineStatus", m)

	line, ok = c.Parse("20240115143000123 INFO - R req1 sendMessage extra")
	require.True(t, ok)
	_, _, ok = line.Payload()
	assert.False(t, ok)
}

func TestLine_Severity(t *testing.T) {
	c := New(time.UTC)

	line, ok := c.Parse("20240115143000123 ERROR some failure id=aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")
	require.True(t, ok)
	level, msg, ok := line.Severity()
	assert.True(t, ok)
	assert.Equal(t, "ERROR", level)
	assert.Equal(t, "some failure id=", msg)

	line, ok = c.Parse("20240115143000123 INFO all good")
	require.True(t, ok)
	_, _, ok = line.Severity()
	assert.False(t, ok)
}

func TestLine_Severity_UUIDIndependent(t *testing.T) {
	c := New(time.UTC)
	var messages []string
	for i := 0; i < 5; i++ {
		line, ok := c.Parse("20240115143000123 WARN session " + uuid.NewString() + " expired")
		require.True(t, ok)
		_, msg, ok := line.Severity()
		require.True(t, ok)
		messages = append(messages, msg)
	}
	for _, msg := range messages {
		assert.Equal(t, "session expired", msg)
	}
}

func TestLine_LiveStream(t *testing.T) {
	c := New(time.UTC)

	line, ok := c.Parse(`20240115143000123 INFO - LiveStreamHistory->{"streamId":"abc"}`)
	require.True(t, ok)
	doc, ok := line.LiveStream()
	assert.True(t, ok)
	assert.Equal(t, `{"streamId":"abc"}`, doc)

	_, ok = line.Method()
	assert.False(t, ok)
}

func TestStripUUIDs(t *testing.T) {
	assert.Equal(t, "a b", StripUUIDs("a 0F0F0F0F-aaaa-BBBB-cccc-0123456789ab b"))
	assert.Equal(t, "x", StripUUIDs("x"))
	assert.Equal(t, "ids:,", StripUUIDs("ids: 00000000-0000-0000-0000-000000000000,"))
}

func TestHeaderTime(t *testing.T) {
	c := New(time.UTC)
	ts, ok := c.HeaderTime("20240115000000000 INFO start")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), ts)

	_, ok = c.HeaderTime("garbage")
	assert.False(t, ok)
}
