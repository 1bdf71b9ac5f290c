package mail

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderHeaders(t *testing.T) {
	s := &SMTPSender{From: "noreply@example.com"}
	raw := string(s.render(Message{To: "a@b.com", Subject: "Verify\r\nBcc: x@y.z", HTML: "<p>hi</p>"}))

	assert.True(t, strings.HasPrefix(raw, "From: noreply@example.com\r\nTo: a@b.com\r\n"))
	assert.Contains(t, raw, "Subject: Verify Bcc: x@y.z\r\n")
	assert.NotContains(t, raw, "\r\nBcc:")
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\n<p>hi</p>"))
}

func TestSMTPSenderRequiresHost(t *testing.T) {
	err := (&SMTPSender{}).Send(context.Background(), Message{To: "a@b.com"})
	assert.Error(t, err)
}

func TestLogSenderOmitsBody(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)

	err := LogSender{Log: logger}.Send(context.Background(), Message{
		To: "a@b.com", Subject: "Reset", HTML: "token=deadbeef",
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "a@b.com")
	assert.NotContains(t, buf.String(), "deadbeef")
}
