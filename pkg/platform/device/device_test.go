package device

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLabel(t *testing.T) {
	t.Run("desktop browser", func(t *testing.T) {
		got := Label("Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0")
		assert.True(t, strings.HasPrefix(got, "Firefox 128.0 on "), got)
		assert.Contains(t, got, "Linux")
	})

	t.Run("crawler", func(t *testing.T) {
		got := Label("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
		assert.True(t, strings.HasPrefix(got, "bot:"), got)
	})

	t.Run("empty header", func(t *testing.T) {
		assert.Empty(t, Label("  "))
	})
}
