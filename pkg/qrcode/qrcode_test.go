package qrcode_test

import (
	"bytes"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedidoflow/guestkit/pkg/identity"
	"github.com/pedidoflow/guestkit/pkg/qrcode"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()

	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	t.Run("renders a png", func(t *testing.T) {
		t.Parallel()

		png, err := qrcode.Generate("https://menu.example/?store=abc&table=12", 256)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(png, pngMagic))
	})

	t.Run("empty content is rejected", func(t *testing.T) {
		t.Parallel()

		_, err := qrcode.Generate("   ", 256)
		assert.ErrorIs(t, err, qrcode.ErrEmptyContent)
	})

	t.Run("non-positive size uses the default", func(t *testing.T) {
		t.Parallel()

		png, err := qrcode.Generate("https://menu.example", 0)
		require.NoError(t, err)
		assert.NotEmpty(t, png)
	})
}

func TestDataURI(t *testing.T) {
	t.Parallel()

	uri, err := qrcode.DataURI("https://menu.example", 128)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))
}

func TestEntryCode(t *testing.T) {
	t.Parallel()

	t.Run("table code encodes the entry url", func(t *testing.T) {
		t.Parallel()

		png, err := qrcode.EntryCode("https://menu.example/",
			identity.URLContext{StoreID: "abc", TableID: "12"}, 256)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(png, pngMagic))
	})

	t.Run("round trips through the url contract", func(t *testing.T) {
		t.Parallel()

		ctx := identity.URLContext{StoreID: "abc", IsDelivery: true}
		entry, err := identity.BuildEntryURL("https://menu.example/", ctx)
		require.NoError(t, err)

		u := mustParse(t, entry)
		assert.Equal(t, ctx, identity.ParseURLContext(u))
	})
}
