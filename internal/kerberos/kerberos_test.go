package kerberos

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ccacheBuilder writes the version 4 credential cache file format.
type ccacheBuilder struct {
	buf bytes.Buffer
}

func (b *ccacheBuilder) u8(v uint8)   { b.buf.WriteByte(v) }
func (b *ccacheBuilder) u16(v uint16) { _ = binary.Write(&b.buf, binary.BigEndian, v) }
func (b *ccacheBuilder) u32(v uint32) { _ = binary.Write(&b.buf, binary.BigEndian, v) }

func (b *ccacheBuilder) data(d []byte) {
	b.u32(uint32(len(d)))
	b.buf.Write(d)
}

func (b *ccacheBuilder) principal(realm string, names ...string) {
	b.u32(1) // KRB_NT_PRINCIPAL
	b.u32(uint32(len(names)))
	b.data([]byte(realm))
	for _, n := range names {
		b.data([]byte(n))
	}
}

func (b *ccacheBuilder) credential(realm string, client []string, server []string, start, end time.Time) {
	b.principal(realm, client...)
	b.principal(realm, server...)
	b.u16(18) // aes256-cts-hmac-sha1-96
	b.data(bytes.Repeat([]byte{0x01}, 32))
	b.u32(uint32(start.Unix())) // auth time
	b.u32(uint32(start.Unix()))
	b.u32(uint32(end.Unix()))
	b.u32(uint32(end.Unix())) // renew till
	b.u8(0)
	b.u32(0x40e00000)
	b.u32(0) // addresses
	b.u32(0) // authdata
	b.data([]byte{0x61, 0x00})
	b.data(nil)
}

func buildCCache(withTGT bool, start, end time.Time) []byte {
	var b ccacheBuilder
	b.u8(5)
	b.u8(4)
	b.u16(0) // header length
	b.principal("EXAMPLE.COM", "alice")
	if withTGT {
		b.credential("EXAMPLE.COM", []string{"alice"}, []string{"krbtgt", "EXAMPLE.COM"}, start, end)
	} else {
		b.credential("EXAMPLE.COM", []string{"alice"}, []string{"impala", "db.example.com"}, start, end)
	}
	return b.buf.Bytes()
}

func TestInspect(t *testing.T) {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Hour)

	t.Run("reads principal and TGT lifetime", func(t *testing.T) {
		info, err := Inspect(buildCCache(true, start, end))
		require.NoError(t, err)

		assert.Equal(t, "alice", info.Principal)
		assert.Equal(t, "EXAMPLE.COM", info.Realm)
		assert.True(t, info.HasTGT)
		assert.True(t, info.EndTime.Equal(end))
		assert.False(t, info.Expired(start.Add(time.Hour)))
		assert.True(t, info.Expired(end))
	})

	t.Run("service tickets only", func(t *testing.T) {
		info, err := Inspect(buildCCache(false, start, end))
		require.NoError(t, err)

		assert.False(t, info.HasTGT)
		assert.True(t, info.EndTime.Equal(end))
	})

	t.Run("rejects short input", func(t *testing.T) {
		_, err := Inspect([]byte("TE"))
		require.ErrorIs(t, err, ErrInvalidTicketCache)
	})

	t.Run("rejects foreign bytes", func(t *testing.T) {
		_, err := Inspect([]byte("not a credential cache"))
		require.ErrorIs(t, err, ErrInvalidTicketCache)
	})

	t.Run("rejects truncated cache", func(t *testing.T) {
		full := buildCCache(true, start, end)
		_, err := Inspect(full[:len(full)/2])
		require.ErrorIs(t, err, ErrInvalidTicketCache)
	})

	t.Run("rejects every truncation inside a credential", func(t *testing.T) {
		full := buildCCache(true, start, end)
		var header ccacheBuilder
		header.u8(5)
		header.u8(4)
		header.u16(0)
		header.principal("EXAMPLE.COM", "alice")
		firstCredential := header.buf.Len()

		for n := firstCredential + 1; n < len(full); n++ {
			_, err := Inspect(full[:n])
			require.ErrorIs(t, err, ErrInvalidTicketCache, "accepted %d of %d bytes", n, len(full))
		}
	})

	t.Run("cache without credentials", func(t *testing.T) {
		var b ccacheBuilder
		b.u8(5)
		b.u8(4)
		b.u16(0)
		b.principal("EXAMPLE.COM", "alice")

		_, err := Inspect(b.buf.Bytes())
		require.Error(t, err)
	})

	t.Run("rejects trailing bytes", func(t *testing.T) {
		full := append(buildCCache(true, start, end), 0x00, 0x00, 0x00)
		_, err := Inspect(full)
		require.ErrorIs(t, err, ErrInvalidTicketCache)
	})

	t.Run("rejects unsupported version", func(t *testing.T) {
		full := buildCCache(true, start, end)
		full[1] = 2
		_, err := Inspect(full)
		require.ErrorIs(t, err, ErrInvalidTicketCache)
	})
}

func TestCCachePath(t *testing.T) {
	p, err := CCachePath("FILE:/tmp/krb5cc_scope_1")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/krb5cc_scope_1", p)

	p, err = CCachePath("/tmp/krb5cc_1000")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/krb5cc_1000", p)

	_, err = CCachePath("")
	require.ErrorIs(t, err, ErrNoBinding)

	_, err = CCachePath("FILE:")
	require.ErrorIs(t, err, ErrNoBinding)

	_, err = CCachePath("KEYRING:persistent:1000")
	require.Error(t, err)
}

func TestGSSProvider_RequiresBinding(t *testing.T) {
	const envVar = "KERBDASH_TEST_GSS_CCNAME"
	t.Setenv(envVar, "")

	gss, err := NewGSSFunc(nil, envVar)()
	require.NoError(t, err)

	_, err = gss.GetInitToken("db.example.com", "impala")
	require.ErrorIs(t, err, ErrNoBinding)
}

func TestGSSProvider_RejectsMalformedSPN(t *testing.T) {
	gss, err := NewGSSFunc(nil, "")()
	require.NoError(t, err)

	_, err = gss.GetInitTokenFromSpn("impala")
	require.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "krb5.conf")
	require.NoError(t, os.WriteFile(path, []byte("[libdefaults]\n  default_realm = EXAMPLE.COM\n"), 0o644))

	conf, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "EXAMPLE.COM", conf.LibDefaults.DefaultRealm)

	_, err = loadConfig(filepath.Join(dir, "missing.conf"))
	require.Error(t, err)
}
