// Package kerberos reads Kerberos credential caches and produces GSSAPI tokens
// for the analytic database driver.
package kerberos

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/go-krb5/krb5/credentials"
)

var (
	// ErrInvalidTicketCache is returned for bytes that are not a credential cache.
	ErrInvalidTicketCache = errors.New("invalid ticket cache")
	// ErrNoCredentials is returned for a well-formed cache holding no tickets.
	ErrNoCredentials = errors.New("ticket cache holds no credentials")
)

const tgtService = "krbtgt"

// TicketInfo summarizes a credential cache without exposing key material.
type TicketInfo struct {
	Principal string
	Realm     string
	StartTime time.Time
	EndTime   time.Time
	// HasTGT is false when the cache only carries service tickets.
	HasTGT bool
}

// Expired reports whether the cache's ticket lifetime has ended at now.
func (i *TicketInfo) Expired(now time.Time) bool {
	return !now.Before(i.EndTime)
}

// Inspect parses ticketCache and returns who it belongs to and how long its
// ticket-granting ticket remains valid. Without a TGT the earliest ticket end
// time is used.
func Inspect(ticketCache []byte) (info *TicketInfo, err error) {
	if len(ticketCache) < 4 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidTicketCache, len(ticketCache))
	}

	if err := checkLayout(ticketCache); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTicketCache, err)
	}

	// The ccache parser indexes without bounds checks on truncated input.
	defer func() {
		if r := recover(); r != nil {
			info = nil
			err = fmt.Errorf("%w: truncated data", ErrInvalidTicketCache)
		}
	}()

	var cc credentials.CCache
	if err := cc.Unmarshal(ticketCache); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTicketCache, err)
	}

	entries := cc.GetEntries()
	if len(entries) == 0 {
		return nil, ErrNoCredentials
	}

	info = &TicketInfo{
		Principal: cc.GetClientPrincipalName().PrincipalNameString(),
		Realm:     cc.GetClientRealm(),
	}
	for _, e := range entries {
		names := e.Server.PrincipalName.NameString
		if len(names) > 0 && names[0] == tgtService {
			info.StartTime = e.StartTime
			info.EndTime = e.EndTime
			info.HasTGT = true
			return info, nil
		}
		if info.EndTime.IsZero() || e.EndTime.Before(info.EndTime) {
			info.StartTime = e.StartTime
			info.EndTime = e.EndTime
		}
	}
	return info, nil
}

// ccacheReader walks the big-endian file ccache layout (versions 3 and 4)
// and records the first shortfall instead of panicking.
type ccacheReader struct {
	b   []byte
	off int
	err error
}

func (r *ccacheReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.b)-r.off < n {
		r.err = fmt.Errorf("need %d bytes at offset %d, have %d", n, r.off, len(r.b)-r.off)
		return nil
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out
}

func (r *ccacheReader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *ccacheReader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *ccacheReader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *ccacheReader) data() {
	n := r.u32()
	if uint64(n) > uint64(len(r.b)) {
		r.err = fmt.Errorf("field length %d exceeds cache size", n)
		return
	}
	r.take(int(n))
}

func (r *ccacheReader) principal() {
	r.u32() // name type
	n := r.u32()
	r.data() // realm
	for i := uint32(0); i < n && r.err == nil; i++ {
		r.data()
	}
}

func (r *ccacheReader) tagged() {
	n := r.u32()
	for i := uint32(0); i < n && r.err == nil; i++ {
		r.u16()
		r.data()
	}
}

func (r *ccacheReader) credential(version uint8) {
	r.principal() // client
	r.principal() // server
	r.u16()       // key type
	if version == 3 {
		r.u16()
	}
	r.data()   // key value
	r.take(16) // auth, start, end, renew-till
	r.u8()     // is_skey
	r.u32()    // ticket flags
	r.tagged() // addresses
	r.tagged() // authdata
	r.data()   // ticket
	r.data()   // second ticket
}

// checkLayout confirms every length-prefixed field of the cache is present
// and that the last credential ends exactly at the end of the input.
func checkLayout(b []byte) error {
	r := &ccacheReader{b: b}
	if r.u8() != 5 {
		return errors.New("bad file format byte")
	}
	version := r.u8()
	switch version {
	case 4:
		r.take(int(r.u16()))
	case 3:
	default:
		return fmt.Errorf("unsupported ccache version %d", version)
	}
	r.principal()
	for r.err == nil && r.off < len(b) {
		r.credential(version)
	}
	return r.err
}
