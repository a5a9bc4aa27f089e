package token

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Binary pool snapshot. Live records are written in id order and
// re-added on load, which compacts ids and rebuilds every index through
// the normal Add path.

var poolMagic = [4]byte{'C', 'B', 'T', 'K'}

const poolVersion uint16 = 1

func writeString(w *bytes.Buffer, s string) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	w.Write(lenBuf[:])
	w.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if uint64(n) > uint64(r.Len()) {
		return "", errors.New("token: corrupt string length")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeU64(w *bytes.Buffer, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	w.Write(buf[:])
}

func readU64(r *bytes.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func encodeRecord(w *bytes.Buffer, rec *Record) {
	writeString(w, rec.Alias)
	writeString(w, rec.Credential.Primary.Raw)
	if rec.Credential.Secondary != nil {
		w.WriteByte(1)
		writeString(w, rec.Credential.Secondary.Raw)
	} else {
		w.WriteByte(0)
	}
	writeString(w, rec.Credential.Checksum)
	w.Write(rec.Credential.ClientKey[:])
	w.Write(rec.Credential.SessionID[:])
	if rec.Credential.ConfigVersion != nil {
		w.WriteByte(1)
		w.Write(rec.Credential.ConfigVersion[:])
	} else {
		w.WriteByte(0)
	}
	if rec.Credential.ProxyName != nil {
		w.WriteByte(1)
		writeString(w, *rec.Credential.ProxyName)
	} else {
		w.WriteByte(0)
	}
	writeString(w, rec.Credential.Timezone)
	if rec.Credential.GcppHost != nil {
		w.WriteByte(1)
		w.WriteByte(*rec.Credential.GcppHost)
	} else {
		w.WriteByte(0)
	}
	var flags byte
	if rec.Enabled {
		flags |= 1
	}
	if rec.Billing == BillingPaid {
		flags |= 2
	}
	w.WriteByte(flags)
	writeU64(w, rec.Health.BackoffUntil)
	var fails [4]byte
	binary.LittleEndian.PutUint32(fails[:], rec.Health.ConsecutiveFailures)
	w.Write(fails[:])
}

func decodeRecord(r *bytes.Reader) (Credential, string, bool, BillingKind, Health, error) {
	fail := func(err error) (Credential, string, bool, BillingKind, Health, error) {
		return Credential{}, "", false, BillingFree, Health{}, err
	}

	alias, err := readString(r)
	if err != nil {
		return fail(err)
	}
	primaryRaw, err := readString(r)
	if err != nil {
		return fail(err)
	}
	primary, err := ParseToken(primaryRaw)
	if err != nil {
		return fail(err)
	}

	cred := Credential{Primary: primary}

	hasSecondary, err := r.ReadByte()
	if err != nil {
		return fail(err)
	}
	if hasSecondary == 1 {
		secRaw, err := readString(r)
		if err != nil {
			return fail(err)
		}
		sec, err := ParseToken(secRaw)
		if err != nil {
			return fail(err)
		}
		cred.Secondary = &sec
	}

	if cred.Checksum, err = readString(r); err != nil {
		return fail(err)
	}
	if _, err := io.ReadFull(r, cred.ClientKey[:]); err != nil {
		return fail(err)
	}
	if _, err := io.ReadFull(r, cred.SessionID[:]); err != nil {
		return fail(err)
	}

	hasConfig, err := r.ReadByte()
	if err != nil {
		return fail(err)
	}
	if hasConfig == 1 {
		var cv uuid.UUID
		if _, err := io.ReadFull(r, cv[:]); err != nil {
			return fail(err)
		}
		cred.ConfigVersion = &cv
	}

	hasProxy, err := r.ReadByte()
	if err != nil {
		return fail(err)
	}
	if hasProxy == 1 {
		name, err := readString(r)
		if err != nil {
			return fail(err)
		}
		cred.ProxyName = &name
	}

	if cred.Timezone, err = readString(r); err != nil {
		return fail(err)
	}

	hasGcpp, err := r.ReadByte()
	if err != nil {
		return fail(err)
	}
	if hasGcpp == 1 {
		host, err := r.ReadByte()
		if err != nil {
			return fail(err)
		}
		cred.GcppHost = &host
	}

	flags, err := r.ReadByte()
	if err != nil {
		return fail(err)
	}
	billing := BillingFree
	if flags&2 != 0 {
		billing = BillingPaid
	}

	var health Health
	if health.BackoffUntil, err = readU64(r); err != nil {
		return fail(err)
	}
	var fails [4]byte
	if _, err := io.ReadFull(r, fails[:]); err != nil {
		return fail(err)
	}
	health.ConsecutiveFailures = binary.LittleEndian.Uint32(fails[:])

	return cred, alias, flags&1 != 0, billing, health, nil
}

// Save writes the pool snapshot atomically: temp file, fsync, rename.
// The snapshot is copied out under the read lock; file I/O happens
// unlocked.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	buf := &bytes.Buffer{}
	buf.Write(poolMagic[:])
	var ver [2]byte
	binary.LittleEndian.PutUint16(ver[:], poolVersion)
	buf.Write(ver[:])
	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], uint32(len(s.idMap)))
	buf.Write(count[:])
	for _, rec := range s.records {
		if rec != nil {
			encodeRecord(buf, rec)
		}
	}
	s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load reads a pool snapshot. A missing file yields an empty pool.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewStore(0), nil
		}
		return nil, err
	}

	r := bytes.NewReader(data)
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, err
	}
	if magic != poolMagic {
		return nil, errors.New("token: not a pool snapshot")
	}
	var ver [2]byte
	if _, err := io.ReadFull(r, ver[:]); err != nil {
		return nil, err
	}
	if v := binary.LittleEndian.Uint16(ver[:]); v != poolVersion {
		return nil, fmt.Errorf("token: unsupported snapshot version %d", v)
	}
	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, err
	}
	count := binary.LittleEndian.Uint32(countBuf[:])

	store := NewStore(int(count))
	resetHeads()
	for i := uint32(0); i < count; i++ {
		cred, alias, enabled, billing, health, err := decodeRecord(r)
		if err != nil {
			return nil, fmt.Errorf("token: record %d: %w", i, err)
		}
		id, err := store.Add(cred, alias)
		if err != nil {
			return nil, fmt.Errorf("token: record %d: %w", i, err)
		}
		store.records[id].Enabled = enabled
		store.records[id].Billing = billing
		store.records[id].Health = health
	}
	return store, nil
}
