package upstream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
)

// ProxyPool maps proxy names to outbound proxy URLs. Credentials
// reference entries by name; a credential without a proxy name uses the
// direct transport. The pool persists with the same atomic rewrite
// discipline as the credential pool.
type ProxyPool struct {
	mu      sync.RWMutex
	entries map[string]string

	transportMu sync.Mutex
	transports  map[string]*http.Transport
	base        func() *http.Transport
}

func NewProxyPool(base func() *http.Transport) *ProxyPool {
	return &ProxyPool{
		entries:    map[string]string{},
		transports: map[string]*http.Transport{},
		base:       base,
	}
}

// Set adds or replaces a named proxy.
func (p *ProxyPool) Set(name, proxyURL string) error {
	if _, err := url.Parse(proxyURL); err != nil {
		return err
	}
	p.mu.Lock()
	p.entries[name] = proxyURL
	p.mu.Unlock()

	p.transportMu.Lock()
	delete(p.transports, name)
	p.transportMu.Unlock()
	return nil
}

// Delete removes a named proxy.
func (p *ProxyPool) Delete(name string) bool {
	p.mu.Lock()
	_, ok := p.entries[name]
	delete(p.entries, name)
	p.mu.Unlock()

	p.transportMu.Lock()
	delete(p.transports, name)
	p.transportMu.Unlock()
	return ok
}

// List copies the entries out.
func (p *ProxyPool) List() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]string, len(p.entries))
	for k, v := range p.entries {
		out[k] = v
	}
	return out
}

// Transport returns a transport routed through the named proxy, or nil
// when the name is unknown or empty. Transports are built lazily and
// cached per name.
func (p *ProxyPool) Transport(name string) *http.Transport {
	if name == "" {
		return nil
	}
	p.mu.RLock()
	raw, ok := p.entries[name]
	p.mu.RUnlock()
	if !ok {
		return nil
	}

	p.transportMu.Lock()
	defer p.transportMu.Unlock()
	if t, ok := p.transports[name]; ok {
		return t
	}
	proxyURL, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	t := p.base()
	t.Proxy = http.ProxyURL(proxyURL)
	p.transports[name] = t
	return t
}

var proxyMagic = [4]byte{'C', 'B', 'P', 'X'}

// Save writes the proxy map atomically.
func (p *ProxyPool) Save(path string) error {
	p.mu.RLock()
	buf := &bytes.Buffer{}
	buf.Write(proxyMagic[:])
	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], uint32(len(p.entries)))
	buf.Write(count[:])
	for name, raw := range p.entries {
		writeProxyString(buf, name)
		writeProxyString(buf, raw)
	}
	p.mu.RUnlock()

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

// Load reads the proxy map; a missing file leaves the pool empty.
func (p *ProxyPool) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	r := bytes.NewReader(data)
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return err
	}
	if magic != proxyMagic {
		return errors.New("upstream: not a proxy pool snapshot")
	}
	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return err
	}
	count := binary.LittleEndian.Uint32(countBuf[:])

	entries := make(map[string]string, count)
	for i := uint32(0); i < count; i++ {
		name, err := readProxyString(r)
		if err != nil {
			return err
		}
		raw, err := readProxyString(r)
		if err != nil {
			return err
		}
		entries[name] = raw
	}

	p.mu.Lock()
	p.entries = entries
	p.mu.Unlock()
	return nil
}

func writeProxyString(w *bytes.Buffer, s string) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	w.Write(lenBuf[:])
	w.WriteString(s)
}

func readProxyString(r *bytes.Reader) (string, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if uint64(n) > uint64(r.Len()) {
		return "", errors.New("upstream: corrupt proxy string length")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
