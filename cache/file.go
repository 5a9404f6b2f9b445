package cache

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrCorrupt is returned by Load when the input is not a valid cache file.
var ErrCorrupt = errors.New("cache: corrupt file")

var magic = [4]byte{'S', 'V', 'C', '1'}

// maxKeyLen bounds key lengths read from disk.
const maxKeyLen = 1 << 10

// Save writes every entry to w, oldest first, so that Load restores the
// recency order.
func (c *Shaders) Save(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(magic[:]); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(c.order.Len())); err != nil {
		return err
	}
	var werr error
	c.order.Each(func(key string, value []byte) {
		if werr != nil {
			return
		}
		werr = writeChunk(bw, []byte(key))
		if werr == nil {
			werr = writeChunk(bw, value)
		}
	})
	if werr != nil {
		return werr
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

func writeChunk(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// Load adds the entries read from r. A corrupt input leaves the cache
// untouched and returns an error wrapping ErrCorrupt.
func (c *Shaders) Load(r io.Reader) error {
	br := bufio.NewReader(r)
	var m [4]byte
	if _, err := io.ReadFull(br, m[:]); err != nil {
		return fmt.Errorf("%w: header: %w", ErrCorrupt, err)
	}
	if m != magic {
		return fmt.Errorf("%w: bad magic %q", ErrCorrupt, m[:])
	}
	var n uint32
	if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("%w: count: %w", ErrCorrupt, err)
	}

	type entry struct {
		key   string
		value []byte
	}
	entries := make([]entry, 0, min(n, 1024))
	for i := range n {
		key, err := readChunk(br, maxKeyLen)
		if err != nil {
			return fmt.Errorf("%w: entry %d key: %w", ErrCorrupt, i, err)
		}
		value, err := readChunk(br, c.maxBytes)
		if err != nil {
			return fmt.Errorf("%w: entry %d value: %w", ErrCorrupt, i, err)
		}
		entries = append(entries, entry{string(key), value})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		c.putLocked(e.key, e.value)
	}
	c.dirty = false
	return nil
}

func readChunk(r io.Reader, limit int) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if int64(n) > int64(limit) {
		return nil, fmt.Errorf("length %d exceeds %d", n, limit)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// LoadFile loads the cache from path. A missing file is not an error.
func (c *Shaders) LoadFile(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	return c.Load(f)
}

// SaveFile writes the cache to path atomically, creating parent
// directories as needed.
func (c *Shaders) SaveFile(path string) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if err := c.Save(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
