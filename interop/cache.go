// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package interop

import (
	"fmt"
	"log/slog"
)

// Cache maps swapchain images to shared textures. A texture is created the
// first time its image is resolved and lives until the next Clear. The
// cache is the arena for every shared object of one swapchain generation.
type Cache struct {
	exp Exporter
	imp Importer
	log *slog.Logger

	desc    TextureDesc
	entries map[ImageID]*Texture
	gen     uint64
	created uint64
}

// NewCache creates an empty cache. log may be nil.
func NewCache(exp Exporter, imp Importer, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		exp:     exp,
		imp:     imp,
		log:     log,
		entries: make(map[ImageID]*Texture),
	}
}

// SetDesc sets the description used for textures created from now on.
// Call it after Clear when the swapchain changes size or format.
func (c *Cache) SetDesc(desc TextureDesc) {
	c.desc = desc
}

// Desc returns the current texture description.
func (c *Cache) Desc() TextureDesc {
	return c.desc
}

// Len returns the number of cached textures.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Generation is incremented by every Clear.
func (c *Cache) Generation() uint64 {
	return c.gen
}

// Created returns how many textures the cache has created in total.
func (c *Cache) Created() uint64 {
	return c.created
}

// Resolve returns the shared texture for img, creating it on first use.
// Creation either completes fully or leaves nothing behind.
func (c *Cache) Resolve(img ImageID) (*Texture, error) {
	if t, ok := c.entries[img]; ok {
		return t, nil
	}
	t, err := c.create(img)
	if err != nil {
		c.log.Warn("interop: shared texture creation failed", "image", img, "err", err)
		return nil, err
	}
	c.entries[img] = t
	c.created++
	c.log.Debug("interop: shared texture created",
		"image", img, "width", c.desc.Width, "height", c.desc.Height,
		"generation", c.gen, "cached", len(c.entries))
	return t, nil
}

func (c *Cache) create(img ImageID) (_ *Texture, err error) {
	desc := c.desc
	if desc.Label == "" {
		desc.Label = fmt.Sprintf("interop-%d-%d", c.gen, img)
	}
	t := &Texture{Image: img}
	defer func() {
		if err != nil {
			t.destroy()
		}
	}()

	if t.Exported, err = c.exp.ExportTexture(desc); err != nil {
		return nil, fmt.Errorf("%w: texture: %w", ErrExport, err)
	}
	if t.acquireExp, err = c.exp.ExportSemaphore(); err != nil {
		return nil, fmt.Errorf("%w: acquire semaphore: %w", ErrExport, err)
	}
	if t.releaseExp, err = c.exp.ExportSemaphore(); err != nil {
		return nil, fmt.Errorf("%w: release semaphore: %w", ErrExport, err)
	}
	if t.Imported, err = c.imp.ImportTexture(t.Exported.Handle(), desc); err != nil {
		return nil, fmt.Errorf("%w: texture: %w", ErrImport, err)
	}
	if t.acquireImp, err = c.imp.ImportSemaphore(t.acquireExp.Handle()); err != nil {
		return nil, fmt.Errorf("%w: acquire semaphore: %w", ErrImport, err)
	}
	if t.releaseImp, err = c.imp.ImportSemaphore(t.releaseExp.Handle()); err != nil {
		return nil, fmt.Errorf("%w: release semaphore: %w", ErrImport, err)
	}
	// A fresh texture belongs to the exporter.
	if err = t.acquireImp.Signal(); err != nil {
		return nil, fmt.Errorf("%w: prime acquire: %w", ErrImport, err)
	}
	return t, nil
}

// Clear waits for the device to go idle, then destroys every cached
// texture in one sweep. If idle fails nothing is destroyed and the error
// wraps ErrIdleBarrier. idle may be nil only when the caller has already
// established that no GPU work is pending.
func (c *Cache) Clear(idle func() error) error {
	if idle != nil {
		if err := idle(); err != nil {
			return fmt.Errorf("%w: %w", ErrIdleBarrier, err)
		}
	}
	n := len(c.entries)
	for img, t := range c.entries {
		t.destroy()
		delete(c.entries, img)
	}
	c.gen++
	if n > 0 {
		c.log.Debug("interop: shared textures destroyed", "count", n, "generation", c.gen)
	}
	return nil
}
