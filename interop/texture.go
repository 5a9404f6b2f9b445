// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package interop

import "fmt"

type handshake uint8

const (
	// stateIdle: the importer is done, acquire is signalled.
	stateIdle handshake = iota
	// stateWriting: the exporter holds the texture.
	stateWriting
	// stateWritten: the exporter is done, release is signalled.
	stateWritten
	// stateReading: the importer holds the texture.
	stateReading
)

var handshakeNames = [...]string{"idle", "writing", "written", "reading"}

func (h handshake) String() string { return handshakeNames[h] }

// Texture is one block of shared memory plus its acquire and release
// semaphores, usable from both APIs.
type Texture struct {
	// Image is the swapchain image this texture belongs to.
	Image ImageID

	Exported ExportedTexture
	Imported ImportedTexture

	// acquire hands the texture back to the exporter; release hands it to
	// the importer. Each exists once per API.
	acquireExp ExportedSemaphore
	releaseExp ExportedSemaphore
	acquireImp Semaphore
	releaseImp Semaphore

	state  handshake
	frames uint64
}

// Desc returns the texture description.
func (t *Texture) Desc() TextureDesc {
	return t.Exported.Desc()
}

// Frames returns how many full handshakes completed on this texture.
func (t *Texture) Frames() uint64 {
	return t.frames
}

func (t *Texture) step(from, to handshake, op string, sem Semaphore, wait bool) error {
	if t.state != from {
		return fmt.Errorf("%w: %s in state %s", ErrHandshake, op, t.state)
	}
	var err error
	if wait {
		err = sem.Wait()
	} else {
		err = sem.Signal()
	}
	if err != nil {
		return fmt.Errorf("interop: %s: %w", op, err)
	}
	t.state = to
	return nil
}

// BeginWrite waits on acquire so the exporting API may write.
func (t *Texture) BeginWrite() error {
	return t.step(stateIdle, stateWriting, "begin write", t.acquireExp, true)
}

// EndWrite signals release after the exporting API finished writing.
func (t *Texture) EndWrite() error {
	return t.step(stateWriting, stateWritten, "end write", t.releaseExp, false)
}

// Skip passes the texture to the importer with its previous content, for
// ticks where the overlay did not change.
func (t *Texture) Skip() error {
	if err := t.BeginWrite(); err != nil {
		return err
	}
	return t.EndWrite()
}

// BeginRead waits on release so the importing API may access the texture.
func (t *Texture) BeginRead() error {
	return t.step(stateWritten, stateReading, "begin read", t.releaseImp, true)
}

// EndRead signals acquire so the exporter may reuse the texture.
func (t *Texture) EndRead() error {
	if err := t.step(stateReading, stateIdle, "end read", t.acquireImp, false); err != nil {
		return err
	}
	t.frames++
	return nil
}

// destroy releases every object. Imported objects go first since they
// alias the exported memory.
func (t *Texture) destroy() {
	for _, d := range []interface{ Destroy() }{
		t.releaseImp, t.acquireImp, t.Imported,
		t.releaseExp, t.acquireExp, t.Exported,
	} {
		if d != nil {
			d.Destroy()
		}
	}
}
