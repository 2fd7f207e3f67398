// File: platform/firmware.go
// Package platform
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Firmware loading from a directory, synchronously or through a callback,
// and the driver that loads an image before registering its device.

package platform

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/momentics/hioload-chrdev/api"
	"github.com/momentics/hioload-chrdev/chrdev"
	"golang.org/x/crypto/sha3"
)

const (
	// FirmwareVersion is appended to every requested image name.
	FirmwareVersion = "1.0.0"

	firmwareNameLen = 128

	// MaxFirmwareName is the longest accepted base name.
	MaxFirmwareName = firmwareNameLen - 6 - (len(FirmwareVersion) + 1)
)

// Firmware is a loaded image.
type Firmware struct {
	Name   string
	Data   []byte
	Digest [32]byte // SHA3-256 of Data
}

func printable(c byte) byte {
	if c < ' ' || c > '~' {
		return '-'
	}
	return c
}

// HexDump renders Data eight bytes per line as "xx[c] ".
func (f *Firmware) HexDump() []string {
	var lines []string
	for n := 0; n < len(f.Data); n += 8 {
		var sb strings.Builder
		for i := n; i < n+8 && i < len(f.Data); i++ {
			fmt.Fprintf(&sb, "%02x[%c] ", f.Data[i], printable(f.Data[i]))
		}
		lines = append(lines, sb.String())
	}
	return lines
}

// FirmwareFileName composes "<base>-<version>.bin".
func FirmwareFileName(base string) (string, error) {
	if base == "" || len(base) > MaxFirmwareName {
		return "", api.NewError(api.ErrCodeInvalidArgument, "bad firmware name").
			WithContext("name", base).WithContext("max", MaxFirmwareName)
	}
	return base + "-" + FirmwareVersion + ".bin", nil
}

// Loader reads firmware images from Dir.
type Loader struct {
	dir    string
	logger *log.Logger
	wg     sync.WaitGroup
}

// NewLoader creates a loader rooted at dir.
func NewLoader(dir string, logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.Default()
	}
	return &Loader{dir: dir, logger: logger}
}

// Request loads base synchronously.
func (l *Loader) Request(ctx context.Context, base string) (*Firmware, error) {
	name, err := FirmwareFileName(base)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, api.NewError(api.ErrCodeInterrupted, "firmware request cancelled").WithContext("name", name)
	}
	data, err := os.ReadFile(filepath.Join(l.dir, name))
	if err != nil {
		return nil, fmt.Errorf("platform: request firmware %s: %w", name, err)
	}
	return &Firmware{Name: name, Data: data, Digest: sha3.Sum256(data)}, nil
}

// RequestNowait validates base and loads it in the background, handing the
// result to cb. The load is detached from ctx cancellation. A failure
// reaches cb as a Result with Err set.
func (l *Loader) RequestNowait(ctx context.Context, base string, cb func(api.Result[*Firmware])) error {
	if _, err := FirmwareFileName(base); err != nil {
		return err
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		fw, err := l.Request(context.WithoutCancel(ctx), base)
		cb(api.Result[*Firmware]{Value: fw, Err: err})
	}()
	return nil
}

// Wait blocks until every pending RequestNowait callback has returned.
func (l *Loader) Wait() { l.wg.Wait() }

const (
	FirmwareWaitCompatible   = "ldddc,chrdev-fw_wait"
	FirmwareNowaitCompatible = "ldddc,chrdev-fw_nowait"

	// FirmwareDeviceLabel is registered at id 0 once the load is issued.
	FirmwareDeviceLabel = "chrdev-fw"
)

// FirmwareDriver loads the image named by the node's "firmware" property,
// then registers FirmwareDeviceLabel at id 0.
type FirmwareDriver struct {
	reg    *chrdev.Registry
	loader *Loader
	logger *log.Logger

	mu     sync.Mutex
	loaded []*Firmware
}

var _ Driver = (*FirmwareDriver)(nil)

// NewFirmwareDriver creates the driver.
func NewFirmwareDriver(reg *chrdev.Registry, loader *Loader, logger *log.Logger) *FirmwareDriver {
	if logger == nil {
		logger = log.Default()
	}
	return &FirmwareDriver{reg: reg, loader: loader, logger: logger}
}

func (d *FirmwareDriver) Name() string { return "chrdev-fw" }

func (d *FirmwareDriver) Compatible() []string {
	return []string{FirmwareWaitCompatible, FirmwareNowaitCompatible}
}

func (d *FirmwareDriver) accept(fw *Firmware) {
	for _, line := range fw.HexDump() {
		d.logger.Printf("[platform] %s", line)
	}
	d.logger.Printf("[platform] firmware %s loaded, %d bytes, sha3-256 %x", fw.Name, len(fw.Data), fw.Digest)
	d.mu.Lock()
	d.loaded = append(d.loaded, fw)
	d.mu.Unlock()
}

func (d *FirmwareDriver) Probe(ctx context.Context, n *Node) error {
	file, err := n.ReadString("firmware")
	if err != nil {
		d.logger.Printf("[platform] %s: unable to get property \"firmware\"!", n.Name)
		return err
	}
	switch {
	case n.IsCompatible(FirmwareWaitCompatible):
		fw, err := d.loader.Request(ctx, file)
		if err != nil {
			d.logger.Printf("[platform] %s: unable to load firmware: %v", n.Name, err)
			return err
		}
		d.accept(fw)
	case n.IsCompatible(FirmwareNowaitCompatible):
		err := d.loader.RequestNowait(ctx, file, func(res api.Result[*Firmware]) {
			d.logger.Printf("[platform] %s: firmware callback executed!", n.Name)
			fw, err := res.Get()
			if err != nil {
				d.logger.Printf("[platform] %s: unable to load firmware: %v", n.Name, err)
				return
			}
			d.accept(fw)
		})
		if err != nil {
			d.logger.Printf("[platform] %s: unable to register call back for firmware loading", n.Name)
			return err
		}
	}

	h, err := d.reg.Register(FirmwareDeviceLabel, 0, false, d, n)
	if err != nil {
		d.logger.Printf("[platform] %s: unable to register: %v", n.Name, err)
		return err
	}
	return h.Close()
}

func (d *FirmwareDriver) Remove(n *Node) error {
	return d.reg.Unregister(FirmwareDeviceLabel, 0)
}

// Loaded returns the images accepted so far.
func (d *FirmwareDriver) Loaded() []*Firmware {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Firmware(nil), d.loaded...)
}
