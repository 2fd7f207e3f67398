// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package platform_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/momentics/hioload-chrdev/api"
	"github.com/momentics/hioload-chrdev/chrdev"
	"github.com/momentics/hioload-chrdev/platform"
	"golang.org/x/crypto/sha3"
)

const reqDescription = `{
  "model": "test board",
  "root": {
    "name": "/",
    "children": [
      {
        "name": "chrdev",
        "compatible": ["ldddc,chrdev"],
        "children": [
          {"name": "dev0", "properties": {"reg": 0, "label": "cdev-eeprom"}},
          {"name": "dev1", "properties": {"reg": [2], "label": "cdev-rom", "read-only": true}},
          {"name": "broken", "properties": {"label": "noreg"}},
          {"name": "nolabel", "properties": {"reg": 5}}
        ]
      },
      {"name": "uart", "compatible": ["vendor,uart"]}
    ]
  }
}`

func newRegistry(t *testing.T) *chrdev.Registry {
	t.Helper()
	r, err := chrdev.New(chrdev.WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestDescription_PropertyAccess(t *testing.T) {
	d, err := platform.ParseDescription([]byte(reqDescription))
	if err != nil {
		t.Fatal(err)
	}
	node := d.Root.Children[0]
	if !node.IsCompatible("ldddc,chrdev") || node.ChildCount() != 4 {
		t.Fatalf("node = %+v", node)
	}
	dev1 := node.Children[1]
	if id, err := dev1.ReadU32("reg"); err != nil || id != 2 {
		t.Fatalf("reg = %d %v", id, err)
	}
	if !dev1.PropertyPresent("read-only") || node.Children[0].PropertyPresent("read-only") {
		t.Fatal("read-only presence wrong")
	}
	if _, err := dev1.ReadU32("label"); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("ReadU32 on string = %v", err)
	}
	if _, err := dev1.ReadString("missing"); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("missing property = %v", err)
	}

	out, err := d.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	again, err := platform.ParseDescription(out)
	if err != nil || again.Model != "test board" || again.Root.Children[0].Children[0].Name != "dev0" {
		t.Fatalf("re-parse = %+v %v", again, err)
	}
	if _, err := platform.ParseDescription([]byte(`{"model":"x"}`)); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("rootless = %v", err)
	}
}

func TestReqDriver_ProbeAndRemove(t *testing.T) {
	var logs bytes.Buffer
	logger := log.New(&logs, "", 0)
	r := newRegistry(t)
	bus := platform.NewBus(logger)
	if err := bus.RegisterDriver(platform.NewReqDriver(r, logger, chrdev.WithoutProducer())); err != nil {
		t.Fatal(err)
	}
	if err := bus.RegisterDriver(platform.NewReqDriver(r, logger)); !errors.Is(err, api.ErrBusy) {
		t.Fatalf("duplicate driver = %v", err)
	}
	d, _ := platform.ParseDescription([]byte(reqDescription))
	n, err := bus.Probe(context.Background(), d.Root)
	if err != nil || n != 1 {
		t.Fatalf("Probe = %d %v", n, err)
	}
	if info, ok := r.Get(0); !ok || info.Label != "cdev-eeprom" || info.ReadOnly {
		t.Fatalf("id 0 = %+v %v", info, ok)
	}
	if info, ok := r.Get(2); !ok || info.Label != "cdev-rom" || !info.ReadOnly {
		t.Fatalf("id 2 = %+v %v", info, ok)
	}
	if _, ok := r.Get(5); ok {
		t.Fatal("child without label was registered")
	}
	if !strings.Contains(logs.String(), `"reg" not present`) || !strings.Contains(logs.String(), `"label" not present`) {
		t.Fatalf("skips not logged:\n%s", logs.String())
	}
	// Already bound: a second probe binds nothing.
	if n, _ := bus.Probe(context.Background(), d.Root); n != 0 {
		t.Fatalf("second probe bound %d", n)
	}
	if _, ok := r.Get(0); !ok {
		t.Fatal("device lost")
	}
	if err := bus.Remove(d.Root); err != nil {
		t.Fatal(err)
	}
	if len(r.Devices()) != 0 || bus.Bound() != 0 {
		t.Fatalf("devices after remove: %+v", r.Devices())
	}
}

func TestReqDriver_ChildCountLimits(t *testing.T) {
	r := newRegistry(t)
	drv := platform.NewReqDriver(r, log.New(io.Discard, "", 0))
	empty := &platform.Node{Name: "empty", Compatible: []string{platform.ReqCompatible}}
	if err := drv.Probe(context.Background(), empty); !errors.Is(err, api.ErrNoDevice) {
		t.Fatalf("empty = %v", err)
	}
	big := &platform.Node{Name: "big"}
	for i := 0; i <= r.MaxDevices(); i++ {
		big.Children = append(big.Children, &platform.Node{Properties: map[string]any{"reg": float64(i), "label": "x"}})
	}
	if err := drv.Probe(context.Background(), big); !errors.Is(err, api.ErrOutOfMemory) {
		t.Fatalf("oversized = %v", err)
	}
	if len(r.Devices()) != 0 {
		t.Fatal("oversized probe registered devices")
	}
}

func writeFirmware(t *testing.T, dir, base string, data []byte) {
	t.Helper()
	name, err := platform.FirmwareFileName(base)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFirmware_NameAndDump(t *testing.T) {
	if name, _ := platform.FirmwareFileName("fw"); name != "fw-1.0.0.bin" {
		t.Fatalf("name = %q", name)
	}
	if _, err := platform.FirmwareFileName(strings.Repeat("a", platform.MaxFirmwareName)); err != nil {
		t.Fatalf("longest name rejected: %v", err)
	}
	if _, err := platform.FirmwareFileName(strings.Repeat("a", platform.MaxFirmwareName+1)); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("long name = %v", err)
	}
	fw := &platform.Firmware{Data: []byte("ABCDEFGH\x01")}
	lines := fw.HexDump()
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "41[A] 42[B] ") || lines[1] != "01[-] " {
		t.Fatalf("dump = %q", lines)
	}
}

func TestFirmwareDriver_Wait(t *testing.T) {
	dir := t.TempDir()
	data := []byte("firmware image")
	writeFirmware(t, dir, "chrdev-fw", data)
	r := newRegistry(t)
	logger := log.New(io.Discard, "", 0)
	drv := platform.NewFirmwareDriver(r, platform.NewLoader(dir, logger), logger)
	node := &platform.Node{
		Name:       "fw",
		Compatible: []string{platform.FirmwareWaitCompatible},
		Properties: map[string]any{"firmware": "chrdev-fw"},
	}
	if err := drv.Probe(context.Background(), node); err != nil {
		t.Fatal(err)
	}
	loaded := drv.Loaded()
	if len(loaded) != 1 || loaded[0].Digest != sha3.Sum256(data) {
		t.Fatalf("loaded = %+v", loaded)
	}
	if info, ok := r.Get(0); !ok || info.Label != platform.FirmwareDeviceLabel {
		t.Fatalf("id 0 = %+v", info)
	}
	if err := drv.Remove(node); err != nil {
		t.Fatal(err)
	}

	missing := &platform.Node{Name: "fw", Compatible: node.Compatible, Properties: map[string]any{"firmware": "absent"}}
	if err := drv.Probe(context.Background(), missing); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("missing image = %v", err)
	}
	if _, ok := r.Get(0); ok {
		t.Fatal("registered despite failed load")
	}
	noProp := &platform.Node{Name: "fw", Compatible: node.Compatible}
	if err := drv.Probe(context.Background(), noProp); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("no firmware property = %v", err)
	}
}

func TestFirmwareDriver_Nowait(t *testing.T) {
	dir := t.TempDir()
	writeFirmware(t, dir, "async", []byte{0xde, 0xad})
	r := newRegistry(t)
	var logs bytes.Buffer
	logger := log.New(&logs, "", 0)
	loader := platform.NewLoader(dir, logger)
	drv := platform.NewFirmwareDriver(r, loader, logger)
	for _, name := range []string{"async", "gone"} {
		node := &platform.Node{
			Name:       name,
			Compatible: []string{platform.FirmwareNowaitCompatible},
			Properties: map[string]any{"firmware": name},
		}
		// The device registers before the image arrives, even when it never does.
		if err := drv.Probe(context.Background(), node); err != nil {
			t.Fatal(err)
		}
		if err := drv.Remove(node); err != nil {
			t.Fatal(err)
		}
	}
	loader.Wait()
	if loaded := drv.Loaded(); len(loaded) != 1 || loaded[0].Name != "async-1.0.0.bin" {
		t.Fatalf("loaded = %+v", loaded)
	}
	if strings.Count(logs.String(), "firmware callback executed!") != 2 {
		t.Fatalf("callbacks not logged:\n%s", logs.String())
	}
}

func TestBus_ProbeErrorsJoined(t *testing.T) {
	r := newRegistry(t)
	bus := platform.NewBus(log.New(io.Discard, "", 0))
	bus.RegisterDriver(platform.NewReqDriver(r, nil))
	root := &platform.Node{Name: "/", Children: []*platform.Node{
		{Name: "a", Compatible: []string{platform.ReqCompatible}},
		{Name: "b", Compatible: []string{platform.ReqCompatible}},
	}}
	n, err := bus.Probe(context.Background(), root)
	if n != 0 || !errors.Is(err, api.ErrNoDevice) {
		t.Fatalf("Probe = %d %v", n, err)
	}
}
