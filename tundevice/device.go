package tundevice

import (
	"os"
	"sync"
)

// Device is an established tunnel interface. It is owned by whoever received
// it from CreateInterface and must be closed exactly once, either by Close or
// by handing the descriptor over with Detach.
type Device struct {
	name    string
	file    *os.File
	cleanup func() error

	once sync.Once
	err  error
}

// NewDevice wraps an established interface. cleanup runs once after file is
// closed and undoes host configuration; it may be nil.
func NewDevice(name string, file *os.File, cleanup func() error) *Device {
	return &Device{name: name, file: file, cleanup: cleanup}
}

// Name returns the interface name chosen by the host.
func (d *Device) Name() string {
	return d.name
}

// File returns the packet file of the interface.
func (d *Device) File() *os.File {
	return d.file
}

// Fd returns the raw descriptor of the interface, or -1 once closed.
// Unlike os.File.Fd it leaves the descriptor in non-blocking mode.
func (d *Device) Fd() int {
	fd := -1
	if d.file == nil {
		return fd
	}
	rc, err := d.file.SyscallConn()
	if err != nil {
		return fd
	}
	if err := rc.Control(func(u uintptr) { fd = int(u) }); err != nil {
		return -1
	}
	return fd
}

// Close closes the interface. Further calls return the first result.
func (d *Device) Close() error {
	d.once.Do(func() {
		if d.file != nil {
			d.err = d.file.Close()
		}
		if d.cleanup != nil {
			if err := d.cleanup(); err != nil && d.err == nil {
				d.err = err
			}
		}
	})
	return d.err
}
