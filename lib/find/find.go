// Package find locates USB serial adapters (Prologix, AR488 and USB VCP
// instruments) by walking sysfs.
package find

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

type FilterFn func(*Usbtty) bool

func ArduinoFilter(ut *Usbtty) bool {
	return strings.Contains(ut.Mfg, "Arduino")
}

func PrologixFilter(ut *Usbtty) bool {
	return strings.Contains(ut.Prod, "Prologix") || (ut.IDv == "0403" && ut.IDp == "6001" && strings.HasPrefix(ut.Serial, "PX"))
}

func SerialFilter(s string) FilterFn {
	return func(ut *Usbtty) bool { return ut.Serial == s }
}

// VIDPIDFilter matches the hex vendor and product ids as sysfs writes them,
// e.g. "1313" and "8072".
func VIDPIDFilter(vid, pid string) FilterFn {
	return func(ut *Usbtty) bool {
		return strings.EqualFold(ut.IDv, vid) && strings.EqualFold(ut.IDp, pid)
	}
}

// ErrNotFound is returned when no tty passes the filter.
var ErrNotFound = errors.New("no matching ttys found")

// Finder walks a sysfs tree. The zero value reads /sys and logs nothing.
type Finder struct {
	// Root replaces /sys; tests point it at a fake tree.
	Root   string
	Logger *zap.Logger
}

func (f Finder) root() string {
	if f.Root == "" {
		return "/sys"
	}
	return f.Root
}

func (f Finder) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

// Find searches the default sysfs for a usb serial device.
func Find(filter FilterFn) (string, error) {
	return Finder{}.Find(filter)
}

// Find searches for a usb serial device. If filter is not nil,
// it is used to narrow choices down. The first device for which
// it returns true (if any) is chosen.
func (f Finder) Find(filter FilterFn) (string, error) {
	ttys, err := f.AllUsbTtys()
	if err != nil {
		return "", err
	}
	if filter != nil {
		var match Usbttys
		for i := range ttys {
			if filter(&ttys[i]) {
				match = Usbttys{ttys[i]}
				break
			}
		}
		ttys = match
	}

	if len(ttys) == 0 {
		return "", ErrNotFound
	}
	if len(ttys) == 1 {
		return ttys[0].Dev, nil
	}
	return "", fmt.Errorf("multiple ttys:\n%s", ttys)
}

type Usbtty struct {
	Dev, Path string
	IDp, IDv  string
	Mfg, Prod string
	Serial    string
}

func (u Usbtty) String() string {
	return fmt.Sprintf("dev %s path %s pid/vid %s/%s mfg/prod %s/%s serial %s", u.Dev, u.Path, u.IDp, u.IDv, u.Mfg, u.Prod, u.Serial)
}

type Usbttys []Usbtty

func (uts Usbttys) String() string {
	s := make([]string, 0, len(uts))
	for _, ut := range uts {
		s = append(s, ut.String())
	}
	return strings.Join(s, "\n")
}

// AllUsbTtys lists ttys backed by usb devices, found by resolving the
// symlinks in class/tty.
func (f Finder) AllUsbTtys() (Usbttys, error) {
	var devs Usbttys
	log := f.logger()
	sct := filepath.Join(f.root(), "class", "tty")
	entries, err := os.ReadDir(sct)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Type()&fs.ModeSymlink == 0 {
			continue
		}
		// class/tty/ttyACM0 ->
		// devices/pci0000:00/0000:00:01.3/0000:02:00.0/usb1/1-10/1-10:1.0/tty/ttyACM0
		path := filepath.Join(sct, e.Name())
		abs, err := filepath.EvalSymlinks(path)
		if err != nil {
			log.Debug("skipping tty", zap.String("path", path), zap.Error(err))
			continue
		}
		if !onUsbBus(abs) {
			continue
		}
		// device points at the interface; the usb device is its parent.
		dev, err := filepath.EvalSymlinks(filepath.Join(abs, "device"))
		if err != nil {
			log.Warn("usb tty lacks device link", zap.String("path", abs), zap.Error(err))
			continue
		}
		ut, err := readUsbInfo(filepath.Dir(dev))
		if err != nil {
			log.Warn("reading usb attributes", zap.String("path", abs), zap.Error(err))
		}
		ut.Dev = e.Name()
		ut.Path = abs
		devs = append(devs, ut)
	}
	return devs, nil
}

func onUsbBus(path string) bool {
	for _, elem := range strings.Split(filepath.ToSlash(path), "/") {
		if strings.HasPrefix(elem, "usb") {
			return true
		}
	}
	return false
}

// readUsbInfo reads product and vendor ids and the mfg/product/serial
// strings. Missing files are ignored; the last other error is returned along
// with whatever was read.
func readUsbInfo(dev string) (Usbtty, error) {
	var ut Usbtty
	var err error
	for _, attr := range []struct {
		file string
		dst  *string
	}{
		{"idProduct", &ut.IDp},
		{"idVendor", &ut.IDv},
		{"manufacturer", &ut.Mfg},
		{"product", &ut.Prod},
		{"serial", &ut.Serial},
	} {
		b, rerr := os.ReadFile(filepath.Join(dev, attr.file))
		if rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			err = rerr
		}
		*attr.dst = strings.TrimSpace(string(b))
	}
	return ut, err
}
