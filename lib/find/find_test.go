package find

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// fakeSys builds a minimal sysfs with one tty per device entry.
func fakeSys(t *testing.T, devs map[string]map[string]string) string {
	t.Helper()
	root := t.TempDir()
	mkdir := func(p string) {
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	class := filepath.Join(root, "class", "tty")
	mkdir(class)
	i := 1
	for tty, attrs := range devs {
		usbdev := filepath.Join(root, "devices", "pci0000:00", "usb1", "1-"+string(rune('0'+i)))
		intf := filepath.Join(usbdev, "1-"+string(rune('0'+i))+":1.0")
		ttydir := filepath.Join(intf, "tty", tty)
		mkdir(ttydir)
		for name, val := range attrs {
			if err := os.WriteFile(filepath.Join(usbdev, name), []byte(val+"\n"), 0o644); err != nil {
				t.Fatal(err)
			}
		}
		if err := os.Symlink(intf, filepath.Join(ttydir, "device")); err != nil {
			t.Fatal(err)
		}
		if err := os.Symlink(ttydir, filepath.Join(class, tty)); err != nil {
			t.Fatal(err)
		}
		i++
	}
	// a non-usb tty
	platform := filepath.Join(root, "devices", "platform", "serial8250", "tty", "ttyS0")
	mkdir(platform)
	if err := os.Symlink(platform, filepath.Join(class, "ttyS0")); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestAllUsbTtys(t *testing.T) {
	root := fakeSys(t, map[string]map[string]string{
		"ttyACM0": {"idVendor": "2341", "idProduct": "0043", "manufacturer": "Arduino (www.arduino.cc)", "serial": "A603UX94"},
		"ttyUSB0": {"idVendor": "0403", "idProduct": "6001", "product": "Prologix GPIB-USB Controller", "serial": "PX9RT5C3"},
	})
	ttys, err := Finder{Root: root}.AllUsbTtys()
	if err != nil {
		t.Fatal(err)
	}
	if len(ttys) != 2 {
		t.Fatalf("got %d ttys, want 2:\n%s", len(ttys), ttys)
	}
	for _, ut := range ttys {
		if ut.Dev == "ttyS0" {
			t.Error("non-usb tty listed")
		}
		if ut.Dev == "ttyACM0" && (ut.IDv != "2341" || ut.Serial != "A603UX94") {
			t.Errorf("bad attributes %s", ut)
		}
	}
}

func TestFind(t *testing.T) {
	root := fakeSys(t, map[string]map[string]string{
		"ttyACM0": {"idVendor": "2341", "idProduct": "0043", "manufacturer": "Arduino (www.arduino.cc)", "serial": "A603UX94"},
		"ttyUSB0": {"idVendor": "0403", "idProduct": "6001", "product": "Prologix GPIB-USB Controller", "serial": "PX9RT5C3"},
	})
	f := Finder{Root: root}
	tests := []struct {
		name   string
		filter FilterFn
		want   string
	}{
		{"arduino", ArduinoFilter, "ttyACM0"},
		{"prologix", PrologixFilter, "ttyUSB0"},
		{"serial", SerialFilter("A603UX94"), "ttyACM0"},
		{"vid/pid", VIDPIDFilter("0403", "6001"), "ttyUSB0"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.Find(tc.filter)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
	if _, err := f.Find(nil); err == nil {
		t.Error("expected an error for multiple ttys")
	}
	if _, err := f.Find(SerialFilter("nope")); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}
