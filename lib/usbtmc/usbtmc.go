// Package usbtmc is an instrument.Transport for USB Test and Measurement
// Class devices such as the Thorlabs PM100USB, driven through libusb.
package usbtmc

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/gousb"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const defaultMaxRead = 1024

// Device frames SCPI messages over a pair of bulk endpoints.
type Device struct {
	out     io.Writer
	in      io.Reader
	tag     byte
	maxRead uint32
	term    byte
	logger  *zap.Logger
	closer  func() error
}

type Option func(*Device)

func WithLogger(logger *zap.Logger) Option {
	return func(d *Device) { d.logger = logger.With(zap.String("transport", "usbtmc")) }
}

// WithTermChar makes the device end each read transfer at c.
func WithTermChar(c byte) Option {
	return func(d *Device) { d.term = c }
}

func newDevice(out io.Writer, in io.Reader, opts ...Option) *Device {
	d := &Device{out: out, in: in, maxRead: defaultMaxRead, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Open claims the default interface of the first device with the given
// vendor and product id and finds its bulk endpoints.
func Open(vid, pid uint16, opts ...Option) (*Device, error) {
	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("open %04x:%04x: %w", vid, pid, err), ctx.Close())
	}
	if dev == nil {
		return nil, multierr.Append(fmt.Errorf("usb device %04x:%04x not found", vid, pid), ctx.Close())
	}
	if err := dev.SetAutoDetach(true); err != nil {
		return nil, multierr.Combine(err, dev.Close(), ctx.Close())
	}
	intf, done, err := dev.DefaultInterface()
	if err != nil {
		return nil, multierr.Combine(fmt.Errorf("claim interface: %w", err), dev.Close(), ctx.Close())
	}
	release := func() error {
		done()
		return multierr.Combine(dev.Close(), ctx.Close())
	}

	var outNum, inNum int
	var haveOut, haveIn bool
	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch ep.Direction {
		case gousb.EndpointDirectionOut:
			outNum, haveOut = ep.Number, true
		case gousb.EndpointDirectionIn:
			inNum, haveIn = ep.Number, true
		}
	}
	if !haveOut || !haveIn {
		return nil, multierr.Append(fmt.Errorf("%04x:%04x has no bulk endpoint pair", vid, pid), release())
	}
	out, err := intf.OutEndpoint(outNum)
	if err != nil {
		return nil, multierr.Append(err, release())
	}
	in, err := intf.InEndpoint(inNum)
	if err != nil {
		return nil, multierr.Append(err, release())
	}

	d := newDevice(out, in, opts...)
	d.closer = release
	d.logger.Info("opened usbtmc device",
		zap.String("vid", fmt.Sprintf("%04x", vid)),
		zap.String("pid", fmt.Sprintf("%04x", pid)),
		zap.Int("out", outNum),
		zap.Int("in", inNum),
	)
	return d, nil
}

// nextTag cycles 1..255; zero is reserved.
func (d *Device) nextTag() byte {
	d.tag++
	if d.tag == 0 {
		d.tag = 1
	}
	return d.tag
}

// Write sends cmd terminated by a newline.
func (d *Device) Write(cmd string) error {
	d.logger.Debug("write", zap.String("cmd", cmd))
	msg := encodeOut(d.nextTag(), []byte(strings.TrimRight(cmd, "\n")+"\n"))
	n, err := d.out.Write(msg)
	if err != nil {
		return fmt.Errorf("usbtmc write: %w", err)
	}
	if n != len(msg) {
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(msg))
	}
	return nil
}

// Read requests transfers until the device sets EOM and returns the message
// without its trailing newline.
func (d *Device) Read() (string, error) {
	var msg []byte
	buf := make([]byte, headerSize+int(d.maxRead)+3)
	for {
		tag := d.nextTag()
		if _, err := d.out.Write(encodeRequestIn(tag, d.maxRead, d.term)); err != nil {
			return "", fmt.Errorf("usbtmc request: %w", err)
		}
		n, err := d.in.Read(buf)
		if err != nil {
			return "", fmt.Errorf("usbtmc read: %w", err)
		}
		h, body, err := decodeIn(buf[:n], tag)
		if err != nil {
			return "", err
		}
		payload := append([]byte(nil), body...)
		for uint32(len(payload)) < h.size {
			n, err := d.in.Read(buf)
			if err != nil {
				return "", fmt.Errorf("usbtmc read: %w", err)
			}
			if n == 0 {
				return "", io.ErrUnexpectedEOF
			}
			payload = append(payload, buf[:n]...)
		}
		msg = append(msg, payload[:h.size]...)
		if h.eom() {
			break
		}
	}
	s := strings.TrimRight(string(msg), "\r\n")
	d.logger.Debug("read", zap.String("response", s))
	return s, nil
}

func (d *Device) Ask(cmd string) (string, error) {
	if err := d.Write(cmd); err != nil {
		return "", err
	}
	return d.Read()
}

// Close releases the interface and the libusb context.
func (d *Device) Close() error {
	if d.closer == nil {
		return nil
	}
	err := d.closer()
	d.closer = nil
	return err
}
