// Package connutil holds the connection settings shared by the command line
// tools, loaded from flags, INSTRUMENT_* environment variables and an
// optional config file, and opens the selected transport.
package connutil

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gotmc/instrument"
	"github.com/gotmc/instrument/lib/find"
	"github.com/gotmc/instrument/lib/logging"
	"github.com/gotmc/instrument/lib/prologix"
	"github.com/gotmc/instrument/lib/stream"
	"github.com/gotmc/instrument/lib/usbtmc"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.bug.st/serial"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Transport kinds.
const (
	KindSerial   = "serial"
	KindPrologix = "prologix"
	KindTCP      = "tcp"
	KindUSBTMC   = "usbtmc"
)

type Conn struct {
	Kind    string        `mapstructure:"kind"`
	Port    string        `mapstructure:"port"`
	Baud    int           `mapstructure:"baud"`
	Addr    string        `mapstructure:"addr"`
	GpibPAD int           `mapstructure:"pad"`
	GpibSAD int           `mapstructure:"sad"`
	AR488   bool          `mapstructure:"ar488"`
	Delay   time.Duration `mapstructure:"delay"`
	Timeout time.Duration `mapstructure:"timeout"`
	VID     string        `mapstructure:"vid"`
	PID     string        `mapstructure:"pid"`
	Profile string        `mapstructure:"profile"`

	Log logging.Config `mapstructure:"log"`

	// Finder locates serial ports when Port is empty.
	Finder find.Finder `mapstructure:"-"`
}

// AddFlags is to be called before [pflag.FlagSet.Parse]. Defaults describe
// a Prologix controller at GPIB address 4.
func AddFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (yaml)")
	fs.String("kind", KindPrologix, "transport: serial, prologix, tcp or usbtmc")
	fs.String("port", "", "serial port; located via sysfs when empty")
	fs.Int("baud", 115200, "serial baud rate")
	fs.String("addr", "", "host:port for tcp, usually port 5025")
	fs.Int("pad", 4, "GPIB primary address for the device")
	fs.Int("sad", 0, "GPIB secondary address for the device, 0 for none")
	fs.Bool("ar488", false, "controller is an Arduino AR488")
	fs.Duration("delay", 0, "delay between controller writes")
	fs.Duration("timeout", 2*time.Second, "read timeout")
	fs.String("vid", "", "usb vendor id (hex)")
	fs.String("pid", "", "usb product id (hex)")
	fs.String("profile", "", "instrument profile (yaml)")
	fs.String("log.level", "info", "log level")
	fs.String("log.format", "console", "log format: console or json")
	fs.String("log.output", "stderr", "stdout, stderr or a log file path")
}

// Load is to be called after the flag set is parsed. Explicit flags beat
// environment variables, which beat the config file, which beats flag
// defaults.
func Load(fs *pflag.FlagSet) (*Conn, error) {
	v := viper.New()
	v.SetEnvPrefix("INSTRUMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := logging.Default()
	v.SetDefault("log.max_size", def.MaxSize)
	v.SetDefault("log.max_backups", def.MaxBackups)
	v.SetDefault("log.max_age", def.MaxAge)
	v.SetDefault("log.compress", def.Compress)

	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	if cfg := v.GetString("config"); cfg != "" {
		v.SetConfigFile(cfg)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var c Conn
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &c, nil
}

// Logger builds the logger described by the log settings.
func (c *Conn) Logger() (*zap.Logger, error) { return logging.New(c.Log) }

// Setup opens the configured transport. The cleanup func returns the
// instrument to local control where that applies and closes the link.
func (c *Conn) Setup(logger *zap.Logger) (tr instrument.Transport, cleanup func() error, err error) {
	nocleanup := func() error { return nil }
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("kind", c.Kind))

	switch c.Kind {
	case KindSerial:
		port, err := c.openSerial(logger, nil)
		if err != nil {
			return nil, nocleanup, err
		}
		s := stream.New(port, stream.WithLogger(logger))
		return s, func() error {
			return multierr.Append(port.ResetInputBuffer(), s.Close())
		}, nil

	case KindPrologix:
		port, err := c.openSerial(logger, find.PrologixFilter)
		if err != nil {
			return nil, nocleanup, err
		}
		opts := []prologix.ControllerOption{prologix.WithLogger(logger)}
		if c.Delay > 0 {
			opts = append(opts, prologix.WithWriteDelay(c.Delay))
		}
		if c.GpibSAD != 0 {
			opts = append(opts, prologix.WithSecondaryAddress(c.GpibSAD))
		}
		if c.AR488 {
			opts = append(opts, prologix.WithAR488())
		}
		gpib, err := prologix.NewController(port, c.GpibPAD, false, opts...)
		if err != nil {
			return nil, nocleanup, multierr.Append(err, port.Close())
		}
		return gpib, func() error {
			// Return local control to the front panel, then discard any
			// unread data and close.
			err := gpib.FrontPanel(true)
			return multierr.Combine(err, port.ResetInputBuffer(), port.Close())
		}, nil

	case KindTCP:
		if c.Addr == "" {
			return nil, nocleanup, errors.New("tcp transport needs an address")
		}
		nc, err := net.DialTimeout("tcp", c.Addr, c.Timeout)
		if err != nil {
			return nil, nocleanup, fmt.Errorf("dial %s: %w", c.Addr, err)
		}
		logger.Info("connected", zap.String("addr", c.Addr))
		s := stream.New(deadlineConn{Conn: nc, timeout: c.Timeout}, stream.WithLogger(logger))
		return s, s.Close, nil

	case KindUSBTMC:
		vid, err := parseHexID(c.VID)
		if err != nil {
			return nil, nocleanup, fmt.Errorf("invalid vendor ID: %w", err)
		}
		pid, err := parseHexID(c.PID)
		if err != nil {
			return nil, nocleanup, fmt.Errorf("invalid product ID: %w", err)
		}
		dev, err := usbtmc.Open(vid, pid, usbtmc.WithLogger(logger))
		if err != nil {
			return nil, nocleanup, err
		}
		return dev, dev.Close, nil
	}
	return nil, nocleanup, fmt.Errorf("unknown transport kind %q", c.Kind)
}

func (c *Conn) openSerial(logger *zap.Logger, filter find.FilterFn) (serial.Port, error) {
	path := c.Port
	if path == "" {
		if c.VID != "" && c.PID != "" {
			filter = find.VIDPIDFilter(strings.TrimPrefix(c.VID, "0x"), strings.TrimPrefix(c.PID, "0x"))
		}
		f := c.Finder
		if f.Logger == nil {
			f.Logger = logger
		}
		tty, err := f.Find(filter)
		if err != nil {
			logger.Warn("locating serial port failed, guessing ttyACM0", zap.Error(err))
			tty = "ttyACM0"
		}
		path = "/dev/" + tty
	}
	logger.Info("opening serial port", zap.String("port", path), zap.Int("baud", c.Baud))
	port, err := serial.Open(path, &serial.Mode{BaudRate: c.Baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if c.Timeout > 0 {
		if err := port.SetReadTimeout(c.Timeout); err != nil {
			return nil, multierr.Append(err, port.Close())
		}
	}
	return timeoutPort{port}, nil
}

// timeoutPort turns the zero-byte read that signals a serial read timeout
// into an error.
type timeoutPort struct{ serial.Port }

func (p timeoutPort) Read(b []byte) (int, error) {
	n, err := p.Port.Read(b)
	if n == 0 && err == nil && len(b) > 0 {
		return 0, os.ErrDeadlineExceeded
	}
	return n, err
}

// deadlineConn arms a read deadline before every read.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c deadlineConn) Read(b []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

var _ io.ReadWriteCloser = deadlineConn{}

// parseHexID parses "1313" or "0x1313".
func parseHexID(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	id, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(id), nil
}
