package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultTelemetryInterval is how often a simulated device reports unprompted
const DefaultTelemetryInterval = 5 * time.Second

// Profile describes how a simulated device answers commands and what
// telemetry it emits
type Profile struct {
	Name        string
	Title       string
	DefaultBaud int

	responses map[string]string
	unknown   func(cmd string) string
	telemetry func(n uint32) string
}

// profile builds a Profile. Commands in queries also answer with a trailing '?'.
func profile(name, title string, baud int, queries, actions map[string]string,
	unknown func(string) string, telemetry func(uint32) string) *Profile {

	responses := make(map[string]string, 2*len(queries)+len(actions))
	for cmd, resp := range queries {
		responses[cmd] = resp
		responses[cmd+"?"] = resp
	}
	for cmd, resp := range actions {
		responses[cmd] = resp
	}

	return &Profile{
		Name:        name,
		Title:       title,
		DefaultBaud: baud,
		responses:   responses,
		unknown:     unknown,
		telemetry:   telemetry,
	}
}

var profiles = map[string]*Profile{
	"iot": profile("iot", "IoT Sensor", 115200,
		map[string]string{
			"STATUS":   "STATUS:OK\n",
			"VERSION":  "VERSION:1.0.0\n",
			"ID":       "ID:IOT-SENSOR-001\n",
			"HELP":     "COMMANDS: STATUS, VERSION, ID, TEMP, HUMIDITY, HELP\n",
			"TEMP":     "TEMP:23.45\n",
			"HUMIDITY": "HUMIDITY:58.2\n",
		},
		nil,
		func(cmd string) string { return "ERROR:UNKNOWN_COMMAND:" + cmd + "\n" },
		func(n uint32) string {
			temp := 20 + math.Sin(float64(n)*0.1)*5
			humidity := 50 + math.Cos(float64(n)*0.05)*10
			return fmt.Sprintf("{\"temperature\":%.2f,\"humidity\":%.2f,\"timestamp\":%d}\n", temp, humidity, n)
		},
	),
	"mcu": profile("mcu", "Embedded MCU", 9600,
		map[string]string{
			"STATUS":  "OK\n",
			"VERSION": "MCU v2.1.0\n",
			"ID":      "ARDUINO-MEGA-2560\n",
			"HELP":    "AVAILABLE: STATUS, VERSION, ID, READ, RESET, HELP\n",
			"READ":    "ADC0:512,ADC1:768,ADC2:256\n",
		},
		map[string]string{
			"RESET": "RESETTING...\nOK\n",
		},
		func(cmd string) string { return "ERR:" + cmd + "\n" },
		func(n uint32) string {
			adc := uint16(512 + math.Sin(float64(n)*0.1)*200)
			return fmt.Sprintf("ADC:%d,COUNT:%d\n", adc, n)
		},
	),
	"plc": profile("plc", "Industrial PLC", 19200,
		map[string]string{
			"STATUS":   "PLC:RUNNING,MODE:AUTO\n",
			"VERSION":  "PLC-5000 v3.2.1\n",
			"ID":       "PLC-5000-SN:98765\n",
			"HELP":     "COMMANDS: STATUS, VERSION, ID, PRESSURE, STOP, START, HELP\n",
			"PRESSURE": "PRESSURE:105.3 PSI\n",
		},
		map[string]string{
			"STOP":  "SYSTEM:STOPPED\n",
			"START": "SYSTEM:STARTED\n",
		},
		func(cmd string) string { return "ERR:INVALID_CMD:" + cmd + "\n" },
		func(n uint32) string {
			pressure := 100 + math.Sin(float64(n)*0.2)*20
			status := "OK"
			if n%10 >= 8 {
				status = "WARN"
			}
			return fmt.Sprintf("PRESSURE:%.2f,STATUS:%s,CYCLE:%d\n", pressure, status, n)
		},
	),
}

var profileAliases = map[string]string{
	"sensor":     "iot",
	"embedded":   "mcu",
	"industrial": "plc",
}

// LookupProfile returns the device profile named by kind or one of its aliases
func LookupProfile(kind string) (*Profile, error) {
	key := strings.ToLower(strings.TrimSpace(kind))
	if alias, ok := profileAliases[key]; ok {
		key = alias
	}
	if p, ok := profiles[key]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("unknown device type %q (valid: %s)", kind, strings.Join(ProfileNames(), ", "))
}

// ProfileNames lists the device types that can be simulated
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Respond returns the device's answer to a single command line
func (p *Profile) Respond(line string) string {
	cmd := strings.ToUpper(strings.TrimSpace(line))
	if resp, ok := p.responses[cmd]; ok {
		return resp
	}
	return p.unknown(cmd)
}

// Telemetry returns the n-th unsolicited report
func (p *Profile) Telemetry(n uint32) string {
	return p.telemetry(n)
}

// MockOptions tunes a simulated device
type MockOptions struct {
	// Telemetry is the reporting interval; zero disables telemetry
	Telemetry time.Duration
	// Echo writes every received chunk back before answering
	Echo bool
}

// MockDevice answers commands arriving on a serial port the way a real
// device of its profile would
type MockDevice struct {
	profile *Profile
	port    io.ReadWriter
	options MockOptions
	logger  *zap.Logger

	writeMu sync.Mutex
	pending []byte
}

// NewMockDevice creates a simulator speaking profile over port
func NewMockDevice(p *Profile, port io.ReadWriter, opts MockOptions, logger *zap.Logger) *MockDevice {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MockDevice{
		profile: p,
		port:    port,
		options: opts,
		logger:  logger.With(zap.String("device", p.Name)),
	}
}

// Run serves commands until ctx is cancelled or the port reaches EOF
func (d *MockDevice) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	if d.options.Telemetry > 0 {
		g.Go(func() error {
			return d.telemetryLoop(ctx)
		})
	}

	g.Go(func() error {
		defer cancel()
		return d.readLoop(ctx)
	})

	return g.Wait()
}

func (d *MockDevice) readLoop(ctx context.Context) error {
	buf := make([]byte, 256)
	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := d.port.Read(buf)
		if n > 0 {
			if werr := d.handle(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read from port: %w", err)
		}
	}
}

// handle processes one chunk. Commands may span chunks; CR and LF both end a line.
func (d *MockDevice) handle(chunk []byte) error {
	d.logger.Debug("Received", zap.Int("bytes", len(chunk)), zap.ByteString("data", chunk))

	if d.options.Echo {
		if err := d.write(chunk); err != nil {
			return err
		}
	}

	d.pending = append(d.pending, chunk...)
	for {
		i := strings.IndexAny(string(d.pending), "\r\n")
		if i < 0 {
			return nil
		}
		line := strings.TrimSpace(string(d.pending[:i]))
		d.pending = d.pending[i+1:]
		if line == "" {
			continue
		}

		resp := d.profile.Respond(line)
		d.logger.Info("Command",
			zap.String("command", line),
			zap.String("response", strings.TrimSpace(resp)),
		)
		if err := d.write([]byte(resp)); err != nil {
			return err
		}
	}
}

func (d *MockDevice) telemetryLoop(ctx context.Context) error {
	ticker := time.NewTicker(d.options.Telemetry)
	defer ticker.Stop()

	var n uint32
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			report := d.profile.Telemetry(n)
			n++
			d.logger.Debug("Telemetry", zap.String("data", strings.TrimSpace(report)))
			if err := d.write([]byte(report)); err != nil {
				d.logger.Warn("Failed to send telemetry", zap.Error(err))
			}
		}
	}
}

func (d *MockDevice) write(data []byte) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if _, err := d.port.Write(data); err != nil {
		return fmt.Errorf("failed to write to port: %w", err)
	}
	return nil
}
