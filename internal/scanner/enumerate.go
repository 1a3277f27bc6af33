package scanner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/nerrad567/sane2mqtt/internal/infrastructure/config"
)

// scanimageFormat makes scanimage print one tab-separated line per device:
// name, vendor, model, type.
const scanimageFormat = "%d\t%v\t%m\t%t%n"

// defaultEnumerateTimeout bounds a scanimage run when none is configured.
const defaultEnumerateTimeout = 30 * time.Second

// Logger defines the logging interface used by enumerators.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Enumerator produces the device list at startup.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]Device, error)
}

// ScanimageEnumerator lists devices by running the SANE command-line frontend.
type ScanimageEnumerator struct {
	Binary  string
	Timeout time.Duration
	Logger  Logger
}

// Enumerate runs `<binary> -f <format>` and parses its output.
// Blank and malformed lines are skipped. A missing binary, a non-zero exit
// or a timeout return an error wrapping ErrEnumerationFailed.
func (e *ScanimageEnumerator) Enumerate(ctx context.Context) ([]Device, error) {
	logger := e.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = defaultEnumerateTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, e.Binary, "-f", scanimageFormat) //nolint:gosec // Binary comes from validated config
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s timed out after %v", ErrEnumerationFailed, e.Binary, timeout)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: cancelled: %w", ErrEnumerationFailed, ctx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s: %w: %s", ErrEnumerationFailed, e.Binary, err, msg)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrEnumerationFailed, e.Binary, err)
	}

	return parseScanimage(output, logger), nil
}

// parseScanimage turns scanimage -f output into devices.
func parseScanimage(output []byte, logger Logger) []Device {
	var devices []Device

	sc := bufio.NewScanner(bytes.NewReader(output))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 || fields[0] == "" {
			logger.Debug("skipping malformed scanimage line", "line", line)
			continue
		}
		devices = append(devices, Device{
			Port:      fields[0],
			Vendor:    fields[1],
			ProductID: fields[2],
			Type:      fields[3],
		})
	}

	return devices
}

// StaticEnumerator returns a fixed device list, typically from configuration.
type StaticEnumerator struct {
	Devices []Device
}

// Enumerate returns a copy of the configured devices.
func (e *StaticEnumerator) Enumerate(ctx context.Context) ([]Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnumerationFailed, err)
	}
	out := make([]Device, len(e.Devices))
	copy(out, e.Devices)
	return out, nil
}

// NewEnumerator builds the enumerator selected by cfg.Source.
func NewEnumerator(cfg config.ScannerConfig, logger Logger) (Enumerator, error) {
	switch cfg.Source {
	case config.ScannerSourceScanimage:
		return &ScanimageEnumerator{
			Binary:  cfg.Binary,
			Timeout: cfg.GetTimeout(),
			Logger:  logger,
		}, nil
	case config.ScannerSourceStatic:
		devices := make([]Device, 0, len(cfg.Devices))
		for _, d := range cfg.Devices {
			devices = append(devices, Device{
				Port:      d.Port,
				Vendor:    d.Vendor,
				ProductID: d.ProductID,
				Type:      d.Type,
			})
		}
		return &StaticEnumerator{Devices: devices}, nil
	default:
		return nil, fmt.Errorf("unknown scanner source %q", cfg.Source)
	}
}

// Load enumerates devices and populates reg. Enumeration problems are
// logged as warnings and leave the registry empty; they never stop startup.
func Load(ctx context.Context, e Enumerator, reg *Registry, logger Logger) int {
	if logger == nil {
		logger = noopLogger{}
	}

	devices, err := e.Enumerate(ctx)
	if err != nil {
		logger.Warn("device enumeration failed, continuing with no devices", "error", err)
		reg.Populate(nil)
		return 0
	}
	if len(devices) == 0 {
		logger.Warn("no scanner devices found")
	}

	reg.Populate(devices)
	return len(devices)
}
