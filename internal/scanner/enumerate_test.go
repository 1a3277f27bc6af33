package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/nerrad567/sane2mqtt/internal/infrastructure/config"
)

// writeScript creates an executable shell script standing in for scanimage.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "scanimage")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil { //nolint:gosec // test script must be executable
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

type recordingLogger struct {
	debugs []string
	warns  []string
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.debugs = append(l.debugs, msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.warns = append(l.warns, msg) }

func TestScanimageEnumerator_ParsesOutput(t *testing.T) {
	bin := writeScript(t, `printf 'epson2:libusb:001:004\tEpson\tV300\tflatbed scanner\n'
printf '\n'
printf 'broken line without tabs\n'
printf 'pixma:04A91912\tCanon\tLiDE 400\tflatbed scanner\n'`)

	logger := &recordingLogger{}
	e := &ScanimageEnumerator{Binary: bin, Timeout: 5 * time.Second, Logger: logger}

	devices, err := e.Enumerate(context.Background())
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("Enumerate() returned %d devices, want 2: %+v", len(devices), devices)
	}
	if devices[0] != epsonV300() {
		t.Errorf("devices[0] = %+v, want %+v", devices[0], epsonV300())
	}
	if devices[1].Vendor != "Canon" {
		t.Errorf("devices[1].Vendor = %q, want Canon", devices[1].Vendor)
	}
	if len(logger.debugs) != 1 {
		t.Errorf("debug logs = %v, want one malformed-line entry", logger.debugs)
	}
}

func TestScanimageEnumerator_PassesFormat(t *testing.T) {
	// Only answer when invoked as `scanimage -f '%d\t%v\t%m\t%t%n'`.
	bin := writeScript(t, `[ "$1" = "-f" ] || exit 2
case "$2" in
  '%d'*'%v'*'%m'*'%t%n') printf 'p\tv\tm\tt\n' ;;
  *) exit 3 ;;
esac`)

	devices, err := (&ScanimageEnumerator{Binary: bin}).Enumerate(context.Background())
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if len(devices) != 1 || devices[0].Port != "p" {
		t.Errorf("Enumerate() = %+v, want one device on port p", devices)
	}
}

func TestScanimageEnumerator_Errors(t *testing.T) {
	tests := []struct {
		name    string
		binary  func(t *testing.T) string
		timeout time.Duration
	}{
		{
			name:   "missing binary",
			binary: func(t *testing.T) string { return filepath.Join(t.TempDir(), "does-not-exist") },
		},
		{
			name:   "non-zero exit",
			binary: func(t *testing.T) string { return writeScript(t, `echo "no SANE devices" >&2; exit 1`) },
		},
		{
			name:    "timeout",
			binary:  func(t *testing.T) string { return writeScript(t, `exec sleep 5`) },
			timeout: 100 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &ScanimageEnumerator{Binary: tt.binary(t), Timeout: tt.timeout}
			_, err := e.Enumerate(context.Background())
			if !errors.Is(err, ErrEnumerationFailed) {
				t.Errorf("Enumerate() error = %v, want ErrEnumerationFailed", err)
			}
		})
	}
}

func TestStaticEnumerator(t *testing.T) {
	e := &StaticEnumerator{Devices: []Device{epsonV300()}}

	devices, err := e.Enumerate(context.Background())
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if len(devices) != 1 || devices[0] != epsonV300() {
		t.Errorf("Enumerate() = %+v, want [V300]", devices)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Enumerate(ctx); !errors.Is(err, ErrEnumerationFailed) {
		t.Errorf("Enumerate(cancelled) error = %v, want ErrEnumerationFailed", err)
	}
}

func TestNewEnumerator(t *testing.T) {
	static := config.ScannerConfig{
		Source: config.ScannerSourceStatic,
		Devices: []config.DeviceConfig{
			{Port: "epson2:libusb:001:004", Vendor: "Epson", ProductID: "V300", Type: "flatbed scanner"},
		},
	}
	e, err := NewEnumerator(static, nil)
	if err != nil {
		t.Fatalf("NewEnumerator(static) error = %v", err)
	}
	devices, _ := e.Enumerate(context.Background())
	if len(devices) != 1 || devices[0] != epsonV300() {
		t.Errorf("static devices = %+v, want [V300]", devices)
	}

	e, err = NewEnumerator(config.ScannerConfig{Source: config.ScannerSourceScanimage, Binary: "scanimage", Timeout: 7}, nil)
	if err != nil {
		t.Fatalf("NewEnumerator(scanimage) error = %v", err)
	}
	se, ok := e.(*ScanimageEnumerator)
	if !ok {
		t.Fatalf("NewEnumerator(scanimage) = %T, want *ScanimageEnumerator", e)
	}
	if se.Timeout != 7*time.Second {
		t.Errorf("Timeout = %v, want 7s", se.Timeout)
	}

	if _, err := NewEnumerator(config.ScannerConfig{Source: "usb"}, nil); err == nil {
		t.Error("NewEnumerator(usb) expected error")
	}
}

type failingEnumerator struct{ err error }

func (f failingEnumerator) Enumerate(context.Context) ([]Device, error) { return nil, f.err }

func TestLoad(t *testing.T) {
	t.Run("populates registry", func(t *testing.T) {
		reg := NewRegistry()
		n := Load(context.Background(), &StaticEnumerator{Devices: testDevices()}, reg, nil)
		if n != 3 || reg.Len() != 3 {
			t.Errorf("Load() = %d, Len() = %d, want 3", n, reg.Len())
		}
	})

	t.Run("enumeration failure leaves registry empty", func(t *testing.T) {
		reg := NewRegistry()
		reg.Populate(testDevices())
		logger := &recordingLogger{}

		n := Load(context.Background(), failingEnumerator{err: ErrEnumerationFailed}, reg, logger)
		if n != 0 || reg.Len() != 0 {
			t.Errorf("Load() = %d, Len() = %d, want 0", n, reg.Len())
		}
		if len(logger.warns) != 1 {
			t.Errorf("warnings = %v, want one", logger.warns)
		}
	})

	t.Run("zero devices is a warning", func(t *testing.T) {
		reg := NewRegistry()
		logger := &recordingLogger{}

		n := Load(context.Background(), &StaticEnumerator{}, reg, logger)
		if n != 0 {
			t.Errorf("Load() = %d, want 0", n)
		}
		if len(logger.warns) != 1 {
			t.Errorf("warnings = %v, want one", logger.warns)
		}
	})
}
