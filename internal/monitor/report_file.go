package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Report file formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// WriteReport writes r to dir as health_report_YYYYMMDD_HHMMSS.<format>,
// named after the cycle start, and returns the path. Reports started in the
// same second get a _2, _3, ... suffix instead of replacing each other.
func WriteReport(dir string, r *HealthReport, format string) (string, error) {
	var (
		data []byte
		ext  string
		err  error
	)
	switch format {
	case FormatJSON, "":
		data, err = json.MarshalIndent(r, "", "  ")
		ext = "json"
	case FormatYAML, "yml":
		data, err = yaml.Marshal(r)
		ext = "yaml"
	default:
		return "", fmt.Errorf("unsupported report format %q", format)
	}
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	stamp := r.Timestamp.UTC().Format("20060102_150405")
	for n := 1; ; n++ {
		name := fmt.Sprintf("health_report_%s.%s", stamp, ext)
		if n > 1 {
			name = fmt.Sprintf("health_report_%s_%d.%s", stamp, n, ext)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create report: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("write report: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("write report: %w", err)
		}
		return path, nil
	}
}
