package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fpang/photo-ingest/internal/filehandler"
)

// ExpandPaths resolves command arguments to image files. Directories are
// scanned with opts; files must have a supported extension. The result is
// absolute, deduplicated and in argument order.
func ExpandPaths(args []string, opts filehandler.ScanOptions) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("path not found: %s", arg)
			}
			return nil, fmt.Errorf("failed to access %s: %w", arg, err)
		}

		if !info.IsDir() {
			if !filehandler.IsImage(filepath.Ext(abs)) {
				return nil, fmt.Errorf("%w: %s", filehandler.ErrUnsupportedFormat, arg)
			}
			add(abs)
			continue
		}

		files, err := filehandler.ScanDirectory(abs, opts)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			add(f)
		}
	}
	return out, nil
}

// ParseLatLon parses decimal-degree arguments and checks their ranges.
func ParseLatLon(latArg, lonArg string) (float64, float64, error) {
	lat, err := strconv.ParseFloat(latArg, 64)
	if err != nil || lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("latitude must be a number in [-90, 90], got %q", latArg)
	}
	lon, err := strconv.ParseFloat(lonArg, 64)
	if err != nil || lon < -180 || lon > 180 {
		return 0, 0, fmt.Errorf("longitude must be a number in [-180, 180], got %q", lonArg)
	}
	return lat, lon, nil
}
