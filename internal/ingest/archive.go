package ingest

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-errors/errors"
	"github.com/klauspost/compress/gzip"
)

const (
	CaptureRootPrefix = "logcapture-"

	lightingDir        = "lighting"
	networkDeviceDir   = "NetworkDevice"
	systemHealthDir    = "SystemHealth"
	lightingHistoryDB  = "lightingHistory.sqlite"
	wifiListFile       = "wifilist.out"
	systemStatsFile    = "systemstats"
	extractedDirPerm   = 0o755
	extractedFileFlags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
)

// CaptureLayout is the set of conventional paths beneath a discovered
// logcapture-* directory. Only NetworkDeviceDir is guaranteed to exist.
type CaptureLayout struct {
	Root             string
	NetworkDeviceDir string
	SystemHealthDir  string
	HistoryStore     string
	WifiFile         string
	SystemStatsFile  string
}

func newCaptureLayout(root string) CaptureLayout {
	lighting := filepath.Join(root, lightingDir)
	return CaptureLayout{
		Root:             root,
		NetworkDeviceDir: filepath.Join(lighting, networkDeviceDir),
		SystemHealthDir:  filepath.Join(lighting, systemHealthDir),
		HistoryStore:     filepath.Join(lighting, lightingHistoryDB),
		WifiFile:         filepath.Join(lighting, wifiListFile),
		SystemStatsFile:  filepath.Join(lighting, systemStatsFile),
	}
}

// Extract unpacks a gzip-compressed tar stream into dest. Entries that would
// land outside dest are rejected; links and special files are skipped.
func Extract(ctx context.Context, r io.Reader, dest string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	defer gz.Close()

	root, err := filepath.Abs(dest)
	if err != nil {
		return err
	}

	tr := tar.NewReader(gz)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidArchive, err)
		}
		slog.Debug("Archive member", "name", header.Name, "size", header.Size)

		target := filepath.Join(root, filepath.FromSlash(header.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return fmt.Errorf("%w: entry %q escapes the extraction directory", ErrInvalidArchive, header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, extractedDirPerm); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeMember(tr, target, header.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		default:
			slog.Debug("Skipping archive member", "name", header.Name, "type", string(header.Typeflag))
		}
	}
}

func writeMember(r io.Reader, target string, perm fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), extractedDirPerm); err != nil {
		return err
	}
	// Owner must always be able to read back what was extracted.
	out, err := os.OpenFile(target, extractedFileFlags, perm|0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		if errors.Is(err, gzip.ErrChecksum) || errors.Is(err, gzip.ErrHeader) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %w", ErrInvalidArchive, err)
		}
		return err
	}
	return out.Close()
}

// LocateCapture searches dir recursively for a logcapture-* directory and
// checks that it carries a lighting/NetworkDevice directory. When several
// candidates exist the first in lexical walk order wins, independent of the
// platform's directory listing order.
func LocateCapture(dir string) (CaptureLayout, error) {
	var candidates []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != dir && strings.HasPrefix(d.Name(), CaptureRootPrefix) {
			candidates = append(candidates, path)
		}
		return nil
	})
	if err != nil {
		return CaptureLayout{}, fmt.Errorf("failed to walk extracted archive: %w", err)
	}
	if len(candidates) == 0 {
		return CaptureLayout{}, ErrCaptureRootNotFound
	}
	if len(candidates) > 1 {
		slog.Warn("Multiple logcapture directories found, using the first", "candidates", candidates)
	}

	root := candidates[0]
	slog.Info("Found logcapture directory", "path", root)

	layout := newCaptureLayout(root)
	info, err := os.Stat(layout.NetworkDeviceDir)
	if err != nil || !info.IsDir() {
		return CaptureLayout{}, fmt.Errorf("%w at %s", ErrNoNetworkDeviceDirectory, layout.NetworkDeviceDir)
	}

	return layout, nil
}
