// Package remote copies checkpoint workspaces to and from object storage as
// lz4-compressed tar archives.
package remote

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/pierrec/lz4/v4"

	"github.com/Sumatoshi-tech/gitrecommender/pkg/affinity"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/checkpoint"
	"github.com/Sumatoshi-tech/gitrecommender/pkg/persist"
)

// ErrBadArchive is returned for archives with entries Unpack refuses to write.
var ErrBadArchive = errors.New("bad workspace archive")

// ArchiveExtension is appended to object keys.
const ArchiveExtension = ".tar.lz4"

// Pack writes the workspace files of dir to w. Entries outside the checkpoint
// layout are not part of a workspace and are skipped.
func Pack(w io.Writer, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("list %s: %w", dir, err)
	}

	zw := lz4.NewWriter(w)
	tw := tar.NewWriter(zw)

	layout := checkpoint.Layout()

	for _, entry := range entries {
		if !entry.Type().IsRegular() || !slices.Contains(layout, entry.Name()) {
			continue
		}

		err = packFile(tw, filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
	}

	err = tw.Close()
	if err != nil {
		return fmt.Errorf("close tar: %w", err)
	}

	err = zw.Close()
	if err != nil {
		return fmt.Errorf("close lz4: %w", err)
	}

	return nil
}

func packFile(tw *tar.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("tar header for %s: %w", path, err)
	}

	err = tw.WriteHeader(header)
	if err != nil {
		return fmt.Errorf("write header for %s: %w", path, err)
	}

	_, err = io.Copy(tw, file)
	if err != nil {
		return fmt.Errorf("archive %s: %w", path, err)
	}

	return nil
}

// Unpack replaces dir with the contents of an archive written by Pack. The
// unpacked store must load before it is swapped in; the previous contents
// survive any error.
func Unpack(r io.Reader, dir string) error {
	layout := checkpoint.Layout()

	return persist.ReplaceDir(dir, layout, func(stage string) error {
		tr := tar.NewReader(lz4.NewReader(r))

		for {
			header, err := tr.Next()
			if errors.Is(err, io.EOF) {
				break
			}

			if err != nil {
				return fmt.Errorf("%w: %w", ErrBadArchive, err)
			}

			err = unpackFile(tr, header, stage, layout)
			if err != nil {
				return err
			}
		}

		snap, err := affinity.ReadSnapshot(stage)
		if err == nil {
			_, err = affinity.Restore(snap)
		}

		if err != nil {
			return fmt.Errorf("%w: %w", ErrBadArchive, err)
		}

		return nil
	})
}

func unpackFile(tr *tar.Reader, header *tar.Header, stage string, layout []string) error {
	name := header.Name
	if header.Typeflag != tar.TypeReg || !slices.Contains(layout, name) {
		return fmt.Errorf("%w: entry %q", ErrBadArchive, name)
	}

	return persist.WriteFile(filepath.Join(stage, name), func(w io.Writer) error {
		_, err := io.Copy(w, tr)
		if err != nil {
			return fmt.Errorf("%w: extract %s: %w", ErrBadArchive, name, err)
		}

		return nil
	})
}
