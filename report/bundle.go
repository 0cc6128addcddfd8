package report

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/YuminosukeSato/eegharmony/pkg/errors"
)

// Output file names written by WriteFiles.
const (
	JSONFile     = "eval_summary.json"
	MarkdownFile = "eval_summary.md"
	HTMLFile     = "eval_summary.html"
	BundleFile   = "results_bundle.zip"
)

// WriteFiles writes the JSON, Markdown and HTML summaries into dir and
// returns their paths.
func (s *Summary) WriteFiles(dir string) ([]string, error) {
	writers := []struct {
		name  string
		write func(io.Writer) error
	}{
		{JSONFile, s.WriteJSON},
		{MarkdownFile, s.WriteMarkdown},
		{HTMLFile, s.WriteHTML},
	}
	paths := make([]string, 0, len(writers))
	for _, wr := range writers {
		path := filepath.Join(dir, wr.name)
		if err := writeFile(path, wr.write); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Bundle zips files into dest, each stored under its base name. Entries are
// written in sorted order so identical inputs give identical archives.
func Bundle(dest string, files []string) error {
	sorted := slices.Clone(files)
	slices.Sort(sorted)
	return writeFile(dest, func(w io.Writer) error {
		zw := zip.NewWriter(w)
		for _, path := range sorted {
			if err := addToZip(zw, path); err != nil {
				return err
			}
		}
		return zw.Close()
	})
}

func addToZip(zw *zip.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	entry, err := zw.Create(filepath.Base(path))
	if err != nil {
		return errors.Wrapf(err, "failed to add %s to bundle", path)
	}
	if _, err := io.Copy(entry, f); err != nil {
		return errors.Wrapf(err, "failed to copy %s into bundle", path)
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "failed to close %s", path)
		}
	}()
	return write(f)
}
