// Copyright © 2016 Zellyn Hunter <zellyn@gmail.com>

// Package helpers contains helper routines for reading and writing files,
// allowing `-` to mean stdin/stdout.
package helpers

import (
	stderrors "errors"
	"io"
	"io/fs"
	"os"

	"github.com/pkg/errors"

	"github.com/onionmixer/rdedisktool/errs"
)

// FileContentsOrStdIn returns the contents of a file, unless the file
// is "-", in which case it reads from stdin.
func FileContentsOrStdIn(s string) ([]byte, error) {
	if s == "-" {
		bb, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, errors.Wrap(errs.ReadErrorf("stdin: %v", err), "reading stdin")
		}
		return bb, nil
	}
	bb, err := os.ReadFile(s)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(errs.FileNotFoundf("%s: %v", s, err), "reading %q", s)
		}
		return nil, errors.Wrapf(errs.ReadErrorf("%s: %v", s, err), "reading %q", s)
	}
	return bb, nil
}

// WriteOutput writes contents to filename, or to stdout if filename is
// "-". Unless force is true, it refuses to overwrite an existing file.
func WriteOutput(filename string, contents []byte, force bool) error {
	if filename == "-" {
		if _, err := os.Stdout.Write(contents); err != nil {
			return errors.Wrap(errs.WriteErrorf("stdout: %v", err), "writing stdout")
		}
		return nil
	}
	if !force {
		if _, err := os.Stat(filename); !stderrors.Is(err, fs.ErrNotExist) {
			return errs.FileExistsf("cannot overwrite file %q without --force (-f)", filename)
		}
	}
	if err := os.WriteFile(filename, contents, 0666); err != nil {
		return errors.Wrapf(errs.WriteErrorf("%s: %v", filename, err), "writing %q", filename)
	}
	return nil
}
