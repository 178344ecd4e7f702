package errs

import "testing"

func TestTaggedErrors(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		check func(error) bool
		other func(error) bool
	}{
		{"FileNotFound", FileNotFoundf("no %s", "foo"), IsFileNotFound, IsFileExists},
		{"FileExists", FileExistsf("dup %s", "foo"), IsFileExists, IsReadError},
		{"ReadError", ReadErrorf("bad read"), IsReadError, IsWriteError},
		{"WriteError", WriteErrorf("bad write"), IsWriteError, IsInvalidFormat},
		{"InvalidFormat", InvalidFormatf("bad magic"), IsInvalidFormat, IsUnsupportedFormat},
		{"UnsupportedFormat", UnsupportedFormatf("nope"), IsUnsupportedFormat, IsWriteProtected},
		{"WriteProtected", WriteProtectedf("ro"), IsWriteProtected, IsSectorNotFound},
		{"SectorNotFound", SectorNotFoundf("t=1 s=2"), IsSectorNotFound, IsTrackNotFound},
		{"TrackNotFound", TrackNotFoundf("t=99"), IsTrackNotFound, IsCrcError},
		{"CrcError", CrcErrorf("want %x got %x", 1, 2), IsCrcError, IsChecksumMismatch},
		{"ChecksumMismatch", ChecksumMismatchf("want %x got %x", 1, 2), IsChecksumMismatch, IsInvalidFilename},
		{"InvalidFilename", InvalidFilenamef("bad name"), IsInvalidFilename, IsFilenameTooLong},
		{"FilenameTooLong", FilenameTooLongf("too long"), IsFilenameTooLong, IsDirectoryFull},
		{"DirectoryFull", DirectoryFullf("full"), IsDirectoryFull, IsDiskFull},
		{"DiskFull", DiskFullf("full"), IsDiskFull, IsNotImplemented},
		{"NotImplemented", NotImplementedf("later"), IsNotImplemented, IsInvalidParameter},
		{"InvalidParameter", InvalidParameterf("bad arg"), IsInvalidParameter, IsInternalError},
		{"InternalError", InternalErrorf("oops"), IsInternalError, IsFileNotFound},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if !c.check(c.err) {
				t.Errorf("%s: expected tag predicate to return true", c.name)
			}
			if c.other(c.err) {
				t.Errorf("%s: expected unrelated tag predicate to return false", c.name)
			}
			if c.err.Error() == "" {
				t.Errorf("%s: expected non-empty message", c.name)
			}
		})
	}
}

func TestNew(t *testing.T) {
	err := New("plain")
	if err.Error() != "plain" {
		t.Fatalf("got %q, want %q", err.Error(), "plain")
	}
	if IsFileNotFound(err) {
		t.Fatal("plain error should not match any tag")
	}
}
