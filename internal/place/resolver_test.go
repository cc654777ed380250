package place_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"mmfplace/internal/config"
	"mmfplace/internal/place"
	"mmfplace/internal/testutil"
)

var (
	shot     = time.Date(2002, 11, 16, 15, 27, 1, 0, time.UTC)
	imported = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

func importedTimes() place.FileTimes {
	return place.FileTimes{Accessed: imported, Modified: imported, Created: imported}
}

func defaultResolverOptions(t *testing.T) place.ResolverOptions {
	t.Helper()
	rules, err := config.Default().Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	return place.ResolverOptions{
		Blacklist: rules.Blacklist,
		Dates:     rules.Dates,
		Types:     rules.Types,
		Filename:  rules.Filename,
	}
}

type resolverFixture struct {
	fs       *testutil.MockFileSystem
	metadata *testutil.StubMetadataSource
	opts     place.ResolverOptions
}

func newResolverFixture(t *testing.T) *resolverFixture {
	return &resolverFixture{
		fs:       testutil.NewMockFileSystem(),
		metadata: testutil.NewStubMetadataSource(),
		opts:     defaultResolverOptions(t),
	}
}

func (f *resolverFixture) resolve(path string) (*place.FileTarget, error) {
	r := place.NewResolver(f.metadata, f.fs, f.opts, place.NewNopLogger())
	target := place.NewFileTarget(path, "h")
	return target, r.Resolve(context.Background(), target)
}

func TestResolver_Resolve(t *testing.T) {
	t.Run("metadata date and corrected type", func(t *testing.T) {
		f := newResolverFixture(t)
		f.fs.AddFile("/in/photo.png", []byte("x"), importedTimes())
		f.metadata.Set("/in/photo.png",
			"[Exif SubIFD] Date/Time Original = 2002:11:16 15:27:01",
			"[File Type] Expected File Name Extension = jpg",
		)

		target, err := f.resolve("/in/photo.png")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if !target.Earliest.Equal(shot) {
			t.Errorf("Earliest = %v, want %v", target.Earliest, shot)
		}
		if target.CorrectedType != "jpg" {
			t.Errorf("CorrectedType = %q, want %q", target.CorrectedType, "jpg")
		}
		if len(target.Candidates) != 2 {
			t.Errorf("len(Candidates) = %d, want 2", len(target.Candidates))
		}
	})

	t.Run("pre-1975 metadata falls through", func(t *testing.T) {
		f := newResolverFixture(t)
		f.fs.AddFile("/in/a.jpg", []byte("x"), importedTimes())
		f.metadata.Set("/in/a.jpg", "[Exif IFD0] Date/Time = 1970:01:01 00:00:00")

		target, err := f.resolve("/in/a.jpg")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if !target.Earliest.Equal(imported) {
			t.Errorf("Earliest = %v, want %v", target.Earliest, imported)
		}
	})

	t.Run("blacklisted line ignored", func(t *testing.T) {
		f := newResolverFixture(t)
		f.fs.AddFile("/in/a.jpg", []byte("x"), importedTimes())
		f.metadata.Set("/in/a.jpg", "[ICC Profile] Profile Date/Time = 1998:02:09 06:49:00")

		target, err := f.resolve("/in/a.jpg")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if !target.Earliest.Equal(imported) {
			t.Errorf("Earliest = %v, want %v", target.Earliest, imported)
		}
	})

	t.Run("ignored placeholder value", func(t *testing.T) {
		f := newResolverFixture(t)
		f.fs.AddFile("/in/a.jpg", []byte("x"), importedTimes())
		f.metadata.Set("/in/a.jpg", "[Exif IFD0] Date/Time = 0000:00:00 00:00:00")

		target, err := f.resolve("/in/a.jpg")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if !target.Earliest.Equal(imported) {
			t.Errorf("Earliest = %v, want %v", target.Earliest, imported)
		}
	})

	t.Run("file name date", func(t *testing.T) {
		f := newResolverFixture(t)
		f.fs.AddFile("/in/IMG_20021116_152701.jpg", []byte("x"), importedTimes())

		target, err := f.resolve("/in/IMG_20021116_152701.jpg")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if !target.Earliest.Equal(shot) {
			t.Errorf("Earliest = %v, want %v", target.Earliest, shot)
		}
	})

	t.Run("file name source disabled", func(t *testing.T) {
		f := newResolverFixture(t)
		f.opts.Filename = nil
		f.fs.AddFile("/in/IMG_20021116_152701.jpg", []byte("x"), importedTimes())

		target, err := f.resolve("/in/IMG_20021116_152701.jpg")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if !target.Earliest.Equal(imported) {
			t.Errorf("Earliest = %v, want %v", target.Earliest, imported)
		}
	})

	t.Run("earliest across sources", func(t *testing.T) {
		f := newResolverFixture(t)
		f.fs.AddFile("/in/2001-05-04 trip.jpg", []byte("x"), importedTimes())
		f.metadata.Set("/in/2001-05-04 trip.jpg", "[Exif SubIFD] Date/Time Original = 2002:11:16 15:27:01")

		target, err := f.resolve("/in/2001-05-04 trip.jpg")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		want := time.Date(2001, 5, 4, 0, 0, 0, 0, time.UTC)
		if !target.Earliest.Equal(want) {
			t.Errorf("Earliest = %v, want %v", target.Earliest, want)
		}
	})

	t.Run("metadata source unavailable", func(t *testing.T) {
		f := newResolverFixture(t)
		f.metadata.Unavailable = true
		f.fs.AddFile("/in/a.jpg", []byte("x"), importedTimes())

		target, err := f.resolve("/in/a.jpg")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if !target.Earliest.Equal(imported) {
			t.Errorf("Earliest = %v, want %v", target.Earliest, imported)
		}
	})

	t.Run("creation time missing", func(t *testing.T) {
		f := newResolverFixture(t)
		earlier := imported.Add(-time.Hour)
		f.fs.AddFile("/in/a.jpg", []byte("x"), place.FileTimes{Accessed: imported, Modified: earlier})

		target, err := f.resolve("/in/a.jpg")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if !target.Earliest.Equal(earlier) {
			t.Errorf("Earliest = %v, want %v", target.Earliest, earlier)
		}
	})

	t.Run("single file time is not enough", func(t *testing.T) {
		f := newResolverFixture(t)
		f.fs.AddFile("/in/a.jpg", []byte("x"), place.FileTimes{Modified: imported})

		_, err := f.resolve("/in/a.jpg")
		if !errors.Is(err, place.ErrNoTimestampFound) {
			t.Errorf("Resolve() error = %v, want %v", err, place.ErrNoTimestampFound)
		}
	})

	t.Run("missing file times", func(t *testing.T) {
		f := newResolverFixture(t)

		_, err := f.resolve("/in/gone.jpg")
		if !errors.Is(err, place.ErrNoTimestampFound) {
			t.Errorf("Resolve() error = %v, want %v", err, place.ErrNoTimestampFound)
		}
	})
}

func TestResolver_UnparseableDate(t *testing.T) {
	const line = "[Exif IFD0] Date/Time = sometime in spring"

	t.Run("lenient skips the value", func(t *testing.T) {
		f := newResolverFixture(t)
		f.fs.AddFile("/in/a.jpg", []byte("x"), importedTimes())
		f.metadata.Set("/in/a.jpg", line)

		target, err := f.resolve("/in/a.jpg")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if !target.Earliest.Equal(imported) {
			t.Errorf("Earliest = %v, want %v", target.Earliest, imported)
		}
	})

	t.Run("strict fails the file", func(t *testing.T) {
		f := newResolverFixture(t)
		f.opts.Strict = true
		f.fs.AddFile("/in/a.jpg", []byte("x"), importedTimes())
		f.metadata.Set("/in/a.jpg", line)

		_, err := f.resolve("/in/a.jpg")
		if !errors.Is(err, place.ErrUnrecognizedFormat) {
			t.Errorf("Resolve() error = %v, want %v", err, place.ErrUnrecognizedFormat)
		}
		if !place.IsFileFatal(err) {
			t.Error("IsFileFatal() = false, want true")
		}
	})
}

func TestResolver_ContextCanceled(t *testing.T) {
	f := newResolverFixture(t)
	f.fs.AddFile("/in/a.jpg", []byte("x"), importedTimes())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := place.NewResolver(f.metadata, f.fs, f.opts, place.NewNopLogger())
	err := r.Resolve(ctx, place.NewFileTarget("/in/a.jpg", "h"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Resolve() error = %v, want %v", err, context.Canceled)
	}
}
