package place_test

import (
	"errors"
	"slices"
	"testing"
	"time"

	"mmfplace/internal/database"
	"mmfplace/internal/place"
	"mmfplace/internal/testutil"
)

type engineFixture struct {
	fs     *testutil.MockFileSystem
	index  *database.SQLiteIndex
	engine *place.Engine
}

func newEngineFixture(t *testing.T, opts place.EngineOptions) *engineFixture {
	t.Helper()
	if opts.OutputRoot == "" {
		opts.OutputRoot = "/out"
	}
	fs := testutil.NewMockFileSystem()
	index := testutil.NewTestIndex(t)
	return &engineFixture{
		fs:     fs,
		index:  index,
		engine: place.NewEngine(index, fs, opts, place.NewNopLogger()),
	}
}

// target adds a source file and returns a resolved target for it.
func (f *engineFixture) target(path string, content []byte, earliest time.Time) *place.FileTarget {
	f.fs.AddFile(path, content, importedTimes())
	t := place.NewFileTarget(path, testutil.SHA256Hex(content))
	t.Earliest = earliest
	return t
}

func (f *engineFixture) place(t *testing.T, target *place.FileTarget) place.Outcome {
	t.Helper()
	outcome, err := f.engine.Place(target)
	if err != nil {
		t.Fatalf("Place(%s) error = %v", target.SourcePath, err)
	}
	return outcome
}

func TestEngine_PlaceNew(t *testing.T) {
	f := newEngineFixture(t, place.EngineOptions{})
	target := f.target("/in/DSC_0001.JPG", []byte("photo"), shot)

	if got := f.place(t, target); got != place.OutcomePlaced {
		t.Errorf("Place() = %v, want %v", got, place.OutcomePlaced)
	}

	wantParts := []string{"2002", "11", "dsc_0001.jpg"}
	if !slices.Equal(target.PathParts, wantParts) {
		t.Errorf("PathParts = %q, want %q", target.PathParts, wantParts)
	}
	file, ok := f.fs.File("/out/2002/11/dsc_0001.jpg")
	if !ok {
		t.Fatal("destination file not created")
	}
	if !file.Times.Modified.Equal(shot) || !file.Times.Accessed.Equal(shot) {
		t.Errorf("destination times = %+v, want %v", file.Times, shot)
	}

	record, err := f.index.Lookup(target.Hash)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if record == nil {
		t.Fatal("Lookup() = nil, want record")
	}
	if !slices.Equal(record.PathParts, wantParts) {
		t.Errorf("record.PathParts = %q, want %q", record.PathParts, wantParts)
	}
	if record.Earliest != shot.Unix() {
		t.Errorf("record.Earliest = %d, want %d", record.Earliest, shot.Unix())
	}
}

func TestEngine_NoTimestamp(t *testing.T) {
	f := newEngineFixture(t, place.EngineOptions{})
	target := f.target("/in/a.jpg", []byte("a"), time.Time{})

	_, err := f.engine.Place(target)
	if !errors.Is(err, place.ErrNoTimestampFound) {
		t.Errorf("Place() error = %v, want %v", err, place.ErrNoTimestampFound)
	}
}

func TestEngine_NameCollisions(t *testing.T) {
	f := newEngineFixture(t, place.EngineOptions{})

	var got []string
	for i, content := range []string{"first", "second", "third"} {
		dir := []string{"/in/a", "/in/b", "/in/c"}[i]
		target := f.target(dir+"/img.jpg", []byte(content), shot)
		f.place(t, target)
		got = append(got, target.PathParts[2])
	}

	want := []string{"img.jpg", "img_01.jpg", "img_02.jpg"}
	if !slices.Equal(got, want) {
		t.Errorf("names = %q, want %q", got, want)
	}
}

func TestEngine_TooManyCollisions(t *testing.T) {
	f := newEngineFixture(t, place.EngineOptions{MaxCollisions: 2})
	f.fs.AddFile("/out/2002/11/img.jpg", []byte("taken"), importedTimes())
	f.fs.AddFile("/out/2002/11/img_01.jpg", []byte("taken too"), importedTimes())

	target := f.target("/in/img.jpg", []byte("new"), shot)
	_, err := f.engine.Place(target)
	if !errors.Is(err, place.ErrTooManyCollisions) {
		t.Fatalf("Place() error = %v, want %v", err, place.ErrTooManyCollisions)
	}
	if !place.IsFileFatal(err) {
		t.Error("IsFileFatal() = false, want true")
	}
	if record, _ := f.index.Lookup(target.Hash); record != nil {
		t.Error("failed placement left an index record")
	}
}

func TestEngine_Naming(t *testing.T) {
	tests := []struct {
		name          string
		opts          place.EngineOptions
		source        string
		correctedType string
		want          string
	}{
		{name: "original name", source: "/in/Beach.JPG", want: "beach.jpg"},
		{name: "rename with date", opts: place.EngineOptions{RenameWithDate: true}, source: "/in/Beach.JPG", want: "2002-11-16.jpg"},
		{name: "corrected type", source: "/in/beach.png", correctedType: "jpg", want: "beach.jpg"},
		{name: "retained suffix", opts: place.EngineOptions{RetainSuffix: []string{".MP4"}}, source: "/in/clip.mp4", correctedType: "mov", want: "clip.mp4"},
		{name: "no extension", source: "/in/README", want: "readme.bin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t, tt.opts)
			target := f.target(tt.source, []byte(tt.name), shot)
			target.CorrectedType = tt.correctedType

			f.place(t, target)
			if got := target.PathParts[2]; got != tt.want {
				t.Errorf("name = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEngine_SameHash(t *testing.T) {
	later := shot.AddDate(1, 0, 0)
	content := []byte("same bytes")

	t.Run("later duplicate is skipped", func(t *testing.T) {
		f := newEngineFixture(t, place.EngineOptions{})
		f.place(t, f.target("/in/a.jpg", content, shot))

		dup := f.target("/in/b.jpg", content, later)
		if got := f.place(t, dup); got != place.OutcomeSkipped {
			t.Errorf("Place() = %v, want %v", got, place.OutcomeSkipped)
		}
		if got := f.fs.PathsUnder("/out"); !slices.Equal(got, []string{"/out/2002/11/a.jpg"}) {
			t.Errorf("output = %q", got)
		}
		if f.fs.Copies() != 1 {
			t.Errorf("Copies() = %d, want 1", f.fs.Copies())
		}
	})

	t.Run("earlier duplicate supersedes", func(t *testing.T) {
		f := newEngineFixture(t, place.EngineOptions{})
		f.place(t, f.target("/in/b.jpg", content, later))

		dup := f.target("/in/a.jpg", content, shot)
		if got := f.place(t, dup); got != place.OutcomeReplaced {
			t.Errorf("Place() = %v, want %v", got, place.OutcomeReplaced)
		}
		if got := f.fs.PathsUnder("/out"); !slices.Equal(got, []string{"/out/2002/11/a.jpg"}) {
			t.Errorf("output = %q", got)
		}
		record, err := f.index.Lookup(dup.Hash)
		if err != nil {
			t.Fatalf("Lookup() error = %v", err)
		}
		if record.Earliest != shot.Unix() {
			t.Errorf("record.Earliest = %d, want %d", record.Earliest, shot.Unix())
		}
	})

	t.Run("missing placement is restored", func(t *testing.T) {
		f := newEngineFixture(t, place.EngineOptions{})
		f.place(t, f.target("/in/a.jpg", content, shot))
		if err := f.fs.Remove("/out/2002/11/a.jpg"); err != nil {
			t.Fatal(err)
		}

		dup := f.target("/in/b.jpg", content, later)
		if got := f.place(t, dup); got != place.OutcomeRestored {
			t.Errorf("Place() = %v, want %v", got, place.OutcomeRestored)
		}
		file, ok := f.fs.File("/out/2002/11/a.jpg")
		if !ok {
			t.Fatal("placement not restored at recorded path")
		}
		if !file.Times.Modified.Equal(shot) {
			t.Errorf("restored Modified = %v, want %v", file.Times.Modified, shot)
		}
	})

	t.Run("changed placement is overwritten", func(t *testing.T) {
		f := newEngineFixture(t, place.EngineOptions{})
		f.place(t, f.target("/in/a.jpg", content, shot))
		f.fs.AddFile("/out/2002/11/a.jpg", []byte("edited"), importedTimes())

		dup := f.target("/in/b.jpg", content, later)
		if got := f.place(t, dup); got != place.OutcomeOverwritten {
			t.Errorf("Place() = %v, want %v", got, place.OutcomeOverwritten)
		}
		file, _ := f.fs.File("/out/2002/11/a.jpg")
		if string(file.Content) != string(content) {
			t.Errorf("destination content = %q, want %q", file.Content, content)
		}
	})

	t.Run("known target uses its record", func(t *testing.T) {
		f := newEngineFixture(t, place.EngineOptions{})
		first := f.target("/in/a.jpg", content, shot)
		f.place(t, first)
		record, _ := f.index.Lookup(first.Hash)

		known := place.NewFileTarget("/in/a.jpg", first.Hash)
		known.AlreadyKnown = true
		known.Record = record
		if got := f.place(t, known); got != place.OutcomeSkipped {
			t.Errorf("Place() = %v, want %v", got, place.OutcomeSkipped)
		}
		if !slices.Equal(known.PathParts, record.PathParts) {
			t.Errorf("PathParts = %q, want %q", known.PathParts, record.PathParts)
		}
	})

	t.Run("stale record of a known target is reread", func(t *testing.T) {
		f := newEngineFixture(t, place.EngineOptions{})
		first := f.target("/in/b.jpg", content, later)
		f.place(t, first)
		stale, _ := f.index.Lookup(first.Hash)

		if got := f.place(t, f.target("/in/a.jpg", content, shot)); got != place.OutcomeReplaced {
			t.Fatalf("Place() = %v, want %v", got, place.OutcomeReplaced)
		}

		known := place.NewFileTarget("/in/b.jpg", first.Hash)
		known.AlreadyKnown = true
		known.Record = stale
		if got := f.place(t, known); got != place.OutcomeSkipped {
			t.Errorf("Place() = %v, want %v", got, place.OutcomeSkipped)
		}
		if got := f.fs.PathsUnder("/out"); !slices.Equal(got, []string{"/out/2002/11/a.jpg"}) {
			t.Errorf("output = %q, want a single copy", got)
		}
	})
}

// racyIndex hides records from the first Lookup, as if another placement
// inserted the hash between lookup and insert.
type racyIndex struct {
	place.Index
	hidden bool
}

func (r *racyIndex) Lookup(hash string) (*place.ContentRecord, error) {
	if !r.hidden {
		r.hidden = true
		return nil, nil
	}
	return r.Index.Lookup(hash)
}

func TestEngine_DuplicateKeyReconciles(t *testing.T) {
	fs := testutil.NewMockFileSystem()
	index := testutil.NewTestIndex(t)
	content := []byte("raced")
	hash := testutil.SHA256Hex(content)

	if err := index.Insert(&place.ContentRecord{Hash: hash, PathParts: []string{"2024", "03", "a.jpg"}, Earliest: imported.Unix()}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	fs.AddFile("/out/2024/03/a.jpg", content, importedTimes())
	fs.AddFile("/in/b.jpg", content, importedTimes())

	engine := place.NewEngine(&racyIndex{Index: index}, fs, place.EngineOptions{OutputRoot: "/out"}, place.NewNopLogger())
	target := place.NewFileTarget("/in/b.jpg", hash)
	target.Earliest = shot

	got, err := engine.Place(target)
	if err != nil {
		t.Fatalf("Place() error = %v", err)
	}
	if got != place.OutcomeReplaced {
		t.Errorf("Place() = %v, want %v", got, place.OutcomeReplaced)
	}
	if paths := fs.PathsUnder("/out"); !slices.Equal(paths, []string{"/out/2002/11/b.jpg"}) {
		t.Errorf("output = %q", paths)
	}
}

func TestOutcome_String(t *testing.T) {
	tests := []struct {
		outcome place.Outcome
		want    string
	}{
		{place.OutcomePlaced, "placed"},
		{place.OutcomeSkipped, "skipped"},
		{place.OutcomeOverwritten, "overwritten"},
		{place.OutcomeRestored, "restored"},
		{place.OutcomeReplaced, "replaced"},
		{place.Outcome(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.outcome.String(); got != tt.want {
			t.Errorf("Outcome(%d).String() = %q, want %q", int(tt.outcome), got, tt.want)
		}
	}
}
