package settings

import (
	"testing"

	"rockboxd/pkg/errs"
)

func TestLoadDefaultsWhenAbsent(t *testing.T) {
	store := NewStore(t.TempDir())

	us, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if us.Volume != 70 {
		t.Errorf("default volume = %d, want 70", us.Volume)
	}
	if len(us.EqBandSettings) != 10 {
		t.Errorf("eq bands = %d, want 10", len(us.EqBandSettings))
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	us := DefaultSettings()
	us.Volume = 42
	us.CrossfeedEnabled = true
	us.Repeat = 2
	if err := store.Save(us); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Volume != 42 || !got.CrossfeedEnabled || got.Repeat != 2 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestUpdateMergesProjection(t *testing.T) {
	store := NewStore(t.TempDir())

	base := DefaultSettings()
	base.Bass = 5
	base.MusicDir = "/music"
	if err := store.Save(base); err != nil {
		t.Fatal(err)
	}

	volume := 30
	shuffle := true
	got, err := store.Update(NewGlobalSettings{Volume: &volume, Shuffle: &shuffle})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Volume != 30 || !got.Shuffle {
		t.Errorf("updated fields not applied: %+v", got)
	}
	// Fields outside the projection survive.
	if got.Bass != 5 || got.MusicDir != "/music" {
		t.Errorf("untouched fields lost: %+v", got)
	}
}

func TestPassword(t *testing.T) {
	store := NewStore(t.TempDir())

	// No token file: everything passes.
	if err := store.CheckPassword("anything"); err != nil {
		t.Errorf("CheckPassword without token = %v, want nil", err)
	}

	if err := store.SetPassword("hunter2"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	if err := store.CheckPassword("hunter2"); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
	err := store.CheckPassword("wrong")
	if !errs.Is(err, errs.PermissionDenied) {
		t.Errorf("wrong password = %v, want PermissionDenied", err)
	}
}
