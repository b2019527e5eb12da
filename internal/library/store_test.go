package library

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"rockboxd/pkg/errs"
	"rockboxd/pkg/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	store, err := Open(filepath.Join(t.TempDir(), "library.db"), logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedTrack(t *testing.T, store *Store, title, artist, album, path string) models.Track {
	t.Helper()
	a, err := store.UpsertArtist(artist)
	if err != nil {
		t.Fatalf("UpsertArtist: %v", err)
	}
	al, err := store.UpsertAlbum(models.Album{Title: album, ArtistName: artist, ArtistID: a.ID})
	if err != nil {
		t.Fatalf("UpsertAlbum: %v", err)
	}
	track, err := store.UpsertTrack(models.Track{
		Path:       path,
		Title:      title,
		ArtistName: artist,
		AlbumTitle: album,
		ArtistID:   a.ID,
		AlbumID:    al.ID,
		LengthMs:   180_000,
	})
	if err != nil {
		t.Fatalf("UpsertTrack: %v", err)
	}
	return track
}

func TestUpsertArtistIsIdempotent(t *testing.T) {
	store := testStore(t)

	first, err := store.UpsertArtist("Carpenter Brut")
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.UpsertArtist("Carpenter Brut")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Errorf("repeated upsert produced a new artist: %q vs %q", first.ID, second.ID)
	}

	artists, err := store.AllArtists()
	if err != nil {
		t.Fatal(err)
	}
	if len(artists) != 1 {
		t.Errorf("artist count = %d, want 1", len(artists))
	}
}

func TestUpsertTrackUpdatesByPath(t *testing.T) {
	store := testStore(t)
	track := seedTrack(t, store, "Turbo Killer", "Carpenter Brut", "Trilogy", "/music/turbo.mp3")

	// Re-ingesting the same path with fresh tags updates in place.
	track.Title = "Turbo Killer (Remaster)"
	updated, err := store.UpsertTrack(track)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Title != "Turbo Killer (Remaster)" {
		t.Errorf("title = %q", updated.Title)
	}

	all, err := store.AllTracks()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("track count = %d, want 1", len(all))
	}
}

func TestFindTrackByPath(t *testing.T) {
	store := testStore(t)
	seedTrack(t, store, "Roller Mobster", "Carpenter Brut", "Trilogy", "/music/roller.mp3")

	got, err := store.FindTrackByPath("/music/roller.mp3")
	if err != nil {
		t.Fatalf("FindTrackByPath: %v", err)
	}
	if got.Title != "Roller Mobster" {
		t.Errorf("title = %q", got.Title)
	}

	if _, err := store.FindTrackByPath("/music/missing.mp3"); !errs.Is(err, errs.NotFound) {
		t.Errorf("missing path = %v, want NotFound", err)
	}
}

func TestRemoveTrackByPath(t *testing.T) {
	store := testStore(t)
	seedTrack(t, store, "Le Perv", "Carpenter Brut", "EP I", "/music/leperv.mp3")

	removed, err := store.RemoveTrackByPath("/music/leperv.mp3")
	if err != nil {
		t.Fatalf("RemoveTrackByPath: %v", err)
	}
	if removed.Title != "Le Perv" {
		t.Errorf("removed title = %q", removed.Title)
	}
	if exists, _ := store.TrackExists("/music/leperv.mp3"); exists {
		t.Error("track should be gone")
	}
}

func TestAlbumAndArtistListings(t *testing.T) {
	store := testStore(t)
	seedTrack(t, store, "A", "Artist One", "Album One", "/m/1.mp3")
	seedTrack(t, store, "B", "Artist One", "Album Two", "/m/2.mp3")
	seedTrack(t, store, "C", "Artist Two", "Album Three", "/m/3.mp3")

	one, err := store.FindArtistByName("Artist One")
	if err != nil {
		t.Fatal(err)
	}
	albums, err := store.AlbumsByArtist(one.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(albums) != 2 {
		t.Errorf("albums by artist = %d, want 2", len(albums))
	}
	tracks, err := store.TracksByArtist(one.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tracks) != 2 {
		t.Errorf("tracks by artist = %d, want 2", len(tracks))
	}
}

func TestPlaylistLifecycle(t *testing.T) {
	store := testStore(t)
	t1 := seedTrack(t, store, "One", "A", "X", "/m/1.mp3")
	t2 := seedTrack(t, store, "Two", "A", "X", "/m/2.mp3")
	t3 := seedTrack(t, store, "Three", "A", "X", "/m/3.mp3")

	pl, err := store.CreatePlaylist("Synthwave", "night drive", "", []string{t1.ID, t2.ID})
	if err != nil {
		t.Fatalf("CreatePlaylist: %v", err)
	}

	tracks, err := store.PlaylistTracks(pl.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tracks) != 2 || tracks[0].ID != t1.ID {
		t.Errorf("playlist tracks = %v", trackTitles(tracks))
	}

	// Insert at the head.
	if err := store.InsertPlaylistTracks(pl.ID, []string{t3.ID}, 0); err != nil {
		t.Fatal(err)
	}
	tracks, _ = store.PlaylistTracks(pl.ID)
	if tracks[0].ID != t3.ID {
		t.Errorf("after insert at 0: %v", trackTitles(tracks))
	}

	// Move it to the end.
	if err := store.MovePlaylistTrack(pl.ID, 0, 2); err != nil {
		t.Fatal(err)
	}
	tracks, _ = store.PlaylistTracks(pl.ID)
	if tracks[2].ID != t3.ID {
		t.Errorf("after move: %v", trackTitles(tracks))
	}

	// Remove the middle entry.
	if err := store.RemovePlaylistTrackAt(pl.ID, 1); err != nil {
		t.Fatal(err)
	}
	tracks, _ = store.PlaylistTracks(pl.ID)
	if len(tracks) != 2 {
		t.Errorf("after remove: %v", trackTitles(tracks))
	}

	if err := store.RenamePlaylist(pl.ID, "Darksynth"); err != nil {
		t.Fatal(err)
	}
	renamed, err := store.FindPlaylist(pl.ID)
	if err != nil {
		t.Fatal(err)
	}
	if renamed.Name != "Darksynth" {
		t.Errorf("renamed = %q", renamed.Name)
	}

	if err := store.DeletePlaylist(pl.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.FindPlaylist(pl.ID); !errs.Is(err, errs.NotFound) {
		t.Errorf("deleted playlist lookup = %v, want NotFound", err)
	}
}

func TestDuplicatePlaylistName(t *testing.T) {
	store := testStore(t)
	if _, err := store.CreatePlaylist("Mix", "", "", nil); err != nil {
		t.Fatal(err)
	}
	_, err := store.CreatePlaylist("Mix", "", "", nil)
	if !errs.Is(err, errs.AlreadyExists) {
		t.Errorf("duplicate playlist = %v, want AlreadyExists", err)
	}
}

func TestFolders(t *testing.T) {
	store := testStore(t)

	root, err := store.CreateFolder("Moods", "")
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	child, err := store.CreateFolder("Chill", root.ID)
	if err != nil {
		t.Fatal(err)
	}

	children, err := store.FoldersByParent(root.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 1 || children[0].ID != child.ID {
		t.Errorf("children = %v", children)
	}

	pl, err := store.CreatePlaylist("Evening", "", child.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	inFolder, err := store.PlaylistsByFolder(child.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(inFolder) != 1 || inFolder[0].ID != pl.ID {
		t.Errorf("playlists in folder = %v", inFolder)
	}
}

func TestLikes(t *testing.T) {
	store := testStore(t)
	track := seedTrack(t, store, "Anthem", "A", "X", "/m/anthem.mp3")

	if _, err := store.LikeTrack(track.ID); err != nil {
		t.Fatalf("LikeTrack: %v", err)
	}
	// Liking twice is not an error.
	if _, err := store.LikeTrack(track.ID); err != nil {
		t.Fatalf("second LikeTrack: %v", err)
	}

	favs, err := store.FavouriteTracks()
	if err != nil {
		t.Fatal(err)
	}
	if len(favs) != 1 || favs[0].ID != track.ID {
		t.Errorf("favourites = %v", trackTitles(favs))
	}

	if err := store.UnlikeTrack(track.ID); err != nil {
		t.Fatal(err)
	}
	favs, _ = store.FavouriteTracks()
	if len(favs) != 0 {
		t.Errorf("favourites after unlike = %v", trackTitles(favs))
	}

	if _, err := store.LikeTrack("missing"); !errs.Is(err, errs.NotFound) {
		t.Errorf("liking unknown track = %v, want NotFound", err)
	}
}

func TestStats(t *testing.T) {
	store := testStore(t)
	seedTrack(t, store, "One", "A", "X", "/m/1.mp3")
	seedTrack(t, store, "Two", "B", "Y", "/m/2.mp3")

	st, err := store.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.Artists != 2 || st.Albums != 2 || st.Tracks != 2 {
		t.Errorf("stats = %+v", st)
	}
	if st.TotalLength != 360 {
		t.Errorf("total length = %d seconds, want 360", st.TotalLength)
	}
}

func trackTitles(tracks []models.Track) []string {
	titles := make([]string, len(tracks))
	for i, tr := range tracks {
		titles[i] = tr.Title
	}
	return titles
}
