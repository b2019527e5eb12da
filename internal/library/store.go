// Package library implements the content-addressed catalog of artists,
// albums, tracks, genres, playlists, folders and favourites, plus the
// filesystem ingest pipeline that populates it.
package library

import (
	"database/sql"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"rockboxd/pkg/errs"
	"rockboxd/pkg/models"
)

// Store wraps a *sql.DB providing the repository surface over the catalog.
// It is safe for concurrent use because the underlying *sql.DB is
// concurrency-safe; every mutation runs in its own transaction.
type Store struct {
	conn   *sql.DB
	logger *logrus.Logger

	// Prepared statements for the ingest hot path
	findTrackByPathStmt *sql.Stmt
	findTrackStmt       *sql.Stmt
	trackExistsStmt     *sql.Stmt
}

// Open opens (or creates) a SQLite database at the provided path and ensures
// all required tables and indices exist. It also applies performance-oriented
// pragmas (WAL, cache sizing). Caller should Close() it when finished.
func Open(dbPath string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}

	conn, err := sql.Open("sqlite3", dbPath+"?cache=shared&mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works better with fewer connections
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(15 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=2000;",
		"PRAGMA temp_store=memory;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA auto_vacuum=INCREMENTAL;",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	s := &Store{conn: conn, logger: logger}

	if err := s.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.WithField("db_path", dbPath).Info("Library database initialized")
	return s, nil
}

// createTables creates tables and indices if they do not already exist.
// This is idempotent and safe to call multiple times.
func (s *Store) createTables() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS artists (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			bio TEXT,
			image TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS genres (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT,
			image TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS albums (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			artist TEXT NOT NULL,
			artist_id TEXT NOT NULL REFERENCES artists(id),
			year INTEGER DEFAULT 0,
			year_string TEXT,
			album_art TEXT,
			md5 TEXT NOT NULL,
			UNIQUE(artist_id, md5)
		);`,
		`CREATE TABLE IF NOT EXISTS tracks (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			artist TEXT NOT NULL,
			album TEXT NOT NULL,
			album_artist TEXT,
			bitrate INTEGER DEFAULT 0,
			composer TEXT,
			disc_number INTEGER DEFAULT 0,
			filesize INTEGER DEFAULT 0,
			frequency INTEGER DEFAULT 0,
			length INTEGER DEFAULT 0,
			track_number INTEGER DEFAULT 0,
			year INTEGER DEFAULT 0,
			genre TEXT,
			md5 TEXT NOT NULL,
			album_art TEXT,
			artist_id TEXT NOT NULL REFERENCES artists(id),
			album_id TEXT NOT NULL REFERENCES albums(id),
			genre_id TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS folders (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			parent_id TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS playlists (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			image TEXT,
			description TEXT,
			folder_id TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS playlist_tracks (
			id TEXT PRIMARY KEY,
			playlist_id TEXT NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
			track_id TEXT NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			UNIQUE(playlist_id, position)
		);`,
		`CREATE TABLE IF NOT EXISTS favourites (
			id TEXT PRIMARY KEY,
			track_id TEXT,
			album_id TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			CHECK ((track_id IS NOT NULL) + (album_id IS NOT NULL) = 1),
			UNIQUE(track_id),
			UNIQUE(album_id)
		);`,
	}

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_tracks_artist_id ON tracks(artist_id);",
		"CREATE INDEX IF NOT EXISTS idx_tracks_album_id ON tracks(album_id);",
		"CREATE INDEX IF NOT EXISTS idx_tracks_order ON tracks(album_id, disc_number, track_number);",
		"CREATE INDEX IF NOT EXISTS idx_tracks_search ON tracks(title, artist, album);",
		"CREATE INDEX IF NOT EXISTS idx_albums_artist ON albums(artist_id, title);",
		"CREATE INDEX IF NOT EXISTS idx_playlist_tracks_position ON playlist_tracks(playlist_id, position);",
		"CREATE INDEX IF NOT EXISTS idx_folders_parent ON folders(parent_id);",
	}

	for _, table := range tables {
		if _, err := s.conn.Exec(table); err != nil {
			return err
		}
	}
	for _, index := range indices {
		if _, err := s.conn.Exec(index); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) prepareStatements() error {
	var err error

	s.findTrackByPathStmt, err = s.conn.Prepare(trackSelect + " WHERE path = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare find-track-by-path statement: %w", err)
	}
	s.findTrackStmt, err = s.conn.Prepare(trackSelect + " WHERE id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare find-track statement: %w", err)
	}
	s.trackExistsStmt, err = s.conn.Prepare("SELECT COUNT(*) FROM tracks WHERE path = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare track-exists statement: %w", err)
	}
	return nil
}

// Close closes the underlying database connection and prepared statements.
func (s *Store) Close() error {
	for _, stmt := range []*sql.Stmt{s.findTrackByPathStmt, s.findTrackStmt, s.trackExistsStmt} {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				s.logger.WithError(err).Error("Failed to close prepared statement")
			}
		}
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// --- Artists ---------------------------------------------------------------

// UpsertArtist inserts the artist derived from name, returning the existing
// row on a name conflict. Identity is name-unique.
func (s *Store) UpsertArtist(name string) (models.Artist, error) {
	artist := models.Artist{ID: models.ArtistID(name), Name: name}
	_, err := s.conn.Exec(`
		INSERT INTO artists (id, name) VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING`, artist.ID, artist.Name)
	if err != nil {
		return artist, err
	}
	return s.FindArtistByName(name)
}

// AllArtists returns every artist ordered by name.
func (s *Store) AllArtists() ([]models.Artist, error) {
	rows, err := s.conn.Query("SELECT id, name, COALESCE(bio,''), COALESCE(image,'') FROM artists ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artists []models.Artist
	for rows.Next() {
		var a models.Artist
		if err := rows.Scan(&a.ID, &a.Name, &a.Bio, &a.ImageURI); err != nil {
			return nil, err
		}
		artists = append(artists, a)
	}
	return artists, rows.Err()
}

// FindArtist returns a single artist by id.
func (s *Store) FindArtist(id string) (models.Artist, error) {
	var a models.Artist
	err := s.conn.QueryRow(
		"SELECT id, name, COALESCE(bio,''), COALESCE(image,'') FROM artists WHERE id = ?", id).
		Scan(&a.ID, &a.Name, &a.Bio, &a.ImageURI)
	if err == sql.ErrNoRows {
		return a, errs.New(errs.NotFound, "artist %s not found", id)
	}
	return a, err
}

// FindArtistByName returns a single artist by exact (case-sensitive) name.
func (s *Store) FindArtistByName(name string) (models.Artist, error) {
	var a models.Artist
	err := s.conn.QueryRow(
		"SELECT id, name, COALESCE(bio,''), COALESCE(image,'') FROM artists WHERE name = ?", name).
		Scan(&a.ID, &a.Name, &a.Bio, &a.ImageURI)
	if err == sql.ErrNoRows {
		return a, errs.New(errs.NotFound, "artist %q not found", name)
	}
	return a, err
}

// --- Genres ----------------------------------------------------------------

// UpsertGenre inserts a genre by name, returning the existing row on
// conflict.
func (s *Store) UpsertGenre(name string) (models.Genre, error) {
	g := models.Genre{ID: models.EntityID("genre", name), Name: name}
	_, err := s.conn.Exec(`
		INSERT INTO genres (id, name) VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING`, g.ID, g.Name)
	if err != nil {
		return g, err
	}
	err = s.conn.QueryRow("SELECT id, name, COALESCE(description,''), COALESCE(image,'') FROM genres WHERE name = ?", name).
		Scan(&g.ID, &g.Name, &g.Description, &g.ImageURI)
	return g, err
}

// AllGenres returns every genre ordered by name.
func (s *Store) AllGenres() ([]models.Genre, error) {
	rows, err := s.conn.Query("SELECT id, name, COALESCE(description,''), COALESCE(image,'') FROM genres ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var genres []models.Genre
	for rows.Next() {
		var g models.Genre
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.ImageURI); err != nil {
			return nil, err
		}
		genres = append(genres, g)
	}
	return genres, rows.Err()
}

// --- Albums ----------------------------------------------------------------

const albumSelect = `SELECT id, title, artist, artist_id, year, COALESCE(year_string,''), COALESCE(album_art,''), md5 FROM albums`

func scanAlbum(row interface{ Scan(...interface{}) error }) (models.Album, error) {
	var a models.Album
	err := row.Scan(&a.ID, &a.Title, &a.ArtistName, &a.ArtistID, &a.Year, &a.YearString, &a.CoverURI, &a.MD5)
	return a, err
}

// UpsertAlbum inserts an album, returning the existing row when the same
// (artist, md5) fingerprint is already present.
func (s *Store) UpsertAlbum(album models.Album) (models.Album, error) {
	if album.ID == "" {
		album.ID = models.AlbumID(album.Title, album.ArtistName)
	}
	if album.MD5 == "" {
		album.MD5 = models.EntityID(album.Title, album.ArtistName)
	}
	_, err := s.conn.Exec(`
		INSERT INTO albums (id, title, artist, artist_id, year, year_string, album_art, md5)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(artist_id, md5) DO NOTHING`,
		album.ID, album.Title, album.ArtistName, album.ArtistID,
		album.Year, album.YearString, album.CoverURI, album.MD5)
	if err != nil {
		return album, err
	}
	return scanAlbum(s.conn.QueryRow(albumSelect+" WHERE artist_id = ? AND md5 = ?", album.ArtistID, album.MD5))
}

// AllAlbums returns every album ordered by title.
func (s *Store) AllAlbums() ([]models.Album, error) {
	return s.queryAlbums(albumSelect + " ORDER BY title")
}

// AlbumsByArtist returns an artist's albums ordered by title.
func (s *Store) AlbumsByArtist(artistID string) ([]models.Album, error) {
	return s.queryAlbums(albumSelect+" WHERE artist_id = ? ORDER BY title", artistID)
}

// FindAlbum returns a single album by id.
func (s *Store) FindAlbum(id string) (models.Album, error) {
	a, err := scanAlbum(s.conn.QueryRow(albumSelect+" WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return a, errs.New(errs.NotFound, "album %s not found", id)
	}
	return a, err
}

func (s *Store) queryAlbums(query string, args ...interface{}) ([]models.Album, error) {
	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var albums []models.Album
	for rows.Next() {
		a, err := scanAlbum(rows)
		if err != nil {
			return nil, err
		}
		albums = append(albums, a)
	}
	return albums, rows.Err()
}

// --- Tracks ----------------------------------------------------------------

const trackSelect = `SELECT id, path, title, artist, album, COALESCE(album_artist,''),
	bitrate, COALESCE(composer,''), disc_number, filesize, frequency, length,
	track_number, year, COALESCE(genre,''), md5, COALESCE(album_art,''),
	artist_id, album_id, COALESCE(genre_id,''), created_at, updated_at
	FROM tracks`

func scanTrack(row interface{ Scan(...interface{}) error }) (models.Track, error) {
	var t models.Track
	err := row.Scan(&t.ID, &t.Path, &t.Title, &t.ArtistName, &t.AlbumTitle, &t.AlbumArtist,
		&t.Bitrate, &t.Composer, &t.DiscNumber, &t.Filesize, &t.Frequency, &t.LengthMs,
		&t.TrackNumber, &t.Year, &t.Genre, &t.MD5, &t.CoverURI,
		&t.ArtistID, &t.AlbumID, &t.GenreID, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// queryTracks centralizes row iteration for track result sets.
func (s *Store) queryTracks(query string, args ...interface{}) ([]models.Track, error) {
	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []models.Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// UpsertTrack inserts a new track or updates the existing row matched by
// path, returning the stored track. The id never changes for an existing
// path: re-ingesting a file with updated tags keeps the stable id.
func (s *Store) UpsertTrack(track models.Track) (models.Track, error) {
	if track.ID == "" {
		track.ID = models.TrackID(track.Path, track.MD5)
	}

	existing, err := scanTrack(s.findTrackByPathStmt.QueryRow(track.Path))
	if err == nil {
		_, err = s.conn.Exec(`
			UPDATE tracks SET title = ?, artist = ?, album = ?, album_artist = ?,
				bitrate = ?, composer = ?, disc_number = ?, filesize = ?, frequency = ?,
				length = ?, track_number = ?, year = ?, genre = ?, md5 = ?, album_art = ?,
				artist_id = ?, album_id = ?, genre_id = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			track.Title, track.ArtistName, track.AlbumTitle, track.AlbumArtist,
			track.Bitrate, track.Composer, track.DiscNumber, track.Filesize, track.Frequency,
			track.LengthMs, track.TrackNumber, track.Year, track.Genre, track.MD5, track.CoverURI,
			track.ArtistID, track.AlbumID, track.GenreID, existing.ID)
		if err != nil {
			s.logger.WithError(err).WithField("track_id", existing.ID).Error("Failed to update existing track")
			return existing, err
		}
		return s.FindTrack(existing.ID)
	} else if err != sql.ErrNoRows {
		return track, err
	}

	_, err = s.conn.Exec(`
		INSERT INTO tracks (id, path, title, artist, album, album_artist, bitrate, composer,
			disc_number, filesize, frequency, length, track_number, year, genre, md5,
			album_art, artist_id, album_id, genre_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		track.ID, track.Path, track.Title, track.ArtistName, track.AlbumTitle, track.AlbumArtist,
		track.Bitrate, track.Composer, track.DiscNumber, track.Filesize, track.Frequency,
		track.LengthMs, track.TrackNumber, track.Year, track.Genre, track.MD5,
		track.CoverURI, track.ArtistID, track.AlbumID, track.GenreID)
	if err != nil {
		s.logger.WithError(err).WithField("path", track.Path).Error("Failed to insert new track")
		return track, err
	}
	return s.FindTrack(track.ID)
}

// AllTracks returns every track ordered by artist, album, disc and track
// number.
func (s *Store) AllTracks() ([]models.Track, error) {
	return s.queryTracks(trackSelect + " ORDER BY artist, album, disc_number, track_number, title")
}

// FindTrack returns a single track by id.
func (s *Store) FindTrack(id string) (models.Track, error) {
	t, err := scanTrack(s.findTrackStmt.QueryRow(id))
	if err == sql.ErrNoRows {
		return t, errs.New(errs.NotFound, "track %s not found", id)
	}
	return t, err
}

// FindTrackByPath returns a single track by its absolute path.
func (s *Store) FindTrackByPath(path string) (models.Track, error) {
	t, err := scanTrack(s.findTrackByPathStmt.QueryRow(path))
	if err == sql.ErrNoRows {
		return t, errs.New(errs.NotFound, "track at %s not found", path)
	}
	return t, err
}

// TrackExists returns true if a track exists with the given path.
func (s *Store) TrackExists(path string) (bool, error) {
	var count int
	if err := s.trackExistsStmt.QueryRow(path).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// TracksByArtist returns an artist's tracks in album order.
func (s *Store) TracksByArtist(artistID string) ([]models.Track, error) {
	return s.queryTracks(trackSelect+" WHERE artist_id = ? ORDER BY album, disc_number, track_number, title", artistID)
}

// TracksByAlbum returns an album's tracks ordered by (disc, track) number.
func (s *Store) TracksByAlbum(albumID string) ([]models.Track, error) {
	return s.queryTracks(trackSelect+" WHERE album_id = ? ORDER BY disc_number, track_number, title", albumID)
}

// FilterTracksWhere runs an ad-hoc filter over tracks. The clause must be a
// valid SQL predicate over the tracks columns.
func (s *Store) FilterTracksWhere(clause string, args ...interface{}) ([]models.Track, error) {
	if strings.TrimSpace(clause) == "" {
		return s.AllTracks()
	}
	return s.queryTracks(trackSelect+" WHERE "+clause+" ORDER BY artist, album, disc_number, track_number, title", args...)
}

// SearchTracksLike performs a LIKE-based match over title, artist and album.
func (s *Store) SearchTracksLike(query string) ([]models.Track, error) {
	q := "%" + query + "%"
	return s.queryTracks(trackSelect+` WHERE title LIKE ? OR artist LIKE ? OR album LIKE ?
		ORDER BY artist, album, disc_number, track_number, title`, q, q, q)
}

// RemoveTrackByPath deletes a track row identified by its path, returning
// the removed track for downstream index cleanup.
func (s *Store) RemoveTrackByPath(path string) (models.Track, error) {
	t, err := s.FindTrackByPath(path)
	if err != nil {
		return t, err
	}
	_, err = s.conn.Exec("DELETE FROM tracks WHERE id = ?", t.ID)
	return t, err
}

// --- Folders ---------------------------------------------------------------

const folderSelect = `SELECT id, name, COALESCE(parent_id,''), created_at, updated_at FROM folders`

func scanFolder(row interface{ Scan(...interface{}) error }) (models.Folder, error) {
	var f models.Folder
	err := row.Scan(&f.ID, &f.Name, &f.ParentID, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

// CreateFolder inserts a playlist folder under the given parent ("" = root).
func (s *Store) CreateFolder(name, parentID string) (models.Folder, error) {
	id := uuid.NewString()
	var parent interface{}
	if parentID != "" {
		if _, err := s.FindFolder(parentID); err != nil {
			return models.Folder{}, err
		}
		parent = parentID
	}
	_, err := s.conn.Exec("INSERT INTO folders (id, name, parent_id) VALUES (?, ?, ?)", id, name, parent)
	if err != nil {
		return models.Folder{}, err
	}
	return s.FindFolder(id)
}

// FindFolder returns a single folder by id.
func (s *Store) FindFolder(id string) (models.Folder, error) {
	f, err := scanFolder(s.conn.QueryRow(folderSelect+" WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return f, errs.New(errs.NotFound, "folder %s not found", id)
	}
	return f, err
}

// FoldersByParent returns the children of a folder ("" = root level).
func (s *Store) FoldersByParent(parentID string) ([]models.Folder, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if parentID == "" {
		rows, err = s.conn.Query(folderSelect + " WHERE parent_id IS NULL OR parent_id = '' ORDER BY name")
	} else {
		rows, err = s.conn.Query(folderSelect+" WHERE parent_id = ? ORDER BY name", parentID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var folders []models.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// AllFolders returns every folder ordered by name.
func (s *Store) AllFolders() ([]models.Folder, error) {
	rows, err := s.conn.Query(folderSelect + " ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var folders []models.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// RenameFolder updates a folder's name.
func (s *Store) RenameFolder(id, name string) error {
	res, err := s.conn.Exec("UPDATE folders SET name = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", name, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.New(errs.NotFound, "folder %s not found", id)
	}
	return nil
}

// DeleteFolder removes a folder; contained playlists fall back to the root.
func (s *Store) DeleteFolder(id string) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("UPDATE playlists SET folder_id = NULL WHERE folder_id = ?", id); err != nil {
		return err
	}
	res, err := tx.Exec("DELETE FROM folders WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.New(errs.NotFound, "folder %s not found", id)
	}
	return tx.Commit()
}

// --- Playlists -------------------------------------------------------------

const playlistSelect = `SELECT id, name, COALESCE(image,''), COALESCE(description,''), COALESCE(folder_id,''), created_at, updated_at FROM playlists`

func scanPlaylist(row interface{ Scan(...interface{}) error }) (models.Playlist, error) {
	var p models.Playlist
	err := row.Scan(&p.ID, &p.Name, &p.ImageURI, &p.Description, &p.FolderID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// CreatePlaylist inserts a playlist with the given tracks appended in order.
func (s *Store) CreatePlaylist(name, description, folderID string, trackIDs []string) (models.Playlist, error) {
	if name == "" {
		return models.Playlist{}, errs.New(errs.InvalidArgument, "playlist name is required")
	}
	if _, err := s.FindPlaylistByName(name); err == nil {
		return models.Playlist{}, errs.New(errs.AlreadyExists, "playlist %q already exists", name)
	}

	id := uuid.NewString()
	tx, err := s.conn.Begin()
	if err != nil {
		return models.Playlist{}, err
	}
	defer tx.Rollback()

	var folder interface{}
	if folderID != "" {
		folder = folderID
	}
	if _, err := tx.Exec(
		"INSERT INTO playlists (id, name, description, folder_id) VALUES (?, ?, ?, ?)",
		id, name, description, folder); err != nil {
		return models.Playlist{}, err
	}
	for i, trackID := range trackIDs {
		if _, err := tx.Exec(
			"INSERT INTO playlist_tracks (id, playlist_id, track_id, position) VALUES (?, ?, ?, ?)",
			uuid.NewString(), id, trackID, i); err != nil {
			return models.Playlist{}, errs.Wrap(errs.InvalidArgument, err, "unknown track "+trackID)
		}
	}
	if err := tx.Commit(); err != nil {
		return models.Playlist{}, err
	}
	return s.FindPlaylist(id)
}

// FindPlaylist returns a playlist with its tracks in position order.
func (s *Store) FindPlaylist(id string) (models.Playlist, error) {
	p, err := scanPlaylist(s.conn.QueryRow(playlistSelect+" WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return p, errs.New(errs.NotFound, "playlist %s not found", id)
	}
	if err != nil {
		return p, err
	}
	p.Tracks, err = s.PlaylistTracks(id)
	return p, err
}

// FindPlaylistByName returns a playlist by its unique name.
func (s *Store) FindPlaylistByName(name string) (models.Playlist, error) {
	p, err := scanPlaylist(s.conn.QueryRow(playlistSelect+" WHERE name = ?", name))
	if err == sql.ErrNoRows {
		return p, errs.New(errs.NotFound, "playlist %q not found", name)
	}
	if err != nil {
		return p, err
	}
	p.Tracks, err = s.PlaylistTracks(p.ID)
	return p, err
}

// AllPlaylists returns every playlist (without track bodies) ordered by name.
func (s *Store) AllPlaylists() ([]models.Playlist, error) {
	rows, err := s.conn.Query(playlistSelect + " ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var playlists []models.Playlist
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			return nil, err
		}
		playlists = append(playlists, p)
	}
	return playlists, rows.Err()
}

// PlaylistsByFolder returns the playlists directly inside a folder.
func (s *Store) PlaylistsByFolder(folderID string) ([]models.Playlist, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if folderID == "" {
		rows, err = s.conn.Query(playlistSelect + " WHERE folder_id IS NULL OR folder_id = '' ORDER BY name")
	} else {
		rows, err = s.conn.Query(playlistSelect+" WHERE folder_id = ? ORDER BY name", folderID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var playlists []models.Playlist
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			return nil, err
		}
		playlists = append(playlists, p)
	}
	return playlists, rows.Err()
}

// PlaylistTracks returns the playlist's tracks ordered by stored position.
func (s *Store) PlaylistTracks(playlistID string) ([]models.Track, error) {
	return s.queryTracks(`SELECT t.id, t.path, t.title, t.artist, t.album, COALESCE(t.album_artist,''),
		t.bitrate, COALESCE(t.composer,''), t.disc_number, t.filesize, t.frequency, t.length,
		t.track_number, t.year, COALESCE(t.genre,''), t.md5, COALESCE(t.album_art,''),
		t.artist_id, t.album_id, COALESCE(t.genre_id,''), t.created_at, t.updated_at
		FROM tracks t
		JOIN playlist_tracks pt ON t.id = pt.track_id
		WHERE pt.playlist_id = ?
		ORDER BY pt.position`, playlistID)
}

// RenamePlaylist updates a playlist's name.
func (s *Store) RenamePlaylist(id, name string) error {
	if _, err := s.FindPlaylist(id); err != nil {
		return err
	}
	if other, err := s.FindPlaylistByName(name); err == nil && other.ID != id {
		return errs.New(errs.AlreadyExists, "playlist %q already exists", name)
	}
	_, err := s.conn.Exec("UPDATE playlists SET name = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", name, id)
	return err
}

// DeletePlaylist removes the playlist and its membership rows.
func (s *Store) DeletePlaylist(id string) error {
	res, err := s.conn.Exec("DELETE FROM playlists WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.New(errs.NotFound, "playlist %s not found", id)
	}
	return nil
}

// InsertPlaylistTracks inserts tracks at position (or appends when position
// is negative), shifting later entries. Positions stay dense and 0-based.
func (s *Store) InsertPlaylistTracks(playlistID string, trackIDs []string, position int) error {
	if _, err := s.FindPlaylist(playlistID); err != nil {
		return err
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ids, err := playlistOrder(tx, playlistID)
	if err != nil {
		return err
	}
	if position < 0 || position > len(ids) {
		position = len(ids)
	}

	next := make([]string, 0, len(ids)+len(trackIDs))
	next = append(next, ids[:position]...)
	next = append(next, trackIDs...)
	next = append(next, ids[position:]...)

	if err := rewritePlaylist(tx, playlistID, next); err != nil {
		return err
	}
	return tx.Commit()
}

// RemovePlaylistTrackAt removes the entry at position and renumbers the rest.
func (s *Store) RemovePlaylistTrackAt(playlistID string, position int) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ids, err := playlistOrder(tx, playlistID)
	if err != nil {
		return err
	}
	if position < 0 || position >= len(ids) {
		return errs.New(errs.InvalidArgument, "position %d out of range", position)
	}
	next := append(append([]string{}, ids[:position]...), ids[position+1:]...)
	if err := rewritePlaylist(tx, playlistID, next); err != nil {
		return err
	}
	return tx.Commit()
}

// MovePlaylistTrack moves the entry at from to the to position.
func (s *Store) MovePlaylistTrack(playlistID string, from, to int) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ids, err := playlistOrder(tx, playlistID)
	if err != nil {
		return err
	}
	if from < 0 || from >= len(ids) || to < 0 || to >= len(ids) {
		return errs.New(errs.InvalidArgument, "move %d -> %d out of range", from, to)
	}
	id := ids[from]
	ids = append(ids[:from], ids[from+1:]...)
	rest := append([]string{}, ids[to:]...)
	ids = append(append(ids[:to], id), rest...)
	if err := rewritePlaylist(tx, playlistID, ids); err != nil {
		return err
	}
	return tx.Commit()
}

// ClearPlaylist removes every entry from a playlist.
func (s *Store) ClearPlaylist(playlistID string) error {
	if _, err := s.FindPlaylist(playlistID); err != nil {
		return err
	}
	_, err := s.conn.Exec("DELETE FROM playlist_tracks WHERE playlist_id = ?", playlistID)
	return err
}

// ShufflePlaylist randomly permutes the playlist order.
func (s *Store) ShufflePlaylist(playlistID string) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ids, err := playlistOrder(tx, playlistID)
	if err != nil {
		return err
	}
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	if err := rewritePlaylist(tx, playlistID, ids); err != nil {
		return err
	}
	return tx.Commit()
}

// playlistOrder reads the track ids of a playlist in position order.
func playlistOrder(tx *sql.Tx, playlistID string) ([]string, error) {
	rows, err := tx.Query(
		"SELECT track_id FROM playlist_tracks WHERE playlist_id = ? ORDER BY position", playlistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// rewritePlaylist replaces the membership rows with the given order. Doing a
// full rewrite keeps positions dense without position arithmetic.
func rewritePlaylist(tx *sql.Tx, playlistID string, trackIDs []string) error {
	if _, err := tx.Exec("DELETE FROM playlist_tracks WHERE playlist_id = ?", playlistID); err != nil {
		return err
	}
	for i, trackID := range trackIDs {
		if _, err := tx.Exec(
			"INSERT INTO playlist_tracks (id, playlist_id, track_id, position) VALUES (?, ?, ?, ?)",
			uuid.NewString(), playlistID, trackID, i); err != nil {
			return errs.Wrap(errs.InvalidArgument, err, "unknown track "+trackID)
		}
	}
	if _, err := tx.Exec("UPDATE playlists SET updated_at = CURRENT_TIMESTAMP WHERE id = ?", playlistID); err != nil {
		return err
	}
	return nil
}

// --- Favourites ------------------------------------------------------------

// LikeTrack marks a track as favourite. Liking twice is not an error.
func (s *Store) LikeTrack(trackID string) (models.Favourite, error) {
	if _, err := s.FindTrack(trackID); err != nil {
		return models.Favourite{}, err
	}
	_, err := s.conn.Exec(`
		INSERT INTO favourites (id, track_id) VALUES (?, ?)
		ON CONFLICT(track_id) DO NOTHING`, uuid.NewString(), trackID)
	if err != nil {
		return models.Favourite{}, err
	}
	var f models.Favourite
	var album sql.NullString
	err = s.conn.QueryRow("SELECT id, track_id, album_id, created_at FROM favourites WHERE track_id = ?", trackID).
		Scan(&f.ID, &f.TrackID, &album, &f.CreatedAt)
	return f, err
}

// LikeAlbum marks an album as favourite.
func (s *Store) LikeAlbum(albumID string) (models.Favourite, error) {
	if _, err := s.FindAlbum(albumID); err != nil {
		return models.Favourite{}, err
	}
	_, err := s.conn.Exec(`
		INSERT INTO favourites (id, album_id) VALUES (?, ?)
		ON CONFLICT(album_id) DO NOTHING`, uuid.NewString(), albumID)
	if err != nil {
		return models.Favourite{}, err
	}
	var f models.Favourite
	var track sql.NullString
	err = s.conn.QueryRow("SELECT id, track_id, album_id, created_at FROM favourites WHERE album_id = ?", albumID).
		Scan(&f.ID, &track, &f.AlbumID, &f.CreatedAt)
	return f, err
}

// UnlikeTrack removes a track favourite.
func (s *Store) UnlikeTrack(trackID string) error {
	_, err := s.conn.Exec("DELETE FROM favourites WHERE track_id = ?", trackID)
	return err
}

// UnlikeAlbum removes an album favourite.
func (s *Store) UnlikeAlbum(albumID string) error {
	_, err := s.conn.Exec("DELETE FROM favourites WHERE album_id = ?", albumID)
	return err
}

// FavouriteTracks returns the liked tracks in library order.
func (s *Store) FavouriteTracks() ([]models.Track, error) {
	return s.queryTracks(`SELECT t.id, t.path, t.title, t.artist, t.album, COALESCE(t.album_artist,''),
		t.bitrate, COALESCE(t.composer,''), t.disc_number, t.filesize, t.frequency, t.length,
		t.track_number, t.year, COALESCE(t.genre,''), t.md5, COALESCE(t.album_art,''),
		t.artist_id, t.album_id, COALESCE(t.genre_id,''), t.created_at, t.updated_at
		FROM tracks t
		JOIN favourites f ON t.id = f.track_id
		ORDER BY t.artist, t.album, t.disc_number, t.track_number`)
}

// FavouriteAlbums returns the liked albums ordered by title.
func (s *Store) FavouriteAlbums() ([]models.Album, error) {
	return s.queryAlbums(`SELECT a.id, a.title, a.artist, a.artist_id, a.year,
		COALESCE(a.year_string,''), COALESCE(a.album_art,''), a.md5
		FROM albums a
		JOIN favourites f ON a.id = f.album_id
		ORDER BY a.title`)
}

// --- Stats -----------------------------------------------------------------

// Stats summarizes the catalog for the MPD stats command and the system
// status endpoint.
type Stats struct {
	Artists     int   `json:"artists"`
	Albums      int   `json:"albums"`
	Tracks      int   `json:"tracks"`
	TotalLength int64 `json:"db_playtime"` // seconds
}

// Stats returns catalog counters.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	if err := s.conn.QueryRow("SELECT COUNT(*) FROM artists").Scan(&st.Artists); err != nil {
		return st, err
	}
	if err := s.conn.QueryRow("SELECT COUNT(*) FROM albums").Scan(&st.Albums); err != nil {
		return st, err
	}
	var length sql.NullInt64
	if err := s.conn.QueryRow("SELECT COUNT(*), COALESCE(SUM(length),0) FROM tracks").Scan(&st.Tracks, &length); err != nil {
		return st, err
	}
	st.TotalLength = length.Int64 / 1000
	return st, nil
}
