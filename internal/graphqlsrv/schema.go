package graphqlsrv

import (
	"fmt"

	"github.com/graphql-go/graphql"
)

// The object fields use the same snake_case keys as the HTTP surface JSON so
// the default map resolver works on the loopback responses.

func jsonFields(names map[string]graphql.Output) graphql.Fields {
	fields := graphql.Fields{}
	for name, typ := range names {
		fields[name] = &graphql.Field{Type: typ}
	}
	return fields
}

func buildSchema(lb *loopback) (graphql.Schema, error) {
	artistType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Artist",
		Fields: jsonFields(map[string]graphql.Output{
			"id":   graphql.String,
			"name": graphql.String,
		}),
	})

	albumType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Album",
		Fields: jsonFields(map[string]graphql.Output{
			"id":        graphql.String,
			"title":     graphql.String,
			"artist":    graphql.String,
			"artist_id": graphql.String,
			"year":      graphql.Int,
			"md5":       graphql.String,
		}),
	})

	trackType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Track",
		Fields: jsonFields(map[string]graphql.Output{
			"id":           graphql.String,
			"path":         graphql.String,
			"title":        graphql.String,
			"artist":       graphql.String,
			"album":        graphql.String,
			"album_artist": graphql.String,
			"genre":        graphql.String,
			"bitrate":      graphql.Int,
			"frequency":    graphql.Int,
			"length":       graphql.Float,
			"track_number": graphql.Int,
			"disc_number":  graphql.Int,
			"year":         graphql.Int,
			"filesize":     graphql.Float,
			"md5":          graphql.String,
			"artist_id":    graphql.String,
			"album_id":     graphql.String,
		}),
	})

	playlistType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Playlist",
		Fields: jsonFields(map[string]graphql.Output{
			"id":          graphql.String,
			"name":        graphql.String,
			"description": graphql.String,
			"folder_id":   graphql.String,
		}),
	})

	folderType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Folder",
		Fields: jsonFields(map[string]graphql.Output{
			"id":        graphql.String,
			"name":      graphql.String,
			"parent_id": graphql.String,
		}),
	})

	deviceType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Device",
		Fields: jsonFields(map[string]graphql.Output{
			"id":                graphql.String,
			"name":              graphql.String,
			"host":              graphql.String,
			"ip":                graphql.String,
			"port":              graphql.Int,
			"service":           graphql.String,
			"app":               graphql.String,
			"base_url":          graphql.String,
			"is_connected":      graphql.Boolean,
			"is_cast_device":    graphql.Boolean,
			"is_source_device":  graphql.Boolean,
			"is_current_device": graphql.Boolean,
		}),
	})

	treeEntryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TreeEntry",
		Fields: jsonFields(map[string]graphql.Output{
			"name":       graphql.String,
			"attr":       graphql.Int,
			"time_write": graphql.Float,
		}),
	})

	playbackType := graphql.NewObject(graphql.ObjectConfig{
		Name: "PlaybackStatus",
		Fields: graphql.Fields{
			"state":   &graphql.Field{Type: graphql.String},
			"elapsed": &graphql.Field{Type: graphql.Float},
			"index":   &graphql.Field{Type: graphql.Int},
			"volume":  &graphql.Field{Type: graphql.Int},
			"track":   &graphql.Field{Type: trackType},
		},
	})

	tracklistType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Tracklist",
		Fields: graphql.Fields{
			"tracks": &graphql.Field{Type: graphql.NewList(trackType)},
			"index":  &graphql.Field{Type: graphql.Int},
		},
	})

	searchResultsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "SearchResults",
		Fields: graphql.Fields{
			"artists":      &graphql.Field{Type: graphql.NewList(artistType)},
			"albums":       &graphql.Field{Type: graphql.NewList(albumType)},
			"tracks":       &graphql.Field{Type: graphql.NewList(trackType)},
			"entries":      &graphql.Field{Type: graphql.NewList(treeEntryType)},
			"liked_tracks": &graphql.Field{Type: graphql.NewList(trackType)},
			"liked_albums": &graphql.Field{Type: graphql.NewList(albumType)},
		},
	})

	settingsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Settings",
		Fields: jsonFields(map[string]graphql.Output{
			"volume":              graphql.Int,
			"bass":                graphql.Int,
			"treble":              graphql.Int,
			"eq_enabled":          graphql.Boolean,
			"crossfeed":           graphql.Boolean,
			"timestretch_enabled": graphql.Boolean,
			"dithering_enabled":   graphql.Boolean,
			"crossfade":           graphql.Int,
			"repeat_mode":         graphql.Int,
			"playlist_shuffle":    graphql.Boolean,
		}),
	})

	systemStatusType := graphql.NewObject(graphql.ObjectConfig{
		Name: "SystemStatus",
		Fields: jsonFields(map[string]graphql.Output{
			"uptime_seconds":  graphql.Float,
			"target":          graphql.String,
			"artists":         graphql.Int,
			"albums":          graphql.Int,
			"tracks":          graphql.Int,
			"total_length":    graphql.Float,
			"devices":         graphql.Int,
			"last_scan_count": graphql.Int,
		}),
	})

	// listQuery fetches a collection from the HTTP surface.
	listQuery := func(typ graphql.Output, path string) *graphql.Field {
		return &graphql.Field{
			Type: graphql.NewList(typ),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				var out []map[string]interface{}
				if err := lb.get(path, &out); err != nil {
					return nil, err
				}
				return out, nil
			},
		}
	}

	// idQuery fetches a single entity by id.
	idQuery := func(typ graphql.Output, pathf string) *graphql.Field {
		return &graphql.Field{
			Type: typ,
			Args: graphql.FieldConfigArgument{
				"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				var out map[string]interface{}
				if err := lb.get(fmt.Sprintf(pathf, p.Args["id"]), &out); err != nil {
					return nil, err
				}
				return out, nil
			},
		}
	}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"artists":       listQuery(artistType, "/api/artists"),
			"artist":        idQuery(artistType, "/api/artists/%s"),
			"artist_albums": idQuery(graphql.NewList(albumType), "/api/artists/%s/albums"),
			"artist_tracks": idQuery(graphql.NewList(trackType), "/api/artists/%s/tracks"),
			"albums":        listQuery(albumType, "/api/albums"),
			"album":         idQuery(albumType, "/api/albums/%s"),
			"album_tracks":  idQuery(graphql.NewList(trackType), "/api/albums/%s/tracks"),
			"tracks":        listQuery(trackType, "/api/tracks"),
			"track":         idQuery(trackType, "/api/tracks/%s"),
			"playlists":     listQuery(playlistType, "/api/playlists"),
			"playlist":      idQuery(playlistType, "/api/playlists/%s"),
			"playlist_tracks": idQuery(graphql.NewList(trackType),
				"/api/playlists/%s/tracks"),
			"folders":      listQuery(folderType, "/api/folders"),
			"devices":      listQuery(deviceType, "/api/devices"),
			"liked_tracks": listQuery(trackType, "/api/likes/tracks"),
			"liked_albums": listQuery(albumType, "/api/likes/albums"),
			"current_device": &graphql.Field{
				Type: deviceType,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					var out map[string]interface{}
					if err := lb.get("/api/devices/current", &out); err != nil {
						return nil, err
					}
					return out, nil
				},
			},
			"playback": &graphql.Field{
				Type: playbackType,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					var out map[string]interface{}
					if err := lb.get("/api/player", &out); err != nil {
						return nil, err
					}
					return out, nil
				},
			},
			"tracklist": &graphql.Field{
				Type: tracklistType,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					var out map[string]interface{}
					if err := lb.get("/api/player/tracklist", &out); err != nil {
						return nil, err
					}
					return out, nil
				},
			},
			"search": &graphql.Field{
				Type: searchResultsType,
				Args: graphql.FieldConfigArgument{
					"term": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					var out map[string]interface{}
					path := fmt.Sprintf("/api/search?q=%s", p.Args["term"])
					if err := lb.get(path, &out); err != nil {
						return nil, err
					}
					return out, nil
				},
			},
			"browse": &graphql.Field{
				Type: graphql.NewList(treeEntryType),
				Args: graphql.FieldConfigArgument{
					"path": &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					path := "/api/browse"
					if dir, ok := p.Args["path"].(string); ok && dir != "" {
						path = fmt.Sprintf("/api/browse?path=%s", dir)
					}
					var out []map[string]interface{}
					if err := lb.get(path, &out); err != nil {
						return nil, err
					}
					return out, nil
				},
			},
			"settings": &graphql.Field{
				Type: settingsType,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					var out map[string]interface{}
					if err := lb.get("/api/settings", &out); err != nil {
						return nil, err
					}
					return out, nil
				},
			},
			"system_status": &graphql.Field{
				Type: systemStatusType,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					var out map[string]interface{}
					if err := lb.get("/api/system/status", &out); err != nil {
						return nil, err
					}
					return out, nil
				},
			},
		},
	})

	// command posts a bare player command.
	command := func(path string) *graphql.Field {
		return &graphql.Field{
			Type: graphql.Boolean,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if err := lb.post(path, nil, nil); err != nil {
					return false, err
				}
				return true, nil
			},
		}
	}

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"play":            command("/api/player/play"),
			"pause":           command("/api/player/pause"),
			"resume":          command("/api/player/resume"),
			"next":            command("/api/player/next"),
			"previous":        command("/api/player/previous"),
			"clear_tracklist": command("/api/player/clear"),
			"disconnect":      command("/api/devices/disconnect"),
			"scan_library":    command("/api/system/scan"),
			"seek": &graphql.Field{
				Type: graphql.Boolean,
				Args: graphql.FieldConfigArgument{
					"delta_ms": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					body := map[string]interface{}{"delta": p.Args["delta_ms"]}
					if err := lb.post("/api/player/seek", body, nil); err != nil {
						return false, err
					}
					return true, nil
				},
			},
			"set_volume": &graphql.Field{
				Type: graphql.Boolean,
				Args: graphql.FieldConfigArgument{
					"volume": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					body := map[string]interface{}{"volume": p.Args["volume"]}
					if err := lb.post("/api/player/volume", body, nil); err != nil {
						return false, err
					}
					return true, nil
				},
			},
			"load_tracks": &graphql.Field{
				Type: graphql.Boolean,
				Args: graphql.FieldConfigArgument{
					"tracks":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.NewList(graphql.String))},
					"start_index": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					body := map[string]interface{}{
						"tracks":      p.Args["tracks"],
						"start_index": p.Args["start_index"],
					}
					if err := lb.post("/api/player/load", body, nil); err != nil {
						return false, err
					}
					return true, nil
				},
			},
			"play_next": &graphql.Field{
				Type: graphql.Boolean,
				Args: graphql.FieldConfigArgument{
					"track": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					body := map[string]interface{}{"track": p.Args["track"]}
					if err := lb.post("/api/player/play-next", body, nil); err != nil {
						return false, err
					}
					return true, nil
				},
			},
			"play_track_at": &graphql.Field{
				Type: graphql.Boolean,
				Args: graphql.FieldConfigArgument{
					"position": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					body := map[string]interface{}{"position": p.Args["position"]}
					if err := lb.post("/api/player/play-at", body, nil); err != nil {
						return false, err
					}
					return true, nil
				},
			},
			"remove_track_at": &graphql.Field{
				Type: graphql.Boolean,
				Args: graphql.FieldConfigArgument{
					"position": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					body := map[string]interface{}{"position": p.Args["position"]}
					if err := lb.post("/api/player/remove-at", body, nil); err != nil {
						return false, err
					}
					return true, nil
				},
			},
			"connect_device": &graphql.Field{
				Type: deviceType,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					var out map[string]interface{}
					path := fmt.Sprintf("/api/devices/%s/connect", p.Args["id"])
					if err := lb.post(path, nil, &out); err != nil {
						return nil, err
					}
					return out, nil
				},
			},
			"create_playlist": &graphql.Field{
				Type: playlistType,
				Args: graphql.FieldConfigArgument{
					"name":        &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"description": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
					"tracks":      &graphql.ArgumentConfig{Type: graphql.NewList(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					body := map[string]interface{}{
						"name":        p.Args["name"],
						"description": p.Args["description"],
						"tracks":      p.Args["tracks"],
					}
					var out map[string]interface{}
					if err := lb.post("/api/playlists", body, &out); err != nil {
						return nil, err
					}
					return out, nil
				},
			},
			"delete_playlist": &graphql.Field{
				Type: graphql.Boolean,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if err := lb.delete(fmt.Sprintf("/api/playlists/%s", p.Args["id"])); err != nil {
						return false, err
					}
					return true, nil
				},
			},
			"rename_playlist": &graphql.Field{
				Type: graphql.Boolean,
				Args: graphql.FieldConfigArgument{
					"id":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"name": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					body := map[string]interface{}{"name": p.Args["name"]}
					if err := lb.put(fmt.Sprintf("/api/playlists/%s", p.Args["id"]), body, nil); err != nil {
						return false, err
					}
					return true, nil
				},
			},
			"add_to_playlist": &graphql.Field{
				Type: graphql.Boolean,
				Args: graphql.FieldConfigArgument{
					"id":     &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"tracks": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.NewList(graphql.String))},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					body := map[string]interface{}{"tracks": p.Args["tracks"]}
					path := fmt.Sprintf("/api/playlists/%s/tracks", p.Args["id"])
					if err := lb.post(path, body, nil); err != nil {
						return false, err
					}
					return true, nil
				},
			},
			"shuffle_playlist": &graphql.Field{
				Type: graphql.Boolean,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					path := fmt.Sprintf("/api/playlists/%s/shuffle", p.Args["id"])
					if err := lb.post(path, nil, nil); err != nil {
						return false, err
					}
					return true, nil
				},
			},
			"start_playlist": &graphql.Field{
				Type: graphql.Boolean,
				Args: graphql.FieldConfigArgument{
					"id":       &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"position": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"shuffle":  &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					body := map[string]interface{}{
						"position": p.Args["position"],
						"shuffle":  p.Args["shuffle"],
					}
					path := fmt.Sprintf("/api/playlists/%s/start", p.Args["id"])
					if err := lb.post(path, body, nil); err != nil {
						return false, err
					}
					return true, nil
				},
			},
			"save_settings": &graphql.Field{
				Type: settingsType,
				Args: graphql.FieldConfigArgument{
					"volume":           &graphql.ArgumentConfig{Type: graphql.Int},
					"bass":             &graphql.ArgumentConfig{Type: graphql.Int},
					"treble":           &graphql.ArgumentConfig{Type: graphql.Int},
					"eq_enabled":       &graphql.ArgumentConfig{Type: graphql.Boolean},
					"crossfeed":        &graphql.ArgumentConfig{Type: graphql.Boolean},
					"crossfade":        &graphql.ArgumentConfig{Type: graphql.Int},
					"repeat_mode":      &graphql.ArgumentConfig{Type: graphql.Int},
					"playlist_shuffle": &graphql.ArgumentConfig{Type: graphql.Boolean},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					body := map[string]interface{}{}
					for key, value := range p.Args {
						body[key] = value
					}
					var out map[string]interface{}
					if err := lb.put("/api/settings", body, &out); err != nil {
						return nil, err
					}
					return out, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}
