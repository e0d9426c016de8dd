package store

// Aggregate tables. Column names match the deployed schema.
var (
	MethodCountTable = Table{
		Name:       "analytics_method_count",
		Columns:    []string{"method", "time", "count"},
		Key:        []string{"method", "time"},
		Add:        []string{"count"},
		TimeColumn: "time",
	}

	ActivityCountTable = Table{
		Name:       "analytics_activity_count",
		Columns:    []string{"activity", "time", "count"},
		Key:        []string{"activity", "time"},
		Add:        []string{"count"},
		TimeColumn: "time",
	}

	MediaCountTable = Table{
		Name:       "analytics_media_count",
		Columns:    []string{"type", "time", "count"},
		Key:        []string{"type", "time"},
		Add:        []string{"count"},
		TimeColumn: "time",
	}

	ErrorMessageCountTable = Table{
		Name:       "analytics_error_message_count",
		Columns:    []string{"type", "hashcode", "message", "time", "count"},
		Key:        []string{"type", "hashcode", "time"},
		Add:        []string{"count"},
		Keep:       []string{"message"},
		TimeColumn: "time",
	}

	UserEntryTable = Table{
		Name:       "analytics_user_entry",
		Columns:    []string{"time", "userid"},
		Key:        []string{"time", "userid"},
		TimeColumn: "time",
	}

	UniqueUserCountTable = Table{
		Name:       "analytics_unique_user_count",
		Columns:    []string{"time", "count"},
		Key:        []string{"time"},
		TimeColumn: "time",
	}

	LiveViewerEntryTable = Table{
		Name:       "analytics_live_viewer_entry",
		Columns:    []string{"time", "viewerid"},
		Key:        []string{"time", "viewerid"},
		TimeColumn: "time",
	}

	UniqueLiveViewerCountTable = Table{
		Name:       "analytics_unique_live_viewer_count",
		Columns:    []string{"time", "count"},
		Key:        []string{"time"},
		TimeColumn: "time",
	}

	OnlineUserStatusTable = Table{
		Name:       "analytics_user_online_status",
		Columns:    []string{"time", "userid", "status"},
		Key:        []string{"time", "userid"},
		TimeColumn: "time",
	}

	// LiveStreamTable columns are filled by the live stream aggregator from
	// its field mapping. logtime holds epoch milliseconds.
	LiveStreamTable = Table{
		Name: "analytics_live_stream",
		Columns: []string{
			"streamid", "country", "chatport", "chatserverip", "streamserverip",
			"streamport", "tags", "userstatus", "viewerserverip", "viewerserverport",
			"devicecategory", "endtime", "gifton", "isfeatured", "latitude",
			"likecount", "longitude", "name", "profileimage", "ringid",
			"starttime", "title", "userid", "viewcount", "startcoin",
			"endcoin", "usertype", "roomid", "device", "tariff",
			"featuredscore", "streammediatype", "logtime",
		},
		Key:        []string{"streamid"},
		TimeColumn: "logtime",
	}
)

const (
	settingsTable          = "analytics_settings"
	activityMethodMapTable = "analytics_activity_method_map"
)
