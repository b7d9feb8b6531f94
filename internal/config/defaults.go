package config

const (
	defaultDataDir               = "~/.local/share/eduscale"
	defaultLogDir                = "~/.local/share/eduscale/logs"
	defaultStorageRoot           = "~/.local/share/eduscale/storage"
	defaultStorageBucket         = "ingest"
	defaultAPIBind               = "127.0.0.1:7519"
	defaultBaseDelaySeconds      = 10
	defaultBackoffMultiplier     = 2
	defaultMaxAttempts           = 6
	defaultRequestTimeoutSeconds = 30
	defaultMaxInFlight           = 8
	defaultMaxFileSizeMB         = 100
	defaultMaxArchiveSizeMB      = 200
	defaultMaxFilesPerArchive    = 100
	defaultNotifyRequestTimeout  = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Storage: Storage{
			Root:         defaultStorageRoot,
			Bucket:       defaultStorageBucket,
			WatchUploads: true,
		},
		Delivery: Delivery{
			BaseDelaySeconds:      defaultBaseDelaySeconds,
			BackoffMultiplier:     defaultBackoffMultiplier,
			MaxAttempts:           defaultMaxAttempts,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			MaxInFlight:           defaultMaxInFlight,
		},
		Pipeline: Pipeline{
			MaxFileSizeMB:      defaultMaxFileSizeMB,
			MaxArchiveSizeMB:   defaultMaxArchiveSizeMB,
			MaxFilesPerArchive: defaultMaxFilesPerArchive,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completion:     true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
