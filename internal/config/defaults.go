package config

const (
	defaultConfigPath            = "~/.config/spritebatch/config.toml"
	defaultOutputDir             = "results/from_recursive_upload"
	defaultStateDir              = "~/.local/share/spritebatch"
	defaultLogDir                = "~/.local/share/spritebatch/logs"
	defaultEndpoint              = "http://127.0.0.1:8000/predict-annotated/"
	defaultFieldName             = "files"
	defaultRequestTimeoutSeconds = 600
	defaultUserAgent             = "spritebatch/0.1.0"
	defaultBatchSize             = 100
	defaultBatchWorkers          = 1
	defaultMarkerDir             = "sprites_detected"
	defaultLedgerEnabled         = true
	defaultPublishPrefix         = "runs"
	defaultNotificationsQueue    = "spritebatch.runs"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

var defaultExtensions = []string{".jpg", ".jpeg", ".png"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
		},
		Detector: Detector{
			Endpoint:              defaultEndpoint,
			FieldName:             defaultFieldName,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			UserAgent:             defaultUserAgent,
		},
		Batch: Batch{
			Size:       defaultBatchSize,
			Workers:    defaultBatchWorkers,
			Extensions: append([]string(nil), defaultExtensions...),
			MarkerDir:  defaultMarkerDir,
		},
		Ledger: Ledger{
			Enabled: defaultLedgerEnabled,
		},
		Publish: Publish{
			Prefix: defaultPublishPrefix,
		},
		Notifications: Notifications{
			Queue: defaultNotificationsQueue,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
