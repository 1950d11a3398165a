package config

const (
	defaultBind              = "0.0.0.0:9007"
	defaultLogDir            = "~/.local/share/whisper-at-server/logs"
	defaultSpoolDir          = "~/.local/share/whisper-at-server/spool"
	defaultMaxUploadMiB      = 256
	defaultShutdownTimeout   = 10
	defaultEngineBinary      = "whisper-at"
	defaultEngineModel       = "base"
	defaultEngineInstances   = 1
	defaultLoadTimeout       = 600
	defaultTranscribeTimeout = 300
	defaultQueueCapacity     = 16
	defaultAwaitTimeout      = 300
	defaultRetentionDays     = 14
	defaultRedisAddr         = "localhost:6379"
	defaultPendingList       = "queue:pending"
	defaultProcessingList    = "queue:processing"
	defaultResultTTL         = 3600
	defaultWorkerPollTimeout = 5
	defaultServiceURL        = "http://localhost:9007"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			Bind:            defaultBind,
			MaxUploadMiB:    defaultMaxUploadMiB,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Paths: Paths{
			LogDir:   defaultLogDir,
			SpoolDir: defaultSpoolDir,
		},
		Engine: Engine{
			Binary:            defaultEngineBinary,
			Model:             defaultEngineModel,
			Instances:         defaultEngineInstances,
			LoadTimeout:       defaultLoadTimeout,
			TranscribeTimeout: defaultTranscribeTimeout,
		},
		Queue: Queue{
			Capacity:     defaultQueueCapacity,
			AwaitTimeout: defaultAwaitTimeout,
		},
		Journal: Journal{
			RetentionDays: defaultRetentionDays,
		},
		Worker: Worker{
			RedisAddr:      defaultRedisAddr,
			PendingList:    defaultPendingList,
			ProcessingList: defaultProcessingList,
			ResultTTL:      defaultResultTTL,
			PollTimeout:    defaultWorkerPollTimeout,
			ServiceURL:     defaultServiceURL,
		},
		Postprocess: Postprocess{
			Enabled:             true,
			HallucinationFilter: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
