package config

import "ytcollector/internal/stage"

// Queue storage backends.
const (
	BackendFiles  = "files"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

const (
	defaultConfigPath             = "~/.config/ytcollector/config.toml"
	defaultStateDir               = "~/.local/share/ytcollector"
	defaultLogDir                 = "~/.local/share/ytcollector/logs"
	defaultTemplateDir            = "~/.config/ytcollector/templates"
	defaultKernelDir              = "~/.local/share/ytcollector/kernels"
	defaultOutputDir              = "~/.local/share/ytcollector/output"
	defaultQueueBackend           = BackendFiles
	defaultRedisAddr              = "127.0.0.1:6379"
	defaultRedisPrefix            = "ytcollector"
	defaultMaxNewPerChannel       = 10
	defaultScanLimit              = 50
	defaultJitterMaxSeconds       = 60
	defaultYtDlpBinary            = "yt-dlp"
	defaultYtDlpTimeout           = 300
	defaultKaggleBinary           = "kaggle"
	defaultKaggleMinutesQuota     = 60
	defaultKaggleMaxItemsPerJob   = 50
	defaultKaggleSubmitTimeout    = 300
	defaultInterStageDelaySeconds = 30
	defaultNotifyRequestTimeout   = 10
	defaultLLMBaseURL             = "https://api.groq.com/openai/v1/chat/completions"
	defaultLLMModel               = "openai/gpt-oss-120b"
	defaultLLMTimeoutSeconds      = 120
	defaultAnalysisTrackingKey    = "llm_analysis"
	defaultCaptionLanguage        = "en"
	defaultAnalysisMaxItems       = 1
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

var defaultJobNames = map[string]string{
	stage.VideoDownload:  "yt-video-downloader",
	stage.Captions:       "yt-caption-collector",
	stage.InfoCollection: "yt-info-collector",
}

func defaultJobName(stageName string) string {
	if name, ok := defaultJobNames[stageName]; ok {
		return name
	}
	return "yt-" + stageName
}

func captionTrackingKey() string {
	def, _ := stage.DefaultTable().Lookup(stage.Captions)
	return def.TrackingKey
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:    defaultStateDir,
			LogDir:      defaultLogDir,
			TemplateDir: defaultTemplateDir,
			KernelDir:   defaultKernelDir,
			OutputDir:   defaultOutputDir,
		},
		Queue: Queue{
			Backend:     defaultQueueBackend,
			Dirs:        map[string]string{},
			RedisAddr:   defaultRedisAddr,
			RedisPrefix: defaultRedisPrefix,
		},
		Discovery: Discovery{
			MaxNewPerChannel: defaultMaxNewPerChannel,
			ScanLimit:        defaultScanLimit,
			JitterMaxSeconds: defaultJitterMaxSeconds,
			YtDlpBinary:      defaultYtDlpBinary,
			YtDlpTimeout:     defaultYtDlpTimeout,
		},
		Kaggle: Kaggle{
			Binary:          defaultKaggleBinary,
			MinutesQuota:    defaultKaggleMinutesQuota,
			MaxItemsPerJob:  defaultKaggleMaxItemsPerJob,
			EnableInternet:  true,
			SubmitTimeout:   defaultKaggleSubmitTimeout,
			AdvanceOnSubmit: true,
		},
		Stages: map[string]StageSettings{},
		Workflow: Workflow{
			InterStageDelaySeconds: defaultInterStageDelaySeconds,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Analysis: Analysis{
			SourceQueue:        stage.QueueResting,
			DestinationQueue:   stage.QueueAnalyzed,
			TrackingKey:        defaultAnalysisTrackingKey,
			CaptionTrackingKey: captionTrackingKey(),
			CaptionLanguage:    defaultCaptionLanguage,
			MaxItems:           defaultAnalysisMaxItems,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Discovery:      true,
			Submission:     true,
			Aborts:         true,
			Errors:         true,
			Analysis:       true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
