// Package config provides configuration loading for trajstream pipelines.
//
// A Config aggregates one section per pipeline part: the frame cache, the
// remote, client and file sources, the playback controller and logging.
// Files are YAML (.yaml, .yml) or JSON (anything else) and are merged over
// DefaultConfig, so a file only needs the keys it changes. Durations are
// written as strings ("66ms", "45s") and the cache size accepts human
// readable sizes ("512MiB").
//
// # Basic Usage
//
//	cfg, err := config.Load("trajstream.yaml")
//	if err != nil {
//		return err
//	}
//	logger := cfg.Log.NewLogger(os.Stderr)
//
//	frames, err := cache.New(cfg.Cache)
//	if err != nil {
//		return err
//	}
//	src, err := source.NewRemoteSource(cfg.Remote.URL, cfg.RemoteOptions(logger, nil)...)
//	if err != nil {
//		return err
//	}
//	ctrl, err := playback.New(src, frames, cfg.PlaybackOptions(logger, nil)...)
//
// # Layers and Environment
//
// A Loader merges several files in order, later files taking precedence.
// After merging, environment variables with the TRAJSTREAM_ prefix override
// individual fields:
//
//	TRAJSTREAM_REMOTE_URL       remote.url
//	TRAJSTREAM_FILE_PATH        file.path
//	TRAJSTREAM_LOG_LEVEL        log.level
//	TRAJSTREAM_LOG_FORMAT       log.format
//	TRAJSTREAM_CACHE_ENABLED    cache.enabled
//	TRAJSTREAM_CACHE_MAX_SIZE   cache.max_size
//
// # Thread-Safe Access
//
// SafeConfig wraps a Config behind an RWMutex. Get returns a copy and Update
// validates before swapping.
package config
