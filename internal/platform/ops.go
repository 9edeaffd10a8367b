package platform

import (
	"time"

	"github.com/aretw0/marl/pkg/adapters/fs"
	"github.com/aretw0/marl/pkg/format"
)

// initDir builds the mirror directory adapter from the parsed options.
func initDir(path string, o *options) (*fs.NoteDir, error) {
	// Parse Config
	tempDir, _ := o.config["temp_dir"].(bool)
	mustExist, _ := o.config["must_exist"].(bool)
	frontMatter, _ := o.config["front_matter"].(bool)
	systemDir, _ := o.config["system_dir"].(string)
	archiveDir, _ := o.config["archive_dir"].(string)
	debounce, _ := o.config["debounce"].(time.Duration)
	eventBuffer, _ := o.config["event_buffer"].(int)
	errorHandler, _ := o.config["watcher_error_handler"].(func(error))

	// Check if dev_safety is explicitly set. Use boolean assertion AND check existence.
	// Default to true (safe) if not present.
	devSafety := true
	if val, ok := o.config["dev_safety"].(bool); ok {
		devSafety = val
	}

	// Safety & Path Resolution
	useTemp := tempDir || (IsDevRun() && devSafety)
	resolvedPath := ResolveMirrorPath(path, useTemp)

	if o.logger != nil && useTemp {
		o.logger.Warn("running in SAFE MODE (Dev/Test)", "original_path", path, "resolved_path", resolvedPath)
	}

	style := format.StyleHeader
	if frontMatter {
		style = format.StyleMeta
	}

	return fs.NewNoteDir(fs.Config{
		Path:         resolvedPath,
		SystemDir:    systemDir,
		ArchiveDir:   archiveDir,
		Style:        style,
		MustExist:    mustExist,
		Debounce:     debounce,
		EventBuffer:  eventBuffer,
		Logger:       o.logger,
		ErrorHandler: errorHandler,
	})
}
