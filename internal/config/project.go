package config

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rshade/rasterclip/internal/logging"
)

// projectDirName is the directory holding a project-local config overlay.
const projectDirName = ".rasterclip"

// ResolveProjectDir determines the project-local .rasterclip directory path.
// It checks (in order):
//  1. flagValue (--project-dir CLI flag)
//  2. RASTERCLIP_PROJECT_DIR env var
//  3. a walk up from startDir to the first directory holding
//     .rasterclip/config.yaml, skipping the user config directory
//
// Returns the absolute path of the .rasterclip directory, or "" when no
// project is found. Does NOT create the directory.
func ResolveProjectDir(ctx context.Context, flagValue, startDir string) string {
	if flagValue != "" {
		return toAbsProjectDir(ctx, flagValue)
	}

	if envDir := os.Getenv(EnvProjectDir); envDir != "" {
		return toAbsProjectDir(ctx, envDir)
	}

	if startDir == "" {
		return ""
	}
	userDir, _ := GetConfigDir()
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, projectDirName)
		if candidate != userDir {
			if _, statErr := os.Stat(filepath.Join(candidate, configFileName)); statErr == nil {
				return candidate
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadWithProjectDir loads the configuration at path, then shallow-merges the
// project-local config.yaml from projectDir on top and re-applies the
// environment. A missing or unreadable project overlay leaves the base
// configuration in place.
func LoadWithProjectDir(ctx context.Context, path, projectDir string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if projectDir == "" {
		return cfg, nil
	}

	overlayPath := filepath.Join(projectDir, configFileName)
	if _, statErr := os.Stat(overlayPath); statErr != nil {
		return cfg, nil
	}

	merged := *cfg
	if mergeErr := ShallowMergeYAML(&merged, overlayPath); mergeErr != nil {
		logger := logging.FromContext(ctx)
		logger.Warn().
			Str("component", "config").
			Str("operation", "merge_project_config").
			Err(mergeErr).
			Str("overlay_path", overlayPath).
			Msg("failed to merge project config, using user configuration")
		return cfg, nil
	}
	if err = merged.ApplyEnv(); err != nil {
		return nil, err
	}
	return &merged, nil
}

// toAbsProjectDir converts dir to an absolute path and appends ".rasterclip"
// unless it already ends with it.
func toAbsProjectDir(ctx context.Context, dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		logger := logging.FromContext(ctx)
		logger.Warn().
			Str("component", "config").
			Err(err).
			Str("dir", dir).
			Msg("failed to resolve absolute path for project directory")
		abs = dir
	}

	if filepath.Base(abs) == projectDirName {
		return abs
	}

	return filepath.Join(abs, projectDirName)
}
