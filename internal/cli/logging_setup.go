package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rshade/rasterclip/internal/config"
	"github.com/rshade/rasterclip/internal/logging"
)

// loadedConfig is the configuration resolved for one command invocation.
// When loading failed cfg holds defaults and err is reported by the commands
// that need the file.
type loadedConfig struct {
	cfg        *config.Config
	projectDir string
	err        error
}

type configKey struct{}

func contextWithConfig(ctx context.Context, lc *loadedConfig) context.Context {
	return context.WithValue(ctx, configKey{}, lc)
}

// configFromContext returns the configuration loaded by the root command.
// Commands executed without the root get a fresh load.
func configFromContext(ctx context.Context) (*config.Config, error) {
	if lc, ok := ctx.Value(configKey{}).(*loadedConfig); ok && lc != nil {
		return lc.cfg, lc.err
	}
	return config.Load("")
}

func projectDirFromContext(ctx context.Context) string {
	if lc, ok := ctx.Value(configKey{}).(*loadedConfig); ok && lc != nil {
		return lc.projectDir
	}
	return ""
}

// loadConfig resolves the project directory and loads the configuration
// named by --config, falling back to defaults when loading fails.
func loadConfig(cmd *cobra.Command) *loadedConfig {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	path, _ := cmd.Flags().GetString("config")
	projectFlag, _ := cmd.Flags().GetString("project-dir")

	wd, _ := os.Getwd()
	lc := &loadedConfig{projectDir: config.ResolveProjectDir(ctx, projectFlag, wd)}
	lc.cfg, lc.err = config.LoadWithProjectDir(ctx, path, lc.projectDir)
	if lc.err != nil {
		lc.cfg = config.New()
	}
	return lc
}

// setupLogging configures logging based on config file, environment, and CLI flags.
func setupLogging(cmd *cobra.Command, lc *loadedConfig) logging.LogPathResult {
	loggingCfg := lc.cfg.Logging

	debug, _ := cmd.Flags().GetBool("debug")
	if debug {
		loggingCfg.Level = "debug"
		loggingCfg.Format = logging.FormatConsole
		loggingCfg.File = ""
	}

	// Ensure log directory exists after all overrides have been applied.
	if err := loggingCfg.EnsureLogDir(); err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not create log directory: %v\n", err)
	}

	logCfg := loggingCfg.ToLoggingConfig()
	logCfg.Writer = cmd.ErrOrStderr()
	result := logging.NewLoggerWithPath(logCfg)
	logger = logging.ComponentLogger(result.Logger, "cli")

	if result.UsingFile {
		logging.PrintLogPathMessage(cmd.ErrOrStderr(), result.FilePath)
	} else if result.FallbackUsed {
		logging.PrintFallbackWarning(cmd.ErrOrStderr(), result.FallbackReason)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	traceID := logging.GetOrGenerateTraceID(ctx)
	ctx = logging.ContextWithTraceID(ctx, traceID)
	ctx = result.Logger.WithContext(ctx)
	ctx = contextWithConfig(ctx, lc)

	auditLogger := logging.NewAuditLogger(logging.AuditLoggerConfig{
		Enabled: loggingCfg.Audit.Enabled,
		File:    loggingCfg.Audit.File,
	})
	ctx = logging.ContextWithAuditLogger(ctx, auditLogger)
	cmd.SetContext(ctx)

	if lc.err != nil {
		logger.Debug().Ctx(ctx).Err(lc.err).Msg("configuration could not be loaded, using defaults")
	}
	if lc.projectDir != "" {
		logger.Debug().Ctx(ctx).Str("project_dir", lc.projectDir).Msg("project configuration resolved")
	}
	logger.Debug().Ctx(ctx).Str("command", cmd.Name()).Msg("command started")

	return result
}

// cleanupLogging closes audit logger and log file handles.
func cleanupLogging(cmd *cobra.Command, logResult *logging.LogPathResult) error {
	ctx := cmd.Context()
	if ctx != nil {
		if err := logging.AuditLoggerFromContext(ctx).Close(); err != nil {
			return err
		}
	}
	if logResult != nil {
		return logResult.Close()
	}
	return nil
}
