package utils

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with consistent field names for mesh and
// multilevel operations.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler. A nil handler logs text
// to stderr at Info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger writing human readable text to w.
func NewTextLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger discards everything.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000),
	}))
}

func (l *Logger) WithLevel(level int) *Logger {
	return &Logger{
		Logger: l.Logger.With("level", level),
	}
}

func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", name),
	}
}

// LogRefinement summarizes one coarsening and refinement pass.
func (l *Logger) LogRefinement(refined, coarsened, activeCells, levels int) {
	l.Info("refinement executed",
		"refined", refined,
		"coarsened", coarsened,
		"active_cells", activeCells,
		"levels", levels,
	)
}

// LogClosure reports the flag closure fixed point.
func (l *Logger) LogClosure(iterations, forcedRefinements, blockedCoarsenings int) {
	l.Debug("flag closure converged",
		"iterations", iterations,
		"forced_refinements", forcedRefinements,
		"blocked_coarsenings", blockedCoarsenings,
	)
}

// LogTransferLevel reports the operator built between level-1 and level.
func (l *Logger) LogTransferLevel(level, nnz, copyPairs, edgeDoFs int) {
	l.Debug("transfer level built",
		"level", level,
		"nnz", nnz,
		"copy_pairs", copyPairs,
		"refinement_edge_dofs", edgeDoFs,
	)
}
