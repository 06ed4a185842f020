package updater

import (
	"context"
	"log/slog"
	"os/exec"

	"github.com/grabtube/grabtube/server/config"
)

// UpdateResolver invokes the resolver's builtin self update mechanism.
func UpdateResolver(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, config.Instance().Paths.ResolverPath, "-U")

	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		slog.Info("resolver update", slog.String("output", string(out)))
	}

	return err
}
