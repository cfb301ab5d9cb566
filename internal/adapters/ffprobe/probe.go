// Package ffprobe lit la durée d'un fichier média via l'outil externe
// ffprobe.
package ffprobe

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

type Prober struct {
	// Bin permet de surcharger le binaire (tests). Vide = "ffprobe" du PATH.
	Bin string
}

func (p Prober) Duration(ctx context.Context, path string) (float64, error) {
	bin := p.Bin
	if bin == "" {
		bin = "ffprobe"
	}
	out, err := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: unexpected output %q", path, strings.TrimSpace(string(out)))
	}
	return d, nil
}
