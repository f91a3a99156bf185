package docker

import (
	"bufio"
	"context"
	"errors"
	"fmt"

	"github.com/artpar/riptide-engine/internal/core/images"
	"github.com/artpar/riptide-engine/internal/core/project"
)

// lineReset starts every progress line handed to the update callback.
const lineReset = "\n"

// PullImages pulls the images of every service and of every command that
// declares one, in order. Images missing upstream are reported and
// skipped; any other failure aborts the remaining pulls.
func (e *Engine) PullImages(ctx context.Context, p *project.Project, update func(string)) error {
	if update == nil {
		update = func(string) {}
	}

	for _, name := range p.ServiceNames() {
		svc, _ := p.Service(name)
		update(fmt.Sprintf("[service/%s] Pulling '%s':\n", name, svc.Image))
		if err := e.pullReported(ctx, svc.Image, update); err != nil {
			return err
		}
	}

	for _, name := range p.CommandNames() {
		cmd, _ := p.Command(name)
		if cmd.Image == "" {
			continue
		}
		update(fmt.Sprintf("[command/%s] Pulling '%s':\n", name, cmd.Image))
		if err := e.pullReported(ctx, cmd.Image, update); err != nil {
			return err
		}
	}

	update("Done!\n\n")
	return nil
}

func (e *Engine) pullReported(ctx context.Context, ref string, update func(string)) error {
	err := e.pullImage(ctx, ref, func(line string) {
		update(lineReset + "    " + line)
	})
	if errors.Is(err, ErrImageNotFound) {
		e.logger.Warn("image not found in repository", "image", ref)
		update(lineReset + "    Warning: Image not found in repository.\n")
		return nil
	}
	if err != nil {
		return err
	}
	update(lineReset + "    Done!\n")
	return nil
}

// pullImage pulls ref, defaulting its tag, and hands every formatted
// progress line to progress.
func (e *Engine) pullImage(ctx context.Context, ref string, progress func(string)) error {
	ref = images.WithDefaultTag(ref)

	stream, err := e.docker.PullImage(ctx, ref, PullOptions{})
	if err != nil {
		return err
	}
	defer stream.Close()

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if pullErr := images.PullError(line); pullErr != nil {
			if IsImageNotFoundMessage(pullErr.Error()) {
				return NewDockerError("PullImage", "image", ref, pullErr.Error(), ErrImageNotFound)
			}
			return NewDockerError("PullImage", "image", ref, pullErr.Error(), ErrImagePullFailed)
		}
		progress(images.FormatPullLine(line))
	}
	if err := scanner.Err(); err != nil {
		return NewDockerError("PullImage", "image", ref, err.Error(), ErrImagePullFailed)
	}
	return nil
}

// ImageLabels returns the labels of a service or command image. It
// returns nil when the document has no image or the image is not present
// locally.
func (e *Engine) ImageLabels(ctx context.Context, doc project.Document) (map[string]string, error) {
	if doc.ImageName() == "" {
		return nil, nil
	}
	cfg, err := e.docker.InspectImage(ctx, doc.ImageName())
	if errors.Is(err, ErrImageNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg.Labels, nil
}
