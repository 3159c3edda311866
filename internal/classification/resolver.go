package classification

import (
	"context"
	"fmt"

	"leadgen_backend/platform/apperr"
	"leadgen_backend/platform/logger"
)

// Resolver turns classification input into a single Attribution.
type Resolver struct {
	repo Repository
	log  *logger.Logger
}

// NewResolver creates a Resolver backed by the given repository.
func NewResolver(repo Repository, log *logger.Logger) *Resolver {
	return &Resolver{repo: repo, log: log}
}

// Resolve applies the identifier priority: an explicit source id wins,
// then a source key, then the host/path of the submitting page. Input
// carrying none of the three is rejected outright.
func (s *Resolver) Resolve(ctx context.Context, in Input) (*Attribution, error) {
	switch {
	case in.SourceID != nil:
		return s.resolveByID(ctx, *in.SourceID)
	case in.SourceKey != "":
		return s.resolveByKey(ctx, in.SourceKey)
	case in.Host != "":
		return s.resolveByHostPath(ctx, in.Host, in.Path)
	default:
		return nil, apperr.Validation("no source identifier provided").WithCode(CodeInvalidSource)
	}
}

func (s *Resolver) resolveByID(ctx context.Context, sourceID int64) (*Attribution, error) {
	attr, err := s.repo.BySourceID(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if attr == nil {
		return nil, apperr.Validation(fmt.Sprintf("source %d does not exist or is inactive", sourceID)).WithCode(CodeInvalidSource)
	}
	return attr, nil
}

func (s *Resolver) resolveByKey(ctx context.Context, sourceKey string) (*Attribution, error) {
	key, err := CanonicalizeSourceKey(sourceKey)
	if err != nil {
		return nil, err
	}
	attr, err := s.repo.BySourceKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if attr == nil {
		return nil, apperr.Validation("source key is not registered").WithCode(CodeInvalidSourceKey)
	}
	return attr, nil
}

func (s *Resolver) resolveByHostPath(ctx context.Context, host, path string) (*Attribution, error) {
	h, err := CanonicalizeHostname(host)
	if err != nil {
		return nil, err
	}
	p := CanonicalizePath(path)

	candidates, err := s.repo.ByHostPath(ctx, h, p)
	if err != nil {
		return nil, err
	}
	switch {
	case len(candidates) == 0:
		return nil, apperr.Validation(fmt.Sprintf("no source mapping for host %q", h)).WithCode(CodeUnmappedSource)
	case len(candidates) > 1 && candidates[0].PrefixLen == candidates[1].PrefixLen:
		s.log.Warn("ambiguous source mapping",
			"host", h, "path", p,
			"source_a", candidates[0].SourceID, "source_b", candidates[1].SourceID)
		return nil, apperr.Conflict(fmt.Sprintf("multiple sources map to host %q path %q", h, p)).
			WithCode(CodeAmbiguousMapping).
			WithDetails([]int64{candidates[0].SourceID, candidates[1].SourceID})
	}
	attr := candidates[0].Attribution
	return &attr, nil
}
