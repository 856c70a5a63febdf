package tagging

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/joescharf/tagger/internal/logger"
	"github.com/joescharf/tagger/internal/models"
)

// Service is the entry point applications use. It fills in default pagination,
// rejects incomplete bind requests and delegates everything else to its Dialect.
type Service struct {
	dialect Dialect
	log     *zap.SugaredLogger
}

// NewService wraps a dialect.
func NewService(d Dialect) *Service {
	return &Service{
		dialect: d,
		log:     logger.ComponentLogger("tagging"),
	}
}

// Dialect returns the backing dialect.
func (s *Service) Dialect() Dialect { return s.dialect }

// Close releases the dialect's resources if it holds any.
func (s *Service) Close() error {
	if c, ok := s.dialect.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func withDefaults(p Pagination) Pagination {
	if p.Page == 0 {
		p.Page = DefaultPage
	}
	if p.PageSize == 0 {
		p.PageSize = DefaultPageSize
	}
	return p
}

func (s *Service) logResult(ctx context.Context, op string, r Result, err error) {
	l := logger.FromContext(ctx, s.log)
	if err != nil {
		l.Warnw("tag operation failed", logger.FieldOperation, op, logger.FieldError, err)
		return
	}
	l.Debugw("tag operation", logger.FieldOperation, op, "success", r.Success, "message", r.Message, logger.FieldTagID, r.ID)
}

// New creates a tag.
func (s *Service) New(ctx context.Context, def TagDefine) (Result, error) {
	r, err := s.dialect.New(ctx, def)
	s.logResult(ctx, "new", r, err)
	return r, err
}

// Remove deletes a tag and every relationship that references it.
func (s *Service) Remove(ctx context.Context, ref Ref) (Result, error) {
	r, err := s.dialect.Remove(ctx, ref)
	s.logResult(ctx, "remove", r, err)
	return r, err
}

// Update changes a tag's name or description.
func (s *Service) Update(ctx context.Context, ref Ref, patch TagPatch) (Result, error) {
	r, err := s.dialect.Update(ctx, ref, patch)
	s.logResult(ctx, "update", r, err)
	return r, err
}

// List returns tags in creation order.
func (s *Service) List(ctx context.Context, opts ListOptions) (ListResult[models.Tag], error) {
	opts.Pagination = withDefaults(opts.Pagination)
	return s.dialect.List(ctx, opts)
}

// Bind relates an instance to tags. Tags must not be empty.
func (s *Service) Bind(ctx context.Context, opts BindOptions) (Result, error) {
	if len(opts.Tags) == 0 {
		r := MissingParameters("tags")
		s.logResult(ctx, "bind", r, nil)
		return r, nil
	}
	r, err := s.dialect.Bind(ctx, opts)
	s.logResult(ctx, "bind", r, err)
	return r, err
}

// Unbind removes tags from an instance.
func (s *Service) Unbind(ctx context.Context, opts UnbindOptions) (Result, error) {
	r, err := s.dialect.Unbind(ctx, opts)
	s.logResult(ctx, "unbind", r, err)
	return r, err
}

// ListInstance returns the instances that carry every tag in opts.Tags.
func (s *Service) ListInstance(ctx context.Context, opts ListInstanceOptions) (ListResult[uint64], error) {
	opts.Pagination = withDefaults(opts.Pagination)
	if opts.Tags == nil {
		opts.Tags = []Ref{}
	}
	return s.dialect.ListInstance(ctx, opts)
}

// ListInstanceTags returns the tags bound to one instance.
func (s *Service) ListInstanceTags(ctx context.Context, opts ListInstanceTagsOptions) (ListResult[models.Tag], error) {
	opts.Pagination = withDefaults(opts.Pagination)
	return s.dialect.ListInstanceTags(ctx, opts)
}
