// Package tagging defines the tag service contract: the operation set every storage
// dialect implements, the option and result shapes, the pagination and name-pattern
// helpers shared by dialects, and the Service facade applications call.
package tagging

import (
	"context"

	"github.com/joescharf/tagger/internal/models"
)

// AutoCreateDesc is the description given to tags created implicitly by Bind.
const AutoCreateDesc = "auto create"

// TagDefine describes a tag to create.
type TagDefine struct {
	Name string `json:"name"`
	Desc string `json:"desc,omitempty"`
}

// TagPatch holds the fields to change on a tag. Nil fields are left untouched.
type TagPatch struct {
	Name *string `json:"name,omitempty"`
	Desc *string `json:"desc,omitempty"`
}

// ListOptions filters and pages a tag listing. Match tokens are OR'd; ids match by
// equality and names as patterns (see ParsePattern).
type ListOptions struct {
	Pagination
	Match []Ref `json:"match,omitempty"`
}

// BindOptions relates an instance to tags.
type BindOptions struct {
	InstanceID    uint64 `json:"instanceId"`
	Tags          []Ref  `json:"tags"`
	AutoCreateTag bool   `json:"autoCreateTag,omitempty"`
}

// UnbindOptions removes tags from an instance.
type UnbindOptions struct {
	InstanceID uint64 `json:"instanceId"`
	Tags       []Ref  `json:"tags"`
}

// ListInstanceOptions selects instances carrying all of Tags.
type ListInstanceOptions struct {
	Pagination
	Tags []Ref `json:"tags,omitempty"`
}

// ListInstanceTagsOptions selects the tags of one instance.
type ListInstanceTagsOptions struct {
	Pagination
	InstanceID uint64 `json:"instanceId"`
}

// Dialect is a storage backend. All dialects must be observably identical: the
// same inputs produce the same results, orderings and failure kinds.
//
// The error return is for infrastructure failures only. Missing tags, duplicate
// names and the like are reported through Result.
type Dialect interface {
	New(ctx context.Context, def TagDefine) (Result, error)
	Remove(ctx context.Context, ref Ref) (Result, error)
	Update(ctx context.Context, ref Ref, patch TagPatch) (Result, error)
	List(ctx context.Context, opts ListOptions) (ListResult[models.Tag], error)
	Bind(ctx context.Context, opts BindOptions) (Result, error)
	Unbind(ctx context.Context, opts UnbindOptions) (Result, error)
	ListInstance(ctx context.Context, opts ListInstanceOptions) (ListResult[uint64], error)
	ListInstanceTags(ctx context.Context, opts ListInstanceTagsOptions) (ListResult[models.Tag], error)
}
