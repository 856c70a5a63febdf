package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/tagger/internal/tagging"
)

// Server wraps the tagging service and exposes it as MCP tools.
type Server struct {
	svc     *tagging.Service
	version string
}

// NewServer creates the MCP server wrapper.
func NewServer(svc *tagging.Service, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{svc: svc, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("tagger", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.newTagTool())
	srv.AddTool(s.removeTagTool())
	srv.AddTool(s.updateTagTool())
	srv.AddTool(s.listTagsTool())
	srv.AddTool(s.bindTool())
	srv.AddTool(s.unbindTool())
	srv.AddTool(s.listInstancesTool())
	srv.AddTool(s.listInstanceTagsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Argument helpers
// ---------------------------------------------------------------------------

var refItems = mcp.Items(map[string]any{"type": "string"})

func paginationOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithNumber("page", mcp.Description("Page number, starting at 1 (default 1)")),
		mcp.WithNumber("page_size", mcp.Description("Items per page (default 20, -1 for all)")),
		mcp.WithBoolean("count", mcp.Description("Also return the total number of matches")),
	}
}

func pagination(request mcp.CallToolRequest) tagging.Pagination {
	p := tagging.Pagination{
		Page:     max(request.GetInt("page", 0), 0),
		PageSize: request.GetInt("page_size", 0),
		Count:    request.GetBool("count", false),
	}
	if p.PageSize < 0 {
		p.PageSize = tagging.All
	}
	return p
}

// maxExactID is the largest id a JSON number carries without losing precision.
// Larger ids must be passed as strings.
const maxExactID = 1 << 53

// exactID converts a JSON number into an id, rejecting fractions, negatives and
// values a float64 cannot hold exactly.
func exactID(v float64) (uint64, bool) {
	if v < 0 || v > maxExactID || v != math.Trunc(v) {
		return 0, false
	}
	return uint64(v), true
}

// refsArg reads a list of tag references. Numbers and all-digit strings are ids;
// "name:" forces a name.
func refsArg(request mcp.CallToolRequest, key string) ([]tagging.Ref, error) {
	raw, ok := request.GetArguments()[key]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, errors.Newf("%s must be an array", key)
	}
	refs := make([]tagging.Ref, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if v == "" {
				return nil, errors.Wrap(tagging.ErrEmptyName, key)
			}
			refs = append(refs, tagging.ParseRef(v))
		case float64:
			id, ok := exactID(v)
			if !ok {
				return nil, errors.Newf("%s: %v is not a tag id", key, v)
			}
			refs = append(refs, tagging.ByID(id))
		default:
			return nil, errors.Newf("%s: unsupported element %v", key, item)
		}
	}
	return refs, nil
}

func instanceArg(request mcp.CallToolRequest) (uint64, error) {
	v, ok := request.GetArguments()["instance_id"].(float64)
	if !ok {
		return 0, errors.New("instance_id must be a non-negative integer")
	}
	id, ok := exactID(v)
	if !ok {
		return 0, errors.Newf("instance_id must be a non-negative integer up to %d", uint64(maxExactID))
	}
	return id, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// operationResult reports failed Results as tool errors carrying the Result JSON.
func operationResult(r tagging.Result, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("operation failed: %v", err)), nil
	}
	data, merr := json.Marshal(r)
	if merr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", merr)), nil
	}
	if !r.Success {
		return mcp.NewToolResultError(string(data)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// tag_new
func (s *Server) newTagTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tag_new",
		mcp.WithDescription("Create a tag. Names are unique and case-sensitive. Returns {success, message, id}; message EXISTS carries the id of the tag that already has the name."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Tag name")),
		mcp.WithString("desc", mcp.Description("Tag description")),
	)
	return tool, s.handleNewTag
}

func (s *Server) handleNewTag(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil || name == "" {
		return mcp.NewToolResultError("missing required parameter: name"), nil
	}
	return operationResult(s.svc.New(ctx, tagging.TagDefine{
		Name: name,
		Desc: request.GetString("desc", ""),
	}))
}

// tag_remove
func (s *Server) removeTagTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tag_remove",
		mcp.WithDescription("Delete a tag by id or name, together with every instance binding that uses it."),
		mcp.WithString("tag", mcp.Required(), mcp.Description("Tag id or name; prefix with name: to force a name, e.g. name:2024")),
	)
	return tool, s.handleRemoveTag
}

func (s *Server) handleRemoveTag(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag, err := request.RequireString("tag")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: tag"), nil
	}
	return operationResult(s.svc.Remove(ctx, tagging.ParseRef(tag)))
}

// tag_update
func (s *Server) updateTagTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tag_update",
		mcp.WithDescription("Rename a tag or change its description. Omitted fields are left unchanged."),
		mcp.WithString("tag", mcp.Required(), mcp.Description("Tag id or name; prefix with name: to force a name, e.g. name:2024")),
		mcp.WithString("name", mcp.Description("New name")),
		mcp.WithString("desc", mcp.Description("New description")),
	)
	return tool, s.handleUpdateTag
}

func (s *Server) handleUpdateTag(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag, err := request.RequireString("tag")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: tag"), nil
	}

	var patch tagging.TagPatch
	args := request.GetArguments()
	if v, ok := args["name"].(string); ok {
		if v == "" {
			return mcp.NewToolResultError("name must not be empty"), nil
		}
		patch.Name = &v
	}
	if v, ok := args["desc"].(string); ok {
		patch.Desc = &v
	}
	if patch.Name == nil && patch.Desc == nil {
		return mcp.NewToolResultError("nothing to update: pass name and/or desc"), nil
	}
	return operationResult(s.svc.Update(ctx, tagging.ParseRef(tag), patch))
}

// tag_list
func (s *Server) listTagsTool() (mcp.Tool, server.ToolHandlerFunc) {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("List tags in creation order. match filters by ids or name patterns (\"go%\" starts with, \"%go\" ends with, \"%go%\" contains); any match selects the tag."),
		mcp.WithArray("match", mcp.Description("Tag ids or name patterns"), refItems),
	}, paginationOptions()...)
	return mcp.NewTool("tag_list", opts...), s.handleListTags
}

func (s *Server) handleListTags(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	match, err := refsArg(request, "match")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.List(ctx, tagging.ListOptions{Pagination: pagination(request), Match: match})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list tags: %v", err)), nil
	}
	return jsonResult(res)
}

// tag_bind
func (s *Server) bindTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tag_bind",
		mcp.WithDescription("Attach tags to an instance. Either every tag is attached or none is. With auto_create, unknown tag names are created first."),
		mcp.WithNumber("instance_id", mcp.Required(), mcp.Description("Instance id")),
		mcp.WithArray("tags", mcp.Required(), mcp.Description("Tag ids or names; a name: prefix forces a name"), refItems),
		mcp.WithBoolean("auto_create", mcp.Description("Create missing tags by name")),
	)
	return tool, s.handleBind
}

func (s *Server) handleBind(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instanceID, err := instanceArg(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tags, err := refsArg(request, "tags")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return operationResult(s.svc.Bind(ctx, tagging.BindOptions{
		InstanceID:    instanceID,
		Tags:          tags,
		AutoCreateTag: request.GetBool("auto_create", false),
	}))
}

// tag_unbind
func (s *Server) unbindTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tag_unbind",
		mcp.WithDescription("Detach tags from an instance. Unknown or unattached tags are ignored."),
		mcp.WithNumber("instance_id", mcp.Required(), mcp.Description("Instance id")),
		mcp.WithArray("tags", mcp.Required(), mcp.Description("Tag ids or names; a name: prefix forces a name"), refItems),
	)
	return tool, s.handleUnbind
}

func (s *Server) handleUnbind(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instanceID, err := instanceArg(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tags, err := refsArg(request, "tags")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return operationResult(s.svc.Unbind(ctx, tagging.UnbindOptions{InstanceID: instanceID, Tags: tags}))
}

// tag_list_instances
func (s *Server) listInstancesTool() (mcp.Tool, server.ToolHandlerFunc) {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("List instance ids that carry every one of the given tags. Without tags, every tagged instance is listed."),
		mcp.WithArray("tags", mcp.Description("Tag ids or names; a name: prefix forces a name"), refItems),
	}, paginationOptions()...)
	return mcp.NewTool("tag_list_instances", opts...), s.handleListInstances
}

func (s *Server) handleListInstances(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags, err := refsArg(request, "tags")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.ListInstance(ctx, tagging.ListInstanceOptions{Pagination: pagination(request), Tags: tags})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list instances: %v", err)), nil
	}
	return jsonResult(res)
}

// tag_list_instance_tags
func (s *Server) listInstanceTagsTool() (mcp.Tool, server.ToolHandlerFunc) {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("List the tags attached to an instance, in the order they were attached."),
		mcp.WithNumber("instance_id", mcp.Required(), mcp.Description("Instance id")),
	}, paginationOptions()...)
	return mcp.NewTool("tag_list_instance_tags", opts...), s.handleListInstanceTags
}

func (s *Server) handleListInstanceTags(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instanceID, err := instanceArg(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.ListInstanceTags(ctx, tagging.ListInstanceTagsOptions{
		Pagination: pagination(request),
		InstanceID: instanceID,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list instance tags: %v", err)), nil
	}
	return jsonResult(res)
}
