package mcp

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	ragerr "github.com/ragmill/ragmill/internal/errors"
	"github.com/ragmill/ragmill/internal/graph"
	"github.com/ragmill/ragmill/internal/validation"
)

type ParseRepoInput struct {
	RepoURL string `json:"repo_url" jsonschema:"the git repository URL to clone and extract"`
}

type ParseRepoOutput struct {
	Envelope
	RepoName string       `json:"repo_name,omitempty"`
	Stats    *graph.Stats `json:"stats,omitempty"`
}

func (s *Server) handleParseRepo(ctx context.Context, _ *mcp.CallToolRequest, in ParseRepoInput) (*mcp.CallToolResult, ParseRepoOutput, error) {
	if !s.graphReady() {
		return nil, ParseRepoOutput{Envelope: failEnvelope(ragerr.GraphUnavailable())}, nil
	}
	if err := validation.URL(in.RepoURL); err != nil {
		return nil, ParseRepoOutput{Envelope: failEnvelope(err)}, nil
	}
	name, err := graph.RepoName(in.RepoURL)
	if err != nil {
		return nil, ParseRepoOutput{Envelope: failEnvelope(err)}, nil
	}

	ext := graph.NewExtractor(s.deps.Graph, s.deps.Config.Crawl.MaxRetries)
	stats, err := ext.ParseRepository(ctx, in.RepoURL)
	if err != nil {
		return nil, ParseRepoOutput{Envelope: failEnvelope(err)}, nil
	}
	return nil, ParseRepoOutput{
		Envelope: okEnvelope(),
		RepoName: name,
		Stats:    stats,
	}, nil
}

type ParseRepoBatchInput struct {
	RepoURLs      []string `json:"repo_urls" jsonschema:"the git repository URLs to extract"`
	MaxConcurrent int      `json:"max_concurrent,omitempty" jsonschema:"parallel repository clones, default 3"`
	MaxRetries    int      `json:"max_retries,omitempty" jsonschema:"graph write retries, default 3"`
}

// BatchRepoResult is the per-repository outcome of a batch parse.
type BatchRepoResult struct {
	RepoURL string       `json:"repo_url"`
	Success bool         `json:"success"`
	Stats   *graph.Stats `json:"stats,omitempty"`
	Error   string       `json:"error,omitempty"`
}

type ParseRepoBatchOutput struct {
	Envelope
	Results   []BatchRepoResult `json:"results,omitempty"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

func (s *Server) handleParseRepoBatch(ctx context.Context, _ *mcp.CallToolRequest, in ParseRepoBatchInput) (*mcp.CallToolResult, ParseRepoBatchOutput, error) {
	if !s.graphReady() {
		return nil, ParseRepoBatchOutput{Envelope: failEnvelope(ragerr.GraphUnavailable())}, nil
	}
	if len(in.RepoURLs) == 0 {
		err := ragerr.ValidationError("repo_urls is required", nil)
		return nil, ParseRepoBatchOutput{Envelope: failEnvelope(err)}, nil
	}
	for _, u := range in.RepoURLs {
		if err := validation.URL(u); err != nil {
			return nil, ParseRepoBatchOutput{Envelope: failEnvelope(err)}, nil
		}
	}

	retries := in.MaxRetries
	if retries <= 0 {
		retries = s.deps.Config.Crawl.MaxRetries
	}
	ext := graph.NewExtractor(s.deps.Graph, retries)
	results := ext.ParseRepositories(ctx, in.RepoURLs, in.MaxConcurrent)

	out := ParseRepoBatchOutput{Results: make([]BatchRepoResult, len(results))}
	for i, r := range results {
		out.Results[i] = BatchRepoResult{RepoURL: r.RepoURL, Stats: r.Stats}
		if r.Error != "" {
			out.Results[i].Error = r.Error
			out.Failed++
			continue
		}
		out.Results[i].Success = true
		out.Succeeded++
	}
	out.Envelope = okEnvelope()
	return nil, out, nil
}

type CheckScriptInput struct {
	ScriptPath string `json:"script_path" jsonschema:"path to the script to validate against the knowledge graph"`
}

type CheckScriptOutput struct {
	Envelope
	Report *graph.Report `json:"report,omitempty"`
}

func (s *Server) handleCheckScript(ctx context.Context, _ *mcp.CallToolRequest, in CheckScriptInput) (*mcp.CallToolResult, CheckScriptOutput, error) {
	if !s.graphReady() {
		return nil, CheckScriptOutput{Envelope: failEnvelope(ragerr.GraphUnavailable())}, nil
	}
	if strings.TrimSpace(in.ScriptPath) == "" {
		err := ragerr.ValidationError("script_path is required", nil)
		return nil, CheckScriptOutput{Envelope: failEnvelope(err)}, nil
	}

	report, err := graph.NewValidator(s.deps.Graph).CheckScript(ctx, in.ScriptPath)
	if err != nil {
		return nil, CheckScriptOutput{Envelope: failEnvelope(err)}, nil
	}
	return nil, CheckScriptOutput{Envelope: okEnvelope(), Report: report}, nil
}

type KGQueryInput struct {
	Command string `json:"command" jsonschema:"one of: repos, explore <repo>, classes <repo>, method <name>"`
}

type KGQueryOutput struct {
	Envelope
	Data map[string]any `json:"data,omitempty"`
}

func (s *Server) handleKGQuery(ctx context.Context, _ *mcp.CallToolRequest, in KGQueryInput) (*mcp.CallToolResult, KGQueryOutput, error) {
	if !s.graphReady() {
		return nil, KGQueryOutput{Envelope: failEnvelope(ragerr.GraphUnavailable())}, nil
	}

	data, err := graph.Query(ctx, s.deps.Graph, in.Command)
	if err != nil {
		return nil, KGQueryOutput{Envelope: failEnvelope(err)}, nil
	}
	return nil, KGQueryOutput{Envelope: okEnvelope(), Data: data}, nil
}
