package graph

import (
	"context"
	"strings"

	ragerr "github.com/ragmill/ragmill/internal/errors"
)

// Query answers the knowledge-graph inspection commands: `repos`,
// `explore <repo>`, `classes <repo>`, `method <name>`. The payload shape
// depends on the command.
func Query(ctx context.Context, runner Runner, command string) (map[string]any, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, ragerr.ValidationError("empty knowledge graph command", nil)
	}

	verb, args := fields[0], fields[1:]
	switch verb {
	case "repos":
		return repos(ctx, runner)
	case "explore":
		if len(args) != 1 {
			return nil, ragerr.ValidationError("usage: explore <repo>", nil)
		}
		return explore(ctx, runner, args[0])
	case "classes":
		if len(args) != 1 {
			return nil, ragerr.ValidationError("usage: classes <repo>", nil)
		}
		return classes(ctx, runner, args[0])
	case "method":
		if len(args) != 1 {
			return nil, ragerr.ValidationError("usage: method <name>", nil)
		}
		return method(ctx, runner, args[0])
	default:
		return nil, ragerr.ValidationError("unknown command: "+verb+
			" (expected repos, explore, classes, or method)", nil)
	}
}

func repos(ctx context.Context, runner Runner) (map[string]any, error) {
	rows, err := runner.Run(ctx,
		"MATCH (r:Repository) RETURN r.name AS name ORDER BY name", nil)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		if name, ok := row["name"].(string); ok {
			names = append(names, name)
		}
	}
	return map[string]any{"command": "repos", "repositories": names}, nil
}

func explore(ctx context.Context, runner Runner, repo string) (map[string]any, error) {
	rows, err := runner.Run(ctx, `
		MATCH (r:Repository {name: $repo})
		OPTIONAL MATCH (f:File)-[:PART_OF]->(r)
		OPTIONAL MATCH (c:Class)-[:DEFINED_IN]->(f)
		OPTIONAL MATCH (fn:Function)-[:DEFINED_IN]->(f)
		RETURN count(DISTINCT f) AS files, count(DISTINCT c) AS classes,
		       count(DISTINCT fn) AS functions`,
		map[string]any{"repo": repo})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ragerr.ValidationError("repository not found: "+repo, nil)
	}
	return map[string]any{
		"command":    "explore",
		"repository": repo,
		"files":      rows[0]["files"],
		"classes":    rows[0]["classes"],
		"functions":  rows[0]["functions"],
	}, nil
}

func classes(ctx context.Context, runner Runner, repo string) (map[string]any, error) {
	rows, err := runner.Run(ctx, `
		MATCH (c:Class)-[:DEFINED_IN]->(f:File)-[:PART_OF]->(r:Repository {name: $repo})
		OPTIONAL MATCH (c)-[:HAS_METHOD]->(m:Method)
		RETURN c.full_name AS full_name, collect(DISTINCT m.name) AS methods
		ORDER BY full_name`,
		map[string]any{"repo": repo})
	if err != nil {
		return nil, err
	}
	list := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		list = append(list, map[string]any{
			"full_name": row["full_name"],
			"methods":   anyStrings(row["methods"]),
		})
	}
	return map[string]any{"command": "classes", "repository": repo, "classes": list}, nil
}

func method(ctx context.Context, runner Runner, name string) (map[string]any, error) {
	rows, err := runner.Run(ctx, `
		MATCH (c:Class)-[:HAS_METHOD]->(m:Method {name: $name})
		RETURN c.full_name AS class, m.full_name AS full_name,
		       m.params_list AS params, m.return_type AS return_type
		ORDER BY class`,
		map[string]any{"name": name})
	if err != nil {
		return nil, err
	}
	list := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		list = append(list, map[string]any{
			"class":       row["class"],
			"full_name":   row["full_name"],
			"params":      anyStrings(row["params"]),
			"return_type": row["return_type"],
		})
	}
	return map[string]any{"command": "method", "name": name, "matches": list}, nil
}
